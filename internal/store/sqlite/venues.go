package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/venuetrack/engine/internal/model"
)

func (db *DB) GetVenue(ctx context.Context, venueID string) (*model.Venue, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, name, width_meters, depth_meters, default_dwell_threshold_sec,
		       default_engagement_sec, created_at, updated_at
		FROM venues WHERE id = ?`, venueID)
	var v model.Venue
	if err := row.Scan(&v.ID, &v.Name, &v.WidthMeters, &v.DepthMeters,
		&v.DefaultDwellThresholdSec, &v.DefaultEngagementSec, &v.CreatedAt, &v.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("sqlite: venue %s: %w", venueID, ErrNotFound)
		}
		return nil, err
	}
	return &v, nil
}

func (db *DB) ListVenues(ctx context.Context) ([]model.Venue, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, width_meters, depth_meters, default_dwell_threshold_sec,
		       default_engagement_sec, created_at, updated_at
		FROM venues ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Venue
	for rows.Next() {
		var v model.Venue
		if err := rows.Scan(&v.ID, &v.Name, &v.WidthMeters, &v.DepthMeters,
			&v.DefaultDwellThresholdSec, &v.DefaultEngagementSec, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (db *DB) CreateVenue(ctx context.Context, v model.Venue) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO venues (id, name, width_meters, depth_meters, default_dwell_threshold_sec,
		                     default_engagement_sec, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, width_meters=excluded.width_meters, depth_meters=excluded.depth_meters,
			default_dwell_threshold_sec=excluded.default_dwell_threshold_sec,
			default_engagement_sec=excluded.default_engagement_sec, updated_at=excluded.updated_at`,
		v.ID, v.Name, v.WidthMeters, v.DepthMeters, v.DefaultDwellThresholdSec,
		v.DefaultEngagementSec, v.CreatedAt, v.UpdatedAt)
	return err
}

func (db *DB) UpdateVenue(ctx context.Context, v model.Venue) error {
	v.UpdatedAt = time.Now().UTC()
	res, err := db.ExecContext(ctx, `
		UPDATE venues SET name=?, width_meters=?, depth_meters=?, default_dwell_threshold_sec=?,
		                   default_engagement_sec=?, updated_at=?
		WHERE id=?`,
		v.Name, v.WidthMeters, v.DepthMeters, v.DefaultDwellThresholdSec,
		v.DefaultEngagementSec, v.UpdatedAt, v.ID)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "venue", v.ID)
}

func (db *DB) DeleteVenue(ctx context.Context, venueID string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM venues WHERE id=?`, venueID)
	return err
}

func (db *DB) GetROIs(ctx context.Context, venueID string) ([]model.ROI, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, venue_id, name, vertices_json, template, zone_type, color_hex, template_version
		FROM rois WHERE venue_id = ?`, venueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ROI
	for rows.Next() {
		var r model.ROI
		var verticesJSON string
		var zoneType string
		if err := rows.Scan(&r.ID, &r.VenueID, &r.Name, &verticesJSON, &r.Template,
			&zoneType, &r.ColorHex, &r.TemplateVersion); err != nil {
			return nil, err
		}
		r.ZoneType = model.ZoneType(zoneType)
		if err := json.Unmarshal([]byte(verticesJSON), &r.Vertices); err != nil {
			return nil, fmt.Errorf("sqlite: roi %s vertices: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (db *DB) CreateROI(ctx context.Context, r model.ROI) error {
	verticesJSON, err := json.Marshal(r.Vertices)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO rois (id, venue_id, name, vertices_json, template, zone_type, color_hex, template_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, vertices_json=excluded.vertices_json, template=excluded.template,
			zone_type=excluded.zone_type, color_hex=excluded.color_hex, template_version=excluded.template_version`,
		r.ID, r.VenueID, r.Name, string(verticesJSON), r.Template, string(r.ZoneType), r.ColorHex, r.TemplateVersion)
	return err
}

func (db *DB) UpdateROI(ctx context.Context, r model.ROI) error {
	verticesJSON, err := json.Marshal(r.Vertices)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `
		UPDATE rois SET name=?, vertices_json=?, template=?, zone_type=?, color_hex=?, template_version=?
		WHERE id=?`,
		r.Name, string(verticesJSON), r.Template, string(r.ZoneType), r.ColorHex, r.TemplateVersion, r.ID)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "roi", r.ID)
}

func (db *DB) DeleteROI(ctx context.Context, roiID string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM rois WHERE id=?`, roiID)
	return err
}
