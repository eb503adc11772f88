package sqlite

import (
	"context"

	"github.com/venuetrack/engine/internal/model"
)

func (db *DB) GetZoneSettings(ctx context.Context, venueID string) (map[string]model.ZoneSettings, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT roi_id, venue_id, dwell_threshold_sec, engagement_threshold_sec, max_occupancy,
		       visit_end_grace_sec, min_visit_duration_sec, queue_warning_threshold_sec,
		       queue_critical_threshold, is_open, lane_number
		FROM zone_settings WHERE venue_id = ?`, venueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]model.ZoneSettings)
	for rows.Next() {
		var s model.ZoneSettings
		var isOpen int
		if err := rows.Scan(&s.ROIID, &s.VenueID, &s.DwellThresholdSec, &s.EngagementThresholdSec,
			&s.MaxOccupancy, &s.VisitEndGraceSec, &s.MinVisitDurationSec, &s.QueueWarningThresholdSec,
			&s.QueueCriticalThreshold, &isOpen, &s.LaneNumber); err != nil {
			return nil, err
		}
		s.IsOpen = isOpen != 0
		out[s.ROIID] = s
	}
	return out, rows.Err()
}

func (db *DB) UpsertZoneSettings(ctx context.Context, s model.ZoneSettings) error {
	isOpen := 0
	if s.IsOpen {
		isOpen = 1
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO zone_settings (roi_id, venue_id, dwell_threshold_sec, engagement_threshold_sec,
		                            max_occupancy, visit_end_grace_sec, min_visit_duration_sec,
		                            queue_warning_threshold_sec, queue_critical_threshold, is_open, lane_number)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(roi_id) DO UPDATE SET
			dwell_threshold_sec=excluded.dwell_threshold_sec,
			engagement_threshold_sec=excluded.engagement_threshold_sec,
			max_occupancy=excluded.max_occupancy,
			visit_end_grace_sec=excluded.visit_end_grace_sec,
			min_visit_duration_sec=excluded.min_visit_duration_sec,
			queue_warning_threshold_sec=excluded.queue_warning_threshold_sec,
			queue_critical_threshold=excluded.queue_critical_threshold,
			is_open=excluded.is_open, lane_number=excluded.lane_number`,
		s.ROIID, s.VenueID, s.DwellThresholdSec, s.EngagementThresholdSec, s.MaxOccupancy,
		s.VisitEndGraceSec, s.MinVisitDurationSec, s.QueueWarningThresholdSec,
		s.QueueCriticalThreshold, isOpen, s.LaneNumber)
	return err
}

func (db *DB) GetOpenLanes(ctx context.Context, venueID string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT roi_id, is_open FROM zone_settings WHERE venue_id = ? AND lane_number > 0`, venueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var roiID string
		var isOpen int
		if err := rows.Scan(&roiID, &isOpen); err != nil {
			return nil, err
		}
		out[roiID] = isOpen != 0
	}
	return out, rows.Err()
}

func (db *DB) GetZoneLinks(ctx context.Context, venueID string) ([]model.ZoneLink, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT venue_id, queue_roi_id, service_roi_id FROM zone_links WHERE venue_id = ?`, venueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ZoneLink
	for rows.Next() {
		var l model.ZoneLink
		if err := rows.Scan(&l.VenueID, &l.QueueROIID, &l.ServiceROIID); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (db *DB) UpsertZoneLink(ctx context.Context, l model.ZoneLink) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO zone_links (venue_id, queue_roi_id, service_roi_id)
		VALUES (?, ?, ?)
		ON CONFLICT(queue_roi_id, service_roi_id) DO NOTHING`,
		l.VenueID, l.QueueROIID, l.ServiceROIID)
	return err
}

func (db *DB) GetAlertRules(ctx context.Context, roiID string) ([]model.AlertRule, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, roi_id, rule_name, metric, operator, threshold_value, severity, enabled,
		       message_template, quiescence_sec
		FROM alert_rules WHERE roi_id = ?`, roiID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AlertRule
	for rows.Next() {
		var r model.AlertRule
		var metric, op, sev string
		var enabled int
		if err := rows.Scan(&r.ID, &r.ROIID, &r.RuleName, &metric, &op, &r.ThresholdValue,
			&sev, &enabled, &r.MessageTemplate, &r.QuiescenceSec); err != nil {
			return nil, err
		}
		r.Metric = model.AlertMetric(metric)
		r.Operator = model.AlertOperator(op)
		r.Severity = model.Severity(sev)
		r.Enabled = enabled != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func (db *DB) UpsertAlertRule(ctx context.Context, r model.AlertRule) error {
	enabled := 0
	if r.Enabled {
		enabled = 1
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO alert_rules (id, roi_id, rule_name, metric, operator, threshold_value,
		                          severity, enabled, message_template, quiescence_sec)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			rule_name=excluded.rule_name, metric=excluded.metric, operator=excluded.operator,
			threshold_value=excluded.threshold_value, severity=excluded.severity,
			enabled=excluded.enabled, message_template=excluded.message_template,
			quiescence_sec=excluded.quiescence_sec`,
		r.ID, r.ROIID, r.RuleName, string(r.Metric), string(r.Operator), r.ThresholdValue,
		string(r.Severity), enabled, r.MessageTemplate, r.QuiescenceSec)
	return err
}

func (db *DB) DeleteAlertRule(ctx context.Context, ruleID string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM alert_rules WHERE id=?`, ruleID)
	return err
}
