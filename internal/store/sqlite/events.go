package sqlite

import (
	"context"
	"time"

	"github.com/venuetrack/engine/internal/model"
)

// InsertZoneVisit records a newly opened visit. Re-inserting the same
// ID is a no-op, giving the tick loop idempotent writes across crash
// recovery, matching the teacher's InsertTrack upsert contract.
func (db *DB) InsertZoneVisit(ctx context.Context, v model.ZoneVisit) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO zone_visits (id, venue_id, roi_id, track_key, start_ts, end_ts, duration_ms,
		                          is_dwell, is_engagement)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		v.ID, v.VenueID, v.ROIID, string(v.TrackKey), v.StartTs, v.EndTs, v.DurationMs,
		boolToInt(v.IsDwell), boolToInt(v.IsEngagement))
	return err
}

// CloseZoneVisit sets the end timestamp and duration of an open visit.
// It is idempotent: closing an already-closed visit with the same
// values is harmless.
func (db *DB) CloseZoneVisit(ctx context.Context, visitID string, endTsUnixNano int64, durationMs int64) error {
	endTs := time.Unix(0, endTsUnixNano).UTC()
	_, err := db.ExecContext(ctx, `
		UPDATE zone_visits SET end_ts = ?, duration_ms = ?
		WHERE id = ?`,
		endTs, durationMs, visitID)
	return err
}

func (db *DB) InsertQueueSession(ctx context.Context, q model.QueueSession) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO queue_sessions (id, venue_id, queue_roi_id, service_roi_id, track_key,
		                             queue_entry_ts, queue_exit_ts, waiting_time_ms,
		                             service_entry_ts, service_exit_ts, is_abandoned)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		q.ID, q.VenueID, q.QueueROIID, q.ServiceROIID, string(q.TrackKey),
		q.QueueEntryTs, q.QueueExitTs, q.WaitingTimeMs, q.ServiceEntryTs, q.ServiceExitTs,
		boolToInt(q.IsAbandoned))
	return err
}

func (db *DB) UpdateQueueSession(ctx context.Context, q model.QueueSession) error {
	_, err := db.ExecContext(ctx, `
		UPDATE queue_sessions SET service_roi_id=?, queue_exit_ts=?, waiting_time_ms=?,
			service_entry_ts=?, service_exit_ts=?, is_abandoned=?
		WHERE id=?`,
		q.ServiceROIID, q.QueueExitTs, q.WaitingTimeMs, q.ServiceEntryTs, q.ServiceExitTs,
		boolToInt(q.IsAbandoned), q.ID)
	return err
}

func (db *DB) InsertOccupancySnapshot(ctx context.Context, s model.OccupancySnapshot) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO occupancy_snapshots (venue_id, roi_id, ts, count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(roi_id, ts) DO UPDATE SET count=excluded.count`,
		s.VenueID, s.ROIID, s.Ts, s.Count)
	return err
}

func (db *DB) InsertLedgerEntry(ctx context.Context, e model.LedgerEntry) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, venue_id, roi_id, rule_id, event_type, severity, title,
		                             message, metric_name, metric_value, threshold_value,
		                             acknowledged, acknowledged_at, acknowledged_by, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		e.ID, e.VenueID, e.ROIID, e.RuleID, e.EventType, string(e.Severity), e.Title, e.Message,
		e.MetricName, e.MetricValue, e.ThresholdValue, boolToInt(e.Acknowledged),
		e.AcknowledgedAt, e.AcknowledgedBy, e.Timestamp)
	return err
}

func (db *DB) AcknowledgeLedgerEntry(ctx context.Context, entryID, by string) error {
	now := time.Now().UTC()
	res, err := db.ExecContext(ctx, `
		UPDATE ledger_entries SET acknowledged=1, acknowledged_at=?, acknowledged_by=?
		WHERE id=?`, now, by, entryID)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "ledger_entry", entryID)
}

func (db *DB) ListZoneVisits(ctx context.Context, roiID string, limit int) ([]model.ZoneVisit, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, venue_id, roi_id, track_key, start_ts, end_ts, duration_ms, is_dwell, is_engagement
		FROM zone_visits WHERE roi_id = ? ORDER BY start_ts DESC LIMIT ?`, roiID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ZoneVisit
	for rows.Next() {
		var v model.ZoneVisit
		var trackKey string
		var isDwell, isEngagement int
		if err := rows.Scan(&v.ID, &v.VenueID, &v.ROIID, &trackKey, &v.StartTs, &v.EndTs,
			&v.DurationMs, &isDwell, &isEngagement); err != nil {
			return nil, err
		}
		v.TrackKey = model.TrackKey(trackKey)
		v.IsDwell = isDwell != 0
		v.IsEngagement = isEngagement != 0
		out = append(out, v)
	}
	return out, rows.Err()
}

func (db *DB) ListQueueSessions(ctx context.Context, queueROIID string, limit int) ([]model.QueueSession, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, venue_id, queue_roi_id, service_roi_id, track_key, queue_entry_ts,
		       queue_exit_ts, waiting_time_ms, service_entry_ts, service_exit_ts, is_abandoned
		FROM queue_sessions WHERE queue_roi_id = ? ORDER BY queue_entry_ts DESC LIMIT ?`,
		queueROIID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.QueueSession
	for rows.Next() {
		var q model.QueueSession
		var trackKey string
		var abandoned int
		if err := rows.Scan(&q.ID, &q.VenueID, &q.QueueROIID, &q.ServiceROIID, &trackKey,
			&q.QueueEntryTs, &q.QueueExitTs, &q.WaitingTimeMs, &q.ServiceEntryTs,
			&q.ServiceExitTs, &abandoned); err != nil {
			return nil, err
		}
		q.TrackKey = model.TrackKey(trackKey)
		q.IsAbandoned = abandoned != 0
		out = append(out, q)
	}
	return out, rows.Err()
}

func (db *DB) ListOccupancySnapshots(ctx context.Context, roiID string, sinceUnixNano int64, limit int) ([]model.OccupancySnapshot, error) {
	since := time.Unix(0, sinceUnixNano).UTC()
	rows, err := db.QueryContext(ctx, `
		SELECT venue_id, roi_id, ts, count FROM occupancy_snapshots
		WHERE roi_id = ? AND ts >= ? ORDER BY ts ASC LIMIT ?`, roiID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.OccupancySnapshot
	for rows.Next() {
		var s model.OccupancySnapshot
		if err := rows.Scan(&s.VenueID, &s.ROIID, &s.Ts, &s.Count); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (db *DB) ListLedgerEntries(ctx context.Context, venueID string, limit int) ([]model.LedgerEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, venue_id, roi_id, rule_id, event_type, severity, title, message,
		       metric_name, metric_value, threshold_value, acknowledged, acknowledged_at,
		       acknowledged_by, timestamp
		FROM ledger_entries WHERE venue_id = ? ORDER BY timestamp DESC LIMIT ?`, venueID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var sev string
		var ack int
		if err := rows.Scan(&e.ID, &e.VenueID, &e.ROIID, &e.RuleID, &e.EventType, &sev,
			&e.Title, &e.Message, &e.MetricName, &e.MetricValue, &e.ThresholdValue, &ack,
			&e.AcknowledgedAt, &e.AcknowledgedBy, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Severity = model.Severity(sev)
		e.Acknowledged = ack != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
