package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/venuetrack/engine/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestVenueCRUD(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	v := model.Venue{ID: "v1", Name: "Flagship", WidthMeters: 40, DepthMeters: 20,
		DefaultDwellThresholdSec: 60, DefaultEngagementSec: 120, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, db.CreateVenue(ctx, v))

	got, err := db.GetVenue(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, "Flagship", got.Name)

	list, err := db.ListVenues(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = db.GetVenue(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestROICRUDWithVertices(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, db.CreateVenue(ctx, model.Venue{ID: "v1", Name: "V", CreatedAt: now, UpdatedAt: now}))

	roi := model.ROI{
		ID: "roi-1", VenueID: "v1", Name: "Entrance",
		Vertices: []model.Vertex{{X: 0, Z: 0}, {X: 10, Z: 0}, {X: 10, Z: 10}, {X: 0, Z: 10}},
		ZoneType: model.ZoneTypeGeneric,
	}
	require.NoError(t, db.CreateROI(ctx, roi))

	rois, err := db.GetROIs(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, rois, 1)
	assert.Equal(t, roi.Vertices, rois[0].Vertices)
}

func TestZoneVisitIdempotentInsert(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	v := model.ZoneVisit{ID: "visit-1", VenueID: "v1", ROIID: "roi-1", TrackKey: "t1", StartTs: time.Now().UTC()}
	require.NoError(t, db.InsertZoneVisit(ctx, v))
	require.NoError(t, db.InsertZoneVisit(ctx, v), "re-insert of same ID must be a no-op, not an error")

	visits, err := db.ListZoneVisits(ctx, "roi-1", 10)
	require.NoError(t, err)
	assert.Len(t, visits, 1)
}

func TestCloseZoneVisit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	start := time.Now().UTC()
	require.NoError(t, db.InsertZoneVisit(ctx, model.ZoneVisit{
		ID: "visit-1", VenueID: "v1", ROIID: "roi-1", TrackKey: "t1", StartTs: start,
	}))
	end := start.Add(5 * time.Second)
	require.NoError(t, db.CloseZoneVisit(ctx, "visit-1", end.UnixNano(), 5000))

	visits, err := db.ListZoneVisits(ctx, "roi-1", 10)
	require.NoError(t, err)
	require.Len(t, visits, 1)
	require.NotNil(t, visits[0].DurationMs)
	assert.EqualValues(t, 5000, *visits[0].DurationMs)
}

func TestLedgerAcknowledge(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.InsertLedgerEntry(ctx, model.LedgerEntry{
		ID: "entry-1", VenueID: "v1", EventType: "alert_fired", Severity: model.SeverityWarning,
		Title: "Overcrowded", Message: "occupancy above threshold", Timestamp: time.Now().UTC(),
	}))
	require.NoError(t, db.AcknowledgeLedgerEntry(ctx, "entry-1", "operator-1"))

	entries, err := db.ListLedgerEntries(ctx, "v1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Acknowledged)
	require.NotNil(t, entries[0].AcknowledgedBy)
	assert.Equal(t, "operator-1", *entries[0].AcknowledgedBy)

	err = db.AcknowledgeLedgerEntry(ctx, "missing", "operator-1")
	assert.ErrorIs(t, err, ErrNotFound)
}
