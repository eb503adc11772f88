package dashboard

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venuetrack/engine/internal/model"
)

// fakeStore implements only the read methods dashboard.Server calls;
// every write/other read panics if exercised, so a missing wire-up
// shows up immediately in a test failure.
type fakeStore struct {
	rois      []model.ROI
	snapshots map[string][]model.OccupancySnapshot
	sessions  map[string][]model.QueueSession
	visits    map[string][]model.ZoneVisit
}

func (f *fakeStore) GetVenue(ctx context.Context, venueID string) (*model.Venue, error) { panic("unused") }
func (f *fakeStore) ListVenues(ctx context.Context) ([]model.Venue, error)               { panic("unused") }
func (f *fakeStore) GetROIs(ctx context.Context, venueID string) ([]model.ROI, error) {
	return f.rois, nil
}
func (f *fakeStore) GetZoneSettings(ctx context.Context, venueID string) (map[string]model.ZoneSettings, error) {
	panic("unused")
}
func (f *fakeStore) GetZoneLinks(ctx context.Context, venueID string) ([]model.ZoneLink, error) {
	panic("unused")
}
func (f *fakeStore) GetOpenLanes(ctx context.Context, venueID string) (map[string]bool, error) {
	panic("unused")
}
func (f *fakeStore) GetAlertRules(ctx context.Context, roiID string) ([]model.AlertRule, error) {
	panic("unused")
}
func (f *fakeStore) CreateVenue(ctx context.Context, v model.Venue) error { panic("unused") }
func (f *fakeStore) UpdateVenue(ctx context.Context, v model.Venue) error { panic("unused") }
func (f *fakeStore) DeleteVenue(ctx context.Context, venueID string) error { panic("unused") }
func (f *fakeStore) CreateROI(ctx context.Context, r model.ROI) error      { panic("unused") }
func (f *fakeStore) UpdateROI(ctx context.Context, r model.ROI) error      { panic("unused") }
func (f *fakeStore) DeleteROI(ctx context.Context, roiID string) error     { panic("unused") }
func (f *fakeStore) UpsertZoneSettings(ctx context.Context, s model.ZoneSettings) error {
	panic("unused")
}
func (f *fakeStore) UpsertZoneLink(ctx context.Context, l model.ZoneLink) error { panic("unused") }
func (f *fakeStore) UpsertAlertRule(ctx context.Context, r model.AlertRule) error {
	panic("unused")
}
func (f *fakeStore) DeleteAlertRule(ctx context.Context, ruleID string) error { panic("unused") }
func (f *fakeStore) InsertZoneVisit(ctx context.Context, v model.ZoneVisit) error {
	panic("unused")
}
func (f *fakeStore) CloseZoneVisit(ctx context.Context, visitID string, endTs int64, durationMs int64) error {
	panic("unused")
}
func (f *fakeStore) InsertQueueSession(ctx context.Context, q model.QueueSession) error {
	panic("unused")
}
func (f *fakeStore) UpdateQueueSession(ctx context.Context, q model.QueueSession) error {
	panic("unused")
}
func (f *fakeStore) InsertOccupancySnapshot(ctx context.Context, s model.OccupancySnapshot) error {
	panic("unused")
}
func (f *fakeStore) InsertLedgerEntry(ctx context.Context, e model.LedgerEntry) error {
	panic("unused")
}
func (f *fakeStore) AcknowledgeLedgerEntry(ctx context.Context, entryID, by string) error {
	panic("unused")
}
func (f *fakeStore) ListZoneVisits(ctx context.Context, roiID string, limit int) ([]model.ZoneVisit, error) {
	return f.visits[roiID], nil
}
func (f *fakeStore) ListQueueSessions(ctx context.Context, queueROIID string, limit int) ([]model.QueueSession, error) {
	return f.sessions[queueROIID], nil
}
func (f *fakeStore) ListOccupancySnapshots(ctx context.Context, roiID string, since int64, limit int) ([]model.OccupancySnapshot, error) {
	return f.snapshots[roiID], nil
}
func (f *fakeStore) ListLedgerEntries(ctx context.Context, venueID string, limit int) ([]model.LedgerEntry, error) {
	panic("unused")
}
func (f *fakeStore) Close() error { return nil }

func int64p(v int64) *int64 { return &v }

func TestOccupancyChartRendersSeriesPerROI(t *testing.T) {
	now := time.Now()
	st := &fakeStore{
		rois: []model.ROI{{ID: "roi-1", VenueID: "v1", Name: "Entrance"}},
		snapshots: map[string][]model.OccupancySnapshot{
			"roi-1": {
				{ROIID: "roi-1", Ts: now.Add(-time.Minute), Count: 2},
				{ROIID: "roi-1", Ts: now, Count: 3},
			},
		},
	}
	srv := NewServer(st)

	req := httptest.NewRequest(http.MethodGet, "/venues/v1/occupancy", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.True(t, bytes.Contains(rec.Body.Bytes(), []byte("Entrance")))
}

func TestOccupancyChartReturns404ForUnknownVenue(t *testing.T) {
	srv := NewServer(&fakeStore{})
	req := httptest.NewRequest(http.MethodGet, "/venues/ghost/occupancy", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQueueWaitChartAggregatesAverageAndMax(t *testing.T) {
	st := &fakeStore{
		rois: []model.ROI{{ID: "queue-1", VenueID: "v1", Name: "Checkout Queue", ZoneType: model.ZoneTypeQueue}},
		sessions: map[string][]model.QueueSession{
			"queue-1": {
				{QueueROIID: "queue-1", WaitingTimeMs: int64p(10000)},
				{QueueROIID: "queue-1", WaitingTimeMs: int64p(30000)},
			},
		},
	}
	srv := NewServer(st)

	req := httptest.NewRequest(http.MethodGet, "/venues/v1/queues", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.Contains(rec.Body.Bytes(), []byte("Checkout Queue")))
}

func TestQueueWaitChartReturns404WithNoCompletedSessions(t *testing.T) {
	st := &fakeStore{rois: []model.ROI{{ID: "queue-1", VenueID: "v1", Name: "Checkout Queue"}}}
	srv := NewServer(st)
	req := httptest.NewRequest(http.MethodGet, "/venues/v1/queues", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDwellHistogramBucketsVisits(t *testing.T) {
	st := &fakeStore{
		visits: map[string][]model.ZoneVisit{
			"roi-1": {
				{ROIID: "roi-1", DurationMs: int64p(5000)},
				{ROIID: "roi-1", DurationMs: int64p(35000)},
				{ROIID: "roi-1", DurationMs: int64p(999000)},
			},
		},
	}
	srv := NewServer(st)

	req := httptest.NewRequest(http.MethodGet, "/rois/roi-1/dwell", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.Contains(rec.Body.Bytes(), []byte("Dwell Time Distribution")))
}
