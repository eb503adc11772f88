// Package store defines the persistence contract (C8) the engine uses
// to read venue configuration and durably record derived events. It
// never appears on the engine's hot path except as an async write
// target: every write is idempotent by primary key so a retried write
// after a crash never double-counts.
package store

import (
	"context"

	"github.com/venuetrack/engine/internal/model"
)

// Store is implemented by every persistence backend the engine can use.
// Read methods serve the HTTP control plane and the engine's startup
// and ROI-refresh paths; write methods are called from each venue's
// single-writer tick loop as visits, queue sessions, occupancy samples
// and ledger entries are derived.
type Store interface {
	// Configuration reads.
	GetVenue(ctx context.Context, venueID string) (*model.Venue, error)
	ListVenues(ctx context.Context) ([]model.Venue, error)
	GetROIs(ctx context.Context, venueID string) ([]model.ROI, error)
	GetZoneSettings(ctx context.Context, venueID string) (map[string]model.ZoneSettings, error)
	GetZoneLinks(ctx context.Context, venueID string) ([]model.ZoneLink, error)
	GetOpenLanes(ctx context.Context, venueID string) (map[string]bool, error)
	GetAlertRules(ctx context.Context, roiID string) ([]model.AlertRule, error)

	// Venue and ROI CRUD, backing the HTTP control plane.
	CreateVenue(ctx context.Context, v model.Venue) error
	UpdateVenue(ctx context.Context, v model.Venue) error
	DeleteVenue(ctx context.Context, venueID string) error
	CreateROI(ctx context.Context, r model.ROI) error
	UpdateROI(ctx context.Context, r model.ROI) error
	DeleteROI(ctx context.Context, roiID string) error
	UpsertZoneSettings(ctx context.Context, s model.ZoneSettings) error
	UpsertZoneLink(ctx context.Context, l model.ZoneLink) error
	UpsertAlertRule(ctx context.Context, r model.AlertRule) error
	DeleteAlertRule(ctx context.Context, ruleID string) error

	// Derived-event writes, each idempotent on its primary key.
	InsertZoneVisit(ctx context.Context, v model.ZoneVisit) error
	CloseZoneVisit(ctx context.Context, visitID string, endTs int64, durationMs int64) error
	InsertQueueSession(ctx context.Context, q model.QueueSession) error
	UpdateQueueSession(ctx context.Context, q model.QueueSession) error
	InsertOccupancySnapshot(ctx context.Context, s model.OccupancySnapshot) error
	InsertLedgerEntry(ctx context.Context, e model.LedgerEntry) error
	AcknowledgeLedgerEntry(ctx context.Context, entryID, by string) error

	// Query surfaces for the HTTP control plane and dashboard.
	ListZoneVisits(ctx context.Context, roiID string, limit int) ([]model.ZoneVisit, error)
	ListQueueSessions(ctx context.Context, queueROIID string, limit int) ([]model.QueueSession, error)
	ListOccupancySnapshots(ctx context.Context, roiID string, since int64, limit int) ([]model.OccupancySnapshot, error)
	ListLedgerEntries(ctx context.Context, venueID string, limit int) ([]model.LedgerEntry, error)

	Close() error
}
