// Package source defines the Track Source contract (C1): anything
// that can emit TrackSamples for a venue onto a channel, reporting its
// own connectivity status the way the aggregator needs to detect a
// degraded feed.
package source

import (
	"context"

	"github.com/venuetrack/engine/internal/model"
)

// Status names a source's current connectivity state.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusDegraded     Status = "degraded"
)

// StatusEvent reports a source's connectivity transition, consumed by
// the aggregator to mark a venue's LiDAR feed degraded in fan-out
// lidar_status messages.
type StatusEvent struct {
	VenueID  string
	SourceID string
	Status   Status
	Detail   string
}

// Source is implemented by every track feed: a live LiDAR concentrator
// connection, an MQTT subscription, or the deterministic mock
// generator. Start blocks until ctx is cancelled or a fatal error
// occurs, emitting samples and status events on the given channels for
// as long as it runs.
type Source interface {
	// ID identifies this source instance, used as TrackSample.SourceID
	// and in StatusEvents.
	ID() string

	// Start begins producing samples, never returning until ctx is done
	// or a fatal error occurs. Samples and status events are delivered
	// on the provided channels with a non-blocking send: a full samples
	// channel causes the oldest buffered sample to be dropped rather
	// than the source blocking, per spec.md's ingest backpressure policy.
	Start(ctx context.Context, samples chan<- model.TrackSample, status chan<- StatusEvent) error
}
