// Package aggregator implements the Track Aggregator (C2): it fuses
// incoming TrackSamples into per-track UnifiedTrack state on a fixed
// tick, evicting tracks that have gone silent past the configured TTL,
// following the teacher's tick-driven pipeline stage structure
// generalized from physical-track fusion to identity-preserving venue
// tracking (no re-identification across sources, by explicit
// non-goal).
package aggregator

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/venuetrack/engine/internal/geo"
	"github.com/venuetrack/engine/internal/model"
	"github.com/venuetrack/engine/internal/source"
)

// Frame is one tick's fused output: every live track, each already
// classified against the venue's current ROI set.
type Frame struct {
	VenueID string
	Ts      time.Time
	Tracks  []model.UnifiedTrack
	Removed []model.TrackKey // tracks evicted this tick
}

// Listener receives each tick's Frame and any StatusEvents observed.
type Listener interface {
	OnFrame(Frame)
	OnStatus(source.StatusEvent)
}

const trailCap = 50

// Aggregator owns one venue's live track set. Every field below this
// comment is touched only by the goroutine running Run; there is no
// other safe way to read or write them. Consumers that need track
// state from another goroutine subscribe a Listener and keep their own
// copy of the last Frame, which is how the engine and fan-out layers
// do it.
type Aggregator struct {
	venueID       string
	frameInterval time.Duration
	trackTTL      time.Duration
	roiIndex      *geo.Index

	samples chan model.TrackSample
	status  chan source.StatusEvent

	tracks map[model.TrackKey]*model.UnifiedTrack

	// sampleClock is the latest TrackSample.Timestamp ingested so far,
	// the venue's own clock for session math (spec requires visit/queue
	// timing to run on sample time, not wall clock). It only advances
	// when a sample arrives, not on every tick.
	sampleClock time.Time

	listeners []Listener
	log       *slog.Logger
}

// Config configures a new Aggregator.
type Config struct {
	VenueID       string
	FrameInterval time.Duration
	TrackTTL      time.Duration
	ROIIndex      *geo.Index
	IngestBuffer  int
	Log           *slog.Logger
}

// New returns an Aggregator for cfg. Call Run to start its tick loop.
func New(cfg Config) *Aggregator {
	if cfg.IngestBuffer == 0 {
		cfg.IngestBuffer = 1024
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Aggregator{
		venueID:       cfg.VenueID,
		frameInterval: cfg.FrameInterval,
		trackTTL:      cfg.TrackTTL,
		roiIndex:      cfg.ROIIndex,
		samples:       make(chan model.TrackSample, cfg.IngestBuffer),
		status:        make(chan source.StatusEvent, 64),
		tracks:        make(map[model.TrackKey]*model.UnifiedTrack),
		log:           cfg.Log,
	}
}

// Samples returns the channel sources should send TrackSamples on.
func (a *Aggregator) Samples() chan<- model.TrackSample { return a.samples }

// Status returns the channel sources should send StatusEvents on.
func (a *Aggregator) Status() chan<- source.StatusEvent { return a.status }

// AddListener registers l to receive every future tick's Frame and
// StatusEvents. Must be called before Run, or while Run is not
// actively ticking, since listeners is unsynchronized by design (the
// engine wires listeners once at startup).
func (a *Aggregator) AddListener(l Listener) {
	a.listeners = append(a.listeners, l)
}

// Run drains samples and status events and ticks at FrameInterval until
// ctx is cancelled. It is the single writer of a.tracks.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case s := <-a.samples:
			a.ingest(s)
		case ev := <-a.status:
			for _, l := range a.listeners {
				l.OnStatus(ev)
			}
		case <-ticker.C:
			a.tick()
		}
	}
}

func trackKey(s model.TrackSample) model.TrackKey {
	return model.TrackKey(s.SourceID + ":" + s.SourceTrackID)
}

func (a *Aggregator) ingest(s model.TrackSample) {
	key := trackKey(s)
	t, ok := a.tracks[key]
	if !ok {
		t = &model.UnifiedTrack{
			VenueID:     a.venueID,
			TrackKey:    key,
			FirstSeenTs: s.Timestamp,
		}
		a.tracks[key] = t
	}
	t.LatestSample = s
	t.LastSeenTs = s.Timestamp
	t.Trail = append(t.Trail, s)
	if len(t.Trail) > trailCap {
		t.Trail = t.Trail[len(t.Trail)-trailCap:]
	}
	if s.Timestamp.After(a.sampleClock) {
		a.sampleClock = s.Timestamp
	}
}

// tick classifies every live track against the current ROI index,
// evicts tracks silent past the TTL, and publishes a Frame to every
// listener. Frame.Ts and TTL eviction both run on a.sampleClock, the
// latest ingested sample timestamp, not the ticker's wall-clock fire
// time: session math downstream (Visit/Queue Engines) must see a
// consistent sample-time clock, never a mix of the two. Before any
// sample has ever arrived there is nothing to classify or evict, so
// falling back to wall clock here is harmless.
func (a *Aggregator) tick() {
	now := a.sampleClock
	if now.IsZero() {
		now = time.Now()
	}
	frame := Frame{VenueID: a.venueID, Ts: now}

	var evictKeys []model.TrackKey
	for key, t := range a.tracks {
		if now.Sub(t.LastSeenTs) > a.trackTTL {
			evictKeys = append(evictKeys, key)
			continue
		}
		roiIDs := a.roiIndex.Containing(t.LatestSample.X, t.LatestSample.Z)
		t.RoiSet = make(map[string]struct{}, len(roiIDs))
		for _, id := range roiIDs {
			t.RoiSet[id] = struct{}{}
		}
		frame.Tracks = append(frame.Tracks, *t)
	}
	for _, key := range evictKeys {
		delete(a.tracks, key)
	}
	frame.Removed = evictKeys

	sort.Slice(frame.Tracks, func(i, j int) bool {
		return frame.Tracks[i].TrackKey < frame.Tracks[j].TrackKey
	})

	for _, l := range a.listeners {
		l.OnFrame(frame)
	}
}
