package aggregator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/venuetrack/engine/internal/geo"
	"github.com/venuetrack/engine/internal/model"
	"github.com/venuetrack/engine/internal/source"
)

type recordingListener struct {
	mu       sync.Mutex
	frames   []Frame
	statuses []source.StatusEvent
}

func (r *recordingListener) OnFrame(f Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
}

func (r *recordingListener) OnStatus(ev source.StatusEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, ev)
}

func (r *recordingListener) lastFrame() (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return Frame{}, false
	}
	return r.frames[len(r.frames)-1], true
}

func newTestIndex(t *testing.T) *geo.Index {
	t.Helper()
	idx, rejected := geo.NewIndex([]model.ROI{
		{ID: "roi-1", Vertices: []model.Vertex{{X: 0, Z: 0}, {X: 10, Z: 0}, {X: 10, Z: 10}, {X: 0, Z: 10}}},
	})
	require.Empty(t, rejected)
	return idx
}

func TestAggregatorClassifiesTrackIntoROI(t *testing.T) {
	idx := newTestIndex(t)
	agg := New(Config{
		VenueID: "v1", FrameInterval: 10 * time.Millisecond, TrackTTL: time.Second, ROIIndex: idx,
	})
	listener := &recordingListener{}
	agg.AddListener(listener)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go agg.Run(ctx)

	agg.Samples() <- model.TrackSample{SourceID: "mock", SourceTrackID: "t1", X: 5, Z: 5, Timestamp: time.Now()}

	require.Eventually(t, func() bool {
		f, ok := listener.lastFrame()
		return ok && len(f.Tracks) == 1
	}, time.Second, 5*time.Millisecond)

	f, _ := listener.lastFrame()
	_, inROI := f.Tracks[0].RoiSet["roi-1"]
	assert.True(t, inROI)
}

func TestAggregatorEvictsStaleTrack(t *testing.T) {
	idx := newTestIndex(t)
	agg := New(Config{
		VenueID: "v1", FrameInterval: 5 * time.Millisecond, TrackTTL: 20 * time.Millisecond, ROIIndex: idx,
	})
	listener := &recordingListener{}
	agg.AddListener(listener)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go agg.Run(ctx)

	base := time.Now()
	agg.Samples() <- model.TrackSample{SourceID: "mock", SourceTrackID: "t1", X: 5, Z: 5, Timestamp: base}

	require.Eventually(t, func() bool {
		f, ok := listener.lastFrame()
		return ok && len(f.Tracks) == 1
	}, time.Second, 5*time.Millisecond)

	// TTL eviction runs on sample time, not wall clock: a second track's
	// far-future timestamp carries the venue's sample clock well past
	// t1's TTL, evicting it without needing real time to pass.
	agg.Samples() <- model.TrackSample{SourceID: "mock", SourceTrackID: "t2", X: 1, Z: 1, Timestamp: base.Add(time.Minute)}

	require.Eventually(t, func() bool {
		f, ok := listener.lastFrame()
		if !ok {
			return false
		}
		for _, tr := range f.Tracks {
			if tr.TrackKey == model.TrackKey("mock:t1") {
				return false
			}
		}
		return true
	}, time.Second, 5*time.Millisecond, "track should be evicted once the sample clock advances past the TTL")
}

func TestAggregatorForwardsStatusEvents(t *testing.T) {
	idx := newTestIndex(t)
	agg := New(Config{VenueID: "v1", FrameInterval: time.Second, TrackTTL: time.Minute, ROIIndex: idx})
	listener := &recordingListener{}
	agg.AddListener(listener)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go agg.Run(ctx)

	agg.Status() <- source.StatusEvent{SourceID: "mock", Status: source.StatusDisconnected}

	require.Eventually(t, func() bool {
		listener.mu.Lock()
		defer listener.mu.Unlock()
		return len(listener.statuses) == 1
	}, time.Second, 5*time.Millisecond)
}
