package occupancy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/venuetrack/engine/internal/model"
)

func track(key model.TrackKey, rois ...string) model.UnifiedTrack {
	set := make(map[string]struct{}, len(rois))
	for _, r := range rois {
		set[r] = struct{}{}
	}
	return model.UnifiedTrack{TrackKey: key, RoiSet: set}
}

func TestCounterUpdateRecomputesFromScratch(t *testing.T) {
	c := NewCounter()
	c.Update([]model.UnifiedTrack{track("a", "roi-1"), track("b", "roi-1", "roi-2")})
	assert.Equal(t, 2, c.Count("roi-1"))
	assert.Equal(t, 1, c.Count("roi-2"))

	// next tick nobody is in roi-2 anymore
	c.Update([]model.UnifiedTrack{track("a", "roi-1")})
	assert.Equal(t, 1, c.Count("roi-1"))
	assert.Equal(t, 0, c.Count("roi-2"))
}

func TestSnapshotIncludesKnownZeroOccupancyROIs(t *testing.T) {
	c := NewCounter()
	c.Update([]model.UnifiedTrack{track("a", "roi-1")})

	snaps := c.Snapshot("v1", time.Now(), []string{"roi-1", "roi-2"})
	byROI := map[string]int{}
	for _, s := range snaps {
		byROI[s.ROIID] = s.Count
	}
	assert.Equal(t, 1, byROI["roi-1"])
	assert.Equal(t, 0, byROI["roi-2"])
}

func TestRollingMetricsDwellPercentileAndAverage(t *testing.T) {
	m := NewRollingMetrics(0)
	for _, secs := range []int64{10, 20, 30, 40, 50} {
		m.RecordVisitClosed("roi-1", secs*1000)
	}
	assert.InDelta(t, 30, m.AverageTimeSpent("roi-1"), 0.01)
	assert.InDelta(t, 50, m.DwellPercentile("roi-1", 1.0), 0.01)
	assert.Equal(t, 5, m.VisitCount("roi-1"))
}

func TestRollingMetricsEmptyROIReturnsZero(t *testing.T) {
	m := NewRollingMetrics(0)
	assert.Equal(t, float64(0), m.AverageTimeSpent("nonexistent"))
	assert.Equal(t, float64(0), m.DwellPercentile("nonexistent", 0.5))
}

func TestRollingMetricsCapsSampleWindow(t *testing.T) {
	m := NewRollingMetrics(3)
	for i := int64(1); i <= 5; i++ {
		m.RecordVisitClosed("roi-1", i*1000)
	}
	// only the last 3 samples (3,4,5) remain, average is 4
	assert.InDelta(t, 4, m.AverageTimeSpent("roi-1"), 0.01)
	assert.Equal(t, 5, m.VisitCount("roi-1"), "visit count is cumulative even as the sample window evicts")
}
