// Package occupancy maintains live per-ROI occupancy counts from the
// Aggregator's frames and samples them on a fixed cadence into
// OccupancySnapshot records, plus derives the rolling metrics
// (dwell-time percentile, visit rate, average time spent) the Alert
// Rule engine evaluates. Percentile math follows the teacher's
// ComputeSpeedPercentiles, built on gonum's empirical quantile
// estimator.
package occupancy

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/venuetrack/engine/internal/model"
)

// Counter tracks live occupancy per ROI for one venue, updated every
// tick from the Aggregator's Frame.
type Counter struct {
	counts map[string]int // roiID -> live count, recomputed each tick
}

// NewCounter returns an empty Counter.
func NewCounter() *Counter {
	return &Counter{counts: make(map[string]int)}
}

// Update recomputes every ROI's occupancy from the current set of
// tracks, replacing the previous tick's counts wholesale.
func (c *Counter) Update(tracks []model.UnifiedTrack) {
	next := make(map[string]int, len(c.counts))
	for _, t := range tracks {
		for roiID := range t.RoiSet {
			next[roiID]++
		}
	}
	c.counts = next
}

// Count returns the current occupancy of roiID.
func (c *Counter) Count(roiID string) int {
	return c.counts[roiID]
}

// Snapshot returns an OccupancySnapshot for every ROI with non-zero
// occupancy plus any explicitly requested zero-occupancy ROI, so a ROI
// that has emptied out still gets a zero data point.
func (c *Counter) Snapshot(venueID string, ts time.Time, knownROIs []string) []model.OccupancySnapshot {
	seen := make(map[string]bool, len(knownROIs))
	out := make([]model.OccupancySnapshot, 0, len(knownROIs))
	for _, roiID := range knownROIs {
		seen[roiID] = true
		out = append(out, model.OccupancySnapshot{VenueID: venueID, ROIID: roiID, Ts: ts, Count: c.counts[roiID]})
	}
	for roiID, count := range c.counts {
		if !seen[roiID] {
			out = append(out, model.OccupancySnapshot{VenueID: venueID, ROIID: roiID, Ts: ts, Count: count})
		}
	}
	return out
}

// RollingMetrics accumulates the recent-history windows the Alert Rule
// engine needs: dwell-time samples (in seconds) and visit counts,
// scoped per ROI.
type RollingMetrics struct {
	dwellSamples map[string][]float64
	visitCounts  map[string]int
	maxSamples   int
}

// NewRollingMetrics returns a RollingMetrics retaining at most
// maxSamples dwell-time observations per ROI.
func NewRollingMetrics(maxSamples int) *RollingMetrics {
	if maxSamples <= 0 {
		maxSamples = 500
	}
	return &RollingMetrics{
		dwellSamples: make(map[string][]float64),
		visitCounts:  make(map[string]int),
		maxSamples:   maxSamples,
	}
}

// RecordVisitClosed folds a closed visit's duration into roiID's
// rolling window and bumps its visit count.
func (m *RollingMetrics) RecordVisitClosed(roiID string, durationMs int64) {
	samples := append(m.dwellSamples[roiID], float64(durationMs)/1000)
	if len(samples) > m.maxSamples {
		samples = samples[len(samples)-m.maxSamples:]
	}
	m.dwellSamples[roiID] = samples
	m.visitCounts[roiID]++
}

// DwellPercentile returns the pth percentile (0..1) dwell time in
// seconds for roiID's recent visits, or 0 if there is no history yet.
func (m *RollingMetrics) DwellPercentile(roiID string, p float64) float64 {
	samples := m.dwellSamples[roiID]
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// AverageTimeSpent returns the mean dwell time in seconds for roiID's
// recent visits, or 0 if there is no history yet.
func (m *RollingMetrics) AverageTimeSpent(roiID string) float64 {
	samples := m.dwellSamples[roiID]
	if len(samples) == 0 {
		return 0
	}
	return stat.Mean(samples, nil)
}

// VisitCount returns the total number of visits recorded for roiID
// since the engine started (a monotonically increasing counter, not a
// windowed rate).
func (m *RollingMetrics) VisitCount(roiID string) int {
	return m.visitCounts[roiID]
}
