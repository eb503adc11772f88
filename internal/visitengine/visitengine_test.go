package visitengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/venuetrack/engine/internal/model"
)

const trackA model.TrackKey = "mock:a"
const roiID = "roi-1"

func inROI(present bool) map[model.TrackKey]map[string]struct{} {
	m := map[model.TrackKey]map[string]struct{}{}
	if present {
		m[trackA] = map[string]struct{}{roiID: {}}
	}
	return m
}

func TestSingleDwellOpensAndClosesAfterThreshold(t *testing.T) {
	e := New("v1", nil)
	th := map[string]Thresholds{roiID: {GraceSec: 3, MinDurationSec: 1, DwellSec: 5}}
	start := time.Now()

	// tick 1: tentative, no event
	evs := e.Evaluate(start, inROI(true), th)
	assert.Empty(t, evs)

	// tick 2: confirmed -> visit_opened
	evs = e.Evaluate(start.Add(time.Second), inROI(true), th)
	require.Len(t, evs, 1)
	assert.Equal(t, "visit_opened", evs[0].Type)

	// stays present every second up to and including t=6, then leaves
	for sec := 2; sec <= 6; sec++ {
		evs = e.Evaluate(start.Add(time.Duration(sec)*time.Second), inROI(true), th)
		assert.Empty(t, evs, "still active while present")
	}
	lastInROI := start.Add(6 * time.Second)

	leftAt := lastInROI.Add(time.Second)
	evs = e.Evaluate(leftAt, inROI(false), th)
	assert.Empty(t, evs, "grace window not yet expired")

	afterGrace := leftAt.Add(4 * time.Second)
	evs = e.Evaluate(afterGrace, inROI(false), th)
	require.Len(t, evs, 1)
	assert.Equal(t, "visit_closed", evs[0].Type)
	require.NotNil(t, evs[0].Visit.EndTs)
	assert.Equal(t, lastInROI, *evs[0].Visit.EndTs, "endTs is the last in-ROI sample, not the grace-expiration tick")
	require.NotNil(t, evs[0].Visit.DurationMs)
	assert.EqualValues(t, 6000, *evs[0].Visit.DurationMs)
	assert.True(t, evs[0].Visit.IsDwell, "visit exceeded the dwell threshold")
}

// TestGraceWindowAnchoredOnLastInROISample checks the grace window is
// measured from the last in-ROI sample, not the tick that first
// detects the miss: a late-arriving miss tick must not extend it.
func TestGraceWindowAnchoredOnLastInROISample(t *testing.T) {
	e := New("v1", nil)
	th := map[string]Thresholds{roiID: {GraceSec: 2, MinDurationSec: 1}}
	start := time.Now()

	e.Evaluate(start, inROI(true), th)
	e.Evaluate(start.Add(time.Second), inROI(true), th) // opens, lastInROITs = start+1s

	// the miss is only detected 3 seconds after the track actually left,
	// well past a grace window anchored on the last in-ROI sample
	missDetectedAt := start.Add(4 * time.Second)
	evs := e.Evaluate(missDetectedAt, inROI(false), th)
	assert.Empty(t, evs, "first miss only transitions to Grace")

	evs = e.Evaluate(missDetectedAt.Add(time.Millisecond), inROI(false), th)
	require.Len(t, evs, 1, "grace window (anchored at start+1s, +2s) had already elapsed by the time the miss was detected")
	assert.Equal(t, "visit_closed", evs[0].Type)
	assert.Equal(t, start.Add(time.Second), *evs[0].Visit.EndTs)
}

func TestGraceRescueReopensWithoutClosing(t *testing.T) {
	e := New("v1", nil)
	th := map[string]Thresholds{roiID: {GraceSec: 3, MinDurationSec: 1}}
	start := time.Now()

	e.Evaluate(start, inROI(true), th)
	evs := e.Evaluate(start.Add(time.Second), inROI(true), th)
	require.Len(t, evs, 1)
	assert.Equal(t, "visit_opened", evs[0].Type)

	// briefly leaves, then returns within the grace window
	leftAt := start.Add(2 * time.Second)
	evs = e.Evaluate(leftAt, inROI(false), th)
	assert.Empty(t, evs)

	backAt := leftAt.Add(time.Second)
	evs = e.Evaluate(backAt, inROI(true), th)
	assert.Empty(t, evs, "rescue within grace must not reopen or close the visit")
}

func TestGraceExpiryClosesVisit(t *testing.T) {
	e := New("v1", nil)
	th := map[string]Thresholds{roiID: {GraceSec: 2, MinDurationSec: 1}}
	start := time.Now()

	e.Evaluate(start, inROI(true), th)
	e.Evaluate(start.Add(time.Second), inROI(true), th)

	leftAt := start.Add(2 * time.Second)
	e.Evaluate(leftAt, inROI(false), th)

	evs := e.Evaluate(leftAt.Add(3*time.Second), inROI(false), th)
	require.Len(t, evs, 1)
	assert.Equal(t, "visit_closed", evs[0].Type)
}

func TestVisitShorterThanMinDurationProducesNoCloseEvent(t *testing.T) {
	e := New("v1", nil)
	th := map[string]Thresholds{roiID: {GraceSec: 0, MinDurationSec: 10}}
	start := time.Now()

	e.Evaluate(start, inROI(true), th)
	e.Evaluate(start.Add(time.Second), inROI(true), th) // opens

	leftAt := start.Add(2 * time.Second)
	e.Evaluate(leftAt, inROI(false), th) // GraceSec 0: this miss closes it, too short for visit_closed
	evs := e.Evaluate(leftAt.Add(time.Millisecond), inROI(false), th)
	assert.Empty(t, evs, "visit under MinDurationSec should not emit visit_closed")
}

func TestForceCloseTrackClosesActiveVisit(t *testing.T) {
	e := New("v1", nil)
	th := map[string]Thresholds{roiID: {GraceSec: 3, MinDurationSec: 1}}
	start := time.Now()

	e.Evaluate(start, inROI(true), th)
	e.Evaluate(start.Add(time.Second), inROI(true), th)

	evs := e.ForceCloseTrack(trackA, th)
	require.Len(t, evs, 1)
	assert.Equal(t, "visit_closed", evs[0].Type)
}

// TestZeroMinDurationCollapsesTentativeImmediately checks that an
// explicit MinDurationSec: 0 is trusted as-is (any duration counts),
// distinct from a missing thresholds entry which falls back to
// model.DefaultMinVisitDurationSec: the first in-ROI sample opens the
// visit with no Tentative step.
func TestZeroMinDurationCollapsesTentativeImmediately(t *testing.T) {
	e := New("v1", nil)
	th := map[string]Thresholds{roiID: {GraceSec: 0, MinDurationSec: 0}}
	start := time.Now()

	evs := e.Evaluate(start, inROI(true), th)
	require.Len(t, evs, 1, "MinDurationSec: 0 opens the visit on the first in-ROI sample")
	assert.Equal(t, "visit_opened", evs[0].Type)
	e.Evaluate(start.Add(time.Millisecond), inROI(true), th)

	evs = e.Evaluate(start.Add(2*time.Millisecond), inROI(false), th)
	require.Len(t, evs, 1, "MinDurationSec: 0 must not be coerced back to the system default")
	assert.Equal(t, "visit_closed", evs[0].Type)
}

func TestResolveThresholdsDefaultsOnlyWhenEntryMissing(t *testing.T) {
	byROI := map[string]Thresholds{roiID: {}}

	configured := resolveThresholds(byROI, roiID)
	assert.Zero(t, configured.GraceSec, "a present entry is trusted even when every field is zero")

	fallback := resolveThresholds(byROI, "unconfigured-roi")
	assert.Equal(t, model.DefaultVisitEndGraceSec, fallback.GraceSec)
	assert.Equal(t, model.DefaultMinVisitDurationSec, fallback.MinDurationSec)
}
