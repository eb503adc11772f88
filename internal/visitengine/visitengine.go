// Package visitengine implements the Visit Engine (C4): a per-
// (trackKey, roiID) three-state machine (Absent -> Tentative ->
// Active, with a grace window back to Absent) that turns raw ROI
// membership into durable ZoneVisit records, following the teacher's
// tentative/confirmed hit-miss counter discipline in
// l5tracks/tracking.go, generalized from track confirmation to
// visit confirmation.
package visitengine

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/venuetrack/engine/internal/model"
)

// State names a (trackKey, roiID) pair's position in the visit state
// machine.
type State int

const (
	StateAbsent State = iota
	StateTentative
	StateActive
	StateGrace
)

// Event is emitted when a visit opens or closes, consumed by the
// occupancy/alert layer and the fan-out layer.
type Event struct {
	Type  string // "visit_opened" or "visit_closed"
	Visit model.ZoneVisit
}

type visitState struct {
	state       State
	visit       model.ZoneVisit
	lastInROITs time.Time // last tick this pair was observed inside the ROI
	graceUntil  time.Time
}

// Thresholds bundles the per-ROI settings the Visit Engine needs,
// resolved once per tick from model.ZoneSettings plus venue/system
// defaults.
type Thresholds struct {
	GraceSec       int
	MinDurationSec int
	DwellSec       int
	EngagementSec  int
}

// Engine owns the visit state for one venue. Like the Aggregator, it is
// single-writer: only the goroutine that calls Evaluate touches it.
type Engine struct {
	venueID string
	states  map[model.TrackKey]map[string]*visitState
	log     *slog.Logger
}

// New returns an Engine for venueID.
func New(venueID string, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{venueID: venueID, states: make(map[model.TrackKey]map[string]*visitState), log: log}
}

// Evaluate advances the state machine for every (trackKey, roiID) pair
// implied by tracksInROIs (the current frame's membership) at time now,
// returning every visit_opened/visit_closed event produced this tick.
// thresholdsByROI supplies per-ROI settings; a missing entry uses
// system defaults.
func (e *Engine) Evaluate(now time.Time, tracksInROIs map[model.TrackKey]map[string]struct{}, thresholdsByROI map[string]Thresholds) []Event {
	var events []Event

	seen := make(map[model.TrackKey]map[string]bool)
	for trackKey, rois := range tracksInROIs {
		if seen[trackKey] == nil {
			seen[trackKey] = make(map[string]bool)
		}
		for roiID := range rois {
			seen[trackKey][roiID] = true
			events = append(events, e.observe(now, trackKey, roiID, resolveThresholds(thresholdsByROI, roiID))...)
		}
	}

	// Any (trackKey, roiID) pair not observed this tick but still
	// tracked as Active/Grace/Tentative must be advanced toward closure.
	for trackKey, rois := range e.states {
		for roiID, vs := range rois {
			if seen[trackKey][roiID] {
				continue
			}
			events = append(events, e.miss(now, trackKey, roiID, vs, resolveThresholds(thresholdsByROI, roiID))...)
		}
	}

	e.prune()
	return events
}

func (e *Engine) pairState(trackKey model.TrackKey, roiID string) *visitState {
	rois, ok := e.states[trackKey]
	if !ok {
		rois = make(map[string]*visitState)
		e.states[trackKey] = rois
	}
	vs, ok := rois[roiID]
	if !ok {
		vs = &visitState{state: StateAbsent}
		rois[roiID] = vs
	}
	return vs
}

func (e *Engine) observe(now time.Time, trackKey model.TrackKey, roiID string, th Thresholds) []Event {
	vs := e.pairState(trackKey, roiID)
	vs.lastInROITs = now

	switch vs.state {
	case StateAbsent:
		vs.state = StateTentative
		vs.visit = model.ZoneVisit{
			ID:       uuid.NewString(),
			VenueID:  e.venueID,
			ROIID:    roiID,
			TrackKey: trackKey,
			StartTs:  now,
		}
		if th.MinDurationSec == 0 {
			// No minimum duration: Tentative collapses into Active on the
			// first in-ROI sample.
			vs.state = StateActive
			return []Event{{Type: "visit_opened", Visit: vs.visit}}
		}
		return nil

	case StateTentative:
		vs.state = StateActive
		return []Event{{Type: "visit_opened", Visit: vs.visit}}

	case StateGrace:
		// Re-entered before the grace window expired: the visit
		// continues uninterrupted, never closed.
		vs.state = StateActive
		return nil

	case StateActive:
		return nil
	}
	return nil
}

func (e *Engine) miss(now time.Time, trackKey model.TrackKey, roiID string, vs *visitState, th Thresholds) []Event {
	switch vs.state {
	case StateTentative:
		// Never confirmed; drop silently, no visit record was ever opened.
		vs.state = StateAbsent
		return nil

	case StateActive:
		if th.GraceSec == 0 {
			// No grace window: the first miss closes the visit.
			return e.closeVisit(vs, th)
		}
		vs.state = StateGrace
		vs.graceUntil = vs.lastInROITs.Add(time.Duration(th.GraceSec) * time.Second)
		return nil

	case StateGrace:
		if now.Before(vs.graceUntil) {
			return nil
		}
		return e.closeVisit(vs, th)

	case StateAbsent:
		return nil
	}
	return nil
}

// closeVisit ends vs at its last observed in-ROI sample, not the tick
// that detected the closure (grace expiration or track eviction both
// fire on a later tick than the visit's true end).
func (e *Engine) closeVisit(vs *visitState, th Thresholds) []Event {
	vs.state = StateAbsent
	end := vs.lastInROITs
	durationMs := end.Sub(vs.visit.StartTs).Milliseconds()
	if durationMs < int64(th.MinDurationSec)*1000 {
		// Too short to count as a visit: no visit_closed event at all,
		// even though visit_opened already fired for it.
		return nil
	}
	return []Event{{Type: "visit_closed", Visit: closedVisit(vs.visit, end, durationMs, th)}}
}

func closedVisit(v model.ZoneVisit, end time.Time, durationMs int64, th Thresholds) model.ZoneVisit {
	endTs := end
	v.EndTs = &endTs
	v.DurationMs = &durationMs
	v.IsDwell = durationMs >= int64(th.DwellSec)*1000
	v.IsEngagement = durationMs >= int64(th.EngagementSec)*1000
	return v
}

// prune drops tracks with no remaining ROI state so the map does not
// grow without bound across a venue's operating lifetime.
func (e *Engine) prune() {
	for trackKey, rois := range e.states {
		for roiID, vs := range rois {
			if vs.state == StateAbsent {
				delete(rois, roiID)
			}
		}
		if len(rois) == 0 {
			delete(e.states, trackKey)
		}
	}
}

// ForceCloseTrack closes every open/active/grace visit for trackKey,
// used when a track is evicted by the Aggregator's TTL so a departed
// shopper's visits are not left open forever. Each visit closes at its
// own last in-ROI sample, same as a grace-expiry close.
func (e *Engine) ForceCloseTrack(trackKey model.TrackKey, thresholdsByROI map[string]Thresholds) []Event {
	rois, ok := e.states[trackKey]
	if !ok {
		return nil
	}
	var events []Event
	for roiID, vs := range rois {
		th := resolveThresholds(thresholdsByROI, roiID)
		switch vs.state {
		case StateActive, StateGrace:
			events = append(events, e.closeVisit(vs, th)...)
		case StateTentative:
			vs.state = StateAbsent
		}
	}
	e.prune()
	return events
}

// resolveThresholds returns roiID's configured Thresholds, or the
// system defaults if the caller never supplied an entry for it. A
// present entry is trusted field-for-field, including explicit zeros
// (e.g. MinDurationSec: 0 to count every visit, GraceSec: 0 for no
// grace window): only a wholly absent entry falls back to defaults.
func resolveThresholds(thresholdsByROI map[string]Thresholds, roiID string) Thresholds {
	if th, ok := thresholdsByROI[roiID]; ok {
		return th
	}
	return Thresholds{
		GraceSec:       model.DefaultVisitEndGraceSec,
		MinDurationSec: model.DefaultMinVisitDurationSec,
		DwellSec:       model.DefaultDwellThresholdSec,
		EngagementSec:  model.DefaultEngagementSec,
	}
}
