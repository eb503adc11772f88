// Package queueengine implements the Queue Engine (C5): it watches
// visit_opened/visit_closed events on queue- and service-typed ROIs
// and turns them into QueueSession records, completing a session when
// the same track enters a linked service ROI within the configured
// linger window, and marking it abandoned otherwise. The linger window
// is checked as data on every tick rather than scheduled, the same
// "timer as data" discipline the Visit Engine uses for its grace
// window.
package queueengine

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/venuetrack/engine/internal/model"
)

// Event is emitted when a queue session is created, completed, or
// marked abandoned.
type Event struct {
	Type    string // "queue_entered", "queue_completed", "queue_abandoned"
	Session model.QueueSession
}

type pendingSession struct {
	session     model.QueueSession
	lingerUntil time.Time // set once the track leaves the queue ROI
	leftQueue   bool
}

// Engine owns queue-session state for one venue. Single-writer, like
// the Aggregator and Visit Engine.
type Engine struct {
	venueID   string
	queueROIs map[string]struct{} // roiID, zoneType == queue
	links     map[string]string   // queueROIID -> serviceROIID, optional
	openLanes map[string]bool     // queueROIID -> isOpen
	byTrack   map[model.TrackKey]*pendingSession
	log       *slog.Logger
}

// New returns an Engine for venueID. rois supplies queue-ROI identity
// (zoneType == queue), links the optional queue->service pairing, and
// openLanes the lanes currently accepting new sessions.
func New(venueID string, rois []model.ROI, links []model.ZoneLink, openLanes map[string]bool, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{venueID: venueID, byTrack: make(map[model.TrackKey]*pendingSession), log: log}
	e.SetROIs(rois)
	e.SetLinks(links)
	e.SetOpenLanes(openLanes)
	return e
}

// SetROIs replaces the set of ROIs the Engine treats as queue ROIs,
// e.g. after a ROI CRUD change.
func (e *Engine) SetROIs(rois []model.ROI) {
	m := make(map[string]struct{}, len(rois))
	for _, roi := range rois {
		if roi.ZoneType == model.ZoneTypeQueue {
			m[roi.ID] = struct{}{}
		}
	}
	e.queueROIs = m
}

// SetLinks replaces the queue->service ROI mapping, e.g. after a ROI
// CRUD change. A queue ROI absent from links has no configured service
// ROI; its sessions never complete and always close as abandoned,
// either at once in OnVisitClosed (a short wait) or in Tick once the
// linger window has run out.
func (e *Engine) SetLinks(links []model.ZoneLink) {
	m := make(map[string]string, len(links))
	for _, l := range links {
		m[l.QueueROIID] = l.ServiceROIID
	}
	e.links = m
}

// SetOpenLanes replaces the full set of open queue lanes, e.g. at
// venue startup.
func (e *Engine) SetOpenLanes(openLanes map[string]bool) {
	m := make(map[string]bool, len(openLanes))
	for k, v := range openLanes {
		m[k] = v
	}
	e.openLanes = m
}

// SetLaneOpen updates a single lane's open/closed state, called after
// a checkout/set-lane-state request.
func (e *Engine) SetLaneOpen(queueROIID string, isOpen bool) {
	if e.openLanes == nil {
		e.openLanes = make(map[string]bool)
	}
	e.openLanes[queueROIID] = isOpen
}

// IsQueueROI reports whether roiID is configured as a queue ROI.
func (e *Engine) IsQueueROI(roiID string) bool {
	_, ok := e.queueROIs[roiID]
	return ok
}

// ServiceROIFor returns the service ROI linked to queueROIID, if any.
func (e *Engine) ServiceROIFor(queueROIID string) (string, bool) {
	s, ok := e.links[queueROIID]
	return s, ok && s != ""
}

// OnVisitOpened handles a visit_opened event from the Visit Engine for
// queue or service ROIs. Events for any other ROI are ignored.
func (e *Engine) OnVisitOpened(now time.Time, v model.ZoneVisit) []Event {
	if _, ok := e.queueROIs[v.ROIID]; ok {
		return e.onQueueEntered(now, v)
	}
	for queueROIID, serviceROIID := range e.links {
		if serviceROIID == v.ROIID {
			return e.onServiceEntered(now, v, queueROIID)
		}
	}
	return nil
}

// onQueueEntered creates a QueueSession iff the lane is open. The
// zone visit itself was already recorded by the Visit Engine
// regardless; a closed lane only withholds the session record.
func (e *Engine) onQueueEntered(now time.Time, v model.ZoneVisit) []Event {
	if !e.openLanes[v.ROIID] {
		return nil
	}
	ps := &pendingSession{session: model.QueueSession{
		ID:           uuid.NewString(),
		VenueID:      e.venueID,
		QueueROIID:   v.ROIID,
		TrackKey:     v.TrackKey,
		QueueEntryTs: v.StartTs,
	}}
	e.byTrack[v.TrackKey] = ps
	return []Event{{Type: "queue_entered", Session: ps.session}}
}

func (e *Engine) onServiceEntered(now time.Time, v model.ZoneVisit, queueROIID string) []Event {
	ps, ok := e.byTrack[v.TrackKey]
	if !ok || ps.session.QueueROIID != queueROIID || !ps.leftQueue {
		// No matching pending queue session, or the track is still
		// physically inside the queue ROI (can't be "serviced" yet).
		return nil
	}
	serviceROIID := v.ROIID
	ps.session.ServiceROIID = &serviceROIID
	ps.session.ServiceEntryTs = &v.StartTs
	return nil
}

// OnVisitClosed handles a visit_closed event. Closing a queue-ROI visit
// starts the linger window; closing a linked service-ROI visit
// completes the session if one is pending for that track.
func (e *Engine) OnVisitClosed(now time.Time, v model.ZoneVisit, lingerSec int) []Event {
	ps, ok := e.byTrack[v.TrackKey]
	if !ok {
		return nil
	}

	if v.ROIID == ps.session.QueueROIID && !ps.leftQueue {
		ps.leftQueue = true
		ps.session.QueueExitTs = v.EndTs
		if v.DurationMs != nil {
			waitMs := *v.DurationMs
			ps.session.WaitingTimeMs = &waitMs
		}

		if _, linked := e.ServiceROIFor(v.ROIID); !linked {
			// No service ROI configured for this lane at all: it can
			// never complete. A wait short enough to have plausibly been
			// a walkthrough rather than real queueing abandons right
			// away; a longer wait still rides out the linger window
			// before abandoning, same as the linked case.
			minCompletionMs := int64(model.DefaultMinCompletionSec) * 1000
			if ps.session.WaitingTimeMs != nil && *ps.session.WaitingTimeMs < minCompletionMs {
				ps.session.IsAbandoned = true
				delete(e.byTrack, v.TrackKey)
				return []Event{{Type: "queue_abandoned", Session: ps.session}}
			}
		}

		ps.lingerUntil = now.Add(time.Duration(lingerSec) * time.Second)
		return nil
	}

	if ps.session.ServiceROIID != nil && v.ROIID == *ps.session.ServiceROIID {
		ps.session.ServiceExitTs = v.EndTs
		delete(e.byTrack, v.TrackKey)
		return []Event{{Type: "queue_completed", Session: ps.session}}
	}

	return nil
}

// Tick checks every pending session's linger window, marking any that
// has expired without a service-ROI entry as abandoned. It must be
// called once per aggregator tick.
func (e *Engine) Tick(now time.Time) []Event {
	var events []Event
	for trackKey, ps := range e.byTrack {
		if !ps.leftQueue || ps.session.ServiceEntryTs != nil {
			continue
		}
		if now.Before(ps.lingerUntil) {
			continue
		}
		ps.session.IsAbandoned = true
		events = append(events, Event{Type: "queue_abandoned", Session: ps.session})
		delete(e.byTrack, trackKey)
	}
	return events
}
