package httpapi

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/venuetrack/engine/internal/model"
)

// laneStatus is the per-lane payload GET .../checkout/live-status
// returns, joining a linked queue/service ROI pair with live C6 counts.
type laneStatus struct {
	QueueZoneID   string `json:"queueZoneId"`
	ServiceZoneID string `json:"serviceZoneId"`
	QueueCount    int    `json:"queueCount"`
	Status        string `json:"status"` // "open" or "closed"
}

func (s *Server) handleCheckoutLiveStatus(w http.ResponseWriter, r *http.Request) {
	venueID := chi.URLParam(r, "venueID")
	ctx := r.Context()

	rois, err := s.store.GetROIs(ctx, venueID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	links, err := s.store.GetZoneLinks(ctx, venueID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	openLanes, err := s.store.GetOpenLanes(ctx, venueID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	roisByID := make(map[string]model.ROI, len(rois))
	for _, roi := range rois {
		roisByID[roi.ID] = roi
	}

	statuses := make([]laneStatus, 0, len(links))
	for _, link := range links {
		count := 0
		if s.hooks != nil {
			if c, ok := s.hooks.LiveOccupancy(venueID, link.QueueROIID); ok {
				count = c
			}
		}
		status := "closed"
		if openLanes[link.QueueROIID] {
			status = "open"
		}
		statuses = append(statuses, laneStatus{
			QueueZoneID:   link.QueueROIID,
			ServiceZoneID: link.ServiceROIID,
			QueueCount:    count,
			Status:        status,
		})
	}

	sort.Slice(statuses, func(i, j int) bool {
		return centroidX(roisByID[statuses[i].QueueZoneID]) < centroidX(roisByID[statuses[j].QueueZoneID])
	})

	writeJSON(w, http.StatusOK, statuses)
}

func centroidX(roi model.ROI) float64 {
	if len(roi.Vertices) == 0 {
		return 0
	}
	var sum float64
	for _, v := range roi.Vertices {
		sum += v.X
	}
	return sum / float64(len(roi.Vertices))
}

func (s *Server) handleCheckoutActiveSessions(w http.ResponseWriter, r *http.Request) {
	venueID := chi.URLParam(r, "venueID")
	links, err := s.store.GetZoneLinks(r.Context(), venueID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var sessions []model.QueueSession
	for _, link := range links {
		all, err := s.store.ListQueueSessions(r.Context(), link.QueueROIID, 500)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		for _, q := range all {
			if q.ServiceExitTs == nil && !q.IsAbandoned {
				sessions = append(sessions, q)
			}
		}
	}
	writeJSON(w, http.StatusOK, sessions)
}

type setLaneStateRequest struct {
	QueueZoneID string `json:"queueZoneId"`
	IsOpen      bool   `json:"isOpen"`
}

func (s *Server) handleSetLaneState(w http.ResponseWriter, r *http.Request) {
	venueID := chi.URLParam(r, "venueID")
	var req setLaneStateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if s.hooks == nil {
		writeError(w, http.StatusServiceUnavailable, "lane state unavailable")
		return
	}
	if err := s.hooks.SetLaneOpen(r.Context(), venueID, req.QueueZoneID, req.IsOpen); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
