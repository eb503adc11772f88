package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/venuetrack/engine/internal/model"
)

func (s *Server) handleListVenues(w http.ResponseWriter, r *http.Request) {
	venues, err := s.store.ListVenues(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, venues)
}

func (s *Server) handleCreateVenue(w http.ResponseWriter, r *http.Request) {
	var v model.Venue
	if err := decodeJSON(r, &v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	v.CreatedAt, v.UpdatedAt = now, now

	if err := s.store.CreateVenue(r.Context(), v); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleUpdateVenue(w http.ResponseWriter, r *http.Request) {
	venueID := chi.URLParam(r, "venueID")
	var v model.Venue
	if err := decodeJSON(r, &v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	v.ID = venueID
	v.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateVenue(r.Context(), v); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleDeleteVenue(w http.ResponseWriter, r *http.Request) {
	venueID := chi.URLParam(r, "venueID")
	if err := s.store.DeleteVenue(r.Context(), venueID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListRegions(w http.ResponseWriter, r *http.Request) {
	venueID := chi.URLParam(r, "venueID")
	rois, err := s.store.GetROIs(r.Context(), venueID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rois)
}

func (s *Server) handleCreateROI(w http.ResponseWriter, r *http.Request) {
	var roi model.ROI
	if err := decodeJSON(r, &roi); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if roi.ID == "" {
		roi.ID = uuid.NewString()
	}
	if err := s.store.CreateROI(r.Context(), roi); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.hooks != nil {
		if err := s.hooks.RefreshROIs(r.Context(), roi.VenueID); err != nil {
			s.log.Warn("httpapi: ROI index refresh failed", "venue", roi.VenueID, "err", err)
		}
	}
	writeJSON(w, http.StatusCreated, roi)
}

func (s *Server) handleUpdateROI(w http.ResponseWriter, r *http.Request) {
	roiID := chi.URLParam(r, "roiID")
	var roi model.ROI
	if err := decodeJSON(r, &roi); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	roi.ID = roiID
	if err := s.store.UpdateROI(r.Context(), roi); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.hooks != nil {
		if err := s.hooks.RefreshROIs(r.Context(), roi.VenueID); err != nil {
			s.log.Warn("httpapi: ROI index refresh failed", "venue", roi.VenueID, "err", err)
		}
	}
	writeJSON(w, http.StatusOK, roi)
}

func (s *Server) handleDeleteROI(w http.ResponseWriter, r *http.Request) {
	roiID := chi.URLParam(r, "roiID")
	venueID := r.URL.Query().Get("venueId")
	if err := s.store.DeleteROI(r.Context(), roiID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.hooks != nil && venueID != "" {
		if err := s.hooks.RefreshROIs(r.Context(), venueID); err != nil {
			s.log.Warn("httpapi: ROI index refresh failed", "venue", venueID, "err", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetZoneSettings(w http.ResponseWriter, r *http.Request) {
	roiID := chi.URLParam(r, "roiID")
	venueID := r.URL.Query().Get("venueId")
	if venueID == "" {
		writeError(w, http.StatusBadRequest, "venueId query parameter required")
		return
	}
	all, err := s.store.GetZoneSettings(r.Context(), venueID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	settings, ok := all[roiID]
	if !ok {
		writeError(w, http.StatusNotFound, "no zone settings for this ROI")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handlePutZoneSettings(w http.ResponseWriter, r *http.Request) {
	roiID := chi.URLParam(r, "roiID")
	var settings model.ZoneSettings
	if err := decodeJSON(r, &settings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	settings.ROIID = roiID
	if err := s.store.UpsertZoneSettings(r.Context(), settings); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.hooks != nil {
		if err := s.hooks.InvalidateThresholds(r.Context(), settings.VenueID, roiID); err != nil {
			s.log.Warn("httpapi: threshold cache refresh failed", "roi", roiID, "err", err)
		}
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleOccupancyLive(w http.ResponseWriter, r *http.Request) {
	roiID := chi.URLParam(r, "roiID")
	venueID := r.URL.Query().Get("venueId")
	if s.hooks == nil {
		writeError(w, http.StatusServiceUnavailable, "live occupancy unavailable")
		return
	}
	count, ok := s.hooks.LiveOccupancy(venueID, roiID)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]int{"currentOccupancy": 0})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"currentOccupancy": count})
}
