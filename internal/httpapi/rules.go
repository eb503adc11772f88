package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/venuetrack/engine/internal/model"
)

func (s *Server) handleListAlertRules(w http.ResponseWriter, r *http.Request) {
	roiID := chi.URLParam(r, "roiID")
	rules, err := s.store.GetAlertRules(r.Context(), roiID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (s *Server) handleCreateAlertRule(w http.ResponseWriter, r *http.Request) {
	roiID := chi.URLParam(r, "roiID")
	var rule model.AlertRule
	if err := decodeJSON(r, &rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rule.ROIID = roiID
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if err := s.store.UpsertAlertRule(r.Context(), rule); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.refreshRules(r, roiID)
	writeJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleUpdateAlertRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleID")
	var rule model.AlertRule
	if err := decodeJSON(r, &rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rule.ID = ruleID
	if err := s.store.UpsertAlertRule(r.Context(), rule); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.refreshRules(r, rule.ROIID)
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteAlertRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleID")
	roiID := r.URL.Query().Get("roiId")
	if err := s.store.DeleteAlertRule(r.Context(), ruleID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if roiID != "" {
		s.refreshRules(r, roiID)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) refreshRules(r *http.Request, roiID string) {
	if s.hooks == nil {
		return
	}
	if err := s.hooks.RefreshAlertRules(r.Context(), roiID); err != nil {
		s.log.Warn("httpapi: alert rule refresh failed", "roi", roiID, "err", err)
	}
}
