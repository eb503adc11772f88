package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListLedger(w http.ResponseWriter, r *http.Request) {
	venueID := chi.URLParam(r, "venueID")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := s.store.ListLedgerEntries(r.Context(), venueID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	roiID := r.URL.Query().Get("roiId")
	severity := r.URL.Query().Get("severity")
	ackFilter := r.URL.Query().Get("acknowledged")

	filtered := entries[:0:0]
	for _, e := range entries {
		if roiID != "" && e.ROIID != roiID {
			continue
		}
		if severity != "" && string(e.Severity) != severity {
			continue
		}
		if ackFilter != "" {
			want := ackFilter == "true"
			if e.Acknowledged != want {
				continue
			}
		}
		filtered = append(filtered, e)
	}

	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	if offset > len(filtered) {
		offset = len(filtered)
	}

	writeJSON(w, http.StatusOK, filtered[offset:])
}

func (s *Server) handleAcknowledgeLedger(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "entryID")
	var body struct {
		By string `json:"by"`
	}
	_ = decodeJSON(r, &body)

	if err := s.store.AcknowledgeLedgerEntry(r.Context(), entryID, body.By); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnacknowledgedCount(w http.ResponseWriter, r *http.Request) {
	venueID := chi.URLParam(r, "venueID")
	entries, err := s.store.ListLedgerEntries(r.Context(), venueID, 10000)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	count := 0
	for _, e := range entries {
		if !e.Acknowledged {
			count++
		}
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}
