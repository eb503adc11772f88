// Package httpapi implements the HTTP control plane (C9): the REST
// surface spec.md §6 enumerates, plus the /tracking websocket upgrade
// routed through internal/fanout. Handlers are thin: they validate
// input, call Store or the engine hooks, and encode JSON — all
// derived-state computation lives in the engine's own packages.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/venuetrack/engine/internal/fanout"
	"github.com/venuetrack/engine/internal/store"
)

// VenueHooks lets the HTTP layer signal the running engine about
// configuration changes without importing the engine package
// directly: engine.Engine implements it, and cmd/venuetrackd passes the
// engine to NewServer.
type VenueHooks interface {
	// RefreshROIs reloads venueID's ROI set from the Store into C3.
	// Called after any ROI CRUD mutation.
	RefreshROIs(ctx context.Context, venueID string) error
	// InvalidateThresholds reloads roiID's ZoneSettings into the Visit
	// Engine's threshold cache. Called after a ZoneSettings PUT.
	InvalidateThresholds(ctx context.Context, venueID, roiID string) error
	// SetLaneOpen updates a queue lane's open/closed state and signals
	// the Queue Engine.
	SetLaneOpen(ctx context.Context, venueID, queueROIID string, isOpen bool) error
	// LiveOccupancy returns roiID's current occupancy from C6.
	LiveOccupancy(venueID, roiID string) (int, bool)
	// RefreshAlertRules reloads roiID's AlertRules into the Alert Rule
	// engine. Called after AlertRule CRUD.
	RefreshAlertRules(ctx context.Context, roiID string) error
}

// Server wires Store reads/writes, VenueHooks, and the live fan-out
// registry into an http.Handler.
type Server struct {
	store    store.Store
	hooks    VenueHooks
	hubs     *fanout.Registry
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// NewServer returns a Server. hubs may be nil only in tests that don't
// exercise the /tracking route.
func NewServer(st store.Store, hooks VenueHooks, hubs *fanout.Registry, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		store: st,
		hooks: hooks,
		hubs:  hubs,
		log:   log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Routes builds the full chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(loggingMiddleware(s.log))

	r.Get("/healthz", s.handleHealthz)

	r.Route("/api", func(r chi.Router) {
		r.Get("/venues", s.handleListVenues)
		r.Post("/venues", s.handleCreateVenue)

		r.Route("/venues/{venueID}", func(r chi.Router) {
			r.Get("/regions", s.handleListRegions)
			r.Put("/", s.handleUpdateVenue)
			r.Delete("/", s.handleDeleteVenue)

			r.Get("/checkout/live-status", s.handleCheckoutLiveStatus)
			r.Get("/checkout/active-sessions", s.handleCheckoutActiveSessions)
			r.Post("/checkout/set-lane-state", s.handleSetLaneState)

			r.Get("/ledger", s.handleListLedger)
			r.Get("/ledger/unacknowledged-count", s.handleUnacknowledgedCount)
		})

		r.Route("/roi", func(r chi.Router) {
			r.Post("/", s.handleCreateROI)
			r.Route("/{roiID}", func(r chi.Router) {
				r.Put("/", s.handleUpdateROI)
				r.Delete("/", s.handleDeleteROI)

				r.Get("/settings", s.handleGetZoneSettings)
				r.Put("/settings", s.handlePutZoneSettings)

				r.Get("/occupancy/live", s.handleOccupancyLive)
				r.Get("/kpis", s.handleROIKpis)

				r.Get("/rules", s.handleListAlertRules)
				r.Post("/rules", s.handleCreateAlertRule)
			})
		})

		r.Route("/rules/{ruleID}", func(r chi.Router) {
			r.Put("/", s.handleUpdateAlertRule)
			r.Delete("/", s.handleDeleteAlertRule)
		})

		r.Put("/ledger/{entryID}/acknowledge", s.handleAcknowledgeLedger)
	})

	if s.hubs != nil {
		r.Get("/tracking", s.handleTracking)
	}

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTracking(w http.ResponseWriter, r *http.Request) {
	venueID := r.URL.Query().Get("venueId")
	if venueID == "" {
		http.Error(w, "venueId query parameter required", http.StatusBadRequest)
		return
	}
	hub := s.hubs.HubFor(venueID)
	if err := hub.Upgrade(w, r, s.upgrader); err != nil {
		s.log.Warn("httpapi: websocket upgrade failed", "venue", venueID, "err", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
