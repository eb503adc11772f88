// Command venuetrackd runs the venue-tracking engine: it opens the
// sqlite store, starts every venue found in it, and serves the HTTP
// control plane, read-only KPI dashboard, metrics, and gRPC frame export until
// signaled to stop.
package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/venuetrack/engine/internal/config"
	"github.com/venuetrack/engine/internal/dashboard"
	"github.com/venuetrack/engine/internal/engine"
	"github.com/venuetrack/engine/internal/export"
	"github.com/venuetrack/engine/internal/fanout"
	"github.com/venuetrack/engine/internal/httpapi"
	"github.com/venuetrack/engine/internal/metrics"
	"github.com/venuetrack/engine/internal/store/sqlite"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("config", "err", err)
		os.Exit(1)
	}

	db, err := sqlite.Open(cfg.DBPath, log)
	if err != nil {
		log.Error("open database", "path", cfg.DBPath, "err", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hubs := fanout.NewRegistry(log)
	publisher := export.NewPublisher(log)
	eng := engine.New(cfg, db, hubs, publisher, log)

	venues, err := db.ListVenues(ctx)
	if err != nil {
		log.Error("list venues", "err", err)
		os.Exit(1)
	}
	for _, v := range venues {
		if err := eng.StartVenue(ctx, v.ID); err != nil {
			log.Error("start venue", "venue", v.ID, "err", err)
			continue
		}
		log.Info("venue started", "venue", v.ID)
	}

	var wg sync.WaitGroup

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	dashboardSrv := dashboard.NewServer(db)
	mux.Handle("/dashboard/", http.StripPrefix("/dashboard", dashboardSrv.Routes()))
	httpapiSrv := httpapi.NewServer(db, eng, hubs, log)
	mux.Handle("/", httpapiSrv.Routes())
	if err := db.AttachAdminRoutes(mux, "venuetrack"); err != nil {
		log.Error("attach admin routes", "err", err)
	}

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server", "err", err)
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Error("grpc listen", "addr", cfg.GRPCAddr, "err", err)
		} else {
			grpcSrv = grpc.NewServer()
			export.RegisterService(grpcSrv, export.NewServer(publisher))
			wg.Add(1)
			go func() {
				defer wg.Done()
				log.Info("grpc listening", "addr", cfg.GRPCAddr)
				if err := grpcSrv.Serve(lis); err != nil {
					log.Error("grpc server", "err", err)
				}
			}()
		}
	}

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "err", err)
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	for _, v := range venues {
		eng.StopVenue(v.ID)
	}

	wg.Wait()
	log.Info("shutdown complete")
}
