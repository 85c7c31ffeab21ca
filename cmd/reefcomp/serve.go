package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/banshee-data/marine-composite/internal/httputil"
	"github.com/banshee-data/marine-composite/internal/observability"
	"github.com/banshee-data/marine-composite/internal/store"
	"github.com/banshee-data/marine-composite/internal/version"
)

func handleServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	listen := fs.String("listen", ":8080", "Listen address")
	dbPath := fs.String("db", "reefcomp.db", "Provenance database path")
	fs.Parse(args)

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	db, err := store.OpenMigrated(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	collector, err := observability.NewCollector(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalf("Failed to register metrics: %v", err)
	}
	mux, err := newServeMux(db, collector)
	if err != nil {
		log.Fatalf("Failed to build routes: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              *listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()
	log.Printf("serving on %s", *listen)

	<-ctx.Done()
	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
}

func newServeMux(db *store.DB, collector *observability.Collector) (*http.ServeMux, error) {
	mux := http.NewServeMux()
	if err := db.AttachAdminRoutes(mux); err != nil {
		return nil, err
	}
	mux.Handle("/metrics", collector.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			httputil.Unavailable(w, err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(version.String() + "\n"))
	})
	return mux, nil
}
