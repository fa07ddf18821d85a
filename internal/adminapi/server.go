// Package adminapi exposes the server's operational surface over HTTP:
// connection-manager status as JSON, a liveness probe, and Prometheus
// metrics.
package adminapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hchdb/hchdb/internal/connmgr"
	"github.com/hchdb/hchdb/internal/metrics"
)

// Server is the admin HTTP server.
type Server struct {
	manager    *connmgr.Manager
	collector  *metrics.Collector
	logger     *slog.Logger
	httpServer *http.Server
	startTime  time.Time
}

// New creates an admin API server bound to manager's state and
// collector's registry.
func New(manager *connmgr.Manager, collector *metrics.Collector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{manager: manager, collector: collector, logger: logger, startTime: time.Now()}
}

// Start begins serving on host:port. It returns once the listener is
// bound; serving happens in a background goroutine.
func (s *Server) Start(host string, port int) error {
	r := mux.NewRouter()
	r.HandleFunc("/status", s.statusHandler).Methods("GET")
	r.HandleFunc("/healthz", s.healthzHandler).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(s.collector.Registry, promhttp.HandlerOpts{})).Methods("GET")

	addr := fmt.Sprintf("%s:%d", host, port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s for admin api: %w", addr, err)
	}

	s.logger.Info("admin api listening", "addr", addr)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("admin api server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts the admin server down.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	stats := s.manager.Stats()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"current_connections":  stats.CurrentConnections,
		"max_connections":      stats.MaxConnections,
		"total_connections":    stats.TotalConnections,
		"rejected_connections": stats.RejectedConnections,
		"uptime_seconds":       stats.UptimeSeconds,
		"connection_rate":      stats.ConnectionRate,
		"rejection_rate":       stats.RejectionRate,
		"go_version":           runtime.Version(),
		"goroutines":           runtime.NumGoroutine(),
		"memory_mb":            float64(mem.Alloc) / 1024 / 1024,
	})
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
