// Package httpapi serves bgpd's operational HTTP surface: liveness,
// readiness, and Prometheus metrics, in the same shape the teacher's
// internal/http server exposes for its Kafka/Postgres pipelines.
package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ListenerStatus reports whether the BGP accept loop (session.Manager)
// is currently bound to its listen address.
type ListenerStatus interface {
	Listening() bool
}

// DBChecker abstracts the optional Postgres snapshot writer's health
// check for testability.
type DBChecker interface {
	Ping(ctx context.Context) error
}

// ExportChecker abstracts the optional Kafka route-event publisher's
// health check for testability.
type ExportChecker interface {
	Ready() bool
}

// UpdateCapture abstracts the active session's diagnostic raw-UPDATE
// capture buffer (session.Manager.CapturedUpdates) for testability.
type UpdateCapture interface {
	CapturedUpdates() ([][]byte, error)
}

type Server struct {
	srv      *http.Server
	listener ListenerStatus
	db       DBChecker
	export   ExportChecker
	capture  UpdateCapture
	logger   *zap.Logger
}

func NewServer(addr string, listener ListenerStatus, db DBChecker, export ExportChecker, capture UpdateCapture, logger *zap.Logger) *Server {
	s := &Server{
		listener: listener,
		db:       db,
		export:   export,
		capture:  capture,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.HandleFunc("/debug/captured-updates", s.handleCapturedUpdates)
	mux.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("HTTP server listening", zap.String("addr", s.srv.Addr))
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	allOK := true

	if s.listener != nil && s.listener.Listening() {
		checks["bgp_listener"] = "ok"
	} else {
		checks["bgp_listener"] = "not_listening"
		allOK = false
	}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			checks["snapshot_db"] = "error"
			allOK = false
		} else {
			checks["snapshot_db"] = "ok"
		}
	}

	if s.export != nil {
		if s.export.Ready() {
			checks["kafka_export"] = "ok"
		} else {
			checks["kafka_export"] = "not_ready"
			allOK = false
		}
	}

	w.Header().Set("Content-Type", "application/json")
	status := "ready"
	httpStatus := http.StatusOK
	if !allOK {
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"checks": checks,
	})
}

// handleCapturedUpdates serves the active session's diagnostic raw-UPDATE
// capture buffer, base64-encoded, for replay or inspection. Returns an
// empty list if capture is disabled or no session is connected.
func (s *Server) handleCapturedUpdates(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.capture == nil {
		json.NewEncoder(w).Encode(map[string]any{"updates": []string{}})
		return
	}
	entries, err := s.capture.CapturedUpdates()
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	encoded := make([]string, len(entries))
	for i, e := range entries {
		encoded[i] = base64.StdEncoding.EncodeToString(e)
	}
	json.NewEncoder(w).Encode(map[string]any{"updates": encoded})
}
