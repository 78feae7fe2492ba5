// Package ops exposes the operational HTTP surface: health and metrics.
// The engine itself is headless; this is the only server it runs.
package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/dmarkov/weather-notify/internal/observability"
)

// Server serves /healthz and /metrics.
type Server struct {
	srv       *http.Server
	logger    *zap.Logger
	cachePing func() error
	startTime time.Time
}

// NewServer creates the ops server on the given port. cachePing is
// optional; when set (memcached backend) its failure degrades health to
// 503 without affecting the engine.
func NewServer(port string, logger *zap.Logger, cachePing func() error) *Server {
	s := &Server{
		logger:    logger,
		cachePing: cachePing,
		startTime: time.Now(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.Handle("/metrics", observability.MetricsHandler()).Methods("GET")

	s.srv = &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

type healthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
	Cache  string `json:"cache,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status: "ok",
		Uptime: time.Since(s.startTime).Round(time.Second).String(),
	}
	code := http.StatusOK
	if s.cachePing != nil {
		if err := s.cachePing(); err != nil {
			resp.Status = "degraded"
			resp.Cache = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			resp.Cache = "ok"
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info("ops server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("ops server failed", zap.Error(err))
		}
	}()
}

// Shutdown drains the ops server within the context's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
