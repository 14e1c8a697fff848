package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"chatrelay/pkg/config"
	"chatrelay/pkg/reply"
)

type normalizeResponse struct {
	Text          string `json:"text"`
	Strategy      string `json:"strategy"`
	DepthExceeded bool   `json:"depth_exceeded,omitempty"`
	CycleDetected bool   `json:"cycle_detected,omitempty"`
	Fallback      bool   `json:"fallback,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Routes returns the gateway HTTP handler.
func (s *Service) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Get("/healthz", s.handleHealth)
	router.Get("/readyz", s.handleReady)
	router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	router.Post("/v1/normalize", s.handleNormalize)

	return router
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, s.currentStatus("ok"))
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondJSON(w, statusCode, s.currentStatus(status))
}

// handleNormalize runs a raw webhook body through the reply pipeline.
func (s *Service) handleNormalize(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.Webhook.MaxBodyBytes
	if limit <= 0 {
		limit = config.DefaultMaxBodyBytes
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "payload too large"})
			return
		}
		s.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "read payload: " + err.Error()})
		return
	}

	text, trace := s.pipeline.Run(reply.DecodeBody(body))
	s.metrics.ObserveTrace(trace)

	s.respondJSON(w, http.StatusOK, normalizeResponse{
		Text:          text,
		Strategy:      trace.Strategy(),
		DepthExceeded: trace.DepthExceeded,
		CycleDetected: trace.CycleDetected,
		Fallback:      trace.Fallback,
	})
}

func (s *Service) respondJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write response", "error", err)
	}
}
