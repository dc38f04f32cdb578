package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/nkrishang/mad-protocol/internal/ingestion"
	"github.com/nkrishang/mad-protocol/internal/observability"
	"github.com/nkrishang/mad-protocol/internal/query"
)

// Server exposes the read API over HTTP/JSON, plus health probes and
// an admin surface. Queries read projections only; the single writer
// is never on the request path.
type Server struct {
	queries   *query.Service
	eventChan chan<- ingestion.RawEvent
	health    *observability.HealthChecker
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func New(
	queries *query.Service,
	eventChan chan<- ingestion.RawEvent,
	health *observability.HealthChecker,
	metrics *observability.Metrics,
) *Server {
	return &Server{
		queries:   queries,
		eventChan: eventChan,
		health:    health,
		metrics:   metrics,
		logger:    observability.NewLogger("http"),
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/v1/positions/{id:[0-9]+}", s.instrument("get_position", s.handleGetPosition)).Methods(http.MethodGet)
	r.HandleFunc("/v1/owners/{owner}/positions", s.instrument("get_owner_positions", s.handleGetOwnerPositions)).Methods(http.MethodGet)
	r.HandleFunc("/v1/stakers/{account}", s.instrument("get_staker", s.handleGetStaker)).Methods(http.MethodGet)
	r.HandleFunc("/v1/system", s.instrument("get_system", s.handleGetSystem)).Methods(http.MethodGet)
	r.HandleFunc("/v1/users/{user}/balances/{asset}", s.instrument("get_balance", s.handleGetBalance)).Methods(http.MethodGet)
	r.HandleFunc("/v1/users/{user}/journal", s.instrument("get_journal", s.handleGetJournal)).Methods(http.MethodGet)

	// Admin surface.
	r.HandleFunc("/v1/admin/integrity", s.instrument("verify_integrity", s.handleVerifyIntegrity)).Methods(http.MethodGet)
	r.HandleFunc("/v1/admin/ops", s.instrument("inject_op", s.handleInjectOp)).Methods(http.MethodPost)

	r.HandleFunc("/healthz", s.health.LivenessHandler).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.health.ReadinessHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return r
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// --- handlers ---

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid position id")
		return
	}

	resp, err := s.queries.GetPosition(r.Context(), id)
	if err == query.ErrNotFound {
		s.writeError(w, http.StatusNotFound, "position not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetOwnerPositions(w http.ResponseWriter, r *http.Request) {
	owner, err := uuid.Parse(mux.Vars(r)["owner"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid owner id")
		return
	}

	positions, err := s.queries.GetPositionsByOwner(r.Context(), owner)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"positions": positions})
}

func (s *Server) handleGetStaker(w http.ResponseWriter, r *http.Request) {
	account, err := uuid.Parse(mux.Vars(r)["account"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	resp, err := s.queries.GetStaker(r.Context(), account)
	if err == query.ErrNotFound {
		s.writeError(w, http.StatusNotFound, "staker not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetSystem(w http.ResponseWriter, r *http.Request) {
	resp, err := s.queries.GetSystem(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	user, err := uuid.Parse(vars["user"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	resp, err := s.queries.GetBalance(r.Context(), user, vars["asset"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetJournal(w http.ResponseWriter, r *http.Request) {
	user, err := uuid.Parse(mux.Vars(r)["user"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 1000 {
			s.writeError(w, http.StatusBadRequest, "limit must be 1..1000")
			return
		}
	}

	var before *int64
	if raw := r.URL.Query().Get("before"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid before cursor")
			return
		}
		before = &v
	}

	entries, err := s.queries.GetJournalHistory(r.Context(), user, limit, before)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (s *Server) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := s.queries.VerifyIntegrity(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusOK
	if !report.IsHealthy {
		status = http.StatusConflict
	}
	s.writeJSON(w, status, report)
}

// injectOpRequest is the admin escape hatch for feeding operations
// without going through NATS (testing, backfills, incident recovery).
// The payload format matches the NATS wire format exactly.
type injectOpRequest struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

func (s *Server) handleInjectOp(w http.ResponseWriter, r *http.Request) {
	var req injectOpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	raw := ingestion.RawEvent{
		Subject:   fmt.Sprintf("admin.%s", req.EventType),
		Data:      req.Payload,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}

	// Validate before enqueueing so the caller gets a synchronous reject
	// for garbage input. The shell parses again on its own.
	if _, err := ingestion.ParseRawEvent(raw, req.EventType); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	select {
	case s.eventChan <- raw:
		s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	case <-r.Context().Done():
		s.writeError(w, http.StatusServiceUnavailable, "ingest queue full")
	}
}

// --- plumbing ---

func (s *Server) instrument(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		h(sw, r)

		if s.metrics != nil {
			s.metrics.QueryRequests.WithLabelValues(endpoint, strconv.Itoa(sw.status)).Inc()
			s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		}
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("response encode failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
