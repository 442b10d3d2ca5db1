package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/diaguru/scheduler/internal/orchestrator"
	"github.com/diaguru/scheduler/pkg/observability"
	"github.com/google/uuid"
)

// Server exposes the Request Orchestrator's two public operations over
// HTTP, grounded on the teacher's adapter/api/server.go ServeMux shape.
type Server struct {
	mux      *http.ServeMux
	server   *http.Server
	logger   *slog.Logger
	handler  *orchestrator.Handler
	resolver UserResolver
	metrics  observability.Metrics
	health   *observability.HealthRegistry
}

type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         "0.0.0.0:8081",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewServer wires the orchestrator's HTTP surface. A health registry
// attached with WithHealthRegistry is consulted by GET /health so a
// dependency outage (cmd/scheduler registers database and Redis checks) is
// visible to a load balancer's liveness probe; with no registry the route
// answers healthy. Metrics default to a no-op sink (WithMetrics replaces it),
// grounded on the teacher's pkg/observability.NoopMetrics.
func NewServer(cfg ServerConfig, handler *orchestrator.Handler, resolver UserResolver, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	s := &Server{
		mux:      mux,
		logger:   logger,
		handler:  handler,
		resolver: resolver,
		metrics:  observability.NoopMetrics{},
	}
	s.registerRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// WithMetrics overrides the default no-op metrics sink.
func (s *Server) WithMetrics(m observability.Metrics) *Server {
	s.metrics = m
	return s
}

// WithHealthRegistry attaches dependency health checks to GET /health.
func (s *Server) WithHealthRegistry(h *observability.HealthRegistry) *Server {
	s.health = h
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.withRequestContext(s.handleHealth))
	s.mux.HandleFunc("POST /api/v1/captures/{captureID}/schedule-capture", s.withRequestContext(s.handleScheduleCapture))
	s.mux.HandleFunc("POST /api/v1/plans/{planID}/undo", s.withRequestContext(s.handleUndoPlan))
}

// withRequestContext tags every request with a correlation id (propagated
// from the X-Correlation-ID header when the caller supplies one) and records
// the operation's count and duration, grounded on the teacher's
// adapter/cli root command's PersistentPreRun/PersistentPostRun pairing.
func (s *Server) withRequestContext(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := observability.NewRequestContext(r.Context(), r.Header.Get("X-Correlation-ID"))
		start := time.Now()
		op := r.Method + " " + r.URL.Path
		s.metrics.Counter(observability.MetricOperationTotal, 1, observability.T("operation", op))

		next(w, r.WithContext(ctx))

		s.metrics.Timing(observability.MetricOperationDuration, time.Since(start), observability.T("operation", op))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	overall := s.health.GetOverallHealth(r.Context())
	status := http.StatusOK
	if overall.Status != observability.HealthStatusHealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, overall)
}

func (s *Server) handleScheduleCapture(w http.ResponseWriter, r *http.Request) {
	userID, err := s.resolver.ResolveUser(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
		return
	}

	captureID, err := uuid.Parse(r.PathValue("captureID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid capture id")
		return
	}

	var req scheduleCaptureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	cmd := orchestrator.ScheduleCaptureCommand{
		UserID:                userID,
		CaptureID:             captureID,
		Action:                orchestrator.Action(req.Action),
		PreferredStart:        req.PreferredStart,
		PreferredEnd:          req.PreferredEnd,
		AllowOverlap:          req.AllowOverlap,
		Timezone:              req.Timezone,
		TimezoneOffsetMinutes: req.TimezoneOffsetMinutes,
	}

	result, err := s.handler.Handle(ctx, cmd)
	if err != nil {
		if orchestrator.AsEngineError(err).Code == orchestrator.CodeNoSlot {
			s.metrics.Counter(observability.MetricNoSlotFound, 1)
		}
		s.writeEngineError(ctx, w, err)
		return
	}

	switch cmd.Action {
	case orchestrator.ActionComplete:
		s.metrics.Counter(observability.MetricCapturesCompleted, 1)
	case orchestrator.ActionReschedule:
		s.metrics.Counter(observability.MetricCapturesRescheduled, 1)
	default:
		s.metrics.Counter(observability.MetricCapturesScheduled, 1)
	}

	resp := scheduleCaptureResponse{
		Message: scheduleMessage(cmd.Action, result.Decision != nil),
		Capture: toCaptureView(result.Capture),
	}
	if result.PlanSummary != nil {
		resp.PlanSummary = toPlanSummaryView(result.PlanSummary)
	}
	if result.Decision != nil {
		resp.Decision = toDecisionView(result.Decision)
	}
	writeJSON(w, http.StatusOK, resp)
}

func scheduleMessage(action orchestrator.Action, advisory bool) string {
	if advisory {
		return "capture requires a scheduling decision"
	}
	switch action {
	case orchestrator.ActionComplete:
		return "capture completed"
	case orchestrator.ActionReschedule:
		return "capture rescheduled"
	default:
		return "capture scheduled"
	}
}

func (s *Server) handleUndoPlan(w http.ResponseWriter, r *http.Request) {
	userID, err := s.resolver.ResolveUser(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
		return
	}

	planID, err := uuid.Parse(r.PathValue("planID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid plan id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	result, err := s.handler.HandleUndo(ctx, orchestrator.UndoPlanCommand{UserID: userID, PlanID: planID})
	if err != nil {
		s.writeEngineError(ctx, w, err)
		return
	}
	s.metrics.Counter(observability.MetricPlansUndone, 1)

	reverted := make([]string, 0, len(result.RevertedCaptures))
	for _, id := range result.RevertedCaptures {
		reverted = append(reverted, id.String())
	}
	writeJSON(w, http.StatusOK, undoPlanResponse{
		Message:          "plan undone",
		PlanID:           result.PlanID.String(),
		RevertedCaptures: reverted,
	})
}

// writeEngineError maps an *EngineError to the exact body shapes named for
// each code, falling back to a bare {error,message} body for codes with no
// payload of their own.
func (s *Server) writeEngineError(ctx context.Context, w http.ResponseWriter, err error) {
	ee := orchestrator.AsEngineError(err)
	s.metrics.Counter(observability.MetricOperationErrors, 1, observability.T("code", string(ee.Code)))

	if detail, ok := ee.Details.(orchestrator.NoSlotDetail); ok {
		reason := "no_slot"
		if ee.Code == orchestrator.CodeSlotExceedsDeadline {
			reason = "slot_exceeds_deadline"
		}
		writeJSON(w, ee.HTTPStatus, noSlotResponse{
			Error:           string(ee.Code),
			Reason:          reason,
			CaptureID:       detail.CaptureID.String(),
			Mode:            detail.Mode,
			DurationMinutes: detail.DurationMinutes,
			Deadline:        detail.Deadline,
			ReferenceNow:    detail.ReferenceNow,
		})
		return
	}

	if ee.HTTPStatus >= http.StatusInternalServerError {
		s.logger.Error("orchestrator request failed",
			"code", ee.Code, "error", err,
			observability.CorrelationIDKey, observability.CorrelationIDFromContext(ctx))
	}
	writeError(w, ee.HTTPStatus, string(ee.Code), ee.Message)
}

func (s *Server) Start() error {
	s.logger.Info("starting scheduling orchestrator API server", "addr", s.server.Addr)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down scheduling orchestrator API server")
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", "error", err)
		}
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}
