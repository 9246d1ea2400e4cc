// Package http provides the read-mostly status API for gatehouse.
//
// The MCP surface is the enforcement ingress; this server exists so humans
// and dashboards can see what the engine sees without speaking MCP.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/gatehouse/internal/config"
	"github.com/fyrsmithlabs/gatehouse/internal/dispatch"
	"github.com/fyrsmithlabs/gatehouse/internal/engine"
	"github.com/fyrsmithlabs/gatehouse/internal/finding"
	"github.com/fyrsmithlabs/gatehouse/internal/gate"
	"github.com/fyrsmithlabs/gatehouse/internal/intent"
	"github.com/fyrsmithlabs/gatehouse/internal/logging"
)

const instrumentationName = "github.com/fyrsmithlabs/gatehouse/internal/http"

// Server provides the HTTP status endpoints.
type Server struct {
	echo   *echo.Echo
	engine *engine.Engine
	logger *logging.Logger
	cfg    config.HTTPConfig

	requestCounter metric.Int64Counter
}

// NewServer creates the HTTP server with logging and metrics middleware.
func NewServer(cfg config.HTTPConfig, eng *engine.Engine, logger *logging.Logger) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if logger == nil {
		logger = logging.Nop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		engine: eng,
		logger: logger.Named("http"),
		cfg:    cfg,
	}

	var err error
	s.requestCounter, err = otel.Meter(instrumentationName).Int64Counter(
		"gatehouse.http.requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		s.logger.Warn(context.Background(), "failed to create request counter", zap.Error(err))
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger)

	s.registerRoutes()
	return s, nil
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)

		ctx := c.Request().Context()
		s.logger.Info(ctx, "http request",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
		)
		if s.requestCounter != nil {
			s.requestCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("path", c.Path()),
			))
		}
		return err
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)

	v1 := s.echo.Group("/v1")
	v1.GET("/status", s.handleStatus)
	v1.GET("/findings", s.handleFindings)
	v1.POST("/gate", s.handleGate)
	v1.POST("/route", s.handleRoute)
	v1.POST("/verify", s.handleVerify)
	v1.POST("/approve", s.handleApprove)
	v1.POST("/advance", s.handleAdvance)
	v1.POST("/analyze", s.handleAnalyze)
}

// HealthResponse is the response body for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStatus(c echo.Context) error {
	st, err := s.engine.Status(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleFindings(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.Findings())
}

// GateRequest is the request body for POST /v1/gate.
type GateRequest struct {
	Action   string `json:"action"`
	Resource string `json:"resource"`
}

func (s *Server) handleGate(c echo.Context) error {
	var req GateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Resource == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "resource field is required")
	}

	kind := gate.Kind(strings.ToLower(req.Action))
	switch kind {
	case gate.KindWrite, gate.KindExecute, gate.KindDelete:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid action %q", req.Action))
	}

	d := s.engine.CheckAction(c.Request().Context(), kind, req.Resource)
	return c.JSON(http.StatusOK, d)
}

// RouteRequest is the request body for POST /v1/route.
type RouteRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleRoute(c echo.Context) error {
	var req RouteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text field is required")
	}
	res, err := s.engine.RouteIntent(c.Request().Context(), req.Text)
	if err != nil {
		if errors.Is(err, intent.ErrRoutingAmbiguous) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

// VerifyRequest is the request body for POST /v1/verify.
type VerifyRequest struct {
	Phase string `json:"phase"`
}

func (s *Server) handleVerify(c echo.Context) error {
	var req VerifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Phase == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "phase field is required")
	}
	report, err := s.engine.VerifyPhase(c.Request().Context(), req.Phase)
	if err != nil {
		if errors.Is(err, engine.ErrUnknownPhase) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, report)
}

// ApproveRequest is the request body for POST /v1/approve.
type ApproveRequest struct {
	Key       string `json:"key"`
	GrantedBy string `json:"granted_by"`
}

func (s *Server) handleApprove(c echo.Context) error {
	var req ApproveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Key == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "key field is required")
	}
	if err := s.engine.RecordApproval(c.Request().Context(), req.Key, req.GrantedBy); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// AdvanceRequest is the request body for POST /v1/advance.
type AdvanceRequest struct {
	Kind string `json:"kind"`
	To   string `json:"to"`
}

func (s *Server) handleAdvance(c echo.Context) error {
	var req AdvanceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	kind := finding.TransitionKind(req.Kind)
	if req.Kind == "" {
		kind = finding.TransitionAdvance
	}

	ctx := c.Request().Context()
	var res engine.TransitionResult
	var err error
	switch kind {
	case finding.TransitionRegress:
		if req.To == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "regress requires a target phase")
		}
		res, err = s.engine.Regress(ctx, req.To)
	case finding.TransitionAdvance, finding.TransitionShip:
		res, err = s.engine.Advance(ctx, kind)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid transition kind %q", req.Kind))
	}
	if err != nil {
		if errors.Is(err, engine.ErrUnknownPhase) || errors.Is(err, engine.ErrNotRegression) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

// AnalyzeRequest is the request body for POST /v1/analyze.
type AnalyzeRequest struct {
	Phase  string `json:"phase"`
	Target string `json:"target"`
}

// AnalyzeResponse summarizes a completed analyzer run.
type AnalyzeResponse struct {
	Source   string            `json:"source"`
	Findings []finding.Finding `json:"findings"`
}

func (s *Server) handleAnalyze(c echo.Context) error {
	var req AnalyzeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Phase == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "phase field is required")
	}
	if req.Target == "" {
		req.Target = "repo"
	}
	batch, err := s.engine.RunAnalyzer(c.Request().Context(), req.Phase, req.Target)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrUnknownPhase):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, dispatch.ErrNoAnalyzer):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, dispatch.ErrDispatchInFlight):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, AnalyzeResponse{Source: batch.Source, Findings: batch.Findings})
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
