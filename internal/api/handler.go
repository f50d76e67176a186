// Package api exposes chart queries and service health over HTTP.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"token-chart-lab/internal/chart"
	"token-chart-lab/internal/ingestion"
	"token-chart-lab/internal/observability"
	"token-chart-lab/internal/storage"
)

// StatusProvider reports ingestion state. *ingestion.Runner implements it.
type StatusProvider interface {
	Status() ingestion.Status
}

// ChartRequest is the query of GET /api/chart.
type ChartRequest struct {
	Symbol string `query:"symbol" validate:"required,max=32"`
	Hours  int    `query:"hours" default:"1" validate:"min=1,max=8760"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status          string     `json:"status"`
	IngestionCycles int        `json:"ingestion_cycles"`
	CycleRunning    bool       `json:"cycle_running"`
	LastCycleAt     *time.Time `json:"last_cycle_at,omitempty"`
}

// Handler serves the HTTP API.
type Handler struct {
	charts *chart.Service
	tokens storage.TokenStore
	status StatusProvider
	log    zerolog.Logger
}

// NewHandler creates a Handler. status may be nil when ingestion runs elsewhere.
func NewHandler(charts *chart.Service, tokens storage.TokenStore, status StatusProvider, log zerolog.Logger) *Handler {
	return &Handler{
		charts: charts,
		tokens: tokens,
		status: status,
		log:    log.With().Str("component", "api").Logger(),
	}
}

// RegisterRoutes mounts all routes on e.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.Root)
	e.GET("/health", h.Health)
	e.GET("/metrics", echo.WrapHandler(observability.Handler()))

	g := e.Group("/api")
	g.GET("/chart", h.Chart)
	g.GET("/tokens/:id", h.Token)
}

// Root answers liveness probes.
func (h *Handler) Root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Health reports ingestion progress.
func (h *Handler) Health(c echo.Context) error {
	resp := HealthResponse{Status: "ok"}
	if h.status != nil {
		st := h.status.Status()
		resp.IngestionCycles = st.Cycles
		resp.CycleRunning = st.Running
		if !st.LastRun.IsZero() {
			last := st.LastRun.UTC()
			resp.LastCycleAt = &last
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// Chart returns the five price series for a tracked symbol.
func (h *Handler) Chart(c echo.Context) error {
	req := &ChartRequest{}
	if verr := readAndValidate(c, req); verr != nil {
		return badRequestResponse(c, verr)
	}

	data, err := h.charts.ChartData(c.Request().Context(), req.Symbol, req.Hours)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidInput) {
			return badRequestResponse(c, []ValidationError{{Code: "ERR_INVALID", Message: err.Error()}})
		}
		h.log.Error().Err(err).Str("symbol", req.Symbol).Int("hours", req.Hours).Msg("chart query failed")
		return internalErrorResponse(c)
	}

	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return successResponse(c, data)
}

// Token returns stored metadata for a token id.
func (h *Handler) Token(c echo.Context) error {
	id := c.Param("id")

	t, err := h.tokens.GetByID(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return notFoundResponse(c, "token not found")
		}
		h.log.Error().Err(err).Str("token", id).Msg("token lookup failed")
		return internalErrorResponse(c)
	}

	return successResponse(c, chart.Metadata{
		ID:          t.ID,
		Name:        t.Name,
		Symbol:      t.Symbol,
		TotalSupply: t.TotalSupply,
		VolumeUSD:   t.VolumeUSD,
		Decimals:    t.Decimals,
	})
}
