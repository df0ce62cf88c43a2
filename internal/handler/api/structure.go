package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	models "MarketStructure/internal/domain/models"
	domrepo "MarketStructure/internal/domain/repository"
	domsvc "MarketStructure/internal/domain/service"
	"MarketStructure/internal/service/metrics"
	"MarketStructure/internal/services/structure"
	"MarketStructure/internal/usecase"
	xhttp "MarketStructure/pkg/http"
	xlogger "MarketStructure/pkg/logger"
	"MarketStructure/pkg/util"

	"github.com/labstack/echo/v4"
)

// Analyzer is the part of the analyze use case the API calls.
type Analyzer interface {
	Explain(ctx context.Context, instrument string, series models.PriceSeries) (*usecase.Outcome, error)
	Signals(ctx context.Context, q models.SignalQuery) ([]models.Signal, error)
}

// HealthCheck reports the state of one dependency.
type HealthCheck func(ctx context.Context) error

// StructureHandler exposes the engine state and analysis over HTTP.
type StructureHandler struct {
	logger    *xlogger.Logger
	engine    domsvc.StructureEngine
	analyzer  Analyzer
	snapshots domrepo.LevelSnapshots
	metrics   *metrics.API
	checks    map[string]HealthCheck
}

func NewStructureHandler(logger *xlogger.Logger, engine domsvc.StructureEngine, analyzer Analyzer,
	snapshots domrepo.LevelSnapshots, m *metrics.API, checks map[string]HealthCheck) *StructureHandler {
	return &StructureHandler{
		logger:    logger,
		engine:    engine,
		analyzer:  analyzer,
		snapshots: snapshots,
		metrics:   m,
		checks:    checks,
	}
}

func (h *StructureHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api")
	g.GET("/instruments", h.Instruments)
	g.GET("/levels", h.Levels)
	g.GET("/volatility", h.Volatility)
	g.POST("/analyze", h.Analyze)
	g.GET("/signals", h.Signals)
}

type levelsResponse struct {
	Instrument string               `json:"instrument"`
	Active     []models.AnchorLevel `json:"active"`
	Historical []models.AnchorLevel `json:"historical"`
	Snapshot   bool                 `json:"from_snapshot"`
}

func (h *StructureHandler) Levels(c echo.Context) (err error) {
	defer func(start time.Time) { h.metrics.Observe("levels", start, err) }(time.Now())
	req := &models.InstrumentRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res := levelsResponse{
		Instrument: req.Instrument,
		Active:     h.engine.GetActiveLevels(req.Instrument),
		Historical: h.engine.HistoricalLevels(req.Instrument),
	}
	if len(res.Historical) == 0 && h.snapshots != nil {
		levels, ok, lerr := h.snapshots.Load(c.Request().Context(), req.Instrument)
		if lerr != nil {
			h.logger.Warn("level snapshot load failed", xlogger.String("instrument", req.Instrument), xlogger.Error(lerr))
		}
		if ok {
			res.Historical, res.Snapshot = levels, true
		}
	}
	if len(res.Active) == 0 && len(res.Historical) == 0 {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no levels for %s", req.Instrument))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

func (h *StructureHandler) Volatility(c echo.Context) (err error) {
	defer func(start time.Time) { h.metrics.Observe("volatility", start, err) }(time.Now())
	req := &models.InstrumentRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	v := h.engine.GetVolatility(req.Instrument)
	if v == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no volatility estimate for %s", req.Instrument))
	}
	return xhttp.SuccessResponse(c, v)
}

func (h *StructureHandler) Instruments(c echo.Context) error {
	inst := h.engine.Instruments()
	return xhttp.ListResponse(c, inst, int64(len(inst)))
}

// Analyze explains a caller-supplied series. Live engine state is left
// alone and nothing is delivered.
func (h *StructureHandler) Analyze(c echo.Context) (err error) {
	defer func(start time.Time) { h.metrics.Observe("analyze", start, err) }(time.Now())
	req := &models.AnalyzeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	series := models.PriceSeries{Instrument: req.Instrument, Bars: req.Bars}
	out, rerr := h.analyzer.Explain(c.Request().Context(), req.Instrument, series)
	if rerr != nil {
		if errors.Is(rerr, structure.ErrNonMonotonicSeries) || errors.Is(rerr, structure.ErrEmptyInstrument) {
			return xhttp.AppErrorResponse(c, xhttp.UnprocessableError(rerr.Error()).WithError(rerr))
		}
		h.logger.Error("analyze usecase error", xlogger.Error(rerr))
		return xhttp.AppErrorResponse(c, rerr)
	}
	return xhttp.SuccessResponse(c, out)
}

func (h *StructureHandler) Signals(c echo.Context) (err error) {
	defer func(start time.Time) { h.metrics.Observe("signals", start, err) }(time.Now())
	req := &models.SignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	q := models.SignalQuery{Instrument: req.Instrument, Limit: req.Limit}
	if req.From != "" {
		t, ok := util.ParseTime(req.From)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid from: %q", req.From))
		}
		q.From = t
	}
	if req.To != "" {
		t, ok := util.ParseTime(req.To)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid to: %q", req.To))
		}
		q.To = t
	}
	if !q.From.IsZero() && !q.To.IsZero() && !q.From.Before(q.To) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("from must be before to"))
	}

	sigs, qerr := h.analyzer.Signals(c.Request().Context(), q)
	if qerr != nil {
		if errors.Is(qerr, usecase.ErrNoHistory) {
			return xhttp.AppErrorResponse(c, xhttp.UnavailableError(qerr.Error()))
		}
		h.logger.Error("signals query error", xlogger.Error(qerr))
		return xhttp.AppErrorResponse(c, qerr)
	}
	return xhttp.ListResponse(c, sigs, int64(len(sigs)))
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h *StructureHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	res := healthResponse{Status: "ok", Checks: map[string]string{}}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			res.Status = "degraded"
			res.Checks[name] = err.Error()
			continue
		}
		res.Checks[name] = "ok"
	}
	if res.Status != "ok" {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, res)
	}
	return xhttp.SuccessResponse(c, res)
}
