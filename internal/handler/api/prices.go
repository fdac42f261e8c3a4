package api

import (
	"errors"
	"time"

	"github.com/labstack/echo/v4"

	models "github.com/Vestika/portfolio-sub001/internal/domain/models"
	domrepo "github.com/Vestika/portfolio-sub001/internal/domain/repository"
	"github.com/Vestika/portfolio-sub001/internal/service/livecache"
	"github.com/Vestika/portfolio-sub001/internal/usecase"
	xhttp "github.com/Vestika/portfolio-sub001/pkg/http"
	xlogger "github.com/Vestika/portfolio-sub001/pkg/logger"
	xutil "github.com/Vestika/portfolio-sub001/pkg/util"
)

// PricesHandler exposes the operational HTTP surface: quote lookups, history
// reads, manual refresh and backfill triggers, and health.
type PricesHandler struct {
	logger       *xlogger.Logger
	quotes       *usecase.QuoteService
	updater      *usecase.LiveUpdater
	synchronizer *usecase.Synchronizer
	cache        *livecache.Cache
	registry     domrepo.SymbolRegistry
	archive      domrepo.BarArchive
}

func NewPricesHandler(
	logger *xlogger.Logger,
	quotes *usecase.QuoteService,
	updater *usecase.LiveUpdater,
	synchronizer *usecase.Synchronizer,
	cache *livecache.Cache,
	registry domrepo.SymbolRegistry,
	archive domrepo.BarArchive,
) *PricesHandler {
	return &PricesHandler{
		logger:       logger,
		quotes:       quotes,
		updater:      updater,
		synchronizer: synchronizer,
		cache:        cache,
		registry:     registry,
		archive:      archive,
	}
}

func (h *PricesHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/quote", h.Quote)
	g.GET("/history", h.History)
	g.GET("/symbols", h.Symbols)
	g.GET("/cache/stats", h.CacheStats)
	g.GET("/market-status", h.MarketStatus)
	g.POST("/refresh", h.Refresh)
	g.POST("/backfill/:symbol", h.Backfill)
	e.GET("/health", h.Health)
}

func (h *PricesHandler) Quote(c echo.Context) error {
	req := &models.QuoteRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	quote, err := h.quotes.Lookup(c.Request().Context(), req.Symbol, models.Market(req.Market))
	if err != nil {
		if errors.Is(err, domrepo.ErrSymbolNotFound) {
			return xhttp.NotFoundResponse(c, xhttp.NotFoundErrorf("symbol %s not found", req.Symbol))
		}
		h.logger.Error("quote lookup error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, quote)
}

func (h *PricesHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	bars, err := h.quotes.History(c.Request().Context(), req.Symbol, req.Days)
	if err != nil {
		h.logger.Error("history read error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, bars, int64(len(bars)))
}

func (h *PricesHandler) Symbols(c echo.Context) error {
	symbols, err := h.registry.List(c.Request().Context())
	if err != nil {
		h.logger.Error("symbol list error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, symbols, int64(len(symbols)))
}

func (h *PricesHandler) CacheStats(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.cache.Stats())
}

func (h *PricesHandler) MarketStatus(c echo.Context) error {
	req := &models.MarketStatusRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	at := xutil.ParseTimeDefault(c.QueryParam("at"), time.Now())
	return xhttp.SuccessResponse(c, xutil.Status(req.Market, at))
}

// Refresh forces one live update cycle outside the schedule.
func (h *PricesHandler) Refresh(c echo.Context) error {
	result, err := h.updater.UpdateOnce(c.Request().Context())
	if err != nil {
		h.logger.Error("forced refresh error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, result)
}

// Backfill forces a historical backfill for one symbol outside the schedule.
func (h *PricesHandler) Backfill(c echo.Context) error {
	req := &models.BackfillRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	result := h.synchronizer.BackfillNewSymbol(c.Request().Context(), req.Symbol, models.Market(req.Market), req.Days)
	if result.Status == models.BackfillError {
		return xhttp.AppErrorResponse(c, xhttp.InternalError(result.Error))
	}
	return xhttp.SuccessResponse(c, result)
}

func (h *PricesHandler) Health(c echo.Context) error {
	ctx := c.Request().Context()
	status := map[string]string{"status": "ok"}
	if err := h.registry.Health(ctx); err != nil {
		status["status"] = "degraded"
		status["registry"] = err.Error()
	}
	if err := h.archive.Health(ctx); err != nil {
		status["status"] = "degraded"
		status["archive"] = err.Error()
	}
	if status["status"] != "ok" {
		return xhttp.DataResponse(c, 503, status)
	}
	return xhttp.SuccessResponse(c, status)
}
