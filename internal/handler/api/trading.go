package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"

	"DigitFlow/internal/domain/models"
	domrepo "DigitFlow/internal/domain/repository"
	icache "DigitFlow/internal/service/cache"
	xhttp "DigitFlow/pkg/http"
	"DigitFlow/pkg/logger"
)

const historyCacheTTL = 2 * time.Second

// TradingController is the controller surface the HTTP layer drives.
type TradingController interface {
	Configure(cfg models.TradingConfig)
	Start() error
	Stop()
	Status() models.Status
}

// TradingHandler exposes the trading control plane and history over HTTP.
type TradingHandler struct {
	log     *logger.Logger
	ctrl    TradingController
	storage domrepo.Storage
	cache   icache.BytesCache
}

func NewTradingHandler(log *logger.Logger, ctrl TradingController, storage domrepo.Storage, cache icache.BytesCache) *TradingHandler {
	return &TradingHandler{log: log, ctrl: ctrl, storage: storage, cache: cache}
}

// RegisterRoutes registers trading endpoints on Echo.
func (h *TradingHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/trading/config", h.PostConfig)
	g.POST("/trading/start", h.PostStart)
	g.POST("/trading/stop", h.PostStop)
	g.GET("/trading/status", h.GetStatus)
	g.GET("/history", h.GetHistory)
	g.GET("/health", h.GetHealth)
}

// PostConfig replaces the trading configuration.
func (h *TradingHandler) PostConfig(c echo.Context) error {
	req := new(models.ConfigRequest)
	if vErr := xhttp.ReadAndValidateRequest(c, req); vErr != nil {
		return xhttp.BadRequestResponse(c, vErr)
	}

	cfg := req.ToTradingConfig()
	h.ctrl.Configure(cfg)
	h.log.Info("trading configured via api",
		logger.String("symbol", cfg.Symbol),
		logger.String("strategy", string(cfg.Strategy)),
		logger.Int("selected_digit", cfg.SelectedDigit),
	)
	return xhttp.SuccessResponse(c, h.ctrl.Status())
}

// PostStart arms the controller.
func (h *TradingHandler) PostStart(c echo.Context) error {
	if err := h.ctrl.Start(); err != nil {
		return xhttp.BadRequestResponse(c, err.Error())
	}
	return xhttp.SuccessResponse(c, h.ctrl.Status())
}

// PostStop disarms the controller (queued if a trade is outstanding).
func (h *TradingHandler) PostStop(c echo.Context) error {
	h.ctrl.Stop()
	return xhttp.SuccessResponse(c, h.ctrl.Status())
}

// GetStatus returns the live controller snapshot.
func (h *TradingHandler) GetStatus(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.ctrl.Status())
}

// GetHistory serves recent ticks or trades from storage. Responses are
// briefly cached; the history tables lag the live stream anyway.
func (h *TradingHandler) GetHistory(c echo.Context) error {
	req := new(models.HistoryRequest)
	if vErr := xhttp.ReadAndValidateRequest(c, req); vErr != nil {
		return xhttp.BadRequestResponse(c, vErr)
	}

	to := xhttp.ParseTimeDefault(c.QueryParam("to"), time.Now().UTC())
	from := xhttp.ParseTimeDefault(c.QueryParam("from"), to.Add(-1*time.Hour))

	key := fmt.Sprintf("history:%s:%s:%d:%d:%d", req.Kind, req.Symbol, req.Limit, from.Unix(), to.Unix())
	if h.cache != nil {
		if b, ok, _ := h.cache.GetBytes(key); ok {
			var cached json.RawMessage = b
			return xhttp.SuccessResponse(c, cached)
		}
	}

	ctx := c.Request().Context()
	var (
		rows  interface{}
		total int
		err   error
	)
	switch req.Kind {
	case "ticks":
		var ticks []*models.Tick
		ticks, err = h.storage.QueryTicks(ctx, req.Symbol, from, to, req.Limit)
		rows, total = ticks, len(ticks)
	default:
		var trades []*models.TradeRecord
		trades, err = h.storage.QueryTrades(ctx, req.Symbol, req.Limit)
		rows, total = trades, len(trades)
	}
	if err != nil {
		h.log.Error("history query failed",
			logger.Error(err),
			logger.String("kind", req.Kind),
			logger.String("symbol", req.Symbol),
		)
		return xhttp.AppErrorResponse(c, xhttp.InternalError("history query failed").WithError(err))
	}

	payload := map[string]interface{}{"rows": rows, "total": total}
	if h.cache != nil {
		if b, mErr := json.Marshal(payload); mErr == nil {
			_ = h.cache.SetBytes(key, b, historyCacheTTL)
		}
	}
	return xhttp.SuccessResponse(c, payload)
}

// GetHealth pings storage.
func (h *TradingHandler) GetHealth(c echo.Context) error {
	if err := h.storage.Health(c.Request().Context()); err != nil {
		return xhttp.AppErrorResponse(c, xhttp.InternalError("storage unhealthy").WithError(err))
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

var _ xhttp.Handler = (*TradingHandler)(nil)
