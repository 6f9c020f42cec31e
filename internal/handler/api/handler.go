package api

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"FinWatch/internal/domain/models"
	xlogger "FinWatch/pkg/logger"
)

// AlertService is the alert registry as seen by the API.
type AlertService interface {
	AddAlert(ctx context.Context, symbol string, target decimal.Decimal, origin models.OriginRef) (models.PriceAlert, error)
	RemoveAlert(ctx context.Context, id string) error
	Alerts() []models.PriceAlert
}

// WindowSource exposes the live candle windows.
type WindowSource interface {
	Window(symbol string, n int) ([]models.Candle, bool)
	Symbols() []string
	Connected() bool
}

// HealthCheck checks one dependency.
type HealthCheck func(ctx context.Context) error

// Handler serves the operator API.
type Handler struct {
	logger  *xlogger.Logger
	alerts  AlertService
	windows WindowSource
	checks  map[string]HealthCheck
}

func NewHandler(logger *xlogger.Logger, alerts AlertService, windows WindowSource, checks map[string]HealthCheck) *Handler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &Handler{logger: logger.With("api"), alerts: alerts, windows: windows, checks: checks}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Live)
	e.GET("/readyz", h.Ready)

	g := e.Group("/api/v1")
	g.GET("/alerts", h.ListAlerts)
	g.POST("/alerts", h.AddAlert)
	g.DELETE("/alerts/:id", h.RemoveAlert)
	g.GET("/symbols", h.Symbols)
	g.GET("/windows/:symbol", h.Window)
}
