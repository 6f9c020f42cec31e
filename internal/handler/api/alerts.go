package api

import (
	"errors"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"FinWatch/internal/domain/models"
	xhttp "FinWatch/pkg/http"
	xlogger "FinWatch/pkg/logger"
)

func (h *Handler) ListAlerts(c echo.Context) error {
	alerts := h.alerts.Alerts()
	return xhttp.ListResponse(c, alerts, int64(len(alerts)))
}

// AddAlert blocks until the symbol's next price arrives.
func (h *Handler) AddAlert(c echo.Context) error {
	req := &models.AddAlertRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	target, err := decimal.NewFromString(req.TargetPrice)
	if err != nil || !target.IsPositive() {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("target_price must be a positive number"))
	}
	if !h.windows.Connected() {
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableErrorf("price stream is not connected"))
	}

	a, err := h.alerts.AddAlert(c.Request().Context(), req.Symbol, target,
		models.OriginRef{Destination: req.Destination, MessageID: req.MessageID})
	if err != nil {
		if errors.Is(err, models.ErrResolutionTimeout) {
			return xhttp.AppErrorResponse(c, xhttp.GatewayTimeoutErrorf("no price for %s", req.Symbol).WithError(err))
		}
		h.logger.Error("add alert failed", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("add alert failed").WithError(err))
	}
	return xhttp.CreatedResponse(c, a)
}

func (h *Handler) RemoveAlert(c echo.Context) error {
	req := &models.AlertIDRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.alerts.RemoveAlert(c.Request().Context(), req.ID); err != nil {
		if errors.Is(err, models.ErrAlertNotFound) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("alert %s not found", req.ID))
		}
		h.logger.Error("remove alert failed", xlogger.String("id", req.ID), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("remove alert failed").WithError(err))
	}
	return xhttp.NoContentResponse(c)
}
