package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	xhttp "FinWatch/pkg/http"
)

const healthTimeout = 3 * time.Second

func (h *Handler) Live(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

// Ready reports the stream state and every dependency check.
func (h *Handler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	status := http.StatusOK
	report := map[string]string{"stream": "ok"}
	if !h.windows.Connected() {
		report["stream"] = "disconnected"
		status = http.StatusServiceUnavailable
	}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			report[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		report[name] = "ok"
	}
	return xhttp.DataResponse(c, status, report)
}
