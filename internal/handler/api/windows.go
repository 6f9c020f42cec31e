package api

import (
	"sort"

	"github.com/labstack/echo/v4"

	"FinWatch/internal/domain/models"
	xhttp "FinWatch/pkg/http"
	"FinWatch/pkg/util"
)

func (h *Handler) Symbols(c echo.Context) error {
	syms := h.windows.Symbols()
	sort.Strings(syms)
	return xhttp.ListResponse(c, syms, int64(len(syms)))
}

// Window returns the newest finalized candles of a symbol.
func (h *Handler) Window(c echo.Context) error {
	req := &models.WindowRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	candles, ok := h.windows.Window(req.Symbol, req.N)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("symbol %s is not streamed", req.Symbol))
	}
	if req.Since != "" {
		since, ok := util.ParseTime(req.Since)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid since %q", req.Since).WithParam("field", "since"))
		}
		i := sort.Search(len(candles), func(i int) bool { return !candles[i].OpenTime.Before(since) })
		candles = candles[i:]
	}
	return xhttp.ListResponse(c, candles, int64(len(candles)))
}
