package intake

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/openclinic/intake/internal/platform/auth"
)

type Handler struct {
	proc *Processor
}

func NewHandler(proc *Processor) *Handler {
	return &Handler{proc: proc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	operate := api.Group("", auth.RequireRole("operator"))
	operate.POST("/intake/drain", h.Drain)
}

// Drain runs one drain pass over the pending queue and reports the run
// statistics. Per-item failures land in the error sink and do not fail
// the request; only a fatal queue-store failure does.
func (h *Handler) Drain(c echo.Context) error {
	stats, err := h.proc.Drain(c.Request().Context())
	if err != nil {
		if errors.Is(err, ErrDrainInProgress) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}
