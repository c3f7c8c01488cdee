package registry

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/openclinic/intake/internal/platform/auth"
)

// Handler exposes the registry settings consulted by the encounter
// subsystem. Person records themselves stay internal: they are only ever
// created or updated through the intake pipeline.
type Handler struct {
	settings SettingsRepository
}

func NewHandler(settings SettingsRepository) *Handler {
	return &Handler{settings: settings}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	operate := api.Group("", auth.RequireRole("operator"))
	operate.GET("/settings/initial-encounter-types", h.GetInitialEncounterTypes)
	operate.PUT("/settings/initial-encounter-types", h.SetInitialEncounterTypes)
}

func (h *Handler) GetInitialEncounterTypes(c echo.Context) error {
	types, err := h.settings.InitialEncounterTypes(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if types == nil {
		types = []string{}
	}
	return c.JSON(http.StatusOK, types)
}

func (h *Handler) SetInitialEncounterTypes(c echo.Context) error {
	var types []string
	if err := c.Bind(&types); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	for _, t := range types {
		if strings.TrimSpace(t) == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "empty encounter type token")
		}
	}
	if err := h.settings.SetInitialEncounterTypes(c.Request().Context(), types); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, types)
}
