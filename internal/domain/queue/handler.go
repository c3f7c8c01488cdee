package queue

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/openclinic/intake/internal/platform/auth"
	"github.com/openclinic/intake/internal/platform/blobstore"
	"github.com/openclinic/intake/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	submit := api.Group("", auth.RequireRole("submitter", "operator"))
	submit.POST("/queue", h.Submit)

	operate := api.Group("", auth.RequireRole("operator"))
	operate.GET("/queue", h.ListPending)
	operate.GET("/queue/stats", h.Stats)
	operate.DELETE("/queue/:id", h.DeletePending)
	operate.GET("/queue/errors", h.ListErrors)
	operate.GET("/queue/errors/:id", h.GetError)
	operate.GET("/queue/errors/:id/document", h.GetErrorDocument)
	operate.POST("/queue/errors/:id/requeue", h.Requeue)
}

// Submit accepts a raw submission document and appends it to the pending
// queue. The body is stored verbatim; nothing is validated here beyond
// non-emptiness, so a malformed document still queues and is classified
// during processing.
func (h *Handler) Submit(c echo.Context) error {
	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, blobstore.MaxBlobSize+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "reading request body")
	}
	if len(raw) > blobstore.MaxBlobSize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "document too large")
	}

	submitter := auth.UserIDFromContext(c.Request().Context())
	item, err := h.svc.Enqueue(c.Request().Context(), raw, submitter)
	if err != nil {
		if errors.Is(err, blobstore.ErrEmptyBlob) {
			return echo.NewHTTPError(http.StatusBadRequest, "document is empty")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, item)
}

func (h *Handler) ListPending(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, err := h.svc.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	lo, hi := pg.Slice(len(items))
	page := items[lo:hi]
	if page == nil {
		page = []*PendingItem{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(page, len(items), pg.Limit, pg.Offset))
}

func (h *Handler) Stats(c echo.Context) error {
	ctx := c.Request().Context()
	pending, err := h.svc.Size(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	failed, err := h.svc.ErrorSize(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]int{"pending": pending, "errors": failed})
}

func (h *Handler) DeletePending(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	items, err := h.svc.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	for _, item := range items {
		if item.ID == id {
			if err := h.svc.Delete(c.Request().Context(), item); err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
			}
			return c.NoContent(http.StatusNoContent)
		}
	}
	return echo.NewHTTPError(http.StatusNotFound, "queue item not found")
}

func (h *Handler) ListErrors(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, err := h.svc.ListErrors(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	lo, hi := pg.Slice(len(items))
	page := items[lo:hi]
	if page == nil {
		page = []*ErrorItem{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(page, len(items), pg.Limit, pg.Offset))
}

func (h *Handler) GetError(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	item, err := h.svc.GetError(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "error item not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler) GetErrorDocument(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	raw, err := h.svc.ReadErrorDocument(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, blobstore.ErrBlobNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "document not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.Blob(http.StatusOK, echo.MIMEApplicationXML, raw)
}

func (h *Handler) Requeue(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	item, err := h.svc.Requeue(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "error item not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, item)
}
