package tenantadmin

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicq/clinicq/internal/apperr"
	"github.com/clinicq/clinicq/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the registry surface. Everything here is
// admin-only; tenant staff never see other tenants.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("/admin/tenants", auth.RequireRole("admin"))
	admin.GET("", h.List)
	admin.POST("", h.Register)
	admin.GET("/:slug", h.Get)
	admin.DELETE("/:slug", h.Revoke)
	admin.POST("/:slug/reactivate", h.Reactivate)
}

func (h *Handler) Register(c echo.Context) error {
	var body struct {
		Slug string `json:"slug"`
		Name string `json:"name"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	t, err := h.svc.Register(c.Request().Context(), body.Slug, body.Name)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) Get(c echo.Context) error {
	t, err := h.svc.Get(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) List(c echo.Context) error {
	items, err := h.svc.List(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Revoke(c echo.Context) error {
	if err := h.svc.Revoke(c.Request().Context(), c.Param("slug")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Reactivate(c echo.Context) error {
	if err := h.svc.Reactivate(c.Request().Context(), c.Param("slug")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func httpError(err error) *echo.HTTPError {
	return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
}
