package queue

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicq/clinicq/internal/apperr"
	"github.com/clinicq/clinicq/internal/platform/auth"
	"github.com/clinicq/clinicq/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole("admin", "doctor", "receptionist"))
	read.GET("/queue", h.List)
	read.GET("/queue/:id", h.Get)
	read.GET("/doctors/:id/queue", h.DoctorQueue)

	desk := api.Group("", auth.RequireRole("admin", "receptionist"))
	desk.POST("/queue", h.Create)
	desk.PUT("/queue/:id", h.UpdateRemark)
	desk.DELETE("/queue/:id", h.Cancel)
	desk.POST("/queue/:id/cancel", h.Cancel)
	desk.POST("/queue/:id/verify-payment", h.VerifyPayment)

	consult := api.Group("", auth.RequireRole("admin", "doctor", "receptionist"))
	consult.POST("/queue/:id/call", h.Call)
	consult.POST("/queue/:id/skip", h.Skip)

	doctor := api.Group("", auth.RequireRole("admin", "doctor"))
	doctor.POST("/queue/:id/clock-in", h.ClockIn)
	doctor.POST("/queue/:id/complete", h.Complete)
}

func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.BookedBy == nil {
		if actor, ok := actorID(c); ok {
			req.BookedBy = &actor
		}
	}
	entry, err := h.svc.Create(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, entry)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	entry, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := map[string]string{}
	for _, key := range []string{"doctor", "patient", "status", "date"} {
		if v := c.QueryParam(key); v != "" {
			params[key] = v
		}
	}
	items, total, err := h.svc.List(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateRemark(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		Remark string `json:"remark"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	entry, err := h.svc.UpdateRemark(c.Request().Context(), id, body.Remark)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) DoctorQueue(c echo.Context) error {
	doctorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor id")
	}
	var explicit *uuid.UUID
	if raw := c.QueryParam("current"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid current id")
		}
		explicit = &id
	}
	view, err := h.svc.QueueForDoctor(c.Request().Context(), doctorID, explicit)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) Call(c echo.Context) error {
	return h.simpleTransition(c, h.svc.Call)
}

func (h *Handler) ClockIn(c echo.Context) error {
	return h.simpleTransition(c, h.svc.ClockIn)
}

func (h *Handler) Skip(c echo.Context) error {
	return h.simpleTransition(c, h.svc.Skip)
}

func (h *Handler) Complete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		Prescription json.RawMessage `json:"prescription"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor, _ := actorID(c)
	entry, err := h.svc.Complete(c.Request().Context(), id, actor, body.Prescription)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		Remark string `json:"remark"`
	}
	_ = c.Bind(&body) // remark is optional; DELETE carries no body
	actor, _ := actorID(c)
	entry, err := h.svc.Cancel(c.Request().Context(), id, actor, body.Remark)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) VerifyPayment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		PaymentID uuid.UUID `json:"payment_id"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	entry, err := h.svc.VerifyPayment(c.Request().Context(), id, body.PaymentID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) simpleTransition(c echo.Context, op func(ctx context.Context, id uuid.UUID) (*Entry, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	entry, err := op(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entry)
}

func actorID(c echo.Context) (uuid.UUID, bool) {
	raw, ok := c.Get("user_id").(string)
	if !ok || raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func httpError(err error) *echo.HTTPError {
	return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
}
