package payment

import (
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicq/clinicq/internal/apperr"
	"github.com/clinicq/clinicq/internal/platform/auth"
)

// WebhookSignatureHeader carries the provider's HMAC over the raw body.
const WebhookSignatureHeader = "X-Razorpay-Signature"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the authenticated payment surface on api and the
// unauthenticated provider callback on public.
func (h *Handler) RegisterRoutes(api *echo.Group, public *echo.Group) {
	guarded := api.Group("", auth.RequireRole("admin", "receptionist", "patient"))
	guarded.POST("/payments/order", h.CreateOrder)
	guarded.POST("/payments/verify", h.Verify)
	guarded.GET("/payments/:id", h.Get)
	guarded.GET("/queue/:id/payments", h.ListForEntry)

	public.POST("/payments/webhook", h.Webhook)
}

func (h *Handler) CreateOrder(c echo.Context) error {
	var req CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.CreateOrder(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Verify(c echo.Context) error {
	var body struct {
		OrderID   string `json:"order_id"`
		PaymentID string `json:"payment_id"`
		Signature string `json:"signature"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.Verify(c.Request().Context(), body.OrderID, body.PaymentID, body.Signature)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListForEntry(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	items, err := h.svc.ListForEntry(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Webhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}
	p, err := h.svc.HandleWebhook(c.Request().Context(), body, c.Request().Header.Get(WebhookSignatureHeader))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func httpError(err error) *echo.HTTPError {
	return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
}
