package payment

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/payments", h.Record)
	api.GET("/payments", h.List)
	api.GET("/payments/advance-credits", h.ListAdvanceCredits)
	api.GET("/payments/revenue", h.Revenue)
	api.GET("/payments/:id", h.Get)
	api.POST("/payments/:id/link", h.LinkSession)
	api.POST("/payments/:id/void", h.Void)
	api.POST("/rates", h.CreateRate)
	api.GET("/rates", h.ListRates)
	api.GET("/rates/resolve", h.ResolveRate)
}

func (h *Handler) Record(c echo.Context) error {
	var req RecordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.RecordPayment(c.Request().Context(), &req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetPayment(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := map[string]string{}
	for _, k := range []string{"clinic", "client", "status", "credit_type", "window"} {
		if v := c.QueryParam(k); v != "" {
			params[k] = v
		}
	}
	items, total, err := h.svc.ListPayments(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListAdvanceCredits(c echo.Context) error {
	clientID, err := uuid.Parse(c.QueryParam("client_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid client_id")
	}
	credits, err := h.svc.ListClientAdvanceCredits(c.Request().Context(), clientID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, credits)
}

func (h *Handler) Revenue(c echo.Context) error {
	clinicID, err := uuid.Parse(c.QueryParam("clinic_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid clinic_id")
	}
	report, err := h.svc.Revenue(c.Request().Context(), clinicID, c.QueryParam("window"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) LinkSession(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		SessionID uuid.UUID `json:"session_id"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if body.SessionID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}
	link, err := h.svc.LinkSessionToAdvance(c.Request().Context(), id, body.SessionID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, link)
}

func (h *Handler) Void(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.VoidPayment(c.Request().Context(), id, body.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) CreateRate(c echo.Context) error {
	var req RateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sr, err := h.svc.CreateRate(c.Request().Context(), &req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, sr)
}

func (h *Handler) ListRates(c echo.Context) error {
	clinicID, err := uuid.Parse(c.QueryParam("clinic_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid clinic_id")
	}
	rates, err := h.svc.ListRates(c.Request().Context(), clinicID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rates)
}

func (h *Handler) ResolveRate(c echo.Context) error {
	actor := auth.ActorFromContext(c.Request().Context())
	if !actor.Can(auth.PermViewPayments) {
		return echo.NewHTTPError(http.StatusForbidden, "forbidden")
	}
	clinicID, err := uuid.Parse(c.QueryParam("clinic_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid clinic_id")
	}
	role := c.QueryParam("role")
	if role == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "role is required")
	}
	asOf := time.Now()
	if v := c.QueryParam("as_of"); v != "" {
		asOf, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid as_of, expected RFC 3339")
		}
	}
	rate, err := h.svc.ResolveRate(c.Request().Context(), clinicID, role, asOf)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"clinic_id": clinicID,
		"role":      role,
		"as_of":     asOf,
		"rate":      rate,
	})
}

func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, auth.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicateReceipt), errors.Is(err, ErrCreditExhausted),
		errors.Is(err, ErrSessionAlreadyLinked), errors.Is(err, ErrNotVoidable):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNoRateConfigured):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
