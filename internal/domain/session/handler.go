package session

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
	api.POST("/sessions", h.Create)
	api.POST("/sessions/bulk", h.CreateBulk)
	api.GET("/sessions", h.List)
	api.GET("/sessions/pending-confirmations", h.ListPendingConfirmations)
	api.GET("/sessions/:id", h.Get)
	api.POST("/sessions/:id/start", h.Start)
	api.POST("/sessions/:id/confirm", h.Confirm)
	api.POST("/sessions/:id/cancel", h.Cancel)
}

type createBody struct {
	ClinicID        uuid.UUID  `json:"clinic_id"`
	ClientID        *uuid.UUID `json:"client_id"`
	ClientName      string     `json:"client_name"`
	TherapistID     uuid.UUID  `json:"therapist_id"`
	SessionType     string     `json:"session_type"`
	Date            string     `json:"date"`
	Dates           []string   `json:"dates"`
	Time            string     `json:"time"`
	DurationMinutes int        `json:"duration_minutes"`
}

func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

func (h *Handler) Create(c echo.Context) error {
	var body createBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	date, err := parseDate(body.Date)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
	}
	req := &CreateRequest{
		ClinicID: body.ClinicID, ClientID: body.ClientID, ClientName: body.ClientName,
		TherapistID: body.TherapistID, SessionType: body.SessionType,
		Date: date, TimeOfDay: body.Time, DurationMinutes: body.DurationMinutes,
	}
	sess, err := h.svc.Create(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, sess)
}

func (h *Handler) CreateBulk(c echo.Context) error {
	var body createBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	dates := make([]time.Time, 0, len(body.Dates))
	for _, d := range body.Dates {
		date, err := parseDate(d)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid date "+d+", expected YYYY-MM-DD")
		}
		dates = append(dates, date)
	}
	req := &BulkCreateRequest{
		ClinicID: body.ClinicID, ClientID: body.ClientID, ClientName: body.ClientName,
		TherapistID: body.TherapistID, SessionType: body.SessionType,
		Dates: dates, TimeOfDay: body.Time, DurationMinutes: body.DurationMinutes,
	}
	result, err := h.svc.CreateBulk(c.Request().Context(), req)
	if err != nil {
		if result != nil && errors.Is(err, ErrSlotTaken) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	sess, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := map[string]string{}
	for _, k := range []string{"clinic", "therapist", "client", "status", "date", "from", "to"} {
		if v := c.QueryParam(k); v != "" {
			params[k] = v
		}
	}
	// Therapists without the all-sessions capability only see their own.
	actor := auth.ActorFromContext(c.Request().Context())
	if !actor.Can(auth.PermViewAllSessions) {
		if !actor.Can(auth.PermViewOwnSessions) {
			return echo.NewHTTPError(http.StatusForbidden, "forbidden")
		}
		params["therapist"] = actor.ID.String()
	}
	items, total, err := h.svc.Search(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListPendingConfirmations(c echo.Context) error {
	actor := auth.ActorFromContext(c.Request().Context())
	if !actor.Can(auth.PermVerifySessions) {
		return echo.NewHTTPError(http.StatusForbidden, "forbidden")
	}
	pg := pagination.FromContext(c)
	var clinicID *uuid.UUID
	if v := c.QueryParam("clinic_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid clinic_id")
		}
		clinicID = &id
	}
	items, total, err := h.svc.ListPendingConfirmations(c.Request().Context(), clinicID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Start(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	sess, err := h.svc.Start(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) Confirm(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	sess, err := h.svc.Confirm(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) Cancel(c echo.Context) error {
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
	sess, err := h.svc.Cancel(c.Request().Context(), id, body.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, auth.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrSlotTaken), errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
