package scheduling

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/apperror"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	roles := []string{auth.RoleDoctor, auth.RoleNurse, auth.RoleEHR}

	read := api.Group("", auth.RequireRole(roles...))
	read.GET("/appointments", h.ListAppointments)
	read.GET("/appointments/:id", h.GetAppointment)

	write := api.Group("", auth.RequireRole(roles...))
	write.POST("/appointments", h.CreateAppointment)
	write.PUT("/appointments/:id", h.UpdateAppointment)
	write.PATCH("/appointments/:id/status", h.ChangeStatus)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperror.Validation("invalid id")
	}
	return id, nil
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	var a Appointment
	if err := c.Bind(&a); err != nil {
		return apperror.Validation("invalid request body")
	}
	if err := h.svc.CreateAppointment(c.Request().Context(), &a); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := pagination.Filters(c, "patient_id", "doctor_id", "status", "type", "from", "to")
	// a doctor's default view is their own schedule
	if c.QueryParam("mine") == "true" {
		params["doctor_id"] = auth.UserIDFromContext(c.Request().Context())
	}
	items, total, err := h.svc.ListAppointments(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var u ClinicalUpdate
	if err := c.Bind(&u); err != nil {
		return apperror.Validation("invalid request body")
	}
	a, err := h.svc.UpdateAppointment(c.Request().Context(), id, &u)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ChangeStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req StatusChange
	if err := c.Bind(&req); err != nil {
		return apperror.Validation("invalid request body")
	}
	a, err := h.svc.ChangeStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}
