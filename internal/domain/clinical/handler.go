package clinical

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
	read := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleNurse, auth.RoleEHR))
	read.GET("/medical-records", h.ListRecords)
	read.GET("/medical-records/:id", h.GetRecord)
	read.GET("/vital-signs", h.ListVitals)
	read.GET("/patients/:id/vital-signs/latest", h.LatestVitals)

	write := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleNurse))
	write.POST("/medical-records", h.CreateRecord)
	write.PUT("/medical-records/:id", h.UpdateRecord)
	write.POST("/vital-signs", h.RecordVitals)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperror.Validation("invalid id")
	}
	return id, nil
}

// -- Medical Records --

func (h *Handler) CreateRecord(c echo.Context) error {
	var m MedicalRecord
	if err := c.Bind(&m); err != nil {
		return apperror.Validation("invalid request body")
	}
	if err := h.svc.CreateRecord(c.Request().Context(), &m); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) GetRecord(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	m, err := h.svc.GetRecord(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) ListRecords(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := pagination.Filters(c, "patient_id", "provider_id", "record_type", "status", "from", "to", "q")
	items, total, err := h.svc.ListRecords(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateRecord(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var u RecordUpdate
	if err := c.Bind(&u); err != nil {
		return apperror.Validation("invalid request body")
	}
	m, err := h.svc.UpdateRecord(c.Request().Context(), id, &u)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

// -- Vital Signs --

func (h *Handler) RecordVitals(c echo.Context) error {
	var v VitalSigns
	if err := c.Bind(&v); err != nil {
		return apperror.Validation("invalid request body")
	}
	if err := h.svc.RecordVitals(c.Request().Context(), &v); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) ListVitals(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := pagination.Filters(c, "patient_id", "recorded_by", "from", "to")
	items, total, err := h.svc.ListVitals(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) LatestVitals(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	v, err := h.svc.LatestVitals(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}
