package diagnostics

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
	read := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleNurse, auth.RoleLabTech, auth.RoleEHR))
	read.GET("/lab-results", h.ListLabs)
	read.GET("/lab-results/:id", h.GetLab)

	order := api.Group("", auth.RequireRole(auth.RoleDoctor))
	order.POST("/lab-results", h.OrderLab)

	lab := api.Group("", auth.RequireRole(auth.RoleLabTech))
	lab.POST("/lab-results/:id/start", h.StartLab)
	lab.POST("/lab-results/:id/complete", h.CompleteLab)
	lab.POST("/lab-results/:id/verify", h.VerifyLab)

	lab.GET("/lab-inventory", h.ListItems)
	lab.GET("/lab-inventory/:id", h.GetItem)
	lab.POST("/lab-inventory", h.CreateItem)
	lab.POST("/lab-inventory/:id/adjust", h.AdjustItem)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperror.Validation("invalid id")
	}
	return id, nil
}

// -- Lab Results --

func (h *Handler) OrderLab(c echo.Context) error {
	var l LabResult
	if err := c.Bind(&l); err != nil {
		return apperror.Validation("invalid request body")
	}
	if err := h.svc.OrderLab(c.Request().Context(), &l); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, l)
}

func (h *Handler) GetLab(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	l, err := h.svc.GetLab(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) ListLabs(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := pagination.Filters(c, "patient_id", "ordered_by", "performed_by", "status", "priority", "critical", "from", "to", "q")
	items, total, err := h.svc.ListLabs(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) StartLab(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	l, err := h.svc.StartLab(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) CompleteLab(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req CompleteRequest
	if err := c.Bind(&req); err != nil {
		return apperror.Validation("invalid request body")
	}
	l, err := h.svc.CompleteLab(c.Request().Context(), id, &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) VerifyLab(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	l, err := h.svc.VerifyLab(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, l)
}

// -- Lab Inventory --

func (h *Handler) CreateItem(c echo.Context) error {
	var i LabItem
	if err := c.Bind(&i); err != nil {
		return apperror.Validation("invalid request body")
	}
	if err := h.svc.CreateItem(c.Request().Context(), &i); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, i)
}

func (h *Handler) GetItem(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	i, err := h.svc.GetItem(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, i)
}

func (h *Handler) ListItems(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := pagination.Filters(c, "category", "low_stock", "q")
	items, total, err := h.svc.ListItems(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) AdjustItem(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req AdjustRequest
	if err := c.Bind(&req); err != nil {
		return apperror.Validation("invalid request body")
	}
	i, err := h.svc.AdjustItem(c.Request().Context(), id, &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, i)
}
