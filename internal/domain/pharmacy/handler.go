package pharmacy

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
	read := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleNurse, auth.RolePharmacist, auth.RoleEHR))
	read.GET("/prescriptions", h.ListPrescriptions)
	read.GET("/prescriptions/:id", h.GetPrescription)

	prescribe := api.Group("", auth.RequireRole(auth.RoleDoctor))
	prescribe.POST("/prescriptions", h.CreatePrescription)
	prescribe.POST("/prescriptions/:id/cancel", h.CancelPrescription)

	pharm := api.Group("", auth.RequireRole(auth.RolePharmacist))
	pharm.GET("/prescriptions/:id/review", h.Review)
	pharm.POST("/dispenses", h.SubmitDispense)
	pharm.GET("/dispenses", h.ListDispenses)
	pharm.GET("/dispenses/:id", h.GetDispense)
	pharm.DELETE("/dispenses/:id", h.DiscardDraft)
	pharm.POST("/drug-inventory", h.CreateDrug)
	pharm.POST("/drug-inventory/:id/restock", h.RestockDrug)

	stock := api.Group("", auth.RequireRole(auth.RolePharmacist, auth.RoleDoctor))
	stock.GET("/drug-inventory", h.ListDrugs)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperror.Validation("invalid id")
	}
	return id, nil
}

// -- Prescriptions --

func (h *Handler) CreatePrescription(c echo.Context) error {
	var p Prescription
	if err := c.Bind(&p); err != nil {
		return apperror.Validation("invalid request body")
	}
	if err := h.svc.CreatePrescription(c.Request().Context(), &p); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPrescription(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPrescription(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPrescriptions(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := pagination.Filters(c, "patient_id", "prescribed_by", "status", "from", "to", "q")
	items, total, err := h.svc.ListPrescriptions(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) CancelPrescription(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.CancelPrescription(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// -- Dispensing --

func (h *Handler) Review(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	r, err := h.svc.Review(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) SubmitDispense(c echo.Context) error {
	var req DispenseRequest
	if err := c.Bind(&req); err != nil {
		return apperror.Validation("invalid request body")
	}
	d, err := h.svc.SubmitDispense(c.Request().Context(), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDispense(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDispense(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDispenses(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := pagination.Filters(c, "prescription_id", "patient_id", "pharmacist_id", "status", "dispense_type", "from", "to")
	items, total, err := h.svc.ListDispenses(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) DiscardDraft(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DiscardDraft(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Drug Inventory --

func (h *Handler) CreateDrug(c echo.Context) error {
	var d DrugStock
	if err := c.Bind(&d); err != nil {
		return apperror.Validation("invalid request body")
	}
	if err := h.svc.CreateDrug(c.Request().Context(), &d); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) ListDrugs(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := pagination.Filters(c, "drug_code", "low_stock", "q")
	items, total, err := h.svc.ListDrugs(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) RestockDrug(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req RestockRequest
	if err := c.Bind(&req); err != nil {
		return apperror.Validation("invalid request body")
	}
	d, err := h.svc.RestockDrug(c.Request().Context(), id, req.Quantity)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}
