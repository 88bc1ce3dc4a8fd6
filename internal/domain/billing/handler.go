package billing

import (
	"net/http"
	"time"

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
	cashier := api.Group("", auth.RequireRole(auth.RoleCashier))
	cashier.POST("/payments", h.RecordPayment)
	cashier.GET("/payments", h.ListPayments)
	cashier.GET("/payments/:id", h.GetPayment)
	cashier.POST("/payments/:id/void", h.VoidPayment)
	cashier.POST("/hmo-providers", h.CreateHMO)
	cashier.POST("/preauthorizations/:id/approve", h.ApprovePreauth)
	cashier.POST("/preauthorizations/:id/deny", h.DenyPreauth)
	cashier.GET("/financial/dashboard", h.Dashboard)

	claims := api.Group("", auth.RequireRole(auth.RoleCashier, auth.RoleEHR))
	claims.GET("/hmo-providers", h.ListHMOs)
	claims.GET("/hmo-providers/:id", h.GetHMO)
	claims.POST("/claims", h.CreateClaim)
	claims.GET("/claims", h.ListClaims)
	claims.GET("/claims/:id", h.GetClaim)
	claims.PUT("/claims/:id", h.UpdateClaim)
	claims.POST("/claims/:id/items", h.AddClaimItem)
	claims.PUT("/claims/:id/items/:itemId", h.UpdateClaimItem)
	claims.DELETE("/claims/:id/items/:itemId", h.RemoveClaimItem)
	claims.PATCH("/claims/:id/status", h.ChangeClaimStatus)

	preauth := api.Group("", auth.RequireRole(auth.RoleCashier, auth.RoleEHR, auth.RoleDoctor))
	preauth.POST("/preauthorizations", h.RequestPreauth)
	preauth.GET("/preauthorizations", h.ListPreauths)
	preauth.GET("/preauthorizations/:id", h.GetPreauth)

	// every signed-in role may look up tariffs
	api.GET("/nhis/service-codes", h.SearchServiceCodes)
}

func parseUUIDParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperror.Validation("invalid %s", name)
	}
	return id, nil
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperror.Validation("invalid id")
	}
	return id, nil
}

// -- Payments --

func (h *Handler) RecordPayment(c echo.Context) error {
	var p Payment
	if err := c.Bind(&p); err != nil {
		return apperror.Validation("invalid request body")
	}
	if err := h.svc.RecordPayment(c.Request().Context(), &p); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPayment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPayment(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPayments(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := pagination.Filters(c, "patient_id", "received_by", "method", "status", "from", "to")
	items, total, err := h.svc.ListPayments(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) VoidPayment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req VoidRequest
	if err := c.Bind(&req); err != nil {
		return apperror.Validation("invalid request body")
	}
	p, err := h.svc.VoidPayment(c.Request().Context(), id, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// -- HMO providers --

func (h *Handler) CreateHMO(c echo.Context) error {
	var p HMOProvider
	if err := c.Bind(&p); err != nil {
		return apperror.Validation("invalid request body")
	}
	if err := h.svc.CreateHMO(c.Request().Context(), &p); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetHMO(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetHMO(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListHMOs(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := pagination.Filters(c, "active", "code", "q")
	items, total, err := h.svc.ListHMOs(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// -- Pre-authorizations --

func (h *Handler) RequestPreauth(c echo.Context) error {
	var p PreAuthorization
	if err := c.Bind(&p); err != nil {
		return apperror.Validation("invalid request body")
	}
	if err := h.svc.RequestPreauth(c.Request().Context(), &p); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPreauth(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPreauth(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPreauths(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := pagination.Filters(c, "patient_id", "hmo_provider_id", "status", "service_code", "auth_code", "from", "to")
	items, total, err := h.svc.ListPreauths(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ApprovePreauth(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req ApproveRequest
	if err := c.Bind(&req); err != nil {
		return apperror.Validation("invalid request body")
	}
	p, err := h.svc.ApprovePreauth(c.Request().Context(), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DenyPreauth(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req DenyRequest
	if err := c.Bind(&req); err != nil {
		return apperror.Validation("invalid request body")
	}
	p, err := h.svc.DenyPreauth(c.Request().Context(), id, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// -- Claims --

func (h *Handler) CreateClaim(c echo.Context) error {
	var cl Claim
	if err := c.Bind(&cl); err != nil {
		return apperror.Validation("invalid request body")
	}
	if err := h.svc.CreateClaim(c.Request().Context(), &cl); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, cl)
}

func (h *Handler) GetClaim(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	cl, err := h.svc.GetClaim(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) ListClaims(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := pagination.Filters(c, "patient_id", "hmo_provider_id", "status", "claim_number", "from", "to")
	items, total, err := h.svc.ListClaims(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateClaim(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var u ClaimUpdate
	if err := c.Bind(&u); err != nil {
		return apperror.Validation("invalid request body")
	}
	cl, err := h.svc.UpdateClaim(c.Request().Context(), id, u)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) AddClaimItem(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var it ClaimItem
	if err := c.Bind(&it); err != nil {
		return apperror.Validation("invalid request body")
	}
	cl, err := h.svc.AddClaimItem(c.Request().Context(), id, &it)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, cl)
}

func (h *Handler) UpdateClaimItem(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	itemID, err := parseUUIDParam(c, "itemId")
	if err != nil {
		return err
	}
	var it ClaimItem
	if err := c.Bind(&it); err != nil {
		return apperror.Validation("invalid request body")
	}
	it.ID = itemID
	cl, err := h.svc.UpdateClaimItem(c.Request().Context(), id, &it)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) RemoveClaimItem(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	itemID, err := parseUUIDParam(c, "itemId")
	if err != nil {
		return err
	}
	cl, err := h.svc.RemoveClaimItem(c.Request().Context(), id, itemID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) ChangeClaimStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req ClaimStatusChange
	if err := c.Bind(&req); err != nil {
		return apperror.Validation("invalid request body")
	}
	cl, err := h.svc.ChangeClaimStatus(c.Request().Context(), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cl)
}

// -- Service codes and reports --

func (h *Handler) SearchServiceCodes(c echo.Context) error {
	codes, err := h.svc.SearchServiceCodes(c.Request().Context(), c.QueryParam("q"), c.QueryParam("category"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": codes, "total": len(codes)})
}

// Dashboard defaults to the current month up to today.
func (h *Handler) Dashboard(c echo.Context) error {
	now := time.Now()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	to := now
	var err error
	if v := c.QueryParam("from"); v != "" {
		if from, err = time.ParseInLocation("2006-01-02", v, now.Location()); err != nil {
			return apperror.Validation("invalid from: %q", v)
		}
	}
	if v := c.QueryParam("to"); v != "" {
		if to, err = time.ParseInLocation("2006-01-02", v, now.Location()); err != nil {
			return apperror.Validation("invalid to: %q", v)
		}
	}
	d, err := h.svc.FinancialDashboard(c.Request().Context(), from, to)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}
