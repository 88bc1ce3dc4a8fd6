package navigation

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/auth"
)

type Handler struct {
	menu Menu
}

func NewHandler(menu Menu) *Handler {
	return &Handler{menu: menu}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/navigation", h.Menu)
}

// Menu returns the entries visible to any of the caller's roles.
func (h *Handler) Menu(c echo.Context) error {
	roles := auth.RolesFromContext(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]interface{}{
		"roles": roles,
		"items": h.menu.visible(roles),
	})
}
