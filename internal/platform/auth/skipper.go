package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// publicRoutes maps route paths to the methods that need no bearer token.
// Everything under /api/v1 apart from login is authenticated.
var publicRoutes = map[string][]string{
	"/health":            {http.MethodGet, http.MethodHead},
	"/health/ready":      {http.MethodGet, http.MethodHead},
	"/api/v1/auth/login": {http.MethodPost},
}

// AuthSkipper lets health checks, the login call and CORS preflight
// requests through without a token.
func AuthSkipper(c echo.Context) bool {
	req := c.Request()
	if req.Method == http.MethodOptions && req.Header.Get(echo.HeaderAccessControlRequestMethod) != "" {
		return true
	}
	path := c.Path()
	if path == "" {
		path = req.URL.Path
	}
	return IsPublic(req.Method, path)
}

// IsPublic reports whether method and path name one of the unauthenticated
// routes. A trailing slash is ignored.
func IsPublic(method, path string) bool {
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	for _, m := range publicRoutes[path] {
		if m == method {
			return true
		}
	}
	return false
}
