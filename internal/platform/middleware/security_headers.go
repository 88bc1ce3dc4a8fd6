package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// SecurityConfig tunes SecurityHeaders.
type SecurityConfig struct {
	// HSTS adds Strict-Transport-Security to responses served over HTTPS,
	// directly or behind a proxy that sets X-Forwarded-Proto.
	HSTS bool
	// PrivatePrefix marks routes whose responses carry patient or account
	// data and must never be stored by a cache.
	PrivatePrefix string
}

// SecurityHeaders hardens every JSON response. Responses under
// PrivatePrefix are additionally marked uncacheable; health endpoints are
// left to the default caching rules.
func SecurityHeaders(cfg SecurityConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set(echo.HeaderXContentTypeOptions, "nosniff")
			h.Set(echo.HeaderXFrameOptions, "DENY")
			h.Set(echo.HeaderContentSecurityPolicy, "default-src 'none'; frame-ancestors 'none'")
			h.Set(echo.HeaderReferrerPolicy, "no-referrer")
			h.Set("Cross-Origin-Resource-Policy", "same-origin")

			if cfg.PrivatePrefix != "" && strings.HasPrefix(c.Request().URL.Path, cfg.PrivatePrefix) {
				h.Set(echo.HeaderCacheControl, "no-store")
				h.Set("Pragma", "no-cache")
			}
			if cfg.HSTS && c.Scheme() == "https" {
				h.Set(echo.HeaderStrictTransportSecurity, "max-age=31536000; includeSubDomains")
			}
			return next(c)
		}
	}
}
