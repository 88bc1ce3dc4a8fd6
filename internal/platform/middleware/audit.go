package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/auth"
)

// AuditEntry describes one audited API call.
type AuditEntry struct {
	UserID       string
	UserRoles    []string
	Action       string // create, update, delete, read
	ResourceType string
	ResourceID   string
	IPAddress    string
	UserAgent    string
	Path         string
	Method       string
	StatusCode   int
	RequestID    string
	Timestamp    time.Time
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	RecordAccess(ctx context.Context, entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(ctx context.Context, entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(ctx context.Context, entry AuditEntry) error {
	return f(ctx, entry)
}

// Audit logs every /api/v1 request and hands successful mutating requests to
// recorder. A nil recorder logs only. Recorder failures are logged and never
// fail the request.
func Audit(logger zerolog.Logger, recorder AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, "/api/v1/") {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}

			ctx := req.Context()
			entry := AuditEntry{
				UserID:     auth.UserIDFromContext(ctx),
				UserRoles:  auth.RolesFromContext(ctx),
				Action:     httpMethodToAction(req.Method),
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				Path:       req.URL.Path,
				Method:     req.Method,
				StatusCode: status,
				Timestamp:  time.Now().UTC(),
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}
			entry.ResourceType, entry.ResourceID = extractResource(req.URL.Path)

			if recorder != nil && err == nil && entry.Action != "read" && status < http.StatusBadRequest {
				// the request context may already be cancelled by the client
				recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
				if recErr := recorder.RecordAccess(recCtx, entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
				cancel()
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("action", entry.Action).
				Str("resource_type", entry.ResourceType).
				Str("resource_id", entry.ResourceID).
				Int("status", entry.StatusCode).
				Str("remote_ip", entry.IPAddress).
				Msg("api_access")

			return err
		}
	}
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// extractResource parses /api/v1/<type>[/<id>[/...]]. The id is the first
// UUID-shaped segment after the type.
//
//	/api/v1/patients                     -> patients, ""
//	/api/v1/patients/<uuid>              -> patients, <uuid>
//	/api/v1/prescriptions/<uuid>/dispense -> prescriptions, <uuid>
func extractResource(path string) (resourceType, resourceID string) {
	segments := strings.Split(strings.Trim(strings.TrimPrefix(path, "/api/v1/"), "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return "unknown", ""
	}
	resourceType = segments[0]
	for _, s := range segments[1:] {
		if _, err := uuid.Parse(s); err == nil {
			return resourceType, s
		}
	}
	return resourceType, ""
}
