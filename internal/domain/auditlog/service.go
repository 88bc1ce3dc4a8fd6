// Package auditlog stores and lists the append-only record of who changed
// what through the API.
package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/apperror"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/middleware"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Record(ctx context.Context, e *Entry) error {
	e.Action = strings.ToLower(strings.TrimSpace(e.Action))
	if !validActions[e.Action] {
		return apperror.Validation("invalid audit action: %q", e.Action)
	}
	e.ResourceType = strings.TrimSpace(e.ResourceType)
	if e.ResourceType == "" {
		return apperror.Validation("resource_type is required")
	}
	return s.repo.Create(ctx, e)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, params map[string]string, limit, offset int) ([]*Entry, int, error) {
	return s.repo.Search(ctx, params, limit, offset)
}

// RecordChange stores an update of one resource with JSON snapshots taken
// before and after it. The acting user comes from ctx.
func (s *Service) RecordChange(ctx context.Context, resourceType string, id uuid.UUID, before, after any) error {
	oldValues, err := json.Marshal(before)
	if err != nil {
		return fmt.Errorf("encode old values: %w", err)
	}
	newValues, err := json.Marshal(after)
	if err != nil {
		return fmt.Errorf("encode new values: %w", err)
	}
	rid := id.String()
	e := &Entry{
		Action:       "update",
		ResourceType: resourceType,
		ResourceID:   &rid,
		OldValues:    oldValues,
		NewValues:    newValues,
	}
	if uid, err := uuid.Parse(auth.UserIDFromContext(ctx)); err == nil {
		e.UserID = &uid
	}
	return s.Record(ctx, e)
}

// RecordAccess stores an entry captured by the audit middleware.
func (s *Service) RecordAccess(ctx context.Context, a middleware.AuditEntry) error {
	return s.Record(ctx, FromAccess(a))
}

var _ middleware.AuditRecorder = (*Service)(nil)

// FromAccess converts a middleware entry. Empty strings become NULLs and an
// unparsable user id is dropped.
func FromAccess(a middleware.AuditEntry) *Entry {
	e := &Entry{
		Action:       a.Action,
		ResourceType: a.ResourceType,
		ResourceID:   optional(a.ResourceID),
		IPAddress:    optional(a.IPAddress),
		UserAgent:    optional(a.UserAgent),
		RequestID:    optional(a.RequestID),
		Method:       optional(a.Method),
		Path:         optional(a.Path),
	}
	if id, err := uuid.Parse(a.UserID); err == nil {
		e.UserID = &id
	}
	if a.StatusCode != 0 {
		code := a.StatusCode
		e.StatusCode = &code
	}
	return e
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
