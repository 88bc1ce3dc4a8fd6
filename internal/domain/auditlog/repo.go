package auditlog

import (
	"context"

	"github.com/google/uuid"
)

// Repository is insert and read only; audit rows are never changed.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Entry, int, error)
}
