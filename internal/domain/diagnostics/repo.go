package diagnostics

import (
	"context"

	"github.com/google/uuid"
)

type LabResultRepository interface {
	Create(ctx context.Context, l *LabResult) error
	GetByID(ctx context.Context, id uuid.UUID) (*LabResult, error)
	// Update writes l only while the stored status is still from. A result
	// that has moved on fails with CONFLICT.
	Update(ctx context.Context, l *LabResult, from string) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*LabResult, int, error)
}

type InventoryRepository interface {
	Create(ctx context.Context, i *LabItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*LabItem, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*LabItem, int, error)
	// Adjust adds delta to the item's quantity. It fails with CONFLICT
	// when the result would be negative.
	Adjust(ctx context.Context, id uuid.UUID, delta int) (*LabItem, error)
}
