package pharmacy

import (
	"context"

	"github.com/google/uuid"
)

type PrescriptionRepository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	// GetForUpdate loads the prescription and locks its row until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Prescription, error)
	// UpdateState writes st only while the stored status is still from,
	// failing with CONFLICT otherwise.
	UpdateState(ctx context.Context, id uuid.UUID, from string, st RxState) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Prescription, int, error)
}

type DrugRepository interface {
	Create(ctx context.Context, d *DrugStock) error
	GetByID(ctx context.Context, id uuid.UUID) (*DrugStock, error)
	GetByCode(ctx context.Context, code string) (*DrugStock, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*DrugStock, int, error)
	Restock(ctx context.Context, id uuid.UUID, qty int) (*DrugStock, error)
	// Decrement removes qty units of code, failing with CONFLICT when
	// fewer are on hand.
	Decrement(ctx context.Context, code string, qty int) error
}

type DispenseRepository interface {
	Create(ctx context.Context, d *Dispense) error
	GetByID(ctx context.Context, id uuid.UUID) (*Dispense, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Dispense, int, error)
	// DeleteDraft removes a draft dispense. Final dispenses are never deleted.
	DeleteDraft(ctx context.Context, id uuid.UUID) error
}
