package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type PaymentRepository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	Void(ctx context.Context, p *Payment) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Payment, int, error)
}

type HMORepository interface {
	Create(ctx context.Context, h *HMOProvider) error
	GetByID(ctx context.Context, id uuid.UUID) (*HMOProvider, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*HMOProvider, int, error)
}

type PreauthRepository interface {
	Create(ctx context.Context, p *PreAuthorization) error
	GetByID(ctx context.Context, id uuid.UUID) (*PreAuthorization, error)
	Decide(ctx context.Context, p *PreAuthorization) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*PreAuthorization, int, error)
}

type ClaimRepository interface {
	Create(ctx context.Context, c *Claim) error
	// GetByID returns the claim with its items.
	GetByID(ctx context.Context, id uuid.UUID) (*Claim, error)
	// GetForUpdate is GetByID with the claim row locked for the transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Claim, error)
	Update(ctx context.Context, c *Claim) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Claim, int, error)

	AddItem(ctx context.Context, item *ClaimItem) error
	UpdateItem(ctx context.Context, item *ClaimItem) error
	RemoveItem(ctx context.Context, claimID, itemID uuid.UUID) error
}

type ServiceCodeRepository interface {
	ListActive(ctx context.Context) ([]*ServiceCode, error)
}

type ReportRepository interface {
	PaymentTotals(ctx context.Context, from, to time.Time) ([]PaymentAggregate, error)
	ClaimTotals(ctx context.Context, from, to time.Time) ([]ClaimAggregate, error)
}
