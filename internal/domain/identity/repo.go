package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	Update(ctx context.Context, u *User) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*User, int, error)
}

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByMRN(ctx context.Context, mrn string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error)
	// CountMRNPrefix counts patients whose MRN starts with prefix.
	CountMRNPrefix(ctx context.Context, prefix string) (int, error)
}
