package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// Update and UpdateStatus only write while the stored status matches
	// the one the caller read (a.Status, from). Otherwise they fail with
	// CONFLICT.
	Update(ctx context.Context, a *Appointment) error
	UpdateStatus(ctx context.Context, id uuid.UUID, from, status string) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Appointment, int, error)
	// ListForDoctor returns the doctor's non-cancelled, non-no-show
	// appointments starting in [from, to).
	ListForDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*Appointment, error)
	// LockDoctor serializes booking for one doctor until the surrounding
	// transaction ends.
	LockDoctor(ctx context.Context, doctorID uuid.UUID) error
}
