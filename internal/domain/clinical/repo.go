package clinical

import (
	"context"

	"github.com/google/uuid"
)

type RecordRepository interface {
	Create(ctx context.Context, r *MedicalRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*MedicalRecord, error)
	Update(ctx context.Context, r *MedicalRecord) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*MedicalRecord, int, error)
}

type VitalsRepository interface {
	Create(ctx context.Context, v *VitalSigns) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*VitalSigns, int, error)
	Latest(ctx context.Context, patientID uuid.UUID) (*VitalSigns, error)
}
