package diagnostics

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusOrdered    = "ordered"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusVerified   = "verified"
)

var validPriorities = map[string]bool{"routine": true, "urgent": true, "stat": true}

type LabResult struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	PatientID      uuid.UUID  `db:"patient_id" json:"patient_id"`
	OrderedBy      uuid.UUID  `db:"ordered_by" json:"ordered_by"`
	PerformedBy    *uuid.UUID `db:"performed_by" json:"performed_by,omitempty"`
	VerifiedBy     *uuid.UUID `db:"verified_by" json:"verified_by,omitempty"`
	TestType       string     `db:"test_type" json:"test_type"`
	TestName       string     `db:"test_name" json:"test_name"`
	Priority       string     `db:"priority" json:"priority"`
	Status         string     `db:"status" json:"status"`
	OrderedAt      time.Time  `db:"ordered_at" json:"ordered_at"`
	PerformedAt    *time.Time `db:"performed_at" json:"performed_at,omitempty"`
	CompletedAt    *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	VerifiedAt     *time.Time `db:"verified_at" json:"verified_at,omitempty"`
	Results        *string    `db:"results" json:"results,omitempty"`
	ReferenceRange *string    `db:"reference_range" json:"reference_range,omitempty"`
	Notes          *string    `db:"notes" json:"notes,omitempty"`
	CriticalValues bool       `db:"critical_values" json:"critical_values"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// CompleteRequest carries the outcome entered by the lab technician.
type CompleteRequest struct {
	Results        string  `json:"results"`
	ReferenceRange *string `json:"reference_range"`
	Notes          *string `json:"notes"`
	CriticalValues bool    `json:"critical_values"`
}

// next is the only status each lab status may advance to.
var next = map[string]string{
	StatusOrdered:    StatusInProgress,
	StatusInProgress: StatusCompleted,
	StatusCompleted:  StatusVerified,
}

// =========== Lab Inventory ===========

type LabItem struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Name         string     `db:"name" json:"name"`
	Category     *string    `db:"category" json:"category,omitempty"`
	Unit         string     `db:"unit" json:"unit"`
	Quantity     int        `db:"quantity" json:"quantity"`
	ReorderLevel int        `db:"reorder_level" json:"reorder_level"`
	ExpiryDate   *time.Time `db:"expiry_date" json:"expiry_date,omitempty"`
	Supplier     *string    `db:"supplier" json:"supplier,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// LowStock reports whether the item is at or below its reorder level.
func (i *LabItem) LowStock() bool {
	return i.Quantity <= i.ReorderLevel
}

type AdjustRequest struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}
