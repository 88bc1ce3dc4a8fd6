package scheduling

import (
	"time"

	"github.com/google/uuid"
)

const DefaultDurationMinutes = 30

const (
	StatusScheduled = "scheduled"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no-show"
)

type Appointment struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID        uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	AppointmentDate time.Time  `db:"appointment_date" json:"appointment_date"`
	DurationMinutes int        `db:"duration_minutes" json:"duration_minutes"`
	AppointmentType string     `db:"appointment_type" json:"appointment_type"`
	Status          string     `db:"status" json:"status"`
	Reason          *string    `db:"reason" json:"reason,omitempty"`
	Notes           *string    `db:"notes" json:"notes,omitempty"`
	Symptoms        *string    `db:"symptoms" json:"symptoms,omitempty"`
	Diagnosis       *string    `db:"diagnosis" json:"diagnosis,omitempty"`
	Treatment       *string    `db:"treatment" json:"treatment,omitempty"`
	CreatedBy       *uuid.UUID `db:"created_by" json:"created_by,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// End returns the time the appointment slot ends.
func (a *Appointment) End() time.Time {
	return a.AppointmentDate.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Overlaps reports whether the half-open slots [start, end) of a and b
// intersect.
func (a *Appointment) Overlaps(b *Appointment) bool {
	return a.AppointmentDate.Before(b.End()) && b.AppointmentDate.Before(a.End())
}

// Active reports whether the appointment still occupies the doctor's slot.
func (a *Appointment) Active() bool {
	return a.Status != StatusCancelled && a.Status != StatusNoShow
}

// ClinicalUpdate holds the fields a clinician may fill after the visit.
type ClinicalUpdate struct {
	AppointmentDate *time.Time `json:"appointment_date"`
	DurationMinutes *int       `json:"duration_minutes"`
	AppointmentType *string    `json:"appointment_type"`
	Reason          *string    `json:"reason"`
	Notes           *string    `json:"notes"`
	Symptoms        *string    `json:"symptoms"`
	Diagnosis       *string    `json:"diagnosis"`
	Treatment       *string    `json:"treatment"`
}

type StatusChange struct {
	Status string `json:"status"`
}
