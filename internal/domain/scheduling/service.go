package scheduling

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/apperror"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
)

// Directory resolves the people an appointment refers to.
type Directory interface {
	PatientExists(ctx context.Context, id uuid.UUID) (bool, error)
	UserHasRole(ctx context.Context, id uuid.UUID, role string) (bool, error)
}

type Service struct {
	appts AppointmentRepository
	dir   Directory
	tx    db.TxRunner
}

func NewService(appts AppointmentRepository, dir Directory, tx db.TxRunner) *Service {
	if tx == nil {
		tx = db.NoopTxRunner{}
	}
	return &Service{appts: appts, dir: dir, tx: tx}
}

var validStatuses = map[string]bool{
	StatusScheduled: true, StatusConfirmed: true, StatusCompleted: true,
	StatusCancelled: true, StatusNoShow: true,
}

var transitions = map[string]map[string]bool{
	StatusScheduled: {StatusConfirmed: true, StatusCancelled: true, StatusNoShow: true, StatusCompleted: true},
	StatusConfirmed: {StatusCompleted: true, StatusCancelled: true, StatusNoShow: true},
}

// CanTransition reports whether an appointment may move from one status to
// another. Completed, cancelled and no-show are terminal.
func CanTransition(from, to string) bool {
	return transitions[from][to]
}

func IsTerminal(status string) bool {
	return validStatuses[status] && len(transitions[status]) == 0
}

// longest slot considered when looking for overlaps
const maxDuration = 8 * time.Hour

func (s *Service) validate(a *Appointment) error {
	if a.PatientID == uuid.Nil {
		return apperror.Validation("patient_id is required")
	}
	if a.DoctorID == uuid.Nil {
		return apperror.Validation("doctor_id is required")
	}
	if a.AppointmentDate.IsZero() {
		return apperror.Validation("appointment_date is required")
	}
	if a.DurationMinutes == 0 {
		a.DurationMinutes = DefaultDurationMinutes
	}
	if a.DurationMinutes < 0 || time.Duration(a.DurationMinutes)*time.Minute > maxDuration {
		return apperror.Validation("duration_minutes must be between 1 and %d", int(maxDuration.Minutes()))
	}
	a.AppointmentType = strings.TrimSpace(a.AppointmentType)
	if a.AppointmentType == "" {
		a.AppointmentType = "consultation"
	}
	return nil
}

func (s *Service) checkParties(ctx context.Context, a *Appointment) error {
	if s.dir == nil {
		return nil
	}
	ok, err := s.dir.PatientExists(ctx, a.PatientID)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.Validation("patient does not exist")
	}
	ok, err = s.dir.UserHasRole(ctx, a.DoctorID, auth.RoleDoctor)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.Validation("doctor_id must reference an active doctor")
	}
	return nil
}

// checkConflict fails when the doctor already holds an active appointment
// overlapping a. Must run inside the doctor lock.
func (s *Service) checkConflict(ctx context.Context, a *Appointment) error {
	existing, err := s.appts.ListForDoctor(ctx, a.DoctorID, a.AppointmentDate.Add(-maxDuration), a.End())
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.ID == a.ID || !other.Active() {
			continue
		}
		if a.Overlaps(other) {
			return apperror.Conflict("doctor already has an appointment from %s to %s",
				other.AppointmentDate.Format(time.RFC3339), other.End().Format(time.RFC3339))
		}
	}
	return nil
}

func (s *Service) CreateAppointment(ctx context.Context, a *Appointment) error {
	if err := s.validate(a); err != nil {
		return err
	}
	if err := s.checkParties(ctx, a); err != nil {
		return err
	}
	a.Status = StatusScheduled
	if uid, err := uuid.Parse(auth.UserIDFromContext(ctx)); err == nil {
		a.CreatedBy = &uid
	}

	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.appts.LockDoctor(ctx, a.DoctorID); err != nil {
			return err
		}
		if err := s.checkConflict(ctx, a); err != nil {
			return err
		}
		return s.appts.Create(ctx, a)
	})
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appts.GetByID(ctx, id)
}

func (s *Service) ListAppointments(ctx context.Context, params map[string]string, limit, offset int) ([]*Appointment, int, error) {
	if st := params["status"]; st != "" && !validStatuses[st] {
		return nil, 0, apperror.Validation("invalid appointment status: %s", st)
	}
	return s.appts.Search(ctx, params, limit, offset)
}

// UpdateAppointment applies clinical and scheduling changes. Rescheduling a
// closed appointment is rejected and a new slot is checked for conflicts.
func (s *Service) UpdateAppointment(ctx context.Context, id uuid.UUID, u *ClinicalUpdate) (*Appointment, error) {
	var out *Appointment
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.appts.GetByID(ctx, id)
		if err != nil {
			return err
		}

		rescheduled := false
		if u.AppointmentDate != nil && !u.AppointmentDate.Equal(a.AppointmentDate) {
			a.AppointmentDate = *u.AppointmentDate
			rescheduled = true
		}
		if u.DurationMinutes != nil && *u.DurationMinutes != a.DurationMinutes {
			a.DurationMinutes = *u.DurationMinutes
			rescheduled = true
		}
		if rescheduled && IsTerminal(a.Status) {
			return apperror.Validation("cannot reschedule a %s appointment", a.Status)
		}
		if u.AppointmentType != nil {
			a.AppointmentType = *u.AppointmentType
		}
		if u.Reason != nil {
			a.Reason = u.Reason
		}
		if u.Notes != nil {
			a.Notes = u.Notes
		}
		if u.Symptoms != nil {
			a.Symptoms = u.Symptoms
		}
		if u.Diagnosis != nil {
			a.Diagnosis = u.Diagnosis
		}
		if u.Treatment != nil {
			a.Treatment = u.Treatment
		}
		if err := s.validate(a); err != nil {
			return err
		}

		if rescheduled {
			if err := s.appts.LockDoctor(ctx, a.DoctorID); err != nil {
				return err
			}
			if err := s.checkConflict(ctx, a); err != nil {
				return err
			}
		}
		if err := s.appts.Update(ctx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}

// ChangeStatus moves an appointment along the status machine.
func (s *Service) ChangeStatus(ctx context.Context, id uuid.UUID, status string) (*Appointment, error) {
	if !validStatuses[status] {
		return nil, apperror.Validation("invalid appointment status: %s", status)
	}
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == status {
		return a, nil
	}
	if !CanTransition(a.Status, status) {
		return nil, apperror.Validation("cannot change appointment from %s to %s", a.Status, status)
	}
	if err := s.appts.UpdateStatus(ctx, id, a.Status, status); err != nil {
		return nil, err
	}
	a.Status = status
	return a, nil
}
