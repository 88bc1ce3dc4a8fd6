package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/apperror"
	"github.com/hms/hms/internal/platform/db"
)

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

var apptColumns = []string{"id", "patient_id", "doctor_id", "appointment_date", "duration_minutes",
	"appointment_type", "status", "reason", "notes", "symptoms", "diagnosis", "treatment",
	"created_by", "created_at", "updated_at"}

const apptCols = `id, patient_id, doctor_id, appointment_date, duration_minutes,
	appointment_type, status, reason, notes, symptoms, diagnosis, treatment,
	created_by, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.AppointmentDate, &a.DurationMinutes,
		&a.AppointmentType, &a.Status, &a.Reason, &a.Notes, &a.Symptoms, &a.Diagnosis, &a.Treatment,
		&a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, appointment_date, duration_minutes,
			appointment_type, status, reason, notes, symptoms, diagnosis, treatment, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.AppointmentDate, a.DurationMinutes,
		a.AppointmentType, a.Status, a.Reason, a.Notes, a.Symptoms, a.Diagnosis, a.Treatment, a.CreatedBy,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("appointment")
	}
	return a, err
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments SET appointment_date=$2, duration_minutes=$3, appointment_type=$4,
			reason=$5, notes=$6, symptoms=$7, diagnosis=$8, treatment=$9, updated_at=NOW()
		WHERE id = $1 AND status = $10
		RETURNING updated_at`,
		a.ID, a.AppointmentDate, a.DurationMinutes, a.AppointmentType,
		a.Reason, a.Notes, a.Symptoms, a.Diagnosis, a.Treatment, a.Status,
	).Scan(&a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.missed(ctx, a.ID, a.Status)
	}
	return err
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, from, status string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET status=$3, updated_at=NOW()
		WHERE id = $1 AND status = $2`, id, from, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missed(ctx, id, from)
	}
	return nil
}

// missed tells a missing appointment apart from one whose status changed
// after it was read.
func (r *appointmentRepoPG) missed(ctx context.Context, id uuid.UUID, from string) error {
	var exists bool
	if err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return apperror.NotFound("appointment")
	}
	return apperror.Conflict("appointment is no longer %s", from)
}

var appointmentFilters = map[string]db.Filter{
	"patient_id": {Column: "patient_id", Kind: db.FilterUUID},
	"doctor_id":  {Column: "doctor_id", Kind: db.FilterUUID},
	"status":     {Column: "status"},
	"type":       {Column: "appointment_type"},
	"from":       {Column: "appointment_date", Kind: db.FilterFrom},
	"to":         {Column: "appointment_date", Kind: db.FilterTo},
}

func (r *appointmentRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Appointment, int, error) {
	where, err := db.BuildFilters(params, appointmentFilters)
	if err != nil {
		return nil, 0, err
	}
	dataSQL, dataArgs, countSQL, countArgs, err := db.SelectPage("appointments", db.Columns(apptColumns...), where, "appointment_date", limit, offset)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, dataSQL, dataArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *appointmentRepoPG) ListForDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+apptCols+` FROM appointments
		WHERE doctor_id = $1 AND appointment_date >= $2 AND appointment_date < $3
			AND status NOT IN ('cancelled', 'no-show')
		ORDER BY appointment_date`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *appointmentRepoPG) LockDoctor(ctx context.Context, doctorID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1::text))`, doctorID.String())
	return err
}
