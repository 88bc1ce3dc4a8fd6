package clinical

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/apperror"
	"github.com/hms/hms/internal/platform/db"
)

// =========== Medical Record Repository ===========

type recordRepoPG struct{ pool *pgxpool.Pool }

func NewRecordRepoPG(pool *pgxpool.Pool) RecordRepository { return &recordRepoPG{pool: pool} }

func (r *recordRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

var recordColumns = []string{"id", "patient_id", "provider_id", "appointment_id", "record_type",
	"title", "content", "status", "amendment_reason", "finalized_at", "created_at", "updated_at"}

const recordCols = `id, patient_id, provider_id, appointment_id, record_type,
	title, content, status, amendment_reason, finalized_at, created_at, updated_at`

func scanRecord(row pgx.Row) (*MedicalRecord, error) {
	var m MedicalRecord
	err := row.Scan(&m.ID, &m.PatientID, &m.ProviderID, &m.AppointmentID, &m.RecordType,
		&m.Title, &m.Content, &m.Status, &m.AmendmentReason, &m.FinalizedAt, &m.CreatedAt, &m.UpdatedAt)
	return &m, err
}

func (r *recordRepoPG) Create(ctx context.Context, m *MedicalRecord) error {
	m.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medical_records (id, patient_id, provider_id, appointment_id, record_type,
			title, content, status, finalized_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		m.ID, m.PatientID, m.ProviderID, m.AppointmentID, m.RecordType,
		m.Title, m.Content, m.Status, m.FinalizedAt,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
}

func (r *recordRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*MedicalRecord, error) {
	m, err := scanRecord(r.conn(ctx).QueryRow(ctx, `SELECT `+recordCols+` FROM medical_records WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("medical record")
	}
	return m, err
}

func (r *recordRepoPG) Update(ctx context.Context, m *MedicalRecord) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE medical_records SET title=$2, content=$3, status=$4, amendment_reason=$5,
			finalized_at=$6, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		m.ID, m.Title, m.Content, m.Status, m.AmendmentReason, m.FinalizedAt,
	).Scan(&m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.NotFound("medical record")
	}
	return err
}

var recordFilters = map[string]db.Filter{
	"patient_id":  {Column: "patient_id", Kind: db.FilterUUID},
	"provider_id": {Column: "provider_id", Kind: db.FilterUUID},
	"record_type": {Column: "record_type"},
	"status":      {Column: "status"},
	"from":        {Column: "created_at", Kind: db.FilterFrom},
	"to":          {Column: "created_at", Kind: db.FilterTo},
	"q":           {Kind: db.FilterSearch, Columns: []string{"title", "content"}},
}

func (r *recordRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*MedicalRecord, int, error) {
	where, err := db.BuildFilters(params, recordFilters)
	if err != nil {
		return nil, 0, err
	}
	dataSQL, dataArgs, countSQL, countArgs, err := db.SelectPage("medical_records", db.Columns(recordColumns...), where, "created_at", limit, offset)
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
	var items []*MedicalRecord
	for rows.Next() {
		m, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}

// =========== Vital Signs Repository ===========

type vitalsRepoPG struct{ pool *pgxpool.Pool }

func NewVitalsRepoPG(pool *pgxpool.Pool) VitalsRepository { return &vitalsRepoPG{pool: pool} }

func (r *vitalsRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

var vitalsColumns = []string{"id", "patient_id", "recorded_by", "recorded_at", "systolic_bp",
	"diastolic_bp", "heart_rate", "temperature", "respiratory_rate", "oxygen_saturation",
	"weight", "height", "bmi", "notes", "created_at"}

const vitalsCols = `id, patient_id, recorded_by, recorded_at, systolic_bp,
	diastolic_bp, heart_rate, temperature, respiratory_rate, oxygen_saturation,
	weight, height, bmi, notes, created_at`

func scanVitals(row pgx.Row) (*VitalSigns, error) {
	var v VitalSigns
	err := row.Scan(&v.ID, &v.PatientID, &v.RecordedBy, &v.RecordedAt, &v.SystolicBP,
		&v.DiastolicBP, &v.HeartRate, &v.Temperature, &v.RespiratoryRate, &v.OxygenSaturation,
		&v.Weight, &v.Height, &v.BMI, &v.Notes, &v.CreatedAt)
	return &v, err
}

func (r *vitalsRepoPG) Create(ctx context.Context, v *VitalSigns) error {
	v.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO vital_signs (id, patient_id, recorded_by, recorded_at, systolic_bp,
			diastolic_bp, heart_rate, temperature, respiratory_rate, oxygen_saturation,
			weight, height, bmi, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING created_at`,
		v.ID, v.PatientID, v.RecordedBy, v.RecordedAt, v.SystolicBP,
		v.DiastolicBP, v.HeartRate, v.Temperature, v.RespiratoryRate, v.OxygenSaturation,
		v.Weight, v.Height, v.BMI, v.Notes,
	).Scan(&v.CreatedAt)
}

var vitalsFilters = map[string]db.Filter{
	"patient_id":  {Column: "patient_id", Kind: db.FilterUUID},
	"recorded_by": {Column: "recorded_by", Kind: db.FilterUUID},
	"from":        {Column: "recorded_at", Kind: db.FilterFrom},
	"to":          {Column: "recorded_at", Kind: db.FilterTo},
}

func (r *vitalsRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*VitalSigns, int, error) {
	where, err := db.BuildFilters(params, vitalsFilters)
	if err != nil {
		return nil, 0, err
	}
	dataSQL, dataArgs, countSQL, countArgs, err := db.SelectPage("vital_signs", db.Columns(vitalsColumns...), where, "recorded_at", limit, offset)
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
	var items []*VitalSigns
	for rows.Next() {
		v, err := scanVitals(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, v)
	}
	return items, total, rows.Err()
}

func (r *vitalsRepoPG) Latest(ctx context.Context, patientID uuid.UUID) (*VitalSigns, error) {
	v, err := scanVitals(r.conn(ctx).QueryRow(ctx, `SELECT `+vitalsCols+` FROM vital_signs
		WHERE patient_id = $1 ORDER BY recorded_at DESC LIMIT 1`, patientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("vital signs")
	}
	return v, err
}
