package identity

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

func notFound(err error, resource string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.NotFound(resource)
	}
	return err
}

// =========== User Repository ===========

type userRepoPG struct{ pool *pgxpool.Pool }

func NewUserRepoPG(pool *pgxpool.Pool) UserRepository { return &userRepoPG{pool: pool} }

func (r *userRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

var userColumns = []string{"id", "username", "email", "password_hash", "first_name", "last_name",
	"role", "department", "specialty", "license_number", "phone", "active", "last_login_at",
	"created_at", "updated_at"}

const userCols = `id, username, email, password_hash, first_name, last_name,
	role, department, specialty, license_number, phone, active, last_login_at,
	created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.Role, &u.Department, &u.Specialty, &u.LicenseNumber, &u.Phone, &u.Active, &u.LastLoginAt,
		&u.CreatedAt, &u.UpdatedAt)
	return &u, err
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	u.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO users (id, username, email, password_hash, first_name, last_name,
			role, department, specialty, license_number, phone, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at, updated_at`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.FirstName, u.LastName,
		u.Role, u.Department, u.Specialty, u.LicenseNumber, u.Phone, u.Active,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "user")
	}
	return u, nil
}

func (r *userRepoPG) GetByUsername(ctx context.Context, username string) (*User, error) {
	u, err := scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE username = $1`, username))
	if err != nil {
		return nil, notFound(err, "user")
	}
	return u, nil
}

func (r *userRepoPG) Update(ctx context.Context, u *User) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE users SET email=$2, password_hash=$3, first_name=$4, last_name=$5, role=$6,
			department=$7, specialty=$8, license_number=$9, phone=$10, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Role,
		u.Department, u.Specialty, u.LicenseNumber, u.Phone,
	).Scan(&u.UpdatedAt)
}

func (r *userRepoPG) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE users SET active=$2, updated_at=NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("user")
	}
	return nil
}

func (r *userRepoPG) TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE users SET last_login_at=$2 WHERE id = $1`, id, at)
	return err
}

var userFilters = map[string]db.Filter{
	"role":       {Column: "role"},
	"department": {Column: "department"},
	"active":     {Column: "active", Kind: db.FilterBool},
	"q":          {Kind: db.FilterSearch, Columns: []string{"username", "first_name", "last_name", "email"}},
}

func (r *userRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*User, int, error) {
	where, err := db.BuildFilters(params, userFilters)
	if err != nil {
		return nil, 0, err
	}
	dataSQL, dataArgs, countSQL, countArgs, err := db.SelectPage("users", db.Columns(userColumns...), where, "created_at", limit, offset)
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
	var items []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, u)
	}
	return items, total, rows.Err()
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

func (r *patientRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

var patientColumns = []string{"id", "mrn", "first_name", "last_name", "date_of_birth", "gender",
	"phone", "email", "address", "emergency_contact_name", "emergency_contact_phone", "blood_type",
	"insurance", "medical_history", "allergies", "current_medications", "assigned_doctor", "status",
	"created_at", "updated_at"}

const patientCols = `id, mrn, first_name, last_name, date_of_birth, gender,
	phone, email, address, emergency_contact_name, emergency_contact_phone, blood_type,
	insurance, medical_history, allergies, current_medications, assigned_doctor, status,
	created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.MRN, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Gender,
		&p.Phone, &p.Email, &p.Address, &p.EmergencyContactName, &p.EmergencyContactPhone, &p.BloodType,
		&p.Insurance, &p.MedicalHistory, &p.AllergiesText, &p.CurrentMedications, &p.AssignedDoctor, &p.Status,
		&p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, mrn, first_name, last_name, date_of_birth, gender,
			phone, email, address, emergency_contact_name, emergency_contact_phone, blood_type,
			insurance, medical_history, allergies, current_medications, assigned_doctor, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING created_at, updated_at`,
		p.ID, p.MRN, p.FirstName, p.LastName, p.DateOfBirth, p.Gender,
		p.Phone, p.Email, p.Address, p.EmergencyContactName, p.EmergencyContactPhone, p.BloodType,
		p.Insurance, p.MedicalHistory, p.AllergiesText, p.CurrentMedications, p.AssignedDoctor, p.Status,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "patient")
	}
	return p, nil
}

func (r *patientRepoPG) GetByMRN(ctx context.Context, mrn string) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE mrn = $1`, mrn))
	if err != nil {
		return nil, notFound(err, "patient")
	}
	return p, nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE patients SET first_name=$2, last_name=$3, date_of_birth=$4, gender=$5,
			phone=$6, email=$7, address=$8, emergency_contact_name=$9, emergency_contact_phone=$10,
			blood_type=$11, insurance=$12, medical_history=$13, allergies=$14,
			current_medications=$15, assigned_doctor=$16, status=$17, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.FirstName, p.LastName, p.DateOfBirth, p.Gender,
		p.Phone, p.Email, p.Address, p.EmergencyContactName, p.EmergencyContactPhone,
		p.BloodType, p.Insurance, p.MedicalHistory, p.AllergiesText,
		p.CurrentMedications, p.AssignedDoctor, p.Status,
	).Scan(&p.UpdatedAt)
}

var patientFilters = map[string]db.Filter{
	"status":          {Column: "status"},
	"assigned_doctor": {Column: "assigned_doctor", Kind: db.FilterUUID},
	"gender":          {Column: "gender"},
	"q":               {Kind: db.FilterSearch, Columns: []string{"first_name", "last_name", "mrn", "phone"}},
}

func (r *patientRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error) {
	where, err := db.BuildFilters(params, patientFilters)
	if err != nil {
		return nil, 0, err
	}
	dataSQL, dataArgs, countSQL, countArgs, err := db.SelectPage("patients", db.Columns(patientColumns...), where, "created_at", limit, offset)
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
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *patientRepoPG) CountMRNPrefix(ctx context.Context, prefix string) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients WHERE mrn LIKE $1`, prefix+"%").Scan(&n)
	return n, err
}
