package pharmacy

import (
	"context"
	"errors"

	"github.com/doug-martin/goqu/v9"
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

// =========== Prescription Repository ===========

type prescriptionRepoPG struct{ pool *pgxpool.Pool }

func NewPrescriptionRepoPG(pool *pgxpool.Pool) PrescriptionRepository {
	return &prescriptionRepoPG{pool: pool}
}

func (r *prescriptionRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

var rxColumns = []string{"id", "patient_id", "prescribed_by", "appointment_id", "medications",
	"status", "refills_allowed", "refills_used", "delivered", "notes", "created_at", "updated_at"}

const rxCols = `id, patient_id, prescribed_by, appointment_id, medications,
	status, refills_allowed, refills_used, delivered, notes, created_at, updated_at`

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.PatientID, &p.PrescribedBy, &p.AppointmentID, &p.Medications,
		&p.Status, &p.RefillsAllowed, &p.RefillsUsed, &p.Delivered, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *prescriptionRepoPG) Create(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO prescriptions (id, patient_id, prescribed_by, appointment_id, medications,
			status, refills_allowed, refills_used, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		p.ID, p.PatientID, p.PrescribedBy, p.AppointmentID, p.Medications,
		p.Status, p.RefillsAllowed, p.RefillsUsed, p.Notes,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *prescriptionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	p, err := scanPrescription(r.conn(ctx).QueryRow(ctx, `SELECT `+rxCols+` FROM prescriptions WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "prescription")
	}
	return p, nil
}

func (r *prescriptionRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	p, err := scanPrescription(r.conn(ctx).QueryRow(ctx, `SELECT `+rxCols+` FROM prescriptions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err, "prescription")
	}
	return p, nil
}

func (r *prescriptionRepoPG) UpdateState(ctx context.Context, id uuid.UUID, from string, st RxState) error {
	delivered := st.Delivered
	if delivered == nil {
		delivered = map[string]int{}
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE prescriptions SET status=$3, refills_used=$4, delivered=$5, updated_at=NOW()
		WHERE id = $1 AND status = $2`,
		id, from, st.Status, st.RefillsUsed, delivered)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM prescriptions WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return apperror.NotFound("prescription")
		}
		return apperror.Conflict("prescription is no longer %s", from)
	}
	return nil
}

var rxFilters = map[string]db.Filter{
	"patient_id":    {Column: "patient_id", Kind: db.FilterUUID},
	"prescribed_by": {Column: "prescribed_by", Kind: db.FilterUUID},
	"status":        {Column: "status"},
	"from":          {Column: "created_at", Kind: db.FilterFrom},
	"to":            {Column: "created_at", Kind: db.FilterTo},
}

func (r *prescriptionRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Prescription, int, error) {
	where, err := db.BuildFilters(params, rxFilters)
	if err != nil {
		return nil, 0, err
	}
	if q := params["q"]; q != "" {
		// matches any medication name in the JSONB list
		where = append(where, goqu.L("medications::text ILIKE ?", "%"+q+"%"))
	}
	dataSQL, dataArgs, countSQL, countArgs, err := db.SelectPage("prescriptions", db.Columns(rxColumns...), where, "created_at", limit, offset)
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
	var items []*Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

// =========== Drug Inventory Repository ===========

type drugRepoPG struct{ pool *pgxpool.Pool }

func NewDrugRepoPG(pool *pgxpool.Pool) DrugRepository { return &drugRepoPG{pool: pool} }

func (r *drugRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

var drugColumns = []string{"id", "drug_code", "drug_name", "form", "strength", "quantity",
	"reorder_level", "unit_price", "expiry_date", "created_at", "updated_at"}

const drugCols = `id, drug_code, drug_name, form, strength, quantity,
	reorder_level, unit_price, expiry_date, created_at, updated_at`

func scanDrug(row pgx.Row) (*DrugStock, error) {
	var d DrugStock
	err := row.Scan(&d.ID, &d.DrugCode, &d.DrugName, &d.Form, &d.Strength, &d.Quantity,
		&d.ReorderLevel, &d.UnitPrice, &d.ExpiryDate, &d.CreatedAt, &d.UpdatedAt)
	return &d, err
}

func (r *drugRepoPG) Create(ctx context.Context, d *DrugStock) error {
	d.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO drug_inventory (id, drug_code, drug_name, form, strength, quantity,
			reorder_level, unit_price, expiry_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		d.ID, d.DrugCode, d.DrugName, d.Form, d.Strength, d.Quantity,
		d.ReorderLevel, d.UnitPrice, d.ExpiryDate,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
}

func (r *drugRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*DrugStock, error) {
	d, err := scanDrug(r.conn(ctx).QueryRow(ctx, `SELECT `+drugCols+` FROM drug_inventory WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "drug")
	}
	return d, nil
}

func (r *drugRepoPG) GetByCode(ctx context.Context, code string) (*DrugStock, error) {
	d, err := scanDrug(r.conn(ctx).QueryRow(ctx, `SELECT `+drugCols+` FROM drug_inventory WHERE drug_code = $1`, code))
	if err != nil {
		return nil, notFound(err, "drug")
	}
	return d, nil
}

var drugFilters = map[string]db.Filter{
	"drug_code": {Column: "drug_code"},
	"q":         {Kind: db.FilterSearch, Columns: []string{"drug_name", "drug_code"}},
}

func (r *drugRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*DrugStock, int, error) {
	where, err := db.BuildFilters(params, drugFilters)
	if err != nil {
		return nil, 0, err
	}
	if params["low_stock"] == "true" {
		where = append(where, goqu.L("quantity <= reorder_level"))
	}
	dataSQL, dataArgs, countSQL, countArgs, err := db.SelectPage("drug_inventory", db.Columns(drugColumns...), where, "updated_at", limit, offset)
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
	var items []*DrugStock
	for rows.Next() {
		d, err := scanDrug(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

func (r *drugRepoPG) Restock(ctx context.Context, id uuid.UUID, qty int) (*DrugStock, error) {
	d, err := scanDrug(r.conn(ctx).QueryRow(ctx, `
		UPDATE drug_inventory SET quantity = quantity + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+drugCols, id, qty))
	if err != nil {
		return nil, notFound(err, "drug")
	}
	return d, nil
}

func (r *drugRepoPG) Decrement(ctx context.Context, code string, qty int) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE drug_inventory SET quantity = quantity - $2, updated_at = NOW()
		WHERE drug_code = $1 AND quantity >= $2`, code, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperror.Conflict("insufficient stock for %s", code)
	}
	return nil
}

// =========== Dispense Repository ===========

type dispenseRepoPG struct{ pool *pgxpool.Pool }

func NewDispenseRepoPG(pool *pgxpool.Pool) DispenseRepository { return &dispenseRepoPG{pool: pool} }

func (r *dispenseRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

var dispenseColumns = []string{"id", "prescription_id", "patient_id", "pharmacist_id", "dispense_type",
	"status", "items", "checks", "counseling", "created_at", "finalized_at"}

const dispenseCols = `id, prescription_id, patient_id, pharmacist_id, dispense_type,
	status, items, checks, counseling, created_at, finalized_at`

func scanDispense(row pgx.Row) (*Dispense, error) {
	var d Dispense
	err := row.Scan(&d.ID, &d.PrescriptionID, &d.PatientID, &d.PharmacistID, &d.DispenseType,
		&d.Status, &d.Items, &d.Checks, &d.Counseling, &d.CreatedAt, &d.FinalizedAt)
	return &d, err
}

func (r *dispenseRepoPG) Create(ctx context.Context, d *Dispense) error {
	d.ID = uuid.New()
	if d.Checks == nil {
		d.Checks = []string{}
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO dispenses (id, prescription_id, patient_id, pharmacist_id, dispense_type,
			status, items, checks, counseling, finalized_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at`,
		d.ID, d.PrescriptionID, d.PatientID, d.PharmacistID, d.DispenseType,
		d.Status, d.Items, d.Checks, d.Counseling, d.FinalizedAt,
	).Scan(&d.CreatedAt)
}

func (r *dispenseRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Dispense, error) {
	d, err := scanDispense(r.conn(ctx).QueryRow(ctx, `SELECT `+dispenseCols+` FROM dispenses WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "dispense")
	}
	return d, nil
}

var dispenseFilters = map[string]db.Filter{
	"prescription_id": {Column: "prescription_id", Kind: db.FilterUUID},
	"patient_id":      {Column: "patient_id", Kind: db.FilterUUID},
	"pharmacist_id":   {Column: "pharmacist_id", Kind: db.FilterUUID},
	"status":          {Column: "status"},
	"dispense_type":   {Column: "dispense_type"},
	"from":            {Column: "created_at", Kind: db.FilterFrom},
	"to":              {Column: "created_at", Kind: db.FilterTo},
}

func (r *dispenseRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Dispense, int, error) {
	where, err := db.BuildFilters(params, dispenseFilters)
	if err != nil {
		return nil, 0, err
	}
	dataSQL, dataArgs, countSQL, countArgs, err := db.SelectPage("dispenses", db.Columns(dispenseColumns...), where, "created_at", limit, offset)
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
	var items []*Dispense
	for rows.Next() {
		d, err := scanDispense(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

func (r *dispenseRepoPG) DeleteDraft(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM dispenses WHERE id = $1 AND status = 'draft'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return apperror.Conflict("only draft dispenses can be discarded")
	}
	return nil
}
