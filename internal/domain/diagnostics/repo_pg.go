package diagnostics

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

// =========== Lab Result Repository ===========

type labResultRepoPG struct{ pool *pgxpool.Pool }

func NewLabResultRepoPG(pool *pgxpool.Pool) LabResultRepository {
	return &labResultRepoPG{pool: pool}
}

func (r *labResultRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

var labColumns = []string{"id", "patient_id", "ordered_by", "performed_by", "verified_by",
	"test_type", "test_name", "priority", "status", "ordered_at", "performed_at", "completed_at",
	"verified_at", "results", "reference_range", "notes", "critical_values", "created_at", "updated_at"}

const labCols = `id, patient_id, ordered_by, performed_by, verified_by,
	test_type, test_name, priority, status, ordered_at, performed_at, completed_at,
	verified_at, results, reference_range, notes, critical_values, created_at, updated_at`

func scanLabResult(row pgx.Row) (*LabResult, error) {
	var l LabResult
	err := row.Scan(&l.ID, &l.PatientID, &l.OrderedBy, &l.PerformedBy, &l.VerifiedBy,
		&l.TestType, &l.TestName, &l.Priority, &l.Status, &l.OrderedAt, &l.PerformedAt, &l.CompletedAt,
		&l.VerifiedAt, &l.Results, &l.ReferenceRange, &l.Notes, &l.CriticalValues, &l.CreatedAt, &l.UpdatedAt)
	return &l, err
}

func (r *labResultRepoPG) Create(ctx context.Context, l *LabResult) error {
	l.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO lab_results (id, patient_id, ordered_by, test_type, test_name,
			priority, status, ordered_at, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		l.ID, l.PatientID, l.OrderedBy, l.TestType, l.TestName,
		l.Priority, l.Status, l.OrderedAt, l.Notes,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
}

func (r *labResultRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*LabResult, error) {
	l, err := scanLabResult(r.conn(ctx).QueryRow(ctx, `SELECT `+labCols+` FROM lab_results WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("lab result")
	}
	return l, err
}

func (r *labResultRepoPG) Update(ctx context.Context, l *LabResult, from string) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE lab_results SET performed_by=$2, verified_by=$3, status=$4, performed_at=$5,
			completed_at=$6, verified_at=$7, results=$8, reference_range=$9, notes=$10,
			critical_values=$11, updated_at=NOW()
		WHERE id = $1 AND status = $12
		RETURNING updated_at`,
		l.ID, l.PerformedBy, l.VerifiedBy, l.Status, l.PerformedAt,
		l.CompletedAt, l.VerifiedAt, l.Results, l.ReferenceRange, l.Notes,
		l.CriticalValues, from,
	).Scan(&l.UpdatedAt)
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	var exists bool
	if err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM lab_results WHERE id = $1)`, l.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return apperror.NotFound("lab result")
	}
	return apperror.Conflict("lab result is no longer %s", from)
}

var labFilters = map[string]db.Filter{
	"patient_id":   {Column: "patient_id", Kind: db.FilterUUID},
	"ordered_by":   {Column: "ordered_by", Kind: db.FilterUUID},
	"performed_by": {Column: "performed_by", Kind: db.FilterUUID},
	"status":       {Column: "status"},
	"priority":     {Column: "priority"},
	"critical":     {Column: "critical_values", Kind: db.FilterBool},
	"from":         {Column: "ordered_at", Kind: db.FilterFrom},
	"to":           {Column: "ordered_at", Kind: db.FilterTo},
	"q":            {Kind: db.FilterSearch, Columns: []string{"test_name", "test_type"}},
}

func (r *labResultRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*LabResult, int, error) {
	where, err := db.BuildFilters(params, labFilters)
	if err != nil {
		return nil, 0, err
	}
	dataSQL, dataArgs, countSQL, countArgs, err := db.SelectPage("lab_results", db.Columns(labColumns...), where, "ordered_at", limit, offset)
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
	var items []*LabResult
	for rows.Next() {
		l, err := scanLabResult(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, l)
	}
	return items, total, rows.Err()
}

// =========== Lab Inventory Repository ===========

type inventoryRepoPG struct{ pool *pgxpool.Pool }

func NewInventoryRepoPG(pool *pgxpool.Pool) InventoryRepository {
	return &inventoryRepoPG{pool: pool}
}

func (r *inventoryRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

var itemColumns = []string{"id", "name", "category", "unit", "quantity", "reorder_level",
	"expiry_date", "supplier", "created_at", "updated_at"}

const itemCols = `id, name, category, unit, quantity, reorder_level,
	expiry_date, supplier, created_at, updated_at`

func scanItem(row pgx.Row) (*LabItem, error) {
	var i LabItem
	err := row.Scan(&i.ID, &i.Name, &i.Category, &i.Unit, &i.Quantity, &i.ReorderLevel,
		&i.ExpiryDate, &i.Supplier, &i.CreatedAt, &i.UpdatedAt)
	return &i, err
}

func (r *inventoryRepoPG) Create(ctx context.Context, i *LabItem) error {
	i.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO lab_inventory (id, name, category, unit, quantity, reorder_level, expiry_date, supplier)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		i.ID, i.Name, i.Category, i.Unit, i.Quantity, i.ReorderLevel, i.ExpiryDate, i.Supplier,
	).Scan(&i.CreatedAt, &i.UpdatedAt)
}

func (r *inventoryRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*LabItem, error) {
	i, err := scanItem(r.conn(ctx).QueryRow(ctx, `SELECT `+itemCols+` FROM lab_inventory WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("lab inventory item")
	}
	return i, err
}

var itemFilters = map[string]db.Filter{
	"category": {Column: "category"},
	"q":        {Kind: db.FilterSearch, Columns: []string{"name", "supplier"}},
}

func (r *inventoryRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*LabItem, int, error) {
	where, err := db.BuildFilters(params, itemFilters)
	if err != nil {
		return nil, 0, err
	}
	if params["low_stock"] == "true" {
		where = append(where, goqu.L("quantity <= reorder_level"))
	}
	dataSQL, dataArgs, countSQL, countArgs, err := db.SelectPage("lab_inventory", db.Columns(itemColumns...), where, "updated_at", limit, offset)
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
	var items []*LabItem
	for rows.Next() {
		i, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, i)
	}
	return items, total, rows.Err()
}

func (r *inventoryRepoPG) Adjust(ctx context.Context, id uuid.UUID, delta int) (*LabItem, error) {
	i, err := scanItem(r.conn(ctx).QueryRow(ctx, `
		UPDATE lab_inventory SET quantity = quantity + $2, updated_at = NOW()
		WHERE id = $1 AND quantity + $2 >= 0
		RETURNING `+itemCols, id, delta))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, apperror.Conflict("insufficient stock for adjustment of %d", delta)
	}
	return i, err
}
