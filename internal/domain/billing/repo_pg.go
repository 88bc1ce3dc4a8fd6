package billing

import (
	"context"
	"errors"
	"time"

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

// searchPage runs a filtered, paginated list query and scans each row.
func searchPage[T any](ctx context.Context, q db.Querier, table string, cols []string, where []goqu.Expression, scan func(pgx.Row) (*T, error), limit, offset int) ([]*T, int, error) {
	dataSQL, dataArgs, countSQL, countArgs, err := db.SelectPage(table, db.Columns(cols...), where, "created_at", limit, offset)
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := q.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, dataSQL, dataArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*T
	for rows.Next() {
		it, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, it)
	}
	return items, total, rows.Err()
}

// =========== Payment Repository ===========

type paymentRepoPG struct{ pool *pgxpool.Pool }

func NewPaymentRepoPG(pool *pgxpool.Pool) PaymentRepository { return &paymentRepoPG{pool: pool} }

func (r *paymentRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

var paymentColumns = []string{"id", "patient_id", "amount", "method", "reference", "description",
	"status", "received_by", "void_reason", "voided_by", "voided_at", "created_at"}

const paymentCols = `id, patient_id, amount, method, reference, description,
	status, received_by, void_reason, voided_by, voided_at, created_at`

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.PatientID, &p.Amount, &p.Method, &p.Reference, &p.Description,
		&p.Status, &p.ReceivedBy, &p.VoidReason, &p.VoidedBy, &p.VoidedAt, &p.CreatedAt)
	return &p, err
}

func (r *paymentRepoPG) Create(ctx context.Context, p *Payment) error {
	p.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO payments (id, patient_id, amount, method, reference, description, status, received_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at`,
		p.ID, p.PatientID, p.Amount, p.Method, p.Reference, p.Description, p.Status, p.ReceivedBy,
	).Scan(&p.CreatedAt)
}

func (r *paymentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	p, err := scanPayment(r.conn(ctx).QueryRow(ctx, `SELECT `+paymentCols+` FROM payments WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "payment")
	}
	return p, nil
}

// Void only touches completed payments so two cashiers cannot void twice.
func (r *paymentRepoPG) Void(ctx context.Context, p *Payment) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE payments SET status=$2, void_reason=$3, voided_by=$4, voided_at=$5
		WHERE id = $1 AND status = 'completed'`,
		p.ID, p.Status, p.VoidReason, p.VoidedBy, p.VoidedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperror.Conflict("payment is already voided")
	}
	return nil
}

var paymentFilters = map[string]db.Filter{
	"patient_id":  {Column: "patient_id", Kind: db.FilterUUID},
	"received_by": {Column: "received_by", Kind: db.FilterUUID},
	"method":      {Column: "method"},
	"status":      {Column: "status"},
	"from":        {Column: "created_at", Kind: db.FilterFrom},
	"to":          {Column: "created_at", Kind: db.FilterTo},
}

func (r *paymentRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Payment, int, error) {
	where, err := db.BuildFilters(params, paymentFilters)
	if err != nil {
		return nil, 0, err
	}
	return searchPage(ctx, r.conn(ctx), "payments", paymentColumns, where, scanPayment, limit, offset)
}

// =========== HMO Repository ===========

type hmoRepoPG struct{ pool *pgxpool.Pool }

func NewHMORepoPG(pool *pgxpool.Pool) HMORepository { return &hmoRepoPG{pool: pool} }

func (r *hmoRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

var hmoColumns = []string{"id", "name", "code", "contact_email", "contact_phone", "address", "active", "created_at"}

const hmoCols = `id, name, code, contact_email, contact_phone, address, active, created_at`

func scanHMO(row pgx.Row) (*HMOProvider, error) {
	var h HMOProvider
	err := row.Scan(&h.ID, &h.Name, &h.Code, &h.ContactEmail, &h.ContactPhone, &h.Address, &h.Active, &h.CreatedAt)
	return &h, err
}

func (r *hmoRepoPG) Create(ctx context.Context, h *HMOProvider) error {
	h.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO hmo_providers (id, name, code, contact_email, contact_phone, address, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at`,
		h.ID, h.Name, h.Code, h.ContactEmail, h.ContactPhone, h.Address, h.Active,
	).Scan(&h.CreatedAt)
}

func (r *hmoRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*HMOProvider, error) {
	h, err := scanHMO(r.conn(ctx).QueryRow(ctx, `SELECT `+hmoCols+` FROM hmo_providers WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "hmo provider")
	}
	return h, nil
}

var hmoFilters = map[string]db.Filter{
	"active": {Column: "active", Kind: db.FilterBool},
	"code":   {Column: "code"},
	"q":      {Kind: db.FilterSearch, Columns: []string{"name", "code"}},
}

func (r *hmoRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*HMOProvider, int, error) {
	where, err := db.BuildFilters(params, hmoFilters)
	if err != nil {
		return nil, 0, err
	}
	return searchPage(ctx, r.conn(ctx), "hmo_providers", hmoColumns, where, scanHMO, limit, offset)
}

// =========== Pre-authorization Repository ===========

type preauthRepoPG struct{ pool *pgxpool.Pool }

func NewPreauthRepoPG(pool *pgxpool.Pool) PreauthRepository { return &preauthRepoPG{pool: pool} }

func (r *preauthRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

var preauthColumns = []string{"id", "patient_id", "hmo_provider_id", "service_code", "diagnosis",
	"requested_amount", "status", "auth_code", "valid_from", "valid_until", "denial_reason",
	"requested_by", "decided_by", "created_at", "updated_at"}

const preauthCols = `id, patient_id, hmo_provider_id, service_code, diagnosis,
	requested_amount, status, auth_code, valid_from, valid_until, denial_reason,
	requested_by, decided_by, created_at, updated_at`

func scanPreauth(row pgx.Row) (*PreAuthorization, error) {
	var p PreAuthorization
	err := row.Scan(&p.ID, &p.PatientID, &p.HMOProviderID, &p.ServiceCode, &p.Diagnosis,
		&p.RequestedAmount, &p.Status, &p.AuthCode, &p.ValidFrom, &p.ValidUntil, &p.DenialReason,
		&p.RequestedBy, &p.DecidedBy, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *preauthRepoPG) Create(ctx context.Context, p *PreAuthorization) error {
	p.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO preauthorizations (id, patient_id, hmo_provider_id, service_code, diagnosis,
			requested_amount, status, requested_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		p.ID, p.PatientID, p.HMOProviderID, p.ServiceCode, p.Diagnosis,
		p.RequestedAmount, p.Status, p.RequestedBy,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *preauthRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*PreAuthorization, error) {
	p, err := scanPreauth(r.conn(ctx).QueryRow(ctx, `SELECT `+preauthCols+` FROM preauthorizations WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "pre-authorization")
	}
	return p, nil
}

// Decide records an approval or denial of a still-pending request.
func (r *preauthRepoPG) Decide(ctx context.Context, p *PreAuthorization) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE preauthorizations SET status=$2, auth_code=$3, valid_from=$4, valid_until=$5,
			denial_reason=$6, decided_by=$7, updated_at=NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING updated_at`,
		p.ID, p.Status, p.AuthCode, p.ValidFrom, p.ValidUntil, p.DenialReason, p.DecidedBy,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.Conflict("pre-authorization has already been decided")
	}
	return err
}

var preauthFilters = map[string]db.Filter{
	"patient_id":      {Column: "patient_id", Kind: db.FilterUUID},
	"hmo_provider_id": {Column: "hmo_provider_id", Kind: db.FilterUUID},
	"status":          {Column: "status"},
	"service_code":    {Column: "service_code"},
	"auth_code":       {Column: "auth_code"},
	"from":            {Column: "created_at", Kind: db.FilterFrom},
	"to":              {Column: "created_at", Kind: db.FilterTo},
}

func (r *preauthRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*PreAuthorization, int, error) {
	where, err := db.BuildFilters(params, preauthFilters)
	if err != nil {
		return nil, 0, err
	}
	return searchPage(ctx, r.conn(ctx), "preauthorizations", preauthColumns, where, scanPreauth, limit, offset)
}

// =========== Claim Repository ===========

type claimRepoPG struct{ pool *pgxpool.Pool }

func NewClaimRepoPG(pool *pgxpool.Pool) ClaimRepository { return &claimRepoPG{pool: pool} }

func (r *claimRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

var claimColumns = []string{"id", "claim_number", "patient_id", "hmo_provider_id", "preauth_id",
	"status", "total_amount", "copay_amount", "claim_amount", "submitted_at", "decided_at",
	"rejection_reason", "notes", "created_by", "created_at", "updated_at"}

const claimCols = `id, claim_number, patient_id, hmo_provider_id, preauth_id,
	status, total_amount, copay_amount, claim_amount, submitted_at, decided_at,
	rejection_reason, notes, created_by, created_at, updated_at`

func scanClaim(row pgx.Row) (*Claim, error) {
	var c Claim
	err := row.Scan(&c.ID, &c.ClaimNumber, &c.PatientID, &c.HMOProviderID, &c.PreauthID,
		&c.Status, &c.TotalAmount, &c.CopayAmount, &c.ClaimAmount, &c.SubmittedAt, &c.DecidedAt,
		&c.RejectionReason, &c.Notes, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	return &c, err
}

const itemCols = `id, claim_id, service_code, description, quantity, unit_price, created_at`

func scanItem(row pgx.Row) (*ClaimItem, error) {
	var it ClaimItem
	err := row.Scan(&it.ID, &it.ClaimID, &it.ServiceCode, &it.Description, &it.Quantity, &it.UnitPrice, &it.CreatedAt)
	return &it, err
}

// Create inserts the claim header followed by its items.
func (r *claimRepoPG) Create(ctx context.Context, c *Claim) error {
	c.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO claims (id, claim_number, patient_id, hmo_provider_id, preauth_id, status,
			total_amount, copay_amount, claim_amount, notes, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		c.ID, c.ClaimNumber, c.PatientID, c.HMOProviderID, c.PreauthID, c.Status,
		c.TotalAmount, c.CopayAmount, c.ClaimAmount, c.Notes, c.CreatedBy,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return err
	}
	for i := range c.Items {
		c.Items[i].ClaimID = c.ID
		if err := r.AddItem(ctx, &c.Items[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *claimRepoPG) get(ctx context.Context, query string, id uuid.UUID) (*Claim, error) {
	c, err := scanClaim(r.conn(ctx).QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "claim")
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+itemCols+` FROM claim_items WHERE claim_id = $1 ORDER BY created_at, id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	c.Items = []ClaimItem{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		c.Items = append(c.Items, *it)
	}
	return c, rows.Err()
}

func (r *claimRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Claim, error) {
	return r.get(ctx, `SELECT `+claimCols+` FROM claims WHERE id = $1`, id)
}

func (r *claimRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Claim, error) {
	return r.get(ctx, `SELECT `+claimCols+` FROM claims WHERE id = $1 FOR UPDATE`, id)
}

func (r *claimRepoPG) Update(ctx context.Context, c *Claim) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE claims SET preauth_id=$2, status=$3, total_amount=$4, copay_amount=$5, claim_amount=$6,
			submitted_at=$7, decided_at=$8, rejection_reason=$9, notes=$10, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		c.ID, c.PreauthID, c.Status, c.TotalAmount, c.CopayAmount, c.ClaimAmount,
		c.SubmittedAt, c.DecidedAt, c.RejectionReason, c.Notes,
	).Scan(&c.UpdatedAt)
	return notFound(err, "claim")
}

var claimFilters = map[string]db.Filter{
	"patient_id":      {Column: "patient_id", Kind: db.FilterUUID},
	"hmo_provider_id": {Column: "hmo_provider_id", Kind: db.FilterUUID},
	"status":          {Column: "status"},
	"claim_number":    {Column: "claim_number"},
	"from":            {Column: "created_at", Kind: db.FilterFrom},
	"to":              {Column: "created_at", Kind: db.FilterTo},
}

// Search returns claim headers only; items are loaded by GetByID.
func (r *claimRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Claim, int, error) {
	where, err := db.BuildFilters(params, claimFilters)
	if err != nil {
		return nil, 0, err
	}
	return searchPage(ctx, r.conn(ctx), "claims", claimColumns, where, scanClaim, limit, offset)
}

func (r *claimRepoPG) AddItem(ctx context.Context, it *ClaimItem) error {
	it.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO claim_items (id, claim_id, service_code, description, quantity, unit_price)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		it.ID, it.ClaimID, it.ServiceCode, it.Description, it.Quantity, it.UnitPrice,
	).Scan(&it.CreatedAt)
}

func (r *claimRepoPG) UpdateItem(ctx context.Context, it *ClaimItem) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE claim_items SET service_code=$3, description=$4, quantity=$5, unit_price=$6
		WHERE id = $1 AND claim_id = $2`,
		it.ID, it.ClaimID, it.ServiceCode, it.Description, it.Quantity, it.UnitPrice)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("claim item")
	}
	return nil
}

func (r *claimRepoPG) RemoveItem(ctx context.Context, claimID, itemID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM claim_items WHERE id = $1 AND claim_id = $2`, itemID, claimID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("claim item")
	}
	return nil
}

// =========== Service Code Repository ===========

type serviceCodeRepoPG struct{ pool *pgxpool.Pool }

func NewServiceCodeRepoPG(pool *pgxpool.Pool) ServiceCodeRepository {
	return &serviceCodeRepoPG{pool: pool}
}

func (r *serviceCodeRepoPG) ListActive(ctx context.Context) ([]*ServiceCode, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, code, description, category, tariff, active
		FROM service_codes WHERE active ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*ServiceCode
	for rows.Next() {
		var sc ServiceCode
		if err := rows.Scan(&sc.ID, &sc.Code, &sc.Description, &sc.Category, &sc.Tariff, &sc.Active); err != nil {
			return nil, err
		}
		out = append(out, &sc)
	}
	return out, rows.Err()
}

// =========== Report Repository ===========

type reportRepoPG struct{ pool *pgxpool.Pool }

func NewReportRepoPG(pool *pgxpool.Pool) ReportRepository { return &reportRepoPG{pool: pool} }

func (r *reportRepoPG) PaymentTotals(ctx context.Context, from, to time.Time) ([]PaymentAggregate, error) {
	query, args, err := db.Dialect.From("payments").Prepared(true).
		Select(goqu.C("status"), goqu.C("method"), goqu.COUNT(goqu.Star()), goqu.COALESCE(goqu.SUM("amount"), 0.0)).
		Where(goqu.C("created_at").Gte(from), goqu.C("created_at").Lt(to)).
		GroupBy("status", "method").
		ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PaymentAggregate
	for rows.Next() {
		var a PaymentAggregate
		if err := rows.Scan(&a.Status, &a.Method, &a.Count, &a.Amount); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *reportRepoPG) ClaimTotals(ctx context.Context, from, to time.Time) ([]ClaimAggregate, error) {
	query, args, err := db.Dialect.From("claims").Prepared(true).
		Select(goqu.C("status"), goqu.COUNT(goqu.Star()), goqu.COALESCE(goqu.SUM("claim_amount"), 0.0)).
		Where(goqu.C("created_at").Gte(from), goqu.C("created_at").Lt(to)).
		GroupBy("status").
		ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ClaimAggregate
	for rows.Next() {
		var a ClaimAggregate
		if err := rows.Scan(&a.Status, &a.Count, &a.Amount); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
