package auditlog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/apperror"
	"github.com/hms/hms/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

var entryColumns = []string{"id", "user_id", "action", "resource_type", "resource_id",
	"old_values", "new_values", "ip_address", "user_agent", "request_id",
	"method", "path", "status_code", "created_at"}

const entryCols = `id, user_id, action, resource_type, resource_id,
	old_values, new_values, ip_address, user_agent, request_id,
	method, path, status_code, created_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.UserID, &e.Action, &e.ResourceType, &e.ResourceID,
		&e.OldValues, &e.NewValues, &e.IPAddress, &e.UserAgent, &e.RequestID,
		&e.Method, &e.Path, &e.StatusCode, &e.CreatedAt)
	return &e, err
}

// Create inserts the entry. A user id that matches no account, such as the
// development identity, is stored as NULL.
func (r *repoPG) Create(ctx context.Context, e *Entry) error {
	e.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO audit_logs (id, user_id, action, resource_type, resource_id,
			old_values, new_values, ip_address, user_agent, request_id, method, path, status_code)
		VALUES ($1, (SELECT id FROM users WHERE id = $2), $3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING user_id, created_at`,
		e.ID, e.UserID, e.Action, e.ResourceType, e.ResourceID,
		nullJSON(e.OldValues), nullJSON(e.NewValues), e.IPAddress, e.UserAgent, e.RequestID,
		e.Method, e.Path, e.StatusCode,
	).Scan(&e.UserID, &e.CreatedAt)
}

func nullJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	e, err := scanEntry(r.conn(ctx).QueryRow(ctx, `SELECT `+entryCols+` FROM audit_logs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("audit entry")
		}
		return nil, err
	}
	return e, nil
}

var entryFilters = map[string]db.Filter{
	"user_id":       {Column: "user_id", Kind: db.FilterUUID},
	"resource_type": {Column: "resource_type"},
	"resource_id":   {Column: "resource_id"},
	"action":        {Column: "action"},
	"from":          {Column: "created_at", Kind: db.FilterFrom},
	"to":            {Column: "created_at", Kind: db.FilterTo},
}

func (r *repoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Entry, int, error) {
	where, err := db.BuildFilters(params, entryFilters)
	if err != nil {
		return nil, 0, err
	}
	dataSQL, dataArgs, countSQL, countArgs, err := db.SelectPage("audit_logs", db.Columns(entryColumns...), where, "created_at", limit, offset)
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
	var items []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}
