package db

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/apperror"
)

// Dialect builds PostgreSQL statements with numbered placeholders.
var Dialect = goqu.Dialect("postgres")

// SelectPage builds the data and count statements for a filtered list query.
// The data statement is ordered by orderBy descending and paginated.
func SelectPage(table string, cols []interface{}, where []goqu.Expression, orderBy string, limit, offset int) (dataSQL string, dataArgs []interface{}, countSQL string, countArgs []interface{}, err error) {
	base := Dialect.From(table).Prepared(true)
	if len(where) > 0 {
		base = base.Where(where...)
	}

	countSQL, countArgs, err = base.Select(goqu.COUNT(goqu.Star())).ToSQL()
	if err != nil {
		return "", nil, "", nil, err
	}

	dataSQL, dataArgs, err = base.Select(cols...).
		Order(goqu.I(orderBy).Desc()).
		Limit(uint(limit)).
		Offset(uint(offset)).
		ToSQL()
	if err != nil {
		return "", nil, "", nil, err
	}
	return dataSQL, dataArgs, countSQL, countArgs, nil
}

// Columns converts column names for goqu Select.
func Columns(names ...string) []interface{} {
	cols := make([]interface{}, len(names))
	for i, n := range names {
		cols[i] = goqu.I(n)
	}
	return cols
}

// FilterKind selects how a query parameter is matched against a column.
type FilterKind int

const (
	FilterEq FilterKind = iota
	FilterUUID
	FilterBool
	// FilterSearch matches the value case-insensitively as a substring of
	// any of Filter.Columns.
	FilterSearch
	// FilterFrom and FilterTo bound a timestamp column by a date
	// (2006-01-02) or RFC3339 value. FilterTo is inclusive of the whole day.
	FilterFrom
	FilterTo
)

// Filter maps one query parameter to a column predicate.
type Filter struct {
	Column  string
	Kind    FilterKind
	Columns []string
}

// BuildFilters converts the recognised entries of params into goqu
// expressions. Unknown parameters and empty values are ignored.
func BuildFilters(params map[string]string, fields map[string]Filter) ([]goqu.Expression, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var where []goqu.Expression
	for _, name := range keys {
		f, ok := fields[name]
		value := strings.TrimSpace(params[name])
		if !ok || value == "" {
			continue
		}
		switch f.Kind {
		case FilterEq:
			where = append(where, goqu.C(f.Column).Eq(value))
		case FilterUUID:
			id, err := uuid.Parse(value)
			if err != nil {
				return nil, apperror.Validation("invalid %s: %q", name, value)
			}
			where = append(where, goqu.C(f.Column).Eq(id))
		case FilterBool:
			b, err := strconv.ParseBool(value)
			if err != nil {
				return nil, apperror.Validation("invalid %s: %q", name, value)
			}
			where = append(where, goqu.C(f.Column).Eq(b))
		case FilterSearch:
			pattern := "%" + value + "%"
			ors := make([]goqu.Expression, 0, len(f.Columns))
			for _, col := range f.Columns {
				ors = append(ors, goqu.C(col).ILike(pattern))
			}
			where = append(where, goqu.Or(ors...))
		case FilterFrom, FilterTo:
			t, dateOnly, err := parseFilterTime(value)
			if err != nil {
				return nil, apperror.Validation("invalid %s: %q", name, value)
			}
			if f.Kind == FilterFrom {
				where = append(where, goqu.C(f.Column).Gte(t))
			} else if dateOnly {
				where = append(where, goqu.C(f.Column).Lt(t.AddDate(0, 0, 1)))
			} else {
				where = append(where, goqu.C(f.Column).Lte(t))
			}
		}
	}
	return where, nil
}

func parseFilterTime(v string) (time.Time, bool, error) {
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	return t, false, err
}
