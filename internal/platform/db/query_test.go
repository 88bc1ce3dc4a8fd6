package db

import (
	"strings"
	"testing"

	"github.com/doug-martin/goqu/v9"
)

func TestSelectPage(t *testing.T) {
	where := []goqu.Expression{
		goqu.C("status").Eq("active"),
		goqu.C("patient_id").Eq("abc"),
	}
	dataSQL, dataArgs, countSQL, countArgs, err := SelectPage("appointments", Columns("id", "status"), where, "created_at", 20, 40)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(countSQL, `COUNT(*)`) || !strings.Contains(countSQL, `"appointments"`) {
		t.Errorf("unexpected count SQL: %s", countSQL)
	}
	if len(countArgs) != 2 {
		t.Errorf("expected 2 count args, got %d", len(countArgs))
	}
	if !strings.Contains(dataSQL, `ORDER BY "created_at" DESC`) {
		t.Errorf("expected descending order in: %s", dataSQL)
	}
	if !strings.Contains(dataSQL, "$1") {
		t.Errorf("expected numbered placeholders in: %s", dataSQL)
	}
	// two filters plus limit and offset
	if len(dataArgs) != 4 {
		t.Errorf("expected 4 data args, got %d: %v", len(dataArgs), dataArgs)
	}
}

func TestSelectPage_NoFilters(t *testing.T) {
	dataSQL, _, countSQL, countArgs, err := SelectPage("patients", Columns("id"), nil, "created_at", 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(countSQL, "WHERE") || strings.Contains(dataSQL, "WHERE") {
		t.Errorf("expected no WHERE clause: %s / %s", countSQL, dataSQL)
	}
	if len(countArgs) != 0 {
		t.Errorf("expected no count args, got %v", countArgs)
	}
}

var testFilters = map[string]Filter{
	"status":     {Column: "status"},
	"patient_id": {Column: "patient_id", Kind: FilterUUID},
	"active":     {Column: "active", Kind: FilterBool},
	"q":          {Kind: FilterSearch, Columns: []string{"first_name", "last_name", "mrn"}},
	"from":       {Column: "created_at", Kind: FilterFrom},
	"to":         {Column: "created_at", Kind: FilterTo},
}

func TestBuildFilters(t *testing.T) {
	where, err := BuildFilters(map[string]string{
		"status":     "active",
		"patient_id": "3f2504e0-4f89-11d3-9a0c-0305e82c3301",
		"q":          "ada",
		"unknown":    "ignored",
		"to":         "",
	}, testFilters)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(where) != 3 {
		t.Fatalf("expected 3 expressions, got %d", len(where))
	}

	sql, args, err := Dialect.From("patients").Prepared(true).Where(where...).ToSQL()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(sql, "ILIKE") {
		t.Errorf("expected ILIKE in %s", sql)
	}
	// patient_id, three search columns, status
	if len(args) != 5 {
		t.Errorf("expected 5 args, got %d: %v", len(args), args)
	}
}

func TestBuildFilters_DateRange(t *testing.T) {
	where, err := BuildFilters(map[string]string{"from": "2026-01-01", "to": "2026-01-31"}, testFilters)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sql, _, err := Dialect.From("payments").Where(where...).ToSQL()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(sql, ">=") || !strings.Contains(sql, "2026-02-01") {
		t.Errorf("expected inclusive day range, got %s", sql)
	}
}

func TestBuildFilters_Invalid(t *testing.T) {
	cases := []map[string]string{
		{"patient_id": "not-a-uuid"},
		{"active": "maybe"},
		{"from": "yesterday"},
	}
	for _, params := range cases {
		if _, err := BuildFilters(params, testFilters); err == nil {
			t.Errorf("expected error for %v", params)
		}
	}
}
