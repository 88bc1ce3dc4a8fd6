package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestFromContext_Defaults(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	p := FromContext(c)

	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected default offset 0, got %d", p.Offset)
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?limit=50&offset=10", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	p := FromContext(c)

	if p.Limit != 50 {
		t.Errorf("expected limit 50, got %d", p.Limit)
	}
	if p.Offset != 10 {
		t.Errorf("expected offset 10, got %d", p.Offset)
	}
}

func TestFromContext_MaxLimit(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?limit=500", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	p := FromContext(c)

	if p.Limit != MaxLimit {
		t.Errorf("expected limit capped at %d, got %d", MaxLimit, p.Limit)
	}
}

func TestFromContext_NegativeOffset(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?offset=-5", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	p := FromContext(c)

	if p.Offset != 0 {
		t.Errorf("expected offset 0 for negative input, got %d", p.Offset)
	}
}

func TestNewResponse(t *testing.T) {
	data := []string{"a", "b", "c"}
	r := NewResponse(data, 10, 3, 0)

	if r.Total != 10 {
		t.Errorf("expected total 10, got %d", r.Total)
	}
	if !r.HasMore {
		t.Error("expected has_more to be true when offset+limit < total")
	}

	r2 := NewResponse(data, 3, 3, 0)
	if r2.HasMore {
		t.Error("expected has_more to be false when offset+limit >= total")
	}
}

func TestFromContext_Page(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?limit=25&page=3", nil), httptest.NewRecorder())

	p := FromContext(c)
	if p.Offset != 50 {
		t.Errorf("expected offset 50 for page 3, got %d", p.Offset)
	}
}

func TestFromContext_OffsetWinsOverPage(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?offset=5&page=4", nil), httptest.NewRecorder())

	if p := FromContext(c); p.Offset != 5 {
		t.Errorf("expected offset 5, got %d", p.Offset)
	}
}

func TestNewResponse_Page(t *testing.T) {
	tests := []struct {
		limit, offset, want int
	}{
		{20, 0, 1},
		{20, 20, 2},
		{20, 45, 3},
		{0, 0, 1},
	}
	for _, tt := range tests {
		if got := NewResponse(nil, 100, tt.limit, tt.offset).Page; got != tt.want {
			t.Errorf("NewResponse(limit=%d, offset=%d).Page = %d, want %d", tt.limit, tt.offset, got, tt.want)
		}
	}
}

func TestFilters(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?status=active&q=&other=x", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	f := Filters(c, "status", "q", "patient_id")
	if len(f) != 1 || f["status"] != "active" {
		t.Errorf("expected only status=active, got %v", f)
	}
}
