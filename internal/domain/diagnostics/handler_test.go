package diagnostics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/apperror"
	"github.com/hms/hms/internal/platform/auth"
)

func newContext(ctx context.Context, method, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func TestHandler_OrderLab(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)

	body := `{"patient_id":"` + testPatient.String() + `","test_type":"chemistry","test_name":"Lipid panel","priority":"urgent"}`
	c, rec := newContext(ctxAs(doctorID, auth.RoleDoctor), http.MethodPost, body)
	if err := h.OrderLab(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ordered"`) {
		t.Errorf("expected ordered status, got %s", rec.Body.String())
	}
}

func TestHandler_VerifyOwnResult(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)
	l := orderCBC(t, svc)
	tech := ctxAs(techA, auth.RoleLabTech)
	svc.StartLab(tech, l.ID)
	svc.CompleteLab(tech, l.ID, &CompleteRequest{Results: "normal"})

	c, _ := newContext(tech, http.MethodPost, "")
	c.SetParamNames("id")
	c.SetParamValues(l.ID.String())
	if err := h.VerifyLab(c); !apperror.IsCode(err, apperror.CodeForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
}

func TestHandler_AdjustItem(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)
	item := &LabItem{Name: "Slides", Quantity: 4}
	svc.CreateItem(context.Background(), item)

	c, rec := newContext(context.Background(), http.MethodPost, `{"delta":-4,"reason":"used"}`)
	c.SetParamNames("id")
	c.SetParamValues(item.ID.String())
	if err := h.AdjustItem(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"quantity":0`) {
		t.Errorf("expected quantity 0, got %s", rec.Body.String())
	}
}

func TestHandler_GetLab_NotFound(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)
	c, _ := newContext(context.Background(), http.MethodGet, "")
	c.SetParamNames("id")
	c.SetParamValues(doctorID.String())
	if err := h.GetLab(c); !apperror.IsCode(err, apperror.CodeNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}
