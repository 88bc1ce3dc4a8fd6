package pharmacy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/apperror"
)

func newContext(ctx context.Context, method, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func TestHandler_CreatePrescription(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)

	body := `{"patient_id":"` + testPatient.String() + `","refills_allowed":2,"medications":[{"name":"Amlodipine","code":"AML5","dosage":"5mg","frequency":"od","duration":"30 days","quantity":30}]}`
	c, rec := newContext(doctorCtx(), http.MethodPost, body)
	if err := h.CreatePrescription(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var p Prescription
	json.Unmarshal(rec.Body.Bytes(), &p)
	if len(p.Medications) != 1 || p.Medications[0].Duration != "30 days" || p.RefillsAllowed != 2 {
		t.Errorf("unexpected prescription %+v", p)
	}
}

func TestHandler_Review(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	p := f.prescribe(t, 0)

	c, rec := newContext(pharmacistCtx(), http.MethodGet, "")
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())
	if err := h.Review(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"dispense_type":"fill"`) {
		t.Errorf("expected fill review, got %s", rec.Body.String())
	}
}

func TestHandler_SubmitDispense_GateFailed(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	p := f.prescribe(t, 0)

	body := `{"prescription_id":"` + p.ID.String() + `","final":true,"scanned":["AML5","MET500"],"checks":["patient_identity"]}`
	c, _ := newContext(pharmacistCtx(), http.MethodPost, body)
	if err := h.SubmitDispense(c); !apperror.IsCode(err, apperror.CodeGateFailed) {
		t.Errorf("expected gate failure, got %v", err)
	}
}

func TestHandler_SubmitDispense_Final(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	p := f.prescribe(t, 0)

	body := `{"prescription_id":"` + p.ID.String() + `","final":true,"scanned":["AML5","MET500"],"checks":["patient_identity","medication_match","dosage_correct"]}`
	c, rec := newContext(pharmacistCtx(), http.MethodPost, body)
	if err := h.SubmitDispense(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated || !strings.Contains(rec.Body.String(), `"status":"final"`) {
		t.Errorf("expected final dispense, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_DiscardDraft(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	p := f.prescribe(t, 0)
	d, _ := f.svc.SubmitDispense(pharmacistCtx(), &DispenseRequest{PrescriptionID: p.ID})

	c, rec := newContext(pharmacistCtx(), http.MethodDelete, "")
	c.SetParamNames("id")
	c.SetParamValues(d.ID.String())
	if err := h.DiscardDraft(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}
