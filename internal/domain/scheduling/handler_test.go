package scheduling

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

func TestHandler_CreateAppointment(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()

	body := `{"patient_id":"` + f.patient.String() + `","doctor_id":"` + f.doctor.String() + `","appointment_date":"2026-05-04T10:00:00Z","reason":"fever"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CreateAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var a Appointment
	json.Unmarshal(rec.Body.Bytes(), &a)
	if a.Status != StatusScheduled || a.DurationMinutes != 30 {
		t.Errorf("unexpected appointment %+v", a)
	}
}

func TestHandler_ChangeStatus(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()
	a := f.book(t, nine, 30)

	req := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"status":"confirmed"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())

	if err := h.ChangeStatus(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := f.svc.GetAppointment(context.Background(), a.ID)
	if got.Status != StatusConfirmed {
		t.Errorf("expected confirmed, got %s", got.Status)
	}
}

func TestHandler_GetAppointment_InvalidID(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("abc")

	if err := h.GetAppointment(c); !apperror.IsCode(err, apperror.CodeValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestHandler_ListAppointments(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	f.book(t, nine, 30)

	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/appointments?status=scheduled", nil), rec)
	if err := h.ListAppointments(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"total":1`) {
		t.Errorf("expected one appointment, got %s", rec.Body.String())
	}
}
