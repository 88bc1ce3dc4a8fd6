package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/apperror"
	"github.com/hms/hms/internal/platform/auth"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc := newTestService()
	h := NewHandler(svc)
	e := echo.New()
	return h, e
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestHandler_CreatePatient(t *testing.T) {
	h, e := newTestHandler()

	body := `{"first_name":"John","last_name":"Doe","allergies":"penicillin"}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/patients", body), rec)

	if err := h.CreatePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	var p Patient
	json.Unmarshal(rec.Body.Bytes(), &p)
	if p.FirstName != "John" {
		t.Errorf("expected John, got %s", p.FirstName)
	}
	if !strings.HasPrefix(p.MRN, "MRN-20260314-") {
		t.Errorf("expected generated MRN, got %s", p.MRN)
	}
}

func TestHandler_CreatePatient_BadRequest(t *testing.T) {
	h, e := newTestHandler()

	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/patients", `{"last_name":"Doe"}`), httptest.NewRecorder())
	err := h.CreatePatient(c)
	if !apperror.IsCode(err, apperror.CodeValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestHandler_GetPatient(t *testing.T) {
	h, e := newTestHandler()

	p := &Patient{FirstName: "Jane", LastName: "Smith"}
	h.svc.CreatePatient(context.Background(), p)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	if err := h.GetPatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_GetPatient_InvalidID(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	if err := h.GetPatient(c); !apperror.IsCode(err, apperror.CodeValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestHandler_GetPatient_NotFound(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	if err := h.GetPatient(c); !apperror.IsCode(err, apperror.CodeNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestHandler_GetPatientByMRN(t *testing.T) {
	h, e := newTestHandler()
	p := &Patient{FirstName: "Jane", LastName: "Smith", MRN: "MRN-LEGACY-1"}
	h.svc.CreatePatient(context.Background(), p)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("mrn")
	c.SetParamValues("MRN-LEGACY-1")

	if err := h.GetPatientByMRN(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got Patient
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.ID != p.ID {
		t.Errorf("expected %s, got %s", p.ID, got.ID)
	}
}

func TestHandler_ListPatients(t *testing.T) {
	h, e := newTestHandler()
	h.svc.CreatePatient(context.Background(), &Patient{FirstName: "A", LastName: "One"})
	h.svc.CreatePatient(context.Background(), &Patient{FirstName: "B", LastName: "Two"})

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/patients?status=active&limit=10", nil), rec)

	if err := h.ListPatients(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Total int `json:"total"`
		Limit int `json:"limit"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 2 || resp.Limit != 10 {
		t.Errorf("unexpected page %+v", resp)
	}
}

func TestHandler_ListPatients_BadStatus(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/patients?status=deleted", nil), httptest.NewRecorder())
	if err := h.ListPatients(c); !apperror.IsCode(err, apperror.CodeValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestHandler_Login(t *testing.T) {
	h, e := newTestHandler()
	createUser(t, h.svc, "frontdesk", auth.RoleEHR)

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/auth/login", `{"username":"frontdesk","password":"s3cure-pass"}`), rec)
	if err := h.Login(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var resp map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["token"] == "" || resp["token"] == nil {
		t.Error("expected token in response")
	}
	user, _ := resp["user"].(map[string]interface{})
	if _, leaked := user["password_hash"]; leaked {
		t.Error("password hash must not be returned")
	}
}

func TestHandler_Login_Invalid(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/auth/login", `{"username":"x","password":"y"}`), httptest.NewRecorder())
	if err := h.Login(c); !apperror.IsCode(err, apperror.CodeUnauthorized) {
		t.Errorf("expected unauthorized, got %v", err)
	}
}

func TestHandler_CreateUser(t *testing.T) {
	h, e := newTestHandler()
	body := `{"username":"newdoc","email":"newdoc@h.test","password":"password123","first_name":"New","last_name":"Doc","role":"doctor","specialty":"Cardiology"}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/users", body), rec)

	if err := h.CreateUser(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Errorf("password leaked in response: %s", rec.Body.String())
	}
}

func TestHandler_DeactivateUser(t *testing.T) {
	h, e := newTestHandler()
	u := createUser(t, h.svc, "leaving", auth.RoleCashier)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(u.ID.String())

	if err := h.DeactivateUser(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	got, _ := h.svc.GetUser(context.Background(), u.ID)
	if got.Active {
		t.Error("expected user to be inactive")
	}
}

func TestHandler_Me_DevIdentity(t *testing.T) {
	h, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req = req.WithContext(auth.WithUser(req.Context(), auth.DevUserID, "Developer", []string{auth.RoleAdmin}))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Me(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "Developer") {
		t.Errorf("expected dev identity, got %s", rec.Body.String())
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	h, e := newTestHandler()
	api := e.Group("/api/v1")
	h.RegisterRoutes(api)

	want := map[string]bool{
		"POST /api/v1/auth/login":       false,
		"GET /api/v1/patients/mrn/:mrn": false,
		"POST /api/v1/users":            false,
	}
	for _, r := range e.Routes() {
		key := r.Method + " " + r.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for k, found := range want {
		if !found {
			t.Errorf("route %s not registered", k)
		}
	}
}
