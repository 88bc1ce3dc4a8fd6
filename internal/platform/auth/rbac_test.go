package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextWithRoles(roles ...string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), UserRolesKey, roles))
	return e.NewContext(req, httptest.NewRecorder())
}

func TestRequireRole_Allowed(t *testing.T) {
	c := contextWithRoles(RoleDoctor)
	if err := RequireRole(RoleDoctor, RoleNurse)(okHandler)(c); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	c := contextWithRoles(RoleCashier)
	err := RequireRole(RoleDoctor, RoleNurse)(okHandler)(c)
	if err == nil {
		t.Fatal("expected error for unauthorized role")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", httpErr.Code)
	}
}

func TestRequireRole_AdminBypass(t *testing.T) {
	c := contextWithRoles(RoleAdmin)
	if err := RequireRole(RolePharmacist)(okHandler)(c); err != nil {
		t.Error("admin should bypass role checks")
	}
}

func TestRequireRole_NoRoles(t *testing.T) {
	c := contextWithRoles()
	if err := RequireRole(RoleNurse)(okHandler)(c); err == nil {
		t.Error("expected error when user has no roles")
	}
}

func TestValidRole(t *testing.T) {
	for _, r := range Roles {
		if !ValidRole(r) {
			t.Errorf("expected %s to be valid", r)
		}
	}
	for _, r := range []string{"", "physician", "Admin", "patient"} {
		if ValidRole(r) {
			t.Errorf("expected %q to be invalid", r)
		}
	}
}

func TestUserIDFromContext(t *testing.T) {
	ctx := WithUser(context.Background(), "user-123", "Nurse Joy", []string{RoleNurse})
	if uid := UserIDFromContext(ctx); uid != "user-123" {
		t.Errorf("expected user-123, got %s", uid)
	}
	if empty := UserIDFromContext(context.Background()); empty != "" {
		t.Errorf("expected empty string, got %s", empty)
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "correct-horse" {
		t.Fatal("hash must not equal the password")
	}
	ok, err := VerifyPassword(hash, "correct-horse")
	if err != nil || !ok {
		t.Errorf("expected password to verify, ok=%v err=%v", ok, err)
	}
	ok, err = VerifyPassword(hash, "wrong-horse")
	if err != nil || ok {
		t.Errorf("expected mismatch, ok=%v err=%v", ok, err)
	}
}

func TestHashPassword_TooShort(t *testing.T) {
	if _, err := HashPassword("short"); err == nil {
		t.Error("expected error for short password")
	}
}
