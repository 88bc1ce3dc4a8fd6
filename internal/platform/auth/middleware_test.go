package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})(okHandler)(c)
	if err == nil {
		t.Fatal("expected error for missing header")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", httpErr.Code)
	}
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", tt.header)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})(okHandler)(c)
			if err == nil {
				t.Fatal("expected error for invalid format")
			}
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-42",
			Issuer:    "hms",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: []string{RolePharmacist},
		Name:  "Ada Obi",
	}
	tokenStr := createTestToken(t, claims, testSigningKey)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		ctx := c.Request().Context()
		if uid := UserIDFromContext(ctx); uid != "user-42" {
			t.Errorf("expected user-42, got %s", uid)
		}
		if roles := RolesFromContext(ctx); len(roles) != 1 || roles[0] != RolePharmacist {
			t.Errorf("expected [pharmacist], got %v", roles)
		}
		if name := UserNameFromContext(ctx); name != "Ada Obi" {
			t.Errorf("expected Ada Obi, got %s", name)
		}
		return c.String(http.StatusOK, "ok")
	}

	err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Issuer: "hms"})(handler)(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	tokenStr := createTestToken(t, claims, testSigningKey)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	c := e.NewContext(req, httptest.NewRecorder())

	if err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})(okHandler)(c); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestJWTMiddleware_WrongIssuer(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tokenStr := createTestToken(t, claims, testSigningKey)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	c := e.NewContext(req, httptest.NewRecorder())

	if err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Issuer: "hms"})(okHandler)(c); err == nil {
		t.Error("expected error for wrong issuer")
	}
}

func TestJWTMiddleware_Skipper(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/v1/auth/login")

	err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Skipper: AuthSkipper})(okHandler)(c)
	if err != nil {
		t.Fatalf("expected skipper to bypass auth, got %v", err)
	}
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	cfg := JWTConfig{SigningKey: testSigningKey, Issuer: "hms", TTL: time.Hour}
	issuer := NewTokenIssuer(cfg)

	tokenStr, exp, err := issuer.Issue("user-7", "Chidi", []string{RoleCashier})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Errorf("expected future expiry, got %v", exp)
	}

	claims, err := ParseToken(cfg, tokenStr)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Subject != "user-7" || claims.Roles[0] != RoleCashier {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestTokenIssuer_NoKey(t *testing.T) {
	if _, _, err := NewTokenIssuer(JWTConfig{}).Issue("u", "n", nil); err == nil {
		t.Error("expected error without signing key")
	}
}

func TestDevAuthMiddleware_NoToken(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	handler := func(c echo.Context) error {
		ctx := c.Request().Context()
		if uid := UserIDFromContext(ctx); uid != DevUserID {
			t.Errorf("expected %s, got %s", DevUserID, uid)
		}
		if roles := RolesFromContext(ctx); len(roles) != 1 || roles[0] != RoleAdmin {
			t.Errorf("expected [admin] roles, got %v", roles)
		}
		return c.String(http.StatusOK, "ok")
	}

	if err := DevAuthMiddleware(JWTConfig{SigningKey: testSigningKey})(handler)(c); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDevAuthMiddleware_ValidatesProvidedToken(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	c := e.NewContext(req, httptest.NewRecorder())

	if err := DevAuthMiddleware(JWTConfig{SigningKey: testSigningKey})(okHandler)(c); err == nil {
		t.Error("expected provided token to be validated")
	}
}
