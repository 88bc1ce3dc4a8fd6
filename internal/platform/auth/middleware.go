package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
	UserNameKey  contextKey = "user_name"
)

// Claims is the payload of tokens issued by the login endpoint.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
	Name  string   `json:"name,omitempty"`
}

type JWTConfig struct {
	Issuer     string
	SigningKey []byte
	TTL        time.Duration
	Skipper    func(echo.Context) bool
}

// TokenIssuer signs HS256 access tokens for authenticated users.
type TokenIssuer struct {
	cfg JWTConfig
	now func() time.Time
}

func NewTokenIssuer(cfg JWTConfig) *TokenIssuer {
	if cfg.TTL <= 0 {
		cfg.TTL = 12 * time.Hour
	}
	return &TokenIssuer{cfg: cfg, now: time.Now}
}

// Issue returns a signed token for subject and its expiry time.
func (ti *TokenIssuer) Issue(subject, name string, roles []string) (string, time.Time, error) {
	if len(ti.cfg.SigningKey) == 0 {
		return "", time.Time{}, fmt.Errorf("signing key not configured")
	}
	now := ti.now()
	exp := now.Add(ti.cfg.TTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    ti.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Roles: roles,
		Name:  name,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.cfg.SigningKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// ParseToken validates a token string against cfg and returns its claims.
func ParseToken(cfg JWTConfig, tokenStr string) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return cfg.SigningKey, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}
	return claims, nil
}

func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	return strings.TrimSpace(parts[1]), nil
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			tokenStr, err := bearerToken(c)
			if err != nil {
				return err
			}

			claims, err := ParseToken(cfg, tokenStr)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.SetRequest(c.Request().WithContext(
				WithUser(c.Request().Context(), claims.Subject, claims.Name, claims.Roles)))
			return next(c)
		}
	}
}

// DevAuthMiddleware lets unauthenticated requests through as an admin user.
// Requests that do carry a token are still validated when a key is set.
func DevAuthMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	strict := JWTMiddleware(cfg)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		validated := strict(next)
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") == "" || len(cfg.SigningKey) == 0 {
				c.SetRequest(c.Request().WithContext(
					WithUser(c.Request().Context(), DevUserID, "Development Admin", []string{RoleAdmin})))
				return next(c)
			}
			return validated(c)
		}
	}
}

// DevUserID is the subject assigned to unauthenticated development requests.
const DevUserID = "00000000-0000-0000-0000-000000000001"

// WithUser stores the authenticated user on ctx.
func WithUser(ctx context.Context, userID, name string, roles []string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	ctx = context.WithValue(ctx, UserNameKey, name)
	ctx = context.WithValue(ctx, UserRolesKey, roles)
	return ctx
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func UserNameFromContext(ctx context.Context) string {
	name, _ := ctx.Value(UserNameKey).(string)
	return name
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}
