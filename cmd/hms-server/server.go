package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/config"
	"github.com/hms/hms/internal/domain/auditlog"
	"github.com/hms/hms/internal/domain/billing"
	"github.com/hms/hms/internal/domain/clinical"
	"github.com/hms/hms/internal/domain/diagnostics"
	"github.com/hms/hms/internal/domain/identity"
	"github.com/hms/hms/internal/domain/navigation"
	"github.com/hms/hms/internal/domain/pharmacy"
	"github.com/hms/hms/internal/domain/scheduling"
	"github.com/hms/hms/internal/platform/apperror"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/cache"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/middleware"
	"github.com/hms/hms/internal/platform/telemetry"
)

// resolveSigningKey returns the configured JWT key, or a random one when none
// is set. generated reports the latter.
func resolveSigningKey(configured string) (key []byte, generated bool, err error) {
	if configured != "" {
		return []byte(configured), false, nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, false, err
	}
	return []byte(hex.EncodeToString(buf)), true, nil
}

// openCache connects to Redis when configured. A failed connection degrades to
// no caching rather than refusing to start.
func openCache(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (cache.Cache, func()) {
	if !cfg.CachingEnabled() {
		logger.Info().Msg("REDIS_URL not set; caching disabled")
		return cache.Noop{}, func() {}
	}
	rc, err := cache.NewRedis(ctx, cfg.RedisURL, "hms:")
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable; caching disabled")
		return cache.Noop{}, func() {}
	}
	logger.Info().Msg("connected to redis")
	return rc, func() {
		if err := rc.Close(); err != nil {
			logger.Warn().Err(err).Msg("redis close")
		}
	}
}

func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rl.BurstSize = cfg.RateLimitBurst
	}
	return rl
}

// newEcho builds the server with the shared middleware chain. Requests pass
// recovery, request id, logging, headers, CORS, tracing, rate limiting,
// authentication and auditing in that order.
func newEcho(cfg *config.Config, logger zerolog.Logger, jwtCfg auth.JWTConfig, recorder middleware.AuditRecorder) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperror.HTTPErrorHandler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(middleware.SecurityConfig{HSTS: !cfg.IsDev(), PrivatePrefix: "/api/v1"}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderXRequestID},
		ExposeHeaders:    []string{echo.HeaderXRequestID},
		AllowCredentials: true,
		MaxAge:           3600,
	}))
	e.Use(telemetry.Middleware(nil, nil))
	e.Use(middleware.RateLimit(rateLimitConfig(cfg)))

	jwtCfg.Skipper = auth.AuthSkipper
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}
	e.Use(middleware.Audit(logger, recorder))
	return e
}

type routeRegistrar interface {
	RegisterRoutes(api *echo.Group)
}

type handlers struct {
	audit *auditlog.Service
	all   []routeRegistrar
}

func buildHandlers(pool *pgxpool.Pool, c cache.Cache, cfg *config.Config, tokens identity.TokenIssuer, logger zerolog.Logger) handlers {
	tx := db.NewTxRunner(pool)

	auditSvc := auditlog.NewService(auditlog.NewRepoPG(pool))
	identitySvc := identity.NewService(identity.NewUserRepoPG(pool), identity.NewPatientRepoPG(pool), tokens,
		tx, logger.With().Str("component", "identity").Logger()).WithAudit(auditSvc)
	schedulingSvc := scheduling.NewService(scheduling.NewAppointmentRepoPG(pool), identitySvc, tx)
	clinicalSvc := clinical.NewService(clinical.NewRecordRepoPG(pool), clinical.NewVitalsRepoPG(pool), identitySvc, tx).WithAudit(auditSvc)
	diagnosticsSvc := diagnostics.NewService(diagnostics.NewLabResultRepoPG(pool), diagnostics.NewInventoryRepoPG(pool), identitySvc)
	pharmacySvc := pharmacy.NewService(
		pharmacy.NewPrescriptionRepoPG(pool),
		pharmacy.NewDrugRepoPG(pool),
		pharmacy.NewDispenseRepoPG(pool),
		identitySvc, tx,
	)
	billingSvc := billing.NewService(billing.Stores{
		Payments:     billing.NewPaymentRepoPG(pool),
		HMOs:         billing.NewHMORepoPG(pool),
		Preauths:     billing.NewPreauthRepoPG(pool),
		Claims:       billing.NewClaimRepoPG(pool),
		ServiceCodes: billing.NewServiceCodeRepoPG(pool),
		Reports:      billing.NewReportRepoPG(pool),
	}, identitySvc, c, cfg.DashboardCacheTTL, tx, logger.With().Str("component", "billing").Logger()).WithAudit(auditSvc)

	return handlers{
		audit: auditSvc,
		all: []routeRegistrar{
			identity.NewHandler(identitySvc),
			scheduling.NewHandler(schedulingSvc),
			clinical.NewHandler(clinicalSvc),
			diagnostics.NewHandler(diagnosticsSvc),
			pharmacy.NewHandler(pharmacySvc),
			billing.NewHandler(billingSvc),
			auditlog.NewHandler(auditSvc),
			navigation.NewHandler(navigation.Default),
		},
	}
}

func registerRoutes(api *echo.Group, rs []routeRegistrar) {
	for _, r := range rs {
		r.RegisterRoutes(api)
	}
}

func buildServer(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, c cache.Cache, signingKey []byte) *echo.Echo {
	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.JWTIssuer,
		SigningKey: signingKey,
		TTL:        cfg.JWTTTL,
	}
	h := buildHandlers(pool, c, cfg, auth.NewTokenIssuer(jwtCfg), logger)

	e := newEcho(cfg, logger, jwtCfg, h.audit)

	health := db.HealthHandler(pool, map[string]db.Pinger{"cache": c})
	e.GET("/health", health)
	e.GET("/health/ready", health)

	registerRoutes(e.Group("/api/v1"), h.all)
	return e
}
