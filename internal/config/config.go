package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL          string        `mapstructure:"REDIS_URL"`
	JWTSigningKey     string        `mapstructure:"JWT_SIGNING_KEY"`
	JWTIssuer         string        `mapstructure:"JWT_ISSUER"`
	JWTTTL            time.Duration `mapstructure:"JWT_TTL"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS      float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst    int           `mapstructure:"RATE_LIMIT_BURST"`
	OTelEndpoint      string        `mapstructure:"OTEL_ENDPOINT"`
	DashboardCacheTTL time.Duration `mapstructure:"DASHBOARD_CACHE_TTL"`
	MigrationsDir     string        `mapstructure:"MIGRATIONS_DIR"`
}

// minSigningKeyLen is the shortest HMAC key accepted for JWT signing.
const minSigningKeyLen = 32

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("JWT_ISSUER", "hms")
	v.SetDefault("JWT_TTL", "12h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("DASHBOARD_CACHE_TTL", "60s")
	v.SetDefault("MIGRATIONS_DIR", "./migrations")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"REDIS_URL", "JWT_SIGNING_KEY", "JWT_ISSUER", "JWT_TTL",
		"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
		"OTEL_ENDPOINT", "DASHBOARD_CACHE_TTL", "MIGRATIONS_DIR",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: unauthenticated requests are treated as admin. Do NOT use in production.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// CachingEnabled reports whether a Redis URL was configured.
func (c *Config) CachingEnabled() bool {
	return c.RedisURL != ""
}

// TracingEnabled reports whether an OTLP collector endpoint was configured.
func (c *Config) TracingEnabled() bool {
	return c.OTelEndpoint != ""
}

// Validate checks that the configuration is safe to run. Outside development
// a JWT signing key of at least 32 bytes is required.
func (c *Config) Validate() error {
	if !c.IsDev() && c.JWTSigningKey == "" {
		return fmt.Errorf("JWT_SIGNING_KEY is required when ENV=%q", c.Env)
	}
	if c.JWTSigningKey != "" && len(c.JWTSigningKey) < minSigningKeyLen {
		return fmt.Errorf("JWT_SIGNING_KEY must be at least %d bytes, got %d", minSigningKeyLen, len(c.JWTSigningKey))
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive, got %s", c.JWTTTL)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
