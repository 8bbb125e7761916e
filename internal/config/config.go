package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

const (
	StorePostgres = "postgres"
	StoreLevelDB  = "leveldb"
)

type Config struct {
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	StoreDriver      string        `mapstructure:"STORE_DRIVER"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	LevelDBPath      string        `mapstructure:"LEVELDB_PATH"`
	AuthMode         string        `mapstructure:"AUTH_MODE"`
	AuthSigningKey   string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer       string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience     string        `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL      string        `mapstructure:"AUTH_JWKS_URL"`
	DevHospitalID    string        `mapstructure:"DEV_HOSPITAL_ID"`
	CORSOrigins      []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS     float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst   int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout   time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	HospitalTimezone string        `mapstructure:"HOSPITAL_TIMEZONE"`
	DailyCapacity    int           `mapstructure:"APPOINTMENT_DAILY_CAPACITY"`
}

var keys = []string{
	"PORT", "ENV", "STORE_DRIVER", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"LEVELDB_PATH", "AUTH_MODE", "AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_AUDIENCE",
	"AUTH_JWKS_URL", "DEV_HOSPITAL_ID", "CORS_ORIGINS", "RATE_LIMIT_RPS",
	"RATE_LIMIT_BURST", "REQUEST_TIMEOUT", "HOSPITAL_TIMEZONE", "APPOINTMENT_DAILY_CAPACITY",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE_DRIVER", StorePostgres)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("LEVELDB_PATH", "./data/frontdesk")
	v.SetDefault("AUTH_MODE", "") // inferred from ENV
	v.SetDefault("DEV_HOSPITAL_ID", "00000000-0000-0000-0000-000000000001")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("HOSPITAL_TIMEZONE", "UTC")
	v.SetDefault("APPOINTMENT_DAILY_CAPACITY", 15)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.StoreDriver == StorePostgres && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is %q", StorePostgres)
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// ResolvedAuthMode returns AUTH_MODE when set, otherwise "development" in a
// development environment and "jwt" everywhere else.
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "jwt"
}

// Location returns the time zone used to decide what "today" is for
// appointment booking.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.HospitalTimezone)
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StorePostgres, StoreLevelDB:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StorePostgres, StoreLevelDB, c.StoreDriver)
	}
	if c.StoreDriver == StoreLevelDB && c.LevelDBPath == "" {
		return fmt.Errorf("LEVELDB_PATH is required when STORE_DRIVER is %q", StoreLevelDB)
	}

	switch mode := c.ResolvedAuthMode(); mode {
	case "development":
		if !c.IsDev() {
			return fmt.Errorf("AUTH_MODE \"development\" is only allowed with ENV=development (current ENV=%q)", c.Env)
		}
		if _, err := uuid.Parse(c.DevHospitalID); err != nil {
			return fmt.Errorf("DEV_HOSPITAL_ID is not a valid UUID: %w", err)
		}
	case "jwt":
		if c.AuthSigningKey == "" && c.AuthJWKSURL == "" && c.AuthIssuer == "" {
			return fmt.Errorf("AUTH_MODE \"jwt\" needs AUTH_SIGNING_KEY, AUTH_JWKS_URL or AUTH_ISSUER")
		}
		if c.AuthSigningKey != "" && len(c.AuthSigningKey) < 32 {
			return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 characters, got %d", len(c.AuthSigningKey))
		}
	default:
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"jwt\", got %q", mode)
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("HOSPITAL_TIMEZONE: %w", err)
	}
	if c.DailyCapacity <= 0 {
		return fmt.Errorf("APPOINTMENT_DAILY_CAPACITY must be positive, got %d", c.DailyCapacity)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}

	return nil
}
