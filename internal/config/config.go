package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBDriver          string        `mapstructure:"DB_DRIVER"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	ReferenceDataFile string        `mapstructure:"REFERENCE_DATA_FILE"`
	DefaultLocation   int64         `mapstructure:"DEFAULT_LOCATION"`
	EvaluationTimeout time.Duration `mapstructure:"EVALUATION_TIMEOUT"`
	AuthSigningKey    string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer        string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience      string        `mapstructure:"AUTH_AUDIENCE"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	LogLevel          string        `mapstructure:"LOG_LEVEL"`
}

var keys = []string{
	"PORT",
	"ENV",
	"DATABASE_URL",
	"DB_DRIVER",
	"DB_MAX_CONNS",
	"DB_MIN_CONNS",
	"REFERENCE_DATA_FILE",
	"DEFAULT_LOCATION",
	"EVALUATION_TIMEOUT",
	"AUTH_SIGNING_KEY",
	"AUTH_ISSUER",
	"AUTH_AUDIENCE",
	"CORS_ORIGINS",
	"LOG_LEVEL",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_DRIVER", DriverPostgres)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("EVALUATION_TIMEOUT", "2m")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("LOG_LEVEL", "info")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range keys {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Warn().Msg("server is running in development mode: unauthenticated requests get admin access to every location")
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

// Level returns the configured log level, defaulting to info.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return level
}

// Validate checks that the configuration is safe to run. Outside development
// AUTH_SIGNING_KEY must be set so that bearer tokens are enforced.
func (c *Config) Validate() error {
	if c.DBDriver != DriverPostgres && c.DBDriver != DriverSQLite {
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.DBDriver)
	}
	if !c.IsDev() && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY of at least 32 bytes is required outside development (current ENV=%q)", c.Env)
	}
	if c.DefaultLocation < 0 {
		return fmt.Errorf("DEFAULT_LOCATION must not be negative, got %d", c.DefaultLocation)
	}
	if c.EvaluationTimeout <= 0 {
		return fmt.Errorf("EVALUATION_TIMEOUT must be positive, got %s", c.EvaluationTimeout)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}
