// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/iliyamo/session-auth/internal/database"
	"github.com/iliyamo/session-auth/internal/utils"
)

// minSecretLen is the length below which a signing secret only produces a
// startup warning.
const minSecretLen = 32

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable.
type Config struct {
	Env  string `env:"APP_ENV"  envDefault:"development"`
	Port string `env:"APP_PORT" envDefault:"4000"`

	DBDriver string `env:"DB_DRIVER" envDefault:"mysql"`
	DBUser   string `env:"DB_USER"`
	DBPass   string `env:"DB_PASS"`
	DBHost   string `env:"DB_HOST"   envDefault:"127.0.0.1"`
	DBPort   string `env:"DB_PORT"   envDefault:"3306"`
	DBName   string `env:"DB_NAME"`
	DBDSN    string `env:"DB_DSN"`

	AccessSecret     string `env:"JWT_ACCESS_SECRET,required"`
	RefreshSecret    string `env:"JWT_REFRESH_SECRET,required"`
	AccessExpiresIn  string `env:"JWT_ACCESS_EXPIRES_IN"  envDefault:"15m"`
	RefreshExpiresIn string `env:"JWT_REFRESH_EXPIRES_IN" envDefault:"7d"`

	BcryptCost          int           `env:"BCRYPT_COST"            envDefault:"12"`
	RotateRefreshTokens bool          `env:"ROTATE_REFRESH_TOKENS"  envDefault:"false"`
	SweepInterval       time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"0s"`

	CORSOrigins []string `env:"CORS_ORIGIN"  envSeparator:"," envDefault:"http://localhost:3000"`
	FrontendURL string   `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`

	Google        ProviderConfig `envPrefix:"GOOGLE_"`
	GitHub        ProviderConfig `envPrefix:"GITHUB_"`
	OAuthStateTTL time.Duration  `env:"OAUTH_STATE_TTL" envDefault:"10m"`

	RabbitMQURL  string `env:"RABBITMQ_URL"`
	AuditLogPath string `env:"AUDIT_LOG_PATH" envDefault:"logs/auth.log"`

	Redis     RedisConfig
	RateLimit RateLimitConfig

	// Resolved by Validate.
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// ProviderConfig holds the OAuth client registration of one identity
// provider.
type ProviderConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	CallbackURL  string `env:"CALLBACK_URL"`
}

// Enabled reports whether both client id and secret are configured.
func (p ProviderConfig) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// Load reads .env.local and .env (missing files are ignored, variables
// already set in the process win), parses the environment and validates
// the result. Warnings are returned alongside a usable Config.
func Load() (Config, []string, error) {
	for _, f := range []string{".env.local", ".env"} {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return parse(env.Options{})
}

// Parse builds a Config from environ instead of the process environment.
func Parse(environ map[string]string) (Config, []string, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (Config, []string, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, nil, fmt.Errorf("parse env: %w", err)
	}
	warnings, err := cfg.Validate()
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

// Validate checks cross-field rules and resolves the token TTLs. Hard
// failures are joined into the returned error; soft problems come back as
// warnings.
func (c *Config) Validate() ([]string, error) {
	var errs []error
	var warnings []string

	if c.AccessSecret == "" || c.RefreshSecret == "" {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must not be empty"))
	} else if c.AccessSecret == c.RefreshSecret {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ"))
	}
	if len(c.AccessSecret) < minSecretLen {
		warnings = append(warnings, fmt.Sprintf("JWT_ACCESS_SECRET is shorter than %d bytes", minSecretLen))
	}
	if len(c.RefreshSecret) < minSecretLen {
		warnings = append(warnings, fmt.Sprintf("JWT_REFRESH_SECRET is shorter than %d bytes", minSecretLen))
	}

	var err error
	if c.AccessTTL, err = utils.ParseTTL(c.AccessExpiresIn); err != nil {
		errs = append(errs, fmt.Errorf("JWT_ACCESS_EXPIRES_IN: %w", err))
	}
	if c.RefreshTTL, err = utils.ParseTTL(c.RefreshExpiresIn); err != nil {
		errs = append(errs, fmt.Errorf("JWT_REFRESH_EXPIRES_IN: %w", err))
	}
	if err := utils.ValidateBcryptCost(c.BcryptCost); err != nil {
		errs = append(errs, fmt.Errorf("BCRYPT_COST: %w", err))
	}

	switch c.DBDriver {
	case database.DriverMySQL:
		if c.DBDSN == "" && (c.DBUser == "" || c.DBName == "") {
			errs = append(errs, errors.New("DB_USER and DB_NAME are required for mysql"))
		}
	case database.DriverSQLite:
		if c.DBDSN == "" {
			errs = append(errs, errors.New("DB_DSN is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER: unknown driver %q", c.DBDriver))
	}

	if c.SweepInterval < 0 {
		errs = append(errs, errors.New("SESSION_SWEEP_INTERVAL must not be negative"))
	}
	if c.OAuthStateTTL <= 0 {
		errs = append(errs, errors.New("OAUTH_STATE_TTL must be positive"))
	}
	c.FrontendURL = strings.TrimRight(c.FrontendURL, "/")

	c.RateLimit.normalize()
	return warnings, errors.Join(errs...)
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production") || strings.EqualFold(c.Env, "prod")
}

// DatabaseOptions maps the DB_* keys onto database.Options.
func (c Config) DatabaseOptions() database.Options {
	return database.Options{
		Driver: c.DBDriver,
		User:   c.DBUser,
		Pass:   c.DBPass,
		Host:   c.DBHost,
		Port:   c.DBPort,
		Name:   c.DBName,
		DSN:    c.DBDSN,
	}
}
