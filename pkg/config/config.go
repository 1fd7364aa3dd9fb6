package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Stripe       StripeConfig
	Sendgrid     SendgridConfig
	Chat         ChatConfig
	Quotes       QuotesConfig
	PublicAccess PublicAccessConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STONEBRIDGE_APP_ENV" required:"true"`
	Port         string `envconfig:"STONEBRIDGE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STONEBRIDGE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STONEBRIDGE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"STONEBRIDGE_DB_DSN"`
	Driver string `envconfig:"STONEBRIDGE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STONEBRIDGE_DB_HOST"`
	LegacyPort     int    `envconfig:"STONEBRIDGE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STONEBRIDGE_DB_USER"`
	LegacyPassword string `envconfig:"STONEBRIDGE_DB_PASSWORD"`
	LegacyName     string `envconfig:"STONEBRIDGE_DB_NAME"`
	LegacySSLMode  string `envconfig:"STONEBRIDGE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STONEBRIDGE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STONEBRIDGE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STONEBRIDGE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STONEBRIDGE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STONEBRIDGE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STONEBRIDGE_REDIS_ADDR"`
	Password     string        `envconfig:"STONEBRIDGE_REDIS_PASSWORD"`
	DB           int           `envconfig:"STONEBRIDGE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STONEBRIDGE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STONEBRIDGE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STONEBRIDGE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STONEBRIDGE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STONEBRIDGE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"STONEBRIDGE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STONEBRIDGE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STONEBRIDGE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type StripeConfig struct {
	APIKey         string        `envconfig:"STONEBRIDGE_STRIPE_API_KEY"`
	Secret         string        `envconfig:"STONEBRIDGE_STRIPE_SECRET"`
	Env            string        `envconfig:"STONEBRIDGE_STRIPE_ENV" default:"test"`
	RequestTimeout time.Duration `envconfig:"STONEBRIDGE_STRIPE_REQUEST_TIMEOUT" default:"15s"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type SendgridConfig struct {
	APIKey      string `envconfig:"STONEBRIDGE_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"STONEBRIDGE_SENDGRID_FROM_EMAIL"`
	FromName    string `envconfig:"STONEBRIDGE_SENDGRID_FROM_NAME" default:"Stonebridge Contracting"`
	MaxRetries  int    `envconfig:"STONEBRIDGE_SENDGRID_MAX_RETRIES" default:"3"`
}

type ChatConfig struct {
	BaseURL        string        `envconfig:"STONEBRIDGE_CHAT_BASE_URL"`
	APIKey         string        `envconfig:"STONEBRIDGE_CHAT_API_KEY"`
	RequestTimeout time.Duration `envconfig:"STONEBRIDGE_CHAT_REQUEST_TIMEOUT" default:"10s"`
}

type QuotesConfig struct {
	Currency     string `envconfig:"STONEBRIDGE_QUOTES_CURRENCY" default:"usd"`
	ValidityDays int    `envconfig:"STONEBRIDGE_QUOTES_VALIDITY_DAYS" default:"30"`
}

type PublicAccessConfig struct {
	RateLimitWindow time.Duration `envconfig:"STONEBRIDGE_PUBLIC_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitPerIP  int           `envconfig:"STONEBRIDGE_PUBLIC_RATE_LIMIT_PER_IP" default:"30"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"STONEBRIDGE_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
