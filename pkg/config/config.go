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
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Internal     InternalConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Escrow       EscrowConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Stripe       StripeConfig
	Outbox       OutboxConfig
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
	Env          string `envconfig:"RELIVV_APP_ENV" required:"true"`
	Port         string `envconfig:"RELIVV_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"RELIVV_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"RELIVV_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"RELIVV_LOG_FORMAT" default:"json"`
	// PublicOrigin is the storefront origin used to build checkout return URLs.
	PublicOrigin string `envconfig:"RELIVV_PUBLIC_ORIGIN" default:"http://localhost:3000"`
}

// ConsoleLogs reports whether logs should be human-readable instead of JSON.
func (a AppConfig) ConsoleLogs() bool {
	return strings.EqualFold(strings.TrimSpace(a.LogFormat), "console")
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"RELIVV_SERVICE_KIND" default:"api"`
	// MetricsAddr is where worker binaries serve /metrics. Empty disables it;
	// the api serves /metrics on its own router.
	MetricsAddr string `envconfig:"RELIVV_METRICS_ADDR"`
}

type DBConfig struct {
	DSN    string `envconfig:"RELIVV_DB_DSN"`
	Driver string `envconfig:"RELIVV_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"RELIVV_DB_HOST"`
	LegacyPort     int    `envconfig:"RELIVV_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"RELIVV_DB_USER"`
	LegacyPassword string `envconfig:"RELIVV_DB_PASSWORD"`
	LegacyName     string `envconfig:"RELIVV_DB_NAME"`
	LegacySSLMode  string `envconfig:"RELIVV_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"RELIVV_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"RELIVV_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"RELIVV_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"RELIVV_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the configured driver is the embedded sqlite driver.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"RELIVV_REDIS_URL" required:"true"`
	Address      string        `envconfig:"RELIVV_REDIS_ADDR"`
	Password     string        `envconfig:"RELIVV_REDIS_PASSWORD"`
	DB           int           `envconfig:"RELIVV_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"RELIVV_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"RELIVV_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"RELIVV_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"RELIVV_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"RELIVV_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"RELIVV_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"RELIVV_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"RELIVV_JWT_EXPIRATION_MINUTES" required:"true"`
}

// InternalConfig guards the service-to-service endpoints.
type InternalConfig struct {
	Token string `envconfig:"RELIVV_INTERNAL_TOKEN"`
}

type RateLimitConfig struct {
	CheckoutWindow time.Duration `envconfig:"RELIVV_RATE_LIMIT_CHECKOUT_WINDOW" default:"1m"`
	CheckoutLimit  int           `envconfig:"RELIVV_RATE_LIMIT_CHECKOUT_LIMIT" default:"10"`
	PollWindow     time.Duration `envconfig:"RELIVV_RATE_LIMIT_POLL_WINDOW" default:"1m"`
	PollLimit      int           `envconfig:"RELIVV_RATE_LIMIT_POLL_LIMIT" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"RELIVV_AUTO_MIGRATE" default:"false"`
}

// EscrowConfig tunes the payment and fund release lifecycle.
type EscrowConfig struct {
	ReleaseWindow     time.Duration `envconfig:"RELIVV_ESCROW_RELEASE_WINDOW" default:"72h"`
	GatewayTimeout    time.Duration `envconfig:"RELIVV_GATEWAY_TIMEOUT" default:"10s"`
	SessionLockTTL    time.Duration `envconfig:"RELIVV_PAYMENT_SESSION_LOCK_TTL" default:"30s"`
	PaymentSweepAge   time.Duration `envconfig:"RELIVV_PAYMENT_SWEEP_AGE" default:"15m"`
	ReleaseBatchSize  int           `envconfig:"RELIVV_ESCROW_RELEASE_BATCH_SIZE" default:"100"`
	CronInterval      time.Duration `envconfig:"RELIVV_CRON_INTERVAL" default:"5m"`
	CronJobTimeout    time.Duration `envconfig:"RELIVV_CRON_JOB_TIMEOUT" default:"4m"`
	WebhookDedupeTTL  time.Duration `envconfig:"RELIVV_WEBHOOK_DEDUPE_TTL" default:"720h"`
	OutboxRetention   time.Duration `envconfig:"RELIVV_OUTBOX_RETENTION" default:"720h"`
	PaymentSweepLimit int           `envconfig:"RELIVV_PAYMENT_SWEEP_LIMIT" default:"50"`
	// ReservationTTL is how long a pending transaction may hold its product
	// without a payment session.
	ReservationTTL    time.Duration `envconfig:"RELIVV_RESERVATION_TTL" default:"30m"`
}

type EventingConfig struct {
	PublishTimeout time.Duration `envconfig:"RELIVV_EVENTING_PUBLISH_TIMEOUT" default:"10s"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"RELIVV_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"RELIVV_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	EscrowTopic       string `envconfig:"RELIVV_PUBSUB_ESCROW_TOPIC" default:"relivv-escrow-events"`
	NotificationTopic string `envconfig:"RELIVV_PUBSUB_NOTIFICATION_TOPIC" default:"relivv-notification-events"`
	// PublishDelay is how long the client batches messages before sending.
	PublishDelay     time.Duration `envconfig:"RELIVV_PUBSUB_PUBLISH_DELAY" default:"10ms"`
	OrderByAggregate bool          `envconfig:"RELIVV_PUBSUB_ORDER_BY_AGGREGATE" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"RELIVV_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"RELIVV_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"RELIVV_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type StripeConfig struct {
	APIKey string `envconfig:"RELIVV_STRIPE_API_KEY"`
	// Secret is the webhook signing secret.
	Secret string `envconfig:"RELIVV_STRIPE_SECRET"`
	Env    string `envconfig:"RELIVV_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
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
