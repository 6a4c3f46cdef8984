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
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Gateway      GatewayConfig
	Checkout     CheckoutConfig
	Reconcile    ReconcileConfig
	Sendgrid     SendgridConfig
	Cron         CronConfig
	Telemetry    TelemetryConfig
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
	Env          string   `envconfig:"BAZAAR_APP_ENV" required:"true"`
	Port         string   `envconfig:"BAZAAR_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"BAZAAR_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"BAZAAR_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"BAZAAR_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"BAZAAR_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"BAZAAR_DB_DSN"`
	Driver string `envconfig:"BAZAAR_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"BAZAAR_DB_HOST"`
	LegacyPort     int    `envconfig:"BAZAAR_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BAZAAR_DB_USER"`
	LegacyPassword string `envconfig:"BAZAAR_DB_PASSWORD"`
	LegacyName     string `envconfig:"BAZAAR_DB_NAME"`
	LegacySSLMode  string `envconfig:"BAZAAR_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BAZAAR_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BAZAAR_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BAZAAR_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BAZAAR_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BAZAAR_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BAZAAR_REDIS_ADDR"`
	Password     string        `envconfig:"BAZAAR_REDIS_PASSWORD"`
	DB           int           `envconfig:"BAZAAR_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BAZAAR_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BAZAAR_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BAZAAR_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BAZAAR_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BAZAAR_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig validates access tokens minted by the identity service.
type JWTConfig struct {
	Secret            string `envconfig:"BAZAAR_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"BAZAAR_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"BAZAAR_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"BAZAAR_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL  time.Duration `envconfig:"BAZAAR_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	WebhookIdempotencyTTL time.Duration `envconfig:"BAZAAR_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
	APIIdempotencyTTL     time.Duration `envconfig:"BAZAAR_API_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"BAZAAR_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON string `envconfig:"BAZAAR_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	OrdersTopic              string `envconfig:"BAZAAR_PUBSUB_ORDERS_TOPIC" required:"true"`
	NotificationTopic        string `envconfig:"BAZAAR_PUBSUB_NOTIFICATION_TOPIC" default:"bz-notification-events"`
	NotificationSubscription string `envconfig:"BAZAAR_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
	RefundsTopic             string `envconfig:"BAZAAR_PUBSUB_REFUNDS_TOPIC" required:"true"`
	RefundsSubscription      string `envconfig:"BAZAAR_PUBSUB_REFUNDS_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"BAZAAR_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"BAZAAR_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"BAZAAR_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"BAZAAR_OUTBOX_RETENTION_DAYS" default:"30"`
}

// GatewayConfig configures the hosted checkout payment provider.
type GatewayConfig struct {
	Env             string        `envconfig:"BAZAAR_GATEWAY_ENV" default:"sandbox"`
	ClientID        string        `envconfig:"BAZAAR_GATEWAY_CLIENT_ID" required:"true"`
	ClientSecret    string        `envconfig:"BAZAAR_GATEWAY_CLIENT_SECRET" required:"true"`
	APIVersion      string        `envconfig:"BAZAAR_GATEWAY_API_VERSION" default:"2023-08-01"`
	ReturnURL       string        `envconfig:"BAZAAR_GATEWAY_RETURN_URL" required:"true"`
	NotifyURL       string        `envconfig:"BAZAAR_GATEWAY_NOTIFY_URL" required:"true"`
	PaymentExpiry   time.Duration `envconfig:"BAZAAR_GATEWAY_PAYMENT_EXPIRY" default:"30m"`
	Timeout         time.Duration `envconfig:"BAZAAR_GATEWAY_TIMEOUT" default:"15s"`
	MaxRetries      uint64        `envconfig:"BAZAAR_GATEWAY_MAX_RETRIES" default:"3"`
	DefaultCurrency string        `envconfig:"BAZAAR_GATEWAY_DEFAULT_CURRENCY" default:"INR"`
}

// Environment reports whether the gateway points at the sandbox or production host.
func (g GatewayConfig) Environment() string {
	if strings.EqualFold(strings.TrimSpace(g.Env), "production") {
		return "production"
	}
	return "sandbox"
}

type CheckoutConfig struct {
	SessionTTL  time.Duration `envconfig:"BAZAAR_CHECKOUT_SESSION_TTL" default:"30m"`
	MaxItems    int           `envconfig:"BAZAAR_CHECKOUT_MAX_ITEMS" default:"5"`
	MaxQuantity int           `envconfig:"BAZAAR_CHECKOUT_MAX_QUANTITY" default:"3"`
}

type ReconcileConfig struct {
	PendingAfter time.Duration `envconfig:"BAZAAR_RECONCILE_PENDING_AFTER" default:"45m"`
	BatchSize    int           `envconfig:"BAZAAR_RECONCILE_BATCH_SIZE" default:"100"`
}

type SendgridConfig struct {
	APIKey      string `envconfig:"BAZAAR_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"BAZAAR_SENDGRID_FROM_EMAIL" default:"orders@bazaar.local"`
	FromName    string `envconfig:"BAZAAR_SENDGRID_FROM_NAME" default:"Bazaar"`
}

// TelemetryConfig controls OTLP trace export.
type TelemetryConfig struct {
	Enabled        bool    `envconfig:"BAZAAR_OTEL_ENABLED" default:"false"`
	Endpoint       string  `envconfig:"BAZAAR_OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317"`
	Insecure       bool    `envconfig:"BAZAAR_OTEL_INSECURE" default:"true"`
	SampleRatio    float64 `envconfig:"BAZAAR_OTEL_SAMPLE_RATIO" default:"1"`
	ServiceVersion string  `envconfig:"BAZAAR_SERVICE_VERSION" default:"dev"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"BAZAAR_CRON_INTERVAL" default:"5m"`
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
