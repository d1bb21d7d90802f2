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
	Engine       EngineConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if !cfg.FeatureFlags.UseSQLite {
		if err := cfg.DB.ensureDSN(); err != nil {
			return nil, err
		}
	}
	if err := cfg.Engine.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PARTSRESERVE_APP_ENV" required:"true"`
	Port         string `envconfig:"PARTSRESERVE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PARTSRESERVE_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"PARTSRESERVE_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"PARTSRESERVE_LOG_WARN_STACK" default:"false"`

	CORSAllowedOrigins []string `envconfig:"PARTSRESERVE_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`

	ReadTimeout     time.Duration `envconfig:"PARTSRESERVE_HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"PARTSRESERVE_HTTP_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"PARTSRESERVE_HTTP_SHUTDOWN_TIMEOUT" default:"20s"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PARTSRESERVE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PARTSRESERVE_DB_DSN"`
	Driver string `envconfig:"PARTSRESERVE_DB_DRIVER" default:"postgres"`

	// SQLitePath is used instead of DSN when FeatureFlags.UseSQLite is set.
	SQLitePath string `envconfig:"PARTSRESERVE_SQLITE_PATH" default:"file:partsreserve.db?cache=shared&_foreign_keys=on"`

	LegacyHost     string `envconfig:"PARTSRESERVE_DB_HOST"`
	LegacyPort     int    `envconfig:"PARTSRESERVE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PARTSRESERVE_DB_USER"`
	LegacyPassword string `envconfig:"PARTSRESERVE_DB_PASSWORD"`
	LegacyName     string `envconfig:"PARTSRESERVE_DB_NAME"`
	LegacySSLMode  string `envconfig:"PARTSRESERVE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PARTSRESERVE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PARTSRESERVE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PARTSRESERVE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PARTSRESERVE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQueryThreshold logs statements slower than this at warn level.
	SlowQueryThreshold time.Duration `envconfig:"PARTSRESERVE_DB_SLOW_QUERY_THRESHOLD" default:"250ms"`
	// TxAttempts bounds how often a transaction aborted by a serialization
	// failure or deadlock is run.
	TxAttempts int `envconfig:"PARTSRESERVE_DB_TX_ATTEMPTS" default:"3"`
}

type RedisConfig struct {
	URL            string        `envconfig:"PARTSRESERVE_REDIS_URL" required:"true"`
	Address        string        `envconfig:"PARTSRESERVE_REDIS_ADDR"`
	Password       string        `envconfig:"PARTSRESERVE_REDIS_PASSWORD"`
	DB             int           `envconfig:"PARTSRESERVE_REDIS_DB" default:"0"`
	PoolSize       int           `envconfig:"PARTSRESERVE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns   int           `envconfig:"PARTSRESERVE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout    time.Duration `envconfig:"PARTSRESERVE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout    time.Duration `envconfig:"PARTSRESERVE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout   time.Duration `envconfig:"PARTSRESERVE_REDIS_WRITE_TIMEOUT" default:"5s"`
	IdempotencyTTL time.Duration `envconfig:"PARTSRESERVE_IDEMPOTENCY_TTL" default:"24h"`

	// Write throttling per window; a zero limit disables that scope.
	RateLimitWindow      time.Duration `envconfig:"PARTSRESERVE_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitActorWrites int           `envconfig:"PARTSRESERVE_RATE_LIMIT_ACTOR_WRITES" default:"120"`
	RateLimitIPWrites    int           `envconfig:"PARTSRESERVE_RATE_LIMIT_IP_WRITES" default:"600"`
}

type JWTConfig struct {
	Secret            string `envconfig:"PARTSRESERVE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PARTSRESERVE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"PARTSRESERVE_JWT_EXPIRATION_MINUTES" required:"true"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"PARTSRESERVE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"PARTSRESERVE_AUTO_MIGRATE" default:"false"`
}

// EngineConfig bounds the reservation engine's blocking work.
type EngineConfig struct {
	OperationTimeout    time.Duration `envconfig:"PARTSRESERVE_ENGINE_OPERATION_TIMEOUT" default:"15s"`
	ShipmentConcurrency int           `envconfig:"PARTSRESERVE_ENGINE_SHIPMENT_CONCURRENCY" default:"4"`
	ComponentPageSize   int           `envconfig:"PARTSRESERVE_ENGINE_COMPONENT_PAGE_SIZE" default:"100"`
}

func (e EngineConfig) validate() error {
	if e.OperationTimeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvEngineOperationTimeout)
	}
	if e.ShipmentConcurrency < 1 {
		return fmt.Errorf("%s must be at least 1", EnvEngineShipmentConcurrency)
	}
	if e.ComponentPageSize < 1 {
		return fmt.Errorf("%s must be at least 1", EnvEngineComponentPageSize)
	}
	return nil
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PARTSRESERVE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"PARTSRESERVE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"PARTSRESERVE_GOOGLE_APPLICATION_CREDENTIALS"`
	// PubSubEmulatorHost points the client at a local emulator, skipping auth.
	PubSubEmulatorHost string `envconfig:"PARTSRESERVE_PUBSUB_EMULATOR_HOST"`
}

type PubSubConfig struct {
	TransfersTopic    string `envconfig:"PARTSRESERVE_PUBSUB_TRANSFERS_TOPIC" default:"pr-transfer-events"`
	ReservationsTopic string `envconfig:"PARTSRESERVE_PUBSUB_RESERVATIONS_TOPIC" default:"pr-reservation-events"`
	StockTopic        string `envconfig:"PARTSRESERVE_PUBSUB_STOCK_TOPIC" default:"pr-stock-events"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"PARTSRESERVE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"PARTSRESERVE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"PARTSRESERVE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	PublishTimeout time.Duration `envconfig:"PARTSRESERVE_OUTBOX_PUBLISH_TIMEOUT" default:"15s"`
	Retention      time.Duration `envconfig:"PARTSRESERVE_OUTBOX_RETENTION" default:"168h"`
	MetricsAddr    string        `envconfig:"PARTSRESERVE_OUTBOX_METRICS_ADDR"`
}

type CronConfig struct {
	Interval             time.Duration `envconfig:"PARTSRESERVE_CRON_INTERVAL" default:"1m"`
	LockTTL              time.Duration `envconfig:"PARTSRESERVE_CRON_LOCK_TTL" default:"4m"`
	JobTimeout           time.Duration `envconfig:"PARTSRESERVE_CRON_JOB_TIMEOUT" default:"3m"`
	StockAuditEnabled    bool          `envconfig:"PARTSRESERVE_CRON_STOCK_AUDIT_ENABLED" default:"true"`
	StockAuditEvery      time.Duration `envconfig:"PARTSRESERVE_CRON_STOCK_AUDIT_EVERY" default:"15m"`
	OutboxRetentionEvery time.Duration `envconfig:"PARTSRESERVE_CRON_OUTBOX_RETENTION_EVERY" default:"1h"`
	OutboxRetentionBatch int           `envconfig:"PARTSRESERVE_CRON_OUTBOX_RETENTION_BATCH" default:"500"`
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
