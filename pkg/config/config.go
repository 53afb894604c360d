package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	OTP           OTPConfig
	Pickup        PickupConfig
	Settlement    SettlementConfig
	QR            QRConfig
	Delivery      DeliveryConfig
	Credentials   CredentialsConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if !c.FeatureFlags.UseSQLite && strings.TrimSpace(c.DB.DSN) == "" {
		return fmt.Errorf("%s is required unless %s is enabled", EnvDBDSN, EnvUseSQLite)
	}
	if _, err := c.Settlement.AgentRate(); err != nil {
		return err
	}
	if _, err := c.Settlement.DeliveryFee(); err != nil {
		return err
	}
	switch c.Delivery.Channel {
	case DeliveryChannelLog, DeliveryChannelPubSub:
	default:
		return fmt.Errorf("unsupported %s %q", EnvDeliveryChannel, c.Delivery.Channel)
	}
	if c.Delivery.Channel == DeliveryChannelPubSub && strings.TrimSpace(c.GCP.ProjectID) == "" {
		return fmt.Errorf("%s is required for the pubsub delivery channel", EnvGCPProjectID)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"AGASEKE_APP_ENV" required:"true"`
	Port         string `envconfig:"AGASEKE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"AGASEKE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"AGASEKE_LOG_WARN_STACK" default:"false"`

	CORSAllowedOrigins []string `envconfig:"AGASEKE_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"AGASEKE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN        string `envconfig:"AGASEKE_DB_DSN"`
	SQLitePath string `envconfig:"AGASEKE_SQLITE_PATH" default:"agaseke.db"`

	MaxOpenConns    int           `envconfig:"AGASEKE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"AGASEKE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"AGASEKE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"AGASEKE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQuery time.Duration `envconfig:"AGASEKE_DB_SLOW_QUERY" default:"500ms"`
	// TxAttempts bounds reruns of a transaction aborted by a serialization failure.
	TxAttempts int `envconfig:"AGASEKE_DB_TX_ATTEMPTS" default:"3"`
}

type RedisConfig struct {
	URL          string        `envconfig:"AGASEKE_REDIS_URL"`
	Address      string        `envconfig:"AGASEKE_REDIS_ADDR"`
	Password     string        `envconfig:"AGASEKE_REDIS_PASSWORD"`
	DB           int           `envconfig:"AGASEKE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"AGASEKE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"AGASEKE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"AGASEKE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"AGASEKE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"AGASEKE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"AGASEKE_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"AGASEKE_JWT_ISSUER" default:"agaseke"`
	ExpirationMinutes      int    `envconfig:"AGASEKE_JWT_EXPIRATION_MINUTES" default:"60"`
	RefreshTokenTTLMinutes int    `envconfig:"AGASEKE_REFRESH_TOKEN_TTL_MINUTES" default:"10080"`
}

// AccessTokenTTL returns the access credential lifetime.
func (j JWTConfig) AccessTokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"AGASEKE_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"AGASEKE_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"AGASEKE_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"AGASEKE_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"AGASEKE_ARGON_KEY_LEN" default:"32"`
}

// OTPConfig holds the one-time code policy.
type OTPConfig struct {
	TTL         time.Duration `envconfig:"AGASEKE_OTP_TTL" default:"5m"`
	CodeLength  int           `envconfig:"AGASEKE_OTP_CODE_LENGTH" default:"6"`
	MaxAttempts int           `envconfig:"AGASEKE_OTP_MAX_ATTEMPTS" default:"5"`
	GraceWindow time.Duration `envconfig:"AGASEKE_OTP_GRACE_WINDOW" default:"10m"`
	CASRetries  int           `envconfig:"AGASEKE_OTP_CAS_RETRIES" default:"3"`
}

type PickupConfig struct {
	MaxRestarts int           `envconfig:"AGASEKE_PICKUP_MAX_RESTARTS" default:"3"`
	AttemptTTL  time.Duration `envconfig:"AGASEKE_PICKUP_ATTEMPT_TTL" default:"30m"`
}

// SettlementConfig controls the vendor/agent revenue split.
type SettlementConfig struct {
	AgentRatePercent   string `envconfig:"AGASEKE_SETTLEMENT_AGENT_RATE_PERCENT" default:"20"`
	CommissionBase     string `envconfig:"AGASEKE_SETTLEMENT_COMMISSION_BASE" default:"total"`
	DefaultDeliveryFee string `envconfig:"AGASEKE_SETTLEMENT_DEFAULT_DELIVERY_FEE" default:"5.00"`
	Scale              int32  `envconfig:"AGASEKE_SETTLEMENT_SCALE" default:"2"`
	TransitionRetries  int    `envconfig:"AGASEKE_SETTLEMENT_TRANSITION_RETRIES" default:"3"`
}

// AgentRate returns the agent percentage as a fraction (20 -> 0.20).
func (s SettlementConfig) AgentRate() (decimal.Decimal, error) {
	pct, err := decimal.NewFromString(strings.TrimSpace(s.AgentRatePercent))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", EnvSettlementAgentRate, err)
	}
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, fmt.Errorf("%s must be between 0 and 100", EnvSettlementAgentRate)
	}
	return pct.Div(decimal.NewFromInt(100)), nil
}

// DeliveryFee returns the fee applied to delivery purchases created without one.
func (s SettlementConfig) DeliveryFee() (decimal.Decimal, error) {
	fee, err := decimal.NewFromString(strings.TrimSpace(s.DefaultDeliveryFee))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", EnvSettlementDeliveryFee, err)
	}
	if fee.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", EnvSettlementDeliveryFee)
	}
	return fee, nil
}

type QRConfig struct {
	Secret string `envconfig:"AGASEKE_QR_SECRET" required:"true"`
	Issuer string `envconfig:"AGASEKE_QR_ISSUER" default:"agaseke-pickup"`
}

type DeliveryConfig struct {
	Channel string        `envconfig:"AGASEKE_DELIVERY_CHANNEL" default:"log"`
	Timeout time.Duration `envconfig:"AGASEKE_DELIVERY_TIMEOUT" default:"10s"`
}

type CredentialsConfig struct {
	Timeout time.Duration `envconfig:"AGASEKE_CREDENTIALS_TIMEOUT" default:"5s"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"AGASEKE_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OTPDeliveryTopic string `envconfig:"AGASEKE_PUBSUB_OTP_DELIVERY_TOPIC" default:"agaseke-otp-delivery"`
	// CreateTopic provisions a missing topic at startup (emulator and dev).
	CreateTopic bool `envconfig:"AGASEKE_PUBSUB_CREATE_TOPIC" default:"false"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"AGASEKE_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginIdentityLimit int           `envconfig:"AGASEKE_AUTH_RATE_LIMIT_LOGIN_IDENTITY_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"AGASEKE_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	VerifyWindow       time.Duration `envconfig:"AGASEKE_AUTH_RATE_LIMIT_VERIFY_WINDOW" default:"1m"`
	VerifyIPLimit      int           `envconfig:"AGASEKE_AUTH_RATE_LIMIT_VERIFY_IP_LIMIT" default:"30"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"AGASEKE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"AGASEKE_AUTO_MIGRATE" default:"false"`
}

type CronConfig struct {
	Interval       time.Duration `envconfig:"AGASEKE_CRON_INTERVAL" default:"1m"`
	LockTTL        time.Duration `envconfig:"AGASEKE_CRON_LOCK_TTL" default:"5m"`
	OTPPurgeEvery  time.Duration `envconfig:"AGASEKE_CRON_OTP_PURGE_EVERY" default:"15m"`
	ReconcileEvery time.Duration `envconfig:"AGASEKE_CRON_RECONCILE_EVERY" default:"5m"`
	ReconcileBatch int           `envconfig:"AGASEKE_CRON_RECONCILE_BATCH" default:"200"`
	// MetricsAddr serves /metrics for the worker; empty disables it.
	MetricsAddr string `envconfig:"AGASEKE_CRON_METRICS_ADDR" default:":9102"`
}
