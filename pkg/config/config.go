package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	Scanner       ScannerConfig
	Ledger        LedgerConfig
	Generation    GenerationConfig
	OpenAI        OpenAIConfig
	Stripe        StripeConfig
	Payments      PaymentsConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	BigQuery      BigQueryConfig
	Outbox        OutboxConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if cfg.Ledger.FullComplianceCredits <= 0 {
		return nil, fmt.Errorf("%s must be positive", EnvLedgerFullComplianceCredits)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env            string   `envconfig:"HOPL_APP_ENV" required:"true"`
	Port           string   `envconfig:"HOPL_APP_PORT" required:"true"`
	LogLevel       string   `envconfig:"HOPL_LOG_LEVEL" default:"info"`
	LogWarnStack   bool     `envconfig:"HOPL_LOG_WARN_STACK" default:"false"`
	AllowedOrigins []string `envconfig:"HOPL_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:8080"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"HOPL_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"HOPL_DB_DSN"`
	Driver string `envconfig:"HOPL_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"HOPL_DB_HOST"`
	Port     int    `envconfig:"HOPL_DB_PORT" default:"5432"`
	User     string `envconfig:"HOPL_DB_USER"`
	Password string `envconfig:"HOPL_DB_PASSWORD"`
	Name     string `envconfig:"HOPL_DB_NAME"`
	SSLMode  string `envconfig:"HOPL_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"HOPL_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"HOPL_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"HOPL_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"HOPL_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"HOPL_REDIS_URL" required:"true"`
	Address      string        `envconfig:"HOPL_REDIS_ADDR"`
	Password     string        `envconfig:"HOPL_REDIS_PASSWORD"`
	DB           int           `envconfig:"HOPL_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"HOPL_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"HOPL_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"HOPL_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"HOPL_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"HOPL_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"HOPL_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"HOPL_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"HOPL_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"HOPL_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"HOPL_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"HOPL_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"HOPL_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"HOPL_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"HOPL_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"HOPL_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"HOPL_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"HOPL_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"HOPL_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"HOPL_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"HOPL_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate    bool `envconfig:"HOPL_AUTO_MIGRATE" default:"false"`
	EventsEnabled  bool `envconfig:"HOPL_FEATURE_EVENTS" default:"true"`
	AnonymousScans bool `envconfig:"HOPL_FEATURE_ANONYMOUS_SCANS" default:"true"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"HOPL_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type ScannerConfig struct {
	Timeout       time.Duration `envconfig:"HOPL_SCANNER_TIMEOUT" default:"15s"`
	MaxRedirects  int           `envconfig:"HOPL_SCANNER_MAX_REDIRECTS" default:"5"`
	MaxBodyBytes  int64         `envconfig:"HOPL_SCANNER_MAX_BODY_BYTES" default:"5242880"`
	MaxConcurrent int           `envconfig:"HOPL_SCANNER_MAX_CONCURRENT" default:"8"`
	CacheTTL      time.Duration `envconfig:"HOPL_SCANNER_CACHE_TTL" default:"24h"`
	UserAgent     string        `envconfig:"HOPL_SCANNER_USER_AGENT" default:"Mozilla/5.0 (compatible; HOPL Compliance Scanner/1.0)"`
}

type LedgerConfig struct {
	FullComplianceCredits int `envconfig:"HOPL_LEDGER_FULL_COMPLIANCE_CREDITS" default:"15"`
	AnnualGuardDays       int `envconfig:"HOPL_LEDGER_ANNUAL_GUARD_DAYS" default:"365"`
	ProDays               int `envconfig:"HOPL_LEDGER_PRO_DAYS" default:"30"`
}

type GenerationConfig struct {
	Timeout time.Duration `envconfig:"HOPL_GENERATION_TIMEOUT" default:"60s"`
	// PDFFontPath points at a TrueType font for PDF downloads. Empty keeps the
	// core Helvetica font.
	PDFFontPath string `envconfig:"HOPL_PDF_FONT_PATH"`
}

type OpenAIConfig struct {
	APIKey      string        `envconfig:"HOPL_OPENAI_API_KEY" default:"demo"`
	BaseURL     string        `envconfig:"HOPL_OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	Model       string        `envconfig:"HOPL_OPENAI_MODEL" default:"gpt-4o-mini"`
	Temperature float64       `envconfig:"HOPL_OPENAI_TEMPERATURE" default:"0.3"`
	MaxTokens   int           `envconfig:"HOPL_OPENAI_MAX_TOKENS" default:"4000"`
	Timeout     time.Duration `envconfig:"HOPL_OPENAI_TIMEOUT" default:"45s"`
	MaxRetries  int           `envconfig:"HOPL_OPENAI_MAX_RETRIES" default:"1"`
}

// DemoMode reports whether generation should skip the remote model.
func (o OpenAIConfig) DemoMode() bool {
	key := strings.TrimSpace(o.APIKey)
	return key == "" || strings.EqualFold(key, "demo")
}

type StripeConfig struct {
	APIKey string `envconfig:"HOPL_STRIPE_API_KEY"`
	Secret string `envconfig:"HOPL_STRIPE_SECRET"`
	Env    string `envconfig:"HOPL_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type PaymentsConfig struct {
	SuccessURL string `envconfig:"HOPL_PAYMENTS_SUCCESS_URL" default:"http://localhost:8080/dashboard"`
	CancelURL  string `envconfig:"HOPL_PAYMENTS_CANCEL_URL" default:"http://localhost:8080/pricing"`
	Currency   string `envconfig:"HOPL_PAYMENTS_CURRENCY" default:"eur"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"HOPL_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"HOPL_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"HOPL_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	EventsTopic           string `envconfig:"HOPL_PUBSUB_EVENTS_TOPIC" default:"hopl-compliance-events"`
	AnalyticsSubscription string `envconfig:"HOPL_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"hopl-compliance-events-analytics"`
}

type BigQueryConfig struct {
	Dataset          string `envconfig:"HOPL_BIGQUERY_DATASET" default:"hopl"`
	ScanFactsTable   string `envconfig:"HOPL_BIGQUERY_SCAN_FACTS_TABLE" default:"scan_facts"`
	GenerationTable  string `envconfig:"HOPL_BIGQUERY_GENERATION_FACTS_TABLE" default:"generation_facts"`
	CreditFactsTable string `envconfig:"HOPL_BIGQUERY_CREDIT_FACTS_TABLE" default:"credit_facts"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"HOPL_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"HOPL_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"HOPL_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval               time.Duration `envconfig:"HOPL_CRON_INTERVAL" default:"1h"`
	OutboxRetentionDays    int           `envconfig:"HOPL_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	PendingPaymentTTL      time.Duration `envconfig:"HOPL_CRON_PENDING_PAYMENT_TTL" default:"48h"`
	StalledGenerationAfter time.Duration `envconfig:"HOPL_CRON_STALLED_GENERATION_AFTER" default:"15m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
