package config

// EnvPrefix is passed to envconfig; every field carries its full variable name.
const EnvPrefix = "HOPL"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "HOPL_APP_ENV"
	EnvPort     = "HOPL_APP_PORT"
	EnvLogLevel = "HOPL_LOG_LEVEL"

	EnvDBDSN  = "HOPL_DB_DSN"
	EnvDBHost = "HOPL_DB_HOST"
	EnvDBUser = "HOPL_DB_USER"
	EnvDBName = "HOPL_DB_NAME"

	EnvRedisURL = "HOPL_REDIS_URL"

	EnvJWTSecret              = "HOPL_JWT_SECRET"
	EnvJWTIssuer              = "HOPL_JWT_ISSUER"
	EnvJWTExpMins             = "HOPL_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "HOPL_REFRESH_TOKEN_TTL_MINUTES"

	EnvScannerTimeout              = "HOPL_SCANNER_TIMEOUT"
	EnvScannerMaxRedirects         = "HOPL_SCANNER_MAX_REDIRECTS"
	EnvLedgerFullComplianceCredits = "HOPL_LEDGER_FULL_COMPLIANCE_CREDITS"
	EnvOpenAIAPIKey                = "HOPL_OPENAI_API_KEY"
	EnvStripeEnv                   = "HOPL_STRIPE_ENV"
	EnvGCPProjectID                = "HOPL_GCP_PROJECT_ID"
	EnvPubSubEventsTopic           = "HOPL_PUBSUB_EVENTS_TOPIC"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
