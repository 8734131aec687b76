package config

// EnvPrefix is handed to envconfig; every field also declares its absolute name.
const EnvPrefix = "RELIVV"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv       = "RELIVV_APP_ENV"
	EnvPort         = "RELIVV_APP_PORT"
	EnvLogLevel     = "RELIVV_LOG_LEVEL"
	EnvPublicOrigin = "RELIVV_PUBLIC_ORIGIN"

	EnvDBDSN    = "RELIVV_DB_DSN"
	EnvDBDriver = "RELIVV_DB_DRIVER"
	EnvDBHost   = "RELIVV_DB_HOST"
	EnvDBPort   = "RELIVV_DB_PORT"
	EnvDBUser   = "RELIVV_DB_USER"
	EnvDBPass   = "RELIVV_DB_PASSWORD"
	EnvDBName   = "RELIVV_DB_NAME"

	EnvRedisURL = "RELIVV_REDIS_URL"

	EnvJWTSecret  = "RELIVV_JWT_SECRET"
	EnvJWTIssuer  = "RELIVV_JWT_ISSUER"
	EnvJWTExpMins = "RELIVV_JWT_EXPIRATION_MINUTES"

	EnvInternalToken = "RELIVV_INTERNAL_TOKEN"

	EnvEscrowReleaseWindow = "RELIVV_ESCROW_RELEASE_WINDOW"
	EnvGatewayTimeout      = "RELIVV_GATEWAY_TIMEOUT"

	EnvGCPProjectID          = "RELIVV_GCP_PROJECT_ID"
	EnvPubSubEscrowTopic     = "RELIVV_PUBSUB_ESCROW_TOPIC"
	EnvPubSubNotificationTop = "RELIVV_PUBSUB_NOTIFICATION_TOPIC"

	EnvStripeAPIKey = "RELIVV_STRIPE_API_KEY"
	EnvStripeSecret = "RELIVV_STRIPE_SECRET"
	EnvStripeEnv    = "RELIVV_STRIPE_ENV"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
