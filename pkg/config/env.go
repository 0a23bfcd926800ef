package config

const (
	EnvPrefix = "STOREFRONT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultSQLiteDSN = "file:storefront.db?_foreign_keys=on"
)

const (
	EnvAppEnv    = "STOREFRONT_APP_ENV"
	EnvPort      = "STOREFRONT_APP_PORT"
	EnvLogLevel  = "STOREFRONT_LOG_LEVEL"
	EnvUseSQLite = "STOREFRONT_USE_SQLITE"

	EnvDBDSN    = "STOREFRONT_DB_DSN"
	EnvDBDriver = "STOREFRONT_DB_DRIVER"
	EnvDBHost   = "STOREFRONT_DB_HOST"
	EnvDBUser   = "STOREFRONT_DB_USER"
	EnvDBName   = "STOREFRONT_DB_NAME"

	EnvRedisURL = "STOREFRONT_REDIS_URL"

	EnvJWTSecret        = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer        = "STOREFRONT_JWT_ISSUER"
	EnvJWTSessionTTL    = "STOREFRONT_JWT_SESSION_TTL_MINUTES"
	EnvJWTInvitationTTL = "STOREFRONT_JWT_INVITATION_TTL_MINUTES"

	EnvCORSAllowedOrigins = "STOREFRONT_CORS_ALLOWED_ORIGINS"
	EnvPubSubTeamTopic    = "STOREFRONT_PUBSUB_TEAM_TOPIC"
	EnvGCPProjectID       = "STOREFRONT_GCP_PROJECT_ID"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
