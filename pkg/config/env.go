package config

const (
	EnvPrefix = "PARTSRESERVE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "PARTSRESERVE_APP_ENV"
	EnvPort     = "PARTSRESERVE_APP_PORT"
	EnvLogLevel = "PARTSRESERVE_LOG_LEVEL"

	EnvDBDSN     = "PARTSRESERVE_DB_DSN"
	EnvDBHost    = "PARTSRESERVE_DB_HOST"
	EnvDBUser    = "PARTSRESERVE_DB_USER"
	EnvDBName    = "PARTSRESERVE_DB_NAME"
	EnvUseSQLite = "PARTSRESERVE_USE_SQLITE"

	EnvRedisURL = "PARTSRESERVE_REDIS_URL"

	EnvJWTSecret  = "PARTSRESERVE_JWT_SECRET"
	EnvJWTIssuer  = "PARTSRESERVE_JWT_ISSUER"
	EnvJWTExpMins = "PARTSRESERVE_JWT_EXPIRATION_MINUTES"

	EnvEngineOperationTimeout    = "PARTSRESERVE_ENGINE_OPERATION_TIMEOUT"
	EnvEngineShipmentConcurrency = "PARTSRESERVE_ENGINE_SHIPMENT_CONCURRENCY"
	EnvEngineComponentPageSize   = "PARTSRESERVE_ENGINE_COMPONENT_PAGE_SIZE"

	EnvPubSubTransfersTopic = "PARTSRESERVE_PUBSUB_TRANSFERS_TOPIC"
	EnvOutboxRetention      = "PARTSRESERVE_OUTBOX_RETENTION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
