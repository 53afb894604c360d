package config

const EnvPrefix = "AGASEKE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DeliveryChannelLog    = "log"
	DeliveryChannelPubSub = "pubsub"
)

const (
	EnvAppEnv                 = "AGASEKE_APP_ENV"
	EnvPort                   = "AGASEKE_APP_PORT"
	EnvDBDSN                  = "AGASEKE_DB_DSN"
	EnvUseSQLite              = "AGASEKE_USE_SQLITE"
	EnvRedisURL               = "AGASEKE_REDIS_URL"
	EnvJWTSecret              = "AGASEKE_JWT_SECRET"
	EnvJWTIssuer              = "AGASEKE_JWT_ISSUER"
	EnvJWTExpMins             = "AGASEKE_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "AGASEKE_REFRESH_TOKEN_TTL_MINUTES"
	EnvOTPTTL                 = "AGASEKE_OTP_TTL"
	EnvOTPMaxAttempts         = "AGASEKE_OTP_MAX_ATTEMPTS"
	EnvQRSecret               = "AGASEKE_QR_SECRET"
	EnvSettlementAgentRate    = "AGASEKE_SETTLEMENT_AGENT_RATE_PERCENT"
	EnvSettlementBase         = "AGASEKE_SETTLEMENT_COMMISSION_BASE"
	EnvSettlementDeliveryFee  = "AGASEKE_SETTLEMENT_DEFAULT_DELIVERY_FEE"
	EnvDeliveryChannel        = "AGASEKE_DELIVERY_CHANNEL"
	EnvGCPProjectID           = "AGASEKE_GCP_PROJECT_ID"
)
