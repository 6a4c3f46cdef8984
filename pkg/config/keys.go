package config

const EnvPrefix = "BAZAAR"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// Environment variable names referenced outside struct tags.
const (
	EnvAppEnv   = "BAZAAR_APP_ENV"
	EnvPort     = "BAZAAR_APP_PORT"
	EnvDBDSN    = "BAZAAR_DB_DSN"
	EnvDBHost   = "BAZAAR_DB_HOST"
	EnvDBUser   = "BAZAAR_DB_USER"
	EnvDBName   = "BAZAAR_DB_NAME"
	EnvDBPass   = "BAZAAR_DB_PASSWORD"
	EnvDBPort   = "BAZAAR_DB_PORT"
	EnvRedisURL = "BAZAAR_REDIS_URL"

	EnvJWTSecret = "BAZAAR_JWT_SECRET"
	EnvJWTIssuer = "BAZAAR_JWT_ISSUER"

	EnvGCPProjectID          = "BAZAAR_GCP_PROJECT_ID"
	EnvPubSubOrdersTopic     = "BAZAAR_PUBSUB_ORDERS_TOPIC"
	EnvPubSubNotificationSub = "BAZAAR_PUBSUB_NOTIFICATION_SUBSCRIPTION"
	EnvPubSubRefundsTopic    = "BAZAAR_PUBSUB_REFUNDS_TOPIC"
	EnvPubSubRefundsSub      = "BAZAAR_PUBSUB_REFUNDS_SUBSCRIPTION"
	EnvGatewayClientID       = "BAZAAR_GATEWAY_CLIENT_ID"
	EnvGatewayClientSecret   = "BAZAAR_GATEWAY_CLIENT_SECRET"
	EnvGatewayReturnURL      = "BAZAAR_GATEWAY_RETURN_URL"
	EnvGatewayNotifyURL      = "BAZAAR_GATEWAY_NOTIFY_URL"
	EnvCheckoutSessionTTL    = "BAZAAR_CHECKOUT_SESSION_TTL"
	EnvReconcilePendingAfter = "BAZAAR_RECONCILE_PENDING_AFTER"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
