package config

const EnvPrefix = "CATALOGSYNC"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// WebhookPath is the route the storefront delivers events to.
const WebhookPath = "/api/v1/webhooks/storefront"

const (
	EnvAppEnv   = "CATALOGSYNC_APP_ENV"
	EnvPort     = "CATALOGSYNC_APP_PORT"
	EnvLogLevel = "CATALOGSYNC_LOG_LEVEL"

	EnvDBDSN  = "CATALOGSYNC_DB_DSN"
	EnvDBHost = "CATALOGSYNC_DB_HOST"
	EnvDBUser = "CATALOGSYNC_DB_USER"
	EnvDBName = "CATALOGSYNC_DB_NAME"

	EnvRedisURL = "CATALOGSYNC_REDIS_URL"

	EnvStorefrontStoreID     = "CATALOGSYNC_STOREFRONT_STORE_ID"
	EnvStorefrontAccessToken = "CATALOGSYNC_STOREFRONT_ACCESS_TOKEN"
	EnvStorefrontBaseURL     = "CATALOGSYNC_STOREFRONT_BASE_URL"

	EnvWebhookAppSecret        = "CATALOGSYNC_WEBHOOK_APP_SECRET"
	EnvWebhookRequireSignature = "CATALOGSYNC_WEBHOOK_REQUIRE_SIGNATURE"
	EnvWebhookPublicBaseURL    = "CATALOGSYNC_WEBHOOK_PUBLIC_BASE_URL"
	EnvWebhookTopics           = "CATALOGSYNC_WEBHOOK_TOPICS"

	EnvStockLookbackDays = "CATALOGSYNC_STOCK_LOOKBACK_DAYS"
	EnvAdminAPIKey       = "CATALOGSYNC_ADMIN_API_KEY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
