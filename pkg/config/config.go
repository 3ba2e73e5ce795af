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
	FeatureFlags FeatureFlagsConfig
	Storefront   StorefrontConfig
	Webhook      WebhookConfig
	Stock        StockConfig
	Reconcile    ReconcileConfig
	Categories   CategoriesConfig
	OTP          OTPConfig
	Cron         CronConfig
	Admin        AdminConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Storefront.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CATALOGSYNC_APP_ENV" required:"true"`
	Port         string `envconfig:"CATALOGSYNC_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"CATALOGSYNC_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CATALOGSYNC_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CATALOGSYNC_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CATALOGSYNC_DB_DSN"`
	Driver string `envconfig:"CATALOGSYNC_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CATALOGSYNC_DB_HOST"`
	LegacyPort     int    `envconfig:"CATALOGSYNC_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CATALOGSYNC_DB_USER"`
	LegacyPassword string `envconfig:"CATALOGSYNC_DB_PASSWORD"`
	LegacyName     string `envconfig:"CATALOGSYNC_DB_NAME"`
	LegacySSLMode  string `envconfig:"CATALOGSYNC_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CATALOGSYNC_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CATALOGSYNC_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CATALOGSYNC_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CATALOGSYNC_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CATALOGSYNC_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CATALOGSYNC_REDIS_ADDR"`
	Password     string        `envconfig:"CATALOGSYNC_REDIS_PASSWORD"`
	DB           int           `envconfig:"CATALOGSYNC_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CATALOGSYNC_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CATALOGSYNC_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CATALOGSYNC_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CATALOGSYNC_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CATALOGSYNC_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CATALOGSYNC_AUTO_MIGRATE" default:"false"`
}

// StorefrontConfig holds the remote platform credentials for a single store.
type StorefrontConfig struct {
	StoreID     string        `envconfig:"CATALOGSYNC_STOREFRONT_STORE_ID" required:"true"`
	AccessToken string        `envconfig:"CATALOGSYNC_STOREFRONT_ACCESS_TOKEN" required:"true"`
	BaseURL     string        `envconfig:"CATALOGSYNC_STOREFRONT_BASE_URL" default:"https://api.tiendanube.com/v1"`
	UserAgent   string        `envconfig:"CATALOGSYNC_STOREFRONT_USER_AGENT" default:"catalogsync (suporte@catalogsync.dev)"`
	Timeout     time.Duration `envconfig:"CATALOGSYNC_STOREFRONT_TIMEOUT" default:"20s"`
	Language    string        `envconfig:"CATALOGSYNC_STOREFRONT_LANGUAGE" default:"pt"`
}

func (s StorefrontConfig) validate() error {
	if strings.TrimSpace(s.StoreID) == "" {
		return fmt.Errorf("%s is required", EnvStorefrontStoreID)
	}
	if _, err := url.Parse(s.BaseURL); err != nil {
		return fmt.Errorf("invalid %s: %w", EnvStorefrontBaseURL, err)
	}
	return nil
}

type WebhookConfig struct {
	AppSecret string `envconfig:"CATALOGSYNC_WEBHOOK_APP_SECRET" required:"true"`
	// RequireSignature drops deletions that fail HMAC verification. Off by default:
	// deletions are applied and the failed verification is recorded on the audit row.
	RequireSignature bool     `envconfig:"CATALOGSYNC_WEBHOOK_REQUIRE_SIGNATURE" default:"false"`
	PublicBaseURL    string   `envconfig:"CATALOGSYNC_WEBHOOK_PUBLIC_BASE_URL"`
	Topics           []string `envconfig:"CATALOGSYNC_WEBHOOK_TOPICS" default:"product/deleted"`
}

// CallbackURL returns the absolute URL the storefront should deliver events to.
func (w WebhookConfig) CallbackURL() string {
	base := strings.TrimRight(strings.TrimSpace(w.PublicBaseURL), "/")
	if base == "" {
		return ""
	}
	return base + WebhookPath
}

type StockConfig struct {
	Platform     string `envconfig:"CATALOGSYNC_STOCK_PLATFORM" default:"NUVEMSHOP"`
	LookbackDays int    `envconfig:"CATALOGSYNC_STOCK_LOOKBACK_DAYS" default:"3"`
	// Timezone interprets sale dates sent without an offset.
	Timezone string `envconfig:"CATALOGSYNC_SALES_TIMEZONE" default:"America/Sao_Paulo"`
}

// Location resolves Timezone, falling back to UTC.
func (s StockConfig) Location() *time.Location {
	if loc, err := time.LoadLocation(s.Timezone); err == nil {
		return loc
	}
	return time.UTC
}

type ReconcileConfig struct {
	PageSize int `envconfig:"CATALOGSYNC_RECONCILE_PAGE_SIZE" default:"50"`
	MaxPages int `envconfig:"CATALOGSYNC_RECONCILE_MAX_PAGES" default:"40"`
}

type CategoriesConfig struct {
	CacheTTL time.Duration `envconfig:"CATALOGSYNC_CATEGORIES_CACHE_TTL" default:"1h"`
}

type OTPConfig struct {
	TTL         time.Duration `envconfig:"CATALOGSYNC_OTP_TTL" default:"2m"`
	MaxAttempts int           `envconfig:"CATALOGSYNC_OTP_MAX_ATTEMPTS" default:"5"`
}

type CronConfig struct {
	Interval   time.Duration `envconfig:"CATALOGSYNC_CRON_INTERVAL" default:"15m"`
	LockTTL    time.Duration `envconfig:"CATALOGSYNC_CRON_LOCK_TTL" default:"10m"`
	JobTimeout time.Duration `envconfig:"CATALOGSYNC_CRON_JOB_TIMEOUT" default:"5m"`
}

type AdminConfig struct {
	APIKey          string        `envconfig:"CATALOGSYNC_ADMIN_API_KEY" required:"true"`
	RateLimitWindow time.Duration `envconfig:"CATALOGSYNC_ADMIN_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitPerIP  int           `envconfig:"CATALOGSYNC_ADMIN_RATE_LIMIT_PER_IP" default:"120"`
	IdempotencyTTL  time.Duration `envconfig:"CATALOGSYNC_ADMIN_IDEMPOTENCY_TTL" default:"24h"`
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
