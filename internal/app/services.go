// Package app assembles the sync services shared by the api and cron-worker
// binaries.
package app

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/catalogsync/internal/catalog"
	"github.com/angelmondragon/catalogsync/internal/categories"
	"github.com/angelmondragon/catalogsync/internal/divergence"
	"github.com/angelmondragon/catalogsync/internal/export"
	"github.com/angelmondragon/catalogsync/internal/images"
	"github.com/angelmondragon/catalogsync/internal/ledger"
	"github.com/angelmondragon/catalogsync/internal/mapping"
	"github.com/angelmondragon/catalogsync/internal/otp"
	"github.com/angelmondragon/catalogsync/internal/reconcile"
	"github.com/angelmondragon/catalogsync/internal/sales"
	"github.com/angelmondragon/catalogsync/internal/stock"
	storefrontwebhook "github.com/angelmondragon/catalogsync/internal/webhooks/storefront"
	"github.com/angelmondragon/catalogsync/pkg/config"
	"github.com/angelmondragon/catalogsync/pkg/db"
	"github.com/angelmondragon/catalogsync/pkg/logger"
	"github.com/angelmondragon/catalogsync/pkg/metrics"
	"github.com/angelmondragon/catalogsync/pkg/redis"
	"github.com/angelmondragon/catalogsync/pkg/storefront"
)

type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Redis      *redis.Client
	Registerer prometheus.Registerer
}

// Services is the wired service graph.
type Services struct {
	Storefront    *storefront.Client
	Metrics       *metrics.SyncMetrics
	Ledger        ledger.Service
	Sales         sales.Service
	Mappings      *mapping.Service
	MappingImport *mapping.Importer
	Categories    *categories.Resolver
	Export        *export.Service
	Stock         *stock.Service
	Divergence    *divergence.Service
	Reconcile     *reconcile.Service
	Images        *images.Service
	Webhook       *storefrontwebhook.Service
	Subscriptions *storefrontwebhook.Subscriptions
	Confirmations *otp.Store
}

func Build(p Params) (*Services, error) {
	if p.Config == nil {
		return nil, errors.New("config is required")
	}
	if p.DB == nil {
		return nil, errors.New("database client is required")
	}
	if p.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	cfg, logg := p.Config, p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	conn := p.DB.DB()

	client, err := storefront.NewClient(cfg.Storefront.StoreID, cfg.Storefront.AccessToken,
		storefront.WithBaseURL(cfg.Storefront.BaseURL),
		storefront.WithUserAgent(cfg.Storefront.UserAgent),
		storefront.WithTimeout(cfg.Storefront.Timeout),
		storefront.WithLanguage(cfg.Storefront.Language),
	)
	if err != nil {
		return nil, fmt.Errorf("storefront client: %w", err)
	}

	s := &Services{Storefront: client, Metrics: metrics.NewSyncMetrics(p.Registerer)}

	if s.Ledger, err = ledger.NewService(ledger.NewRepository(conn)); err != nil {
		return nil, fmt.Errorf("ledger service: %w", err)
	}
	if s.Sales, err = sales.NewService(sales.NewRepository(conn), cfg.Stock.Location()); err != nil {
		return nil, fmt.Errorf("sales service: %w", err)
	}

	catalogRepo := catalog.NewRepository(conn)
	if s.Mappings, err = mapping.NewService(p.DB, mapping.NewRepository(conn), catalogRepo, logg); err != nil {
		return nil, fmt.Errorf("mapping service: %w", err)
	}

	if s.MappingImport, err = mapping.NewImporter(s.Mappings, client, mapping.ImportOptions{
		PageSize: cfg.Reconcile.PageSize,
		MaxPages: cfg.Reconcile.MaxPages,
	}); err != nil {
		return nil, fmt.Errorf("mapping importer: %w", err)
	}

	if s.Categories, err = categories.NewResolver(client, categories.Options{
		StoreID:  cfg.Storefront.StoreID,
		Cache:    p.Redis,
		CacheTTL: cfg.Categories.CacheTTL,
		Metrics:  s.Metrics,
		Logger:   logg,
	}); err != nil {
		return nil, fmt.Errorf("category resolver: %w", err)
	}

	if s.Export, err = export.NewService(export.ServiceParams{
		Catalog:    catalogRepo,
		Mappings:   s.Mappings,
		Categories: s.Categories,
		Remote:     client,
		Audit:      s.Ledger,
		Language:   cfg.Storefront.Language,
		Metrics:    s.Metrics,
		Logger:     logg,
	}); err != nil {
		return nil, fmt.Errorf("export service: %w", err)
	}

	reconciler, err := stock.NewReconciler(s.Mappings, client, logg)
	if err != nil {
		return nil, fmt.Errorf("stock reconciler: %w", err)
	}
	if s.Stock, err = stock.NewService(stock.ServiceParams{
		Transactions: p.DB,
		Ledger:       stock.NewRepository(conn),
		Sales:        s.Sales,
		Catalog:      catalogRepo,
		Mappings:     s.Mappings,
		Applier:      reconciler,
		Platform:     cfg.Stock.Platform,
		LookbackDays: cfg.Stock.LookbackDays,
		Metrics:      s.Metrics,
		Logger:       logg,
	}); err != nil {
		return nil, fmt.Errorf("stock service: %w", err)
	}

	if s.Divergence, err = divergence.NewService(catalogRepo, s.Mappings, s.Metrics, logg); err != nil {
		return nil, fmt.Errorf("divergence service: %w", err)
	}

	if s.Reconcile, err = reconcile.NewService(reconcile.ServiceParams{
		Mappings: s.Mappings,
		Remote:   client,
		Audit:    s.Ledger,
		PageSize: cfg.Reconcile.PageSize,
		MaxPages: cfg.Reconcile.MaxPages,
		Metrics:  s.Metrics,
		Logger:   logg,
	}); err != nil {
		return nil, fmt.Errorf("reconcile service: %w", err)
	}

	if s.Images, err = images.NewService(s.Mappings, client, logg); err != nil {
		return nil, fmt.Errorf("image service: %w", err)
	}

	if s.Webhook, err = storefrontwebhook.NewService(storefrontwebhook.ServiceParams{
		Mappings:         s.Mappings,
		Audit:            s.Ledger,
		Secret:           cfg.Webhook.AppSecret,
		RequireSignature: cfg.Webhook.RequireSignature,
		Metrics:          s.Metrics,
		Logger:           logg,
	}); err != nil {
		return nil, fmt.Errorf("webhook service: %w", err)
	}
	if s.Subscriptions, err = storefrontwebhook.NewSubscriptions(client, cfg.Webhook.CallbackURL(), cfg.Webhook.Topics, logg); err != nil {
		return nil, fmt.Errorf("webhook subscriptions: %w", err)
	}

	if s.Confirmations, err = otp.NewStore(p.Redis, cfg.OTP.TTL, cfg.OTP.MaxAttempts, logg); err != nil {
		return nil, fmt.Errorf("confirmation store: %w", err)
	}
	return s, nil
}
