package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/catalogsync/api/controllers"
	webhookcontrollers "github.com/angelmondragon/catalogsync/api/controllers/webhooks"
	"github.com/angelmondragon/catalogsync/api/middleware"
	"github.com/angelmondragon/catalogsync/pkg/config"
	"github.com/angelmondragon/catalogsync/pkg/logger"
)

// KVStore is the redis surface the HTTP layer needs for throttling and replay.
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

type confirmationStore interface {
	controllers.ConfirmationIssuer
	controllers.ConfirmationTaker
}

// Params carries everything the router wires. Nil services answer 500 on
// their routes instead of panicking.
type Params struct {
	Config   *config.Config
	Logger   *logger.Logger
	Store    KVStore
	Gatherer prometheus.Gatherer
	Pingers  map[string]controllers.Pinger

	Mappings      controllers.MappingService
	MappingImport controllers.MappingImporter
	Export        controllers.ExportService
	Categories    controllers.CategoryResolver
	Stock         controllers.StockService
	Sales         controllers.SaleRecorder
	Divergence    controllers.DivergenceService
	Reconcile     controllers.ReconcileService
	Images        controllers.ImageService
	Subscriptions controllers.SubscriptionService
	Events        controllers.EventLister
	Confirmations confirmationStore
	Webhook       webhookcontrollers.StorefrontWebhookService
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg.App.Env))
		r.Get("/ready", controllers.HealthReady(cfg.App.Env, logg, p.Pingers))
	})

	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Post(config.WebhookPath, webhookcontrollers.StorefrontWebhook(p.Webhook, logg))

	adminPolicy := middleware.NewRateLimitPolicy("admin", cfg.Admin.RateLimitWindow, cfg.Admin.RateLimitPerIP)
	idempotent := middleware.Idempotency(p.Store, cfg.Admin.IdempotencyTTL, logg)

	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(middleware.RateLimit(adminPolicy, p.Store, logg))
		r.Use(middleware.AdminKey(cfg.Admin.APIKey, logg))

		r.Route("/mappings", func(r chi.Router) {
			r.Post("/", controllers.AdminMappingLink(p.Mappings, logg))
			r.Post("/needs-update", controllers.AdminMappingsMarkNeedsUpdate(p.Mappings, logg))
			r.Post("/import", controllers.AdminMappingsImport(p.MappingImport, logg))
			r.Get("/{localID}", controllers.AdminMappingGet(p.Mappings, logg))
			r.Delete("/{localID}", controllers.AdminMappingUnlink(p.Mappings, logg))
		})

		r.Route("/items/{localID}", func(r chi.Router) {
			r.With(idempotent).Post("/export", controllers.AdminExport(p.Export, logg))
			r.With(idempotent).Post("/images", controllers.AdminImagesSync(p.Images, logg))
			r.Get("/divergence", controllers.AdminDivergenceInspect(p.Divergence, logg))
			r.Post("/divergence/recheck", controllers.AdminDivergenceRecheck(p.Divergence, logg))
		})
		r.Post("/divergence/recheck", controllers.AdminDivergenceRecheckAll(p.Divergence, logg))

		r.Post("/categories/ensure", controllers.AdminCategoriesEnsure(p.Categories, logg))

		r.Route("/stock", func(r chi.Router) {
			r.With(idempotent).Post("/apply", controllers.AdminStockApply(p.Stock, logg))
			r.Post("/sync", controllers.AdminStockSync(p.Stock, logg))
			r.Get("/entries", controllers.AdminStockEntries(p.Stock, logg))
		})
		r.With(idempotent).Post("/sales", controllers.AdminSalesRecord(p.Sales, logg))

		r.Get("/sync-status", controllers.AdminSyncStatus(p.Reconcile, logg))
		r.Post("/products/{productID}/reconcile-variants", controllers.AdminReconcileVariants(p.Reconcile, logg))
		r.With(idempotent).Post("/variants/remove", controllers.AdminRemoveVariant(p.Reconcile, p.Confirmations, logg))
		r.Post("/confirmations", controllers.AdminConfirmationIssue(p.Confirmations, logg))

		r.Route("/webhooks/subscriptions", func(r chi.Router) {
			r.Post("/", controllers.AdminSubscriptionsEnsure(p.Subscriptions, logg))
			r.Delete("/", controllers.AdminSubscriptionsRemove(p.Subscriptions, logg))
		})
		r.Get("/events", controllers.AdminEvents(p.Events, logg))
	})

	return r
}
