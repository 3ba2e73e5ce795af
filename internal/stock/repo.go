package stock

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/catalogsync/pkg/db/models"
	"github.com/angelmondragon/catalogsync/pkg/enums"
	"github.com/angelmondragon/catalogsync/pkg/pagination"
)

// Filter narrows a ledger listing. Zero values are ignored.
type Filter struct {
	Status   enums.StockAuditStatus
	Platform string
	LocalID  int64
	Since    time.Time
	Limit    int
	Cursor   *pagination.Cursor
}

// Repository persists stock audit entries. The unique key on
// (platform, sale_line_id, movement_kind) is what makes Claim a guard.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Claim(ctx context.Context, entry *models.StockAuditEntry) error
	Finalize(ctx context.Context, entry *models.StockAuditEntry) error
	FindMovement(ctx context.Context, platform, saleLineID string, kind enums.MovementKind) (*models.StockAuditEntry, error)
	List(ctx context.Context, filter Filter) ([]models.StockAuditEntry, *pagination.Cursor, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Claim(ctx context.Context, entry *models.StockAuditEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) Finalize(ctx context.Context, entry *models.StockAuditEntry) error {
	return r.db.WithContext(ctx).
		Model(&models.StockAuditEntry{}).
		Where("id = ?", entry.ID).
		Updates(map[string]any{
			"status":            entry.Status,
			"error":             entry.Error,
			"processed_at":      entry.ProcessedAt,
			"remote_product_id": entry.RemoteProductID,
			"remote_variant_id": entry.RemoteVariantID,
			"sku":               entry.SKU,
			"published_tag":     entry.PublishedTag,
			"stock_from":        entry.StockFrom,
			"stock_to":          entry.StockTo,
		}).Error
}

// FindMovement returns the entry for one ledger key, or nil when it was never
// claimed.
func (r *repository) FindMovement(ctx context.Context, platform, saleLineID string, kind enums.MovementKind) (*models.StockAuditEntry, error) {
	var entry models.StockAuditEntry
	err := r.db.WithContext(ctx).
		Where("platform = ? AND sale_line_id = ? AND movement_kind = ?", platform, saleLineID, kind).
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) List(ctx context.Context, filter Filter) ([]models.StockAuditEntry, *pagination.Cursor, error) {
	q := r.db.WithContext(ctx).Model(&models.StockAuditEntry{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Platform != "" {
		q = q.Where("platform = ?", filter.Platform)
	}
	if filter.LocalID > 0 {
		q = q.Where("local_id = ?", filter.LocalID)
	}
	if !filter.Since.IsZero() {
		q = q.Where("created_at >= ?", filter.Since)
	}
	if filter.Cursor != nil {
		q = q.Where("id < ?", filter.Cursor.ID)
	}
	limit := pagination.NormalizeLimit(filter.Limit)

	var entries []models.StockAuditEntry
	if err := q.Order("id DESC").Limit(pagination.LimitWithBuffer(limit)).Find(&entries).Error; err != nil {
		return nil, nil, err
	}
	entries, next := pagination.Trim(entries, limit, func(e models.StockAuditEntry) int64 { return e.ID })
	return entries, next, nil
}
