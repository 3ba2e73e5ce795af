package mapping

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/catalogsync/pkg/db"
	"github.com/angelmondragon/catalogsync/pkg/db/models"
	"github.com/angelmondragon/catalogsync/pkg/enums"
)

// ProductRef pairs a local id with the remote product it points at.
type ProductRef struct {
	LocalID         int64
	RemoteProductID int64
	Kind            enums.MappingKind
}

// Repository persists storefront mappings.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a repository to the provided connection.
func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{db: conn}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Get returns the mapping for localID or nil when none exists.
func (r *Repository) Get(ctx context.Context, localID int64) (*models.StorefrontMapping, error) {
	return r.first(r.db.WithContext(ctx).Where("local_id = ?", localID))
}

// GetForUpdate is Get with a row lock, for use inside a transaction.
func (r *Repository) GetForUpdate(ctx context.Context, localID int64) (*models.StorefrontMapping, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("local_id = ?", localID))
}

// FindByRemotePair returns the mapping holding (productID, variantID), if any.
func (r *Repository) FindByRemotePair(ctx context.Context, productID, variantID int64) (*models.StorefrontMapping, error) {
	return r.first(r.db.WithContext(ctx).
		Where("remote_product_id = ? AND remote_variant_id = ?", productID, variantID))
}

func (r *Repository) first(q *gorm.DB) (*models.StorefrontMapping, error) {
	var m models.StorefrontMapping
	if err := q.Order("local_id ASC").First(&m).Error; err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// ListByRemoteProduct returns every mapping pointing at productID.
func (r *Repository) ListByRemoteProduct(ctx context.Context, productID int64) ([]models.StorefrontMapping, error) {
	var rows []models.StorefrontMapping
	err := r.db.WithContext(ctx).
		Where("remote_product_id = ?", productID).
		Order("local_id ASC").
		Find(&rows).Error
	return rows, err
}

// ListChildren returns the variant mappings under a parent item.
func (r *Repository) ListChildren(ctx context.Context, parentLocalID int64) ([]models.StorefrontMapping, error) {
	var rows []models.StorefrontMapping
	err := r.db.WithContext(ctx).
		Where("parent_local_id = ? AND kind = ?", parentLocalID, enums.MappingKindVariant).
		Order("local_id ASC").
		Find(&rows).Error
	return rows, err
}

// ListProductRefs returns every mapping that still carries a remote product id.
func (r *Repository) ListProductRefs(ctx context.Context) ([]ProductRef, error) {
	var refs []ProductRef
	err := r.db.WithContext(ctx).
		Model(&models.StorefrontMapping{}).
		Select("local_id, remote_product_id, kind").
		Where("remote_product_id IS NOT NULL").
		Order("local_id ASC").
		Scan(&refs).Error
	return refs, err
}

// ListLinkedAfter pages linked mappings by local id.
func (r *Repository) ListLinkedAfter(ctx context.Context, afterLocalID int64, limit int) ([]models.StorefrontMapping, error) {
	var rows []models.StorefrontMapping
	err := r.db.WithContext(ctx).
		Where("remote_product_id IS NOT NULL AND local_id > ?", afterLocalID).
		Order("local_id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Create inserts a new mapping.
func (r *Repository) Create(ctx context.Context, m *models.StorefrontMapping) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// Save writes every column of an existing mapping.
func (r *Repository) Save(ctx context.Context, m *models.StorefrontMapping) error {
	return r.db.WithContext(ctx).Save(m).Error
}

// ClearVariant drops the variant id of the rows holding (productID, variantID)
// and returns their local ids.
func (r *Repository) ClearVariant(ctx context.Context, productID, variantID int64, reason string, now time.Time) ([]int64, error) {
	var ids []int64
	if err := r.db.WithContext(ctx).
		Model(&models.StorefrontMapping{}).
		Where("remote_product_id = ? AND remote_variant_id = ?", productID, variantID).
		Pluck("local_id", &ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	err := r.db.WithContext(ctx).
		Model(&models.StorefrontMapping{}).
		Where("local_id IN ?", ids).
		Updates(map[string]any{
			"remote_variant_id": nil,
			"last_error":        reason,
			"updated_at":        now,
		}).Error
	return ids, err
}

// ClearRemote drops both remote ids of localID. It reports whether a row
// carrying a remote product id was changed.
func (r *Repository) ClearRemote(ctx context.Context, localID int64, reason string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.StorefrontMapping{}).
		Where("local_id = ? AND remote_product_id IS NOT NULL", localID).
		Updates(map[string]any{
			"remote_product_id": nil,
			"remote_variant_id": nil,
			"last_error":        reason,
			"updated_at":        now,
		})
	return res.RowsAffected > 0, res.Error
}

// Delete removes the mapping of localID.
func (r *Repository) Delete(ctx context.Context, localID int64) (bool, error) {
	res := r.db.WithContext(ctx).Where("local_id = ?", localID).Delete(&models.StorefrontMapping{})
	return res.RowsAffected > 0, res.Error
}

// DeleteByRemoteProduct removes every mapping pointing at productID and
// returns the affected local ids.
func (r *Repository) DeleteByRemoteProduct(ctx context.Context, productID int64) ([]int64, error) {
	var ids []int64
	if err := r.db.WithContext(ctx).
		Model(&models.StorefrontMapping{}).
		Where("remote_product_id = ?", productID).
		Order("local_id ASC").
		Pluck("local_id", &ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if err := r.db.WithContext(ctx).
		Where("local_id IN ?", ids).
		Delete(&models.StorefrontMapping{}).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// RecordFailure bumps the attempt counter and stores msg.
func (r *Repository) RecordFailure(ctx context.Context, localID int64, msg string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.StorefrontMapping{}).
		Where("local_id = ?", localID).
		Updates(map[string]any{
			"sync_attempts": gorm.Expr("sync_attempts + 1"),
			"last_error":    msg,
			"last_sync_at":  now,
			"updated_at":    now,
		})
	return res.RowsAffected > 0, res.Error
}

// SetNeedsUpdate flags or clears the re-export marker.
func (r *Repository) SetNeedsUpdate(ctx context.Context, localIDs []int64, value bool) (int64, error) {
	if len(localIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.StorefrontMapping{}).
		Where("local_id IN ?", localIDs).
		Update("needs_update", value)
	return res.RowsAffected, res.Error
}

// SetSentStock records the stock value last pushed to the storefront.
func (r *Repository) SetSentStock(ctx context.Context, localID int64, stock int, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.StorefrontMapping{}).
		Where("local_id = ?", localID).
		Updates(map[string]any{"sent_stock": stock, "updated_at": now}).Error
}
