package ledger

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/catalogsync/pkg/db/models"
	"github.com/angelmondragon/catalogsync/pkg/enums"
	"github.com/angelmondragon/catalogsync/pkg/pagination"
)

// Filter narrows an event listing. Zero values are ignored.
type Filter struct {
	Event           enums.StorefrontEventName
	RemoteProductID int64
	LocalID         int64
	Limit           int
	Cursor          *pagination.Cursor
}

// Repository manages persistence for storefront audit events.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, event *models.StorefrontEvent) error
	List(ctx context.Context, filter Filter) ([]models.StorefrontEvent, *pagination.Cursor, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an audit repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, event *models.StorefrontEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) List(ctx context.Context, filter Filter) ([]models.StorefrontEvent, *pagination.Cursor, error) {
	q := r.db.WithContext(ctx).Model(&models.StorefrontEvent{})
	if filter.Event != "" {
		q = q.Where("event = ?", filter.Event)
	}
	if filter.RemoteProductID > 0 {
		q = q.Where("remote_product_id = ?", filter.RemoteProductID)
	}
	if filter.LocalID > 0 {
		q = q.Where("local_id = ?", filter.LocalID)
	}
	if filter.Cursor != nil {
		q = q.Where("id < ?", filter.Cursor.ID)
	}
	limit := pagination.NormalizeLimit(filter.Limit)

	var events []models.StorefrontEvent
	if err := q.Order("id DESC").Limit(pagination.LimitWithBuffer(limit)).Find(&events).Error; err != nil {
		return nil, nil, err
	}
	events, next := pagination.Trim(events, limit, func(e models.StorefrontEvent) int64 { return e.ID })
	return events, next, nil
}
