package sales

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/catalogsync/pkg/db/models"
)

// Repository manages persistence for sale lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Upsert(ctx context.Context, line *models.SaleLine) error
	FindByLineID(ctx context.Context, lineID string) (*models.SaleLine, error)
	ListSince(ctx context.Context, cutoff time.Time) ([]models.SaleLine, error)
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

// Upsert inserts line, or updates only the cancellation fields when the line
// id is already known.
func (r *repository) Upsert(ctx context.Context, line *models.SaleLine) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "line_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"canceled", "canceled_at"}),
	}).Create(line).Error
}

func (r *repository) FindByLineID(ctx context.Context, lineID string) (*models.SaleLine, error) {
	var line models.SaleLine
	err := r.db.WithContext(ctx).Where("line_id = ?", lineID).Take(&line).Error
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// ListSince returns lines that occurred at or after cutoff, oldest first.
func (r *repository) ListSince(ctx context.Context, cutoff time.Time) ([]models.SaleLine, error) {
	var lines []models.SaleLine
	if err := r.db.WithContext(ctx).
		Where("occurred_at >= ?", cutoff).
		Order("occurred_at ASC").
		Order("id ASC").
		Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}
