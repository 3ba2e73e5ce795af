// Package catalog reads the local product catalog and maintains the
// storefront "published" marker on its items.
package catalog

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/catalogsync/internal/divergence"
	"github.com/angelmondragon/catalogsync/pkg/db"
	"github.com/angelmondragon/catalogsync/pkg/db/models"
	"github.com/angelmondragon/catalogsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/catalogsync/pkg/errors"
)

// Child is a grade child joined with its catalog row.
type Child struct {
	Variant models.ProductVariant
	Product models.Product
}

// Repository wires catalog persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{db: conn}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Get loads a local item.
func (r *Repository) Get(ctx context.Context, localID int64) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "local_id = ?", localID).Error; err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "local item %d not found", localID)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load local item")
	}
	return &product, nil
}

// FindByGTIN returns the lowest local id carrying gtin.
func (r *Repository) FindByGTIN(ctx context.Context, gtin string) (*models.Product, error) {
	gtin = strings.TrimSpace(gtin)
	if gtin == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gtin is required")
	}
	var product models.Product
	err := r.db.WithContext(ctx).
		Where("gtin = ?", gtin).
		Order("local_id ASC").
		First(&product).Error
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "no local item with gtin %s", gtin)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find local item by gtin")
	}
	return &product, nil
}

// ListVariants returns the grade rows of a parent in display order.
func (r *Repository) ListVariants(ctx context.Context, parentLocalID int64) ([]models.ProductVariant, error) {
	var rows []models.ProductVariant
	if err := r.db.WithContext(ctx).
		Where("parent_local_id = ?", parentLocalID).
		Order("position ASC, child_local_id ASC").
		Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list grade children")
	}
	return rows, nil
}

// ListChildren returns the grade rows of a parent joined with each child item.
// Rows whose child item no longer exists are skipped.
func (r *Repository) ListChildren(ctx context.Context, parentLocalID int64) ([]Child, error) {
	variants, err := r.ListVariants(ctx, parentLocalID)
	if err != nil || len(variants) == 0 {
		return nil, err
	}

	ids := make([]int64, 0, len(variants))
	for _, v := range variants {
		ids = append(ids, v.ChildLocalID)
	}
	var products []models.Product
	if err := r.db.WithContext(ctx).Where("local_id IN ?", ids).Find(&products).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load grade children")
	}
	byID := make(map[int64]models.Product, len(products))
	for _, p := range products {
		byID[p.LocalID] = p
	}

	children := make([]Child, 0, len(variants))
	for _, v := range variants {
		p, ok := byID[v.ChildLocalID]
		if !ok {
			continue
		}
		children = append(children, Child{Variant: v, Product: p})
	}
	return children, nil
}

// Snapshot returns the current synchronizable values of a local item.
func (r *Repository) Snapshot(ctx context.Context, localID int64) (divergence.Snapshot, error) {
	product, err := r.Get(ctx, localID)
	if err != nil {
		return divergence.Snapshot{}, err
	}
	return divergence.FromProduct(product), nil
}

// SetTag sets or clears (nil) the published marker.
func (r *Repository) SetTag(ctx context.Context, localID int64, tag *enums.PublishedTag) error {
	return r.SetTags(ctx, []int64{localID}, tag)
}

// SetTags applies the same marker to several items.
func (r *Repository) SetTags(ctx context.Context, localIDs []int64, tag *enums.PublishedTag) error {
	if len(localIDs) == 0 {
		return nil
	}
	if tag != nil && !tag.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid published tag %q", *tag)
	}
	var value any
	if tag != nil {
		value = string(*tag)
	}
	if err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("local_id IN ?", localIDs).
		Update("published_tag", value).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update published tag")
	}
	return nil
}

// Delete removes a local item together with its grade rows and storefront
// mapping. The mapping foreign key cascades in Postgres; it is removed
// explicitly so engines without enforced foreign keys behave the same.
func (r *Repository) Delete(ctx context.Context, localID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("local_id = ?", localID).Delete(&models.StorefrontMapping{}).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete storefront mapping")
		}
		if err := tx.Where("parent_local_id = ? OR child_local_id = ?", localID, localID).
			Delete(&models.ProductVariant{}).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete grade rows")
		}
		res := tx.Where("local_id = ?", localID).Delete(&models.Product{})
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "delete local item")
		}
		if res.RowsAffected == 0 {
			return pkgerrors.Newf(pkgerrors.CodeNotFound, "local item %d not found", localID)
		}
		return nil
	})
}
