package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/catalogsync/pkg/enums"
)

// RemotePairIndex guards (remote_product_id, remote_variant_id) for rows with a variant id.
const RemotePairIndex = "ux_storefront_mappings_remote_pair"

// StorefrontMapping tracks one local item against its storefront product/variant and
// carries the snapshot of the values last sent to the storefront.
type StorefrontMapping struct {
	LocalID         int64             `gorm:"column:local_id;primaryKey;autoIncrement:false"`
	Kind            enums.MappingKind `gorm:"column:kind;type:varchar(10);not null"`
	ParentLocalID   *int64            `gorm:"column:parent_local_id;index:idx_storefront_mappings_parent"`
	SKU             *string           `gorm:"column:sku;type:varchar(60)"`
	Barcode         *string           `gorm:"column:barcode;type:varchar(60)"`
	RemoteProductID *int64            `gorm:"column:remote_product_id;index:idx_storefront_mappings_product;uniqueIndex:ux_storefront_mappings_remote_pair,priority:1,where:remote_variant_id IS NOT NULL"`
	RemoteVariantID *int64            `gorm:"column:remote_variant_id;uniqueIndex:ux_storefront_mappings_remote_pair,priority:2,where:remote_variant_id IS NOT NULL"`
	LastStatus      *string           `gorm:"column:last_status;type:varchar(10)"`
	LastSyncAt      *time.Time        `gorm:"column:last_sync_at"`
	LastError       *string           `gorm:"column:last_error"`
	SyncAttempts    int               `gorm:"column:sync_attempts;not null"`

	Name         *string             `gorm:"column:name"`
	SentCategory *string             `gorm:"column:sent_category"`
	SentGroup    *string             `gorm:"column:sent_group"`
	SentSubgroup *string             `gorm:"column:sent_subgroup"`
	SentPrice    decimal.NullDecimal `gorm:"column:sent_price;type:numeric(14,2)"`
	SentStock    *int                `gorm:"column:sent_stock"`
	SentHeight   decimal.NullDecimal `gorm:"column:sent_height;type:numeric(14,3)"`
	SentWidth    decimal.NullDecimal `gorm:"column:sent_width;type:numeric(14,3)"`
	SentLength   decimal.NullDecimal `gorm:"column:sent_length;type:numeric(14,3)"`
	SentWeight   decimal.NullDecimal `gorm:"column:sent_weight;type:numeric(14,3)"`

	PayloadSnapshot json.RawMessage `gorm:"column:payload_snapshot;type:jsonb"`
	NeedsUpdate     bool            `gorm:"column:needs_update;not null"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (StorefrontMapping) TableName() string { return "storefront_mappings" }

// State derives the lifecycle state from the stored ids and error.
func (m *StorefrontMapping) State() enums.MappingState {
	if m == nil {
		return enums.MappingStateUnlinked
	}
	hasError := m.LastError != nil && *m.LastError != ""
	switch {
	case m.RemoteProductID == nil && hasError:
		return enums.MappingStateOrphanedProduct
	case m.RemoteProductID == nil:
		return enums.MappingStateUnlinked
	case m.Kind == enums.MappingKindVariant && m.RemoteVariantID == nil && hasError:
		return enums.MappingStateOrphanedVariant
	default:
		return enums.MappingStateLinked
	}
}
