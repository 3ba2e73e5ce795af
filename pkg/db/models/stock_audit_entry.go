package models

import (
	"time"

	"github.com/angelmondragon/catalogsync/pkg/enums"
)

// StockAuditKeyIndex makes (platform, sale_line_id, movement_kind) the idempotency key.
const StockAuditKeyIndex = "ux_stock_audit_entries_key"

// StockAuditEntry records the stock effect of one sale line movement on the storefront.
type StockAuditEntry struct {
	ID              int64                  `gorm:"column:id;primaryKey;autoIncrement"`
	Platform        string                 `gorm:"column:platform;type:varchar(30);not null;uniqueIndex:ux_stock_audit_entries_key,priority:1"`
	SaleLineID      string                 `gorm:"column:sale_line_id;type:varchar(64);not null;uniqueIndex:ux_stock_audit_entries_key,priority:2"`
	MovementKind    enums.MovementKind     `gorm:"column:movement_kind;type:varchar(10);not null;uniqueIndex:ux_stock_audit_entries_key,priority:3"`
	SaleID          string                 `gorm:"column:sale_id;type:varchar(64);not null"`
	LocalID         int64                  `gorm:"column:local_id;not null;index:idx_stock_audit_entries_local"`
	QuantityDelta   int                    `gorm:"column:quantity_delta;not null"`
	OccurredAt      time.Time              `gorm:"column:occurred_at;not null"`
	ProcessedAt     *time.Time             `gorm:"column:processed_at"`
	RemoteProductID *int64                 `gorm:"column:remote_product_id"`
	RemoteVariantID *int64                 `gorm:"column:remote_variant_id"`
	SKU             *string                `gorm:"column:sku;type:varchar(60)"`
	PublishedTag    *enums.PublishedTag    `gorm:"column:published_tag;type:varchar(10)"`
	Status          enums.StockAuditStatus `gorm:"column:status;type:varchar(12);not null"`
	Error           *string                `gorm:"column:error"`
	StockFrom       *int                   `gorm:"column:stock_from"`
	StockTo         *int                   `gorm:"column:stock_to"`
	CreatedAt       time.Time              `gorm:"column:created_at;autoCreateTime"`
}

func (StockAuditEntry) TableName() string { return "stock_audit_entries" }
