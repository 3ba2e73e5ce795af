package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/catalogsync/pkg/enums"
)

// Product is a local catalog item. The local id is assigned by the ERP and never by this service.
type Product struct {
	LocalID             int64               `gorm:"column:local_id;primaryKey;autoIncrement:false"`
	Description         string              `gorm:"column:description;not null"`
	DetailedDescription *string             `gorm:"column:detailed_description"`
	GTIN                *string             `gorm:"column:gtin;index:idx_products_gtin"`
	Category            *string             `gorm:"column:category"`
	Group               *string             `gorm:"column:group_name"`
	Subgroup            *string             `gorm:"column:subgroup"`
	Price               decimal.NullDecimal `gorm:"column:price;type:numeric(14,2)"`
	Stock               *int                `gorm:"column:stock"`
	Height              decimal.NullDecimal `gorm:"column:height;type:numeric(14,3)"`
	Width               decimal.NullDecimal `gorm:"column:width;type:numeric(14,3)"`
	Length              decimal.NullDecimal `gorm:"column:length;type:numeric(14,3)"`
	Weight              decimal.NullDecimal `gorm:"column:weight;type:numeric(14,3)"`
	PublishedTag        *enums.PublishedTag `gorm:"column:published_tag;type:varchar(10)"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Product) TableName() string { return "products" }

// ProductVariant links a parent item to one of its grade children.
type ProductVariant struct {
	ID             int64   `gorm:"column:id;primaryKey;autoIncrement"`
	ParentLocalID  int64   `gorm:"column:parent_local_id;not null;uniqueIndex:ux_product_variants_pair,priority:1"`
	ChildLocalID   int64   `gorm:"column:child_local_id;not null;uniqueIndex:ux_product_variants_pair,priority:2"`
	Variation      *string `gorm:"column:variation"`
	Characteristic *string `gorm:"column:characteristic"`
	Position       int     `gorm:"column:position;not null"`
}

func (ProductVariant) TableName() string { return "product_variants" }
