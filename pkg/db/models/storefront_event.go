package models

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/catalogsync/pkg/enums"
)

// StorefrontEvent is an append-only audit row for webhook deliveries and local storefront changes.
type StorefrontEvent struct {
	ID              int64                     `gorm:"column:id;primaryKey;autoIncrement"`
	Event           enums.StorefrontEventName `gorm:"column:event;type:varchar(80);not null;index:idx_storefront_events_event"`
	RemoteProductID *int64                    `gorm:"column:remote_product_id;index:idx_storefront_events_product"`
	RemoteVariantID *int64                    `gorm:"column:remote_variant_id"`
	LocalID         *int64                    `gorm:"column:local_id"`
	SignatureValid  bool                      `gorm:"column:signature_valid;not null"`
	Payload         json.RawMessage           `gorm:"column:payload;type:jsonb"`
	ReceivedAt      time.Time                 `gorm:"column:received_at;autoCreateTime"`
}

func (StorefrontEvent) TableName() string { return "storefront_events" }
