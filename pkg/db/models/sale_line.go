package models

import "time"

// SaleLine is one item of a local sale. OccurredAt is validated on ingestion.
type SaleLine struct {
	ID         int64      `gorm:"column:id;primaryKey;autoIncrement"`
	SaleID     string     `gorm:"column:sale_id;type:varchar(64);not null;index:idx_sale_lines_sale"`
	LineID     string     `gorm:"column:line_id;type:varchar(64);not null;uniqueIndex:ux_sale_lines_line"`
	GTIN       string     `gorm:"column:gtin;type:varchar(60);not null"`
	Quantity   int        `gorm:"column:quantity;not null"`
	OccurredAt time.Time  `gorm:"column:occurred_at;not null;index:idx_sale_lines_occurred"`
	Canceled   bool       `gorm:"column:canceled;not null"`
	CanceledAt *time.Time `gorm:"column:canceled_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (SaleLine) TableName() string { return "sale_lines" }
