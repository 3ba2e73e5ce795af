package enums

// StockAuditStatus is the outcome recorded on a stock audit entry.
type StockAuditStatus string

const (
	StockAuditStatusPending   StockAuditStatus = "pending"
	StockAuditStatusSucceeded StockAuditStatus = "succeeded"
	StockAuditStatusFailed    StockAuditStatus = "failed"
)

func (s StockAuditStatus) IsValid() bool {
	switch s {
	case StockAuditStatusPending, StockAuditStatusSucceeded, StockAuditStatusFailed:
		return true
	}
	return false
}
