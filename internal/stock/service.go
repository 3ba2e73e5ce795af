package stock

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/catalogsync/pkg/db"
	"github.com/angelmondragon/catalogsync/pkg/db/models"
	"github.com/angelmondragon/catalogsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/catalogsync/pkg/errors"
	"github.com/angelmondragon/catalogsync/pkg/logger"
	"github.com/angelmondragon/catalogsync/pkg/metrics"
	"github.com/angelmondragon/catalogsync/pkg/pagination"
)

// Outcomes of one ledger movement.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
	OutcomeDuplicate = "duplicate"
	OutcomeManual    = "manual"
)

const (
	defaultLookbackDays = 1
	maxLookbackDays     = 90
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type saleSource interface {
	ListSince(ctx context.Context, cutoff time.Time) ([]models.SaleLine, error)
}

type gtinLookup interface {
	FindByGTIN(ctx context.Context, gtin string) (*models.Product, error)
}

type mappingReader interface {
	Get(ctx context.Context, localID int64) (*models.StorefrontMapping, error)
}

type deltaApplier interface {
	ApplyDelta(ctx context.Context, localID int64, delta int, barcode string) (*DeltaResult, error)
}

type ServiceParams struct {
	Transactions txRunner
	Ledger       Repository
	Sales        saleSource
	Catalog      gtinLookup
	Mappings     mappingReader
	Applier      deltaApplier
	Platform     string
	LookbackDays int
	Metrics      *metrics.SyncMetrics
	Logger       *logger.Logger
}

// Service drives sale-based stock sync and manual adjustments.
type Service struct {
	tx           txRunner
	ledger       Repository
	sales        saleSource
	catalog      gtinLookup
	mappings     mappingReader
	applier      deltaApplier
	platform     string
	lookbackDays int
	metrics      *metrics.SyncMetrics
	logg         *logger.Logger
	now          func() time.Time
}

// ItemOutcome reports what happened to one sale line movement.
type ItemOutcome struct {
	SaleLineID string             `json:"sale_line_id"`
	LocalID    int64              `json:"local_id,omitempty"`
	Movement   enums.MovementKind `json:"movement"`
	Delta      int                `json:"delta"`
	Outcome    string             `json:"outcome"`
	Reason     string             `json:"reason,omitempty"`
	StockFrom  *int               `json:"stock_from,omitempty"`
	StockTo    *int               `json:"stock_to,omitempty"`
}

// SyncSummary counts a Run.
type SyncSummary struct {
	Since     time.Time     `json:"since"`
	OK        int           `json:"ok"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Duplicate int           `json:"already_processed"`
	Items     []ItemOutcome `json:"items"`
}

func (s *SyncSummary) add(item ItemOutcome) {
	switch item.Outcome {
	case OutcomeSucceeded:
		s.OK++
	case OutcomeFailed:
		s.Failed++
	case OutcomeDuplicate:
		s.Duplicate++
	default:
		s.Skipped++
	}
	s.Items = append(s.Items, item)
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Transactions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stock ledger required")
	}
	if params.Sales == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "sale source required")
	}
	if params.Catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "catalog required")
	}
	if params.Mappings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "mapping service required")
	}
	if params.Applier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stock reconciler required")
	}
	platform := strings.TrimSpace(params.Platform)
	if platform == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "platform name required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	lookback := params.LookbackDays
	if lookback <= 0 {
		lookback = defaultLookbackDays
	}
	return &Service{
		tx:           params.Transactions,
		ledger:       params.Ledger,
		sales:        params.Sales,
		catalog:      params.Catalog,
		mappings:     params.Mappings,
		applier:      params.Applier,
		platform:     platform,
		lookbackDays: lookback,
		metrics:      params.Metrics,
		logg:         logg,
		now:          time.Now,
	}, nil
}

// Run pushes the stock effect of every sale line since the start of the day
// lookbackDays ago. Zero uses the configured default.
func (s *Service) Run(ctx context.Context, lookbackDays int) (*SyncSummary, error) {
	if lookbackDays <= 0 {
		lookbackDays = s.lookbackDays
	}
	if lookbackDays > maxLookbackDays {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "lookback must be at most %d days", maxLookbackDays)
	}
	now := s.now().UTC()
	since := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -lookbackDays)

	lines, err := s.sales.ListSince(ctx, since)
	if err != nil {
		return nil, err
	}

	summary := &SyncSummary{Since: since, Items: []ItemOutcome{}}
	for _, line := range lines {
		for _, item := range s.syncLine(ctx, line) {
			s.metrics.IncStockDelta(item.Outcome)
			summary.add(item)
		}
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"ok":        summary.OK,
		"failed":    summary.Failed,
		"skipped":   summary.Skipped,
		"duplicate": summary.Duplicate,
		"lines":     len(lines),
	}), "stock sync finished")
	return summary, nil
}

func (s *Service) syncLine(ctx context.Context, line models.SaleLine) []ItemOutcome {
	kind := enums.MovementKindSale
	if line.Canceled {
		kind = enums.MovementKindCancel
	}
	skipAll := func(localID int64, reason string) []ItemOutcome {
		return []ItemOutcome{{
			SaleLineID: line.LineID,
			LocalID:    localID,
			Movement:   kind,
			Delta:      kind.Delta(line.Quantity),
			Outcome:    OutcomeSkipped,
			Reason:     reason,
		}}
	}

	if line.Quantity <= 0 {
		return skipAll(0, "non-positive quantity")
	}
	product, err := s.catalog.FindByGTIN(ctx, line.GTIN)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) || pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			return skipAll(0, "unknown gtin")
		}
		s.logg.Error(s.logg.WithField(ctx, "sale_line_id", line.LineID), "gtin lookup failed", err)
		return skipAll(0, "gtin lookup failed")
	}
	localID := product.LocalID

	m, err := s.mappings.Get(ctx, localID)
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		return skipAll(localID, "not mapped")
	case err != nil:
		s.logg.Error(s.logg.WithLocalID(ctx, localID), "mapping lookup failed", err)
		return skipAll(localID, "mapping lookup failed")
	case m.RemoteProductID == nil:
		return skipAll(localID, "not linked")
	case m.Kind == enums.MappingKindParent:
		return skipAll(localID, "parent items carry no stock")
	}

	if !line.Canceled {
		return []ItemOutcome{s.applyMovement(ctx, line, localID, kind, kind.Delta(line.Quantity))}
	}
	delta, reason, err := s.reversal(ctx, line)
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "sale_line_id", line.LineID), "stock ledger lookup failed", err)
		return skipAll(localID, "stock ledger lookup failed")
	}
	if reason != "" {
		return skipAll(localID, reason)
	}
	return []ItemOutcome{s.applyMovement(ctx, line, localID, kind, delta)}
}

// reversal sizes the cancel movement of a line. Only a sale that reached the
// storefront is reversed, and only by the units it actually removed, so a
// sale clamped at zero is not turned into extra stock.
func (s *Service) reversal(ctx context.Context, line models.SaleLine) (int, string, error) {
	sale, err := s.ledger.FindMovement(ctx, s.platform, line.LineID, enums.MovementKindSale)
	if err != nil {
		return 0, "", err
	}
	switch {
	case sale == nil:
		return 0, "cancelled before the sale was pushed", nil
	case sale.Status != enums.StockAuditStatusSucceeded:
		return 0, "sale movement is " + string(sale.Status), nil
	case sale.StockFrom == nil || sale.StockTo == nil:
		return enums.MovementKindCancel.Delta(line.Quantity), "", nil
	}
	removed := *sale.StockFrom - *sale.StockTo
	if removed <= 0 {
		return 0, "sale removed no remote stock", nil
	}
	return removed, "", nil
}

// applyMovement commits a pending claim on the ledger key before touching the
// storefront, so a key is pushed at most once even when finalizing fails. A
// pending entry left behind needs an operator; it is never retried.
func (s *Service) applyMovement(ctx context.Context, line models.SaleLine, localID int64, kind enums.MovementKind, delta int) ItemOutcome {
	item := ItemOutcome{
		SaleLineID: line.LineID,
		LocalID:    localID,
		Movement:   kind,
		Delta:      delta,
	}
	ctx = s.logg.WithFields(s.logg.WithLocalID(ctx, localID), map[string]any{
		"sale_line_id": line.LineID,
		"movement":     string(kind),
	})

	entry := &models.StockAuditEntry{
		Platform:      s.platform,
		SaleLineID:    line.LineID,
		MovementKind:  kind,
		SaleID:        line.SaleID,
		LocalID:       localID,
		QuantityDelta: item.Delta,
		OccurredAt:    line.OccurredAt,
		Status:        enums.StockAuditStatusPending,
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.ledger.WithTx(tx).Claim(ctx, entry)
	})
	switch {
	case db.IsUniqueViolation(err, models.StockAuditKeyIndex):
		item.Outcome = OutcomeDuplicate
		item.Reason = "already processed"
		return item
	case err != nil:
		s.logg.Error(ctx, "stock ledger claim failed", err)
		item.Outcome = OutcomeFailed
		item.Reason = err.Error()
		return item
	}

	res, applyErr := s.applier.ApplyDelta(ctx, localID, item.Delta, line.GTIN)
	processed := s.now().UTC()
	entry.ProcessedAt = &processed
	if applyErr != nil {
		msg := applyErr.Error()
		entry.Status = enums.StockAuditStatusFailed
		entry.Error = &msg
		item.Outcome = OutcomeFailed
		item.Reason = msg
		s.logg.Warn(s.logg.WithField(ctx, "error", msg), "stock delta failed")
	} else {
		entry.Status = enums.StockAuditStatusSucceeded
		entry.RemoteProductID = &res.RemoteProductID
		entry.RemoteVariantID = &res.RemoteVariantID
		entry.SKU = res.SKU
		tag := res.Tag
		entry.PublishedTag = &tag
		entry.StockFrom = &res.StockFrom
		entry.StockTo = &res.StockTo
		item.Outcome = OutcomeSucceeded
		item.StockFrom = &res.StockFrom
		item.StockTo = &res.StockTo
	}

	if err := s.ledger.Finalize(ctx, entry); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "stock_audit_id", entry.ID), "stock ledger finalize failed, entry left pending", err)
	}
	return item
}

// ManualInput is an operator adjustment.
type ManualInput struct {
	LocalID int64  `json:"local_id" validate:"required,gt=0"`
	Delta   int    `json:"delta"`
	Barcode string `json:"barcode,omitempty"`
}

// ApplyManual applies an operator delta directly. No ledger entry is written.
func (s *Service) ApplyManual(ctx context.Context, in ManualInput) (*DeltaResult, error) {
	if in.LocalID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "local_id is required")
	}
	if in.Delta == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delta must be non-zero")
	}
	res, err := s.applier.ApplyDelta(ctx, in.LocalID, in.Delta, in.Barcode)
	if err != nil {
		s.metrics.IncStockDelta(OutcomeFailed)
		return nil, err
	}
	s.metrics.IncStockDelta(OutcomeManual)
	s.logg.Info(s.logg.WithFields(s.logg.WithLocalID(ctx, in.LocalID), map[string]any{
		"delta":      in.Delta,
		"stock_from": res.StockFrom,
		"stock_to":   res.StockTo,
	}), "manual stock adjustment applied")
	return res, nil
}

// ListEntries exposes the ledger for audit screens.
func (s *Service) ListEntries(ctx context.Context, filter Filter) ([]models.StockAuditEntry, *pagination.Cursor, error) {
	entries, next, err := s.ledger.List(ctx, filter)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list stock ledger")
	}
	return entries, next, nil
}
