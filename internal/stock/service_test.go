package stock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/catalogsync/internal/catalog"
	"github.com/angelmondragon/catalogsync/pkg/db"
	"github.com/angelmondragon/catalogsync/pkg/db/dbtest"
	"github.com/angelmondragon/catalogsync/pkg/db/models"
	"github.com/angelmondragon/catalogsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/catalogsync/pkg/errors"
)

type stubSales struct {
	lines  []models.SaleLine
	cutoff time.Time
}

func (s *stubSales) ListSince(_ context.Context, cutoff time.Time) ([]models.SaleLine, error) {
	s.cutoff = cutoff
	return s.lines, nil
}

type applyCall struct {
	localID int64
	delta   int
	barcode string
}

// stubApplier keeps one remote stock level and clamps at zero like the
// storefront reconciler.
type stubApplier struct {
	calls []applyCall
	stock int
	err   error
}

func (s *stubApplier) ApplyDelta(_ context.Context, localID int64, delta int, barcode string) (*DeltaResult, error) {
	s.calls = append(s.calls, applyCall{localID: localID, delta: delta, barcode: barcode})
	if s.err != nil {
		return nil, s.err
	}
	from := s.stock
	s.stock = max(0, from+delta)
	return &DeltaResult{
		LocalID:         localID,
		RemoteProductID: 10,
		RemoteVariantID: 100,
		Tag:             enums.PublishedTagNormal,
		StockFrom:       from,
		StockTo:         s.stock,
	}, nil
}

// failingFinalize fails the first n Finalize calls after the claim committed.
type failingFinalize struct {
	Repository
	n int
}

func (f *failingFinalize) Finalize(ctx context.Context, entry *models.StockAuditEntry) error {
	if f.n > 0 {
		f.n--
		return errors.New("connection reset")
	}
	return f.Repository.Finalize(ctx, entry)
}

type syncFixture struct {
	conn    *gorm.DB
	sales   *stubSales
	applier *stubApplier
	svc     *Service
}

var fixedNow = time.Date(2026, 3, 5, 15, 0, 0, 0, time.UTC)

func newSyncFixture(t *testing.T) syncFixture {
	t.Helper()
	conn := dbtest.Open(t)
	products := []models.Product{
		{LocalID: 1, Description: "mapped", GTIN: str("789001")},
		{LocalID: 2, Description: "unmapped", GTIN: str("789002")},
		{LocalID: 3, Description: "parent", GTIN: str("789003")},
	}
	require.NoError(t, conn.Create(&products).Error)

	mappings := &stubMappings{byID: map[int64]*models.StorefrontMapping{
		1: {LocalID: 1, Kind: enums.MappingKindNormal, RemoteProductID: i64(10), RemoteVariantID: i64(100)},
		3: {LocalID: 3, Kind: enums.MappingKindParent, RemoteProductID: i64(30)},
	}}
	sales := &stubSales{}
	applier := &stubApplier{stock: 10}
	svc, err := NewService(ServiceParams{
		Transactions: db.FromGorm(conn),
		Ledger:       NewRepository(conn),
		Sales:        sales,
		Catalog:      catalog.NewRepository(conn),
		Mappings:     mappings,
		Applier:      applier,
		Platform:     "NUVEMSHOP",
		LookbackDays: 3,
	})
	require.NoError(t, err)
	svc.now = func() time.Time { return fixedNow }
	return syncFixture{conn: conn, sales: sales, applier: applier, svc: svc}
}

func (f syncFixture) entries(t *testing.T) []models.StockAuditEntry {
	t.Helper()
	var rows []models.StockAuditEntry
	require.NoError(t, f.conn.Order("id ASC").Find(&rows).Error)
	return rows
}

func saleLine(lineID, gtin string, qty int) models.SaleLine {
	return models.SaleLine{SaleID: "S-" + lineID, LineID: lineID, GTIN: gtin, Quantity: qty, OccurredAt: fixedNow.Add(-time.Hour)}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))
}

func TestRunAppliesEachMovementOnce(t *testing.T) {
	f := newSyncFixture(t)
	f.sales.lines = []models.SaleLine{saleLine("L1", "789001", 2)}

	first, err := f.svc.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, first.OK)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), f.sales.cutoff)

	second, err := f.svc.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, second.OK)
	assert.Equal(t, 1, second.Duplicate)

	require.Len(t, f.applier.calls, 1, "at most one remote mutation")
	assert.Equal(t, applyCall{localID: 1, delta: -2, barcode: "789001"}, f.applier.calls[0])

	rows := f.entries(t)
	require.Len(t, rows, 1, "exactly one audit entry")
	assert.Equal(t, enums.StockAuditStatusSucceeded, rows[0].Status)
	assert.Equal(t, enums.MovementKindSale, rows[0].MovementKind)
	assert.Equal(t, -2, rows[0].QuantityDelta)
	require.NotNil(t, rows[0].StockTo)
	assert.Equal(t, 8, *rows[0].StockTo)
	assert.NotNil(t, rows[0].ProcessedAt)
}

func TestRunCancelledLineReversesPushedSale(t *testing.T) {
	f := newSyncFixture(t)
	line := saleLine("L1", "789001", 2)
	f.sales.lines = []models.SaleLine{line}
	_, err := f.svc.Run(context.Background(), 0)
	require.NoError(t, err)

	line.Canceled = true
	f.sales.lines = []models.SaleLine{line}
	summary, err := f.svc.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.OK)
	assert.Zero(t, summary.Duplicate)

	require.Len(t, f.applier.calls, 2)
	assert.Equal(t, 2, f.applier.calls[1].delta)
	assert.Equal(t, 10, f.applier.stock)

	rows := f.entries(t)
	require.Len(t, rows, 2)
	assert.Equal(t, enums.MovementKindCancel, rows[1].MovementKind)
	assert.Equal(t, 2, rows[1].QuantityDelta)

	again, err := f.svc.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Duplicate)
	assert.Len(t, f.applier.calls, 2)
}

func TestRunCancelledBeforePushTouchesNothing(t *testing.T) {
	f := newSyncFixture(t)
	f.applier.stock = 1
	line := saleLine("L1", "789001", 3)
	line.Canceled = true
	f.sales.lines = []models.SaleLine{line}

	summary, err := f.svc.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	require.Len(t, summary.Items, 1)
	assert.Equal(t, enums.MovementKindCancel, summary.Items[0].Movement)
	assert.Equal(t, "cancelled before the sale was pushed", summary.Items[0].Reason)
	assert.Empty(t, f.applier.calls)
	assert.Empty(t, f.entries(t))
	assert.Equal(t, 1, f.applier.stock)
}

func TestRunCancelAfterClampedSaleRestoresOnlyRemovedUnits(t *testing.T) {
	f := newSyncFixture(t)
	f.applier.stock = 1
	line := saleLine("L1", "789001", 3)
	f.sales.lines = []models.SaleLine{line}
	_, err := f.svc.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, f.applier.stock)

	line.Canceled = true
	f.sales.lines = []models.SaleLine{line}
	_, err = f.svc.Run(context.Background(), 0)
	require.NoError(t, err)

	require.Len(t, f.applier.calls, 2)
	assert.Equal(t, 1, f.applier.calls[1].delta)
	assert.Equal(t, 1, f.applier.stock, "sale and cancel net to the starting stock")
}

func TestRunCancelSkipsFailedSale(t *testing.T) {
	f := newSyncFixture(t)
	f.applier.err = errors.New("remote down")
	line := saleLine("L1", "789001", 2)
	f.sales.lines = []models.SaleLine{line}
	_, err := f.svc.Run(context.Background(), 0)
	require.NoError(t, err)

	f.applier.err = nil
	line.Canceled = true
	f.sales.lines = []models.SaleLine{line}
	summary, err := f.svc.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, "sale movement is failed", summary.Items[0].Reason)
	assert.Len(t, f.applier.calls, 1)
}

func TestRunFinalizeFailureNeverReappliesDelta(t *testing.T) {
	f := newSyncFixture(t)
	f.svc.ledger = &failingFinalize{Repository: f.svc.ledger, n: 1}
	f.sales.lines = []models.SaleLine{saleLine("L1", "789001", 2)}

	first, err := f.svc.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, first.OK)

	rows := f.entries(t)
	require.Len(t, rows, 1, "the claim survives the failed finalize")
	assert.Equal(t, enums.StockAuditStatusPending, rows[0].Status)

	second, err := f.svc.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Duplicate)
	assert.Len(t, f.applier.calls, 1, "one remote mutation per sale line")
	assert.Len(t, f.entries(t), 1)
}

func TestRunSkipsUnknownUnmappedAndParents(t *testing.T) {
	f := newSyncFixture(t)
	f.sales.lines = []models.SaleLine{
		saleLine("L1", "000000", 1),
		saleLine("L2", "789002", 1),
		saleLine("L3", "789003", 1),
		saleLine("L4", "789001", 0),
	}

	summary, err := f.svc.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Skipped)
	assert.Empty(t, f.applier.calls)
	assert.Empty(t, f.entries(t))

	reasons := map[string]string{}
	for _, item := range summary.Items {
		reasons[item.SaleLineID] = item.Reason
	}
	assert.Equal(t, "unknown gtin", reasons["L1"])
	assert.Equal(t, "not mapped", reasons["L2"])
	assert.Equal(t, "parent items carry no stock", reasons["L3"])
}

func TestRunRecordsFailuresWithoutRetrying(t *testing.T) {
	f := newSyncFixture(t)
	f.applier.err = pkgerrors.New(pkgerrors.CodeTargetNotFound, "no storefront variant matches the item")
	f.sales.lines = []models.SaleLine{saleLine("L1", "789001", 1)}

	summary, err := f.svc.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	rows := f.entries(t)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.StockAuditStatusFailed, rows[0].Status)
	require.NotNil(t, rows[0].Error)
	assert.Contains(t, *rows[0].Error, "no storefront variant")

	f.applier.err = nil
	summary, err = f.svc.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Duplicate)
	assert.Len(t, f.applier.calls, 1)
}

func TestRunRejectsExcessiveLookback(t *testing.T) {
	f := newSyncFixture(t)
	_, err := f.svc.Run(context.Background(), 365)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestApplyManual(t *testing.T) {
	f := newSyncFixture(t)

	_, err := f.svc.ApplyManual(context.Background(), ManualInput{LocalID: 1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	res, err := f.svc.ApplyManual(context.Background(), ManualInput{LocalID: 1, Delta: 4, Barcode: "789001"})
	require.NoError(t, err)
	assert.Equal(t, 14, res.StockTo)
	assert.Empty(t, f.entries(t), "manual adjustments bypass the ledger")

	f.applier.err = errors.New("boom")
	_, err = f.svc.ApplyManual(context.Background(), ManualInput{LocalID: 1, Delta: 1})
	assert.Error(t, err)
}

func TestListEntriesFilters(t *testing.T) {
	f := newSyncFixture(t)
	f.sales.lines = []models.SaleLine{saleLine("L1", "789001", 1), saleLine("L2", "789001", 1)}
	_, err := f.svc.Run(context.Background(), 0)
	require.NoError(t, err)

	entries, next, err := f.svc.ListEntries(context.Background(), Filter{Status: enums.StockAuditStatusSucceeded, Platform: "NUVEMSHOP", Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "L2", entries[0].SaleLineID)
	require.NotNil(t, next)

	entries, next, err = f.svc.ListEntries(context.Background(), Filter{Status: enums.StockAuditStatusSucceeded, Limit: 1, Cursor: next})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "L1", entries[0].SaleLineID)
	assert.Nil(t, next)
}
