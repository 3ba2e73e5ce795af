package reconcile

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/catalogsync/internal/catalog"
	"github.com/angelmondragon/catalogsync/internal/ledger"
	"github.com/angelmondragon/catalogsync/internal/mapping"
	"github.com/angelmondragon/catalogsync/pkg/db"
	"github.com/angelmondragon/catalogsync/pkg/db/dbtest"
	"github.com/angelmondragon/catalogsync/pkg/db/models"
	"github.com/angelmondragon/catalogsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/catalogsync/pkg/errors"
	"github.com/angelmondragon/catalogsync/pkg/logger"
	"github.com/angelmondragon/catalogsync/pkg/storefront"
)

func i64(v int64) *int64 { return &v }

type fakeRemote struct {
	products        map[int64][]int64 // product id -> variant ids
	listCalls       int
	deletedVariants [][2]int64
	deletedProducts []int64
}

func (f *fakeRemote) ListProducts(_ context.Context, page, perPage int) ([]storefront.Product, error) {
	f.listCalls++
	ids := make([]int64, 0, len(f.products))
	for id := range f.products {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	start := (page - 1) * perPage
	if start >= len(ids) {
		return nil, nil
	}
	end := start + perPage
	if end > len(ids) {
		end = len(ids)
	}
	out := make([]storefront.Product, 0, end-start)
	for _, id := range ids[start:end] {
		out = append(out, storefront.Product{ID: storefront.ID(id)})
	}
	return out, nil
}

func (f *fakeRemote) GetProduct(_ context.Context, productID int64) (*storefront.Product, error) {
	variants, ok := f.products[productID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeRemoteNotFound, "storefront resource not found")
	}
	p := &storefront.Product{ID: storefront.ID(productID)}
	for _, v := range variants {
		p.Variants = append(p.Variants, storefront.Variant{ID: storefront.ID(v), ProductID: storefront.ID(productID)})
	}
	return p, nil
}

func (f *fakeRemote) DeleteVariant(_ context.Context, productID, variantID int64) error {
	f.deletedVariants = append(f.deletedVariants, [2]int64{productID, variantID})
	variants, ok := f.products[productID]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeRemoteNotFound, "storefront resource not found")
	}
	kept := variants[:0]
	found := false
	for _, v := range variants {
		if v == variantID {
			found = true
			continue
		}
		kept = append(kept, v)
	}
	f.products[productID] = kept
	if !found {
		return pkgerrors.New(pkgerrors.CodeRemoteNotFound, "storefront resource not found")
	}
	return nil
}

func (f *fakeRemote) DeleteProduct(_ context.Context, productID int64) error {
	f.deletedProducts = append(f.deletedProducts, productID)
	delete(f.products, productID)
	return nil
}

type fixture struct {
	conn     *gorm.DB
	remote   *fakeRemote
	mappings *mapping.Service
	svc      *Service
}

func newFixture(t *testing.T, pageSize, maxPages int) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	mappings, err := mapping.NewService(db.FromGorm(conn), mapping.NewRepository(conn), catalog.NewRepository(conn), logger.Nop())
	require.NoError(t, err)
	audit, err := ledger.NewService(ledger.NewRepository(conn))
	require.NoError(t, err)
	remote := &fakeRemote{products: map[int64][]int64{}}
	svc, err := NewService(ServiceParams{
		Mappings: mappings,
		Remote:   remote,
		Audit:    audit,
		PageSize: pageSize,
		MaxPages: maxPages,
	})
	require.NoError(t, err)
	return fixture{conn: conn, remote: remote, mappings: mappings, svc: svc}
}

func (f fixture) link(t *testing.T, in mapping.LinkInput) {
	t.Helper()
	require.NoError(t, f.conn.Create(&models.Product{LocalID: in.LocalID, Description: "item"}).Error)
	_, err := f.mappings.Link(context.Background(), in)
	require.NoError(t, err)
}

// seedGrade links parent 1 and variants 2 and 3 to product 42 (variants 500, 501).
func (f fixture) seedGrade(t *testing.T) {
	t.Helper()
	f.link(t, mapping.LinkInput{LocalID: 1, Kind: enums.MappingKindParent, RemoteProductID: 42})
	f.link(t, mapping.LinkInput{LocalID: 2, Kind: enums.MappingKindVariant, ParentLocalID: i64(1), RemoteProductID: 42, RemoteVariantID: i64(500)})
	f.link(t, mapping.LinkInput{LocalID: 3, Kind: enums.MappingKindVariant, ParentLocalID: i64(1), RemoteProductID: 42, RemoteVariantID: i64(501)})
	f.remote.products[42] = []int64{500, 501}
}

func (f fixture) row(t *testing.T, localID int64) *models.StorefrontMapping {
	t.Helper()
	var m models.StorefrontMapping
	require.NoError(t, f.conn.First(&m, "local_id = ?", localID).Error)
	return &m
}

func (f fixture) events(t *testing.T) []models.StorefrontEvent {
	t.Helper()
	var rows []models.StorefrontEvent
	require.NoError(t, f.conn.Order("id ASC").Find(&rows).Error)
	return rows
}

func TestSyncStatusOrphansMissingProducts(t *testing.T) {
	f := newFixture(t, 2, 10)
	f.seedGrade(t)
	f.link(t, mapping.LinkInput{LocalID: 7, Kind: enums.MappingKindNormal, RemoteProductID: 70})
	f.link(t, mapping.LinkInput{LocalID: 8, Kind: enums.MappingKindNormal, RemoteProductID: 80})
	f.remote.products[80] = nil
	f.remote.products[90] = nil
	f.remote.products[91] = nil

	report, err := f.svc.SyncStatus(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.MappedProducts)
	assert.Equal(t, 4, report.RemoteProducts)
	assert.Equal(t, 3, report.Pages)
	assert.Equal(t, []MissingProduct{{RemoteProductID: 70, LocalIDs: []int64{7}}}, report.Missing)
	assert.Equal(t, 1, report.Orphaned)

	orphan := f.row(t, 7)
	assert.Nil(t, orphan.RemoteProductID)
	assert.Equal(t, enums.MappingStateOrphanedProduct, orphan.State())
	assert.NotNil(t, f.row(t, 8).RemoteProductID)
	assert.NotNil(t, f.row(t, 2).RemoteVariantID)

	var product models.Product
	require.NoError(t, f.conn.First(&product, "local_id = ?", 7).Error)
	assert.Nil(t, product.PublishedTag)
}

func TestSyncStatusTruncatedListingMarksNothing(t *testing.T) {
	f := newFixture(t, 1, 2)
	f.link(t, mapping.LinkInput{LocalID: 7, Kind: enums.MappingKindNormal, RemoteProductID: 70})
	f.remote.products[80] = nil
	f.remote.products[81] = nil
	f.remote.products[82] = nil

	report, err := f.svc.SyncStatus(context.Background())
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, 2, f.remote.listCalls)
	assert.NotNil(t, f.row(t, 7).RemoteProductID)
}

func TestReconcileVariantsOrphansMissingVariant(t *testing.T) {
	f := newFixture(t, 0, 0)
	f.seedGrade(t)
	f.remote.products[42] = []int64{500}

	report, err := f.svc.ReconcileVariants(context.Background(), 42)
	require.NoError(t, err)
	assert.False(t, report.ProductMissing)
	assert.Equal(t, 1, report.RemoteVariants)
	assert.Equal(t, []int64{3}, report.OrphanedIDs)

	orphan := f.row(t, 3)
	require.NotNil(t, orphan.RemoteProductID)
	assert.Equal(t, int64(42), *orphan.RemoteProductID)
	assert.Nil(t, orphan.RemoteVariantID)
	assert.Equal(t, enums.MappingStateOrphanedVariant, orphan.State())
	assert.Equal(t, enums.MappingStateLinked, f.row(t, 2).State())
}

func TestReconcileVariantsMissingProductOrphansAll(t *testing.T) {
	f := newFixture(t, 0, 0)
	f.seedGrade(t)
	delete(f.remote.products, 42)

	report, err := f.svc.ReconcileVariants(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, report.ProductMissing)
	assert.Equal(t, []int64{1, 2, 3}, report.OrphanedIDs)
	for _, id := range []int64{1, 2, 3} {
		assert.Equal(t, enums.MappingStateOrphanedProduct, f.row(t, id).State())
	}
}

func TestRemoveVariantSignalsEmptyParent(t *testing.T) {
	f := newFixture(t, 0, 0)
	f.seedGrade(t)
	ctx := context.Background()

	first, err := f.svc.RemoveVariant(ctx, RemoveVariantInput{LocalID: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, first.RemainingVariants)
	assert.False(t, first.ParentEmpty)

	second, err := f.svc.RemoveVariant(ctx, RemoveVariantInput{LocalID: 3})
	require.NoError(t, err)
	assert.Zero(t, second.RemainingVariants)
	assert.True(t, second.ParentEmpty)
	assert.False(t, second.ParentDeleted)
	assert.Empty(t, f.remote.deletedProducts)

	var n int64
	require.NoError(t, f.conn.Model(&models.StorefrontMapping{}).Count(&n).Error)
	assert.Equal(t, int64(1), n, "only the parent mapping remains")

	rows := f.events(t)
	require.Len(t, rows, 2)
	assert.Equal(t, enums.EventLocalVariantDeleted, rows[1].Event)
	assert.JSONEq(t, `{"parent_empty":true,"parent_deleted":false}`, string(rows[1].Payload))
}

func TestRemoveVariantForceDeletesParent(t *testing.T) {
	f := newFixture(t, 0, 0)
	f.seedGrade(t)
	ctx := context.Background()

	_, err := f.svc.RemoveVariant(ctx, RemoveVariantInput{LocalID: 2})
	require.NoError(t, err)
	report, err := f.svc.RemoveVariant(ctx, RemoveVariantInput{LocalID: 3, ForceDeleteParent: true})
	require.NoError(t, err)

	assert.True(t, report.ParentDeleted)
	assert.False(t, report.ParentEmpty)
	assert.Equal(t, []int64{3, 1}, report.UnlinkedLocalIDs)
	assert.Equal(t, []int64{42}, f.remote.deletedProducts)

	var n int64
	require.NoError(t, f.conn.Model(&models.StorefrontMapping{}).Count(&n).Error)
	assert.Zero(t, n)
	require.NoError(t, f.conn.Model(&models.Product{}).Where("published_tag IS NOT NULL").Count(&n).Error)
	assert.Zero(t, n)

	var names []enums.StorefrontEventName
	for _, row := range f.events(t) {
		names = append(names, row.Event)
	}
	assert.Equal(t, []enums.StorefrontEventName{
		enums.EventLocalVariantDeleted,
		enums.EventLocalProductDeleted,
		enums.EventLocalVariantDeleted,
	}, names)
}

func TestRemoveVariantToleratesRemoteNotFound(t *testing.T) {
	f := newFixture(t, 0, 0)
	f.seedGrade(t)
	f.remote.products[42] = []int64{501}

	report, err := f.svc.RemoveVariant(context.Background(), RemoveVariantInput{LocalID: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(500), report.RemoteVariantID)
	var n int64
	require.NoError(t, f.conn.Model(&models.StorefrontMapping{}).Where("local_id = ?", 2).Count(&n).Error)
	assert.Zero(t, n)
}

func TestRemoveVariantRejectsNonVariant(t *testing.T) {
	f := newFixture(t, 0, 0)
	f.seedGrade(t)

	_, err := f.svc.RemoveVariant(context.Background(), RemoveVariantInput{LocalID: 1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Empty(t, f.remote.deletedVariants)

	_, err = f.svc.RemoveVariant(context.Background(), RemoveVariantInput{LocalID: 99})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
