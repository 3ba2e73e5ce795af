package divergence

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/catalogsync/pkg/db/models"
	"github.com/angelmondragon/catalogsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/catalogsync/pkg/errors"
)

type stubCatalog struct {
	products map[int64]*models.Product
	failFor  int64
}

func (s *stubCatalog) Get(_ context.Context, localID int64) (*models.Product, error) {
	if localID == s.failFor {
		return nil, errors.New("db down")
	}
	p, ok := s.products[localID]
	if !ok {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "local item %d not found", localID)
	}
	return p, nil
}

type stubMappings struct {
	rows   map[int64]*models.StorefrontMapping
	writes map[int64]bool
	pages  int
}

func (s *stubMappings) Get(_ context.Context, localID int64) (*models.StorefrontMapping, error) {
	m, ok := s.rows[localID]
	if !ok {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "local item %d has no storefront mapping", localID)
	}
	return m, nil
}

func (s *stubMappings) SetNeedsUpdate(_ context.Context, localID int64, value bool) error {
	if s.writes == nil {
		s.writes = map[int64]bool{}
	}
	s.writes[localID] = value
	if m, ok := s.rows[localID]; ok {
		m.NeedsUpdate = value
	}
	return nil
}

func (s *stubMappings) ListLinkedAfter(_ context.Context, after int64, limit int) ([]models.StorefrontMapping, error) {
	s.pages++
	ids := make([]int64, 0, len(s.rows))
	for id := range s.rows {
		if id > after {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]models.StorefrontMapping, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.rows[id])
	}
	return out, nil
}

func product(id int64, price string, stock int) *models.Product {
	return &models.Product{LocalID: id, Price: num(price), Stock: intp(stock), Category: str("Roupas")}
}

func sentMapping(id int64, kind enums.MappingKind, price string, stock int) *models.StorefrontMapping {
	return &models.StorefrontMapping{
		LocalID:      id,
		Kind:         kind,
		SentCategory: str("Roupas"),
		SentPrice:    num(price),
		SentStock:    intp(stock),
	}
}

func newTestService(t *testing.T, cat *stubCatalog, maps *stubMappings) *Service {
	t.Helper()
	svc, err := NewService(cat, maps, nil, nil)
	require.NoError(t, err)
	return svc
}

func TestInspectDoesNotPersist(t *testing.T) {
	cat := &stubCatalog{products: map[int64]*models.Product{1: product(1, "10", 3)}}
	maps := &stubMappings{rows: map[int64]*models.StorefrontMapping{1: sentMapping(1, enums.MappingKindNormal, "12", 3)}}
	svc := newTestService(t, cat, maps)

	r, err := svc.Inspect(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, r.NeedsUpdate)
	require.Len(t, r.Items, 1)
	assert.Equal(t, FieldPrice, r.Items[0].Field)
	assert.Empty(t, maps.writes)
}

func TestRecheckPersistsBothWays(t *testing.T) {
	cat := &stubCatalog{products: map[int64]*models.Product{
		1: product(1, "10", 3),
		2: product(2, "10", 3),
	}}
	stale := sentMapping(2, enums.MappingKindNormal, "10", 3)
	stale.NeedsUpdate = true
	maps := &stubMappings{rows: map[int64]*models.StorefrontMapping{
		1: sentMapping(1, enums.MappingKindNormal, "10", 9),
		2: stale,
	}}
	svc := newTestService(t, cat, maps)
	ctx := context.Background()

	r, err := svc.Recheck(ctx, 1)
	require.NoError(t, err)
	assert.True(t, r.NeedsUpdate)
	assert.True(t, maps.writes[1])

	r, err = svc.Recheck(ctx, 2)
	require.NoError(t, err)
	assert.False(t, r.NeedsUpdate)
	assert.Empty(t, r.Items)
	v, ok := maps.writes[2]
	assert.True(t, ok)
	assert.False(t, v)
}

func TestRecheckParentIgnoresStock(t *testing.T) {
	cat := &stubCatalog{products: map[int64]*models.Product{1: product(1, "10", 50)}}
	maps := &stubMappings{rows: map[int64]*models.StorefrontMapping{1: sentMapping(1, enums.MappingKindParent, "10", 0)}}
	svc := newTestService(t, cat, maps)

	r, err := svc.Recheck(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, r.NeedsUpdate)
}

func TestRecheckUnmappedIsNotFound(t *testing.T) {
	svc := newTestService(t, &stubCatalog{}, &stubMappings{rows: map[int64]*models.StorefrontMapping{}})
	_, err := svc.Recheck(context.Background(), 7)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRecheckAllWalksEveryBatch(t *testing.T) {
	cat := &stubCatalog{products: map[int64]*models.Product{}, failFor: 4}
	maps := &stubMappings{rows: map[int64]*models.StorefrontMapping{}}
	for id := int64(1); id <= 5; id++ {
		maps.rows[id] = sentMapping(id, enums.MappingKindNormal, "10", 1)
		if id != 3 {
			cat.products[id] = product(id, "10", 1)
		}
	}
	cat.products[2] = product(2, "11", 2)
	svc := newTestService(t, cat, maps)
	svc.batchSize = 2

	summary, err := svc.RecheckAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "local item 4")

	assert.Equal(t, 3, summary.Checked)
	assert.Equal(t, 1, summary.Diverged)
	assert.Equal(t, 1, summary.Missing)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.ByField[FieldPrice])
	assert.Equal(t, 1, summary.ByField[FieldStock])
	assert.Equal(t, 3, maps.pages)
	assert.True(t, maps.rows[2].NeedsUpdate)
	_, wrote := maps.writes[1]
	assert.False(t, wrote, "unchanged flags are not rewritten")
}
