package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/angelmondragon/catalogsync/internal/stock"
	"github.com/angelmondragon/catalogsync/pkg/db/models"
	"github.com/angelmondragon/catalogsync/pkg/enums"
	"github.com/angelmondragon/catalogsync/pkg/logger"
	"github.com/angelmondragon/catalogsync/pkg/pagination"
)

type stubStockService struct {
	days   int
	manual stock.ManualInput
	filter stock.Filter
}

func (s *stubStockService) Run(_ context.Context, lookbackDays int) (*stock.SyncSummary, error) {
	s.days = lookbackDays
	return &stock.SyncSummary{OK: 2, Items: []stock.ItemOutcome{}}, nil
}

func (s *stubStockService) ApplyManual(_ context.Context, in stock.ManualInput) (*stock.DeltaResult, error) {
	s.manual = in
	return &stock.DeltaResult{LocalID: in.LocalID, StockFrom: 5, StockTo: 5 + in.Delta}, nil
}

func (s *stubStockService) ListEntries(_ context.Context, filter stock.Filter) ([]models.StockAuditEntry, *pagination.Cursor, error) {
	s.filter = filter
	return []models.StockAuditEntry{{ID: 40}}, &pagination.Cursor{ID: 40}, nil
}

func TestAdminStockSyncPassesDays(t *testing.T) {
	svc := &stubStockService{}
	rec := httptest.NewRecorder()
	AdminStockSync(svc, logger.Nop())(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/stock/sync?days=7", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.days != 7 {
		t.Fatalf("expected 7 days got %d", svc.days)
	}

	rec = httptest.NewRecorder()
	AdminStockSync(svc, logger.Nop())(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/stock/sync?days=365", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestAdminStockApply(t *testing.T) {
	svc := &stubStockService{}
	rec := httptest.NewRecorder()
	AdminStockApply(svc, logger.Nop())(rec, newJSONRequest(t, http.MethodPost, "/api/v1/admin/stock/apply", map[string]any{
		"local_id": 3,
		"delta":    -2,
	}))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.manual.LocalID != 3 || svc.manual.Delta != -2 {
		t.Fatalf("unexpected input: %+v", svc.manual)
	}
	var res stock.DeltaResult
	decodeData(t, rec, &res)
	if res.StockTo != 3 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestAdminStockApplyRejectsUnknownFields(t *testing.T) {
	rec := httptest.NewRecorder()
	AdminStockApply(&stubStockService{}, logger.Nop())(rec, newJSONRequest(t, http.MethodPost, "/api/v1/admin/stock/apply", map[string]any{
		"local_id": 3,
		"delta":    1,
		"qty":      1,
	}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestAdminStockEntriesParsesFilter(t *testing.T) {
	svc := &stubStockService{}
	rec := httptest.NewRecorder()
	AdminStockEntries(svc, logger.Nop())(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/stock/entries?status=FAILED&platform=shop&local_id=8&since=2024-05-01&limit=10&cursor="+pagination.EncodeCursor(&pagination.Cursor{ID: 99}), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	want := stock.Filter{
		Status:   enums.StockAuditStatusFailed,
		Platform: "shop",
		LocalID:  8,
		Since:    time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Limit:    10,
	}
	if !svc.filter.Since.Equal(want.Since) {
		t.Fatalf("unexpected since %v", svc.filter.Since)
	}
	if svc.filter.Cursor == nil || svc.filter.Cursor.ID != 99 {
		t.Fatalf("cursor not parsed: %+v", svc.filter.Cursor)
	}
	svc.filter.Since = want.Since
	svc.filter.Cursor = nil
	if svc.filter != want {
		t.Fatalf("unexpected filter: %+v", svc.filter)
	}
	var body struct {
		Count      int    `json:"count"`
		NextCursor string `json:"next_cursor"`
	}
	decodeData(t, rec, &body)
	if body.Count != 1 || body.NextCursor != pagination.EncodeCursor(&pagination.Cursor{ID: 40}) {
		t.Fatalf("unexpected page: %+v", body)
	}
}

func TestAdminStockEntriesRejectsBadInput(t *testing.T) {
	for _, target := range []string{
		"/api/v1/admin/stock/entries?status=done",
		"/api/v1/admin/stock/entries?since=yesterday",
		"/api/v1/admin/stock/entries?limit=0",
		"/api/v1/admin/stock/entries?cursor=%25%25",
	} {
		rec := httptest.NewRecorder()
		AdminStockEntries(&stubStockService{}, logger.Nop())(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", target, rec.Code)
		}
	}
}
