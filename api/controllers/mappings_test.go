package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/angelmondragon/catalogsync/internal/mapping"
	"github.com/angelmondragon/catalogsync/pkg/db/models"
	"github.com/angelmondragon/catalogsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/catalogsync/pkg/errors"
	"github.com/angelmondragon/catalogsync/pkg/logger"
)

type stubMappingService struct {
	mappings map[int64]*models.StorefrontMapping
	marked   []int64
	unlinked []int64
}

func (s *stubMappingService) Get(_ context.Context, localID int64) (*models.StorefrontMapping, error) {
	m, ok := s.mappings[localID]
	if !ok {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "mapping %d not found", localID)
	}
	return m, nil
}

func (s *stubMappingService) Link(_ context.Context, in mapping.LinkInput) (*mapping.LinkResult, error) {
	m := &models.StorefrontMapping{LocalID: in.LocalID, Kind: in.Kind, RemoteProductID: int64Ptr(in.RemoteProductID)}
	return &mapping.LinkResult{Mapping: m, Previous: enums.MappingStateUnlinked, State: m.State()}, nil
}

func (s *stubMappingService) Unlink(_ context.Context, localID int64) error {
	if _, ok := s.mappings[localID]; !ok {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "mapping %d not found", localID)
	}
	s.unlinked = append(s.unlinked, localID)
	return nil
}

func (s *stubMappingService) MarkNeedsUpdate(_ context.Context, localIDs ...int64) (int64, error) {
	s.marked = append(s.marked, localIDs...)
	return int64(len(localIDs)), nil
}

func TestAdminMappingGetRendersState(t *testing.T) {
	svc := &stubMappingService{mappings: map[int64]*models.StorefrontMapping{
		7: {LocalID: 7, Kind: enums.MappingKindNormal, RemoteProductID: int64Ptr(900), RemoteVariantID: int64Ptr(901)},
	}}
	req := withURLParams(httptest.NewRequest(http.MethodGet, "/api/v1/admin/mappings/7", nil), map[string]string{"localID": "7"})
	rec := httptest.NewRecorder()

	AdminMappingGet(svc, logger.Nop())(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var view mappingView
	decodeData(t, rec, &view)
	if view.LocalID != 7 || view.State != enums.MappingStateLinked {
		t.Fatalf("unexpected view: %+v", view)
	}
	if view.RemoteProductID == nil || *view.RemoteProductID != 900 {
		t.Fatalf("remote product id not rendered: %+v", view)
	}
}

func TestAdminMappingGetNotFound(t *testing.T) {
	svc := &stubMappingService{mappings: map[int64]*models.StorefrontMapping{}}
	req := withURLParams(httptest.NewRequest(http.MethodGet, "/api/v1/admin/mappings/3", nil), map[string]string{"localID": "3"})
	rec := httptest.NewRecorder()

	AdminMappingGet(svc, logger.Nop())(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestAdminMappingGetRejectsBadID(t *testing.T) {
	req := withURLParams(httptest.NewRequest(http.MethodGet, "/api/v1/admin/mappings/abc", nil), map[string]string{"localID": "abc"})
	rec := httptest.NewRecorder()

	AdminMappingGet(&stubMappingService{}, logger.Nop())(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestAdminMappingLink(t *testing.T) {
	svc := &stubMappingService{}
	req := newJSONRequest(t, http.MethodPost, "/api/v1/admin/mappings", map[string]any{
		"local_id":          12,
		"kind":              "NORMAL",
		"remote_product_id": 55,
	})
	rec := httptest.NewRecorder()

	AdminMappingLink(svc, logger.Nop())(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Mapping mappingView        `json:"mapping"`
		State   enums.MappingState `json:"state"`
	}
	decodeData(t, rec, &body)
	if body.Mapping.LocalID != 12 || body.State != enums.MappingStateLinked {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestAdminMappingUnlink(t *testing.T) {
	svc := &stubMappingService{mappings: map[int64]*models.StorefrontMapping{4: {LocalID: 4}}}
	req := withURLParams(httptest.NewRequest(http.MethodDelete, "/api/v1/admin/mappings/4", nil), map[string]string{"localID": "4"})
	rec := httptest.NewRecorder()

	AdminMappingUnlink(svc, logger.Nop())(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if len(svc.unlinked) != 1 || svc.unlinked[0] != 4 {
		t.Fatalf("unlink not forwarded: %v", svc.unlinked)
	}
}

func TestAdminMappingsMarkNeedsUpdateValidatesIDs(t *testing.T) {
	svc := &stubMappingService{}
	handler := AdminMappingsMarkNeedsUpdate(svc, logger.Nop())

	rec := httptest.NewRecorder()
	handler(rec, newJSONRequest(t, http.MethodPost, "/api/v1/admin/mappings/needs-update", map[string]any{"local_ids": []int64{}}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty ids got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler(rec, newJSONRequest(t, http.MethodPost, "/api/v1/admin/mappings/needs-update", map[string]any{"local_ids": []int64{1, 0}}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero id got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler(rec, newJSONRequest(t, http.MethodPost, "/api/v1/admin/mappings/needs-update", map[string]any{"local_ids": []int64{1, 2}}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var body struct {
		Updated int64 `json:"updated"`
	}
	decodeData(t, rec, &body)
	if body.Updated != 2 || len(svc.marked) != 2 {
		t.Fatalf("unexpected result: %+v marked=%v", body, svc.marked)
	}
}

func TestAdminMappingNilService(t *testing.T) {
	rec := httptest.NewRecorder()
	AdminMappingGet(nil, logger.Nop())(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
}

type stubImporter struct {
	report *mapping.ImportReport
	err    error
	calls  int
}

func (s *stubImporter) Import(context.Context) (*mapping.ImportReport, error) {
	s.calls++
	return s.report, s.err
}

func TestAdminMappingsImportReturnsReport(t *testing.T) {
	svc := &stubImporter{report: &mapping.ImportReport{Pages: 1, RemoteProducts: 3, Normal: 2, Unmatched: []mapping.UnmatchedProduct{}}}
	rec := httptest.NewRecorder()

	AdminMappingsImport(svc, logger.Nop())(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/mappings/import", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var body struct {
		Report mapping.ImportReport `json:"report"`
		Error  string               `json:"error"`
	}
	decodeData(t, rec, &body)
	if body.Report.Normal != 2 || body.Report.RemoteProducts != 3 || body.Error != "" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestAdminMappingsImportKeepsPartialReport(t *testing.T) {
	svc := &stubImporter{
		report: &mapping.ImportReport{Pages: 1, Normal: 1},
		err:    pkgerrors.New(pkgerrors.CodeInternal, "remote product 9: load mapping"),
	}
	rec := httptest.NewRecorder()

	AdminMappingsImport(svc, logger.Nop())(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/mappings/import", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var body struct {
		Report mapping.ImportReport `json:"report"`
		Error  string               `json:"error"`
	}
	decodeData(t, rec, &body)
	if body.Report.Normal != 1 || body.Error == "" {
		t.Fatalf("partial report lost: %+v", body)
	}
}

func TestAdminMappingsImportListingFailure(t *testing.T) {
	svc := &stubImporter{err: pkgerrors.New(pkgerrors.CodeDependency, "storefront unavailable")}
	rec := httptest.NewRecorder()

	AdminMappingsImport(svc, logger.Nop())(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/mappings/import", nil))

	if rec.Code < http.StatusBadRequest {
		t.Fatalf("expected an error status got %d", rec.Code)
	}
}
