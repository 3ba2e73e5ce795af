// Package reconcile compares mappings against the live storefront and
// retires the ones whose remote counterpart disappeared.
package reconcile

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/multierr"

	"github.com/angelmondragon/catalogsync/internal/ledger"
	"github.com/angelmondragon/catalogsync/internal/mapping"
	"github.com/angelmondragon/catalogsync/pkg/db/models"
	"github.com/angelmondragon/catalogsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/catalogsync/pkg/errors"
	"github.com/angelmondragon/catalogsync/pkg/logger"
	"github.com/angelmondragon/catalogsync/pkg/metrics"
	"github.com/angelmondragon/catalogsync/pkg/storefront"
)

const (
	defaultPageSize = 50
	defaultMaxPages = 40
)

type mappingStore interface {
	Get(ctx context.Context, localID int64) (*models.StorefrontMapping, error)
	ListProductRefs(ctx context.Context) ([]mapping.ProductRef, error)
	ListByRemoteProduct(ctx context.Context, productID int64) ([]models.StorefrontMapping, error)
	MarkOrphanProduct(ctx context.Context, localID int64) (bool, error)
	MarkOrphanVariant(ctx context.Context, productID, variantID int64) ([]int64, error)
	Unlink(ctx context.Context, localID int64) error
	RemoveByRemoteProduct(ctx context.Context, productID int64) (*mapping.RemovalResult, error)
}

type productClient interface {
	ListProducts(ctx context.Context, page, perPage int) ([]storefront.Product, error)
	GetProduct(ctx context.Context, productID int64) (*storefront.Product, error)
	DeleteVariant(ctx context.Context, productID, variantID int64) error
	DeleteProduct(ctx context.Context, productID int64) error
}

// ServiceParams groups the reconcile dependencies.
type ServiceParams struct {
	Mappings mappingStore
	Remote   productClient
	Audit    ledger.Service
	PageSize int
	MaxPages int
	Metrics  *metrics.SyncMetrics
	Logger   *logger.Logger
}

// Service runs reconciliation sweeps.
type Service struct {
	mappings mappingStore
	remote   productClient
	audit    ledger.Service
	pageSize int
	maxPages int
	metrics  *metrics.SyncMetrics
	logg     *logger.Logger
}

// MissingProduct is a mapped remote product absent from the listing.
type MissingProduct struct {
	RemoteProductID int64   `json:"remote_product_id"`
	LocalIDs        []int64 `json:"local_ids"`
}

// SyncStatusReport summarizes a full listing pass.
type SyncStatusReport struct {
	MappedProducts int              `json:"mapped_products"`
	RemoteProducts int              `json:"remote_products"`
	Pages          int              `json:"pages"`
	Missing        []MissingProduct `json:"missing"`
	Orphaned       int              `json:"orphaned"`
}

// VariantReport summarizes a variant pass over one remote product.
type VariantReport struct {
	RemoteProductID int64   `json:"remote_product_id"`
	ProductMissing  bool    `json:"product_missing"`
	RemoteVariants  int     `json:"remote_variants"`
	OrphanedIDs     []int64 `json:"orphaned_local_ids"`
}

// RemoveVariantInput selects the variant to delete.
type RemoveVariantInput struct {
	LocalID           int64 `json:"local_id" validate:"required,gt=0"`
	ForceDeleteParent bool  `json:"force_delete_parent"`
}

// RemoveVariantReport describes a variant deletion. ParentEmpty is the
// cleanup signal raised when the last variant of a product went away and
// the parent was kept.
type RemoveVariantReport struct {
	LocalID           int64   `json:"local_id"`
	RemoteProductID   int64   `json:"remote_product_id"`
	RemoteVariantID   int64   `json:"remote_variant_id"`
	RemainingVariants int     `json:"remaining_variants"`
	ParentEmpty       bool    `json:"parent_empty"`
	ParentDeleted     bool    `json:"parent_deleted"`
	UnlinkedLocalIDs  []int64 `json:"unlinked_local_ids,omitempty"`
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Mappings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "mapping store required")
	}
	if params.Remote == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "storefront client required")
	}
	if params.Audit == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "audit ledger required")
	}
	s := &Service{
		mappings: params.Mappings,
		remote:   params.Remote,
		audit:    params.Audit,
		pageSize: params.PageSize,
		maxPages: params.MaxPages,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}
	if s.pageSize <= 0 {
		s.pageSize = defaultPageSize
	}
	if s.maxPages <= 0 {
		s.maxPages = defaultMaxPages
	}
	if s.logg == nil {
		s.logg = logger.Nop()
	}
	return s, nil
}

// SyncStatus lists every remote product and orphans the mapped products the
// listing no longer contains. A listing cut short by the page limit is not
// trusted and nothing is marked.
func (s *Service) SyncStatus(ctx context.Context) (*SyncStatusReport, error) {
	refs, err := s.mappings.ListProductRefs(ctx)
	if err != nil {
		return nil, err
	}
	byProduct := map[int64][]int64{}
	for _, ref := range refs {
		byProduct[ref.RemoteProductID] = append(byProduct[ref.RemoteProductID], ref.LocalID)
	}

	remoteIDs, pages, err := s.listRemoteIDs(ctx)
	if err != nil {
		return nil, err
	}

	report := &SyncStatusReport{
		MappedProducts: len(byProduct),
		RemoteProducts: len(remoteIDs),
		Pages:          pages,
		Missing:        []MissingProduct{},
	}
	productIDs := make([]int64, 0, len(byProduct))
	for id := range byProduct {
		if _, ok := remoteIDs[id]; !ok {
			productIDs = append(productIDs, id)
		}
	}
	sort.Slice(productIDs, func(i, j int) bool { return productIDs[i] < productIDs[j] })

	var errs error
	for _, productID := range productIDs {
		localIDs := byProduct[productID]
		report.Missing = append(report.Missing, MissingProduct{RemoteProductID: productID, LocalIDs: localIDs})
		for _, localID := range localIDs {
			changed, err := s.mappings.MarkOrphanProduct(ctx, localID)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("local item %d: %w", localID, err))
				continue
			}
			if changed {
				report.Orphaned++
			}
		}
	}
	s.metrics.AddOrphans("product", report.Orphaned)

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"mapped_products": report.MappedProducts,
		"remote_products": report.RemoteProducts,
		"missing":         len(report.Missing),
		"orphaned":        report.Orphaned,
	}), "storefront sync status finished")
	return report, errs
}

func (s *Service) listRemoteIDs(ctx context.Context) (map[int64]struct{}, int, error) {
	ids := map[int64]struct{}{}
	for page := 1; page <= s.maxPages; page++ {
		batch, err := s.remote.ListProducts(ctx, page, s.pageSize)
		if err != nil {
			return nil, page, err
		}
		for _, p := range batch {
			ids[p.ID.Int64()] = struct{}{}
		}
		if len(batch) < s.pageSize {
			return ids, page, nil
		}
	}
	return nil, s.maxPages, pkgerrors.Newf(pkgerrors.CodeStateConflict,
		"storefront listing exceeds %d pages of %d products", s.maxPages, s.pageSize).
		WithDetails(map[string]any{"max_pages": s.maxPages, "page_size": s.pageSize})
}

// ReconcileVariants orphans the mapped variants of productID that the
// storefront no longer lists. When the product itself is gone, every mapping
// pointing at it is orphaned instead.
func (s *Service) ReconcileVariants(ctx context.Context, productID int64) (*VariantReport, error) {
	if productID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "remote product id is required")
	}
	ctx = s.logg.WithRemoteProductID(ctx, productID)
	report := &VariantReport{RemoteProductID: productID, OrphanedIDs: []int64{}}

	mapped, err := s.mappings.ListByRemoteProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	remote, err := s.remote.GetProduct(ctx, productID)
	if storefront.IsNotFound(err) {
		report.ProductMissing = true
		var errs error
		for _, m := range mapped {
			changed, err := s.mappings.MarkOrphanProduct(ctx, m.LocalID)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("local item %d: %w", m.LocalID, err))
				continue
			}
			if changed {
				report.OrphanedIDs = append(report.OrphanedIDs, m.LocalID)
			}
		}
		s.metrics.AddOrphans("product", len(report.OrphanedIDs))
		s.logg.Warn(ctx, "storefront product missing, mappings orphaned")
		return report, errs
	}
	if err != nil {
		return nil, err
	}

	live := make(map[int64]struct{}, len(remote.Variants))
	for _, v := range remote.Variants {
		live[v.ID.Int64()] = struct{}{}
	}
	report.RemoteVariants = len(live)

	var errs error
	for _, m := range mapped {
		if m.RemoteVariantID == nil {
			continue
		}
		if _, ok := live[*m.RemoteVariantID]; ok {
			continue
		}
		ids, err := s.mappings.MarkOrphanVariant(ctx, productID, *m.RemoteVariantID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("variant %d: %w", *m.RemoteVariantID, err))
			continue
		}
		report.OrphanedIDs = append(report.OrphanedIDs, ids...)
	}
	s.metrics.AddOrphans("variant", len(report.OrphanedIDs))
	return report, errs
}

// RemoveVariant deletes a VARIANT remotely and unlinks it. A remote 404 is
// accepted as already deleted. Once the product has no variant left the
// parent is deleted too when forced; otherwise ParentEmpty is reported.
func (s *Service) RemoveVariant(ctx context.Context, in RemoveVariantInput) (*RemoveVariantReport, error) {
	if in.LocalID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "local_id must be positive")
	}
	ctx = s.logg.WithLocalID(ctx, in.LocalID)

	m, err := s.mappings.Get(ctx, in.LocalID)
	if err != nil {
		return nil, err
	}
	if m.Kind != enums.MappingKindVariant {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "local item %d is mapped as %s, not VARIANT", in.LocalID, m.Kind)
	}
	if m.RemoteProductID == nil || m.RemoteVariantID == nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "local item %d has no remote variant to delete", in.LocalID)
	}
	productID, variantID := *m.RemoteProductID, *m.RemoteVariantID

	if err := s.remote.DeleteVariant(ctx, productID, variantID); err != nil {
		if !storefront.IsNotFound(err) {
			return nil, err
		}
		s.logg.Warn(ctx, "storefront variant already gone")
	}
	if err := s.mappings.Unlink(ctx, in.LocalID); err != nil {
		return nil, err
	}

	report := &RemoveVariantReport{
		LocalID:          in.LocalID,
		RemoteProductID:  productID,
		RemoteVariantID:  variantID,
		UnlinkedLocalIDs: []int64{in.LocalID},
	}

	rest, err := s.mappings.ListByRemoteProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	for _, r := range rest {
		if r.Kind == enums.MappingKindVariant {
			report.RemainingVariants++
		}
	}

	if report.RemainingVariants == 0 {
		if in.ForceDeleteParent {
			if err := s.deleteParent(ctx, productID, report); err != nil {
				return nil, err
			}
		} else {
			report.ParentEmpty = true
			s.logg.Warn(s.logg.WithRemoteProductID(ctx, productID), "storefront product has no variants left")
		}
	}

	s.record(ctx, enums.EventLocalVariantDeleted, productID, &variantID, in.LocalID, map[string]any{
		"parent_empty":   report.ParentEmpty,
		"parent_deleted": report.ParentDeleted,
	})
	return report, nil
}

func (s *Service) deleteParent(ctx context.Context, productID int64, report *RemoveVariantReport) error {
	if err := s.remote.DeleteProduct(ctx, productID); err != nil && !storefront.IsNotFound(err) {
		return err
	}
	removed, err := s.mappings.RemoveByRemoteProduct(ctx, productID)
	if err != nil {
		return err
	}
	report.ParentDeleted = true
	report.UnlinkedLocalIDs = append(report.UnlinkedLocalIDs, removed.LocalIDs...)

	var parentID int64
	if len(removed.LocalIDs) > 0 {
		parentID = removed.LocalIDs[0]
	}
	s.record(ctx, enums.EventLocalProductDeleted, productID, nil, parentID, map[string]any{
		"removed_local_ids": removed.LocalIDs,
		"tag_failures":      removed.TagFailures,
	})
	return nil
}

func (s *Service) record(ctx context.Context, event enums.StorefrontEventName, productID int64, variantID *int64, localID int64, payload any) {
	if _, err := s.audit.Record(ctx, ledger.RecordInput{
		Event:           event,
		RemoteProductID: &productID,
		RemoteVariantID: variantID,
		LocalID:         &localID,
		SignatureValid:  true,
		Payload:         payload,
	}); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "event", event.String()), "failed to write reconcile audit", err)
	}
}
