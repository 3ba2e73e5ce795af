// Package mapping owns the lifecycle of the link between local items and their
// storefront products and variants.
package mapping

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/catalogsync/internal/catalog"
	"github.com/angelmondragon/catalogsync/internal/divergence"
	"github.com/angelmondragon/catalogsync/pkg/db"
	"github.com/angelmondragon/catalogsync/pkg/db/models"
	"github.com/angelmondragon/catalogsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/catalogsync/pkg/errors"
	"github.com/angelmondragon/catalogsync/pkg/logger"
)

const (
	ReasonVariantRemoved = "variant removed from storefront"
	ReasonProductRemoved = "removed remotely"
)

// LinkInput describes a successful export of one local item.
type LinkInput struct {
	LocalID         int64                `json:"local_id" validate:"required,gt=0"`
	Kind            enums.MappingKind    `json:"kind" validate:"required"`
	ParentLocalID   *int64               `json:"parent_local_id,omitempty"`
	RemoteProductID int64                `json:"remote_product_id" validate:"required,gt=0"`
	RemoteVariantID *int64               `json:"remote_variant_id,omitempty"`
	SKU             *string              `json:"sku,omitempty"`
	Barcode         *string              `json:"barcode,omitempty"`
	Name            *string              `json:"name,omitempty"`
	Snapshot        *divergence.Snapshot `json:"snapshot,omitempty"`
	Payload         json.RawMessage      `json:"payload,omitempty"`
}

// LinkResult reports the transition performed by Link.
type LinkResult struct {
	Mapping  *models.StorefrontMapping `json:"mapping"`
	Previous enums.MappingState        `json:"previous_state"`
	State    enums.MappingState        `json:"state"`
}

// RemovalResult reports a cascade removal triggered by the storefront.
type RemovalResult struct {
	LocalIDs    []int64 `json:"local_ids"`
	TagsCleared int     `json:"tags_cleared"`
	TagFailures int     `json:"tag_failures"`
}

// Service applies mapping state transitions.
type Service struct {
	tx      db.TxRunner
	repo    *Repository
	catalog *catalog.Repository
	logg    *logger.Logger
	now     func() time.Time
}

// NewService wires the mapping service.
func NewService(tx db.TxRunner, repo *Repository, catalogRepo *catalog.Repository, logg *logger.Logger) (*Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("mapping repository required")
	}
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{tx: tx, repo: repo, catalog: catalogRepo, logg: logg, now: time.Now}, nil
}

// Get returns the mapping of localID.
func (s *Service) Get(ctx context.Context, localID int64) (*models.StorefrontMapping, error) {
	m, err := s.repo.Get(ctx, localID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load mapping")
	}
	if m == nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "local item %d has no storefront mapping", localID)
	}
	return m, nil
}

// Link creates or refreshes the mapping of a local item and sets its
// published tag. A remote pair already held by another local item is a
// conflict.
func (s *Service) Link(ctx context.Context, in LinkInput) (*LinkResult, error) {
	if err := validateLink(in); err != nil {
		return nil, err
	}

	var result LinkResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if in.RemoteVariantID != nil {
			holder, err := repo.FindByRemotePair(ctx, in.RemoteProductID, *in.RemoteVariantID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check remote pair")
			}
			if holder != nil && holder.LocalID != in.LocalID {
				return conflictError(in, holder.LocalID)
			}
		}

		existing, err := repo.GetForUpdate(ctx, in.LocalID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load mapping")
		}

		result.Previous = existing.State()
		m := existing
		if m == nil {
			m = &models.StorefrontMapping{LocalID: in.LocalID}
		}
		s.applyLink(m, in)

		if existing == nil {
			err = repo.Create(ctx, m)
		} else {
			err = repo.Save(ctx, m)
		}
		if err != nil {
			if db.IsUniqueViolation(err, models.RemotePairIndex) {
				return conflictError(in, 0)
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save mapping")
		}

		tag := in.Kind.Tag()
		if err := s.catalog.WithTx(tx).SetTag(ctx, in.LocalID, &tag); err != nil {
			return err
		}

		result.Mapping = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.State = enums.MappingStateLinked
	if result.Previous.IsOrphaned() {
		result.State = enums.MappingStateRelinked
	}
	return &result, nil
}

func (s *Service) applyLink(m *models.StorefrontMapping, in LinkInput) {
	now := s.now().UTC()
	status := in.Kind.Tag().String()

	m.Kind = in.Kind
	m.ParentLocalID = nil
	if in.Kind == enums.MappingKindVariant {
		m.ParentLocalID = in.ParentLocalID
	}
	productID := in.RemoteProductID
	m.RemoteProductID = &productID
	m.RemoteVariantID = in.RemoteVariantID
	if in.SKU != nil {
		m.SKU = in.SKU
	}
	if in.Barcode != nil {
		m.Barcode = in.Barcode
	}
	if in.Name != nil {
		m.Name = in.Name
	}
	m.LastStatus = &status
	m.LastSyncAt = &now
	m.LastError = nil
	m.NeedsUpdate = false
	if len(in.Payload) > 0 {
		m.PayloadSnapshot = in.Payload
	}

	if snap := in.Snapshot; snap != nil {
		m.SentCategory = snap.Category
		m.SentGroup = snap.Group
		m.SentSubgroup = snap.Subgroup
		m.SentPrice = snap.Price
		m.SentStock = snap.Stock
		m.SentHeight = snap.Height
		m.SentWidth = snap.Width
		m.SentLength = snap.Length
		m.SentWeight = snap.Weight
	}
}

func validateLink(in LinkInput) error {
	details := map[string]any{}
	if in.LocalID <= 0 {
		details["local_id"] = "must be positive"
	}
	if !in.Kind.IsValid() {
		details["kind"] = "must be NORMAL, PARENT or VARIANT"
	}
	if in.RemoteProductID <= 0 {
		details["remote_product_id"] = "must be positive"
	}
	if in.RemoteVariantID != nil && *in.RemoteVariantID <= 0 {
		details["remote_variant_id"] = "must be positive when present"
	}
	if in.Kind == enums.MappingKindVariant && (in.ParentLocalID == nil || *in.ParentLocalID <= 0) {
		details["parent_local_id"] = "required for VARIANT"
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid link request").WithDetails(details)
	}
	return nil
}

func conflictError(in LinkInput, holder int64) error {
	details := map[string]any{
		"local_id":          in.LocalID,
		"remote_product_id": in.RemoteProductID,
	}
	if in.RemoteVariantID != nil {
		details["remote_variant_id"] = *in.RemoteVariantID
	}
	if holder > 0 {
		details["held_by_local_id"] = holder
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "remote product/variant already linked to another local item").
		WithDetails(details)
}

// MarkOrphanVariant clears the variant id of every mapping holding the pair,
// keeping the product id so the variant can be recreated under it.
func (s *Service) MarkOrphanVariant(ctx context.Context, productID, variantID int64) ([]int64, error) {
	if productID <= 0 || variantID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "remote product and variant ids are required")
	}
	ids, err := s.repo.ClearVariant(ctx, productID, variantID, ReasonVariantRemoved, s.now().UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark variant orphan")
	}
	for _, id := range ids {
		s.clearTag(ctx, id)
	}
	return ids, nil
}

// MarkOrphanProduct clears both remote ids of localID. It reports whether the
// mapping was linked before the call.
func (s *Service) MarkOrphanProduct(ctx context.Context, localID int64) (bool, error) {
	changed, err := s.repo.ClearRemote(ctx, localID, ReasonProductRemoved, s.now().UTC())
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark product orphan")
	}
	if changed {
		s.clearTag(ctx, localID)
	}
	return changed, nil
}

// Unlink removes the mapping of localID and clears its tag atomically.
func (s *Service) Unlink(ctx context.Context, localID int64) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		removed, err := s.repo.WithTx(tx).Delete(ctx, localID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete mapping")
		}
		if !removed {
			return pkgerrors.Newf(pkgerrors.CodeNotFound, "local item %d has no storefront mapping", localID)
		}
		return s.catalog.WithTx(tx).SetTag(ctx, localID, nil)
	})
}

// RemoveByRemoteProduct deletes every mapping pointing at productID, then
// clears the tag of each affected item. Tag failures are logged per item and
// do not undo the removal.
func (s *Service) RemoveByRemoteProduct(ctx context.Context, productID int64) (*RemovalResult, error) {
	if productID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "remote product id is required")
	}

	var ids []int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		ids, err = s.repo.WithTx(tx).DeleteByRemoteProduct(ctx, productID)
		return err
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete mappings by remote product")
	}

	result := &RemovalResult{LocalIDs: ids}
	for _, id := range ids {
		if s.clearTag(ctx, id) {
			result.TagsCleared++
		} else {
			result.TagFailures++
		}
	}
	if result.LocalIDs == nil {
		result.LocalIDs = []int64{}
	}
	return result, nil
}

// RecordFailure stores a sync failure on an existing mapping. Items that were
// never linked have nothing to annotate.
func (s *Service) RecordFailure(ctx context.Context, localID int64, msg string) error {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = "sync failed"
	}
	if _, err := s.repo.RecordFailure(ctx, localID, msg, s.now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record sync failure")
	}
	return nil
}

// MarkNeedsUpdate queues items for re-export.
func (s *Service) MarkNeedsUpdate(ctx context.Context, localIDs ...int64) (int64, error) {
	n, err := s.repo.SetNeedsUpdate(ctx, localIDs, true)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "flag needs_update")
	}
	return n, nil
}

// SetNeedsUpdate persists the divergence outcome of one item.
func (s *Service) SetNeedsUpdate(ctx context.Context, localID int64, value bool) error {
	if _, err := s.repo.SetNeedsUpdate(ctx, []int64{localID}, value); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update needs_update")
	}
	return nil
}

// RecordSentStock keeps the snapshot in step after a stock push.
func (s *Service) RecordSentStock(ctx context.Context, localID int64, stock int) error {
	if err := s.repo.SetSentStock(ctx, localID, stock, s.now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record sent stock")
	}
	return nil
}

// ListByRemoteProduct exposes the mappings of one remote product.
func (s *Service) ListByRemoteProduct(ctx context.Context, productID int64) ([]models.StorefrontMapping, error) {
	rows, err := s.repo.ListByRemoteProduct(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list mappings by remote product")
	}
	return rows, nil
}

// ListChildren exposes the variant mappings under a parent.
func (s *Service) ListChildren(ctx context.Context, parentLocalID int64) ([]models.StorefrontMapping, error) {
	rows, err := s.repo.ListChildren(ctx, parentLocalID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list variant mappings")
	}
	return rows, nil
}

// ListProductRefs exposes every mapped remote product id.
func (s *Service) ListProductRefs(ctx context.Context) ([]ProductRef, error) {
	refs, err := s.repo.ListProductRefs(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list mapped products")
	}
	return refs, nil
}

// ListLinkedAfter pages linked mappings for sweeps.
func (s *Service) ListLinkedAfter(ctx context.Context, afterLocalID int64, limit int) ([]models.StorefrontMapping, error) {
	rows, err := s.repo.ListLinkedAfter(ctx, afterLocalID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list linked mappings")
	}
	return rows, nil
}

func (s *Service) clearTag(ctx context.Context, localID int64) bool {
	if err := s.catalog.SetTag(ctx, localID, nil); err != nil {
		s.logg.Error(s.logg.WithLocalID(ctx, localID), "failed to clear published tag", err)
		return false
	}
	return true
}
