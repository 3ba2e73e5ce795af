// Package export pushes local items to the storefront and records the
// resulting mappings.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/catalogsync/internal/catalog"
	"github.com/angelmondragon/catalogsync/internal/categories"
	"github.com/angelmondragon/catalogsync/internal/divergence"
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
	ActionCreated = "created"
	ActionUpdated = "updated"
)

type catalogReader interface {
	Get(ctx context.Context, localID int64) (*models.Product, error)
	ListChildren(ctx context.Context, parentLocalID int64) ([]catalog.Child, error)
}

type mappingStore interface {
	Get(ctx context.Context, localID int64) (*models.StorefrontMapping, error)
	Link(ctx context.Context, in mapping.LinkInput) (*mapping.LinkResult, error)
	MarkOrphanProduct(ctx context.Context, localID int64) (bool, error)
	RecordFailure(ctx context.Context, localID int64, msg string) error
}

type categoryResolver interface {
	EnsurePath(ctx context.Context, names []string) (*categories.Path, error)
	Forget(ctx context.Context, names []string)
}

type productClient interface {
	GetProduct(ctx context.Context, productID int64) (*storefront.Product, error)
	SearchBySKU(ctx context.Context, sku string) ([]storefront.Product, error)
	CreateProduct(ctx context.Context, in storefront.ProductInput) (*storefront.Product, error)
	UpdateProduct(ctx context.Context, productID int64, in storefront.ProductInput) (*storefront.Product, error)
	CreateVariant(ctx context.Context, productID int64, in storefront.VariantInput) (*storefront.Variant, error)
	UpdateVariant(ctx context.Context, productID, variantID int64, in storefront.VariantInput) (*storefront.Variant, error)
}

// ServiceParams groups the export dependencies.
type ServiceParams struct {
	Catalog    catalogReader
	Mappings   mappingStore
	Categories categoryResolver
	Remote     productClient
	Audit      ledger.Service
	Language   string
	Metrics    *metrics.SyncMetrics
	Logger     *logger.Logger
}

// Service exports local items.
type Service struct {
	catalog    catalogReader
	mappings   mappingStore
	categories categoryResolver
	remote     productClient
	audit      ledger.Service
	lang       string
	metrics    *metrics.SyncMetrics
	logg       *logger.Logger
}

// VariantCounts reports child work done for a PARENT export.
type VariantCounts struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// VariantFailure is a child that could not be exported. The rest of the
// grade is still processed.
type VariantFailure struct {
	LocalID int64  `json:"local_id"`
	Error   string `json:"error"`
}

// Result summarizes one export.
type Result struct {
	LocalID         int64             `json:"local_id"`
	Kind            enums.MappingKind `json:"kind"`
	Action          string            `json:"action"`
	RemoteProductID int64             `json:"remote_product_id"`
	RemoteVariantID *int64            `json:"remote_variant_id,omitempty"`
	CategoryID      *int64            `json:"category_id,omitempty"`
	Variants        VariantCounts     `json:"variants"`
	Failures        []VariantFailure  `json:"failures,omitempty"`
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "catalog reader required")
	}
	if params.Mappings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "mapping store required")
	}
	if params.Categories == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "category resolver required")
	}
	if params.Remote == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "storefront client required")
	}
	if params.Audit == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "audit ledger required")
	}
	lang := strings.TrimSpace(params.Language)
	if lang == "" {
		lang = "pt"
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		catalog:    params.Catalog,
		mappings:   params.Mappings,
		categories: params.Categories,
		remote:     params.Remote,
		audit:      params.Audit,
		lang:       lang,
		metrics:    params.Metrics,
		logg:       logg,
	}, nil
}

// Export creates or updates the storefront product of localID. Items with
// grade children are exported as PARENT with one VARIANT per child. Failures
// after validation are stored on the mapping.
func (s *Service) Export(ctx context.Context, localID int64) (*Result, error) {
	if localID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "local_id must be positive")
	}
	ctx = s.logg.WithLocalID(ctx, localID)

	product, err := s.catalog.Get(ctx, localID)
	if err != nil {
		return nil, err
	}
	if err := Validate(product); err != nil {
		return nil, err
	}
	children, err := s.catalog.ListChildren(ctx, localID)
	if err != nil {
		return nil, err
	}

	kind := enums.MappingKindNormal
	if len(children) > 0 {
		kind = enums.MappingKindParent
	}

	result, err := s.export(ctx, product, children)
	if err != nil {
		s.metrics.IncExport(kind.String(), "failed")
		if ferr := s.mappings.RecordFailure(ctx, localID, err.Error()); ferr != nil {
			s.logg.Error(ctx, "failed to record export failure", ferr)
		}
		s.logg.Error(ctx, "export failed", err)
		return nil, err
	}
	s.metrics.IncExport(kind.String(), result.Action)
	return result, nil
}

// Validate reports the fields that keep an item from being exported.
func Validate(p *models.Product) error {
	details := map[string]any{}
	if strings.TrimSpace(p.Description) == "" {
		details["description"] = "required"
	}
	if !p.Price.Valid || !p.Price.Decimal.IsPositive() {
		details["price"] = "must be greater than zero"
	}
	if p.Stock == nil {
		details["stock"] = "required"
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "local item is not exportable").WithDetails(details)
	}
	return nil
}

func (s *Service) export(ctx context.Context, product *models.Product, children []catalog.Child) (*Result, error) {
	names := []string{deref(product.Category), deref(product.Group), deref(product.Subgroup)}
	path, err := s.categories.EnsurePath(ctx, names)
	if err != nil {
		return nil, err
	}
	var categoryIDs []int64
	var leaf *int64
	if path != nil {
		categoryIDs = []int64{path.LeafID}
		leaf = &path.LeafID
	}

	existing, err := s.mappings.Get(ctx, product.LocalID)
	if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return nil, err
	}

	var result *Result
	if len(children) == 0 {
		result, err = s.exportNormal(ctx, product, existing, categoryIDs)
	} else {
		result, err = s.exportParent(ctx, product, children, existing, categoryIDs)
	}
	if err != nil {
		if path != nil && path.Cached > 0 && isRemoteRejection(err) {
			s.categories.Forget(ctx, names)
		}
		return nil, err
	}
	result.CategoryID = leaf
	return result, nil
}

func (s *Service) exportNormal(ctx context.Context, product *models.Product, existing *models.StorefrontMapping, categoryIDs []int64) (*Result, error) {
	ids := normalIdentifiers(product)
	variant := variantInput(product, ids, s.lang, "")
	in := productInput(product, s.lang, categoryIDs)
	in.Variants = []storefront.VariantInput{variant}

	productID, remote, action, err := s.upsert(ctx, product.LocalID, existing, ids.SKU, in)
	if err != nil {
		return nil, err
	}

	var variantID *int64
	target := pickVariant(remote, existing, ids.Barcode)
	if target != nil {
		id := target.ID.Int64()
		variantID = &id
		if action == ActionUpdated {
			if _, err := s.remote.UpdateVariant(ctx, productID, id, variant); err != nil {
				return nil, err
			}
		}
	} else {
		s.logg.Warn(s.logg.WithRemoteProductID(ctx, productID), "no storefront variant found for normal item")
	}

	if _, err := s.mappings.Link(ctx, mapping.LinkInput{
		LocalID:         product.LocalID,
		Kind:            enums.MappingKindNormal,
		RemoteProductID: productID,
		RemoteVariantID: variantID,
		SKU:             optional(ids.SKU),
		Barcode:         optional(ids.Barcode),
		Name:            optional(product.Description),
		Snapshot:        snapshotOf(product),
		Payload:         encode(in),
	}); err != nil {
		return nil, err
	}

	s.record(ctx, productEvent(action), productID, nil, product.LocalID, map[string]any{"action": action})
	return &Result{
		LocalID:         product.LocalID,
		Kind:            enums.MappingKindNormal,
		Action:          action,
		RemoteProductID: productID,
		RemoteVariantID: variantID,
	}, nil
}

func (s *Service) exportParent(ctx context.Context, product *models.Product, children []catalog.Child, existing *models.StorefrontMapping, categoryIDs []int64) (*Result, error) {
	parentIDs := parentIdentifiers(product)
	matrix := buildMatrix(children)

	variants := make([]storefront.VariantInput, len(children))
	for i := range children {
		child := &children[i].Product
		variants[i] = variantInput(child, variantIdentifiers(product, child), s.lang, matrix.Values[i])
	}
	in := productInput(product, s.lang, categoryIDs)
	in.Variants = variants
	in.Attributes = []map[string]string{{s.lang: matrix.Attribute}}

	productID, remote, action, err := s.upsert(ctx, product.LocalID, existing, parentIDs.SKU, in)
	if err != nil {
		return nil, err
	}

	if _, err := s.mappings.Link(ctx, mapping.LinkInput{
		LocalID:         product.LocalID,
		Kind:            enums.MappingKindParent,
		RemoteProductID: productID,
		SKU:             optional(parentIDs.SKU),
		Name:            optional(product.Description),
		Snapshot:        snapshotOf(product),
		Payload:         encode(in.WithoutVariantsAndImages()),
	}); err != nil {
		return nil, err
	}

	result := &Result{
		LocalID:         product.LocalID,
		Kind:            enums.MappingKindParent,
		Action:          action,
		RemoteProductID: productID,
	}

	byBarcode := map[string]storefront.Variant{}
	byID := map[int64]storefront.Variant{}
	for _, v := range remote.Variants {
		if b := v.Barcode.String(); b != "" {
			byBarcode[b] = v
		}
		byID[v.ID.Int64()] = v
	}
	// A fresh product carries the variants in request order.
	positional := action == ActionCreated && len(remote.Variants) == len(children)

	for i := range children {
		child := &children[i].Product
		childCtx := s.logg.WithLocalID(ctx, child.LocalID)
		ids := variantIdentifiers(product, child)

		var matched *storefront.Variant
		if rv, ok := byBarcode[ids.Barcode]; ok && ids.Barcode != "" {
			matched = &rv
		} else if rv, ok := s.recordedVariant(childCtx, child.LocalID, productID, byID); ok {
			matched = &rv
		} else if positional {
			matched = &remote.Variants[i]
		}

		variantID, event, err := s.pushVariant(childCtx, productID, matched, action, variants[i])
		if err == nil {
			_, err = s.mappings.Link(childCtx, mapping.LinkInput{
				LocalID:         child.LocalID,
				Kind:            enums.MappingKindVariant,
				ParentLocalID:   &product.LocalID,
				RemoteProductID: productID,
				RemoteVariantID: &variantID,
				SKU:             optional(ids.SKU),
				Barcode:         optional(ids.Barcode),
				Name:            optional(child.Description),
				Snapshot:        snapshotOf(child),
				Payload:         encode(variants[i]),
			})
		}
		if err != nil {
			s.logg.Error(childCtx, "variant export failed", err)
			if ferr := s.mappings.RecordFailure(childCtx, child.LocalID, err.Error()); ferr != nil {
				s.logg.Error(childCtx, "failed to record variant failure", ferr)
			}
			result.Failures = append(result.Failures, VariantFailure{LocalID: child.LocalID, Error: err.Error()})
			continue
		}

		if event == enums.EventLocalVariantCreated {
			result.Variants.Created++
		} else {
			result.Variants.Updated++
		}
		s.record(childCtx, event, productID, &variantID, child.LocalID, map[string]any{
			"action": actionOf(event),
			"value":  matrix.Values[i],
		})
	}

	s.record(ctx, productEvent(action), productID, nil, product.LocalID, map[string]any{
		"action":   action,
		"variants": result.Variants,
		"failures": len(result.Failures),
	})
	return result, nil
}

// recordedVariant returns the remote variant a child was last linked to when
// it still belongs to productID.
func (s *Service) recordedVariant(ctx context.Context, localID, productID int64, byID map[int64]storefront.Variant) (storefront.Variant, bool) {
	m, err := s.mappings.Get(ctx, localID)
	if err != nil {
		if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "could not load variant mapping")
		}
		return storefront.Variant{}, false
	}
	if m.RemoteProductID == nil || *m.RemoteProductID != productID || m.RemoteVariantID == nil {
		return storefront.Variant{}, false
	}
	v, ok := byID[*m.RemoteVariantID]
	return v, ok
}

// pushVariant updates a matched variant of an existing product, links a
// matched variant of a freshly created product as is, and creates the rest.
func (s *Service) pushVariant(ctx context.Context, productID int64, matched *storefront.Variant, action string, in storefront.VariantInput) (int64, enums.StorefrontEventName, error) {
	if matched != nil {
		id := matched.ID.Int64()
		if action == ActionCreated {
			return id, enums.EventLocalVariantCreated, nil
		}
		if _, err := s.remote.UpdateVariant(ctx, productID, id, in); err != nil {
			return 0, "", err
		}
		return id, enums.EventLocalVariantUpdated, nil
	}

	created, err := s.remote.CreateVariant(ctx, productID, in)
	if err != nil {
		return 0, "", err
	}
	if created.ID == 0 {
		return 0, "", pkgerrors.New(pkgerrors.CodeMalformedPayload, "variant create returned no id")
	}
	return created.ID.Int64(), enums.EventLocalVariantCreated, nil
}

// upsert updates the mapped product when it still exists remotely. A mapped
// product that is gone is orphaned locally. An unmapped product adopts a
// remote product already carrying its sku before a new one is created.
func (s *Service) upsert(ctx context.Context, localID int64, existing *models.StorefrontMapping, sku string, in storefront.ProductInput) (int64, *storefront.Product, string, error) {
	if existing != nil && existing.RemoteProductID != nil {
		productID := *existing.RemoteProductID
		remote, err := s.remote.GetProduct(ctx, productID)
		switch {
		case err == nil:
			return s.update(ctx, productID, remote, in)
		case storefront.IsNotFound(err):
			s.logg.Warn(s.logg.WithRemoteProductID(ctx, productID), "mapped storefront product is gone, creating again")
			if _, err := s.mappings.MarkOrphanProduct(ctx, localID); err != nil {
				return 0, nil, "", err
			}
		default:
			return 0, nil, "", err
		}
	}

	if sku != "" {
		found, err := s.remote.SearchBySKU(ctx, sku)
		if err != nil {
			return 0, nil, "", err
		}
		if match := matchSKU(found, sku); match != nil {
			productID := match.ID.Int64()
			fields := map[string]any{"sku": sku, "matches": len(found)}
			s.logg.Info(s.logg.WithFields(s.logg.WithRemoteProductID(ctx, productID), fields), "adopting storefront product with matching sku")
			return s.update(ctx, productID, match, in)
		}
	}

	created, err := s.remote.CreateProduct(ctx, in)
	if err != nil {
		return 0, nil, "", err
	}
	if created.ID == 0 {
		return 0, nil, "", pkgerrors.New(pkgerrors.CodeMalformedPayload, "product create returned no id")
	}
	return created.ID.Int64(), created, ActionCreated, nil
}

func (s *Service) update(ctx context.Context, productID int64, remote *storefront.Product, in storefront.ProductInput) (int64, *storefront.Product, string, error) {
	if _, err := s.remote.UpdateProduct(ctx, productID, in.WithoutVariantsAndImages()); err != nil {
		return 0, nil, "", err
	}
	return productID, remote, ActionUpdated, nil
}

// matchSKU returns the first product with a variant carrying exactly sku.
func matchSKU(products []storefront.Product, sku string) *storefront.Product {
	for i := range products {
		if products[i].ID == 0 {
			continue
		}
		for _, v := range products[i].Variants {
			if strings.EqualFold(strings.TrimSpace(v.SKU.String()), sku) {
				return &products[i]
			}
		}
	}
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
		s.logg.Error(s.logg.WithField(ctx, "event", event.String()), "failed to write export audit", err)
	}
}

// pickVariant finds the single variant of a NORMAL product: the recorded
// variant id first, then the barcode, then the only variant.
func pickVariant(remote *storefront.Product, existing *models.StorefrontMapping, barcode string) *storefront.Variant {
	if remote == nil {
		return nil
	}
	if existing != nil && existing.RemoteVariantID != nil {
		for i := range remote.Variants {
			if remote.Variants[i].ID.Int64() == *existing.RemoteVariantID {
				return &remote.Variants[i]
			}
		}
	}
	if barcode != "" {
		for i := range remote.Variants {
			if remote.Variants[i].Barcode.String() == barcode {
				return &remote.Variants[i]
			}
		}
	}
	if len(remote.Variants) == 1 {
		return &remote.Variants[0]
	}
	return nil
}

func productEvent(action string) enums.StorefrontEventName {
	if action == ActionCreated {
		return enums.EventLocalProductCreated
	}
	return enums.EventLocalProductUpdated
}

func actionOf(event enums.StorefrontEventName) string {
	if event == enums.EventLocalVariantCreated {
		return ActionCreated
	}
	return ActionUpdated
}

func snapshotOf(p *models.Product) *divergence.Snapshot {
	snap := divergence.FromProduct(p)
	return &snap
}

func encode(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(fmt.Sprintf("%q", err.Error()))
	}
	return raw
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// isRemoteRejection reports a 4xx answer from the storefront, which may come
// from a cached category id that no longer exists.
func isRemoteRejection(err error) bool {
	var apiErr *storefront.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status >= 400 && apiErr.Status < 500
}
