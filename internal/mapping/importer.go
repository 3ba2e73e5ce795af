package mapping

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/multierr"

	"github.com/angelmondragon/catalogsync/pkg/db/models"
	"github.com/angelmondragon/catalogsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/catalogsync/pkg/errors"
	"github.com/angelmondragon/catalogsync/pkg/storefront"
)

const (
	defaultImportPageSize = 50
	defaultImportMaxPages = 40

	fallbackSKUPrefix = "INT-"
)

type productLister interface {
	ListProducts(ctx context.Context, page, perPage int) ([]storefront.Product, error)
}

// ImportOptions bound the storefront listing walked by Import.
type ImportOptions struct {
	PageSize int
	MaxPages int
}

// UnmatchedProduct is a remote product no local item could be tied to.
type UnmatchedProduct struct {
	RemoteProductID int64  `json:"remote_product_id"`
	SKU             string `json:"sku,omitempty"`
	Reason          string `json:"reason"`
}

// ImportReport summarizes one pass over the storefront listing.
type ImportReport struct {
	Pages          int                `json:"pages"`
	RemoteProducts int                `json:"remote_products"`
	Truncated      bool               `json:"truncated"`
	Normal         int                `json:"normal"`
	Parent         int                `json:"parent"`
	Variant        int                `json:"variant"`
	AlreadyMapped  int                `json:"already_mapped"`
	Conflicts      int                `json:"conflicts"`
	Unmatched      []UnmatchedProduct `json:"unmatched"`
}

// Importer links existing storefront products to local items that were never
// exported through this service. Items match by sku first, then by barcode.
type Importer struct {
	mappings *Service
	remote   productLister
	pageSize int
	maxPages int
}

func NewImporter(mappings *Service, remote productLister, opts ImportOptions) (*Importer, error) {
	if mappings == nil {
		return nil, fmt.Errorf("mapping service required")
	}
	if remote == nil {
		return nil, fmt.Errorf("storefront product client required")
	}
	imp := &Importer{mappings: mappings, remote: remote, pageSize: opts.PageSize, maxPages: opts.MaxPages}
	if imp.pageSize <= 0 {
		imp.pageSize = defaultImportPageSize
	}
	if imp.maxPages <= 0 {
		imp.maxPages = defaultImportMaxPages
	}
	return imp, nil
}

// Import walks the storefront listing and links every unmapped local item it
// can identify. Items already holding a remote product are left alone. A
// listing longer than the page limit is imported up to the limit and flagged
// as truncated. Per-product failures come back with the report; a failed
// listing returns no report.
func (i *Importer) Import(ctx context.Context) (*ImportReport, error) {
	report := &ImportReport{Unmatched: []UnmatchedProduct{}}
	logg := i.mappings.logg

	var errs error
	for page := 1; ; page++ {
		if page > i.maxPages {
			report.Truncated = true
			break
		}
		batch, err := i.remote.ListProducts(ctx, page, i.pageSize)
		if err != nil {
			return nil, multierr.Append(errs, err)
		}
		report.Pages = page
		for idx := range batch {
			report.RemoteProducts++
			if err := i.importProduct(ctx, &batch[idx], report); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("remote product %d: %w", batch[idx].ID.Int64(), err))
			}
		}
		if len(batch) < i.pageSize {
			break
		}
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"remote_products": report.RemoteProducts,
		"normal":          report.Normal,
		"parent":          report.Parent,
		"variant":         report.Variant,
		"already_mapped":  report.AlreadyMapped,
		"unmatched":       len(report.Unmatched),
		"truncated":       report.Truncated,
	}), "storefront mapping import finished")
	return report, errs
}

func (i *Importer) importProduct(ctx context.Context, p *storefront.Product, report *ImportReport) error {
	productID := p.ID.Int64()
	if productID <= 0 {
		return nil
	}
	sku := productSKU(p)
	unmatched := func(reason string) {
		report.Unmatched = append(report.Unmatched, UnmatchedProduct{RemoteProductID: productID, SKU: sku, Reason: reason})
	}

	local, err := i.bySKU(ctx, sku)
	if err != nil {
		return err
	}
	if local == nil && len(p.Variants) == 1 {
		if local, err = i.byGTIN(ctx, p.Variants[0].Barcode.String()); err != nil {
			return err
		}
	}
	if local == nil {
		unmatched("no local item with this sku or barcode")
		return nil
	}

	children, err := i.mappings.catalog.ListVariants(ctx, local.LocalID)
	if err != nil {
		return err
	}
	if len(children) == 0 {
		if len(p.Variants) > 1 {
			unmatched(fmt.Sprintf("local item %d has no grade but the product has %d variants", local.LocalID, len(p.Variants)))
			return nil
		}
		var variantID *int64
		barcode := ""
		if len(p.Variants) == 1 {
			id := p.Variants[0].ID.Int64()
			variantID = &id
			barcode = p.Variants[0].Barcode.String()
		}
		_, err := i.link(ctx, report, LinkInput{
			LocalID:         local.LocalID,
			Kind:            enums.MappingKindNormal,
			RemoteProductID: productID,
			RemoteVariantID: variantID,
			SKU:             trimmed(sku),
			Barcode:         trimmed(barcode),
			Name:            trimmed(local.Description),
		})
		return err
	}

	held, err := i.link(ctx, report, LinkInput{
		LocalID:         local.LocalID,
		Kind:            enums.MappingKindParent,
		RemoteProductID: productID,
		SKU:             trimmed(sku),
		Name:            trimmed(local.Description),
	})
	if err != nil || !held {
		return err
	}

	grade := make(map[int64]struct{}, len(children))
	for _, c := range children {
		grade[c.ChildLocalID] = struct{}{}
	}
	parentID := local.LocalID
	for _, v := range p.Variants {
		child, err := i.byGTIN(ctx, v.Barcode.String())
		if err != nil {
			return err
		}
		if child == nil {
			continue
		}
		if _, ok := grade[child.LocalID]; !ok {
			continue
		}
		variantID := v.ID.Int64()
		if _, err := i.link(ctx, report, LinkInput{
			LocalID:         child.LocalID,
			Kind:            enums.MappingKindVariant,
			ParentLocalID:   &parentID,
			RemoteProductID: productID,
			RemoteVariantID: &variantID,
			SKU:             trimmed(sku),
			Barcode:         trimmed(v.Barcode.String()),
			Name:            trimmed(child.Description),
		}); err != nil {
			return err
		}
	}
	return nil
}

// link records in unless the local item already holds a remote product.
// Conflicts are counted, not returned. held reports whether the item ends up
// tied to in.RemoteProductID.
func (i *Importer) link(ctx context.Context, report *ImportReport, in LinkInput) (held bool, err error) {
	existing, err := i.mappings.repo.Get(ctx, in.LocalID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load mapping")
	}
	if existing != nil && existing.RemoteProductID != nil {
		report.AlreadyMapped++
		return *existing.RemoteProductID == in.RemoteProductID, nil
	}
	if _, err := i.mappings.Link(ctx, in); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			i.mappings.logg.Warn(i.mappings.logg.WithLocalID(ctx, in.LocalID), "imported link conflicts with an existing mapping")
			report.Conflicts++
			return false, nil
		}
		return false, err
	}
	switch in.Kind {
	case enums.MappingKindNormal:
		report.Normal++
	case enums.MappingKindParent:
		report.Parent++
	case enums.MappingKindVariant:
		report.Variant++
	}
	return true, nil
}

// bySKU resolves an export sku: INT-<id> names the local id, anything else
// is a gtin.
func (i *Importer) bySKU(ctx context.Context, sku string) (*models.Product, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, nil
	}
	if rest, ok := strings.CutPrefix(strings.ToUpper(sku), fallbackSKUPrefix); ok {
		localID, err := strconv.ParseInt(rest, 10, 64)
		if err != nil || localID <= 0 {
			return nil, nil
		}
		p, err := i.mappings.catalog.Get(ctx, localID)
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, nil
		}
		return p, err
	}
	return i.byGTIN(ctx, sku)
}

func (i *Importer) byGTIN(ctx context.Context, gtin string) (*models.Product, error) {
	gtin = strings.TrimSpace(gtin)
	if gtin == "" {
		return nil, nil
	}
	p, err := i.mappings.catalog.FindByGTIN(ctx, gtin)
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return nil, nil
	}
	return p, err
}

// productSKU is the first variant sku; every variant of an exported product
// shares it.
func productSKU(p *storefront.Product) string {
	for _, v := range p.Variants {
		if sku := strings.TrimSpace(v.SKU.String()); sku != "" {
			return sku
		}
	}
	return ""
}

func trimmed(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
