// Package stock pushes inventory deltas to the storefront and keeps the sale
// driven ledger that makes each movement apply at most once.
package stock

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/catalogsync/pkg/db/models"
	"github.com/angelmondragon/catalogsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/catalogsync/pkg/errors"
	"github.com/angelmondragon/catalogsync/pkg/logger"
	"github.com/angelmondragon/catalogsync/pkg/storefront"
)

// Target match strategies, in resolution order.
const (
	MatchBarcode       = "barcode"
	MatchVariantID     = "variant_id"
	MatchSKU           = "sku"
	MatchSingleVariant = "single_variant"
)

type mappingStore interface {
	Get(ctx context.Context, localID int64) (*models.StorefrontMapping, error)
	RecordSentStock(ctx context.Context, localID int64, stock int) error
}

type productClient interface {
	GetProduct(ctx context.Context, productID int64) (*storefront.Product, error)
	UpdateVariant(ctx context.Context, productID, variantID int64, in storefront.VariantInput) (*storefront.Variant, error)
}

// DeltaResult describes one applied stock change.
type DeltaResult struct {
	LocalID         int64              `json:"local_id"`
	RemoteProductID int64              `json:"remote_product_id"`
	RemoteVariantID int64              `json:"remote_variant_id"`
	SKU             *string            `json:"sku,omitempty"`
	Tag             enums.PublishedTag `json:"published_tag"`
	StockFrom       int                `json:"stock_from"`
	StockTo         int                `json:"stock_to"`
	MatchedBy       string             `json:"matched_by"`
}

// Reconciler applies stock deltas against live remote values.
type Reconciler struct {
	mappings mappingStore
	remote   productClient
	logg     *logger.Logger
}

func NewReconciler(mappings mappingStore, remote productClient, logg *logger.Logger) (*Reconciler, error) {
	if mappings == nil {
		return nil, fmt.Errorf("mapping service required")
	}
	if remote == nil {
		return nil, fmt.Errorf("storefront client required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Reconciler{mappings: mappings, remote: remote, logg: logg}, nil
}

// ApplyDelta adds delta to the remote stock of the variant backing localID,
// clamping at zero. It is not idempotent; callers key retries on the ledger.
func (r *Reconciler) ApplyDelta(ctx context.Context, localID int64, delta int, barcode string) (*DeltaResult, error) {
	ctx = r.logg.WithLocalID(ctx, localID)

	m, err := r.mappings.Get(ctx, localID)
	if err != nil {
		return nil, err
	}
	if m.Kind == enums.MappingKindParent {
		return nil, pkgerrors.Newf(pkgerrors.CodeParentNotStocked, "local item %d is a parent and carries no stock", localID)
	}
	if m.RemoteProductID == nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "local item %d is not linked to a storefront product", localID)
	}
	productID := *m.RemoteProductID

	product, err := r.remote.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	variant, matchedBy := resolveTarget(product.Variants, m, barcode)
	if variant == nil {
		details := map[string]any{
			"remote_product_id": productID,
			"barcode":           barcode,
			"variants":          len(product.Variants),
		}
		if m.RemoteVariantID != nil {
			details["remote_variant_id"] = *m.RemoteVariantID
		}
		if m.SKU != nil {
			details["sku"] = *m.SKU
		}
		r.logg.Warn(r.logg.WithFields(ctx, details), "no storefront variant matched stock delta")
		return nil, pkgerrors.New(pkgerrors.CodeTargetNotFound, "no storefront variant matches the item").WithDetails(details)
	}
	if matchedBy == MatchSingleVariant {
		r.logg.Warn(r.logg.WithField(ctx, "remote_variant_id", variant.ID.Int64()), "stock target resolved by single-variant fallback")
	}

	from := variant.Stock.OrZero()
	to := from + delta
	if to < 0 {
		to = 0
	}
	if _, err := r.remote.UpdateVariant(ctx, productID, variant.ID.Int64(), storefront.VariantInput{Stock: &to}); err != nil {
		return nil, err
	}
	if err := r.mappings.RecordSentStock(ctx, localID, to); err != nil {
		r.logg.Error(ctx, "remote stock updated but snapshot not recorded", err)
	}

	return &DeltaResult{
		LocalID:         localID,
		RemoteProductID: productID,
		RemoteVariantID: variant.ID.Int64(),
		SKU:             m.SKU,
		Tag:             m.Kind.Tag(),
		StockFrom:       from,
		StockTo:         to,
		MatchedBy:       matchedBy,
	}, nil
}

func resolveTarget(variants []storefront.Variant, m *models.StorefrontMapping, barcode string) (*storefront.Variant, string) {
	if barcode = strings.TrimSpace(barcode); barcode != "" {
		for i := range variants {
			if variants[i].Barcode.String() != "" && variants[i].Barcode.String() == barcode {
				return &variants[i], MatchBarcode
			}
		}
	}
	if m.RemoteVariantID != nil {
		for i := range variants {
			if variants[i].ID.Int64() == *m.RemoteVariantID {
				return &variants[i], MatchVariantID
			}
		}
	}
	if m.SKU != nil && *m.SKU != "" {
		for i := range variants {
			if variants[i].SKU.String() == *m.SKU {
				return &variants[i], MatchSKU
			}
		}
	}
	if len(variants) == 1 {
		return &variants[0], MatchSingleVariant
	}
	return nil, ""
}
