package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/catalogsync/api/responses"
	"github.com/angelmondragon/catalogsync/api/validators"
	"github.com/angelmondragon/catalogsync/internal/mapping"
	"github.com/angelmondragon/catalogsync/pkg/db/models"
	"github.com/angelmondragon/catalogsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/catalogsync/pkg/errors"
	"github.com/angelmondragon/catalogsync/pkg/logger"
)

// MappingService is the mapping surface exposed to operators.
type MappingService interface {
	Get(ctx context.Context, localID int64) (*models.StorefrontMapping, error)
	Link(ctx context.Context, in mapping.LinkInput) (*mapping.LinkResult, error)
	Unlink(ctx context.Context, localID int64) error
	MarkNeedsUpdate(ctx context.Context, localIDs ...int64) (int64, error)
}

// MappingImporter links existing storefront products to unmapped local items.
type MappingImporter interface {
	Import(ctx context.Context) (*mapping.ImportReport, error)
}

type mappingView struct {
	LocalID         int64              `json:"local_id"`
	Kind            enums.MappingKind  `json:"kind"`
	State           enums.MappingState `json:"state"`
	ParentLocalID   *int64             `json:"parent_local_id,omitempty"`
	RemoteProductID *int64             `json:"remote_product_id,omitempty"`
	RemoteVariantID *int64             `json:"remote_variant_id,omitempty"`
	SKU             *string            `json:"sku,omitempty"`
	Barcode         *string            `json:"barcode,omitempty"`
	Name            *string            `json:"name,omitempty"`
	LastStatus      *string            `json:"last_status,omitempty"`
	LastSyncAt      *time.Time         `json:"last_sync_at,omitempty"`
	LastError       *string            `json:"last_error,omitempty"`
	SyncAttempts    int                `json:"sync_attempts"`
	SentStock       *int               `json:"sent_stock,omitempty"`
	NeedsUpdate     bool               `json:"needs_update"`
}

func newMappingView(m *models.StorefrontMapping) mappingView {
	return mappingView{
		LocalID:         m.LocalID,
		Kind:            m.Kind,
		State:           m.State(),
		ParentLocalID:   m.ParentLocalID,
		RemoteProductID: m.RemoteProductID,
		RemoteVariantID: m.RemoteVariantID,
		SKU:             m.SKU,
		Barcode:         m.Barcode,
		Name:            m.Name,
		LastStatus:      m.LastStatus,
		LastSyncAt:      m.LastSyncAt,
		LastError:       m.LastError,
		SyncAttempts:    m.SyncAttempts,
		SentStock:       m.SentStock,
		NeedsUpdate:     m.NeedsUpdate,
	}
}

type markNeedsUpdateRequest struct {
	LocalIDs []int64 `json:"local_ids" validate:"required,min=1,max=500,dive,gt=0"`
}

func AdminMappingGet(svc MappingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "mapping service unavailable"))
			return
		}
		localID, err := validators.PathID(r, "localID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		m, err := svc.Get(r.Context(), localID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newMappingView(m))
	}
}

// AdminMappingLink records a link made outside the export flow.
func AdminMappingLink(svc MappingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "mapping service unavailable"))
			return
		}
		var in mapping.LinkInput
		if err := validators.DecodeJSONBody(r, &in); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := svc.Link(r.Context(), in)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"mapping":        newMappingView(res.Mapping),
			"previous_state": res.Previous,
			"state":          res.State,
		})
	}
}

func AdminMappingUnlink(svc MappingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "mapping service unavailable"))
			return
		}
		localID, err := validators.PathID(r, "localID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Unlink(r.Context(), localID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"local_id": localID, "unlinked": true})
	}
}

func AdminMappingsMarkNeedsUpdate(svc MappingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "mapping service unavailable"))
			return
		}
		var req markNeedsUpdateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		updated, err := svc.MarkNeedsUpdate(r.Context(), req.LocalIDs...)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"updated": updated})
	}
}

// AdminMappingsImport links the storefront catalog to local items by sku and
// barcode. A partial report is returned alongside per-product failures.
func AdminMappingsImport(svc MappingImporter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "mapping importer unavailable"))
			return
		}
		report, err := svc.Import(r.Context())
		if err != nil {
			if report == nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			logg.Error(r.Context(), "mapping import finished with failures", err)
			responses.WriteSuccess(w, map[string]any{"report": report, "error": err.Error()})
			return
		}
		responses.WriteSuccess(w, map[string]any{"report": report})
	}
}
