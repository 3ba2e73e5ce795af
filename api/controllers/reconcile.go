package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/angelmondragon/catalogsync/api/responses"
	"github.com/angelmondragon/catalogsync/api/validators"
	"github.com/angelmondragon/catalogsync/internal/otp"
	"github.com/angelmondragon/catalogsync/internal/reconcile"
	pkgerrors "github.com/angelmondragon/catalogsync/pkg/errors"
	"github.com/angelmondragon/catalogsync/pkg/logger"
)

// ScopeRemoveVariant is the confirmation scope guarding forced parent deletion.
const ScopeRemoveVariant = "remove_variant"

type ReconcileService interface {
	SyncStatus(ctx context.Context) (*reconcile.SyncStatusReport, error)
	ReconcileVariants(ctx context.Context, productID int64) (*reconcile.VariantReport, error)
	RemoveVariant(ctx context.Context, in reconcile.RemoveVariantInput) (*reconcile.RemoveVariantReport, error)
}

type ConfirmationTaker interface {
	Take(ctx context.Context, scope, subject, code string) (otp.Outcome, error)
}

type removeVariantRequest struct {
	reconcile.RemoveVariantInput
	ConfirmationCode string `json:"confirmation_code,omitempty"`
}

func AdminSyncStatus(svc ReconcileService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconcile service unavailable"))
			return
		}
		report, err := svc.SyncStatus(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

func AdminReconcileVariants(svc ReconcileService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconcile service unavailable"))
			return
		}
		productID, err := validators.PathID(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := svc.ReconcileVariants(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

// AdminRemoveVariant deletes a mapped variant. Forcing the parent deletion
// consumes a confirmation code issued for the same local id.
func AdminRemoveVariant(svc ReconcileService, confirmations ConfirmationTaker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconcile service unavailable"))
			return
		}
		var req removeVariantRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if req.ForceDeleteParent {
			if err := confirm(r.Context(), confirmations, req.LocalID, req.ConfirmationCode); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		report, err := svc.RemoveVariant(r.Context(), req.RemoveVariantInput)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

func confirm(ctx context.Context, confirmations ConfirmationTaker, localID int64, code string) error {
	if confirmations == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "confirmation store unavailable")
	}
	if code == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "confirmation_code is required to delete the parent product").
			WithDetails(map[string]any{"field": "confirmation_code"})
	}
	outcome, err := confirmations.Take(ctx, ScopeRemoveVariant, strconv.FormatInt(localID, 10), code)
	if err != nil {
		return err
	}
	return outcome.Err()
}
