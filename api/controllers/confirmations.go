package controllers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/angelmondragon/catalogsync/api/responses"
	"github.com/angelmondragon/catalogsync/api/validators"
	pkgerrors "github.com/angelmondragon/catalogsync/pkg/errors"
	"github.com/angelmondragon/catalogsync/pkg/logger"
)

type ConfirmationIssuer interface {
	Issue(ctx context.Context, scope, subject string) (string, time.Time, error)
}

type issueConfirmationRequest struct {
	Scope   string `json:"scope" validate:"required,oneof=remove_variant"`
	LocalID int64  `json:"local_id" validate:"required,gt=0"`
}

type confirmationResponse struct {
	Scope     string    `json:"scope"`
	LocalID   int64     `json:"local_id"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AdminConfirmationIssue hands out a one-time code for a destructive action.
func AdminConfirmationIssue(svc ConfirmationIssuer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "confirmation store unavailable"))
			return
		}
		var req issueConfirmationRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		code, expiresAt, err := svc.Issue(r.Context(), req.Scope, strconv.FormatInt(req.LocalID, 10))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, confirmationResponse{
			Scope:     req.Scope,
			LocalID:   req.LocalID,
			Code:      code,
			ExpiresAt: expiresAt.UTC(),
		})
	}
}
