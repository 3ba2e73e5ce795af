package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/catalogsync/api/responses"
	"github.com/angelmondragon/catalogsync/api/validators"
	"github.com/angelmondragon/catalogsync/internal/images"
	pkgerrors "github.com/angelmondragon/catalogsync/pkg/errors"
	"github.com/angelmondragon/catalogsync/pkg/logger"
)

type ImageService interface {
	Sync(ctx context.Context, localID int64, action images.Action) (*images.Result, error)
}

func AdminImagesSync(svc ImageService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "image service unavailable"))
			return
		}
		localID, err := validators.PathID(r, "localID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var action images.Action
		if err := validators.DecodeJSONBody(r, &action); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := svc.Sync(r.Context(), localID, action)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}
