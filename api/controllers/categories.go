package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/catalogsync/api/responses"
	"github.com/angelmondragon/catalogsync/api/validators"
	"github.com/angelmondragon/catalogsync/internal/categories"
	pkgerrors "github.com/angelmondragon/catalogsync/pkg/errors"
	"github.com/angelmondragon/catalogsync/pkg/logger"
)

type CategoryResolver interface {
	EnsurePath(ctx context.Context, names []string) (*categories.Path, error)
}

type ensurePathRequest struct {
	Path []string `json:"path" validate:"required,min=1,max=3,dive,required,max=255"`
}

// AdminCategoriesEnsure finds or creates a category chain, root first.
func AdminCategoriesEnsure(svc CategoryResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "category resolver unavailable"))
			return
		}
		var req ensurePathRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		path, err := svc.EnsurePath(r.Context(), req.Path)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, path)
	}
}
