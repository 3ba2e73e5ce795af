package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/catalogsync/api/responses"
	"github.com/angelmondragon/catalogsync/api/validators"
	"github.com/angelmondragon/catalogsync/internal/export"
	pkgerrors "github.com/angelmondragon/catalogsync/pkg/errors"
	"github.com/angelmondragon/catalogsync/pkg/logger"
)

type ExportService interface {
	Export(ctx context.Context, localID int64) (*export.Result, error)
}

func AdminExport(svc ExportService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "export service unavailable"))
			return
		}
		localID, err := validators.PathID(r, "localID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := svc.Export(r.Context(), localID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}
