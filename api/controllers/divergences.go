package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/catalogsync/api/responses"
	"github.com/angelmondragon/catalogsync/api/validators"
	"github.com/angelmondragon/catalogsync/internal/divergence"
	pkgerrors "github.com/angelmondragon/catalogsync/pkg/errors"
	"github.com/angelmondragon/catalogsync/pkg/logger"
)

type DivergenceService interface {
	Inspect(ctx context.Context, localID int64) (*divergence.Report, error)
	Recheck(ctx context.Context, localID int64) (*divergence.Report, error)
	RecheckAll(ctx context.Context) (*divergence.Summary, error)
}

// AdminDivergenceInspect compares local truth with the sent snapshot without persisting.
func AdminDivergenceInspect(svc DivergenceService, logg *logger.Logger) http.HandlerFunc {
	return divergenceByID(svc, logg, func(ctx context.Context, id int64) (*divergence.Report, error) {
		return svc.Inspect(ctx, id)
	})
}

// AdminDivergenceRecheck compares and stores the needs_update flag.
func AdminDivergenceRecheck(svc DivergenceService, logg *logger.Logger) http.HandlerFunc {
	return divergenceByID(svc, logg, func(ctx context.Context, id int64) (*divergence.Report, error) {
		return svc.Recheck(ctx, id)
	})
}

func divergenceByID(svc DivergenceService, logg *logger.Logger, run func(context.Context, int64) (*divergence.Report, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "divergence service unavailable"))
			return
		}
		localID, err := validators.PathID(r, "localID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := run(r.Context(), localID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

// AdminDivergenceRecheckAll sweeps every linked mapping. Per-item failures are
// counted in the summary; the error only surfaces when nothing could run.
func AdminDivergenceRecheckAll(svc DivergenceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "divergence service unavailable"))
			return
		}
		summary, err := svc.RecheckAll(r.Context())
		if err != nil && summary == nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err != nil && logg != nil {
			logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "divergence sweep finished with failures")
		}
		responses.WriteSuccess(w, summary)
	}
}
