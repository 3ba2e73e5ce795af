package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/catalogsync/api/responses"
	"github.com/angelmondragon/catalogsync/api/validators"
	"github.com/angelmondragon/catalogsync/internal/stock"
	"github.com/angelmondragon/catalogsync/pkg/db/models"
	"github.com/angelmondragon/catalogsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/catalogsync/pkg/errors"
	"github.com/angelmondragon/catalogsync/pkg/logger"
	"github.com/angelmondragon/catalogsync/pkg/pagination"
)

const maxLookbackDays = 60

type StockService interface {
	Run(ctx context.Context, lookbackDays int) (*stock.SyncSummary, error)
	ApplyManual(ctx context.Context, in stock.ManualInput) (*stock.DeltaResult, error)
	ListEntries(ctx context.Context, filter stock.Filter) ([]models.StockAuditEntry, *pagination.Cursor, error)
}

// AdminStockApply applies a manual delta to one mapped item.
func AdminStockApply(svc StockService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock service unavailable"))
			return
		}
		var in stock.ManualInput
		if err := validators.DecodeJSONBody(r, &in); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := svc.ApplyManual(r.Context(), in)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}

// AdminStockSync runs the sale-driven sync over the requested window.
// days=0 falls back to the configured lookback.
func AdminStockSync(svc StockService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock service unavailable"))
			return
		}
		days, err := validators.ParseQueryInt(r, "days", 0, 0, maxLookbackDays)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.Run(r.Context(), days)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

func AdminStockEntries(svc StockService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock service unavailable"))
			return
		}
		filter, err := parseStockFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entries, next, err := svc.ListEntries(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"entries":     entries,
			"count":       len(entries),
			"next_cursor": pagination.EncodeCursor(next),
		})
	}
}

func parseStockFilter(r *http.Request) (stock.Filter, error) {
	q := r.URL.Query()
	filter := stock.Filter{Platform: strings.TrimSpace(q.Get("platform"))}

	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status := enums.StockAuditStatus(strings.ToLower(raw))
		if !status.IsValid() {
			return filter, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter").WithDetails(map[string]any{"field": "status"})
		}
		filter.Status = status
	}
	localID, err := validators.ParseQueryInt(r, "local_id", 0, 0, int(^uint32(0)>>1))
	if err != nil {
		return filter, err
	}
	filter.LocalID = int64(localID)

	if raw := strings.TrimSpace(q.Get("since")); raw != "" {
		since, err := parseSince(raw)
		if err != nil {
			return filter, err
		}
		filter.Since = since
	}
	filter.Limit, filter.Cursor, err = parsePage(r)
	return filter, err
}

func parsePage(r *http.Request) (int, *pagination.Cursor, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return 0, nil, err
	}
	cursor, err := pagination.ParseCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		return 0, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor").WithDetails(map[string]any{"field": "cursor"})
	}
	return limit, cursor, nil
}

func parseSince(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	return time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "since must be RFC3339 or YYYY-MM-DD").WithDetails(map[string]any{"field": "since"})
}
