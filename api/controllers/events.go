package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/catalogsync/api/responses"
	"github.com/angelmondragon/catalogsync/api/validators"
	"github.com/angelmondragon/catalogsync/internal/ledger"
	"github.com/angelmondragon/catalogsync/pkg/db/models"
	"github.com/angelmondragon/catalogsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/catalogsync/pkg/errors"
	"github.com/angelmondragon/catalogsync/pkg/logger"
	"github.com/angelmondragon/catalogsync/pkg/pagination"
)

type EventLister interface {
	List(ctx context.Context, filter ledger.Filter) ([]models.StorefrontEvent, *pagination.Cursor, error)
}

// AdminEvents lists the storefront audit trail, newest first.
func AdminEvents(svc EventLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "event ledger unavailable"))
			return
		}
		maxID := int(^uint32(0) >> 1)
		productID, err := validators.ParseQueryInt(r, "remote_product_id", 0, 0, maxID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		localID, err := validators.ParseQueryInt(r, "local_id", 0, 0, maxID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, cursor, err := parsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		events, next, err := svc.List(r.Context(), ledger.Filter{
			Event:           enums.StorefrontEventName(strings.TrimSpace(r.URL.Query().Get("event"))),
			RemoteProductID: int64(productID),
			LocalID:         int64(localID),
			Limit:           limit,
			Cursor:          cursor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"events":      events,
			"count":       len(events),
			"next_cursor": pagination.EncodeCursor(next),
		})
	}
}
