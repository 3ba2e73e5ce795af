package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/catalogsync/api/responses"
	storefrontwebhook "github.com/angelmondragon/catalogsync/internal/webhooks/storefront"
	pkgerrors "github.com/angelmondragon/catalogsync/pkg/errors"
	"github.com/angelmondragon/catalogsync/pkg/logger"
)

const maxWebhookBody = 1 << 20

type StorefrontWebhookService interface {
	Handle(ctx context.Context, raw []byte, signature string) (*storefrontwebhook.Result, error)
}

// StorefrontWebhook receives platform deliveries. The body is read raw so the
// signature is checked against the exact bytes sent.
func StorefrontWebhook(svc StorefrontWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unable to read webhook body"))
			return
		}
		res, err := svc.Handle(r.Context(), raw, storefrontwebhook.SignatureFromHeader(r.Header))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}
