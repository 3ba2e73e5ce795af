package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/angelmondragon/catalogsync/api/responses"
	pkgerrors "github.com/angelmondragon/catalogsync/pkg/errors"
	"github.com/angelmondragon/catalogsync/pkg/logger"
)

// AdminKeyHeader carries the shared operator key.
const AdminKeyHeader = "X-Admin-Key"

// AdminKey rejects requests whose X-Admin-Key does not match key.
func AdminKey(key string, logg *logger.Logger) func(http.Handler) http.Handler {
	expected := []byte(strings.TrimSpace(key))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := []byte(strings.TrimSpace(r.Header.Get(AdminKeyHeader)))
			if len(expected) == 0 || subtle.ConstantTimeCompare(provided, expected) != 1 {
				ctx := r.Context()
				if logg != nil {
					ctx = logg.WithField(ctx, "client_ip", clientIP(r))
				}
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "admin key required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
