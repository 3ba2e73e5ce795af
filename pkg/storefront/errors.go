package storefront

import (
	"fmt"
	"net/http"
	"regexp"

	pkgerrors "github.com/angelmondragon/catalogsync/pkg/errors"
)

const maxErrorBody = 400

var categoryLimitPattern = regexp.MustCompile(`(?i)maximum limit of \d+ allowed categories`)

// APIError carries the failed remote exchange.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("storefront %s %s -> %d body=%s", e.Method, e.Path, e.Status, truncate(e.Body, maxErrorBody))
}

// HTTPStatus returns the remote status code.
func (e *APIError) HTTPStatus() int { return e.Status }

// ResponseBody returns the raw remote body.
func (e *APIError) ResponseBody() string { return e.Body }

// IsCategoryLimit reports whether the platform rejected a create because the
// store reached its category quota.
func (e *APIError) IsCategoryLimit() bool {
	return e.Status == http.StatusUnprocessableEntity && categoryLimitPattern.MatchString(e.Body)
}

func classify(apiErr *APIError) error {
	details := map[string]any{
		"method": apiErr.Method,
		"path":   apiErr.Path,
		"status": apiErr.Status,
	}
	switch {
	case apiErr.Status == http.StatusNotFound:
		return pkgerrors.Wrap(pkgerrors.CodeRemoteNotFound, apiErr, "storefront resource not found").WithDetails(details)
	case apiErr.IsCategoryLimit():
		return pkgerrors.Wrap(pkgerrors.CodeCategoryLimit, apiErr, "storefront category limit reached").WithDetails(details)
	case apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= http.StatusInternalServerError:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, apiErr, "storefront unavailable").WithDetails(details)
	default:
		details["body"] = truncate(apiErr.Body, maxErrorBody)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, apiErr, "storefront rejected request").
			WithDetails(details).
			WithRetryable(false)
	}
}

// IsNotFound reports whether err is a remote 404.
func IsNotFound(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeRemoteNotFound)
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
