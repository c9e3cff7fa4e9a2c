package remote

import (
	"context"
	"net/http"

	"github.com/pkg/errors"

	"github.com/Zereker/vectorstore/pkg/vector"
)

// KindForStatus maps an HTTP status returned by a backend to an error kind.
func KindForStatus(status int) vector.Kind {
	switch {
	case status == http.StatusNotFound:
		return vector.KindIndexNotFound
	case status == http.StatusConflict:
		return vector.KindIndexAlreadyExists
	case status == http.StatusUnauthorized:
		return vector.KindAuthenticationFailed
	case status == http.StatusForbidden:
		return vector.KindPermissionDenied
	case status == http.StatusTooManyRequests:
		return vector.KindRateLimited
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return vector.KindTimeout
	case status >= 500:
		return vector.KindConnectionFailed
	case status == http.StatusBadRequest:
		return vector.KindSerializationFailed
	default:
		return vector.KindInternal
	}
}

// ContextError maps context cancellation and deadline errors. It returns nil
// when err is neither.
func ContextError(index string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return vector.Wrap(vector.KindTimeout, index, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return nil
	}
}
