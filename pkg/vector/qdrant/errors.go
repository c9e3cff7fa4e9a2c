package qdrant

import (
	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Zereker/vectorstore/pkg/vector"
	"github.com/Zereker/vectorstore/pkg/vector/remote"
)

func mapError(index string, err error) error {
	if err == nil {
		return nil
	}
	var verr *vector.Error
	if errors.As(err, &verr) {
		return err
	}
	if ctxErr := remote.ContextError(index, err); ctxErr != nil {
		return ctxErr
	}

	st, ok := status.FromError(errors.Cause(err))
	if !ok {
		return vector.Wrap(vector.KindConnectionFailed, index, err)
	}
	return vector.Wrap(kindForCode(st.Code()), index, err)
}

func kindForCode(code codes.Code) vector.Kind {
	switch code {
	case codes.NotFound:
		return vector.KindIndexNotFound
	case codes.AlreadyExists:
		return vector.KindIndexAlreadyExists
	case codes.Unauthenticated:
		return vector.KindAuthenticationFailed
	case codes.PermissionDenied:
		return vector.KindPermissionDenied
	case codes.ResourceExhausted:
		return vector.KindRateLimited
	case codes.DeadlineExceeded:
		return vector.KindTimeout
	case codes.Unavailable, codes.Aborted:
		return vector.KindConnectionFailed
	case codes.InvalidArgument:
		return vector.KindSerializationFailed
	default:
		return vector.KindInternal
	}
}
