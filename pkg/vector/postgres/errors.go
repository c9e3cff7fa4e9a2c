package postgres

import (
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"

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

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return vector.Wrap(kindForCode(pgErr.Code), index, err)
	}
	if pgconn.Timeout(err) {
		return vector.Wrap(vector.KindTimeout, index, err)
	}
	return vector.Wrap(vector.KindConnectionFailed, index, err)
}

// kindForCode maps a SQLSTATE.
func kindForCode(code string) vector.Kind {
	switch code {
	case "42P01": // undefined_table
		return vector.KindIndexNotFound
	case "42P07", "23505": // duplicate_table, unique_violation
		return vector.KindIndexAlreadyExists
	case "28P01", "28000":
		return vector.KindAuthenticationFailed
	case "42501":
		return vector.KindPermissionDenied
	case "53300", "53400":
		return vector.KindRateLimited
	case "57014":
		return vector.KindTimeout
	case "40001", "40P01":
		return vector.KindConnectionFailed
	}
	switch {
	case strings.HasPrefix(code, "08"), strings.HasPrefix(code, "57P"):
		return vector.KindConnectionFailed
	case strings.HasPrefix(code, "22"):
		return vector.KindSerializationFailed
	default:
		return vector.KindInternal
	}
}
