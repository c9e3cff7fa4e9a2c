package opensearch

import (
	"net/http"

	"github.com/opensearch-project/opensearch-go/v4"
	"github.com/pkg/errors"

	"github.com/Zereker/vectorstore/pkg/vector"
	"github.com/Zereker/vectorstore/pkg/vector/remote"
)

// mapError converts a client failure into a *vector.Error.
func mapError(index string, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := remote.ContextError(index, err); ctxErr != nil {
		return ctxErr
	}

	var structErr *opensearch.StructError
	if errors.As(err, &structErr) {
		return vector.Wrap(kindFor(structErr.Status, structErr.Err.Type), index, err)
	}
	var stringErr *opensearch.StringError
	if errors.As(err, &stringErr) {
		return vector.Wrap(kindFor(stringErr.Status, ""), index, err)
	}

	// transport failures never reached the cluster
	return vector.Wrap(vector.KindConnectionFailed, index, err)
}

func kindFor(status int, errType string) vector.Kind {
	switch errType {
	case "index_not_found_exception":
		return vector.KindIndexNotFound
	case "resource_already_exists_exception":
		return vector.KindIndexAlreadyExists
	case "document_missing_exception":
		return vector.KindDocumentNotFound
	case "mapper_parsing_exception", "illegal_argument_exception", "parsing_exception":
		return vector.KindSerializationFailed
	case "es_rejected_execution_exception", "circuit_breaking_exception":
		return vector.KindRateLimited
	}
	if status == http.StatusBadRequest {
		return vector.KindInternal
	}
	return remote.KindForStatus(status)
}
