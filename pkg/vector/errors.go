package vector

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind classifies a storage failure independent of the backend that raised it.
type Kind int

const (
	KindInternal Kind = iota
	KindIndexNotFound
	KindIndexAlreadyExists
	KindDocumentNotFound
	KindDimensionMismatch
	KindInvalidVector
	KindInvalidFilter
	KindInvalidConfig
	KindResourceLimitExceeded
	KindConnectionFailed
	KindTimeout
	KindRateLimited
	KindAuthenticationFailed
	KindPermissionDenied
	KindSerializationFailed
)

var kindNames = map[Kind]string{
	KindInternal:              "internal",
	KindIndexNotFound:         "index_not_found",
	KindIndexAlreadyExists:    "index_already_exists",
	KindDocumentNotFound:      "document_not_found",
	KindDimensionMismatch:     "dimension_mismatch",
	KindInvalidVector:         "invalid_vector",
	KindInvalidFilter:         "invalid_filter",
	KindInvalidConfig:         "invalid_config",
	KindResourceLimitExceeded: "resource_limit_exceeded",
	KindConnectionFailed:      "connection_failed",
	KindTimeout:               "timeout",
	KindRateLimited:           "rate_limited",
	KindAuthenticationFailed:  "authentication_failed",
	KindPermissionDenied:      "permission_denied",
	KindSerializationFailed:   "serialization_failed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the structured failure returned by every backend.
type Error struct {
	Kind     Kind
	Index    string
	ID       string
	Expected int
	Actual   int
	Msg      string
	Err      error
}

// Sentinels for errors.Is; they compare by Kind only.
var (
	ErrInternal              = &Error{Kind: KindInternal}
	ErrIndexNotFound         = &Error{Kind: KindIndexNotFound}
	ErrIndexAlreadyExists    = &Error{Kind: KindIndexAlreadyExists}
	ErrDocumentNotFound      = &Error{Kind: KindDocumentNotFound}
	ErrDimensionMismatch     = &Error{Kind: KindDimensionMismatch}
	ErrInvalidVector         = &Error{Kind: KindInvalidVector}
	ErrInvalidFilter         = &Error{Kind: KindInvalidFilter}
	ErrInvalidConfig         = &Error{Kind: KindInvalidConfig}
	ErrResourceLimitExceeded = &Error{Kind: KindResourceLimitExceeded}
	ErrConnectionFailed      = &Error{Kind: KindConnectionFailed}
	ErrTimeout               = &Error{Kind: KindTimeout}
	ErrRateLimited           = &Error{Kind: KindRateLimited}
	ErrAuthenticationFailed  = &Error{Kind: KindAuthenticationFailed}
	ErrPermissionDenied      = &Error{Kind: KindPermissionDenied}
	ErrSerializationFailed   = &Error{Kind: KindSerializationFailed}
)

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Index != "" {
		fmt.Fprintf(&b, ": index=%q", e.Index)
	}
	if e.ID != "" {
		fmt.Fprintf(&b, " id=%q", e.ID)
	}
	if e.Kind == KindDimensionMismatch {
		fmt.Fprintf(&b, " expected=%d actual=%d", e.Expected, e.Actual)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Retryable reports whether the failure is transient.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindConnectionFailed, KindTimeout, KindRateLimited:
		return true
	default:
		return false
	}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsRetryable reports whether err wraps a transient *Error.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}

func IndexNotFound(index string) error {
	return &Error{Kind: KindIndexNotFound, Index: index}
}

func IndexAlreadyExists(index string) error {
	return &Error{Kind: KindIndexAlreadyExists, Index: index}
}

func DocumentNotFound(index, id string) error {
	return &Error{Kind: KindDocumentNotFound, Index: index, ID: id}
}

// DimensionMismatch reports a vector whose length differs from the index dimension.
// id is empty for query vectors.
func DimensionMismatch(index, id string, expected, actual int) error {
	return &Error{Kind: KindDimensionMismatch, Index: index, ID: id, Expected: expected, Actual: actual}
}

func InvalidVector(index, id, msg string) error {
	return &Error{Kind: KindInvalidVector, Index: index, ID: id, Msg: msg}
}

func InvalidFilter(format string, args ...any) error {
	return &Error{Kind: KindInvalidFilter, Msg: fmt.Sprintf(format, args...)}
}

func InvalidConfig(format string, args ...any) error {
	return &Error{Kind: KindInvalidConfig, Msg: fmt.Sprintf(format, args...)}
}

func ResourceLimitExceeded(index, format string, args ...any) error {
	return &Error{Kind: KindResourceLimitExceeded, Index: index, Msg: fmt.Sprintf(format, args...)}
}

func SerializationFailed(index, id string, err error) error {
	return &Error{Kind: KindSerializationFailed, Index: index, ID: id, Err: err}
}

func Internal(index string, err error) error {
	return &Error{Kind: KindInternal, Index: index, Err: err}
}

// Wrap attaches a kind and index to a backend failure.
func Wrap(kind Kind, index string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Index: index, Err: err}
}
