package vector

import "context"

// Store is implemented by every backend, in-memory or remote.
type Store interface {
	// CreateIndex fails with IndexAlreadyExists if the name is taken.
	CreateIndex(ctx context.Context, cfg IndexConfig) error

	// ListIndexes returns every index name in no particular order.
	ListIndexes(ctx context.Context) ([]string, error)

	// DescribeIndex fails with IndexNotFound if the index is absent.
	DescribeIndex(ctx context.Context, name string) (*IndexInfo, error)

	// DeleteIndex removes the index and its documents.
	DeleteIndex(ctx context.Context, name string) error

	// Upsert inserts or replaces documents by id and returns the affected ids.
	// A dimension mismatch anywhere in the batch fails the whole batch.
	// Remote backends that fail part way return the ids already applied
	// together with the error.
	Upsert(ctx context.Context, index string, docs []Document) ([]string, error)

	// Search returns the top-k documents by descending score.
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)

	// UpdateDocument replaces the supplied fields of an existing document.
	// A nil Vector, nil Metadata or empty Content keeps the stored value.
	UpdateDocument(ctx context.Context, index string, doc Document) error

	// DeleteDocuments ignores ids that do not exist.
	DeleteDocuments(ctx context.Context, index string, ids []string) error

	// GetDocuments omits ids that do not exist.
	GetDocuments(ctx context.Context, index string, ids []string, includeVectors bool) ([]Document, error)

	HealthCheck(ctx context.Context) error

	BackendInfo() BackendInfo

	Close() error
}
