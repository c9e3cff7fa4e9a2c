package cache

import (
	"context"
	"log/slog"

	"github.com/Zereker/vectorstore/pkg/log"
	"github.com/Zereker/vectorstore/pkg/vector"
	"github.com/Zereker/vectorstore/pkg/vector/monitor"
)

// Store serves repeated searches from a Cache.
//
// Every mutating call advances the index generation after the inner call
// returns, so a response computed before a completed write is never served
// to a search issued after it.
type Store struct {
	inner   vector.Store
	cache   Cache
	monitor *monitor.Monitor
	logger  *slog.Logger
}

var _ vector.Store = (*Store)(nil)

// Wrap returns inner fronted by c. m may be nil.
func Wrap(inner vector.Store, c Cache, m *monitor.Monitor) *Store {
	return &Store{
		inner:   inner,
		cache:   c,
		monitor: m,
		logger:  log.Logger("cache"),
	}
}

// Stats reports the underlying tier's counters.
func (s *Store) Stats() Stats {
	return s.cache.Stats()
}

func (s *Store) invalidate(ctx context.Context, index string) {
	if err := s.cache.Invalidate(ctx, index); err != nil {
		s.logger.Warn("cache invalidate failed", "index", index, "error", err)
	}
}

func (s *Store) hit() {
	if s.monitor != nil {
		s.monitor.RecordCacheHit()
	}
}

func (s *Store) miss() {
	if s.monitor != nil {
		s.monitor.RecordCacheMiss()
	}
}

func (s *Store) Search(ctx context.Context, req vector.SearchRequest) (*vector.SearchResponse, error) {
	gen, err := s.cache.Generation(ctx, req.Index)
	if err != nil {
		s.logger.Warn("cache generation lookup failed", "index", req.Index, "error", err)
		return s.inner.Search(ctx, req)
	}
	key, err := Key(req, gen)
	if err != nil {
		return nil, err
	}

	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache get failed", "index", req.Index, "error", err)
	}
	if ok {
		s.hit()
		cached.Cached = true
		return cached, nil
	}
	s.miss()

	resp, err := s.inner.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, resp); err != nil {
		s.logger.Warn("cache set failed", "index", req.Index, "error", err)
	}
	return resp, nil
}

func (s *Store) CreateIndex(ctx context.Context, cfg vector.IndexConfig) error {
	err := s.inner.CreateIndex(ctx, cfg)
	if err == nil {
		s.invalidate(ctx, cfg.Name)
	}
	return err
}

func (s *Store) DeleteIndex(ctx context.Context, name string) error {
	err := s.inner.DeleteIndex(ctx, name)
	s.invalidate(ctx, name)
	return err
}

// Upsert invalidates even on failure, since remote backends may have applied
// part of the batch.
func (s *Store) Upsert(ctx context.Context, index string, docs []vector.Document) ([]string, error) {
	ids, err := s.inner.Upsert(ctx, index, docs)
	s.invalidate(ctx, index)
	return ids, err
}

func (s *Store) UpdateDocument(ctx context.Context, index string, doc vector.Document) error {
	err := s.inner.UpdateDocument(ctx, index, doc)
	s.invalidate(ctx, index)
	return err
}

func (s *Store) DeleteDocuments(ctx context.Context, index string, ids []string) error {
	err := s.inner.DeleteDocuments(ctx, index, ids)
	s.invalidate(ctx, index)
	return err
}

func (s *Store) ListIndexes(ctx context.Context) ([]string, error) {
	return s.inner.ListIndexes(ctx)
}

func (s *Store) DescribeIndex(ctx context.Context, name string) (*vector.IndexInfo, error) {
	return s.inner.DescribeIndex(ctx, name)
}

func (s *Store) GetDocuments(ctx context.Context, index string, ids []string, includeVectors bool) ([]vector.Document, error) {
	return s.inner.GetDocuments(ctx, index, ids, includeVectors)
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.inner.HealthCheck(ctx)
}

func (s *Store) BackendInfo() vector.BackendInfo {
	return s.inner.BackendInfo()
}

// Close purges the cache and closes the inner store.
func (s *Store) Close() error {
	if err := s.cache.Purge(context.Background()); err != nil {
		s.logger.Warn("cache purge failed", "error", err)
	}
	return s.inner.Close()
}
