package monitor

import (
	"context"
	"time"

	"github.com/Zereker/vectorstore/pkg/vector"
)

type store struct {
	inner vector.Store
	m     *Monitor
}

// Wrap records every call made through the returned store on m.
func Wrap(inner vector.Store, m *Monitor) vector.Store {
	return &store{inner: inner, m: m}
}

func (s *store) observe(op string, start time.Time, err error) {
	s.m.Record(op, time.Since(start), err)
}

func (s *store) CreateIndex(ctx context.Context, cfg vector.IndexConfig) error {
	start := time.Now()
	err := s.inner.CreateIndex(ctx, cfg)
	s.observe(OpCreateIndex, start, err)
	return err
}

func (s *store) ListIndexes(ctx context.Context) ([]string, error) {
	start := time.Now()
	names, err := s.inner.ListIndexes(ctx)
	s.observe(OpListIndexes, start, err)
	return names, err
}

func (s *store) DescribeIndex(ctx context.Context, name string) (*vector.IndexInfo, error) {
	start := time.Now()
	info, err := s.inner.DescribeIndex(ctx, name)
	s.observe(OpDescribeIndex, start, err)
	return info, err
}

func (s *store) DeleteIndex(ctx context.Context, name string) error {
	start := time.Now()
	err := s.inner.DeleteIndex(ctx, name)
	s.observe(OpDeleteIndex, start, err)
	return err
}

func (s *store) Upsert(ctx context.Context, index string, docs []vector.Document) ([]string, error) {
	start := time.Now()
	ids, err := s.inner.Upsert(ctx, index, docs)
	s.observe(OpUpsert, start, err)
	return ids, err
}

func (s *store) Search(ctx context.Context, req vector.SearchRequest) (*vector.SearchResponse, error) {
	start := time.Now()
	resp, err := s.inner.Search(ctx, req)
	s.observe(OpSearch, start, err)
	return resp, err
}

func (s *store) UpdateDocument(ctx context.Context, index string, doc vector.Document) error {
	start := time.Now()
	err := s.inner.UpdateDocument(ctx, index, doc)
	s.observe(OpUpdateDocument, start, err)
	return err
}

func (s *store) DeleteDocuments(ctx context.Context, index string, ids []string) error {
	start := time.Now()
	err := s.inner.DeleteDocuments(ctx, index, ids)
	s.observe(OpDeleteDocuments, start, err)
	return err
}

func (s *store) GetDocuments(ctx context.Context, index string, ids []string, includeVectors bool) ([]vector.Document, error) {
	start := time.Now()
	docs, err := s.inner.GetDocuments(ctx, index, ids, includeVectors)
	s.observe(OpGetDocuments, start, err)
	return docs, err
}

func (s *store) HealthCheck(ctx context.Context) error {
	start := time.Now()
	err := s.inner.HealthCheck(ctx)
	s.observe(OpHealthCheck, start, err)
	return err
}

func (s *store) BackendInfo() vector.BackendInfo {
	return s.inner.BackendInfo()
}

func (s *store) Close() error {
	return s.inner.Close()
}
