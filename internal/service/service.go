// Package service is the single entry point the HTTP, MCP and Kafka
// surfaces share. It adds text embedding and async writes on top of a
// vector.Store.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/Zereker/vectorstore/internal/domain"
	"github.com/Zereker/vectorstore/pkg/embedding"
	"github.com/Zereker/vectorstore/pkg/log"
	"github.com/Zereker/vectorstore/pkg/mq"
	"github.com/Zereker/vectorstore/pkg/vector"
	"github.com/Zereker/vectorstore/pkg/vector/cache"
	"github.com/Zereker/vectorstore/pkg/vector/monitor"
)

// Options are the optional collaborators of a Service.
type Options struct {
	Embedder embedding.Embedder
	Queue    mq.MessageQueue
	Topic    string
	Monitor  *monitor.Monitor
	Cache    *cache.Store
}

// Service 统一的向量操作入口
type Service struct {
	logger   *slog.Logger
	store    vector.Store
	embedder embedding.Embedder
	queue    mq.MessageQueue
	topic    string
	monitor  *monitor.Monitor
	cache    *cache.Store
}

// New creates a Service over store, usually the cache/monitor-wrapped backend.
func New(store vector.Store, opts Options) *Service {
	return &Service{
		logger:   log.Logger("service"),
		store:    store,
		embedder: opts.Embedder,
		queue:    opts.Queue,
		topic:    opts.Topic,
		monitor:  opts.Monitor,
		cache:    opts.Cache,
	}
}

func (s *Service) CreateIndex(ctx context.Context, req *domain.CreateIndexRequest) error {
	s.logger.Info("create index", "index", req.Name, "dimension", req.Dimension, "metric", req.Metric)
	return s.store.CreateIndex(ctx, req.IndexConfig())
}

// ListIndexes returns index names sorted.
func (s *Service) ListIndexes(ctx context.Context) ([]string, error) {
	names, err := s.store.ListIndexes(ctx)
	if err != nil {
		return nil, err
	}
	slices.Sort(names)
	return names, nil
}

func (s *Service) DescribeIndex(ctx context.Context, name string) (*vector.IndexInfo, error) {
	return s.store.DescribeIndex(ctx, name)
}

func (s *Service) DeleteIndex(ctx context.Context, name string) error {
	s.logger.Info("delete index", "index", name)
	return s.store.DeleteIndex(ctx, name)
}

// embedMissing fills the vector of every document that has content but no
// vector.
func (s *Service) embedMissing(ctx context.Context, index string, docs []vector.Document) error {
	var (
		texts []string
		at    []int
	)
	for i := range docs {
		if docs[i].Vector == nil && docs[i].Content != "" {
			texts = append(texts, docs[i].Content)
			at = append(at, i)
		}
	}
	if len(texts) == 0 || s.embedder == nil {
		return nil
	}

	vecs, err := s.embed(ctx, index, texts)
	if err != nil {
		return err
	}
	for j, i := range at {
		docs[i].Vector = vecs[j]
	}
	return nil
}

func (s *Service) embed(ctx context.Context, index string, texts []string) ([]vector.Vector, error) {
	start := time.Now()
	vecs, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		var verr *vector.Error
		if errors.As(err, &verr) {
			return nil, err
		}
		return nil, vector.Internal(index, errors.WithMessage(err, "embed"))
	}
	s.logger.Debug("embedded", "index", index, "count", len(texts), "latency", time.Since(start))
	return vecs, nil
}

// Upsert embeds documents lacking a vector, then writes them. Documents
// without a vector and without an embedder fail with InvalidVector.
func (s *Service) Upsert(ctx context.Context, index string, docs []vector.Document) (*domain.UpsertResponse, error) {
	batch := make([]vector.Document, len(docs))
	copy(batch, docs)
	if err := s.embedMissing(ctx, index, batch); err != nil {
		return nil, err
	}

	ids, err := s.store.Upsert(ctx, index, batch)
	if err != nil {
		s.logger.Warn("upsert failed", "index", index, "documents", len(docs), "applied", len(ids), "error", err)
		return &domain.UpsertResponse{IDs: ids}, err
	}
	s.logger.Info("upsert completed", "index", index, "documents", len(ids))
	return &domain.UpsertResponse{IDs: ids}, nil
}

// UpsertAsync assigns ids and publishes the write to the command topic.
func (s *Service) UpsertAsync(ctx context.Context, index string, docs []vector.Document) (*domain.UpsertResponse, error) {
	if s.queue == nil {
		return nil, vector.InvalidConfig("async writes need kafka to be enabled")
	}
	if len(docs) == 0 {
		return &domain.UpsertResponse{IDs: []string{}, Async: true}, nil
	}

	batch := make([]vector.Document, len(docs))
	ids := make([]string, len(docs))
	for i, doc := range docs {
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		batch[i] = doc
		ids[i] = doc.ID
	}

	if err := s.Publish(ctx, domain.Command{Op: domain.OpUpsert, Index: index, Documents: batch}); err != nil {
		return nil, err
	}
	return &domain.UpsertResponse{IDs: ids, Async: true}, nil
}

// Publish sends cmd to the command topic.
func (s *Service) Publish(ctx context.Context, cmd domain.Command) error {
	if s.queue == nil {
		return vector.InvalidConfig("async writes need kafka to be enabled")
	}
	if err := cmd.Validate(); err != nil {
		return vector.InvalidConfig("command: %v", err)
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return vector.SerializationFailed(cmd.Index, "", err)
	}
	if err := s.queue.Publish(ctx, s.topic, data); err != nil {
		return vector.Wrap(vector.KindConnectionFailed, cmd.Index, err)
	}
	s.logger.Info("command published", "op", cmd.Op, "index", cmd.Index, "topic", s.topic)
	return nil
}

// Search embeds req.Text when no vector is given.
func (s *Service) Search(ctx context.Context, req vector.SearchRequest) (*vector.SearchResponse, error) {
	if len(req.Vector) == 0 && req.Text != "" {
		if s.embedder == nil {
			return nil, vector.InvalidVector(req.Index, "", "text queries need an embedder")
		}
		vecs, err := s.embed(ctx, req.Index, []string{req.Text})
		if err != nil {
			return nil, err
		}
		req.Vector = vecs[0]
	}

	resp, err := s.store.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("search completed", "index", req.Index, "results", len(resp.Results), "cached", resp.Cached)
	return resp, nil
}

// UpdateDocument re-embeds new content when no vector accompanies it.
func (s *Service) UpdateDocument(ctx context.Context, index string, doc vector.Document) error {
	docs := []vector.Document{doc}
	if err := s.embedMissing(ctx, index, docs); err != nil {
		return err
	}
	return s.store.UpdateDocument(ctx, index, docs[0])
}

func (s *Service) GetDocuments(ctx context.Context, index string, ids []string, includeVectors bool) ([]vector.Document, error) {
	return s.store.GetDocuments(ctx, index, ids, includeVectors)
}

func (s *Service) DeleteDocuments(ctx context.Context, index string, ids []string) error {
	s.logger.Info("delete documents", "index", index, "count", len(ids))
	return s.store.DeleteDocuments(ctx, index, ids)
}

// Apply executes a command received from the queue.
func (s *Service) Apply(ctx context.Context, cmd domain.Command) error {
	if err := cmd.Validate(); err != nil {
		return vector.InvalidConfig("command: %v", err)
	}
	switch cmd.Op {
	case domain.OpUpsert:
		_, err := s.Upsert(ctx, cmd.Index, cmd.Documents)
		return err
	case domain.OpDelete:
		return s.DeleteDocuments(ctx, cmd.Index, cmd.IDs)
	default:
		return s.UpdateDocument(ctx, cmd.Index, cmd.Documents[0])
	}
}

func (s *Service) HealthCheck(ctx context.Context) error {
	return s.store.HealthCheck(ctx)
}

func (s *Service) BackendInfo() vector.BackendInfo {
	return s.store.BackendInfo()
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Stats reports monitor and cache counters.
func (s *Service) Stats() domain.StatsResponse {
	resp := domain.StatsResponse{
		Backend:    s.store.BackendInfo().Name,
		Operations: map[string]domain.OperationStats{},
	}
	if s.monitor != nil {
		snap := s.monitor.Snapshot()
		resp.UptimeSeconds = snap.Uptime.Seconds()
		resp.TotalOperations = snap.TotalOperations()
		resp.OpsPerSecond = snap.OpsPerSecond
		resp.CacheHitRate = snap.CacheHitRate()
		for name, op := range snap.Operations {
			resp.Operations[name] = domain.OperationStats{
				Count:        op.Count,
				Errors:       op.Errors,
				AvgLatencyMs: ms(op.AvgLatency()),
				MinLatencyMs: ms(op.MinLatency),
				MaxLatencyMs: ms(op.MaxLatency),
			}
		}
	}
	if s.cache != nil {
		st := s.cache.Stats()
		resp.Cache = &domain.CacheStats{
			Hits:      st.Hits,
			Misses:    st.Misses,
			Evictions: st.Evictions,
			Entries:   st.Entries,
			HitRate:   st.HitRate(),
		}
	}
	return resp
}

// Close closes the store.
func (s *Service) Close() error {
	return s.store.Close()
}
