// Package memory is the in-process reference implementation of vector.Store.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Zereker/vectorstore/pkg/log"
	"github.com/Zereker/vectorstore/pkg/vector"
)

var _ vector.Store = (*Store)(nil)

// Stats summarizes the engine.
type Stats struct {
	Indexes          int   `json:"indexes"`
	TotalDocuments   int64 `json:"total_documents"`
	MemoryUsageBytes int64 `json:"memory_usage_bytes"`
	Created          int64 `json:"created"`
	Replaced         int64 `json:"replaced"`
	Deleted          int64 `json:"deleted"`
}

// Store keeps indexes in process memory.
//
// The registry lock is held only to add, remove or look up an index. Data
// access goes through the per-index lock, so indexes never block each other.
type Store struct {
	config Config
	logger *slog.Logger

	mu      sync.RWMutex
	indexes map[string]*index

	created  atomic.Int64
	replaced atomic.Int64
	deleted  atomic.Int64

	pressureMu sync.Mutex
	onPressure func(usageBytes int64)
}

// New creates an empty engine.
func New(cfg Config) *Store {
	return &Store{
		config:  cfg,
		logger:  log.Logger("memory"),
		indexes: make(map[string]*index),
	}
}

// OnMemoryPressure registers fn to run from Cleanup when usage exceeds the threshold.
func (s *Store) OnMemoryPressure(fn func(usageBytes int64)) {
	s.pressureMu.Lock()
	defer s.pressureMu.Unlock()
	s.onPressure = fn
}

func (s *Store) lookup(name string) (*index, error) {
	s.mu.RLock()
	idx, ok := s.indexes[name]
	s.mu.RUnlock()
	if !ok {
		return nil, vector.IndexNotFound(name)
	}
	return idx, nil
}

// CreateIndex registers a new empty index.
func (s *Store) CreateIndex(ctx context.Context, cfg vector.IndexConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	var opts indexOptions
	if err := vector.DecodeOptions(cfg.Options, &opts); err != nil {
		return err
	}
	maxDocs := s.config.MaxDocumentsPerIndex
	if opts.MaxDocuments > 0 && (maxDocs == 0 || opts.MaxDocuments < maxDocs) {
		maxDocs = opts.MaxDocuments
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.indexes[cfg.Name]; ok {
		return vector.IndexAlreadyExists(cfg.Name)
	}
	s.indexes[cfg.Name] = newIndex(cfg, s.config.InitialCapacity, maxDocs)

	s.logger.Info("index created", "index", cfg.Name, "dimension", cfg.Dimension, "metric", cfg.Metric)
	return nil
}

// ListIndexes returns the registered names.
func (s *Store) ListIndexes(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.indexes))
	for name := range s.indexes {
		names = append(names, name)
	}
	return names, nil
}

// DescribeIndex reports dimension, metric, count and size.
func (s *Store) DescribeIndex(ctx context.Context, name string) (*vector.IndexInfo, error) {
	idx, err := s.lookup(name)
	if err != nil {
		return nil, err
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.dropped {
		return nil, vector.IndexNotFound(name)
	}
	return idx.info(), nil
}

// DeleteIndex drops the index. Writers still holding it observe IndexNotFound.
func (s *Store) DeleteIndex(ctx context.Context, name string) error {
	s.mu.Lock()
	idx, ok := s.indexes[name]
	if !ok {
		s.mu.Unlock()
		return vector.IndexNotFound(name)
	}
	delete(s.indexes, name)
	s.mu.Unlock()

	idx.mu.Lock()
	idx.dropped = true
	count := len(idx.vectors)
	idx.mu.Unlock()

	s.deleted.Add(int64(count))
	s.logger.Info("index deleted", "index", name, "documents", count)
	return nil
}

// Upsert validates the whole batch, then applies it under the index write lock.
func (s *Store) Upsert(ctx context.Context, name string, docs []vector.Document) ([]string, error) {
	idx, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.dropped {
		return nil, vector.IndexNotFound(name)
	}

	batch := make([]vector.Document, len(docs))
	copy(batch, docs)
	ids, err := vector.PrepareBatch(name, idx.dimension, batch)
	if err != nil {
		return nil, err
	}

	if idx.maxDocs > 0 {
		fresh := make(map[string]struct{})
		for _, id := range ids {
			if _, ok := idx.vectors[id]; !ok {
				fresh[id] = struct{}{}
			}
		}
		if total := len(idx.vectors) + len(fresh); total > idx.maxDocs {
			return nil, vector.ResourceLimitExceeded(name, "index would hold %d documents, limit is %d", total, idx.maxDocs)
		}
	}

	var created, replaced int64
	for _, doc := range batch {
		if idx.put(doc) {
			created++
		} else {
			replaced++
		}
	}
	idx.updatedAt = time.Now()

	s.created.Add(created)
	s.replaced.Add(replaced)
	s.logger.Debug("upsert", "index", name, "created", created, "replaced", replaced)
	return ids, nil
}

// Search runs an exhaustive scan under the index read lock.
func (s *Store) Search(ctx context.Context, req vector.SearchRequest) (*vector.SearchResponse, error) {
	start := time.Now()

	idx, err := s.lookup(req.Index)
	if err != nil {
		return nil, err
	}
	matcher, err := vector.CompileFilter(req.Filter)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.dropped {
		return nil, vector.IndexNotFound(req.Index)
	}

	if err := vector.CheckQueryVector(req.Index, idx.dimension, req.Vector); err != nil {
		return nil, err
	}
	metric, err := req.ResolveMetric(idx.metric)
	if err != nil {
		return nil, err
	}

	results, err := idx.search(req, metric, matcher)
	if err != nil {
		return nil, err
	}
	return &vector.SearchResponse{
		Results:       results,
		ExecutionTime: time.Since(start),
	}, nil
}

// UpdateDocument replaces the supplied fields of an existing document.
func (s *Store) UpdateDocument(ctx context.Context, name string, doc vector.Document) error {
	idx, err := s.lookup(name)
	if err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.dropped {
		return vector.IndexNotFound(name)
	}

	current, ok := idx.document(doc.ID, true)
	if !ok {
		return vector.DocumentNotFound(name, doc.ID)
	}
	if doc.Vector != nil {
		if err := vector.CheckDocumentVector(name, idx.dimension, doc); err != nil {
			return err
		}
		current.Vector = doc.Vector
	}
	if doc.Metadata != nil {
		current.Metadata = doc.Metadata
	}
	if doc.Content != "" {
		current.Content = doc.Content
	}

	idx.put(current)
	idx.updatedAt = time.Now()
	s.replaced.Add(1)
	return nil
}

// DeleteDocuments removes ids, ignoring unknown ones.
func (s *Store) DeleteDocuments(ctx context.Context, name string, ids []string) error {
	idx, err := s.lookup(name)
	if err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.dropped {
		return vector.IndexNotFound(name)
	}

	var removed int64
	for _, id := range ids {
		if idx.remove(id) {
			removed++
		}
	}
	if removed > 0 {
		idx.updatedAt = time.Now()
	}
	s.deleted.Add(removed)
	return nil
}

// GetDocuments returns the stored documents in request order, skipping unknown ids.
func (s *Store) GetDocuments(ctx context.Context, name string, ids []string, includeVectors bool) ([]vector.Document, error) {
	idx, err := s.lookup(name)
	if err != nil {
		return nil, err
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.dropped {
		return nil, vector.IndexNotFound(name)
	}

	docs := make([]vector.Document, 0, len(ids))
	for _, id := range ids {
		if doc, ok := idx.document(id, includeVectors); ok {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// HealthCheck confirms every index lock can be taken and memory stays under
// twice the configured threshold.
func (s *Store) HealthCheck(ctx context.Context) error {
	usage := s.MemoryUsage()
	if s.config.MemoryThresholdMB > 0 {
		limit := int64(s.config.MemoryThresholdMB) * 2 << 20
		if usage > limit {
			return vector.ResourceLimitExceeded("", "memory usage %d MB exceeds critical threshold %d MB",
				usage>>20, limit>>20)
		}
	}
	return ctx.Err()
}

// BackendInfo describes the engine.
func (s *Store) BackendInfo() vector.BackendInfo {
	md := vector.Metadata{
		"initial_capacity": vector.Int(int64(s.config.InitialCapacity)),
	}
	if s.config.MaxDocumentsPerIndex > 0 {
		md["max_documents_per_index"] = vector.Int(int64(s.config.MaxDocumentsPerIndex))
	}
	if s.config.MemoryThresholdMB > 0 {
		md["memory_threshold_mb"] = vector.Int(int64(s.config.MemoryThresholdMB))
	}
	return vector.BackendInfo{
		Name:    "memory",
		Version: vector.Version,
		Features: []string{
			vector.FeatureHighPerformance,
			vector.FeatureThreadSafe,
			vector.FeatureComplexFiltering,
			vector.FeatureMultipleMetrics,
			vector.FeatureNullMetadata,
			vector.FeatureBatchOperations,
		},
		Metadata: md,
	}
}

// Close drops every index.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, idx := range s.indexes {
		idx.mu.Lock()
		idx.dropped = true
		idx.mu.Unlock()
		delete(s.indexes, name)
	}
	return nil
}

func (s *Store) snapshot() []*index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*index, 0, len(s.indexes))
	for _, idx := range s.indexes {
		out = append(out, idx)
	}
	return out
}

// MemoryUsage sums the size estimates of every index.
func (s *Store) MemoryUsage() int64 {
	var total int64
	for _, idx := range s.snapshot() {
		idx.mu.RLock()
		total += idx.sizeBytes
		idx.mu.RUnlock()
	}
	return total
}

// Stats reports engine-wide counters.
func (s *Store) Stats() Stats {
	st := Stats{
		Created:  s.created.Load(),
		Replaced: s.replaced.Load(),
		Deleted:  s.deleted.Load(),
	}
	for _, idx := range s.snapshot() {
		idx.mu.RLock()
		st.Indexes++
		st.TotalDocuments += int64(len(idx.vectors))
		st.MemoryUsageBytes += idx.sizeBytes
		idx.mu.RUnlock()
	}
	return st
}

// Cleanup runs the memory pressure handler when usage exceeds the threshold.
// It reports whether the handler ran.
func (s *Store) Cleanup(ctx context.Context) bool {
	if s.config.MemoryThresholdMB <= 0 {
		return false
	}
	usage := s.MemoryUsage()
	if usage <= int64(s.config.MemoryThresholdMB)<<20 {
		return false
	}

	s.pressureMu.Lock()
	fn := s.onPressure
	s.pressureMu.Unlock()
	if fn == nil {
		return false
	}

	s.logger.Warn("memory threshold exceeded", "usage_bytes", usage, "threshold_mb", s.config.MemoryThresholdMB)
	fn(usage)
	return true
}
