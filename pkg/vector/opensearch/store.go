// Package opensearch stores vector indexes as OpenSearch k-NN indices.
package opensearch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/opensearch-project/opensearch-go/v4"
	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"
	"github.com/pkg/errors"

	"github.com/Zereker/vectorstore/pkg/log"
	"github.com/Zereker/vectorstore/pkg/vector"
	"github.com/Zereker/vectorstore/pkg/vector/remote"
)

const (
	embeddingField = "embedding"
	metaKey        = "vectorstore"
)

var _ vector.Store = (*Store)(nil)

// indexMeta is kept in the index mapping's _meta.
type indexMeta struct {
	Dimension int             `json:"dimension"`
	Metric    vector.Metric   `json:"metric"`
	CreatedAt time.Time       `json:"created_at"`
	Options   vector.Metadata `json:"options,omitempty"`
}

// source is the stored document body.
type source struct {
	ID        string          `json:"doc_id"`
	Content   string          `json:"content,omitempty"`
	Embedding vector.Vector   `json:"embedding,omitempty"`
	Metadata  vector.Metadata `json:"metadata,omitempty"`
}

func (s source) document() vector.Document {
	return vector.Document{ID: s.ID, Content: s.Content, Vector: s.Embedding, Metadata: s.Metadata}
}

// Store implements vector.Store on OpenSearch.
type Store struct {
	client *opensearchapi.Client
	config Config
	exec   *remote.Executor
	logger *slog.Logger

	mu    sync.RWMutex
	metas map[string]*indexMeta
}

// New connects to the cluster. cfg must be validated.
func New(cfg Config) (*Store, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.TLSSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	clientCfg := opensearchapi.Config{
		Client: opensearch.Config{
			Addresses: cfg.addresses(),
			Username:  cfg.Auth.Username,
			Password:  cfg.Auth.Password,
			Transport: transport,
		},
	}
	if cfg.Auth.Token != "" {
		clientCfg.Client.Header = http.Header{"Authorization": []string{"Bearer " + cfg.Auth.Token}}
	}

	client, err := opensearchapi.NewClient(clientCfg)
	if err != nil {
		return nil, vector.Wrap(vector.KindConnectionFailed, "", errors.WithMessage(err, "create opensearch client"))
	}

	return &Store{
		client: client,
		config: cfg,
		exec:   remote.NewExecutor("opensearch", cfg.Config),
		logger: log.Logger("opensearch"),
		metas:  make(map[string]*indexMeta),
	}, nil
}

func spaceType(m vector.Metric) string {
	switch m {
	case vector.Euclidean:
		return "l2"
	case vector.DotProduct:
		return "innerproduct"
	default:
		return "cosinesimil"
	}
}

// metadataTemplates maps strings to keyword and every JSON number to double,
// so range clauses compare at the precision the matcher uses.
func metadataTemplates() []map[string]any {
	template := func(jsonType, fieldType string) map[string]any {
		return map[string]any{
			"path_match":         "metadata.*",
			"match_mapping_type": jsonType,
			"mapping":            map[string]any{"type": fieldType},
		}
	}
	return []map[string]any{
		{"metadata_strings": template("string", "keyword")},
		{"metadata_numbers": template("long", "double")},
		{"metadata_doubles": template("double", "double")},
	}
}

func (s *Store) indexBody(cfg vector.IndexConfig, meta indexMeta) map[string]any {
	return map[string]any{
		"settings": map[string]any{
			"index": map[string]any{
				"knn":                true,
				"number_of_shards":   s.config.Shards,
				"number_of_replicas": s.config.Replicas,
			},
		},
		"mappings": map[string]any{
			"_meta": map[string]any{metaKey: meta},
			"dynamic_templates": metadataTemplates(),
			"properties": map[string]any{
				"doc_id":  map[string]any{"type": "keyword"},
				"content": map[string]any{"type": "text"},
				embeddingField: map[string]any{
					"type":      "knn_vector",
					"dimension": cfg.Dimension,
					"method": map[string]any{
						"name":       "hnsw",
						"space_type": spaceType(cfg.Metric),
						"engine":     s.config.Engine,
					},
				},
				"metadata": map[string]any{"type": "object", "dynamic": true},
			},
		},
	}
}

func (s *Store) CreateIndex(ctx context.Context, cfg vector.IndexConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	meta := indexMeta{
		Dimension: cfg.Dimension,
		Metric:    cfg.Metric,
		CreatedAt: time.Now().UTC(),
		Options:   cfg.Options,
	}
	body, err := json.Marshal(s.indexBody(cfg, meta))
	if err != nil {
		return vector.SerializationFailed(cfg.Name, "", err)
	}

	err = s.exec.Do(ctx, "create_index", func(ctx context.Context) error {
		_, err := s.client.Indices.Create(ctx, opensearchapi.IndicesCreateReq{
			Index: cfg.Name,
			Body:  bytes.NewReader(body),
		})
		return mapError(cfg.Name, err)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.metas[cfg.Name] = &meta
	s.mu.Unlock()

	s.logger.Info("index created", "index", cfg.Name, "dimension", cfg.Dimension, "metric", cfg.Metric)
	return nil
}

type mappings struct {
	Meta map[string]json.RawMessage `json:"_meta"`
}

func parseMeta(raw json.RawMessage) (*indexMeta, bool) {
	var m mappings
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false
	}
	data, ok := m.Meta[metaKey]
	if !ok {
		return nil, false
	}
	var meta indexMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, false
	}
	return &meta, true
}

func (s *Store) getMappings(ctx context.Context, indices []string) (*opensearchapi.MappingGetResp, error) {
	index := strings.Join(indices, ",")
	return remote.Call(ctx, s.exec, "get_mapping", func(ctx context.Context) (*opensearchapi.MappingGetResp, error) {
		resp, err := s.client.Indices.Mapping.Get(ctx, &opensearchapi.MappingGetReq{Indices: indices})
		return resp, mapError(index, err)
	})
}

// meta returns the index settings, caching them per process.
func (s *Store) meta(ctx context.Context, name string) (*indexMeta, error) {
	s.mu.RLock()
	meta, ok := s.metas[name]
	s.mu.RUnlock()
	if ok {
		return meta, nil
	}

	resp, err := s.getMappings(ctx, []string{name})
	if err != nil {
		return nil, err
	}
	entry, ok := resp.Indices[name]
	if !ok {
		return nil, vector.IndexNotFound(name)
	}
	meta, ok = parseMeta(entry.Mappings)
	if !ok {
		return nil, vector.IndexNotFound(name)
	}

	s.mu.Lock()
	s.metas[name] = meta
	s.mu.Unlock()
	return meta, nil
}

func (s *Store) forget(name string) {
	s.mu.Lock()
	delete(s.metas, name)
	s.mu.Unlock()
}

// ListIndexes returns indices created by this package, skipping others on
// the cluster.
func (s *Store) ListIndexes(ctx context.Context) ([]string, error) {
	resp, err := s.getMappings(ctx, nil)
	if err != nil {
		return nil, err
	}
	var names []string
	for name, entry := range resp.Indices {
		if _, ok := parseMeta(entry.Mappings); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

func (s *Store) count(ctx context.Context, name string) (int64, error) {
	return remote.Call(ctx, s.exec, "count", func(ctx context.Context) (int64, error) {
		resp, err := s.client.Search(ctx, &opensearchapi.SearchReq{
			Indices: []string{name},
			Params: opensearchapi.SearchParams{
				Size:           opensearchapi.ToPointer(0),
				TrackTotalHits: true,
			},
		})
		if err != nil {
			return 0, mapError(name, err)
		}
		return int64(resp.Hits.Total.Value), nil
	})
}

func (s *Store) DescribeIndex(ctx context.Context, name string) (*vector.IndexInfo, error) {
	s.forget(name)
	meta, err := s.meta(ctx, name)
	if err != nil {
		return nil, err
	}
	count, err := s.count(ctx, name)
	if err != nil {
		return nil, err
	}
	return &vector.IndexInfo{
		Name:          name,
		Dimension:     meta.Dimension,
		Metric:        meta.Metric,
		DocumentCount: count,
		CreatedAt:     meta.CreatedAt,
		Options:       meta.Options,
	}, nil
}

func (s *Store) DeleteIndex(ctx context.Context, name string) error {
	// only indices carrying our _meta may be dropped
	if _, err := s.meta(ctx, name); err != nil {
		return err
	}
	s.forget(name)

	err := s.exec.Do(ctx, "delete_index", func(ctx context.Context) error {
		_, err := s.client.Indices.Delete(ctx, opensearchapi.IndicesDeleteReq{Indices: []string{name}})
		return mapError(name, err)
	})
	if err != nil {
		return err
	}
	s.logger.Info("index deleted", "index", name)
	return nil
}

func bulkBody(index string, docs []vector.Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		action := map[string]any{"index": map[string]any{"_index": index, "_id": doc.ID}}
		if err := enc.Encode(action); err != nil {
			return nil, vector.SerializationFailed(index, doc.ID, err)
		}
		src := source{ID: doc.ID, Content: doc.Content, Embedding: doc.Vector, Metadata: doc.Metadata}
		if err := enc.Encode(src); err != nil {
			return nil, vector.SerializationFailed(index, doc.ID, err)
		}
	}
	return buf.Bytes(), nil
}

func bulkError(index string, resp *opensearchapi.BulkResp) error {
	for _, item := range resp.Items {
		for _, result := range item {
			if result.Error == nil {
				continue
			}
			err := errors.Errorf("%s: %s", result.Error.Type, result.Error.Reason)
			e := vector.Wrap(kindFor(result.Status, result.Error.Type), index, err).(*vector.Error)
			e.ID = result.ID
			return e
		}
	}
	return vector.Internal(index, errors.New("bulk request reported errors"))
}

func (s *Store) Upsert(ctx context.Context, index string, docs []vector.Document) ([]string, error) {
	meta, err := s.meta(ctx, index)
	if err != nil {
		return nil, err
	}

	batch := make([]vector.Document, len(docs))
	copy(batch, docs)
	if _, err := vector.PrepareBatch(index, meta.Dimension, batch); err != nil {
		return nil, err
	}
	if err := vector.CheckNoNulls(index, batch); err != nil {
		return nil, err
	}

	return s.exec.Batches(ctx, "upsert", batch, func(ctx context.Context, docs []vector.Document) error {
		body, err := bulkBody(index, docs)
		if err != nil {
			return err
		}
		resp, err := s.client.Bulk(ctx, opensearchapi.BulkReq{
			Body:   bytes.NewReader(body),
			Params: opensearchapi.BulkParams{Refresh: "true"},
		})
		if err != nil {
			return mapError(index, err)
		}
		if resp.Errors {
			return bulkError(index, resp)
		}
		return nil
	})
}

func (s *Store) searchBody(req vector.SearchRequest, meta *indexMeta, metric vector.Metric, size int) map[string]any {
	filters := []map[string]any{}
	if clause := translate(req.Filter); clause != nil {
		filters = append(filters, clause)
	}

	var query map[string]any
	if metric == meta.Metric {
		query = map[string]any{
			"bool": map[string]any{
				"must":   map[string]any{"knn": map[string]any{embeddingField: map[string]any{"vector": req.Vector, "k": size}}},
				"filter": filters,
			},
		}
	} else {
		// the k-NN graph is built for the index metric; score exactly instead
		inner := map[string]any{"match_all": map[string]any{}}
		if len(filters) > 0 {
			inner = map[string]any{"bool": map[string]any{"filter": filters}}
		}
		query = map[string]any{
			"script_score": map[string]any{
				"query": inner,
				"script": map[string]any{
					"source": "knn_score",
					"lang":   "knn",
					"params": map[string]any{
						"field":       embeddingField,
						"query_value": req.Vector,
						"space_type":  spaceType(metric),
					},
				},
			},
		}
	}
	return map[string]any{"size": size, "query": query}
}

func (s *Store) Search(ctx context.Context, req vector.SearchRequest) (*vector.SearchResponse, error) {
	start := time.Now()

	matcher, err := vector.CompileFilter(req.Filter)
	if err != nil {
		return nil, err
	}
	meta, err := s.meta(ctx, req.Index)
	if err != nil {
		return nil, err
	}
	if err := vector.CheckQueryVector(req.Index, meta.Dimension, req.Vector); err != nil {
		return nil, err
	}
	metric, err := req.ResolveMetric(meta.Metric)
	if err != nil {
		return nil, err
	}

	size := remote.Candidates(req.Limit(), req.Filter != nil)
	body, err := json.Marshal(s.searchBody(req, meta, metric, size))
	if err != nil {
		return nil, vector.SerializationFailed(req.Index, "", err)
	}

	candidates, err := remote.Call(ctx, s.exec, "search", func(ctx context.Context) ([]vector.Document, error) {
		resp, err := s.client.Search(ctx, &opensearchapi.SearchReq{
			Indices: []string{req.Index},
			Body:    bytes.NewReader(body),
		})
		if err != nil {
			return nil, mapError(req.Index, err)
		}
		return decodeHits(req.Index, resp.Hits.Hits)
	})
	if err != nil {
		return nil, err
	}

	results, err := remote.Rescore(req, metric, matcher, candidates)
	if err != nil {
		return nil, err
	}
	return &vector.SearchResponse{Results: results, ExecutionTime: time.Since(start)}, nil
}

func decodeHits(index string, hits []opensearchapi.SearchHit) ([]vector.Document, error) {
	docs := make([]vector.Document, 0, len(hits))
	for _, hit := range hits {
		var src source
		if err := json.Unmarshal(hit.Source, &src); err != nil {
			return nil, vector.SerializationFailed(index, hit.ID, err)
		}
		if src.ID == "" {
			src.ID = hit.ID
		}
		docs = append(docs, src.document())
	}
	return docs, nil
}

func (s *Store) fetch(ctx context.Context, index string, ids []string, includeVectors bool) (map[string]vector.Document, error) {
	query := map[string]any{
		"size":  len(ids),
		"query": map[string]any{"ids": map[string]any{"values": ids}},
	}
	if !includeVectors {
		query["_source"] = map[string]any{"excludes": []string{embeddingField}}
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, vector.SerializationFailed(index, "", err)
	}

	docs, err := remote.Call(ctx, s.exec, "get_documents", func(ctx context.Context) ([]vector.Document, error) {
		resp, err := s.client.Search(ctx, &opensearchapi.SearchReq{
			Indices: []string{index},
			Body:    bytes.NewReader(body),
		})
		if err != nil {
			return nil, mapError(index, err)
		}
		return decodeHits(index, resp.Hits.Hits)
	})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]vector.Document, len(docs))
	for _, doc := range docs {
		byID[doc.ID] = doc
	}
	return byID, nil
}

func (s *Store) GetDocuments(ctx context.Context, index string, ids []string, includeVectors bool) ([]vector.Document, error) {
	if _, err := s.meta(ctx, index); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []vector.Document{}, nil
	}
	byID, err := s.fetch(ctx, index, ids, includeVectors)
	if err != nil {
		return nil, err
	}

	out := make([]vector.Document, 0, len(ids))
	for _, id := range ids {
		if doc, ok := byID[id]; ok {
			out = append(out, doc.Clone())
		}
	}
	return out, nil
}

// UpdateDocument rewrites the supplied fields with a painless script so that
// metadata is replaced rather than merged.
func (s *Store) UpdateDocument(ctx context.Context, index string, doc vector.Document) error {
	meta, err := s.meta(ctx, index)
	if err != nil {
		return err
	}

	fields := make(map[string]any)
	if doc.Vector != nil {
		if err := vector.CheckDocumentVector(index, meta.Dimension, doc); err != nil {
			return err
		}
		fields[embeddingField] = doc.Vector
	}
	if doc.Metadata != nil {
		if err := vector.CheckNoNulls(index, []vector.Document{doc}); err != nil {
			return err
		}
		fields["metadata"] = doc.Metadata
	}
	if doc.Content != "" {
		fields["content"] = doc.Content
	}

	var scriptParts []string
	params := make(map[string]any, len(fields))
	for field, value := range fields {
		paramName := "p_" + field
		scriptParts = append(scriptParts, fmt.Sprintf("ctx._source.%s = params.%s", field, paramName))
		params[paramName] = value
	}
	if len(scriptParts) == 0 {
		scriptParts = append(scriptParts, "ctx.op = 'none'")
	}

	body, err := json.Marshal(map[string]any{
		"script": map[string]any{
			"source": strings.Join(scriptParts, "; "),
			"params": params,
		},
	})
	if err != nil {
		return vector.SerializationFailed(index, doc.ID, err)
	}

	err = s.exec.Do(ctx, "update_document", func(ctx context.Context) error {
		_, err := s.client.Update(ctx, opensearchapi.UpdateReq{
			Index:      index,
			DocumentID: doc.ID,
			Body:       bytes.NewReader(body),
			Params:     opensearchapi.UpdateParams{Refresh: "true"},
		})
		return mapError(index, err)
	})
	if vector.KindOf(err) == vector.KindDocumentNotFound {
		return vector.DocumentNotFound(index, doc.ID)
	}
	return err
}

func (s *Store) DeleteDocuments(ctx context.Context, index string, ids []string) error {
	if _, err := s.meta(ctx, index); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	body, err := json.Marshal(map[string]any{
		"query": map[string]any{"ids": map[string]any{"values": ids}},
	})
	if err != nil {
		return vector.SerializationFailed(index, "", err)
	}

	return s.exec.Do(ctx, "delete_documents", func(ctx context.Context) error {
		resp, err := s.client.Document.DeleteByQuery(ctx, opensearchapi.DocumentDeleteByQueryReq{
			Indices: []string{index},
			Body:    bytes.NewReader(body),
			Params:  opensearchapi.DocumentDeleteByQueryParams{Refresh: opensearchapi.ToPointer(true)},
		})
		if err != nil {
			return mapError(index, err)
		}
		s.logger.Debug("documents deleted", "index", index, "requested", len(ids), "deleted", resp.Deleted)
		return nil
	})
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.exec.Do(ctx, "health_check", func(ctx context.Context) error {
		resp, err := s.client.Cluster.Health(ctx, &opensearchapi.ClusterHealthReq{})
		if err != nil {
			return mapError("", err)
		}
		if resp.Status == "red" {
			return vector.Wrap(vector.KindConnectionFailed, "", errors.New("cluster status is red"))
		}
		return nil
	})
}

func (s *Store) BackendInfo() vector.BackendInfo {
	md := s.config.Metadata()
	md["engine"] = vector.String(s.config.Engine)
	return vector.BackendInfo{
		Name:    "opensearch",
		Version: vector.Version,
		Features: []string{
			vector.FeatureComplexFiltering,
			vector.FeatureApproximateSearch,
			vector.FeatureMultipleMetrics,
			vector.FeatureThreadSafe,
			vector.FeaturePersistent,
			vector.FeatureBatchOperations,
		},
		Metadata: md,
	}
}

// Close releases nothing; the client holds only idle HTTP connections.
func (s *Store) Close() error {
	return nil
}
