// Package qdrant maps vector indexes onto Qdrant collections over gRPC.
package qdrant

import (
	"context"
	"crypto/tls"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/Zereker/vectorstore/pkg/log"
	"github.com/Zereker/vectorstore/pkg/vector"
	"github.com/Zereker/vectorstore/pkg/vector/remote"
)

var _ vector.Store = (*Store)(nil)

type indexOptions struct {
	M             uint64 `mapstructure:"m"`
	EfConstruct   uint64 `mapstructure:"ef_construct"`
	OnDiskPayload bool   `mapstructure:"on_disk_payload"`
}

type indexMeta struct {
	dimension int
	metric    vector.Metric
}

// Store implements vector.Store on Qdrant. Document ids are kept in the
// payload; point ids are UUIDs derived from them.
type Store struct {
	client *qdrant.Client
	config Config
	exec   *remote.Executor
	logger *slog.Logger

	mu    sync.RWMutex
	metas map[string]*indexMeta
}

// New dials Qdrant and checks its health. cfg must be validated.
func New(ctx context.Context, cfg Config) (*Store, error) {
	host, port, err := cfg.hostPort()
	if err != nil {
		return nil, vector.InvalidConfig("%v", err)
	}

	qcfg := &qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.Auth.Token,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
				grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			),
		},
	}
	switch {
	case !cfg.UseTLS:
		qcfg.GrpcOptions = append(qcfg.GrpcOptions, grpc.WithTransportCredentials(insecure.NewCredentials()))
	case cfg.TLSSkipVerify:
		qcfg.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}

	client, err := qdrant.NewClient(qcfg)
	if err != nil {
		return nil, mapError("", errors.WithMessage(err, "create qdrant client"))
	}

	s := &Store{
		client: client,
		config: cfg,
		exec:   remote.NewExecutor("qdrant", cfg.Config),
		logger: log.Logger("qdrant"),
		metas:  make(map[string]*indexMeta),
	}
	if err := s.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

func toDistance(m vector.Metric) qdrant.Distance {
	switch m {
	case vector.Euclidean:
		return qdrant.Distance_Euclid
	case vector.DotProduct:
		return qdrant.Distance_Dot
	default:
		return qdrant.Distance_Cosine
	}
}

func fromDistance(d qdrant.Distance) vector.Metric {
	switch d {
	case qdrant.Distance_Euclid:
		return vector.Euclidean
	case qdrant.Distance_Dot:
		return vector.DotProduct
	default:
		return vector.Cosine
	}
}

func (s *Store) readConsistency() *qdrant.ReadConsistency {
	t := qdrant.ReadConsistencyType_Majority
	switch s.config.Consistency {
	case remote.Strong:
		t = qdrant.ReadConsistencyType_All
	case remote.Eventual:
		t = qdrant.ReadConsistencyType_One
	}
	return &qdrant.ReadConsistency{Value: &qdrant.ReadConsistency_Type{Type: t}}
}

func (s *Store) writeOrdering() *qdrant.WriteOrdering {
	t := qdrant.WriteOrderingType_Medium
	switch s.config.Consistency {
	case remote.Strong:
		t = qdrant.WriteOrderingType_Strong
	case remote.Eventual:
		t = qdrant.WriteOrderingType_Weak
	}
	return &qdrant.WriteOrdering{Type: t}
}

func (s *Store) exists(ctx context.Context, name string) (bool, error) {
	return remote.Call(ctx, s.exec, "collection_exists", func(ctx context.Context) (bool, error) {
		ok, err := s.client.CollectionExists(ctx, name)
		return ok, mapError(name, err)
	})
}

func (s *Store) CreateIndex(ctx context.Context, cfg vector.IndexConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	var opts indexOptions
	if err := vector.DecodeOptions(cfg.Options, &opts); err != nil {
		return err
	}

	ok, err := s.exists(ctx, cfg.Name)
	if err != nil {
		return err
	}
	if ok {
		return vector.IndexAlreadyExists(cfg.Name)
	}

	req := &qdrant.CreateCollection{
		CollectionName: cfg.Name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(cfg.Dimension),
			Distance: toDistance(cfg.Metric),
		}),
	}
	if opts.M > 0 || opts.EfConstruct > 0 {
		req.HnswConfig = &qdrant.HnswConfigDiff{}
		if opts.M > 0 {
			req.HnswConfig.M = qdrant.PtrOf(opts.M)
		}
		if opts.EfConstruct > 0 {
			req.HnswConfig.EfConstruct = qdrant.PtrOf(opts.EfConstruct)
		}
	}
	if opts.OnDiskPayload {
		req.OnDiskPayload = qdrant.PtrOf(true)
	}

	err = s.exec.Do(ctx, "create_index", func(ctx context.Context) error {
		return mapError(cfg.Name, s.client.CreateCollection(ctx, req))
	})
	if err != nil {
		return err
	}

	s.logger.Info("index created", "index", cfg.Name, "dimension", cfg.Dimension, "metric", cfg.Metric)
	return nil
}

func (s *Store) collectionInfo(ctx context.Context, name string) (*qdrant.CollectionInfo, error) {
	return remote.Call(ctx, s.exec, "describe_index", func(ctx context.Context) (*qdrant.CollectionInfo, error) {
		info, err := s.client.GetCollectionInfo(ctx, name)
		return info, mapError(name, err)
	})
}

func (s *Store) meta(ctx context.Context, name string) (*indexMeta, error) {
	s.mu.RLock()
	meta, ok := s.metas[name]
	s.mu.RUnlock()
	if ok {
		return meta, nil
	}

	info, err := s.collectionInfo(ctx, name)
	if err != nil {
		return nil, err
	}
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return nil, vector.InvalidConfig("collection %q has no single dense vector", name)
	}
	meta = &indexMeta{dimension: int(params.GetSize()), metric: fromDistance(params.GetDistance())}

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

func (s *Store) ListIndexes(ctx context.Context) ([]string, error) {
	return remote.Call(ctx, s.exec, "list_indexes", func(ctx context.Context) ([]string, error) {
		names, err := s.client.ListCollections(ctx)
		if err != nil {
			return nil, mapError("", err)
		}
		slices.Sort(names)
		return names, nil
	})
}

func (s *Store) count(ctx context.Context, name string) (uint64, error) {
	return remote.Call(ctx, s.exec, "count", func(ctx context.Context) (uint64, error) {
		n, err := s.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: name,
			Exact:          qdrant.PtrOf(true),
		})
		return n, mapError(name, err)
	})
}

func (s *Store) DescribeIndex(ctx context.Context, name string) (*vector.IndexInfo, error) {
	s.forget(name)
	meta, err := s.meta(ctx, name)
	if err != nil {
		return nil, err
	}
	n, err := s.count(ctx, name)
	if err != nil {
		return nil, err
	}
	return &vector.IndexInfo{
		Name:          name,
		Dimension:     meta.dimension,
		Metric:        meta.metric,
		DocumentCount: int64(n),
	}, nil
}

func (s *Store) DeleteIndex(ctx context.Context, name string) error {
	s.forget(name)
	ok, err := s.exists(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return vector.IndexNotFound(name)
	}
	err = s.exec.Do(ctx, "delete_index", func(ctx context.Context) error {
		return mapError(name, s.client.DeleteCollection(ctx, name))
	})
	if err != nil {
		return err
	}
	s.logger.Info("index deleted", "index", name)
	return nil
}

func (s *Store) upsertPoints(ctx context.Context, index string, docs []vector.Document) error {
	points := make([]*qdrant.PointStruct, len(docs))
	for i, doc := range docs {
		points[i] = toPoint(doc)
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: index,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
		Ordering:       s.writeOrdering(),
	})
	return mapError(index, err)
}

func (s *Store) Upsert(ctx context.Context, index string, docs []vector.Document) ([]string, error) {
	meta, err := s.meta(ctx, index)
	if err != nil {
		return nil, err
	}

	batch := make([]vector.Document, len(docs))
	copy(batch, docs)
	if _, err := vector.PrepareBatch(index, meta.dimension, batch); err != nil {
		return nil, err
	}

	return s.exec.Batches(ctx, "upsert", batch, func(ctx context.Context, docs []vector.Document) error {
		return s.upsertPoints(ctx, index, docs)
	})
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
	if err := vector.CheckQueryVector(req.Index, meta.dimension, req.Vector); err != nil {
		return nil, err
	}
	metric, err := req.ResolveMetric(meta.metric)
	if err != nil {
		return nil, err
	}

	query := &qdrant.QueryPoints{
		CollectionName:  req.Index,
		Query:           qdrant.NewQuery(req.Vector...),
		Filter:          translate(req.Filter),
		Limit:           qdrant.PtrOf(uint64(remote.Candidates(req.Limit(), req.Filter != nil))),
		WithPayload:     qdrant.NewWithPayload(true),
		WithVectors:     qdrant.NewWithVectors(true),
		ReadConsistency: s.readConsistency(),
	}
	if metric != meta.metric {
		// the collection ranks by its own distance, so every point is a candidate
		n, err := s.count(ctx, req.Index)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return &vector.SearchResponse{Results: []vector.SearchResult{}, ExecutionTime: time.Since(start)}, nil
		}
		query.Limit = qdrant.PtrOf(n)
		query.Params = &qdrant.SearchParams{Exact: qdrant.PtrOf(true)}
	}

	points, err := remote.Call(ctx, s.exec, "search", func(ctx context.Context) ([]*qdrant.ScoredPoint, error) {
		points, err := s.client.Query(ctx, query)
		return points, mapError(req.Index, err)
	})
	if err != nil {
		return nil, err
	}

	candidates := make([]vector.Document, 0, len(points))
	for _, p := range points {
		if doc, ok := fromPoint(p.GetPayload(), p.GetVectors(), true); ok {
			candidates = append(candidates, doc)
		}
	}
	results, err := remote.Rescore(req, metric, matcher, candidates)
	if err != nil {
		return nil, err
	}
	return &vector.SearchResponse{Results: results, ExecutionTime: time.Since(start)}, nil
}

func (s *Store) fetch(ctx context.Context, index string, ids []string, withVectors bool) (map[string]vector.Document, error) {
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = pointID(id)
	}
	points, err := remote.Call(ctx, s.exec, "get_documents", func(ctx context.Context) ([]*qdrant.RetrievedPoint, error) {
		points, err := s.client.Get(ctx, &qdrant.GetPoints{
			CollectionName:  index,
			Ids:             pointIDs,
			WithPayload:     qdrant.NewWithPayload(true),
			WithVectors:     qdrant.NewWithVectors(withVectors),
			ReadConsistency: s.readConsistency(),
		})
		return points, mapError(index, err)
	})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]vector.Document, len(points))
	for _, p := range points {
		if doc, ok := fromPoint(p.GetPayload(), p.GetVectors(), withVectors); ok {
			byID[doc.ID] = doc
		}
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
			out = append(out, doc)
		}
	}
	return out, nil
}

// UpdateDocument reads the point, merges the non-empty fields and writes it
// back whole.
func (s *Store) UpdateDocument(ctx context.Context, index string, doc vector.Document) error {
	meta, err := s.meta(ctx, index)
	if err != nil {
		return err
	}
	if doc.Vector != nil {
		if err := vector.CheckDocumentVector(index, meta.dimension, doc); err != nil {
			return err
		}
	}

	byID, err := s.fetch(ctx, index, []string{doc.ID}, true)
	if err != nil {
		return err
	}
	current, ok := byID[doc.ID]
	if !ok {
		return vector.DocumentNotFound(index, doc.ID)
	}

	if doc.Content != "" {
		current.Content = doc.Content
	}
	if doc.Vector != nil {
		current.Vector = doc.Vector.Clone()
	}
	if doc.Metadata != nil {
		current.Metadata = doc.Metadata.Clone()
	}

	return s.exec.Do(ctx, "update_document", func(ctx context.Context) error {
		return s.upsertPoints(ctx, index, []vector.Document{current})
	})
}

func (s *Store) DeleteDocuments(ctx context.Context, index string, ids []string) error {
	if _, err := s.meta(ctx, index); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = pointID(id)
	}
	return s.exec.Do(ctx, "delete_documents", func(ctx context.Context) error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: index,
			Wait:           qdrant.PtrOf(true),
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Points{
					Points: &qdrant.PointsIdsList{Ids: pointIDs},
				},
			},
			Ordering: s.writeOrdering(),
		})
		return mapError(index, err)
	})
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.exec.Do(ctx, "health_check", func(ctx context.Context) error {
		_, err := s.client.HealthCheck(ctx)
		return mapError("", err)
	})
}

func (s *Store) BackendInfo() vector.BackendInfo {
	md := s.config.Metadata()
	md["tls"] = vector.Bool(s.config.UseTLS)
	return vector.BackendInfo{
		Name:    "qdrant",
		Version: vector.Version,
		Features: []string{
			vector.FeatureComplexFiltering,
			vector.FeatureApproximateSearch,
			vector.FeatureMultipleMetrics,
			vector.FeatureThreadSafe,
			vector.FeatureHighPerformance,
			vector.FeatureNullMetadata,
			vector.FeaturePersistent,
			vector.FeatureBatchOperations,
		},
		Metadata: md,
	}
}

// Close closes the gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}
