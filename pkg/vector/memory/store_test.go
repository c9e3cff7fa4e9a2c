package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zereker/vectorstore/pkg/vector"
)

func newDocsIndex(t *testing.T, cfg Config) *Store {
	t.Helper()
	s := New(cfg)
	require.NoError(t, s.CreateIndex(context.Background(), vector.IndexConfig{Name: "docs", Dimension: 3}))
	return s
}

func ids(results []vector.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func TestStore_IndexLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New(DefaultConfig())

	require.NoError(t, s.CreateIndex(ctx, vector.IndexConfig{Name: "docs", Dimension: 3}))
	err := s.CreateIndex(ctx, vector.IndexConfig{Name: "docs", Dimension: 3})
	assert.ErrorIs(t, err, vector.ErrIndexAlreadyExists)

	info, err := s.DescribeIndex(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, 3, info.Dimension)
	assert.Equal(t, vector.Cosine, info.Metric)
	assert.Equal(t, int64(0), info.DocumentCount)

	names, err := s.ListIndexes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs"}, names)

	require.NoError(t, s.DeleteIndex(ctx, "docs"))
	assert.ErrorIs(t, s.DeleteIndex(ctx, "docs"), vector.ErrIndexNotFound)

	_, err = s.DescribeIndex(ctx, "docs")
	assert.ErrorIs(t, err, vector.ErrIndexNotFound)

	_, err = s.Search(ctx, vector.SearchRequest{Index: "docs", Vector: vector.Vector{1, 0, 0}})
	assert.ErrorIs(t, err, vector.ErrIndexNotFound)
}

func TestStore_CreateIndexValidation(t *testing.T) {
	ctx := context.Background()
	s := New(DefaultConfig())

	assert.ErrorIs(t, s.CreateIndex(ctx, vector.IndexConfig{Name: "x", Dimension: 0}), vector.ErrInvalidConfig)
	assert.ErrorIs(t, s.CreateIndex(ctx, vector.IndexConfig{Dimension: 3}), vector.ErrInvalidConfig)
	assert.ErrorIs(t, s.CreateIndex(ctx, vector.IndexConfig{Name: "x", Dimension: 3, Metric: "hamming"}), vector.ErrInvalidConfig)
}

func TestStore_CosineScenario(t *testing.T) {
	ctx := context.Background()
	s := newDocsIndex(t, DefaultConfig())

	_, err := s.Upsert(ctx, "docs", []vector.Document{
		{ID: "A", Vector: vector.Vector{1, 0, 0}},
		{ID: "B", Vector: vector.Vector{0, 1, 0}},
		{ID: "C", Vector: vector.Vector{0.9, 0.1, 0}},
	})
	require.NoError(t, err)

	resp, err := s.Search(ctx, vector.SearchRequest{Index: "docs", Vector: vector.Vector{1, 0, 0}, TopK: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, ids(resp.Results))
	assert.InDelta(t, 1.0, resp.Results[0].Score, 1e-6)
	assert.InDelta(t, 0.9939, resp.Results[1].Score, 1e-3)
	assert.Nil(t, resp.Results[0].Vector)
}

func TestStore_BatchDimensionMismatchStoresNothing(t *testing.T) {
	ctx := context.Background()
	s := newDocsIndex(t, DefaultConfig())

	_, err := s.Upsert(ctx, "docs", []vector.Document{
		{ID: "a", Vector: vector.Vector{1, 0, 0}},
		{ID: "b", Vector: vector.Vector{1, 0}},
		{ID: "c", Vector: vector.Vector{0, 0, 1}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, vector.ErrDimensionMismatch)

	var verr *vector.Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "b", verr.ID)
	assert.Equal(t, 3, verr.Expected)
	assert.Equal(t, 2, verr.Actual)

	info, err := s.DescribeIndex(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.DocumentCount)
}

func TestStore_MissingVector(t *testing.T) {
	s := newDocsIndex(t, DefaultConfig())
	_, err := s.Upsert(context.Background(), "docs", []vector.Document{{ID: "a", Content: "no embedding"}})
	assert.ErrorIs(t, err, vector.ErrInvalidVector)
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newDocsIndex(t, DefaultConfig())

	in := vector.Document{
		ID:      "doc-1",
		Content: "hello",
		Vector:  vector.Vector{0.1, 0.2, 0.30000001},
		Metadata: vector.Metadata{
			"lang":  vector.String("en"),
			"score": vector.Float(0.5),
			"n":     vector.Null(),
			"tags":  vector.Array(vector.String("a")),
		},
	}
	got, err := s.Upsert(ctx, "docs", []vector.Document{in})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1"}, got)

	docs, err := s.GetDocuments(ctx, "docs", []string{"doc-1", "missing"}, true)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, in.Vector, docs[0].Vector)
	assert.True(t, in.Metadata.Equal(docs[0].Metadata))
	assert.Equal(t, "hello", docs[0].Content)

	docs, err = s.GetDocuments(ctx, "docs", []string{"doc-1"}, false)
	require.NoError(t, err)
	assert.Nil(t, docs[0].Vector)
}

func TestStore_StoredDataIsIsolated(t *testing.T) {
	ctx := context.Background()
	s := newDocsIndex(t, DefaultConfig())

	v := vector.Vector{1, 0, 0}
	_, err := s.Upsert(ctx, "docs", []vector.Document{{ID: "a", Vector: v}})
	require.NoError(t, err)
	v[0] = 42

	docs, err := s.GetDocuments(ctx, "docs", []string{"a"}, true)
	require.NoError(t, err)
	assert.Equal(t, float32(1), docs[0].Vector[0])
}

func TestStore_TopKMonotonic(t *testing.T) {
	ctx := context.Background()
	s := New(DefaultConfig())
	require.NoError(t, s.CreateIndex(ctx, vector.IndexConfig{Name: "grid", Dimension: 2, Metric: vector.Euclidean}))

	var docs []vector.Document
	for i := 0; i < 40; i++ {
		docs = append(docs, vector.Document{
			ID:     fmt.Sprintf("d%02d", i),
			Vector: vector.Vector{float32(i % 7), float32(i % 5)},
		})
	}
	_, err := s.Upsert(ctx, "grid", docs)
	require.NoError(t, err)

	query := vector.Vector{3, 2}
	for _, k := range []int{1, 3, 5, 10} {
		small, err := s.Search(ctx, vector.SearchRequest{Index: "grid", Vector: query, TopK: k})
		require.NoError(t, err)
		large, err := s.Search(ctx, vector.SearchRequest{Index: "grid", Vector: query, TopK: 2 * k})
		require.NoError(t, err)

		require.LessOrEqual(t, len(small.Results), k)
		for i := 1; i < len(small.Results); i++ {
			assert.GreaterOrEqual(t, small.Results[i-1].Score, small.Results[i].Score)
		}
		assert.Equal(t, ids(small.Results), ids(large.Results)[:len(small.Results)])
	}
}

func TestStore_TiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := newDocsIndex(t, DefaultConfig())

	_, err := s.Upsert(ctx, "docs", []vector.Document{
		{ID: "z", Vector: vector.Vector{0, 1, 0}},
		{ID: "y", Vector: vector.Vector{0, 1, 0}},
		{ID: "x", Vector: vector.Vector{0, 1, 0}},
	})
	require.NoError(t, err)

	// replacing keeps the original position
	_, err = s.Upsert(ctx, "docs", []vector.Document{{ID: "z", Vector: vector.Vector{0, 2, 0}}})
	require.NoError(t, err)

	resp, err := s.Search(ctx, vector.SearchRequest{Index: "docs", Vector: vector.Vector{0, 1, 0}})
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "y", "x"}, ids(resp.Results))
}

func TestStore_FilterMissingField(t *testing.T) {
	ctx := context.Background()
	s := newDocsIndex(t, DefaultConfig())

	_, err := s.Upsert(ctx, "docs", []vector.Document{
		{ID: "tagged", Vector: vector.Vector{1, 0, 0}, Metadata: vector.Metadata{"lang": vector.String("en")}},
		{ID: "bare", Vector: vector.Vector{1, 0, 0}},
	})
	require.NoError(t, err)

	query := vector.Vector{1, 0, 0}
	resp, err := s.Search(ctx, vector.SearchRequest{Index: "docs", Vector: query, Filter: vector.Eq("lang", vector.String("en"))})
	require.NoError(t, err)
	assert.Equal(t, []string{"tagged"}, ids(resp.Results))

	resp, err = s.Search(ctx, vector.SearchRequest{Index: "docs", Vector: query, Filter: vector.NotExists("lang")})
	require.NoError(t, err)
	assert.Equal(t, []string{"bare"}, ids(resp.Results))

	_, err = s.Search(ctx, vector.SearchRequest{Index: "docs", Vector: query, Filter: vector.Regex("lang", "(")})
	assert.ErrorIs(t, err, vector.ErrInvalidFilter)
}

func TestStore_SearchValidation(t *testing.T) {
	ctx := context.Background()
	s := newDocsIndex(t, DefaultConfig())

	_, err := s.Search(ctx, vector.SearchRequest{Index: "docs", Vector: vector.Vector{1, 0}})
	assert.ErrorIs(t, err, vector.ErrDimensionMismatch)

	_, err = s.Search(ctx, vector.SearchRequest{Index: "docs"})
	assert.ErrorIs(t, err, vector.ErrInvalidVector)
}

func TestStore_SearchOptions(t *testing.T) {
	ctx := context.Background()
	s := newDocsIndex(t, DefaultConfig())

	_, err := s.Upsert(ctx, "docs", []vector.Document{
		{ID: "near", Vector: vector.Vector{1, 0, 0}, Metadata: vector.Metadata{"k": vector.Int(1)}},
		{ID: "far", Vector: vector.Vector{-1, 0, 0}},
	})
	require.NoError(t, err)

	threshold := float32(0.5)
	noMeta := false
	resp, err := s.Search(ctx, vector.SearchRequest{
		Index:           "docs",
		Vector:          vector.Vector{1, 0, 0},
		IncludeVectors:  true,
		IncludeMetadata: &noMeta,
		ScoreThreshold:  &threshold,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, vector.Vector{1, 0, 0}, resp.Results[0].Vector)
	assert.Nil(t, resp.Results[0].Metadata)

	// dot product override ranks by magnitude
	resp, err = s.Search(ctx, vector.SearchRequest{Index: "docs", Vector: vector.Vector{-2, 0, 0}, Metric: vector.DotProduct})
	require.NoError(t, err)
	assert.Equal(t, "far", resp.Results[0].ID)
	assert.Equal(t, float32(2), resp.Results[0].Score)
}

func TestStore_UpdateDocument(t *testing.T) {
	ctx := context.Background()
	s := newDocsIndex(t, DefaultConfig())

	_, err := s.Upsert(ctx, "docs", []vector.Document{{
		ID:       "a",
		Content:  "original",
		Vector:   vector.Vector{1, 0, 0},
		Metadata: vector.Metadata{"v": vector.Int(1)},
	}})
	require.NoError(t, err)

	require.NoError(t, s.UpdateDocument(ctx, "docs", vector.Document{ID: "a", Metadata: vector.Metadata{"v": vector.Int(2)}}))

	docs, err := s.GetDocuments(ctx, "docs", []string{"a"}, true)
	require.NoError(t, err)
	assert.Equal(t, vector.Vector{1, 0, 0}, docs[0].Vector)
	assert.Equal(t, "original", docs[0].Content)
	assert.Equal(t, vector.Int(2), docs[0].Metadata["v"])

	err = s.UpdateDocument(ctx, "docs", vector.Document{ID: "a", Vector: vector.Vector{1, 0}})
	assert.ErrorIs(t, err, vector.ErrDimensionMismatch)

	err = s.UpdateDocument(ctx, "docs", vector.Document{ID: "ghost", Metadata: vector.Metadata{}})
	assert.ErrorIs(t, err, vector.ErrDocumentNotFound)
}

func TestStore_IdempotentDelete(t *testing.T) {
	ctx := context.Background()
	s := newDocsIndex(t, DefaultConfig())

	_, err := s.Upsert(ctx, "docs", []vector.Document{{ID: "a", Vector: vector.Vector{1, 0, 0}}})
	require.NoError(t, err)

	require.NoError(t, s.DeleteDocuments(ctx, "docs", []string{"missing"}))
	info, err := s.DescribeIndex(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.DocumentCount)

	require.NoError(t, s.DeleteDocuments(ctx, "docs", []string{"a", "a"}))
	info, err = s.DescribeIndex(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.DocumentCount)
	assert.Equal(t, int64(0), *info.SizeBytes)
}

func TestStore_Capacity(t *testing.T) {
	ctx := context.Background()
	s := New(Config{MaxDocumentsPerIndex: 2})
	require.NoError(t, s.CreateIndex(ctx, vector.IndexConfig{Name: "docs", Dimension: 1}))

	_, err := s.Upsert(ctx, "docs", []vector.Document{
		{ID: "a", Vector: vector.Vector{1}},
		{ID: "b", Vector: vector.Vector{2}},
	})
	require.NoError(t, err)

	// replacing does not count against the limit
	_, err = s.Upsert(ctx, "docs", []vector.Document{{ID: "a", Vector: vector.Vector{3}}})
	require.NoError(t, err)

	_, err = s.Upsert(ctx, "docs", []vector.Document{{ID: "c", Vector: vector.Vector{4}}})
	assert.ErrorIs(t, err, vector.ErrResourceLimitExceeded)

	// the per-index option can only lower the engine limit
	require.NoError(t, s.CreateIndex(ctx, vector.IndexConfig{
		Name:      "small",
		Dimension: 1,
		Options:   vector.Metadata{"max_documents": vector.Int(1)},
	}))
	_, err = s.Upsert(ctx, "small", []vector.Document{
		{ID: "a", Vector: vector.Vector{1}},
		{ID: "b", Vector: vector.Vector{2}},
	})
	assert.ErrorIs(t, err, vector.ErrResourceLimitExceeded)
}

func TestStore_HealthAndCleanup(t *testing.T) {
	ctx := context.Background()
	s := New(Config{MemoryThresholdMB: 1})
	require.NoError(t, s.CreateIndex(ctx, vector.IndexConfig{Name: "big", Dimension: 1024}))
	require.NoError(t, s.HealthCheck(ctx))

	var docs []vector.Document
	for i := 0; i < 700; i++ {
		docs = append(docs, vector.Document{ID: fmt.Sprintf("d%d", i), Vector: make(vector.Vector, 1024)})
	}
	_, err := s.Upsert(ctx, "big", docs)
	require.NoError(t, err)

	var called int64
	s.OnMemoryPressure(func(usage int64) { called = usage })
	assert.True(t, s.Cleanup(ctx))
	assert.Greater(t, called, int64(1<<20))
	assert.ErrorIs(t, s.HealthCheck(ctx), vector.ErrResourceLimitExceeded)
}

func TestStore_ConcurrentIndexes(t *testing.T) {
	ctx := context.Background()
	s := New(DefaultConfig())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("idx%d", i)
		require.NoError(t, s.CreateIndex(ctx, vector.IndexConfig{Name: name, Dimension: 2}))
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, err := s.Upsert(ctx, name, []vector.Document{{ID: fmt.Sprint(j), Vector: vector.Vector{float32(j), 1}}})
				assert.NoError(t, err)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, err := s.Search(ctx, vector.SearchRequest{Index: name, Vector: vector.Vector{1, 1}, TopK: 3})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	st := s.Stats()
	assert.Equal(t, 8, st.Indexes)
	assert.Equal(t, int64(800), st.TotalDocuments)
	assert.Equal(t, int64(800), st.Created)
}

func TestStore_BackendInfo(t *testing.T) {
	info := New(DefaultConfig()).BackendInfo()
	assert.Equal(t, "memory", info.Name)
	assert.True(t, info.HasFeature(vector.FeatureComplexFiltering))
	assert.True(t, info.HasFeature(vector.FeatureMultipleMetrics))
	assert.Equal(t, vector.Int(1000), info.Metadata["initial_capacity"])
}
