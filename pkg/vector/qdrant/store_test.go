package qdrant

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Zereker/vectorstore/pkg/vector"
	"github.com/Zereker/vectorstore/pkg/vector/remote"
)

func TestTranslate(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, translate(nil))
	})

	t.Run("keyword", func(t *testing.T) {
		f := translate(vector.Eq("lang", vector.String("en")))
		require.NotNil(t, f)
		require.Len(t, f.GetMust(), 1)
		field := f.GetMust()[0].GetField()
		assert.Equal(t, "metadata.lang", field.GetKey())
		assert.Equal(t, "en", field.GetMatch().GetKeyword())
	})

	t.Run("numeric equality is a closed range", func(t *testing.T) {
		f := translate(vector.Eq("n", vector.Int(3)))
		require.NotNil(t, f)
		r := f.GetMust()[0].GetField().GetRange()
		assert.Equal(t, 3.0, r.GetGte())
		assert.Equal(t, 3.0, r.GetLte())
	})

	t.Run("range", func(t *testing.T) {
		f := translate(vector.Lt("year", vector.Float(2020.5)))
		require.NotNil(t, f)
		r := f.GetMust()[0].GetField().GetRange()
		assert.Equal(t, 2020.5, r.GetLt())
		assert.Nil(t, r.Gte)
	})

	t.Run("and drops untranslatable children", func(t *testing.T) {
		f := translate(vector.And(vector.Eq("a", vector.Bool(true)), vector.Regex("b", "x"), vector.Ne("c", vector.Int(1))))
		require.NotNil(t, f)
		require.Len(t, f.GetMust(), 1)
		assert.True(t, f.GetMust()[0].GetField().GetMatch().GetBoolean())
	})

	t.Run("or needs every child", func(t *testing.T) {
		assert.Nil(t, translate(vector.Or(vector.Eq("a", vector.Int(1)), vector.Exists("b"))))

		f := translate(vector.Or(vector.Eq("a", vector.Int(1)), vector.Eq("b", vector.String("x"))))
		require.NotNil(t, f)
		assert.Len(t, f.GetShould(), 2)
	})

	t.Run("in", func(t *testing.T) {
		f := translate(vector.In("tag", vector.String("a"), vector.String("b")))
		require.NotNil(t, f)
		assert.Len(t, f.GetShould(), 2)

		assert.Nil(t, translate(vector.In("tag", vector.String("a"), vector.Null())))
	})

	t.Run("negations are left to the matcher", func(t *testing.T) {
		assert.Nil(t, translate(vector.Not(vector.Eq("a", vector.Int(1)))))
		assert.Nil(t, translate(vector.NotIn("a", vector.Int(1))))
		assert.Nil(t, translate(vector.NotExists("a")))
	})
}

func TestPayloadRoundTrip(t *testing.T) {
	doc := vector.Document{
		ID:      "doc-1",
		Content: "hello",
		Vector:  vector.Vector{3, 4, 0},
		Metadata: vector.Metadata{
			"s":    vector.String("x"),
			"i":    vector.Int(7),
			"f":    vector.Float(1.5),
			"b":    vector.Bool(true),
			"null": vector.Null(),
			"arr":  vector.Array(vector.Int(1), vector.String("two")),
			"obj":  vector.Object(map[string]vector.Value{"k": vector.String("v")}),
		},
	}

	point := toPoint(doc)
	assert.Equal(t, pointID("doc-1").GetUuid(), point.GetId().GetUuid())

	// what a cosine collection hands back
	normalized := &qdrant.VectorsOutput{VectorsOptions: &qdrant.VectorsOutput_Vector{
		Vector: &qdrant.VectorOutput{Vector: &qdrant.VectorOutput_Dense{Dense: &qdrant.DenseVector{Data: []float32{0.6, 0.8, 0}}}},
	}}
	back, ok := fromPoint(point.GetPayload(), normalized, true)
	require.True(t, ok)
	assert.Equal(t, doc.ID, back.ID)
	assert.Equal(t, doc.Content, back.Content)
	assert.Equal(t, doc.Vector, back.Vector)
	assert.True(t, doc.Metadata.Equal(back.Metadata))
	assert.NotContains(t, back.Metadata, rawVectorKey)

	t.Run("vectors omitted unless requested", func(t *testing.T) {
		back, ok := fromPoint(point.GetPayload(), normalized, false)
		require.True(t, ok)
		assert.Nil(t, back.Vector)
	})

	t.Run("points without a raw copy use the stored vector", func(t *testing.T) {
		payload := point.GetPayload()
		legacy := make(map[string]*qdrant.Value, len(payload))
		for k, v := range payload {
			if k != rawVectorKey {
				legacy[k] = v
			}
		}
		back, ok := fromPoint(legacy, normalized, true)
		require.True(t, ok)
		assert.Equal(t, vector.Vector{0.6, 0.8, 0}, back.Vector)
	})

	_, ok = fromPoint(map[string]*qdrant.Value{}, nil, true)
	assert.False(t, ok)
}

func TestPointID(t *testing.T) {
	assert.Equal(t, pointID("a").GetUuid(), pointID("a").GetUuid())
	assert.NotEqual(t, pointID("a").GetUuid(), pointID("b").GetUuid())
	_, err := uuid.Parse(pointID("anything at all").GetUuid())
	assert.NoError(t, err)
}

func TestConfig(t *testing.T) {
	cfg := Config{Config: remote.Config{Endpoint: "qdrant:6334"}}
	require.NoError(t, cfg.Validate())
	host, port, err := cfg.hostPort()
	require.NoError(t, err)
	assert.Equal(t, "qdrant", host)
	assert.Equal(t, 6334, port)
	assert.Equal(t, defaultMaxMessageSize, cfg.MaxMessageSize)

	bare := Config{Config: remote.Config{Endpoint: "localhost"}}
	require.NoError(t, bare.Validate())
	_, port, _ = bare.hostPort()
	assert.Equal(t, defaultPort, port)

	bad := Config{Config: remote.Config{Endpoint: "localhost:http"}}
	assert.Error(t, bad.Validate())
}

func TestMapError(t *testing.T) {
	assert.ErrorIs(t, mapError("docs", status.Error(codes.NotFound, "missing")), vector.ErrIndexNotFound)
	assert.ErrorIs(t, mapError("docs", status.Error(codes.Unavailable, "down")), vector.ErrConnectionFailed)
	assert.ErrorIs(t, mapError("docs", status.Error(codes.ResourceExhausted, "slow down")), vector.ErrRateLimited)
	assert.ErrorIs(t, mapError("docs", status.Error(codes.Unauthenticated, "key")), vector.ErrAuthenticationFailed)
	assert.True(t, vector.IsRetryable(mapError("docs", status.Error(codes.DeadlineExceeded, "late"))))
	assert.Nil(t, mapError("docs", nil))
}

func TestStore_Integration(t *testing.T) {
	host := os.Getenv("QDRANT_HOST")
	if host == "" {
		t.Skip("QDRANT_HOST not set")
	}

	cfg := Config{Config: remote.Config{Endpoint: host}}
	require.NoError(t, cfg.Validate())
	ctx := context.Background()
	s, err := New(ctx, cfg)
	require.NoError(t, err)
	defer s.Close()

	name := "vectorstore_test_" + uuid.NewString()[:8]
	require.NoError(t, s.CreateIndex(ctx, vector.IndexConfig{Name: name, Dimension: 3}))
	defer s.DeleteIndex(ctx, name)

	assert.ErrorIs(t, s.CreateIndex(ctx, vector.IndexConfig{Name: name, Dimension: 3}), vector.ErrIndexAlreadyExists)

	_, err = s.Upsert(ctx, name, []vector.Document{
		{ID: "A", Vector: vector.Vector{1, 0, 0}, Metadata: vector.Metadata{"lang": vector.String("en")}},
		{ID: "B", Vector: vector.Vector{0, 1, 0}},
		{ID: "C", Vector: vector.Vector{0.9, 0.1, 0}, Metadata: vector.Metadata{"tags": vector.Array(vector.String("x"))}},
	})
	require.NoError(t, err)

	resp, err := s.Search(ctx, vector.SearchRequest{Index: name, Vector: vector.Vector{1, 0, 0}, TopK: 2})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "A", resp.Results[0].ID)
	assert.Equal(t, "C", resp.Results[1].ID)

	resp, err = s.Search(ctx, vector.SearchRequest{Index: name, Vector: vector.Vector{1, 0, 0}, Filter: vector.Eq("lang", vector.String("en"))})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "A", resp.Results[0].ID)

	resp, err = s.Search(ctx, vector.SearchRequest{Index: name, Vector: vector.Vector{1, 0, 0}, Metric: vector.Euclidean})
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "A", resp.Results[0].ID)

	require.NoError(t, s.UpdateDocument(ctx, name, vector.Document{ID: "B", Content: "updated"}))
	docs, err := s.GetDocuments(ctx, name, []string{"B", "missing"}, true)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "updated", docs[0].Content)
	assert.Equal(t, vector.Vector{0, 1, 0}, docs[0].Vector)

	assert.ErrorIs(t, s.UpdateDocument(ctx, name, vector.Document{ID: "ghost", Content: "x"}), vector.ErrDocumentNotFound)

	t.Run("cosine index keeps raw magnitudes", func(t *testing.T) {
		_, err := s.Upsert(ctx, name, []vector.Document{
			{ID: "long", Vector: vector.Vector{3, 4, 0}},
			{ID: "short", Vector: vector.Vector{0.6, 0.8, 0}},
		})
		require.NoError(t, err)

		docs, err := s.GetDocuments(ctx, name, []string{"long"}, true)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, vector.Vector{3, 4, 0}, docs[0].Vector)

		resp, err := s.Search(ctx, vector.SearchRequest{Index: name, Vector: vector.Vector{1, 0, 0}, Metric: vector.DotProduct, TopK: 1})
		require.NoError(t, err)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, "long", resp.Results[0].ID)
		assert.InDelta(t, 3.0, float64(resp.Results[0].Score), 1e-5)

		require.NoError(t, s.DeleteDocuments(ctx, name, []string{"long", "short"}))
	})

	require.NoError(t, s.DeleteDocuments(ctx, name, []string{"A", "missing"}))
	info, err := s.DescribeIndex(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, int64(2), info.DocumentCount)
	assert.Equal(t, 3, info.Dimension)
}
