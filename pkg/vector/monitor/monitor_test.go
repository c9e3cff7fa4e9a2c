package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zereker/vectorstore/pkg/vector"
	"github.com/Zereker/vectorstore/pkg/vector/memory"
)

func TestMonitor_Record(t *testing.T) {
	m := New(nil)

	m.Record(OpSearch, 10*time.Millisecond, nil)
	m.Record(OpSearch, 30*time.Millisecond, errors.New("boom"))
	m.Record(OpUpsert, 5*time.Millisecond, nil)

	snap := m.Snapshot()
	search := snap.Operations[OpSearch]
	assert.Equal(t, int64(2), search.Count)
	assert.Equal(t, int64(1), search.Errors)
	assert.Equal(t, 10*time.Millisecond, search.MinLatency)
	assert.Equal(t, 30*time.Millisecond, search.MaxLatency)
	assert.Equal(t, 20*time.Millisecond, search.AvgLatency())
	assert.Equal(t, int64(3), snap.TotalOperations())
	assert.Greater(t, snap.OpsPerSecond, 0.0)

	m.Reset()
	assert.Empty(t, m.Snapshot().Operations)
}

func TestMonitor_CacheHitRate(t *testing.T) {
	m := New(nil)
	assert.Equal(t, 0.0, m.Snapshot().CacheHitRate())

	m.RecordCacheHit()
	m.RecordCacheHit()
	m.RecordCacheHit()
	m.RecordCacheMiss()

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.CacheHits)
	assert.Equal(t, int64(1), snap.CacheMisses)
	assert.InDelta(t, 0.75, snap.CacheHitRate(), 1e-9)
}

func TestMonitor_Collectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Record(OpSearch, time.Millisecond, nil)
	m.Record(OpSearch, time.Millisecond, errors.New("boom"))
	m.RecordCacheMiss()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.total.WithLabelValues(OpSearch, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.total.WithLabelValues(OpSearch, "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cache.WithLabelValues("miss")))

	count, err := testutil.GatherAndCount(reg, "vectorstore_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestWrap(t *testing.T) {
	ctx := context.Background()
	m := New(nil)
	s := Wrap(memory.New(memory.DefaultConfig()), m)

	require.NoError(t, s.CreateIndex(ctx, vector.IndexConfig{Name: "docs", Dimension: 2}))
	_, err := s.Upsert(ctx, "docs", []vector.Document{{ID: "a", Vector: vector.Vector{1, 0}}})
	require.NoError(t, err)
	_, err = s.Search(ctx, vector.SearchRequest{Index: "docs", Vector: vector.Vector{1, 0}})
	require.NoError(t, err)
	_, err = s.Search(ctx, vector.SearchRequest{Index: "missing", Vector: vector.Vector{1, 0}})
	require.ErrorIs(t, err, vector.ErrIndexNotFound)

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.Operations[OpCreateIndex].Count)
	assert.Equal(t, int64(1), snap.Operations[OpUpsert].Count)
	assert.Equal(t, int64(2), snap.Operations[OpSearch].Count)
	assert.Equal(t, int64(1), snap.Operations[OpSearch].Errors)
	assert.Equal(t, "memory", s.BackendInfo().Name)
}
