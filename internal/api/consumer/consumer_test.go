package consumer

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zereker/vectorstore/internal/domain"
	"github.com/Zereker/vectorstore/internal/service"
	"github.com/Zereker/vectorstore/pkg/mq"
	"github.com/Zereker/vectorstore/pkg/vector"
	"github.com/Zereker/vectorstore/pkg/vector/memory"
)

func TestConsumer_DisabledIsInert(t *testing.T) {
	c, err := NewConsumer(nil, Config{})
	require.NoError(t, err)
	assert.NoError(t, c.Start(context.Background()))
	assert.NoError(t, c.Stop())
}

func TestConsumer_AppliesPublishedCommands(t *testing.T) {
	ctx := context.Background()
	queue := mq.NewInMemoryQueue()
	svc := service.New(memory.New(memory.DefaultConfig()), service.Options{Queue: queue, Topic: "cmds"})
	require.NoError(t, svc.CreateIndex(ctx, &domain.CreateIndexRequest{Name: "docs", Dimension: 2}))

	c, err := NewConsumer(svc, Config{})
	require.NoError(t, err)
	require.NoError(t, c.Subscribe(queue, "cmds"))

	resp, err := svc.UpsertAsync(ctx, "docs", []vector.Document{
		{ID: "a", Vector: vector.Vector{1, 0}},
		{ID: "b", Vector: vector.Vector{0, 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, resp.IDs)

	docs, err := svc.GetDocuments(ctx, "docs", []string{"a", "b"}, false)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	require.NoError(t, svc.Publish(ctx, domain.Command{Op: domain.OpDelete, Index: "docs", IDs: []string{"a"}}))
	docs, err = svc.GetDocuments(ctx, "docs", []string{"a", "b"}, false)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "b", docs[0].ID)
}

type recorder struct {
	cmds []domain.Command
	err  error
}

func (r *recorder) Apply(_ context.Context, cmd domain.Command) error {
	r.cmds = append(r.cmds, cmd)
	return r.err
}

func TestConsumer_Handle(t *testing.T) {
	rec := &recorder{}
	c, err := NewConsumer(rec, Config{})
	require.NoError(t, err)

	t.Run("malformed", func(t *testing.T) {
		assert.Error(t, c.Handle(context.Background(), "cmds", []byte("{not json")))
		assert.Empty(t, rec.cmds)
	})

	t.Run("decoded", func(t *testing.T) {
		msg, err := json.Marshal(domain.Command{Op: domain.OpDelete, Index: "docs", IDs: []string{"x"}})
		require.NoError(t, err)
		require.NoError(t, c.Handle(context.Background(), "cmds", msg))
		require.Len(t, rec.cmds, 1)
		assert.Equal(t, []string{"x"}, rec.cmds[0].IDs)
	})

	t.Run("apply error propagates", func(t *testing.T) {
		rec.err = vector.IndexNotFound("docs")
		msg, _ := json.Marshal(domain.Command{Op: domain.OpDelete, Index: "docs", IDs: []string{"x"}})
		assert.ErrorIs(t, c.Handle(context.Background(), "cmds", msg), vector.ErrIndexNotFound)
	})
}
