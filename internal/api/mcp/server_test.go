package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zereker/vectorstore/internal/service"
	"github.com/Zereker/vectorstore/pkg/vector"
	"github.com/Zereker/vectorstore/pkg/vector/memory"
)

func connect(t *testing.T) *mcp.ClientSession {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	svc := service.New(memory.New(memory.DefaultConfig()), service.Options{})
	srv := NewServer(svc, ServerConfig{Name: "vectorstore-test", Version: vector.Version})

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	_, err := srv.mcp.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session
}

func call(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	return res
}

func text(t *testing.T, res *mcp.CallToolResult, i int) string {
	t.Helper()
	require.Greater(t, len(res.Content), i)
	tc, ok := res.Content[i].(*mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestServer_ListsTools(t *testing.T) {
	session := connect(t)

	res, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		ToolListIndexes, ToolCreateIndex, ToolDescribeIndex, ToolUpsert,
		ToolSearch, ToolGetDocuments, ToolDeleteDocuments,
	}, names)
}

func TestServer_ToolRoundTrip(t *testing.T) {
	session := connect(t)

	res := call(t, session, ToolCreateIndex, map[string]any{"name": "docs", "dimension": 2})
	require.False(t, res.IsError, text(t, res, 0))

	res = call(t, session, ToolCreateIndex, map[string]any{"name": "docs", "dimension": 2})
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res, 0), "index_already_exists")

	res = call(t, session, ToolUpsert, map[string]any{
		"index": "docs",
		"documents": []map[string]any{
			{"id": "a", "vector": []float32{1, 0}, "metadata": map[string]any{"lang": "en", "year": 2020}},
			{"id": "b", "vector": []float32{0, 1}, "metadata": map[string]any{"lang": "fr"}},
		},
	})
	require.False(t, res.IsError, text(t, res, 0))

	res = call(t, session, ToolSearch, map[string]any{
		"index":  "docs",
		"vector": []float32{0.5, 0.5},
		"filter": map[string]any{"op": "eq", "field": "lang", "value": "fr"},
	})
	require.False(t, res.IsError, text(t, res, 0))
	var results []vector.SearchResult
	require.NoError(t, json.Unmarshal([]byte(text(t, res, 1)), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)

	res = call(t, session, ToolDescribeIndex, map[string]any{"index": "docs"})
	require.False(t, res.IsError)
	assert.Contains(t, text(t, res, 0), "2 documents")

	res = call(t, session, ToolGetDocuments, map[string]any{"index": "docs", "ids": []string{"a", "zzz"}})
	require.False(t, res.IsError)
	var docs []vector.Document
	require.NoError(t, json.Unmarshal([]byte(text(t, res, 1)), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, vector.Int(2020), docs[0].Metadata["year"])

	res = call(t, session, ToolDeleteDocuments, map[string]any{"index": "docs", "ids": []string{"a"}})
	require.False(t, res.IsError)

	res = call(t, session, ToolListIndexes, map[string]any{})
	require.False(t, res.IsError)
	assert.JSONEq(t, `["docs"]`, text(t, res, 1))
}

func TestServer_ToolErrors(t *testing.T) {
	session := connect(t)

	res := call(t, session, ToolDescribeIndex, map[string]any{"index": "missing"})
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res, 0), "index_not_found")

	call(t, session, ToolCreateIndex, map[string]any{"name": "docs", "dimension": 2})
	res = call(t, session, ToolSearch, map[string]any{"index": "docs", "text": "no embedder configured"})
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res, 0), "invalid_vector")
}
