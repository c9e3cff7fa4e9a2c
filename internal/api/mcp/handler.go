package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/pkg/errors"

	"github.com/Zereker/vectorstore/internal/domain"
	"github.com/Zereker/vectorstore/internal/service"
	"github.com/Zereker/vectorstore/pkg/log"
	"github.com/Zereker/vectorstore/pkg/vector"
)

// Handler handles MCP tool calls
type Handler struct {
	logger  *slog.Logger
	service *service.Service
}

// NewHandler creates a new MCP handler
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		logger:  log.Logger("mcp.handler"),
		service: svc,
	}
}

func (h *Handler) listIndexes(ctx context.Context, _ *mcp.CallToolRequest, _ listIndexesInput) (*mcp.CallToolResult, any, error) {
	names, err := h.service.ListIndexes(ctx)
	if err != nil {
		return h.errorResult(ToolListIndexes, err), nil, nil
	}
	if names == nil {
		names = []string{}
	}
	return jsonResult(fmt.Sprintf("%d indexes", len(names)), names), nil, nil
}

func (h *Handler) createIndex(ctx context.Context, _ *mcp.CallToolRequest, in createIndexInput) (*mcp.CallToolResult, any, error) {
	opts, err := convert[vector.Metadata](in.Options)
	if err != nil {
		return h.errorResult(ToolCreateIndex, vector.InvalidConfig("options: %v", err)), nil, nil
	}
	req := &domain.CreateIndexRequest{
		Name:      in.Name,
		Dimension: in.Dimension,
		Metric:    vector.Metric(in.Metric),
		Options:   opts,
	}
	if err := h.service.CreateIndex(ctx, req); err != nil {
		return h.errorResult(ToolCreateIndex, err), nil, nil
	}
	return textResult(fmt.Sprintf("index %s created (dimension %d)", in.Name, in.Dimension)), nil, nil
}

func (h *Handler) describeIndex(ctx context.Context, _ *mcp.CallToolRequest, in indexInput) (*mcp.CallToolResult, any, error) {
	info, err := h.service.DescribeIndex(ctx, in.Index)
	if err != nil {
		return h.errorResult(ToolDescribeIndex, err), nil, nil
	}
	return jsonResult(fmt.Sprintf("index %s: %d documents", info.Name, info.DocumentCount), info), nil, nil
}

func (h *Handler) upsert(ctx context.Context, _ *mcp.CallToolRequest, in upsertInput) (*mcp.CallToolResult, any, error) {
	docs := make([]vector.Document, len(in.Documents))
	for i, d := range in.Documents {
		md, err := convert[vector.Metadata](d.Metadata)
		if err != nil {
			return h.errorResult(ToolUpsert, vector.SerializationFailed(in.Index, d.ID, err)), nil, nil
		}
		docs[i] = vector.Document{ID: d.ID, Content: d.Content, Vector: d.Vector, Metadata: md}
	}

	resp, err := h.service.Upsert(ctx, in.Index, docs)
	if err != nil {
		return h.errorResult(ToolUpsert, err), nil, nil
	}
	return jsonResult(fmt.Sprintf("upserted %d documents", len(resp.IDs)), resp), nil, nil
}

func (h *Handler) search(ctx context.Context, _ *mcp.CallToolRequest, in searchInput) (*mcp.CallToolResult, any, error) {
	var filter *vector.Filter
	if in.Filter != nil {
		f, err := convert[vector.Filter](in.Filter)
		if err != nil {
			return h.errorResult(ToolSearch, vector.InvalidFilter("%v", err)), nil, nil
		}
		filter = &f
	}

	resp, err := h.service.Search(ctx, vector.SearchRequest{
		Index:          in.Index,
		Vector:         in.Vector,
		Text:           in.Text,
		TopK:           in.TopK,
		Filter:         filter,
		Metric:         vector.Metric(in.Metric),
		IncludeVectors: in.IncludeVectors,
		ScoreThreshold: in.ScoreThreshold,
	})
	if err != nil {
		return h.errorResult(ToolSearch, err), nil, nil
	}
	return jsonResult(fmt.Sprintf("%d results", len(resp.Results)), resp.Results), nil, nil
}

func (h *Handler) getDocuments(ctx context.Context, _ *mcp.CallToolRequest, in getDocumentsInput) (*mcp.CallToolResult, any, error) {
	docs, err := h.service.GetDocuments(ctx, in.Index, in.IDs, in.IncludeVectors)
	if err != nil {
		return h.errorResult(ToolGetDocuments, err), nil, nil
	}
	if docs == nil {
		docs = []vector.Document{}
	}
	return jsonResult(fmt.Sprintf("found %d of %d documents", len(docs), len(in.IDs)), docs), nil, nil
}

func (h *Handler) deleteDocuments(ctx context.Context, _ *mcp.CallToolRequest, in deleteDocumentsInput) (*mcp.CallToolResult, any, error) {
	if err := h.service.DeleteDocuments(ctx, in.Index, in.IDs); err != nil {
		return h.errorResult(ToolDeleteDocuments, err), nil, nil
	}
	return textResult(fmt.Sprintf("deleted up to %d documents from %s", len(in.IDs), in.Index)), nil, nil
}

// convert re-decodes loosely typed JSON arguments into a typed value.
func convert[T any](in any) (T, error) {
	var out T
	if in == nil {
		return out, nil
	}
	data, err := json.Marshal(in)
	if err != nil {
		return out, errors.Wrap(err, "encode argument")
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, errors.Wrap(err, "decode argument")
	}
	return out, nil
}

func (h *Handler) errorResult(tool string, err error) *mcp.CallToolResult {
	kind := vector.KindOf(err)
	h.logger.Warn("tool failed", "tool", tool, "kind", kind, "error", err)
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("%s: %v", kind, err)}},
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// jsonResult carries a summary line followed by the JSON payload.
func jsonResult(summary string, payload any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return textResult(summary)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: summary},
			&mcp.TextContent{Text: string(data)},
		},
	}
}
