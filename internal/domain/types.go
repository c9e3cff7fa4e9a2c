// Package domain holds the request and command types shared by the HTTP,
// MCP and Kafka entry points.
package domain

import (
	"fmt"

	"github.com/Zereker/vectorstore/pkg/vector"
)

// ============================================================================
// 索引请求
// ============================================================================

// CreateIndexRequest 创建索引
type CreateIndexRequest struct {
	Name      string          `json:"name"`
	Dimension int             `json:"dimension"`
	Metric    vector.Metric   `json:"metric,omitempty"`
	Options   vector.Metadata `json:"options,omitempty"`
}

// IndexConfig converts the request.
func (r *CreateIndexRequest) IndexConfig() vector.IndexConfig {
	return vector.IndexConfig{
		Name:      r.Name,
		Dimension: r.Dimension,
		Metric:    r.Metric,
		Options:   r.Options,
	}
}

// ============================================================================
// 文档请求
// ============================================================================

// UpsertRequest 写入文档
type UpsertRequest struct {
	Documents []vector.Document `json:"documents"`
}

// UpsertResponse lists affected ids in input order.
type UpsertResponse struct {
	IDs   []string `json:"ids"`
	Async bool     `json:"async,omitempty"`
}

// GetDocumentsRequest 按 id 读取文档
type GetDocumentsRequest struct {
	IDs            []string `json:"ids"`
	IncludeVectors bool     `json:"include_vectors,omitempty"`
}

// DeleteDocumentsRequest 按 id 删除文档
type DeleteDocumentsRequest struct {
	IDs []string `json:"ids"`
}

// UpdateDocumentRequest 更新文档; empty fields keep stored values.
type UpdateDocumentRequest struct {
	Content  string          `json:"content,omitempty"`
	Vector   vector.Vector   `json:"vector,omitempty"`
	Metadata vector.Metadata `json:"metadata,omitempty"`
}

// Document converts the request for the document id.
func (r *UpdateDocumentRequest) Document(id string) vector.Document {
	return vector.Document{ID: id, Content: r.Content, Vector: r.Vector, Metadata: r.Metadata}
}

// ============================================================================
// 异步命令 (Kafka)
// ============================================================================

// CommandOp names a write carried by a Command.
type CommandOp string

const (
	OpUpsert CommandOp = "upsert"
	OpDelete CommandOp = "delete"
	OpUpdate CommandOp = "update"
)

// Command is a write published to the command topic and applied by the
// consumer.
type Command struct {
	Op        CommandOp         `json:"op"`
	Index     string            `json:"index"`
	Documents []vector.Document `json:"documents,omitempty"`
	IDs       []string          `json:"ids,omitempty"`
}

// Validate checks that the command carries what its op needs.
func (c *Command) Validate() error {
	if c.Index == "" {
		return fmt.Errorf("index is required")
	}
	switch c.Op {
	case OpUpsert:
		if len(c.Documents) == 0 {
			return fmt.Errorf("upsert needs documents")
		}
	case OpDelete:
		if len(c.IDs) == 0 {
			return fmt.Errorf("delete needs ids")
		}
	case OpUpdate:
		if len(c.Documents) != 1 || c.Documents[0].ID == "" {
			return fmt.Errorf("update needs exactly one document with an id")
		}
	default:
		return fmt.Errorf("unknown op %q", c.Op)
	}
	return nil
}

// ============================================================================
// 统计
// ============================================================================

// CacheStats mirrors the result cache counters.
type CacheStats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	Entries   int     `json:"entries"`
	HitRate   float64 `json:"hit_rate"`
}

// OperationStats 单个操作的统计
type OperationStats struct {
	Count        int64   `json:"count"`
	Errors       int64   `json:"errors"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	MinLatencyMs float64 `json:"min_latency_ms"`
	MaxLatencyMs float64 `json:"max_latency_ms"`
}

// StatsResponse 服务统计
type StatsResponse struct {
	Backend         string                    `json:"backend"`
	UptimeSeconds   float64                   `json:"uptime_seconds"`
	TotalOperations int64                     `json:"total_operations"`
	OpsPerSecond    float64                   `json:"ops_per_second"`
	CacheHitRate    float64                   `json:"cache_hit_rate"`
	Operations      map[string]OperationStats `json:"operations"`
	Cache           *CacheStats               `json:"cache,omitempty"`
}
