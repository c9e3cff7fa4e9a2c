package mcp

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Tool names
const (
	ToolListIndexes     = "vector_list_indexes"
	ToolCreateIndex     = "vector_create_index"
	ToolDescribeIndex   = "vector_describe_index"
	ToolUpsert          = "vector_upsert"
	ToolSearch          = "vector_search"
	ToolGetDocuments    = "vector_get_documents"
	ToolDeleteDocuments = "vector_delete_documents"
)

type listIndexesInput struct{}

type createIndexInput struct {
	Name      string         `json:"name" jsonschema:"index name"`
	Dimension int            `json:"dimension" jsonschema:"vector length every document must have"`
	Metric    string         `json:"metric,omitempty" jsonschema:"cosine (default), euclidean or dot_product"`
	Options   map[string]any `json:"options,omitempty" jsonschema:"backend specific tuning options"`
}

type indexInput struct {
	Index string `json:"index" jsonschema:"index name"`
}

// documentInput mirrors vector.Document with plain JSON metadata.
type documentInput struct {
	ID       string         `json:"id,omitempty" jsonschema:"document id, generated when empty"`
	Content  string         `json:"content,omitempty" jsonschema:"text, embedded when no vector is given"`
	Vector   []float32      `json:"vector,omitempty" jsonschema:"embedding"`
	Metadata map[string]any `json:"metadata,omitempty" jsonschema:"arbitrary JSON metadata"`
}

type upsertInput struct {
	Index     string          `json:"index" jsonschema:"index name"`
	Documents []documentInput `json:"documents" jsonschema:"documents to insert or replace"`
}

type searchInput struct {
	Index          string         `json:"index" jsonschema:"index name"`
	Vector         []float32      `json:"vector,omitempty" jsonschema:"query vector"`
	Text           string         `json:"text,omitempty" jsonschema:"query text, embedded when no vector is given"`
	TopK           int            `json:"top_k,omitempty" jsonschema:"number of results, default 10"`
	Filter         map[string]any `json:"filter,omitempty" jsonschema:"metadata filter such as {\"op\":\"eq\",\"field\":\"lang\",\"value\":\"en\"}"`
	Metric         string         `json:"metric,omitempty" jsonschema:"override the index metric"`
	IncludeVectors bool           `json:"include_vectors,omitempty" jsonschema:"return stored vectors"`
	ScoreThreshold *float32       `json:"score_threshold,omitempty" jsonschema:"drop results scoring below this"`
}

type getDocumentsInput struct {
	Index          string   `json:"index" jsonschema:"index name"`
	IDs            []string `json:"ids" jsonschema:"document ids"`
	IncludeVectors bool     `json:"include_vectors,omitempty" jsonschema:"return stored vectors"`
}

type deleteDocumentsInput struct {
	Index string   `json:"index" jsonschema:"index name"`
	IDs   []string `json:"ids" jsonschema:"document ids, missing ones are ignored"`
}

// registerTools adds every vector tool to the server.
func (s *Server) registerTools() {
	h := s.handler

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolListIndexes,
		Description: "列出所有向量索引",
	}, h.listIndexes)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolCreateIndex,
		Description: "创建向量索引，指定维度与相似度度量",
	}, h.createIndex)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolDescribeIndex,
		Description: "查看索引的维度、度量与文档数量",
	}, h.describeIndex)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolUpsert,
		Description: "写入或覆盖文档；没有向量的文档会用 content 生成向量",
	}, h.upsert)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolSearch,
		Description: "按向量或文本检索最相似的文档，可附带元数据过滤",
	}, h.search)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolGetDocuments,
		Description: "按 id 读取文档",
	}, h.getDocuments)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolDeleteDocuments,
		Description: "按 id 删除文档",
	}, h.deleteDocuments)
}
