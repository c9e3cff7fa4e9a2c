package vector

import (
	"math"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// Version is reported in BackendInfo.
const Version = "0.1.0"

// DefaultTopK is used when a SearchRequest does not set TopK.
const DefaultTopK = 10

// Vector is an embedding.
type Vector []float32

// Validate rejects empty vectors and non-finite components.
func (v Vector) Validate() error {
	if len(v) == 0 {
		return errors.New("vector is empty")
	}
	for i, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return errors.Errorf("component %d is not finite", i)
		}
	}
	return nil
}

// Clone returns a copy, preserving nil.
func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// Metric names a similarity function.
type Metric string

const (
	Cosine     Metric = "cosine"
	Euclidean  Metric = "euclidean"
	DotProduct Metric = "dot_product"
)

// ParseMetric accepts the canonical names plus "l2", "dot" and "inner_product".
// Empty means Cosine.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cosine":
		return Cosine, nil
	case "euclidean", "l2":
		return Euclidean, nil
	case "dot_product", "dot", "inner_product":
		return DotProduct, nil
	default:
		return "", InvalidConfig("unknown metric %q", s)
	}
}

// Document is the unit of storage.
type Document struct {
	ID       string   `json:"id"`
	Content  string   `json:"content,omitempty"`
	Vector   Vector   `json:"vector,omitempty"`
	Metadata Metadata `json:"metadata,omitempty"`
}

// Clone returns a deep copy.
func (d Document) Clone() Document {
	return Document{
		ID:       d.ID,
		Content:  d.Content,
		Vector:   d.Vector.Clone(),
		Metadata: d.Metadata.Clone(),
	}
}

// IndexConfig describes an index at creation time.
type IndexConfig struct {
	Name      string   `json:"name"`
	Dimension int      `json:"dimension"`
	Metric    Metric   `json:"metric,omitempty"`
	Options   Metadata `json:"options,omitempty"`
}

// Validate checks the config and fills the default metric.
func (c *IndexConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return InvalidConfig("index name is required")
	}
	if c.Dimension <= 0 {
		return InvalidConfig("index %q: dimension must be positive, got %d", c.Name, c.Dimension)
	}
	m, err := ParseMetric(string(c.Metric))
	if err != nil {
		return err
	}
	c.Metric = m
	return nil
}

// DecodeOptions decodes backend tuning options into out, a pointer to a struct
// tagged with `mapstructure`.
func DecodeOptions(opts Metadata, out any) error {
	if len(opts) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
		TagName:          "mapstructure",
	})
	if err != nil {
		return errors.WithMessage(err, "create options decoder")
	}
	if err := dec.Decode(opts.ToMap()); err != nil {
		return InvalidConfig("decode index options: %v", err)
	}
	return nil
}

// IndexInfo is returned by DescribeIndex.
type IndexInfo struct {
	Name          string    `json:"name"`
	Dimension     int       `json:"dimension"`
	Metric        Metric    `json:"metric"`
	DocumentCount int64     `json:"document_count"`
	SizeBytes     *int64    `json:"size_bytes,omitempty"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
	Options       Metadata  `json:"options,omitempty"`
}

// SearchRequest is a top-k similarity query.
type SearchRequest struct {
	Index          string  `json:"index"`
	Vector         Vector  `json:"vector,omitempty"`
	Text           string  `json:"text,omitempty"`
	TopK           int     `json:"top_k,omitempty"`
	Filter         *Filter `json:"filter,omitempty"`
	Metric         Metric  `json:"metric,omitempty"`
	IncludeVectors bool    `json:"include_vectors,omitempty"`
	// nil means true
	IncludeMetadata *bool    `json:"include_metadata,omitempty"`
	ScoreThreshold  *float32 `json:"score_threshold,omitempty"`
}

// Limit returns TopK or DefaultTopK.
func (r *SearchRequest) Limit() int {
	if r.TopK <= 0 {
		return DefaultTopK
	}
	return r.TopK
}

// WantMetadata reports whether results should carry metadata.
func (r *SearchRequest) WantMetadata() bool {
	return r.IncludeMetadata == nil || *r.IncludeMetadata
}

// ResolveMetric returns the override or the index metric.
func (r *SearchRequest) ResolveMetric(indexMetric Metric) (Metric, error) {
	if r.Metric == "" {
		return indexMetric, nil
	}
	return ParseMetric(string(r.Metric))
}

// Admits reports whether score passes the threshold.
func (r *SearchRequest) Admits(score float32) bool {
	return r.ScoreThreshold == nil || score >= *r.ScoreThreshold
}

// SearchResult is one scored hit.
type SearchResult struct {
	ID       string   `json:"id"`
	Score    float32  `json:"score"`
	Content  string   `json:"content,omitempty"`
	Vector   Vector   `json:"vector,omitempty"`
	Metadata Metadata `json:"metadata,omitempty"`
}

// SearchResponse carries results in descending score order.
type SearchResponse struct {
	Results       []SearchResult `json:"results"`
	ExecutionTime time.Duration  `json:"execution_time"`
	Cached        bool           `json:"cached,omitempty"`
}

// Clone returns a deep copy.
func (r *SearchResponse) Clone() *SearchResponse {
	if r == nil {
		return nil
	}
	out := &SearchResponse{
		Results:       make([]SearchResult, len(r.Results)),
		ExecutionTime: r.ExecutionTime,
		Cached:        r.Cached,
	}
	for i, res := range r.Results {
		out.Results[i] = SearchResult{
			ID:       res.ID,
			Score:    res.Score,
			Content:  res.Content,
			Vector:   res.Vector.Clone(),
			Metadata: res.Metadata.Clone(),
		}
	}
	return out
}

// Feature tags surfaced in BackendInfo.
const (
	FeatureComplexFiltering  = "complex_filtering"
	FeatureApproximateSearch = "approximate_search"
	FeatureMultipleMetrics   = "multiple_metrics"
	FeatureThreadSafe        = "thread_safe"
	FeatureHighPerformance   = "high_performance"
	FeatureNullMetadata      = "null_metadata"
	FeaturePersistent        = "persistent"
	FeatureBatchOperations   = "batch_operations"
)

// BackendInfo describes a backend's capabilities.
type BackendInfo struct {
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Features []string `json:"features"`
	Metadata Metadata `json:"metadata,omitempty"`
}

// HasFeature reports whether the feature tag is declared.
func (b BackendInfo) HasFeature(feature string) bool {
	for _, f := range b.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// Duration is a time.Duration decoded from strings such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
