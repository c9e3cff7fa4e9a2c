package memory

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/Zereker/vectorstore/pkg/vector"
)

const entryOverhead = 64

// index holds one collection. The vectors, metadata, content and seq maps are
// keyed by document id and always hold the same key set.
type index struct {
	mu sync.RWMutex

	name      string
	dimension int
	metric    vector.Metric
	options   vector.Metadata
	maxDocs   int
	createdAt time.Time
	updatedAt time.Time
	dropped   bool
	nextSeq   uint64
	sizeBytes int64
	vectors   map[string]vector.Vector
	metadata  map[string]vector.Metadata
	content   map[string]string
	seq       map[string]uint64
}

func newIndex(cfg vector.IndexConfig, capacity, maxDocs int) *index {
	now := time.Now()
	return &index{
		name:      cfg.Name,
		dimension: cfg.Dimension,
		metric:    cfg.Metric,
		options:   cfg.Options.Clone(),
		maxDocs:   maxDocs,
		createdAt: now,
		updatedAt: now,
		vectors:   make(map[string]vector.Vector, capacity),
		metadata:  make(map[string]vector.Metadata, capacity),
		content:   make(map[string]string, capacity),
		seq:       make(map[string]uint64, capacity),
	}
}

func (x *index) info() *vector.IndexInfo {
	size := x.sizeBytes
	return &vector.IndexInfo{
		Name:          x.name,
		Dimension:     x.dimension,
		Metric:        x.metric,
		DocumentCount: int64(len(x.vectors)),
		SizeBytes:     &size,
		CreatedAt:     x.createdAt,
		UpdatedAt:     x.updatedAt,
		Options:       x.options.Clone(),
	}
}

// put inserts or replaces doc. It reports whether the id was new.
// Replaced documents keep their insertion position.
func (x *index) put(doc vector.Document) bool {
	_, exists := x.vectors[doc.ID]
	if exists {
		x.sizeBytes -= x.estimate(doc.ID)
	} else {
		x.seq[doc.ID] = x.nextSeq
		x.nextSeq++
	}
	x.vectors[doc.ID] = doc.Vector.Clone()
	x.metadata[doc.ID] = doc.Metadata.Clone()
	if doc.Content != "" {
		x.content[doc.ID] = doc.Content
	} else {
		delete(x.content, doc.ID)
	}
	x.sizeBytes += x.estimate(doc.ID)
	return !exists
}

func (x *index) remove(id string) bool {
	if _, ok := x.vectors[id]; !ok {
		return false
	}
	x.sizeBytes -= x.estimate(id)
	delete(x.vectors, id)
	delete(x.metadata, id)
	delete(x.content, id)
	delete(x.seq, id)
	return true
}

func (x *index) document(id string, includeVector bool) (vector.Document, bool) {
	v, ok := x.vectors[id]
	if !ok {
		return vector.Document{}, false
	}
	doc := vector.Document{
		ID:       id,
		Content:  x.content[id],
		Metadata: x.metadata[id].Clone(),
	}
	if includeVector {
		doc.Vector = v.Clone()
	}
	return doc, true
}

// estimate approximates the bytes held for id.
func (x *index) estimate(id string) int64 {
	size := int64(len(id)*4 + entryOverhead)
	size += int64(len(x.vectors[id]) * 4)
	size += int64(len(x.content[id]))
	for k, v := range x.metadata[id] {
		size += int64(len(k)) + valueSize(v)
	}
	return size
}

func valueSize(v vector.Value) int64 {
	switch v.Kind() {
	case vector.StringKind:
		s, _ := v.AsString()
		return int64(len(s)) + 16
	case vector.ArrayKind:
		arr, _ := v.AsArray()
		size := int64(24)
		for _, e := range arr {
			size += valueSize(e)
		}
		return size
	case vector.ObjectKind:
		obj, _ := v.AsObject()
		size := int64(48)
		for k, e := range obj {
			size += int64(len(k)) + valueSize(e)
		}
		return size
	default:
		return 16
	}
}

type candidate struct {
	id    string
	seq   uint64
	score float32
}

// search scores every admitted document and returns the best k, ordered by
// score descending then insertion order.
func (x *index) search(req vector.SearchRequest, metric vector.Metric, matcher *vector.Matcher) ([]vector.SearchResult, error) {
	score, err := vector.ScorerFor(metric)
	if err != nil {
		return nil, err
	}

	candidates := make([]candidate, 0, len(x.vectors))
	for id, v := range x.vectors {
		if !matcher.Match(x.metadata[id]) {
			continue
		}
		s, err := score(req.Vector, v)
		if err != nil {
			return nil, vector.Internal(x.name, err)
		}
		if !req.Admits(s) {
			continue
		}
		candidates = append(candidates, candidate{id: id, seq: x.seq[id], score: s})
	}

	slices.SortFunc(candidates, func(a, b candidate) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})

	if k := req.Limit(); len(candidates) > k {
		candidates = candidates[:k]
	}

	results := make([]vector.SearchResult, len(candidates))
	for i, c := range candidates {
		results[i] = vector.SearchResult{
			ID:      c.id,
			Score:   c.score,
			Content: x.content[c.id],
		}
		if req.IncludeVectors {
			results[i].Vector = x.vectors[c.id].Clone()
		}
		if req.WantMetadata() {
			results[i].Metadata = x.metadata[c.id].Clone()
		}
	}
	return results, nil
}
