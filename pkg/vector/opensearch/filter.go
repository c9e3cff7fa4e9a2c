package opensearch

import (
	"strings"

	"github.com/Zereker/vectorstore/pkg/vector"
)

const metadataField = "metadata."

// translate turns f into a bool-DSL clause that matches at least every
// document f matches; the client-side matcher removes the rest. A nil clause
// means match all.
//
// Keyword and numeric queries match array fields per element, and exists
// skips empty arrays, so no translation is exact. Negations are therefore
// never pushed down.
func translate(f *vector.Filter) map[string]any {
	if f == nil {
		return nil
	}

	field := metadataField + f.Field
	switch f.Op {
	case vector.OpEq:
		if !scalar(f.Value) {
			return nil
		}
		return map[string]any{"term": map[string]any{field: f.Value.ToAny()}}
	case vector.OpGt, vector.OpGte, vector.OpLt, vector.OpLte:
		if _, ok := f.Value.AsFloat64(); !ok {
			return nil
		}
		return map[string]any{"range": map[string]any{field: map[string]any{string(f.Op): f.Value.ToAny()}}}
	case vector.OpIn:
		values := make([]any, 0, len(f.Values))
		for _, v := range f.Values {
			if !scalar(v) {
				return nil
			}
			values = append(values, v.ToAny())
		}
		return map[string]any{"terms": map[string]any{field: values}}
	case vector.OpContains, vector.OpStartsWith, vector.OpEndsWith:
		s, _ := f.Value.AsString()
		return stringClause(f.Op, field, s)
	case vector.OpAnd:
		var clauses []map[string]any
		for _, c := range f.Conditions {
			if clause := translate(c); clause != nil {
				clauses = append(clauses, clause)
			}
		}
		if len(clauses) == 0 {
			return nil
		}
		return map[string]any{"bool": map[string]any{"filter": clauses}}
	case vector.OpOr:
		clauses := make([]map[string]any, 0, len(f.Conditions))
		for _, c := range f.Conditions {
			clause := translate(c)
			if clause == nil {
				return nil
			}
			clauses = append(clauses, clause)
		}
		return map[string]any{"bool": map[string]any{"should": clauses, "minimum_should_match": 1}}
	default:
		return nil
	}
}

func scalar(v vector.Value) bool {
	switch v.Kind() {
	case vector.StringKind, vector.IntKind, vector.FloatKind, vector.BoolKind:
		return true
	default:
		return false
	}
}

func stringClause(op vector.Op, field, s string) map[string]any {
	switch op {
	case vector.OpStartsWith:
		return map[string]any{"prefix": map[string]any{field: s}}
	case vector.OpEndsWith:
		return map[string]any{"wildcard": map[string]any{field: "*" + escapeWildcard(s)}}
	default:
		return map[string]any{"wildcard": map[string]any{field: "*" + escapeWildcard(s) + "*"}}
	}
}

var wildcardEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)

func escapeWildcard(s string) string {
	return wildcardEscaper.Replace(s)
}
