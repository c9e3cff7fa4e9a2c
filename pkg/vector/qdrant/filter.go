package qdrant

import (
	"github.com/qdrant/go-client/qdrant"

	"github.com/Zereker/vectorstore/pkg/vector"
)

const metadataKey = "metadata"

func fieldKey(field string) string {
	return metadataKey + "." + field
}

// translate returns a Qdrant filter matching at least every point f matches,
// or nil when nothing can be pushed down. Qdrant matches arrays per element
// and treats empty arrays as missing, so negations stay with the matcher.
func translate(f *vector.Filter) *qdrant.Filter {
	cond := condition(f)
	if cond == nil {
		return nil
	}
	if nested := cond.GetFilter(); nested != nil {
		return nested
	}
	return &qdrant.Filter{Must: []*qdrant.Condition{cond}}
}

func condition(f *vector.Filter) *qdrant.Condition {
	if f == nil {
		return nil
	}

	switch f.Op {
	case vector.OpAnd:
		var must []*qdrant.Condition
		for _, c := range f.Conditions {
			if cond := condition(c); cond != nil {
				must = append(must, cond)
			}
		}
		if len(must) == 0 {
			return nil
		}
		return qdrant.NewFilterAsCondition(&qdrant.Filter{Must: must})
	case vector.OpOr:
		should := make([]*qdrant.Condition, 0, len(f.Conditions))
		for _, c := range f.Conditions {
			cond := condition(c)
			if cond == nil {
				return nil
			}
			should = append(should, cond)
		}
		if len(should) == 0 {
			return nil
		}
		return qdrant.NewFilterAsCondition(&qdrant.Filter{Should: should})
	case vector.OpEq:
		return match(f.Field, f.Value)
	case vector.OpIn:
		should := make([]*qdrant.Condition, 0, len(f.Values))
		for _, v := range f.Values {
			cond := match(f.Field, v)
			if cond == nil {
				return nil
			}
			should = append(should, cond)
		}
		if len(should) == 0 {
			return nil
		}
		return qdrant.NewFilterAsCondition(&qdrant.Filter{Should: should})
	case vector.OpGt, vector.OpGte, vector.OpLt, vector.OpLte:
		n, ok := f.Value.AsFloat64()
		if !ok {
			return nil
		}
		r := &qdrant.Range{}
		switch f.Op {
		case vector.OpGt:
			r.Gt = &n
		case vector.OpGte:
			r.Gte = &n
		case vector.OpLt:
			r.Lt = &n
		case vector.OpLte:
			r.Lte = &n
		}
		return qdrant.NewRange(fieldKey(f.Field), r)
	default:
		return nil
	}
}

// match pushes equality on scalars. Numbers go through a closed range so
// integer and float payloads compare alike.
func match(field string, v vector.Value) *qdrant.Condition {
	key := fieldKey(field)
	switch v.Kind() {
	case vector.StringKind:
		s, _ := v.AsString()
		return qdrant.NewMatch(key, s)
	case vector.BoolKind:
		b, _ := v.AsBool()
		return qdrant.NewMatchBool(key, b)
	case vector.IntKind, vector.FloatKind:
		n, _ := v.AsFloat64()
		return qdrant.NewRange(key, &qdrant.Range{Gte: &n, Lte: &n})
	default:
		return nil
	}
}
