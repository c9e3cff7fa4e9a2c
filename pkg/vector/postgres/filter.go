package postgres

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Zereker/vectorstore/pkg/vector"
)

// whereBuilder renders filters as SQL over the jsonb metadata column.
// Arguments are numbered from offset+1.
type whereBuilder struct {
	offset int
	args   []any
}

func (b *whereBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", b.offset+len(b.args))
}

func (b *whereBuilder) textArg(s string) string {
	return b.arg(s) + "::text"
}

func (b *whereBuilder) jsonArg(v vector.Value) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", vector.InvalidFilter("encode operand: %v", err)
	}
	return b.arg(string(data)) + "::jsonb", nil
}

// translate returns a boolean SQL expression that is true for at least
// every row f matches, and never NULL. exact reports whether it is true for
// no other rows.
func (b *whereBuilder) translate(f *vector.Filter) (expr string, exact bool, err error) {
	if f == nil {
		return "TRUE", true, nil
	}

	switch f.Op {
	case vector.OpAnd, vector.OpOr:
		parts := make([]string, 0, len(f.Conditions))
		exact = true
		for _, c := range f.Conditions {
			part, ok, err := b.translate(c)
			if err != nil {
				return "", false, err
			}
			exact = exact && ok
			parts = append(parts, part)
		}
		if len(parts) == 0 {
			if f.Op == vector.OpAnd {
				return "TRUE", true, nil
			}
			return "FALSE", true, nil
		}
		sep := " AND "
		if f.Op == vector.OpOr {
			sep = " OR "
		}
		return "(" + strings.Join(parts, sep) + ")", exact, nil
	case vector.OpNot:
		mark := len(b.args)
		part, ok, err := b.translate(f.Conditions[0])
		if err != nil {
			return "", false, err
		}
		if !ok {
			b.args = b.args[:mark]
			return "TRUE", false, nil
		}
		return "(NOT " + part + ")", true, nil
	}

	switch f.Op {
	case vector.OpRegex:
		// POSIX and RE2 syntax differ; the matcher decides
		return "TRUE", false, nil
	case vector.OpGt, vector.OpGte, vector.OpLt, vector.OpLte:
		if _, ok := f.Value.AsFloat64(); !ok {
			return "FALSE", true, nil
		}
	}

	// every placeholder allocated below must appear in the returned SQL
	key := b.textArg(f.Field)
	field := "(metadata -> " + key + ")"
	text := "(metadata ->> " + key + ")"
	isString := "jsonb_typeof(" + field + ") = 'string'"

	switch f.Op {
	case vector.OpExists:
		return "(metadata ? " + key + ")", true, nil
	case vector.OpNotExists:
		return "(NOT metadata ? " + key + ")", true, nil
	case vector.OpEq, vector.OpNe:
		operand, err := b.jsonArg(f.Value)
		if err != nil {
			return "", false, err
		}
		if f.Op == vector.OpEq {
			return "COALESCE(" + field + " = " + operand + ", FALSE)", true, nil
		}
		return "(" + field + " IS DISTINCT FROM " + operand + ")", true, nil
	case vector.OpIn, vector.OpNotIn:
		values := make([]string, 0, len(f.Values))
		for _, v := range f.Values {
			data, err := json.Marshal(v)
			if err != nil {
				return "", false, vector.InvalidFilter("encode operand: %v", err)
			}
			values = append(values, string(data))
		}
		in := "COALESCE(" + field + " = ANY(" + b.arg(values) + "::jsonb[]), FALSE)"
		if f.Op == vector.OpIn {
			return in, true, nil
		}
		return "(NOT " + in + ")", true, nil
	case vector.OpGt, vector.OpGte, vector.OpLt, vector.OpLte:
		n, _ := f.Value.AsFloat64()
		op := map[vector.Op]string{vector.OpGt: ">", vector.OpGte: ">=", vector.OpLt: "<", vector.OpLte: "<="}[f.Op]
		return fmt.Sprintf("(CASE WHEN jsonb_typeof(%s) = 'number' THEN %s::float8 %s %s::float8 ELSE FALSE END)",
			field, text, op, b.arg(n)), true, nil
	case vector.OpContains:
		s, _ := f.Value.AsString()
		return fmt.Sprintf("(CASE WHEN %s THEN strpos(%s, %s) > 0 ELSE FALSE END)", isString, text, b.textArg(s)), true, nil
	case vector.OpStartsWith:
		s, _ := f.Value.AsString()
		p := b.textArg(s)
		return fmt.Sprintf("(CASE WHEN %s THEN left(%s, length(%s)) = %s ELSE FALSE END)", isString, text, p, p), true, nil
	case vector.OpEndsWith:
		s, _ := f.Value.AsString()
		p := b.textArg(s)
		return fmt.Sprintf("(CASE WHEN %s THEN right(%s, length(%s)) = %s ELSE FALSE END)", isString, text, p, p), true, nil
	default:
		return "", false, vector.InvalidFilter("unknown operator %q", f.Op)
	}
}
