package vector

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Op is a filter operator.
type Op string

const (
	OpEq         Op = "eq"
	OpNe         Op = "ne"
	OpGt         Op = "gt"
	OpGte        Op = "gte"
	OpLt         Op = "lt"
	OpLte        Op = "lte"
	OpIn         Op = "in"
	OpNotIn      Op = "not_in"
	OpExists     Op = "exists"
	OpNotExists  Op = "not_exists"
	OpContains   Op = "contains"
	OpStartsWith Op = "starts_with"
	OpEndsWith   Op = "ends_with"
	OpRegex      Op = "regex"
	OpAnd        Op = "and"
	OpOr         Op = "or"
	OpNot        Op = "not"
)

// IsLeaf reports whether op is a field predicate.
func (op Op) IsLeaf() bool {
	switch op {
	case OpAnd, OpOr, OpNot:
		return false
	default:
		return true
	}
}

// Filter is a boolean expression over document metadata.
//
// Leaf predicates use Field plus Value (comparisons, string operations) or
// Values (in, not_in). Combinators use Conditions; not takes exactly one.
type Filter struct {
	Op         Op
	Field      string
	Value      Value
	Values     []Value
	Conditions []*Filter
}

func Eq(field string, v Value) *Filter  { return &Filter{Op: OpEq, Field: field, Value: v} }
func Ne(field string, v Value) *Filter  { return &Filter{Op: OpNe, Field: field, Value: v} }
func Gt(field string, v Value) *Filter  { return &Filter{Op: OpGt, Field: field, Value: v} }
func Gte(field string, v Value) *Filter { return &Filter{Op: OpGte, Field: field, Value: v} }
func Lt(field string, v Value) *Filter  { return &Filter{Op: OpLt, Field: field, Value: v} }
func Lte(field string, v Value) *Filter { return &Filter{Op: OpLte, Field: field, Value: v} }

func In(field string, vs ...Value) *Filter    { return &Filter{Op: OpIn, Field: field, Values: vs} }
func NotIn(field string, vs ...Value) *Filter { return &Filter{Op: OpNotIn, Field: field, Values: vs} }

func Exists(field string) *Filter    { return &Filter{Op: OpExists, Field: field} }
func NotExists(field string) *Filter { return &Filter{Op: OpNotExists, Field: field} }

func Contains(field, sub string) *Filter {
	return &Filter{Op: OpContains, Field: field, Value: String(sub)}
}

func StartsWith(field, prefix string) *Filter {
	return &Filter{Op: OpStartsWith, Field: field, Value: String(prefix)}
}

func EndsWith(field, suffix string) *Filter {
	return &Filter{Op: OpEndsWith, Field: field, Value: String(suffix)}
}

func Regex(field, pattern string) *Filter {
	return &Filter{Op: OpRegex, Field: field, Value: String(pattern)}
}

func And(fs ...*Filter) *Filter { return &Filter{Op: OpAnd, Conditions: fs} }
func Or(fs ...*Filter) *Filter  { return &Filter{Op: OpOr, Conditions: fs} }
func Not(f *Filter) *Filter     { return &Filter{Op: OpNot, Conditions: []*Filter{f}} }

type filterJSON struct {
	Op         Op        `json:"op"`
	Field      string    `json:"field,omitempty"`
	Value      *Value    `json:"value,omitempty"`
	Values     []Value   `json:"values,omitempty"`
	Conditions []*Filter `json:"conditions,omitempty"`
	Condition  *Filter   `json:"condition,omitempty"`
}

func (f *Filter) MarshalJSON() ([]byte, error) {
	out := filterJSON{Op: f.Op, Field: f.Field}
	switch f.Op {
	case OpIn, OpNotIn:
		out.Values = f.Values
		if out.Values == nil {
			out.Values = []Value{}
		}
	case OpExists, OpNotExists:
	case OpAnd, OpOr, OpNot:
		out.Conditions = f.Conditions
	default:
		v := f.Value
		out.Value = &v
	}
	return json.Marshal(out)
}

func (f *Filter) UnmarshalJSON(data []byte) error {
	var in filterJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return errors.Wrap(err, "decode filter")
	}
	*f = Filter{Op: in.Op, Field: in.Field, Values: in.Values, Conditions: in.Conditions}
	if in.Value != nil {
		f.Value = *in.Value
	}
	if in.Condition != nil && f.Op == OpNot && len(f.Conditions) == 0 {
		f.Conditions = []*Filter{in.Condition}
	}
	return nil
}

// CanonicalJSON returns a stable encoding used in cache keys.
// Map keys are sorted by encoding/json, so equal filters encode equally.
func (f *Filter) CanonicalJSON() ([]byte, error) {
	if f == nil {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

// Fields returns every metadata field referenced by the filter.
func (f *Filter) Fields() []string {
	seen := map[string]struct{}{}
	var out []string
	var walk func(*Filter)
	walk = func(n *Filter) {
		if n == nil {
			return
		}
		if n.Op.IsLeaf() {
			if _, ok := seen[n.Field]; !ok {
				seen[n.Field] = struct{}{}
				out = append(out, n.Field)
			}
			return
		}
		for _, c := range n.Conditions {
			walk(c)
		}
	}
	walk(f)
	return out
}
