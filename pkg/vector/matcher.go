package vector

import (
	"regexp"
	"strings"
)

// Matcher is a validated filter ready for evaluation. A nil Matcher admits everything.
type Matcher struct {
	root    *Filter
	regexes map[*Filter]*regexp.Regexp
}

// CompileFilter validates f and precompiles its regex predicates.
// A nil filter yields a nil Matcher.
func CompileFilter(f *Filter) (*Matcher, error) {
	if f == nil {
		return nil, nil
	}
	m := &Matcher{root: f, regexes: map[*Filter]*regexp.Regexp{}}
	if err := m.compile(f, 0); err != nil {
		return nil, err
	}
	return m, nil
}

const maxFilterDepth = 64

func (m *Matcher) compile(f *Filter, depth int) error {
	if f == nil {
		return InvalidFilter("nil condition")
	}
	if depth > maxFilterDepth {
		return InvalidFilter("filter nested deeper than %d", maxFilterDepth)
	}
	switch f.Op {
	case OpAnd, OpOr:
		for _, c := range f.Conditions {
			if err := m.compile(c, depth+1); err != nil {
				return err
			}
		}
		return nil
	case OpNot:
		if len(f.Conditions) != 1 {
			return InvalidFilter("not takes exactly one condition, got %d", len(f.Conditions))
		}
		return m.compile(f.Conditions[0], depth+1)
	}

	if strings.TrimSpace(f.Field) == "" {
		return InvalidFilter("%s: field is required", f.Op)
	}
	switch f.Op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpNotIn, OpExists, OpNotExists:
		return nil
	case OpContains, OpStartsWith, OpEndsWith:
		if _, ok := f.Value.AsString(); !ok {
			return InvalidFilter("%s on %q needs a string operand", f.Op, f.Field)
		}
		return nil
	case OpRegex:
		pattern, ok := f.Value.AsString()
		if !ok {
			return InvalidFilter("regex on %q needs a string pattern", f.Field)
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return InvalidFilter("regex on %q: %v", f.Field, err)
		}
		m.regexes[f] = re
		return nil
	default:
		return InvalidFilter("unknown operator %q", f.Op)
	}
}

// Filter returns the compiled expression.
func (m *Matcher) Filter() *Filter {
	if m == nil {
		return nil
	}
	return m.root
}

// Match evaluates the filter against metadata.
func (m *Matcher) Match(md Metadata) bool {
	if m == nil {
		return true
	}
	return m.eval(m.root, md)
}

func (m *Matcher) eval(f *Filter, md Metadata) bool {
	switch f.Op {
	case OpAnd:
		for _, c := range f.Conditions {
			if !m.eval(c, md) {
				return false
			}
		}
		return true
	case OpOr:
		for _, c := range f.Conditions {
			if m.eval(c, md) {
				return true
			}
		}
		return false
	case OpNot:
		return !m.eval(f.Conditions[0], md)
	}

	v, present := md[f.Field]
	switch f.Op {
	case OpExists:
		return present
	case OpNotExists:
		return !present
	case OpEq:
		return present && v.Equal(f.Value)
	case OpNe:
		return !present || !v.Equal(f.Value)
	case OpIn:
		return present && containsValue(f.Values, v)
	case OpNotIn:
		return !present || !containsValue(f.Values, v)
	case OpGt:
		return present && compareNumeric(v, f.Value, func(a, b float64) bool { return a > b })
	case OpGte:
		return present && compareNumeric(v, f.Value, func(a, b float64) bool { return a >= b })
	case OpLt:
		return present && compareNumeric(v, f.Value, func(a, b float64) bool { return a < b })
	case OpLte:
		return present && compareNumeric(v, f.Value, func(a, b float64) bool { return a <= b })
	}

	s, ok := v.AsString()
	if !present || !ok {
		return false
	}
	operand, _ := f.Value.AsString()
	switch f.Op {
	case OpContains:
		return strings.Contains(s, operand)
	case OpStartsWith:
		return strings.HasPrefix(s, operand)
	case OpEndsWith:
		return strings.HasSuffix(s, operand)
	case OpRegex:
		return m.regexes[f].MatchString(s)
	}
	return false
}

func containsValue(vs []Value, v Value) bool {
	for _, candidate := range vs {
		if candidate.Equal(v) {
			return true
		}
	}
	return false
}

func compareNumeric(field, literal Value, cmp func(a, b float64) bool) bool {
	a, ok := field.AsFloat64()
	if !ok {
		return false
	}
	b, ok := literal.AsFloat64()
	if !ok {
		return false
	}
	return cmp(a, b)
}
