package vector

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMetadata() Metadata {
	return Metadata{
		"category": String("news"),
		"title":    String("Go 1.24 released"),
		"views":    Int(120),
		"rating":   Float(4.5),
		"draft":    Bool(false),
		"tags":     Array(String("go"), String("release")),
	}
}

func TestMatcher_Leaves(t *testing.T) {
	md := sampleMetadata()

	tests := []struct {
		name   string
		filter *Filter
		want   bool
	}{
		{"eq string", Eq("category", String("news")), true},
		{"eq mismatch", Eq("category", String("sport")), false},
		{"eq missing field", Eq("author", String("x")), false},
		{"eq int against float literal", Eq("views", Float(120)), true},
		{"ne present", Ne("category", String("sport")), true},
		{"ne missing field", Ne("author", String("x")), true},
		{"gt int", Gt("views", Int(100)), true},
		{"gte float", Gte("rating", Float(4.5)), true},
		{"lt mixed", Lt("rating", Int(5)), true},
		{"lte false", Lte("views", Int(119)), false},
		{"gt missing field", Gt("score", Int(1)), false},
		{"gt non numeric field", Gt("category", Int(1)), false},
		{"gt non numeric literal", Gt("views", String("100")), false},
		{"in", In("category", String("sport"), String("news")), true},
		{"in missing field", In("author", String("x")), false},
		{"not in", NotIn("category", String("sport")), true},
		{"not in missing field", NotIn("author", String("x")), true},
		{"exists", Exists("draft"), true},
		{"exists missing", Exists("author"), false},
		{"not exists missing", NotExists("author"), true},
		{"not exists present", NotExists("draft"), false},
		{"contains", Contains("title", "1.24"), true},
		{"contains non string field", Contains("views", "1"), false},
		{"contains missing", Contains("author", "a"), false},
		{"starts with", StartsWith("title", "Go"), true},
		{"ends with", EndsWith("title", "released"), true},
		{"ends with false", EndsWith("title", "Go"), false},
		{"regex", Regex("title", `^Go \d+\.\d+`), true},
		{"regex no match", Regex("title", `^Rust`), false},
		{"eq array", Eq("tags", Array(String("go"), String("release"))), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := CompileFilter(tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Match(md))
		})
	}
}

func TestMatcher_Combinators(t *testing.T) {
	md := sampleMetadata()

	tests := []struct {
		name   string
		filter *Filter
		want   bool
	}{
		{"and all true", And(Eq("category", String("news")), Gt("views", Int(10))), true},
		{"and one false", And(Eq("category", String("news")), Gt("views", Int(1000))), false},
		{"empty and", And(), true},
		{"or one true", Or(Eq("category", String("sport")), Exists("draft")), true},
		{"or none true", Or(Eq("category", String("sport")), Exists("author")), false},
		{"empty or", Or(), false},
		{"not", Not(Eq("category", String("news"))), false},
		{"nested", And(Or(Eq("draft", Bool(true)), Lt("rating", Float(5))), Not(Exists("author"))), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := CompileFilter(tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Match(md))
		})
	}
}

func TestMatcher_ShortCircuit(t *testing.T) {
	// the second branch would match, but and must stop at the first false
	m, err := CompileFilter(And(Eq("missing", Int(1)), Regex("title", ".*")))
	require.NoError(t, err)
	assert.False(t, m.Match(sampleMetadata()))
}

func TestCompileFilter_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		filter *Filter
	}{
		{"empty field", Eq("", Int(1))},
		{"unknown op", &Filter{Op: "between", Field: "x"}},
		{"not arity", &Filter{Op: OpNot}},
		{"nil child", And(Eq("a", Int(1)), nil)},
		{"bad regex", Regex("title", "([")},
		{"contains non string", &Filter{Op: OpContains, Field: "title", Value: Int(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileFilter(tt.filter)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidFilter)
		})
	}
}

func TestCompileFilter_Nil(t *testing.T) {
	m, err := CompileFilter(nil)
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.True(t, m.Match(nil))
}

func TestFilter_JSON(t *testing.T) {
	raw := `{"op":"and","conditions":[
		{"op":"eq","field":"category","value":"news"},
		{"op":"in","field":"views","values":[1,120]},
		{"op":"not","conditions":[{"op":"exists","field":"author"}]}
	]}`

	var f Filter
	require.NoError(t, json.Unmarshal([]byte(raw), &f))
	assert.Equal(t, OpAnd, f.Op)
	require.Len(t, f.Conditions, 3)
	assert.Equal(t, Int(120), f.Conditions[1].Values[1])

	m, err := CompileFilter(&f)
	require.NoError(t, err)
	assert.True(t, m.Match(sampleMetadata()))

	a, err := f.CanonicalJSON()
	require.NoError(t, err)
	var again Filter
	require.NoError(t, json.Unmarshal(a, &again))
	b, err := again.CanonicalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
}

func TestFilter_Fields(t *testing.T) {
	f := And(Eq("a", Int(1)), Or(Exists("b"), Not(Eq("a", Int(2)))))
	assert.Equal(t, []string{"a", "b"}, f.Fields())
}
