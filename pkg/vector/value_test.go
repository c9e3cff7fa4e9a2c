package vector

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_JSONKinds(t *testing.T) {
	raw := `{"s":"x","i":3,"f":3.5,"whole":2.0,"b":true,"n":null,"a":[1,"two"],"o":{"k":false}}`

	var md Metadata
	require.NoError(t, json.Unmarshal([]byte(raw), &md))

	assert.Equal(t, StringKind, md["s"].Kind())
	assert.Equal(t, IntKind, md["i"].Kind())
	assert.Equal(t, FloatKind, md["f"].Kind())
	assert.Equal(t, FloatKind, md["whole"].Kind())
	assert.Equal(t, BoolKind, md["b"].Kind())
	assert.True(t, md["n"].IsNull())
	assert.Equal(t, ArrayKind, md["a"].Kind())
	assert.Equal(t, ObjectKind, md["o"].Kind())

	out, err := json.Marshal(md)
	require.NoError(t, err)

	var back Metadata
	require.NoError(t, json.Unmarshal(out, &back))
	assert.True(t, md.Equal(back))
	assert.Equal(t, FloatKind, back["whole"].Kind())
}

func TestValue_NonFiniteFloat(t *testing.T) {
	_, err := json.Marshal(Float(math.NaN()))
	assert.Error(t, err)
}

func TestFromAny(t *testing.T) {
	v, err := FromAny(map[string]any{
		"n":    7,
		"u":    uint32(9),
		"f32":  float32(1.5),
		"list": []string{"a", "b"},
		"nest": map[string]int{"x": 1},
	})
	require.NoError(t, err)

	obj, ok := v.AsObject()
	require.True(t, ok)
	assert.Equal(t, Int(7), obj["n"])
	assert.Equal(t, Int(9), obj["u"])
	assert.Equal(t, Float(1.5), obj["f32"])
	assert.True(t, obj["list"].Equal(Array(String("a"), String("b"))))
	assert.True(t, obj["nest"].Equal(Object(map[string]Value{"x": Int(1)})))

	_, err = FromAny(struct{}{})
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestValue_Equal(t *testing.T) {
	assert.True(t, Int(1).Equal(Float(1.0)))
	assert.False(t, Int(1).Equal(String("1")))
	assert.True(t, Null().Equal(Null()))
	assert.False(t, Array(Int(1)).Equal(Array(Int(1), Int(2))))
}

func TestMetadata_NullFields(t *testing.T) {
	md := Metadata{
		"ok":     Int(1),
		"plain":  Null(),
		"nested": Object(map[string]Value{"x": Null()}),
	}
	assert.Equal(t, []string{"nested", "plain"}, md.NullFields())
}

func TestMetadata_CloneIsDeep(t *testing.T) {
	inner := map[string]Value{"x": Int(1)}
	md := Metadata{"o": Object(inner)}
	cp := md.Clone()
	inner["x"] = Int(2)

	obj, _ := cp["o"].AsObject()
	assert.Equal(t, Int(1), obj["x"])
}

func TestDecodeOptions(t *testing.T) {
	var tuning struct {
		M              int    `mapstructure:"m"`
		EfConstruction int    `mapstructure:"ef_construction"`
		Engine         string `mapstructure:"engine"`
	}
	err := DecodeOptions(Metadata{
		"m":               Int(16),
		"ef_construction": String("128"),
		"engine":          String("lucene"),
	}, &tuning)
	require.NoError(t, err)
	assert.Equal(t, 16, tuning.M)
	assert.Equal(t, 128, tuning.EfConstruction)
	assert.Equal(t, "lucene", tuning.Engine)
}

func TestErrorFormatting(t *testing.T) {
	err := DimensionMismatch("docs", "a", 3, 2)
	assert.Equal(t, `dimension_mismatch: index="docs" id="a" expected=3 actual=2`, err.Error())
	assert.Equal(t, KindDimensionMismatch, KindOf(err))
	assert.False(t, IsRetryable(err))
	assert.True(t, IsRetryable(Wrap(KindTimeout, "docs", assert.AnError)))
}

func TestPrepareBatch(t *testing.T) {
	docs := []Document{
		{ID: "a", Vector: Vector{1, 2}},
		{Vector: Vector{3, 4}},
	}
	ids, err := PrepareBatch("docs", 2, docs)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, "a", ids[0])
	assert.NotEmpty(t, ids[1])
	assert.Equal(t, ids[1], docs[1].ID)

	_, err = PrepareBatch("docs", 2, []Document{{ID: "x"}})
	assert.ErrorIs(t, err, ErrInvalidVector)

	_, err = PrepareBatch("docs", 2, []Document{{ID: "x", Vector: Vector{float32(math.Inf(1)), 0}}})
	assert.ErrorIs(t, err, ErrInvalidVector)
}
