package vector

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	NullKind ValueKind = iota
	StringKind
	IntKind
	FloatKind
	BoolKind
	ArrayKind
	ObjectKind
)

func (k ValueKind) String() string {
	switch k {
	case NullKind:
		return "null"
	case StringKind:
		return "string"
	case IntKind:
		return "integer"
	case FloatKind:
		return "float"
	case BoolKind:
		return "boolean"
	case ArrayKind:
		return "array"
	case ObjectKind:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a metadata value. The zero Value is null.
type Value struct {
	kind ValueKind
	s    string
	i    int64
	f    float64
	b    bool
	arr  []Value
	obj  map[string]Value
}

// Metadata maps field names to values.
type Metadata map[string]Value

func Null() Value             { return Value{} }
func String(s string) Value   { return Value{kind: StringKind, s: s} }
func Int(i int64) Value       { return Value{kind: IntKind, i: i} }
func Float(f float64) Value   { return Value{kind: FloatKind, f: f} }
func Bool(b bool) Value       { return Value{kind: BoolKind, b: b} }
func Array(vs ...Value) Value { return Value{kind: ArrayKind, arr: vs} }

func Object(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: ObjectKind, obj: m}
}

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool    { return v.kind == NullKind }

func (v Value) AsString() (string, bool) { return v.s, v.kind == StringKind }
func (v Value) AsInt() (int64, bool)     { return v.i, v.kind == IntKind }
func (v Value) AsBool() (bool, bool)     { return v.b, v.kind == BoolKind }
func (v Value) AsArray() ([]Value, bool) { return v.arr, v.kind == ArrayKind }

func (v Value) AsObject() (map[string]Value, bool) { return v.obj, v.kind == ObjectKind }

// AsFloat64 coerces integer and float values; other kinds report false.
func (v Value) AsFloat64() (float64, bool) {
	switch v.kind {
	case IntKind:
		return float64(v.i), true
	case FloatKind:
		return v.f, true
	default:
		return 0, false
	}
}

// Equal compares structurally. Integer and float compare numerically.
func (v Value) Equal(o Value) bool {
	if a, ok := v.AsFloat64(); ok {
		if b, ok := o.AsFloat64(); ok {
			if v.kind == IntKind && o.kind == IntKind {
				return v.i == o.i
			}
			return a == b
		}
		return false
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case NullKind:
		return true
	case StringKind:
		return v.s == o.s
	case BoolKind:
		return v.b == o.b
	case ArrayKind:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case ObjectKind:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for k, a := range v.obj {
			b, ok := o.obj[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	}
	return false
}

// HasNull reports whether v is null or contains a null at any depth.
func (v Value) HasNull() bool {
	switch v.kind {
	case NullKind:
		return true
	case ArrayKind:
		for _, e := range v.arr {
			if e.HasNull() {
				return true
			}
		}
	case ObjectKind:
		for _, e := range v.obj {
			if e.HasNull() {
				return true
			}
		}
	}
	return false
}

// Clone returns a deep copy.
func (v Value) Clone() Value {
	switch v.kind {
	case ArrayKind:
		arr := make([]Value, len(v.arr))
		for i, e := range v.arr {
			arr[i] = e.Clone()
		}
		return Value{kind: ArrayKind, arr: arr}
	case ObjectKind:
		obj := make(map[string]Value, len(v.obj))
		for k, e := range v.obj {
			obj[k] = e.Clone()
		}
		return Value{kind: ObjectKind, obj: obj}
	default:
		return v
	}
}

// ToAny converts to plain Go values: nil, string, int64, float64, bool, []any, map[string]any.
func (v Value) ToAny() any {
	switch v.kind {
	case StringKind:
		return v.s
	case IntKind:
		return v.i
	case FloatKind:
		return v.f
	case BoolKind:
		return v.b
	case ArrayKind:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.ToAny()
		}
		return out
	case ObjectKind:
		out := make(map[string]any, len(v.obj))
		for k, e := range v.obj {
			out[k] = e.ToAny()
		}
		return out
	default:
		return nil
	}
}

// FromAny converts a plain Go value. Unsupported types fail with SerializationFailed.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint8:
		return Int(int64(t)), nil
	case uint16:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case uint:
		if uint64(t) > math.MaxInt64 {
			return Float(float64(t)), nil
		}
		return Int(int64(t)), nil
	case uint64:
		if t > math.MaxInt64 {
			return Float(float64(t)), nil
		}
		return Int(int64(t)), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case json.Number:
		return numberValue(string(t))
	case []any:
		arr := make([]Value, len(t))
		for i, e := range t {
			v, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			arr[i] = v
		}
		return Array(arr...), nil
	case []string:
		arr := make([]Value, len(t))
		for i, e := range t {
			arr[i] = String(e)
		}
		return Array(arr...), nil
	case map[string]any:
		obj := make(map[string]Value, len(t))
		for k, e := range t {
			v, err := FromAny(e)
			if err != nil {
				return Value{}, errors.WithMessage(err, k)
			}
			obj[k] = v
		}
		return Object(obj), nil
	}

	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		arr := make([]Value, rv.Len())
		for i := range arr {
			v, err := FromAny(rv.Index(i).Interface())
			if err != nil {
				return Value{}, err
			}
			arr[i] = v
		}
		return Array(arr...), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		obj := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			v, err := FromAny(iter.Value().Interface())
			if err != nil {
				return Value{}, err
			}
			obj[iter.Key().String()] = v
		}
		return Object(obj), nil
	}
	return Value{}, SerializationFailed("", "", errors.Errorf("unsupported metadata type %T", x))
}

// MetadataFromMap converts a plain map into Metadata.
func MetadataFromMap(m map[string]any) (Metadata, error) {
	if m == nil {
		return nil, nil
	}
	md := make(Metadata, len(m))
	for k, x := range m {
		v, err := FromAny(x)
		if err != nil {
			return nil, errors.WithMessagef(err, "field %s", k)
		}
		md[k] = v
	}
	return md, nil
}

// ToMap converts metadata into plain Go values.
func (m Metadata) ToMap() map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.ToAny()
	}
	return out
}

// Clone returns a deep copy.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}

// Equal compares two metadata maps structurally.
func (m Metadata) Equal(o Metadata) bool {
	if len(m) != len(o) {
		return false
	}
	for k, v := range m {
		w, ok := o[k]
		if !ok || !v.Equal(w) {
			return false
		}
	}
	return true
}

// NullFields returns the keys whose value is or contains null, sorted.
func (m Metadata) NullFields() []string {
	var keys []string
	for k, v := range m {
		if v.HasNull() {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case NullKind:
		return []byte("null"), nil
	case StringKind:
		return json.Marshal(v.s)
	case IntKind:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case FloatKind:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return nil, errors.Errorf("unsupported float value %v", v.f)
		}
		s := strconv.FormatFloat(v.f, 'g', -1, 64)
		// keep floats distinguishable from integers on decode
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return []byte(s), nil
	case BoolKind:
		return json.Marshal(v.b)
	case ArrayKind:
		if v.arr == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.arr)
	case ObjectKind:
		if v.obj == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.obj)
	}
	return nil, errors.Errorf("unknown value kind %d", v.kind)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var x any
	if err := dec.Decode(&x); err != nil {
		return err
	}
	parsed, err := FromAny(x)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func numberValue(s string) (Value, error) {
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(i), nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Value{}, SerializationFailed("", "", errors.Wrapf(err, "parse number %q", s))
	}
	return Float(f), nil
}

func (v Value) String() string {
	switch v.kind {
	case StringKind:
		return v.s
	default:
		data, err := v.MarshalJSON()
		if err != nil {
			return fmt.Sprintf("%v", v.ToAny())
		}
		return string(data)
	}
}
