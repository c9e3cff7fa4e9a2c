package qdrant

import (
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/Zereker/vectorstore/pkg/vector"
)

const (
	docIDKey     = "doc_id"
	contentKey   = "content"
	// rawVectorKey keeps the vector as written; cosine collections store
	// it normalized.
	rawVectorKey = "_vector"
)

// pointNamespace derives stable point UUIDs from document ids.
var pointNamespace = uuid.MustParse("6f1c2a7e-3b7d-5c1e-9a55-0d6b2f6a4c31")

func pointID(docID string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(pointNamespace, []byte(docID)).String())
}

func toValue(v vector.Value) *qdrant.Value {
	switch v.Kind() {
	case vector.StringKind:
		s, _ := v.AsString()
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
	case vector.IntKind:
		i, _ := v.AsInt()
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: i}}
	case vector.FloatKind:
		f, _ := v.AsFloat64()
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: f}}
	case vector.BoolKind:
		b, _ := v.AsBool()
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: b}}
	case vector.ArrayKind:
		arr, _ := v.AsArray()
		values := make([]*qdrant.Value, len(arr))
		for i, e := range arr {
			values[i] = toValue(e)
		}
		return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: values}}}
	case vector.ObjectKind:
		obj, _ := v.AsObject()
		return &qdrant.Value{Kind: &qdrant.Value_StructValue{StructValue: &qdrant.Struct{Fields: toFields(obj)}}}
	default:
		return &qdrant.Value{Kind: &qdrant.Value_NullValue{NullValue: qdrant.NullValue_NULL_VALUE}}
	}
}

func toFields(m map[string]vector.Value) map[string]*qdrant.Value {
	fields := make(map[string]*qdrant.Value, len(m))
	for k, v := range m {
		fields[k] = toValue(v)
	}
	return fields
}

func fromValue(v *qdrant.Value) vector.Value {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return vector.String(k.StringValue)
	case *qdrant.Value_IntegerValue:
		return vector.Int(k.IntegerValue)
	case *qdrant.Value_DoubleValue:
		return vector.Float(k.DoubleValue)
	case *qdrant.Value_BoolValue:
		return vector.Bool(k.BoolValue)
	case *qdrant.Value_ListValue:
		values := k.ListValue.GetValues()
		arr := make([]vector.Value, len(values))
		for i, e := range values {
			arr[i] = fromValue(e)
		}
		return vector.Array(arr...)
	case *qdrant.Value_StructValue:
		return vector.Object(fromFields(k.StructValue.GetFields()))
	default:
		return vector.Null()
	}
}

func fromFields(fields map[string]*qdrant.Value) map[string]vector.Value {
	m := make(map[string]vector.Value, len(fields))
	for k, v := range fields {
		m[k] = fromValue(v)
	}
	return m
}

func toPoint(doc vector.Document) *qdrant.PointStruct {
	payload := map[string]*qdrant.Value{
		docIDKey:     toValue(vector.String(doc.ID)),
		contentKey:   toValue(vector.String(doc.Content)),
		metadataKey:  toValue(vector.Object(doc.Metadata)),
		rawVectorKey: rawVector(doc.Vector),
	}
	return &qdrant.PointStruct{
		Id:      pointID(doc.ID),
		Vectors: qdrant.NewVectors(doc.Vector...),
		Payload: payload,
	}
}

func rawVector(v vector.Vector) *qdrant.Value {
	values := make([]*qdrant.Value, len(v))
	for i, x := range v {
		values[i] = &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: float64(x)}}
	}
	return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: values}}}
}

func fromRawVector(v *qdrant.Value) vector.Vector {
	list := v.GetListValue()
	if list == nil {
		return nil
	}
	out := make(vector.Vector, len(list.GetValues()))
	for i, x := range list.GetValues() {
		out[i] = float32(x.GetDoubleValue())
	}
	return out
}

func denseVector(out *qdrant.VectorsOutput) vector.Vector {
	vec := out.GetVector()
	if vec == nil {
		return nil
	}
	if dense := vec.GetDense(); dense != nil {
		return dense.GetData()
	}
	return vec.GetData()
}

// fromPoint rebuilds a document from a stored payload. Points written by
// other tools carry no doc_id and are skipped. The vector is only filled
// when withVectors is set, from the raw payload copy when there is one.
func fromPoint(payload map[string]*qdrant.Value, vectors *qdrant.VectorsOutput, withVectors bool) (vector.Document, bool) {
	id, ok := payload[docIDKey]
	if !ok {
		return vector.Document{}, false
	}
	doc := vector.Document{
		ID:       id.GetStringValue(),
		Content:  payload[contentKey].GetStringValue(),
		Metadata: vector.Metadata(fromFields(payload[metadataKey].GetStructValue().GetFields())),
	}
	if withVectors {
		if raw, ok := payload[rawVectorKey]; ok {
			doc.Vector = fromRawVector(raw)
		} else {
			doc.Vector = denseVector(vectors)
		}
	}
	return doc, true
}
