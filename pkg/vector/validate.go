package vector

import "github.com/google/uuid"

// PrepareBatch assigns ids to documents that lack one and validates every
// vector against the index dimension. The batch is rejected as a whole on
// the first failure. The returned ids follow input order.
func PrepareBatch(index string, dimension int, docs []Document) ([]string, error) {
	ids := make([]string, len(docs))
	for i := range docs {
		if docs[i].ID == "" {
			docs[i].ID = uuid.NewString()
		}
		ids[i] = docs[i].ID
		if err := CheckDocumentVector(index, dimension, docs[i]); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// CheckDocumentVector requires a finite vector of the index dimension.
func CheckDocumentVector(index string, dimension int, doc Document) error {
	if doc.Vector == nil {
		return InvalidVector(index, doc.ID, "document has no embedding")
	}
	if len(doc.Vector) != dimension {
		return DimensionMismatch(index, doc.ID, dimension, len(doc.Vector))
	}
	if err := doc.Vector.Validate(); err != nil {
		return InvalidVector(index, doc.ID, err.Error())
	}
	return nil
}

// CheckQueryVector validates a search vector against the index dimension.
func CheckQueryVector(index string, dimension int, v Vector) error {
	if len(v) == 0 {
		return InvalidVector(index, "", "query vector is empty")
	}
	if len(v) != dimension {
		return DimensionMismatch(index, "", dimension, len(v))
	}
	if err := v.Validate(); err != nil {
		return InvalidVector(index, "", err.Error())
	}
	return nil
}

// CheckNoNulls rejects documents carrying null metadata for backends that
// cannot store them.
func CheckNoNulls(index string, docs []Document) error {
	for _, doc := range docs {
		if fields := doc.Metadata.NullFields(); len(fields) > 0 {
			return &Error{
				Kind:  KindSerializationFailed,
				Index: index,
				ID:    doc.ID,
				Msg:   "null metadata is not supported by this backend: " + fields[0],
			}
		}
	}
	return nil
}
