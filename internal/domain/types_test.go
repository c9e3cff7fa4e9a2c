package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Zereker/vectorstore/pkg/vector"
)

func TestCommand_Validate(t *testing.T) {
	doc := vector.Document{ID: "a", Vector: vector.Vector{1}}

	tests := []struct {
		name    string
		cmd     Command
		wantErr bool
	}{
		{"upsert", Command{Op: OpUpsert, Index: "i", Documents: []vector.Document{doc}}, false},
		{"upsert without documents", Command{Op: OpUpsert, Index: "i"}, true},
		{"missing index", Command{Op: OpDelete, IDs: []string{"a"}}, true},
		{"delete", Command{Op: OpDelete, Index: "i", IDs: []string{"a"}}, false},
		{"delete without ids", Command{Op: OpDelete, Index: "i"}, true},
		{"update", Command{Op: OpUpdate, Index: "i", Documents: []vector.Document{doc}}, false},
		{"update two documents", Command{Op: OpUpdate, Index: "i", Documents: []vector.Document{doc, doc}}, true},
		{"update without id", Command{Op: OpUpdate, Index: "i", Documents: []vector.Document{{Content: "x"}}}, true},
		{"unknown op", Command{Op: "drop", Index: "i"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cmd.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConversions(t *testing.T) {
	create := CreateIndexRequest{Name: "docs", Dimension: 3, Metric: vector.DotProduct}
	cfg := create.IndexConfig()
	assert.Equal(t, "docs", cfg.Name)
	assert.Equal(t, 3, cfg.Dimension)
	assert.Equal(t, vector.DotProduct, cfg.Metric)

	update := UpdateDocumentRequest{Content: "c", Metadata: vector.Metadata{"k": vector.Int(1)}}
	doc := update.Document("id-1")
	assert.Equal(t, "id-1", doc.ID)
	assert.Equal(t, "c", doc.Content)
	assert.Nil(t, doc.Vector)
	assert.Equal(t, vector.Int(1), doc.Metadata["k"])
}
