package tabula_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syssam/tabula"
)

// TestOpIs tests the Op.Is method.
func TestOpIs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		op       tabula.Op
		check    tabula.Op
		expected bool
	}{
		{"Create is Create", tabula.OpCreate, tabula.OpCreate, true},
		{"Create is not Update", tabula.OpCreate, tabula.OpUpdate, false},
		{"Update is Update", tabula.OpUpdate, tabula.OpUpdate, true},
		{"Delete is Delete", tabula.OpDelete, tabula.OpDelete, true},
		{"Update is not Delete", tabula.OpUpdate, tabula.OpDelete, false},
		{"Combined Create|Update is Update", tabula.OpCreate | tabula.OpUpdate, tabula.OpUpdate, true},
		{"Combined Create|Update is not Delete", tabula.OpCreate | tabula.OpUpdate, tabula.OpDelete, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.op.Is(tt.check))
		})
	}
}

// TestOpString tests the Op.String method.
func TestOpString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		op       tabula.Op
		expected string
	}{
		{tabula.OpCreate, "OpCreate"},
		{tabula.OpUpdate, "OpUpdate"},
		{tabula.OpDelete, "OpDelete"},
		{tabula.OpCreate | tabula.OpDelete, "Op(unknown)"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.op.String())
		})
	}
}

func TestCacheKey(t *testing.T) {
	k := tabula.CacheKey{Table: "todo_item", Operation: "get", ID: 42}
	assert.Equal(t, "todo_item:get:42", k.String())
	assert.Equal(t, "todo_item:get:", k.Prefix())
}
