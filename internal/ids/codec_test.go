package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdstore/internal/domain"
)

func TestNewCodec_Validation(t *testing.T) {
	tests := []struct {
		name       string
		tableBits  int
		columnBits int
		wantErr    bool
	}{
		{"defaults", DefaultTableBits, DefaultColumnBits, false},
		{"one schema bit left", 15, 15, false},
		{"no schema bits left", 16, 15, true},
		{"all bits to tables", 30, 1, true},
		{"zero table bits", 0, 12, true},
		{"negative column bits", 12, -1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCodec(tt.tableBits, tt.columnBits)
			if tt.wantErr {
				require.Error(t, err)
				var ve *domain.ValidationError
				assert.ErrorAs(t, err, &ve)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, IDBits-tt.tableBits-tt.columnBits, c.SchemaBits())
		})
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	widths := [][2]int{{12, 12}, {4, 4}, {1, 1}, {14, 14}, {20, 5}, {1, 29}}
	for _, w := range widths {
		c, err := NewCodec(w[0], w[1])
		require.NoError(t, err)

		schemas := []int{c.MinSchemaNumber(), 1, c.MaxSchemaNumber() / 2, c.MaxSchemaNumber()}
		tables := []int{0, c.MinTableNumber(), c.MaxTableNumber()}
		columns := []int{0, c.MinColumnNumber(), c.MaxColumnNumber()}
		for _, s := range schemas {
			for _, tb := range tables {
				for _, col := range columns {
					id := c.Encode(s, tb, col)
					assert.GreaterOrEqual(t, id, domain.ID(0))
					assert.Equal(t, s, c.SchemaNumber(id), "widths %v", w)
					assert.Equal(t, tb, c.TableNumber(id), "widths %v", w)
					assert.Equal(t, col, c.ColumnNumber(id), "widths %v", w)
				}
			}
		}
	}
}

func TestCodec_Ranges(t *testing.T) {
	c, err := NewCodec(4, 4)
	require.NoError(t, err)

	assert.Equal(t, 23, c.SchemaBits())
	assert.Equal(t, 0, c.MinSchemaNumber())
	assert.Equal(t, 1<<23-1, c.MaxSchemaNumber())
	assert.Equal(t, 1, c.MinTableNumber())
	assert.Equal(t, 15, c.MaxTableNumber())
	assert.Equal(t, 1, c.MinColumnNumber())
	assert.Equal(t, 15, c.MaxColumnNumber())
	assert.Equal(t, domain.MaxID, c.Encode(c.MaxSchemaNumber(), c.MaxTableNumber(), c.MaxColumnNumber()))
}

func TestCodec_AncestryHelpers(t *testing.T) {
	c := DefaultCodec()
	schemaID := c.Encode(5, 0, 0)
	tableID := c.Encode(5, 7, 0)
	columnID := c.Encode(5, 7, 9)

	assert.Equal(t, domain.KindSchema, c.KindOf(schemaID))
	assert.Equal(t, domain.KindTable, c.KindOf(tableID))
	assert.Equal(t, domain.KindColumn, c.KindOf(columnID))

	assert.Equal(t, schemaID, c.SchemaID(columnID))
	assert.Equal(t, tableID, c.TableID(columnID))

	parent, ok := c.ParentID(tableID)
	require.True(t, ok)
	assert.Equal(t, schemaID, parent)
	parent, ok = c.ParentID(columnID)
	require.True(t, ok)
	assert.Equal(t, tableID, parent)
	_, ok = c.ParentID(schemaID)
	assert.False(t, ok)
}
