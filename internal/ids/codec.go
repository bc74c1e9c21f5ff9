// Package ids packs schema/table/column ancestry into flat identifiers and
// allocates unused ones.
package ids

import "mdstore/internal/domain"

// IDBits is the number of usable identifier bits (everything below the sign bit).
const IDBits = 31

// Default bit widths.
const (
	DefaultTableBits  = 12
	DefaultColumnBits = 12
)

// Codec encodes a (schema, table, column) number triple into one identifier.
// The schema number occupies the most significant field, then tableBits for
// the table number and columnBits for the column number. Table and column
// number 0 mean "not applicable", so schema ids are Encode(s, 0, 0) and table
// ids are Encode(s, t, 0).
type Codec struct {
	schemaBits uint
	tableBits  uint
	columnBits uint
}

// NewCodec validates the widths and returns a codec. At least one schema bit
// must remain.
func NewCodec(tableBits, columnBits int) (Codec, error) {
	if tableBits < 1 || columnBits < 1 {
		return Codec{}, domain.ErrValidation("table and column bits must be positive (got %d, %d)", tableBits, columnBits)
	}
	schemaBits := IDBits - tableBits - columnBits
	if schemaBits < 1 {
		return Codec{}, domain.ErrValidation("%d table bits and %d column bits leave no schema bits", tableBits, columnBits)
	}
	return Codec{
		schemaBits: uint(schemaBits),
		tableBits:  uint(tableBits),
		columnBits: uint(columnBits),
	}, nil
}

// DefaultCodec returns the codec for the default widths.
func DefaultCodec() Codec {
	c, _ := NewCodec(DefaultTableBits, DefaultColumnBits)
	return c
}

// SchemaBits returns the width of the schema field.
func (c Codec) SchemaBits() int { return int(c.schemaBits) }

// TableBits returns the width of the table field.
func (c Codec) TableBits() int { return int(c.tableBits) }

// ColumnBits returns the width of the column field.
func (c Codec) ColumnBits() int { return int(c.columnBits) }

// Encode packs the three numbers. Inputs outside their range are masked.
func (c Codec) Encode(schema, table, column int) domain.ID {
	s := uint32(schema) & mask(c.schemaBits)
	t := uint32(table) & mask(c.tableBits)
	col := uint32(column) & mask(c.columnBits)
	return domain.ID(s<<(c.tableBits+c.columnBits) | t<<c.columnBits | col)
}

// SchemaNumber extracts the schema field.
func (c Codec) SchemaNumber(id domain.ID) int {
	return int(uint32(id) >> (c.tableBits + c.columnBits) & mask(c.schemaBits))
}

// TableNumber extracts the table field.
func (c Codec) TableNumber(id domain.ID) int {
	return int(uint32(id) >> c.columnBits & mask(c.tableBits))
}

// ColumnNumber extracts the column field.
func (c Codec) ColumnNumber(id domain.ID) int {
	return int(uint32(id) & mask(c.columnBits))
}

// KindOf classifies an identifier by its non-zero fields.
func (c Codec) KindOf(id domain.ID) domain.TargetKind {
	switch {
	case c.ColumnNumber(id) != 0:
		return domain.KindColumn
	case c.TableNumber(id) != 0:
		return domain.KindTable
	default:
		return domain.KindSchema
	}
}

// SchemaID returns the id of the schema an identifier descends from.
func (c Codec) SchemaID(id domain.ID) domain.ID {
	return c.Encode(c.SchemaNumber(id), 0, 0)
}

// TableID returns the id of the table a column id descends from.
func (c Codec) TableID(id domain.ID) domain.ID {
	return c.Encode(c.SchemaNumber(id), c.TableNumber(id), 0)
}

// ParentID returns the expected parent of a table or column id.
func (c Codec) ParentID(id domain.ID) (domain.ID, bool) {
	switch c.KindOf(id) {
	case domain.KindTable:
		return c.SchemaID(id), true
	case domain.KindColumn:
		return c.TableID(id), true
	}
	return 0, false
}

// MinSchemaNumber is always 0.
func (c Codec) MinSchemaNumber() int { return 0 }

// MaxSchemaNumber is 2^schemaBits - 1.
func (c Codec) MaxSchemaNumber() int { return int(mask(c.schemaBits)) }

// MinTableNumber is 1; 0 marks schema ids.
func (c Codec) MinTableNumber() int { return 1 }

// MaxTableNumber is 2^tableBits - 1.
func (c Codec) MaxTableNumber() int { return int(mask(c.tableBits)) }

// MinColumnNumber is 1; 0 marks schema and table ids.
func (c Codec) MinColumnNumber() int { return 1 }

// MaxColumnNumber is 2^columnBits - 1.
func (c Codec) MaxColumnNumber() int { return int(mask(c.columnBits)) }

func mask(bits uint) uint32 {
	return uint32(1)<<bits - 1
}
