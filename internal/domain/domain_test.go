package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocation(t *testing.T) {
	var zero Location
	assert.Equal(t, 0, zero.Len())
	assert.Empty(t, zero.Properties())
	_, err := zero.Get(LocationPathKey)
	var knf *KeyNotFoundError
	require.ErrorAs(t, err, &knf)
	assert.Equal(t, LocationPathKey, knf.Key)

	loc := NewLocation("csv", "")
	assert.Equal(t, "csv", loc.Type())
	_, ok := loc.GetIfPresent(LocationPathKey)
	assert.False(t, ok)

	loc.Set("delimiter", ";")
	assert.Equal(t, []string{LocationIndexKey, LocationPathKey, LocationTypeKey, "delimiter"}, loc.AllPropertyKeys())

	cp := loc.Clone()
	cp.Delete("delimiter")
	assert.Equal(t, 2, loc.Len())
	assert.False(t, cp.Equal(loc))

	props := loc.Properties()
	props["mutated"] = "yes"
	_, ok = loc.GetIfPresent("mutated")
	assert.False(t, ok)
	assert.True(t, LocationFromProperties(loc.Properties()).Equal(loc))
}

func TestParseID(t *testing.T) {
	id, err := ParseID("4242")
	require.NoError(t, err)
	assert.Equal(t, ID(4242), id)
	assert.Equal(t, "4242", FormatID(id))

	_, err = ParseID("-1")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = ParseID("abc")
	require.Error(t, err)
	_, err = ParseID("4294967296")
	require.Error(t, err)
}

func TestParseTargetKind(t *testing.T) {
	for _, k := range []TargetKind{KindSchema, KindTable, KindColumn} {
		got, err := ParseTargetKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseTargetKind("view")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestTarget(t *testing.T) {
	loc := NewLocation("csv", "/data")
	schema := NewTarget(KindSchema, 7, 99, "sales", "", loc)
	_, ok := schema.Parent()
	assert.False(t, ok)

	table := NewTarget(KindTable, 8, 7, "orders", "all orders", loc)
	p, ok := table.Parent()
	require.True(t, ok)
	assert.Equal(t, ID(7), p)
	assert.Equal(t, "all orders", table.Description())

	// The target keeps its own copy of the location.
	loc.Set("extra", "1")
	assert.Equal(t, 2, table.Location().Len())
	got := table.Location()
	got.Set("extra", "1")
	assert.Equal(t, 2, table.Location().Len())
}

func TestPartialFailureError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := &PartialFailureError{Op: "remove schema", Removed: []ID{3, 4}, Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "remove schema")
}

type rowCount struct{ table ID }

func (r rowCount) Kind() string    { return "row_count" }
func (r rowCount) TargetIDs() []ID { return []ID{r.table} }

func TestConstraintCollection_WithConstraint(t *testing.T) {
	first := ConstraintRecord{ID: "a", Constraint: rowCount{table: 4096}}
	base := NewConstraintCollection(7, "run", []ID{4096, 1, 4096}, first)
	assert.Equal(t, []ID{1, 4096}, base.Scope())
	assert.True(t, base.InScope(1))
	assert.False(t, base.InScope(2))

	second := ConstraintRecord{ID: "b", Constraint: rowCount{table: 1}}
	next := base.WithConstraint(second)
	assert.Equal(t, 1, base.Len())
	assert.Equal(t, []ConstraintRecord{first, second}, next.Constraints())
	assert.Equal(t, base.Scope(), next.Scope())
	assert.Equal(t, "run", next.Description())

	// Branches from one base do not share records.
	other := base.WithConstraint(ConstraintRecord{ID: "c", Constraint: rowCount{table: 1}})
	assert.Equal(t, "b", next.Constraints()[1].ID)
	assert.Equal(t, "c", other.Constraints()[1].ID)

	recs := next.Constraints()
	recs[0].ID = "changed"
	assert.Equal(t, "a", next.Constraints()[0].ID)
}
