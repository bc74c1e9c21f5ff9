package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdstore/internal/domain"
)

type idSet map[domain.ID]struct{}

func (s idSet) has(id domain.ID) bool {
	_, ok := s[id]
	return ok
}

func TestAllocator_UnusedSchemaID_NeverReturnsUsed(t *testing.T) {
	c, err := NewCodec(12, 12)
	require.NoError(t, err)
	used := idSet{}
	a := NewAllocator(c, used.has)

	for i := 0; i < 100; i++ {
		id, err := a.UnusedSchemaID(len(used))
		require.NoError(t, err)
		require.False(t, used.has(id), "id %d returned twice", id)
		assert.Equal(t, domain.KindSchema, c.KindOf(id))
		used[id] = struct{}{}
	}
}

func TestAllocator_UnusedSchemaID_Offset(t *testing.T) {
	c, err := NewCodec(14, 14) // 3 schema bits: numbers 0..7
	require.NoError(t, err)
	used := idSet{}
	a := NewAllocator(c, used.has)

	id, err := a.UnusedSchemaID(5)
	require.NoError(t, err)
	assert.Equal(t, 5, c.SchemaNumber(id))

	// Offsets past the range wrap around.
	id, err = a.UnusedSchemaID(10)
	require.NoError(t, err)
	assert.Equal(t, 2, c.SchemaNumber(id))

	// Taken candidates are skipped cyclically.
	used[c.Encode(7, 0, 0)] = struct{}{}
	id, err = a.UnusedSchemaID(7)
	require.NoError(t, err)
	assert.Equal(t, 0, c.SchemaNumber(id))
}

func TestAllocator_SchemaExhaustion_4x4(t *testing.T) {
	c, err := NewCodec(4, 4)
	require.NoError(t, err)

	used := make([]bool, c.MaxSchemaNumber()+1)
	a := NewAllocator(c, func(id domain.ID) bool { return used[c.SchemaNumber(id)] })

	live := 0
	for {
		id, err := a.UnusedSchemaID(live)
		if err != nil {
			var exhausted *domain.IDSpaceExhaustedError
			require.ErrorAs(t, err, &exhausted)
			assert.Equal(t, domain.KindSchema, exhausted.Level)
			break
		}
		require.False(t, used[c.SchemaNumber(id)])
		used[c.SchemaNumber(id)] = true
		live++
	}
	assert.Equal(t, 1<<c.SchemaBits(), live)
}

func TestAllocator_TableAndColumnIDs(t *testing.T) {
	c, err := NewCodec(2, 2) // table and column numbers 1..3
	require.NoError(t, err)
	used := idSet{}
	a := NewAllocator(c, used.has)

	schemaID := c.Encode(9, 0, 0)
	for i := 0; i < 3; i++ {
		id, err := a.UnusedTableID(schemaID, i)
		require.NoError(t, err)
		assert.Equal(t, 9, c.SchemaNumber(id))
		assert.Equal(t, 0, c.ColumnNumber(id))
		assert.NotZero(t, c.TableNumber(id))
		used[id] = struct{}{}
	}
	_, err = a.UnusedTableID(schemaID, 3)
	var exhausted *domain.IDSpaceExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, domain.KindTable, exhausted.Level)
	assert.Equal(t, schemaID, exhausted.Parent)

	tableID := c.Encode(9, 2, 0)
	for i := 0; i < 3; i++ {
		id, err := a.UnusedColumnID(tableID, i)
		require.NoError(t, err)
		assert.Equal(t, tableID, c.TableID(id))
		used[id] = struct{}{}
	}
	_, err = a.UnusedColumnID(tableID, 0)
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, domain.KindColumn, exhausted.Level)
}

func TestAllocator_RandomCollectionID_RetriesOnCollision(t *testing.T) {
	draws := []int32{42, 42, 7}
	a := NewAllocator(DefaultCodec(), func(domain.ID) bool { return true }).WithRandom(func() int32 {
		v := draws[0]
		draws = draws[1:]
		return v
	})

	taken := idSet{42: {}}
	id := a.RandomCollectionID(taken.has)
	assert.Equal(t, domain.ID(7), id)
	assert.Empty(t, draws)
}

func TestAllocator_RandomCollectionID_IgnoresTargets(t *testing.T) {
	// Target membership says everything is used; collections do not care.
	a := NewAllocator(DefaultCodec(), func(domain.ID) bool { return true })
	id := a.RandomCollectionID(func(domain.ID) bool { return false })
	assert.GreaterOrEqual(t, id, domain.ID(0))
}
