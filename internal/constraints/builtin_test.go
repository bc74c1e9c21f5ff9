package constraints

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdstore/internal/domain"
)

func TestBuiltins_RoundTripThroughRegistry(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r)

	assert.Equal(t, []string{
		KindColumnType,
		KindDistinctValueCount,
		KindInclusionDependency,
		KindTupleCount,
		KindUniqueColumnCombination,
	}, r.Kinds())

	tests := []struct {
		name string
		c    domain.Constraint
	}{
		{"tuple count", TupleCount{Table: 4097, Count: 1200}},
		{"distinct values", DistinctValueCount{Column: 4098, Count: 17}},
		{"column type", ColumnType{Column: 4098, Type: "VARCHAR"}},
		{"ucc", UniqueColumnCombination{Columns: []domain.ID{4098, 4099}}},
		{"ind", InclusionDependency{Dependent: []domain.ID{4098}, Referenced: []domain.ID{8194}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := r.Encode(tt.c)
			require.NoError(t, err)
			got, err := r.Decode(tt.c.Kind(), tt.c.TargetIDs(), payload)
			require.NoError(t, err)
			assert.Equal(t, tt.c, got)
		})
	}
}

func TestRegistry_UnknownKind(t *testing.T) {
	r := NewRegistry()

	_, err := r.Encode(TupleCount{Table: 1})
	var noSer *domain.NoSerializerRegisteredError
	require.ErrorAs(t, err, &noSer)
	assert.Equal(t, KindTupleCount, noSer.Kind)

	_, err = r.Decode("mystery", nil, nil)
	require.ErrorAs(t, err, &noSer)
}

func TestInclusionDependency_ArityMismatch(t *testing.T) {
	s := indSerializer{}

	_, err := s.Encode(InclusionDependency{Dependent: []domain.ID{1, 2}, Referenced: []domain.ID{3}})
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = s.Decode([]domain.ID{1, 2, 3}, []byte(`{"arity":1}`))
	require.ErrorAs(t, err, &ve)
}

func TestSerializer_RejectsForeignConstraint(t *testing.T) {
	_, err := tupleCountSerializer{}.Encode(ColumnType{Column: 1, Type: "INT"})
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Message, "ColumnType")
}

func TestDecode_BadPayload(t *testing.T) {
	_, err := columnTypeSerializer{}.Decode([]domain.ID{1}, []byte("not json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode column_type")
}
