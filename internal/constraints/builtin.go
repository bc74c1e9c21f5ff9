package constraints

import (
	"encoding/json"
	"fmt"
	"slices"

	"mdstore/internal/domain"
)

// Built-in constraint kinds.
const (
	KindTupleCount              = "tuple_count"
	KindDistinctValueCount      = "distinct_value_count"
	KindColumnType              = "column_type"
	KindUniqueColumnCombination = "unique_column_combination"
	KindInclusionDependency     = "inclusion_dependency"
)

// TupleCount records the number of rows of a table.
type TupleCount struct {
	Table domain.ID
	Count int64
}

func (c TupleCount) Kind() string           { return KindTupleCount }
func (c TupleCount) TargetIDs() []domain.ID { return []domain.ID{c.Table} }

// DistinctValueCount records the number of distinct values of a column.
type DistinctValueCount struct {
	Column domain.ID
	Count  int64
}

func (c DistinctValueCount) Kind() string           { return KindDistinctValueCount }
func (c DistinctValueCount) TargetIDs() []domain.ID { return []domain.ID{c.Column} }

// ColumnType records the inferred data type of a column.
type ColumnType struct {
	Column domain.ID
	Type   string
}

func (c ColumnType) Kind() string           { return KindColumnType }
func (c ColumnType) TargetIDs() []domain.ID { return []domain.ID{c.Column} }

// UniqueColumnCombination states that the columns jointly identify rows.
type UniqueColumnCombination struct {
	Columns []domain.ID
}

func (c UniqueColumnCombination) Kind() string { return KindUniqueColumnCombination }
func (c UniqueColumnCombination) TargetIDs() []domain.ID {
	return slices.Clone(c.Columns)
}

// InclusionDependency states that the values of Dependent are contained in
// the values of Referenced, column by column.
type InclusionDependency struct {
	Dependent  []domain.ID
	Referenced []domain.ID
}

func (c InclusionDependency) Kind() string { return KindInclusionDependency }
func (c InclusionDependency) TargetIDs() []domain.ID {
	return append(slices.Clone(c.Dependent), c.Referenced...)
}

// Builtins returns serializers for every built-in kind.
func Builtins() []domain.ConstraintSerializer {
	return []domain.ConstraintSerializer{
		tupleCountSerializer{},
		distinctValueCountSerializer{},
		columnTypeSerializer{},
		uccSerializer{},
		indSerializer{},
	}
}

// RegisterBuiltins registers every built-in serializer on r.
func RegisterBuiltins(r domain.ConstraintSerializerRegistrar) {
	for _, s := range Builtins() {
		r.RegisterConstraintSerializer(s)
	}
}

type countPayload struct {
	Count int64 `json:"count"`
}

type tupleCountSerializer struct{}

func (tupleCountSerializer) Kind() string { return KindTupleCount }

func (tupleCountSerializer) Encode(c domain.Constraint) ([]byte, error) {
	tc, ok := c.(TupleCount)
	if !ok {
		return nil, wrongType(KindTupleCount, c)
	}
	return json.Marshal(countPayload{Count: tc.Count})
}

func (tupleCountSerializer) Decode(targets []domain.ID, payload []byte) (domain.Constraint, error) {
	if len(targets) != 1 {
		return nil, arity(KindTupleCount, 1, len(targets))
	}
	var p countPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", KindTupleCount, err)
	}
	return TupleCount{Table: targets[0], Count: p.Count}, nil
}

type distinctValueCountSerializer struct{}

func (distinctValueCountSerializer) Kind() string { return KindDistinctValueCount }

func (distinctValueCountSerializer) Encode(c domain.Constraint) ([]byte, error) {
	dvc, ok := c.(DistinctValueCount)
	if !ok {
		return nil, wrongType(KindDistinctValueCount, c)
	}
	return json.Marshal(countPayload{Count: dvc.Count})
}

func (distinctValueCountSerializer) Decode(targets []domain.ID, payload []byte) (domain.Constraint, error) {
	if len(targets) != 1 {
		return nil, arity(KindDistinctValueCount, 1, len(targets))
	}
	var p countPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", KindDistinctValueCount, err)
	}
	return DistinctValueCount{Column: targets[0], Count: p.Count}, nil
}

type columnTypePayload struct {
	Type string `json:"type"`
}

type columnTypeSerializer struct{}

func (columnTypeSerializer) Kind() string { return KindColumnType }

func (columnTypeSerializer) Encode(c domain.Constraint) ([]byte, error) {
	ct, ok := c.(ColumnType)
	if !ok {
		return nil, wrongType(KindColumnType, c)
	}
	return json.Marshal(columnTypePayload{Type: ct.Type})
}

func (columnTypeSerializer) Decode(targets []domain.ID, payload []byte) (domain.Constraint, error) {
	if len(targets) != 1 {
		return nil, arity(KindColumnType, 1, len(targets))
	}
	var p columnTypePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", KindColumnType, err)
	}
	return ColumnType{Column: targets[0], Type: p.Type}, nil
}

type uccSerializer struct{}

func (uccSerializer) Kind() string { return KindUniqueColumnCombination }

func (uccSerializer) Encode(c domain.Constraint) ([]byte, error) {
	if _, ok := c.(UniqueColumnCombination); !ok {
		return nil, wrongType(KindUniqueColumnCombination, c)
	}
	return []byte("{}"), nil
}

func (uccSerializer) Decode(targets []domain.ID, _ []byte) (domain.Constraint, error) {
	if len(targets) == 0 {
		return nil, arity(KindUniqueColumnCombination, 1, 0)
	}
	return UniqueColumnCombination{Columns: slices.Clone(targets)}, nil
}

type indPayload struct {
	Arity int `json:"arity"`
}

type indSerializer struct{}

func (indSerializer) Kind() string { return KindInclusionDependency }

func (indSerializer) Encode(c domain.Constraint) ([]byte, error) {
	ind, ok := c.(InclusionDependency)
	if !ok {
		return nil, wrongType(KindInclusionDependency, c)
	}
	if len(ind.Dependent) != len(ind.Referenced) {
		return nil, domain.ErrValidation("inclusion dependency sides differ in arity (%d vs %d)",
			len(ind.Dependent), len(ind.Referenced))
	}
	return json.Marshal(indPayload{Arity: len(ind.Dependent)})
}

func (indSerializer) Decode(targets []domain.ID, payload []byte) (domain.Constraint, error) {
	var p indPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", KindInclusionDependency, err)
	}
	if p.Arity < 1 || len(targets) != 2*p.Arity {
		return nil, arity(KindInclusionDependency, 2*p.Arity, len(targets))
	}
	return InclusionDependency{
		Dependent:  slices.Clone(targets[:p.Arity]),
		Referenced: slices.Clone(targets[p.Arity:]),
	}, nil
}

func wrongType(kind string, c domain.Constraint) error {
	return domain.ErrValidation("serializer for %s cannot encode %T", kind, c)
}

func arity(kind string, want, got int) error {
	return domain.ErrValidation("%s expects %d targets, got %d", kind, want, got)
}
