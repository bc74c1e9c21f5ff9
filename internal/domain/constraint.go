package domain

import (
	"slices"
	"sort"
)

// Constraint is an opaque analysis result about one or more targets.
// Kind selects the serializer used to persist it.
type Constraint interface {
	Kind() string
	TargetIDs() []ID
}

// ConstraintRecord is a constraint as held by a collection.
type ConstraintRecord struct {
	ID         string
	Constraint Constraint
}

// ConstraintSerializer persists the payload of one constraint kind.
type ConstraintSerializer interface {
	Kind() string
	Encode(c Constraint) ([]byte, error)
	Decode(targets []ID, payload []byte) (Constraint, error)
}

// ConstraintCollection groups constraints under an immutable scope. A
// collection value never changes once built; the store swaps in the result of
// WithConstraint, so a collection handed to a caller stays a consistent view.
type ConstraintCollection struct {
	id          ID
	description string
	scope       []ID
	records     []ConstraintRecord
}

// NewConstraintCollection creates a collection holding records. The scope is
// sorted and duplicates are collapsed.
func NewConstraintCollection(id ID, description string, scope []ID, records ...ConstraintRecord) *ConstraintCollection {
	s := slices.Clone(scope)
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
	s = slices.Compact(s)
	return &ConstraintCollection{id: id, description: description, scope: s, records: slices.Clone(records)}
}

// ID returns the collection identifier.
func (c *ConstraintCollection) ID() ID { return c.id }

// Description returns the free-text description.
func (c *ConstraintCollection) Description() string { return c.description }

// Scope returns the targets the contained constraints are declared to be about.
func (c *ConstraintCollection) Scope() []ID { return slices.Clone(c.scope) }

// InScope reports whether id is part of the scope.
func (c *ConstraintCollection) InScope(id ID) bool {
	_, ok := slices.BinarySearch(c.scope, id)
	return ok
}

// Constraints returns the constraint records in insertion order.
func (c *ConstraintCollection) Constraints() []ConstraintRecord {
	return slices.Clone(c.records)
}

// Len returns the number of constraints.
func (c *ConstraintCollection) Len() int { return len(c.records) }

// WithConstraint returns a copy of c with r appended. c is left untouched.
func (c *ConstraintCollection) WithConstraint(r ConstraintRecord) *ConstraintCollection {
	records := make([]ConstraintRecord, len(c.records), len(c.records)+1)
	copy(records, c.records)
	return &ConstraintCollection{
		id:          c.id,
		description: c.description,
		scope:       c.scope,
		records:     append(records, r),
	}
}
