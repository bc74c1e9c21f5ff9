package domain

import "fmt"

// TargetKind tags the variant of a Target.
type TargetKind uint8

// Target kinds.
const (
	KindSchema TargetKind = iota + 1
	KindTable
	KindColumn
)

func (k TargetKind) String() string {
	switch k {
	case KindSchema:
		return "schema"
	case KindTable:
		return "table"
	case KindColumn:
		return "column"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseTargetKind parses the String form of a TargetKind.
func ParseTargetKind(s string) (TargetKind, error) {
	switch s {
	case "schema":
		return KindSchema, nil
	case "table":
		return KindTable, nil
	case "column":
		return KindColumn, nil
	}
	return 0, ErrValidation("unknown target kind %q", s)
}

// Target is a catalog entity with identity: a schema, a table or a column.
// Everything but the description and location is fixed at construction.
// Parent is the identifier of the owning schema (tables) or table (columns);
// it is a back-reference, ownership lives in the store's tree.
type Target struct {
	id          ID
	kind        TargetKind
	parent      ID
	name        string
	description string
	location    Location
}

// NewTarget constructs a target. Parent is ignored for schemas.
func NewTarget(kind TargetKind, id, parent ID, name, description string, loc Location) *Target {
	if kind == KindSchema {
		parent = 0
	}
	return &Target{
		id:          id,
		kind:        kind,
		parent:      parent,
		name:        name,
		description: description,
		location:    loc.Clone(),
	}
}

// ID returns the immutable identifier.
func (t *Target) ID() ID { return t.id }

// Kind returns the variant tag.
func (t *Target) Kind() TargetKind { return t.kind }

// Parent returns the owning schema or table id. Schemas report false.
func (t *Target) Parent() (ID, bool) {
	if t.kind == KindSchema {
		return 0, false
	}
	return t.parent, true
}

// Name returns the (not necessarily unique) name.
func (t *Target) Name() string { return t.name }

// Description returns the free-text description.
func (t *Target) Description() string { return t.description }

// Location returns a copy of the target's location.
func (t *Target) Location() Location { return t.location.Clone() }

func (t *Target) String() string {
	return fmt.Sprintf("%s[%s, %08x]", t.kind, t.name, uint32(t.id))
}
