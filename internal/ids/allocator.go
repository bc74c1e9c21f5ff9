package ids

import (
	"math/rand/v2"

	"mdstore/internal/domain"
)

// Allocator finds unused identifiers. Schema, table and column ids come from a
// deterministic cyclic scan of their number range, starting at an offset
// (usually the current sibling count) so that allocations spread out instead
// of rescanning the low numbers. Constraint collection ids are random.
//
// The allocator holds no state of its own: inUse is consulted for every
// candidate, so the caller decides what "in use" means and must serialize
// allocate-then-register sequences.
type Allocator struct {
	codec  Codec
	inUse  func(domain.ID) bool
	random func() int32
}

// NewAllocator creates an allocator over codec. inUse reports whether a
// target id is taken.
func NewAllocator(codec Codec, inUse func(domain.ID) bool) *Allocator {
	return &Allocator{codec: codec, inUse: inUse, random: rand.Int32}
}

// WithRandom replaces the random source for collection ids. It must return
// non-negative values.
func (a *Allocator) WithRandom(random func() int32) *Allocator {
	a.random = random
	return a
}

// Codec returns the codec the allocator encodes with.
func (a *Allocator) Codec() Codec { return a.codec }

// UnusedSchemaID returns a free schema id, scanning from offset.
func (a *Allocator) UnusedSchemaID(offset int) (domain.ID, error) {
	c := a.codec
	n, ok := scan(c.MinSchemaNumber(), c.MaxSchemaNumber(), offset, func(s int) bool {
		return !a.inUse(c.Encode(s, 0, 0))
	})
	if !ok {
		return 0, &domain.IDSpaceExhaustedError{Level: domain.KindSchema}
	}
	return c.Encode(n, 0, 0), nil
}

// UnusedTableID returns a free table id below schemaID, scanning from offset.
func (a *Allocator) UnusedTableID(schemaID domain.ID, offset int) (domain.ID, error) {
	c := a.codec
	s := c.SchemaNumber(schemaID)
	n, ok := scan(c.MinTableNumber(), c.MaxTableNumber(), offset, func(t int) bool {
		return !a.inUse(c.Encode(s, t, 0))
	})
	if !ok {
		return 0, &domain.IDSpaceExhaustedError{Level: domain.KindTable, Parent: schemaID}
	}
	return c.Encode(s, n, 0), nil
}

// UnusedColumnID returns a free column id below tableID, scanning from offset.
func (a *Allocator) UnusedColumnID(tableID domain.ID, offset int) (domain.ID, error) {
	c := a.codec
	s, t := c.SchemaNumber(tableID), c.TableNumber(tableID)
	n, ok := scan(c.MinColumnNumber(), c.MaxColumnNumber(), offset, func(col int) bool {
		return !a.inUse(c.Encode(s, t, col))
	})
	if !ok {
		return 0, &domain.IDSpaceExhaustedError{Level: domain.KindColumn, Parent: tableID}
	}
	return c.Encode(s, t, n), nil
}

// RandomCollectionID draws random non-negative ids until one is not taken.
// Collection ids live in their own space and are never checked against targets.
func (a *Allocator) RandomCollectionID(taken func(domain.ID) bool) domain.ID {
	for {
		id := domain.ID(a.random())
		if id < 0 {
			id = -id
		}
		if id >= 0 && !taken(id) {
			return id
		}
	}
}

// scan visits every number in [lo, hi] once, starting at lo + offset and
// wrapping past hi, and returns the first one accepted by free.
func scan(lo, hi, offset int, free func(int) bool) (int, bool) {
	size := hi - lo + 1
	if size <= 0 {
		return 0, false
	}
	if offset < 0 {
		offset = 0
	}
	start := offset % size
	for i := 0; i < size; i++ {
		n := lo + (start+i)%size
		if free(n) {
			return n, true
		}
	}
	return 0, false
}
