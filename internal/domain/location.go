package domain

import (
	"maps"
	"sort"
)

// Well-known location property keys.
const (
	LocationTypeKey  = "TYPE"
	LocationIndexKey = "INDEX"
	LocationPathKey  = "PATH"
)

// Location is a property bag describing where a target physically lives.
// The zero value is an empty location ready to use.
type Location struct {
	props map[string]string
}

// NewLocation creates a location of the given type with optional path.
func NewLocation(typ, path string) Location {
	l := Location{}
	if typ != "" {
		l.Set(LocationTypeKey, typ)
	}
	if path != "" {
		l.Set(LocationPathKey, path)
	}
	return l
}

// LocationFromProperties creates a location holding a copy of props.
func LocationFromProperties(props map[string]string) Location {
	return Location{props: maps.Clone(props)}
}

// Properties returns a copy of all properties.
func (l Location) Properties() map[string]string {
	if l.props == nil {
		return map[string]string{}
	}
	return maps.Clone(l.props)
}

// Get returns the value of key or a KeyNotFoundError.
func (l Location) Get(key string) (string, error) {
	v, ok := l.props[key]
	if !ok {
		return "", &KeyNotFoundError{Key: key}
	}
	return v, nil
}

// GetIfPresent returns the value of key and whether it was set.
func (l Location) GetIfPresent(key string) (string, bool) {
	v, ok := l.props[key]
	return v, ok
}

// Set stores value under key.
func (l *Location) Set(key, value string) {
	if l.props == nil {
		l.props = make(map[string]string)
	}
	l.props[key] = value
}

// Delete removes key if present.
func (l *Location) Delete(key string) {
	delete(l.props, key)
}

// Type is a shortcut for the TYPE property.
func (l Location) Type() string {
	return l.props[LocationTypeKey]
}

// Len returns the number of properties.
func (l Location) Len() int { return len(l.props) }

// AllPropertyKeys returns every key potentially present: the well-known keys
// plus whatever is set, sorted.
func (l Location) AllPropertyKeys() []string {
	seen := map[string]struct{}{
		LocationTypeKey:  {},
		LocationIndexKey: {},
		LocationPathKey:  {},
	}
	for k := range l.props {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CanonicalizableKeys returns the keys whose values are expected to repeat a
// lot across locations. Backends may store those values deduplicated.
func (l Location) CanonicalizableKeys() []string {
	return []string{LocationTypeKey}
}

// Clone returns an independent copy.
func (l Location) Clone() Location {
	return Location{props: maps.Clone(l.props)}
}

// Equal reports whether both locations hold the same properties.
func (l Location) Equal(other Location) bool {
	return maps.Equal(l.props, other.props)
}
