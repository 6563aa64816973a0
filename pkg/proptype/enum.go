package proptype

import (
	"fmt"
	"slices"

	"github.com/raskyld/ipywire/pkg/value"
)

// Enum restricts a string property to a closed set of entries. The first
// entry is the default.
func Enum[E ~string](name string, entries ...E) Type[E] {
	if len(entries) == 0 {
		panic("proptype: enum " + name + " has no entry")
	}
	return enumType[E]{name: name, entries: slices.Clone(entries)}
}

type enumType[E ~string] struct {
	name    string
	entries []E
}

func (t enumType[E]) Name() string       { return "enum<" + t.name + ">" }
func (t enumType[E]) Default() (E, error) { return t.entries[0], nil }
func (t enumType[E]) Equal(a, b E) bool   { return a == b }

// Entries returns the accepted values in declaration order.
func (t enumType[E]) Entries() []E {
	return slices.Clone(t.entries)
}

func (t enumType[E]) Serialize(v E, _ Resolver) (value.Value, error) {
	if !slices.Contains(t.entries, v) {
		return nil, fmt.Errorf("%w: %q is not part of %s", ErrUnknownEntry, string(v), t.Name())
	}
	return value.String(v), nil
}

func (t enumType[E]) Deserialize(v value.Value, _ Resolver) (E, error) {
	s, ok := v.(value.String)
	if !ok {
		return "", mismatch(t.Name(), value.KindString, v)
	}
	entry := E(s)
	if !slices.Contains(t.entries, entry) {
		return "", fmt.Errorf("%w: %q is not part of %s", ErrUnknownEntry, string(s), t.Name())
	}
	return entry, nil
}
