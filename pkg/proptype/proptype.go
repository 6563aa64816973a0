// Package proptype provides typed codecs translating widget property values
// from and to their wire representation.
//
// Every descriptor is stateless apart from the component descriptors
// composite types hold. Serialization only fails for values that cannot
// be expressed on the wire at all (a widget which cannot be registered,
// for instance), whereas deserialization validates everything the
// frontend sends and reports mismatches with a *MismatchError.
package proptype

import (
	"errors"
	"fmt"
	"strings"

	"github.com/raskyld/ipywire/pkg/value"
)

var (
	ErrTypeMismatch   = errors.New("proptype: type mismatch")
	ErrNoCandidate    = errors.New("proptype: no union candidate accepted the value")
	ErrNoDefault      = errors.New("proptype: type has no default value")
	ErrUnknownEntry   = errors.New("proptype: unknown enum entry")
	ErrUnresolvable   = errors.New("proptype: widget reference cannot be resolved")
	ErrInvalidLiteral = errors.New("proptype: invalid literal")
)

// Resolver is the widget-lookup context descriptors are parameterized by.
// It is only needed by widget references.
type Resolver interface {
	// Resolve returns the live widget owning the given model id.
	Resolve(id string) (any, error)

	// IDOf returns the model id of a widget, registering it when needed.
	IDOf(widget any) (string, error)
}

// Type describes how values of type T travel on the wire.
type Type[T any] interface {
	Name() string
	Default() (T, error)
	Serialize(v T, r Resolver) (value.Value, error)
	Deserialize(v value.Value, r Resolver) (T, error)
	Equal(a, b T) bool
}

// MismatchError is returned when a descriptor receives a value of the
// wrong kind.
type MismatchError struct {
	Type     string
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: %s expected %s but got %s", ErrTypeMismatch, e.Type, e.Expected, e.Actual)
}

func (e *MismatchError) Unwrap() error {
	return ErrTypeMismatch
}

func mismatch(typeName string, expected value.Kind, actual value.Value) error {
	return &MismatchError{
		Type:     typeName,
		Expected: expected.String(),
		Actual:   value.Of(actual).String(),
	}
}

// MustDefault returns the default of typ and panics if it has none.
func MustDefault[T any](typ Type[T]) T {
	v, err := typ.Default()
	if err != nil {
		panic(fmt.Sprintf("%s: %s", typ.Name(), err))
	}
	return v
}

func joinNames(names []string, sep string) string {
	return strings.Join(names, sep)
}
