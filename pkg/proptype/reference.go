package proptype

import (
	"fmt"
	"strings"

	"github.com/raskyld/ipywire/pkg/value"
)

// ReferencePrefix is prepended to model ids when a widget is referenced
// from another widget state.
const ReferencePrefix = "IPY_MODEL_"

// Reference serializes a widget as "IPY_MODEL_<id>" and resolves such
// strings back to the live widget. M is usually a pointer to a concrete
// widget type. References have no default: a reference property must be
// given a widget, or be wrapped in Nullable.
func Reference[M comparable](name string) Type[M] {
	return referenceType[M]{name: name}
}

type referenceType[M comparable] struct {
	name string
}

func (t referenceType[M]) Name() string { return "reference<" + t.name + ">" }

func (t referenceType[M]) Default() (M, error) {
	var zero M
	return zero, fmt.Errorf("%w: %s", ErrNoDefault, t.Name())
}

// Equal compares widgets by identity.
func (t referenceType[M]) Equal(a, b M) bool { return a == b }

func (t referenceType[M]) Serialize(v M, r Resolver) (value.Value, error) {
	var zero M
	if v == zero {
		return nil, fmt.Errorf("%w: %s: no widget to reference", ErrUnresolvable, t.Name())
	}
	if r == nil {
		return nil, fmt.Errorf("%w: %s: no resolver", ErrUnresolvable, t.Name())
	}
	id, err := r.IDOf(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnresolvable, t.Name(), err)
	}
	return value.String(ReferencePrefix + id), nil
}

func (t referenceType[M]) Deserialize(v value.Value, r Resolver) (M, error) {
	var zero M
	s, ok := v.(value.String)
	if !ok {
		return zero, mismatch(t.Name(), value.KindString, v)
	}
	id, ok := strings.CutPrefix(string(s), ReferencePrefix)
	if !ok || id == "" {
		return zero, fmt.Errorf("%w: %q does not start with %s", ErrInvalidLiteral, string(s), ReferencePrefix)
	}
	if r == nil {
		return zero, fmt.Errorf("%w: %s: no resolver", ErrUnresolvable, t.Name())
	}

	widget, err := r.Resolve(id)
	if err != nil {
		return zero, fmt.Errorf("%w: %s: %w", ErrUnresolvable, t.Name(), err)
	}
	typed, ok := widget.(M)
	if !ok {
		return zero, &MismatchError{
			Type:     t.Name(),
			Expected: fmt.Sprintf("%T", zero),
			Actual:   fmt.Sprintf("%T", widget),
		}
	}
	return typed, nil
}

// ParseReference extracts the model id of a serialized reference.
func ParseReference(s string) (string, bool) {
	id, ok := strings.CutPrefix(s, ReferencePrefix)
	return id, ok && id != ""
}
