package proptype

import (
	"errors"
	"fmt"
	"slices"

	"github.com/raskyld/ipywire/pkg/value"
)

// Nullable accepts JSON null on top of what inner accepts. A nil pointer
// stands for null.
func Nullable[T any](inner Type[T]) Type[*T] {
	return nullableType[T]{inner: inner}
}

type nullableType[T any] struct {
	inner Type[T]
}

func (t nullableType[T]) Name() string         { return "nullable<" + t.inner.Name() + ">" }
func (t nullableType[T]) Default() (*T, error) { return nil, nil }

func (t nullableType[T]) Equal(a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return t.inner.Equal(*a, *b)
}

func (t nullableType[T]) Serialize(v *T, r Resolver) (value.Value, error) {
	if v == nil {
		return value.Null{}, nil
	}
	return t.inner.Serialize(*v, r)
}

func (t nullableType[T]) Deserialize(v value.Value, r Resolver) (*T, error) {
	if value.Of(v) == value.KindNull {
		return nil, nil
	}
	out, err := t.inner.Deserialize(v, r)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Array serializes slices element by element.
func Array[E any](elem Type[E]) Type[[]E] {
	return arrayType[E]{elem: elem}
}

type arrayType[E any] struct {
	elem Type[E]
}

func (t arrayType[E]) Name() string         { return "array<" + t.elem.Name() + ">" }
func (t arrayType[E]) Default() ([]E, error) { return []E{}, nil }

func (t arrayType[E]) Equal(a, b []E) bool {
	return slices.EqualFunc(a, b, t.elem.Equal)
}

func (t arrayType[E]) Serialize(v []E, r Resolver) (value.Value, error) {
	out := make(value.List, len(v))
	for i, item := range v {
		sv, err := t.elem.Serialize(item, r)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", t.Name(), i, err)
		}
		out[i] = sv
	}
	return out, nil
}

func (t arrayType[E]) Deserialize(v value.Value, r Resolver) ([]E, error) {
	list, ok := v.(value.List)
	if !ok {
		return nil, mismatch(t.Name(), value.KindList, v)
	}
	out := make([]E, len(list))
	for i, item := range list {
		dv, err := t.elem.Deserialize(item, r)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", t.Name(), i, err)
		}
		out[i] = dv
	}
	return out, nil
}

// Map serializes string-keyed maps.
func Map[V any](elem Type[V]) Type[map[string]V] {
	return mapType[V]{elem: elem}
}

type mapType[V any] struct {
	elem Type[V]
}

func (t mapType[V]) Name() string { return "map<" + t.elem.Name() + ">" }

func (t mapType[V]) Default() (map[string]V, error) { return map[string]V{}, nil }

func (t mapType[V]) Equal(a, b map[string]V) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !t.elem.Equal(av, bv) {
			return false
		}
	}
	return true
}

func (t mapType[V]) Serialize(v map[string]V, r Resolver) (value.Value, error) {
	out := make(value.Map, len(v))
	for k, item := range v {
		sv, err := t.elem.Serialize(item, r)
		if err != nil {
			return nil, fmt.Errorf("%s[%q]: %w", t.Name(), k, err)
		}
		out[k] = sv
	}
	return out, nil
}

func (t mapType[V]) Deserialize(v value.Value, r Resolver) (map[string]V, error) {
	m, ok := v.(value.Map)
	if !ok {
		return nil, mismatch(t.Name(), value.KindMap, v)
	}
	out := make(map[string]V, len(m))
	for k, item := range m {
		dv, err := t.elem.Deserialize(item, r)
		if err != nil {
			return nil, fmt.Errorf("%s[%q]: %w", t.Name(), k, err)
		}
		out[k] = dv
	}
	return out, nil
}

// Tuple is the Go value of a pair property.
type Tuple[A, B any] struct {
	First  A
	Second B
}

// Pair serializes a Tuple as a two elements list, the way range sliders
// send their bounds.
func Pair[A, B any](first Type[A], second Type[B]) Type[Tuple[A, B]] {
	return pairType[A, B]{first: first, second: second}
}

type pairType[A, B any] struct {
	first  Type[A]
	second Type[B]
}

func (t pairType[A, B]) Name() string {
	return "pair<" + t.first.Name() + "," + t.second.Name() + ">"
}

func (t pairType[A, B]) Default() (out Tuple[A, B], err error) {
	if out.First, err = t.first.Default(); err != nil {
		return
	}
	out.Second, err = t.second.Default()
	return
}

func (t pairType[A, B]) Equal(a, b Tuple[A, B]) bool {
	return t.first.Equal(a.First, b.First) && t.second.Equal(a.Second, b.Second)
}

func (t pairType[A, B]) Serialize(v Tuple[A, B], r Resolver) (value.Value, error) {
	first, err := t.first.Serialize(v.First, r)
	if err != nil {
		return nil, fmt.Errorf("%s[0]: %w", t.Name(), err)
	}
	second, err := t.second.Serialize(v.Second, r)
	if err != nil {
		return nil, fmt.Errorf("%s[1]: %w", t.Name(), err)
	}
	return value.List{first, second}, nil
}

func (t pairType[A, B]) Deserialize(v value.Value, r Resolver) (out Tuple[A, B], err error) {
	list, ok := v.(value.List)
	if !ok {
		return out, mismatch(t.Name(), value.KindList, v)
	}
	if len(list) != 2 {
		return out, &MismatchError{
			Type:     t.Name(),
			Expected: "list of 2 elements",
			Actual:   fmt.Sprintf("list of %d elements", len(list)),
		}
	}
	if out.First, err = t.first.Deserialize(list[0], r); err != nil {
		return out, fmt.Errorf("%s[0]: %w", t.Name(), err)
	}
	if out.Second, err = t.second.Deserialize(list[1], r); err != nil {
		return out, fmt.Errorf("%s[1]: %w", t.Name(), err)
	}
	return out, nil
}

// Selector picks the candidate serializing v in a union.
type Selector[T any] func(v T) (Type[T], error)

// Union accepts any value one of its candidates accepts.
//
// Deserialization tries the candidates in declaration order and returns
// the first success. When all of them fail, the returned error wraps
// ErrNoCandidate and every candidate failure. Serialization uses the
// candidate returned by selector.
func Union[T any](def T, selector Selector[T], candidates ...Type[T]) Type[T] {
	if len(candidates) == 0 {
		panic("proptype: union needs at least one candidate")
	}
	return unionType[T]{def: def, selector: selector, candidates: candidates}
}

type unionType[T any] struct {
	def        T
	selector   Selector[T]
	candidates []Type[T]
}

func (t unionType[T]) Name() string {
	names := make([]string, len(t.candidates))
	for i, c := range t.candidates {
		names[i] = c.Name()
	}
	return "union<" + joinNames(names, "|") + ">"
}

func (t unionType[T]) Default() (T, error) { return t.def, nil }

func (t unionType[T]) Equal(a, b T) bool {
	ta, errA := t.selector(a)
	tb, errB := t.selector(b)
	if errA != nil || errB != nil || ta.Name() != tb.Name() {
		return false
	}
	return ta.Equal(a, b)
}

func (t unionType[T]) Serialize(v T, r Resolver) (value.Value, error) {
	typ, err := t.selector(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.Name(), err)
	}
	return typ.Serialize(v, r)
}

func (t unionType[T]) Deserialize(v value.Value, r Resolver) (T, error) {
	var errs []error
	for _, c := range t.candidates {
		out, err := c.Deserialize(v, r)
		if err == nil {
			return out, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
	}

	var zero T
	return zero, fmt.Errorf("%w: %s: %w", ErrNoCandidate, t.Name(), errors.Join(errs...))
}

// Widen adapts a typed descriptor to Type[any] so descriptors of
// different Go types can be combined in a Union.
func Widen[T any](typ Type[T]) Type[any] {
	return widenType[T]{inner: typ}
}

// Accepts reports whether v holds a T, for use in union selectors.
func Accepts[T any](v any) bool {
	_, ok := v.(T)
	return ok
}

type widenType[T any] struct {
	inner Type[T]
}

func (t widenType[T]) Name() string { return t.inner.Name() }

func (t widenType[T]) Default() (any, error) {
	v, err := t.inner.Default()
	return v, err
}

func (t widenType[T]) Equal(a, b any) bool {
	ta, okA := a.(T)
	tb, okB := b.(T)
	return okA && okB && t.inner.Equal(ta, tb)
}

func (t widenType[T]) Serialize(v any, r Resolver) (value.Value, error) {
	typed, ok := v.(T)
	if !ok {
		var zero T
		return nil, &MismatchError{
			Type:     t.Name(),
			Expected: fmt.Sprintf("%T", zero),
			Actual:   fmt.Sprintf("%T", v),
		}
	}
	return t.inner.Serialize(typed, r)
}

func (t widenType[T]) Deserialize(v value.Value, r Resolver) (any, error) {
	out, err := t.inner.Deserialize(v, r)
	if err != nil {
		return nil, err
	}
	return out, nil
}
