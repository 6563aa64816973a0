package ipywire

import (
	"fmt"
	"slices"
	"sync"

	"github.com/raskyld/ipywire/pkg/proptype"
	"github.com/raskyld/ipywire/pkg/value"
)

// Origin tells listeners who caused a change.
type Origin uint8

const (
	// OriginLocal is a write made by kernel code.
	OriginLocal Origin = iota
	// OriginRemote is a patch received from the frontend.
	OriginRemote
)

func (o Origin) String() string {
	if o == OriginRemote {
		return "remote"
	}
	return "local"
}

// ChangeFunc observes the changes of a single property.
type ChangeFunc[T any] func(old, new T, origin Origin)

// Property is a named, typed value of a `Model`.
type Property[T any] struct {
	model *Model
	name  string
	typ   proptype.Type[T]

	lk        sync.RWMutex
	value     T
	listeners []ChangeFunc[T]
}

// Attach declares a new property on m, holding initial.
//
// Properties are part of the widget definition: Attach panics when the
// name is already taken or when m is live.
func Attach[T any](m *Model, name string, typ proptype.Type[T], initial T) *Property[T] {
	p := &Property[T]{
		model: m,
		name:  name,
		typ:   typ,
		value: initial,
	}
	m.declare(p)
	return p
}

// AttachDefault is `Attach` with the default value of typ. It panics for
// types without default, such as references.
func AttachDefault[T any](m *Model, name string, typ proptype.Type[T]) *Property[T] {
	return Attach(m, name, typ, proptype.MustDefault(typ))
}

func (p *Property[T]) Name() string {
	return p.name
}

func (p *Property[T]) TypeName() string {
	return p.typ.Name()
}

func (p *Property[T]) Get() T {
	p.lk.RLock()
	defer p.lk.RUnlock()
	return p.value
}

// Set stores v and notifies listeners, unless v equals the current value.
// The change is sent to the frontend when the model is live.
func (p *Property[T]) Set(v T) error {
	return p.set(v, OriginLocal)
}

// OnChange registers fn, called after every effective change.
func (p *Property[T]) OnChange(fn ChangeFunc[T]) {
	p.lk.Lock()
	defer p.lk.Unlock()
	p.listeners = append(p.listeners, fn)
}

func (p *Property[T]) set(v T, origin Origin) error {
	p.lk.RLock()
	same := p.typ.Equal(p.value, v)
	p.lk.RUnlock()
	if same {
		return nil
	}

	// Serialize before storing: a value which cannot reach the frontend
	// must not be kept. Serializing a reference may register the widget
	// it points to, so it runs unlocked.
	serialized, err := p.typ.Serialize(v, p.model.resolver())
	if err != nil {
		return fmt.Errorf("property %s: %w", p.name, err)
	}

	p.lk.Lock()
	if p.typ.Equal(p.value, v) {
		p.lk.Unlock()
		return nil
	}
	old := p.value
	p.value = v
	listeners := slices.Clone(p.listeners)
	p.lk.Unlock()

	for _, fn := range listeners {
		fn(old, v, origin)
	}
	p.model.notify(value.Map{p.name: serialized}, origin)
	return nil
}

func (p *Property[T]) serialize(r proptype.Resolver) (value.Value, error) {
	v := p.Get()
	out, err := p.typ.Serialize(v, r)
	if err != nil {
		return nil, fmt.Errorf("property %s: %w", p.name, err)
	}
	return out, nil
}

func (p *Property[T]) apply(raw value.Value, origin Origin) error {
	v, err := p.typ.Deserialize(raw, p.model.resolver())
	if err != nil {
		return fmt.Errorf("property %s: %w", p.name, err)
	}
	return p.set(v, origin)
}

// property is the untyped view a model has of its properties.
type property interface {
	Name() string
	TypeName() string
	serialize(r proptype.Resolver) (value.Value, error)
	apply(raw value.Value, origin Origin) error
}
