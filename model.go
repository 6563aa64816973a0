package ipywire

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/raskyld/ipywire/pkg/comm"
	"github.com/raskyld/ipywire/pkg/proptype"
	"github.com/raskyld/ipywire/pkg/value"
)

// PatchFunc observes every effective change of a model, as the serialized
// fragment `{name: value}`.
type PatchFunc func(patch value.Map, origin Origin)

// CustomFunc receives the content and buffers of a `custom` message sent
// by the frontend.
type CustomFunc func(content map[string]any, buffers [][]byte)

// Widget is anything backed by a `Model`. Embedding `*Model` is enough to
// implement it.
type Widget interface {
	WidgetModel() *Model
}

// Model is the synchronized state of a widget.
type Model struct {
	mgr  *Manager
	spec WidgetSpec

	lk           sync.Mutex
	props        []property
	byName       map[string]property
	patchFns     map[int]PatchFunc
	nextPatchFn  int
	customFns    []CustomFunc
	owner        Widget
	id           string
	comm         comm.Comm
	fromFrontend bool

	// regLk serializes registration and closing.
	regLk sync.Mutex

	ModelName          *Property[string]
	ModelModule        *Property[string]
	ModelModuleVersion *Property[string]
	ViewName           *Property[*string]
	ViewModule         *Property[string]
	ViewModuleVersion  *Property[string]
}

// NewModel creates a model for spec, attached to mgr. mgr may be nil for
// models which never go live, references then cannot be serialized.
func NewModel(mgr *Manager, spec WidgetSpec) *Model {
	m := &Model{
		mgr:      mgr,
		spec:     spec,
		byName:   make(map[string]property),
		patchFns: make(map[int]PatchFunc),
	}

	var viewName *string
	if spec.ViewName != "" {
		viewName = &spec.ViewName
	}

	m.ModelName = Attach(m, "_model_name", proptype.String, spec.ModelName)
	m.ModelModule = Attach(m, "_model_module", proptype.String, spec.ModelModule)
	m.ModelModuleVersion = Attach(m, "_model_module_version", proptype.String, spec.ModelModuleVersion)
	m.ViewName = Attach(m, "_view_name", proptype.Nullable(proptype.String), viewName)
	m.ViewModule = Attach(m, "_view_module", proptype.String, spec.ViewModule)
	m.ViewModuleVersion = Attach(m, "_view_module_version", proptype.String, spec.ViewModuleVersion)
	return m
}

func (m *Model) WidgetModel() *Model {
	return m
}

// Spec the model was created with. Properties may have diverged since.
func (m *Model) Spec() WidgetSpec {
	return m.spec
}

func (m *Model) Manager() *Manager {
	m.lk.Lock()
	defer m.lk.Unlock()
	return m.mgr
}

// ID is the comm id of a live model, or "".
func (m *Model) ID() string {
	m.lk.Lock()
	defer m.lk.Unlock()
	return m.id
}

func (m *Model) IsLive() bool {
	m.lk.Lock()
	defer m.lk.Unlock()
	return m.comm != nil
}

// FromFrontend reports whether the frontend created this model.
func (m *Model) FromFrontend() bool {
	m.lk.Lock()
	defer m.lk.Unlock()
	return m.fromFrontend
}

// PropertyNames in declaration order.
func (m *Model) PropertyNames() []string {
	m.lk.Lock()
	defer m.lk.Unlock()
	names := make([]string, len(m.props))
	for i, p := range m.props {
		names[i] = p.Name()
	}
	return names
}

// FullState serializes every property.
func (m *Model) FullState() (value.Map, error) {
	return m.fullState(m.resolver())
}

func (m *Model) fullState(r proptype.Resolver) (value.Map, error) {
	m.lk.Lock()
	props := slices.Clone(m.props)
	m.lk.Unlock()

	state := make(value.Map, len(props))
	for _, p := range props {
		v, err := p.serialize(r)
		if err != nil {
			return nil, err
		}
		state[p.Name()] = v
	}
	return state, nil
}

// ApplyPatch sets every property named in patch. Unknown keys are
// skipped. Keys which cannot be deserialized are reported together, the
// others are still applied.
//
// Changes are local: they are sent to the frontend.
func (m *Model) ApplyPatch(patch value.Map) error {
	return m.applyPatch(patch, OriginLocal)
}

// applyPatchWithoutEcho applies a patch received from the frontend, it is
// not sent back.
func (m *Model) applyPatchWithoutEcho(patch value.Map) error {
	return m.applyPatch(patch, OriginRemote)
}

func (m *Model) applyPatch(patch value.Map, origin Origin) error {
	m.lk.Lock()
	props := slices.Clone(m.props)
	m.lk.Unlock()

	var errs []error
	for _, p := range props {
		raw, ok := patch[p.Name()]
		if !ok {
			continue
		}
		if err := p.apply(raw, origin); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OnPatch registers fn and returns a function removing it.
func (m *Model) OnPatch(fn PatchFunc) (cancel func()) {
	m.lk.Lock()
	defer m.lk.Unlock()
	id := m.nextPatchFn
	m.nextPatchFn++
	m.patchFns[id] = fn

	return func() {
		m.lk.Lock()
		defer m.lk.Unlock()
		delete(m.patchFns, id)
	}
}

// OnCustom registers fn for the `custom` messages of the frontend.
func (m *Model) OnCustom(fn CustomFunc) {
	m.lk.Lock()
	defer m.lk.Unlock()
	m.customFns = append(m.customFns, fn)
}

// SendCustom sends a `custom` message to the frontend view.
func (m *Model) SendCustom(ctx context.Context, content any, buffers ...[]byte) error {
	m.lk.Lock()
	c := m.comm
	m.lk.Unlock()
	if c == nil {
		return ErrNotRegistered
	}

	return c.Send(ctx, comm.JSON(map[string]any{
		"method":  methodCustom,
		"content": content,
	}, buffers...))
}

func (m *Model) declare(p property) {
	m.lk.Lock()
	defer m.lk.Unlock()
	if m.comm != nil {
		panic(fmt.Sprintf("ipywire: cannot attach %s to a live model", p.Name()))
	}
	if _, exists := m.byName[p.Name()]; exists {
		panic(fmt.Sprintf("ipywire: property %s declared twice", p.Name()))
	}
	m.props = append(m.props, p)
	m.byName[p.Name()] = p
}

func (m *Model) resolver() proptype.Resolver {
	m.lk.Lock()
	defer m.lk.Unlock()
	if m.mgr == nil {
		return nil
	}
	return m.mgr
}

func (m *Model) notify(patch value.Map, origin Origin) {
	m.lk.Lock()
	fns := make([]PatchFunc, 0, len(m.patchFns))
	for id := 0; id < m.nextPatchFn; id++ {
		if fn, ok := m.patchFns[id]; ok {
			fns = append(fns, fn)
		}
	}
	m.lk.Unlock()

	for _, fn := range fns {
		fn(patch, origin)
	}
}

func (m *Model) dispatchCustom(content map[string]any, buffers [][]byte) {
	m.lk.Lock()
	fns := slices.Clone(m.customFns)
	m.lk.Unlock()

	for _, fn := range fns {
		fn(content, buffers)
	}
}

func (m *Model) current() (comm.Comm, Widget) {
	m.lk.Lock()
	defer m.lk.Unlock()
	return m.comm, m.owner
}

func (m *Model) goLive(c comm.Comm, owner Widget, fromFrontend bool) {
	m.lk.Lock()
	defer m.lk.Unlock()
	m.comm = c
	m.id = c.ID()
	if m.owner == nil || m.owner == Widget(m) {
		m.owner = owner
	}
	m.fromFrontend = m.fromFrontend || fromFrontend
}

func (m *Model) markFromFrontend() {
	m.lk.Lock()
	defer m.lk.Unlock()
	m.fromFrontend = true
}

func (m *Model) goDead() {
	m.lk.Lock()
	defer m.lk.Unlock()
	m.comm = nil
	m.id = ""
}
