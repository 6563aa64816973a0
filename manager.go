package ipywire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/hashicorp/go-metrics"

	"github.com/raskyld/ipywire/pkg/comm"
	"github.com/raskyld/ipywire/pkg/telemetry"
	"github.com/raskyld/ipywire/pkg/value"
	"github.com/raskyld/ipywire/pkg/wire"
)

const (
	methodUpdate        = "update"
	methodEchoUpdate    = "echo_update"
	methodRequestState  = "request_state"
	methodCustom        = "custom"
	methodRequestStates = "request_states"
	methodUpdateStates  = "update_states"
)

// widgetMessage is the union of every message exchanged on widget comms,
// discriminated by Method.
type widgetMessage struct {
	Method      string          `json:"method,omitempty"`
	State       json.RawMessage `json:"state,omitempty"`
	BufferPaths [][]any         `json:"buffer_paths"`
	Content     json.RawMessage `json:"content,omitempty"`
}

// Manager owns the live widgets of a comm session.
type Manager struct {
	cfg    *config
	logger *slog.Logger
	msink  metrics.MetricSink
	comms  comm.Manager

	lk      sync.RWMutex
	widgets map[string]*liveWidget
	closed  bool
}

type liveWidget struct {
	w      Widget
	cancel func()
}

// NewManager handles the widget targets of comms.
func NewManager(comms comm.Manager, opts ...Option) (*Manager, error) {
	if comms == nil {
		return nil, fmt.Errorf("%w: nil comm manager", ErrInvalidCfg)
	}

	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	mgr := &Manager{
		cfg:     cfg,
		logger:  telemetry.Logger(cfg.logHandler),
		msink:   telemetry.Sink(cfg.msink),
		comms:   comms,
		widgets: make(map[string]*liveWidget),
	}

	if err := comms.RegisterTarget(TargetWidget, mgr.acceptWidget); err != nil {
		return nil, err
	}
	if err := comms.RegisterTarget(TargetControl, mgr.acceptControl); err != nil {
		comms.UnregisterTarget(TargetWidget)
		return nil, err
	}
	return mgr, nil
}

// Registry used for widgets opened by the frontend.
func (mgr *Manager) Registry() *Registry {
	return mgr.cfg.registry
}

// Register makes w live: a comm carrying its full state is opened on
// `TargetWidget`. Registering a live widget does nothing.
//
// Widgets referenced by w are registered first. Unregistered widgets
// referencing each other cannot be registered and fail with
// ErrReferenceCycle.
func (mgr *Manager) Register(ctx context.Context, w Widget) error {
	return mgr.register(ctx, w, nil)
}

func (mgr *Manager) register(ctx context.Context, w Widget, chain []*Model) error {
	m, err := mgr.modelOf(w)
	if err != nil {
		return err
	}
	if slices.Contains(chain, m) {
		return fmt.Errorf("%w: %s", ErrReferenceCycle, m.spec.ModelName)
	}

	m.regLk.Lock()
	defer m.regLk.Unlock()

	if m.IsLive() {
		return nil
	}
	if mgr.isClosed() {
		return ErrManagerClosed
	}

	// Changes made while the comm opens are held, then sent in order.
	gate, cancel := mgr.forwardLocal(m)

	state, err := m.fullState(&registration{
		mgr:   mgr,
		ctx:   ctx,
		chain: append(slices.Clip(chain), m),
	})
	if err != nil {
		cancel()
		return fmt.Errorf("ipywire: cannot serialize %s: %w", m.spec.ModelName, err)
	}
	msg, err := wire.Encode(state.Raw().(map[string]any))
	if err != nil {
		cancel()
		return fmt.Errorf("ipywire: cannot encode %s: %w", m.spec.ModelName, err)
	}

	open := stateMessage("", msg)
	open.Metadata = map[string]any{"version": ProtocolVersion}

	c, err := mgr.comms.Open(ctx, TargetWidget, open, &widgetHandler{mgr: mgr, model: m})
	if err != nil {
		cancel()
		return fmt.Errorf("ipywire: cannot open comm for %s: %w", m.spec.ModelName, err)
	}
	mgr.track(c, w, m, cancel, false)
	gate.release(func(patch value.Map) { mgr.sendUpdate(m, patch) })

	mgr.msink.IncrCounterWithLabels(MetricWidgetRegisteredCount, 1, mgr.labels(telemetry.LabelModelName.M(m.spec.ModelName)))
	mgr.logger.Debug(
		"widget registered",
		telemetry.LabelModelID.L(c.ID()),
		telemetry.LabelModelName.L(m.spec.ModelName),
	)
	return nil
}

// registration resolves references met while serializing the models of
// one Register call.
type registration struct {
	mgr   *Manager
	ctx   context.Context
	chain []*Model
}

func (r *registration) Resolve(id string) (any, error) {
	return r.mgr.Resolve(id)
}

func (r *registration) IDOf(x any) (string, error) {
	w, ok := x.(Widget)
	if !ok {
		return "", fmt.Errorf("%w: %T", ErrNotWidget, x)
	}
	if err := r.mgr.register(r.ctx, w, r.chain); err != nil {
		return "", err
	}
	return w.WidgetModel().ID(), nil
}

// patchGate holds the local patches of a model until its comm is open.
type patchGate struct {
	lk   sync.Mutex
	open bool
	held []value.Map
}

// forwardLocal sends the local patches of m to the frontend once the
// returned gate is released.
func (mgr *Manager) forwardLocal(m *Model) (*patchGate, func()) {
	g := &patchGate{}
	cancel := m.OnPatch(func(patch value.Map, origin Origin) {
		if origin != OriginLocal {
			return
		}
		g.lk.Lock()
		defer g.lk.Unlock()
		if !g.open {
			g.held = append(g.held, patch)
			return
		}
		mgr.sendUpdate(m, patch)
	})
	return g, cancel
}

func (g *patchGate) release(send func(value.Map)) {
	g.lk.Lock()
	defer g.lk.Unlock()
	for _, patch := range g.held {
		send(patch)
	}
	g.held = nil
	g.open = true
}

// Close sends a comm close for w, which is not live anymore afterward.
func (mgr *Manager) Close(ctx context.Context, w Widget) error {
	m, err := mgr.modelOf(w)
	if err != nil {
		return err
	}

	m.regLk.Lock()
	defer m.regLk.Unlock()

	c, _ := m.current()
	if c == nil {
		return nil
	}

	mgr.untrack(c.ID(), m)
	mgr.msink.IncrCounterWithLabels(MetricWidgetClosedCount, 1, mgr.labels(telemetry.LabelModelName.M(m.spec.ModelName)))
	return c.Close(ctx, comm.Message{})
}

// Shutdown closes every live widget and stops accepting comms from the
// frontend.
func (mgr *Manager) Shutdown(ctx context.Context) error {
	mgr.lk.Lock()
	if mgr.closed {
		mgr.lk.Unlock()
		return nil
	}
	mgr.closed = true
	mgr.lk.Unlock()

	mgr.comms.UnregisterTarget(TargetWidget)
	mgr.comms.UnregisterTarget(TargetControl)

	var errs []error
	for _, w := range mgr.Widgets() {
		if err := mgr.Close(ctx, w); err != nil && !errors.Is(err, comm.ErrEndpointClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Widgets returns the live widgets, ordered by id.
func (mgr *Manager) Widgets() []Widget {
	mgr.lk.RLock()
	ids := make([]string, 0, len(mgr.widgets))
	for id := range mgr.widgets {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]Widget, len(ids))
	for i, id := range ids {
		out[i] = mgr.widgets[id].w
	}
	mgr.lk.RUnlock()
	return out
}

// Resolve returns the live widget with the given model id.
func (mgr *Manager) Resolve(id string) (any, error) {
	mgr.lk.RLock()
	defer mgr.lk.RUnlock()
	lw, ok := mgr.widgets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWidget, id)
	}
	return lw.w, nil
}

// IDOf returns the model id of a widget, registering it first if needed.
func (mgr *Manager) IDOf(x any) (string, error) {
	w, ok := x.(Widget)
	if !ok {
		return "", fmt.Errorf("%w: %T", ErrNotWidget, x)
	}

	ctx, cancel := context.WithTimeout(context.Background(), mgr.cfg.sendTimeout)
	defer cancel()
	if err := mgr.Register(ctx, w); err != nil {
		return "", err
	}
	return w.WidgetModel().ID(), nil
}

func (mgr *Manager) modelOf(w Widget) (*Model, error) {
	if w == nil {
		return nil, ErrNotWidget
	}
	m := w.WidgetModel()
	if m == nil {
		return nil, fmt.Errorf("%w: %T has no model", ErrNotWidget, w)
	}

	m.lk.Lock()
	defer m.lk.Unlock()
	if m.mgr == nil {
		m.mgr = mgr
	}
	if m.mgr != mgr {
		return nil, ErrForeignWidget
	}
	return m, nil
}

func (mgr *Manager) isClosed() bool {
	mgr.lk.RLock()
	defer mgr.lk.RUnlock()
	return mgr.closed
}

// track makes m live on c. cancel stops the forwarding of its patches.
func (mgr *Manager) track(c comm.Comm, w Widget, m *Model, cancel func(), fromFrontend bool) {
	m.goLive(c, w, fromFrontend)

	mgr.lk.Lock()
	defer mgr.lk.Unlock()
	mgr.widgets[c.ID()] = &liveWidget{w: w, cancel: cancel}
}

func (mgr *Manager) untrack(id string, m *Model) {
	mgr.lk.Lock()
	lw := mgr.widgets[id]
	delete(mgr.widgets, id)
	mgr.lk.Unlock()

	if lw != nil {
		lw.cancel()
	}
	if m.ID() == id {
		m.goDead()
	}
}

func (mgr *Manager) sendUpdate(m *Model, patch value.Map) {
	c, _ := m.current()
	if c == nil {
		return
	}

	msg, err := wire.Encode(patch.Raw().(map[string]any))
	if err != nil {
		mgr.report(m, "failed to encode update", err)
		return
	}
	mgr.send(c, m, stateMessage(methodUpdate, msg))
	mgr.msink.IncrCounterWithLabels(MetricWidgetUpdateOutCount, 1, mgr.labels(telemetry.LabelModelName.M(m.spec.ModelName)))
}

func (mgr *Manager) sendFullState(c comm.Comm, m *Model) {
	state, err := m.FullState()
	if err != nil {
		mgr.report(m, "failed to serialize state", err)
		return
	}
	msg, err := wire.Encode(state.Raw().(map[string]any))
	if err != nil {
		mgr.report(m, "failed to encode state", err)
		return
	}
	mgr.send(c, m, stateMessage(methodUpdate, msg))
}

func (mgr *Manager) send(c comm.Comm, m *Model, msg comm.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), mgr.cfg.sendTimeout)
	defer cancel()

	start := time.Now()
	if err := c.Send(ctx, msg); err != nil {
		mgr.report(m, "failed to send widget message", err)
		return
	}
	mgr.msink.AddSampleWithLabels(
		MetricWidgetSendLatency,
		float32(time.Since(start).Seconds()*1000),
		mgr.labels(telemetry.LabelModelName.M(m.spec.ModelName)),
	)
}

func (mgr *Manager) report(m *Model, what string, err error) {
	mgr.msink.IncrCounterWithLabels(MetricWidgetErrorCount, 1, mgr.labels(telemetry.LabelModelName.M(m.spec.ModelName)))
	mgr.logger.Warn(
		what,
		telemetry.LabelModelID.L(m.ID()),
		telemetry.LabelModelName.L(m.spec.ModelName),
		telemetry.LabelError.L(err),
	)
}

func (mgr *Manager) labels(extra ...metrics.Label) []metrics.Label {
	return telemetry.Labels(mgr.cfg.metricLabels, extra...)
}

// acceptWidget turns a comm opened by the frontend into a live widget
// built by the factory of its `_model_name`.
func (mgr *Manager) acceptWidget(c comm.Comm, open comm.Message) (comm.Handler, error) {
	if mgr.isClosed() {
		return nil, ErrManagerClosed
	}

	var env widgetMessage
	if err := json.Unmarshal(open.Data, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMsg, err)
	}
	patch, err := decodePatch(env.State, env.BufferPaths, open.Buffers)
	if err != nil {
		return nil, err
	}

	name, ok := patch["_model_name"].(value.String)
	if !ok || name == "" {
		return nil, fmt.Errorf("%w: open without _model_name", ErrMalformedMsg)
	}

	factory, err := mgr.cfg.registry.Lookup(string(name))
	if err != nil {
		mgr.logger.Error(
			"frontend opened a widget of unknown model",
			telemetry.LabelCommID.L(c.ID()),
			telemetry.LabelModelName.L(string(name)),
			telemetry.LabelError.L(err),
		)
		return nil, err
	}

	w, err := factory(mgr, true)
	if err != nil {
		return nil, fmt.Errorf("ipywire: factory of %s failed: %w", name, err)
	}
	m, err := mgr.modelOf(w)
	if err != nil {
		return nil, err
	}

	m.markFromFrontend()
	gate, cancel := mgr.forwardLocal(m)
	if err := m.applyPatchWithoutEcho(patch); err != nil {
		mgr.report(m, "frontend state partially applied", err)
	}
	mgr.track(c, w, m, cancel, true)
	gate.release(func(patch value.Map) { mgr.sendUpdate(m, patch) })

	mgr.msink.IncrCounterWithLabels(MetricWidgetFrontendCount, 1, mgr.labels(telemetry.LabelModelName.M(string(name))))
	mgr.logger.Debug(
		"widget opened by frontend",
		telemetry.LabelModelID.L(c.ID()),
		telemetry.LabelModelName.L(string(name)),
	)
	return &widgetHandler{mgr: mgr, model: m}, nil
}

func (mgr *Manager) acceptControl(comm.Comm, comm.Message) (comm.Handler, error) {
	return comm.HandlerFuncs{OnMessage: mgr.handleControl}, nil
}

func (mgr *Manager) handleControl(c comm.Comm, msg comm.Message) {
	var env widgetMessage
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		mgr.logger.Warn("malformed control message", telemetry.LabelCommID.L(c.ID()), telemetry.LabelError.L(err))
		return
	}
	if env.Method != methodRequestStates {
		mgr.logger.Warn("unknown control method", telemetry.LabelCommID.L(c.ID()), telemetry.LabelMethod.L(env.Method))
		return
	}

	states := make(map[string]json.RawMessage)
	paths := [][]any{}
	var buffers [][]byte
	for _, w := range mgr.Widgets() {
		m := w.WidgetModel()
		state, err := m.FullState()
		if err == nil {
			var encoded wire.Message
			encoded, err = wire.Encode(state.Raw().(map[string]any))
			if err == nil {
				id := m.ID()
				states[id] = encoded.State
				paths = append(paths, wire.Prefix(encoded.BufferPaths, id)...)
				buffers = append(buffers, encoded.Buffers...)
				continue
			}
		}
		mgr.report(m, "widget left out of bulk state", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), mgr.cfg.sendTimeout)
	defer cancel()
	reply := comm.JSON(map[string]any{
		"method":       methodUpdateStates,
		"states":       states,
		"buffer_paths": paths,
	}, buffers...)
	if err := c.Send(ctx, reply); err != nil {
		mgr.logger.Warn("failed to send bulk state", telemetry.LabelCommID.L(c.ID()), telemetry.LabelError.L(err))
		return
	}
	mgr.msink.IncrCounterWithLabels(MetricWidgetResyncCount, 1, mgr.labels())
}

// widgetHandler receives the traffic of the comm of a live model.
type widgetHandler struct {
	mgr   *Manager
	model *Model
}

func (h *widgetHandler) HandleMessage(c comm.Comm, msg comm.Message) {
	mgr, m := h.mgr, h.model

	var env widgetMessage
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		mgr.report(m, "malformed widget message", fmt.Errorf("%w: %w", ErrMalformedMsg, err))
		return
	}

	switch env.Method {
	case methodUpdate:
		patch, err := decodePatch(env.State, env.BufferPaths, msg.Buffers)
		if err != nil {
			mgr.report(m, "malformed update", err)
			return
		}
		mgr.msink.IncrCounterWithLabels(MetricWidgetUpdateInCount, 1, mgr.labels(telemetry.LabelModelName.M(m.spec.ModelName)))
		if err := m.applyPatchWithoutEcho(patch); err != nil {
			mgr.report(m, "update partially applied", err)
		}
		if mgr.cfg.echoUpdates {
			mgr.send(c, m, comm.JSON(widgetMessage{
				Method:      methodEchoUpdate,
				State:       env.State,
				BufferPaths: orEmpty(env.BufferPaths),
			}, msg.Buffers...))
		}
	case methodEchoUpdate:
		mgr.logger.Debug("ignoring echo_update", telemetry.LabelModelID.L(c.ID()))
	case methodRequestState:
		mgr.sendFullState(c, m)
	case methodCustom:
		var content map[string]any
		if len(env.Content) > 0 {
			if err := json.Unmarshal(env.Content, &content); err != nil {
				mgr.report(m, "malformed custom content", fmt.Errorf("%w: %w", ErrMalformedMsg, err))
				return
			}
		}
		mgr.msink.IncrCounterWithLabels(MetricWidgetCustomInCount, 1, mgr.labels(telemetry.LabelModelName.M(m.spec.ModelName)))
		m.dispatchCustom(content, msg.Buffers)
	default:
		mgr.logger.Warn(
			"unknown widget method",
			telemetry.LabelModelID.L(c.ID()),
			telemetry.LabelMethod.L(env.Method),
		)
	}
}

func (h *widgetHandler) HandleClose(c comm.Comm, _ comm.Message) {
	h.mgr.untrack(c.ID(), h.model)
	h.mgr.msink.IncrCounterWithLabels(MetricWidgetClosedCount, 1, h.mgr.labels(telemetry.LabelModelName.M(h.model.spec.ModelName)))
	h.mgr.logger.Debug("widget closed by frontend", telemetry.LabelModelID.L(c.ID()))
}

// stateMessage builds a message carrying an encoded patch. An empty method
// is left out, as in comm open payloads.
func stateMessage(method string, msg wire.Message) comm.Message {
	return comm.JSON(widgetMessage{
		Method:      method,
		State:       msg.State,
		BufferPaths: orEmpty(msg.BufferPaths),
	}, msg.Buffers...)
}

func orEmpty(paths [][]any) [][]any {
	if paths == nil {
		return [][]any{}
	}
	return paths
}

func decodePatch(state json.RawMessage, rawPaths [][]any, buffers [][]byte) (value.Map, error) {
	paths, err := wire.DecodePaths(rawPaths)
	if err != nil {
		return nil, err
	}
	tree, err := wire.Decode(wire.Message{State: state, BufferPaths: paths, Buffers: buffers})
	if err != nil {
		return nil, err
	}
	v, err := value.From(tree)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMsg, err)
	}
	return v.(value.Map), nil
}
