package comm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-metrics"

	"github.com/raskyld/ipywire/pkg/telemetry"
)

// Transport carries frames to the remote endpoint. Inbound frames are
// handed over to the local endpoint with `Endpoint.Deliver`.
type Transport interface {
	WriteFrame(ctx context.Context, f Frame) error
	Close() error
}

// Endpoint is one side of a comm session. It implements `Manager`.
type Endpoint struct {
	cfg    *config
	logger *slog.Logger
	msink  metrics.MetricSink
	tr     Transport

	lk      sync.Mutex
	closed  bool
	targets map[string]OpenFunc
	comms   map[string]*commHandle

	inbox   chan Frame
	closeCh chan struct{}
	writers sync.WaitGroup

	dispatched chan struct{}
	done       chan struct{}
}

// NewEndpoint starts an endpoint writing its frames to tr. The caller is
// responsible for feeding inbound frames with `Deliver`.
func NewEndpoint(tr Transport, opts ...Option) (*Endpoint, error) {
	if tr == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidCfg)
	}

	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	ep := &Endpoint{
		cfg:        cfg,
		logger:     telemetry.Logger(cfg.logHandler),
		msink:      telemetry.Sink(cfg.msink),
		tr:         tr,
		targets:    make(map[string]OpenFunc),
		comms:      make(map[string]*commHandle),
		inbox:      make(chan Frame, cfg.inboxSize),
		closeCh:    make(chan struct{}),
		dispatched: make(chan struct{}),
		done:       make(chan struct{}),
	}
	for target, fn := range cfg.targets {
		ep.targets[target] = fn
	}

	go ep.dispatch()
	return ep, nil
}

// Logger used by the endpoint, transports log through it too.
func (ep *Endpoint) Logger() *slog.Logger {
	return ep.logger
}

// MaxFrameSize configured with `WithMaxFrameSize`.
func (ep *Endpoint) MaxFrameSize() int {
	return ep.cfg.maxFrameSize
}

// Done is closed once the endpoint is fully closed.
func (ep *Endpoint) Done() <-chan struct{} {
	return ep.done
}

func (ep *Endpoint) RegisterTarget(target string, fn OpenFunc) error {
	if target == "" || fn == nil {
		return ErrTargetInvalid
	}

	ep.lk.Lock()
	defer ep.lk.Unlock()
	if _, exists := ep.targets[target]; exists {
		return fmt.Errorf("%w: %s", ErrTargetConflict, target)
	}
	ep.targets[target] = fn
	return nil
}

func (ep *Endpoint) UnregisterTarget(target string) {
	ep.lk.Lock()
	defer ep.lk.Unlock()
	delete(ep.targets, target)
}

// Open a comm on target. h starts receiving messages as soon as the
// remote side answers.
func (ep *Endpoint) Open(ctx context.Context, target string, open Message, h Handler) (Comm, error) {
	if target == "" {
		return nil, ErrTargetInvalid
	}
	if h == nil {
		h = HandlerFuncs{}
	}

	c := &commHandle{
		ep:      ep,
		id:      uuid.NewString(),
		target:  target,
		handler: h,
	}

	ep.lk.Lock()
	if ep.closed {
		ep.lk.Unlock()
		return nil, ErrEndpointClosed
	}
	ep.comms[c.id] = c
	ep.lk.Unlock()

	err := ep.write(ctx, Frame{
		Type:       FrameOpen,
		CommID:     c.id,
		TargetName: target,
		Data:       open.Data,
		Metadata:   open.Metadata,
		Buffers:    open.Buffers,
	})
	if err != nil {
		ep.forget(c.id)
		return nil, err
	}

	ep.msink.IncrCounterWithLabels(MetricCommOpenCount, 1, ep.labels(telemetry.LabelTarget.M(target)))
	return c, nil
}

// Deliver an inbound frame. It blocks when the inbox is full.
func (ep *Endpoint) Deliver(ctx context.Context, f Frame) error {
	ep.lk.Lock()
	if ep.closed {
		ep.lk.Unlock()
		return ErrEndpointClosed
	}
	ep.writers.Add(1)
	defer ep.writers.Done()
	ep.lk.Unlock()

	select {
	case ep.inbox <- f:
		return nil
	case <-ep.closeCh:
		return ErrEndpointClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close the endpoint and its transport. Every comm still open is
// notified with `Handler.HandleClose`. Subsequent calls return right away,
// use `Done` to wait for completion.
//
// Close MUST NOT be called from a `Handler`.
func (ep *Endpoint) Close() error {
	ep.lk.Lock()
	if ep.closed {
		ep.lk.Unlock()
		return nil
	}
	ep.closed = true
	close(ep.closeCh)
	ep.lk.Unlock()

	ep.writers.Wait()
	<-ep.dispatched

	err := ep.tr.Close()

	ep.lk.Lock()
	orphans := make([]*commHandle, 0, len(ep.comms))
	for _, c := range ep.comms {
		orphans = append(orphans, c)
	}
	clear(ep.comms)
	ep.lk.Unlock()

	for _, c := range orphans {
		c.markClosed()
		ep.safely(c, "close", func(h Handler) { h.HandleClose(c, Message{}) })
	}

	close(ep.done)
	return err
}

func (ep *Endpoint) dispatch() {
	defer close(ep.dispatched)
	for {
		select {
		case f := <-ep.inbox:
			ep.handle(f)
		case <-ep.closeCh:
			return
		}
	}
}

func (ep *Endpoint) handle(f Frame) {
	ep.msink.IncrCounterWithLabels(MetricCommFrameInCount, 1, ep.labels(telemetry.LabelFrameType.M(string(f.Type))))
	ep.msink.AddSampleWithLabels(MetricCommFrameBytes, float32(f.size()), ep.labels(telemetry.LabelFrameType.M(string(f.Type))))

	switch f.Type {
	case FrameOpen:
		ep.handleOpen(f)
	case FrameMsg:
		ep.lk.Lock()
		c := ep.comms[f.CommID]
		ep.lk.Unlock()

		if c == nil {
			ep.drop(f, "message for unknown comm")
			return
		}
		ep.safely(c, "message", func(h Handler) { h.HandleMessage(c, f.message()) })
	case FrameClose:
		ep.lk.Lock()
		c := ep.comms[f.CommID]
		delete(ep.comms, f.CommID)
		ep.lk.Unlock()

		if c == nil {
			ep.drop(f, "close for unknown comm")
			return
		}
		c.markClosed()
		ep.safely(c, "close", func(h Handler) { h.HandleClose(c, f.message()) })
	case FrameHello:
		ep.logger.Debug("ignoring late hello frame")
	default:
		ep.drop(f, "unknown frame type")
	}
}

func (ep *Endpoint) handleOpen(f Frame) {
	if f.CommID == "" {
		ep.drop(f, "comm open without id")
		return
	}

	ep.lk.Lock()
	fn := ep.targets[f.TargetName]
	_, duplicate := ep.comms[f.CommID]
	var c *commHandle
	if fn != nil && !duplicate {
		c = &commHandle{ep: ep, id: f.CommID, target: f.TargetName}
		ep.comms[c.id] = c
	}
	ep.lk.Unlock()

	if duplicate {
		ep.drop(f, "comm id already in use")
		return
	}

	if fn == nil {
		ep.logger.Warn(
			"rejecting comm opened on unknown target",
			telemetry.LabelCommID.L(f.CommID),
			telemetry.LabelTarget.L(f.TargetName),
		)
		ep.reject(f)
		return
	}

	var (
		h   Handler
		err error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("open function panicked: %v", r)
			}
		}()
		h, err = fn(c, f.message())
	}()

	if err == nil && h == nil {
		h = HandlerFuncs{}
	}

	if err != nil {
		ep.forget(c.id)
		c.markClosed()
		ep.logger.Warn(
			"comm rejected by target",
			telemetry.LabelCommID.L(f.CommID),
			telemetry.LabelTarget.L(f.TargetName),
			telemetry.LabelError.L(err),
		)
		ep.reject(f)
		return
	}

	ep.lk.Lock()
	c.handler = h
	ep.lk.Unlock()
}

func (ep *Endpoint) reject(f Frame) {
	ep.msink.IncrCounterWithLabels(MetricCommRejectedCount, 1, ep.labels(telemetry.LabelTarget.M(f.TargetName)))
	err := ep.write(context.Background(), Frame{Type: FrameClose, CommID: f.CommID})
	if err != nil {
		ep.logger.Debug("failed to send comm close", telemetry.LabelCommID.L(f.CommID), telemetry.LabelError.L(err))
	}
}

func (ep *Endpoint) drop(f Frame, reason string) {
	ep.msink.IncrCounterWithLabels(MetricCommDroppedCount, 1, ep.labels(telemetry.LabelFrameType.M(string(f.Type))))
	ep.logger.Warn(
		"dropping inbound frame: "+reason,
		telemetry.LabelFrameType.L(f.Type),
		telemetry.LabelCommID.L(f.CommID),
	)
}

// safely runs fn with the handler of c, a panicking handler must not take
// the dispatcher down.
func (ep *Endpoint) safely(c *commHandle, what string, fn func(Handler)) {
	ep.lk.Lock()
	h := c.handler
	ep.lk.Unlock()
	if h == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			ep.msink.IncrCounterWithLabels(MetricCommHandlerPanicCount, 1, ep.labels(telemetry.LabelTarget.M(c.target)))
			ep.logger.Error(
				"comm handler panicked on "+what,
				telemetry.LabelCommID.L(c.id),
				telemetry.LabelTarget.L(c.target),
				telemetry.LabelError.L(r),
			)
		}
	}()
	fn(h)
}

func (ep *Endpoint) write(ctx context.Context, f Frame) error {
	ep.lk.Lock()
	closed := ep.closed
	ep.lk.Unlock()
	if closed {
		return ErrEndpointClosed
	}

	if err := ep.tr.WriteFrame(ctx, f); err != nil {
		ep.msink.IncrCounterWithLabels(MetricCommFrameOutErrCount, 1, ep.labels(telemetry.LabelFrameType.M(string(f.Type))))
		return err
	}
	ep.msink.IncrCounterWithLabels(MetricCommFrameOutCount, 1, ep.labels(telemetry.LabelFrameType.M(string(f.Type))))
	return nil
}

func (ep *Endpoint) forget(id string) {
	ep.lk.Lock()
	defer ep.lk.Unlock()
	delete(ep.comms, id)
}

func (ep *Endpoint) labels(extra ...metrics.Label) []metrics.Label {
	return telemetry.Labels(ep.cfg.metricLabels, extra...)
}

type commHandle struct {
	ep     *Endpoint
	id     string
	target string

	// handler is guarded by the endpoint lock.
	handler Handler

	lk     sync.Mutex
	closed bool
}

func (c *commHandle) ID() string {
	return c.id
}

func (c *commHandle) Target() string {
	return c.target
}

func (c *commHandle) Send(ctx context.Context, msg Message) error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.ep.write(ctx, Frame{
		Type:     FrameMsg,
		CommID:   c.id,
		Data:     msg.Data,
		Metadata: msg.Metadata,
		Buffers:  msg.Buffers,
	})
}

func (c *commHandle) Close(ctx context.Context, msg Message) error {
	c.lk.Lock()
	if c.closed {
		c.lk.Unlock()
		return nil
	}
	c.closed = true
	c.lk.Unlock()

	c.ep.forget(c.id)
	return c.ep.write(ctx, Frame{
		Type:     FrameClose,
		CommID:   c.id,
		Data:     msg.Data,
		Metadata: msg.Metadata,
		Buffers:  msg.Buffers,
	})
}

func (c *commHandle) isClosed() bool {
	c.lk.Lock()
	defer c.lk.Unlock()
	return c.closed
}

func (c *commHandle) markClosed() {
	c.lk.Lock()
	defer c.lk.Unlock()
	c.closed = true
}

func (ep *Endpoint) isClosed() bool {
	ep.lk.Lock()
	defer ep.lk.Unlock()
	return ep.closed
}
