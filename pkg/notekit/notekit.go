// Package notekit drives the notebook hosting a kernel: cells and
// metadata are read and edited through requests sent on a single comm,
// each correlated with its response by a request id.
//
// # How it works
//
// The comm is opened on the first request. Every request gets an id
// `req-<n>` and a pending entry, then waits for the response holding the
// same id, its context or the configured timeout, whichever comes first.
// Responses are matched by id only, so the frontend may answer in any
// order. A response arriving after its request gave up is dropped.
//
// Abandoned requests are not cancelled on the frontend side.
package notekit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-metrics"

	"github.com/raskyld/ipywire/pkg/comm"
	"github.com/raskyld/ipywire/pkg/telemetry"
)

const (
	statusOK    = "ok"
	statusError = "error"
)

// Manipulator sends notebook requests to the frontend.
type Manipulator struct {
	cfg    *config
	logger *slog.Logger
	msink  metrics.MetricSink
	comms  comm.Manager

	counter atomic.Uint64

	// openLk is only held while the comm is being opened.
	openLk sync.Mutex

	lk      sync.Mutex
	comm    comm.Comm
	pending map[string]*pendingRequest
	closed  bool
}

type pendingRequest struct {
	method string
	commID string
	result chan result
}

type result struct {
	value json.RawMessage
	err   error
}

type response struct {
	RequestID string          `json:"request_id"`
	Status    string          `json:"status"`
	Result    json.RawMessage `json:"result"`
	Error     *struct {
		Message string          `json:"message"`
		Code    json.RawMessage `json:"code"`
	} `json:"error"`
}

func NewManipulator(comms comm.Manager, opts ...Option) (*Manipulator, error) {
	if comms == nil {
		return nil, fmt.Errorf("%w: nil comm manager", ErrInvalidCfg)
	}
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	return &Manipulator{
		cfg:     cfg,
		logger:  telemetry.Logger(cfg.logHandler).With(telemetry.LabelTarget.L(cfg.target)),
		msink:   telemetry.Sink(cfg.msink),
		comms:   comms,
		pending: make(map[string]*pendingRequest),
	}, nil
}

// Call sends method with params and waits for its result.
//
// params are merged at the top level of the request, `method` and
// `request_id` cannot be overridden.
func (m *Manipulator) Call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	c, err := m.ensureComm(ctx)
	if err != nil {
		return nil, err
	}

	id := "req-" + strconv.FormatUint(m.counter.Add(1), 10)
	req := &pendingRequest{
		method: method,
		commID: c.ID(),
		result: make(chan result, 1),
	}

	m.lk.Lock()
	m.pending[id] = req
	m.lk.Unlock()

	payload := make(map[string]any, len(params)+2)
	for k, v := range params {
		payload[k] = v
	}
	payload["method"] = method
	payload["request_id"] = id

	msg, err := json.Marshal(payload)
	if err != nil {
		m.forget(id)
		return nil, fmt.Errorf("notekit: cannot marshal %s request: %w", method, err)
	}

	labels := m.labels(telemetry.LabelMethod.M(method))
	m.msink.IncrCounterWithLabels(MetricRequestCount, 1, labels)
	start := time.Now()

	// The timeout covers the send too.
	sendCtx, cancel := context.WithDeadline(ctx, start.Add(m.cfg.timeout))
	defer cancel()

	if err := c.Send(sendCtx, comm.Message{Data: msg}); err != nil {
		m.forget(id)
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, m.timedOut(id, method, labels)
		}
		m.msink.IncrCounterWithLabels(MetricRequestErrorCount, 1, labels)
		return nil, fmt.Errorf("notekit: cannot send %s request: %w", method, err)
	}

	select {
	case res := <-req.result:
		m.msink.AddSampleWithLabels(MetricRequestLatency, float32(time.Since(start).Seconds()*1000), labels)
		if res.err != nil {
			m.msink.IncrCounterWithLabels(MetricRequestErrorCount, 1, labels)
		}
		return res.value, res.err
	case <-sendCtx.Done():
		m.forget(id)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, m.timedOut(id, method, labels)
	}
}

func (m *Manipulator) timedOut(id, method string, labels []metrics.Label) error {
	m.msink.IncrCounterWithLabels(MetricRequestTimeoutCount, 1, labels)
	m.logger.Warn(
		"request timed out",
		telemetry.LabelRequestID.L(id),
		telemetry.LabelMethod.L(method),
		telemetry.LabelDuration.L(m.cfg.timeout),
	)
	return &Error{
		Method:  method,
		Code:    CodeTimeout,
		Message: "no response after " + m.cfg.timeout.String(),
	}
}

// Close closes the comm and fails every pending request. The manipulator
// cannot be used afterward.
func (m *Manipulator) Close(ctx context.Context) error {
	m.openLk.Lock()
	defer m.openLk.Unlock()

	m.lk.Lock()
	if m.closed {
		m.lk.Unlock()
		return nil
	}
	m.closed = true
	c := m.comm
	m.comm = nil
	m.lk.Unlock()

	if c == nil {
		return nil
	}
	m.failPending(c.ID(), ErrClosed)
	return c.Close(ctx, comm.Message{})
}

// ensureComm returns the comm, opening it on first use.
func (m *Manipulator) ensureComm(ctx context.Context) (comm.Comm, error) {
	if c, err := m.current(); c != nil || err != nil {
		return c, err
	}

	m.openLk.Lock()
	defer m.openLk.Unlock()
	if c, err := m.current(); c != nil || err != nil {
		return c, err
	}

	c, err := m.comms.Open(ctx, m.cfg.target, comm.Message{}, &handler{m: m})
	if err != nil {
		return nil, fmt.Errorf("notekit: cannot open comm: %w", err)
	}

	m.lk.Lock()
	m.comm = c
	m.lk.Unlock()

	m.msink.IncrCounterWithLabels(MetricCommOpenCount, 1, m.labels())
	m.logger.Debug("comm opened", telemetry.LabelCommID.L(c.ID()))
	return c, nil
}

func (m *Manipulator) current() (comm.Comm, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.comm, nil
}

func (m *Manipulator) forget(id string) {
	m.lk.Lock()
	defer m.lk.Unlock()
	delete(m.pending, id)
}

// take removes and returns the pending request of id.
func (m *Manipulator) take(id string) *pendingRequest {
	m.lk.Lock()
	defer m.lk.Unlock()
	req, ok := m.pending[id]
	if !ok {
		return nil
	}
	delete(m.pending, id)
	return req
}

func (m *Manipulator) failPending(commID string, err error) {
	m.lk.Lock()
	var failed []*pendingRequest
	for id, req := range m.pending {
		if req.commID == commID {
			failed = append(failed, req)
			delete(m.pending, id)
		}
	}
	m.lk.Unlock()

	for _, req := range failed {
		req.result <- result{err: fmt.Errorf("%w: %s", err, req.method)}
	}
}

func (m *Manipulator) inflight() int {
	m.lk.Lock()
	defer m.lk.Unlock()
	return len(m.pending)
}

func (m *Manipulator) labels(extra ...metrics.Label) []metrics.Label {
	return telemetry.Labels(m.cfg.metricLabels, extra...)
}

// handler receives the responses of the frontend.
type handler struct {
	m *Manipulator
}

func (h *handler) HandleMessage(c comm.Comm, msg comm.Message) {
	m := h.m

	var resp response
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		m.logger.Warn("unparseable response", telemetry.LabelCommID.L(c.ID()), telemetry.LabelError.L(err))
		return
	}

	req := m.take(resp.RequestID)
	if req == nil {
		m.msink.IncrCounterWithLabels(MetricResponseDropCount, 1, m.labels())
		m.logger.Debug(
			"dropping response of unknown request",
			telemetry.LabelRequestID.L(resp.RequestID),
			telemetry.LabelStatus.L(resp.Status),
		)
		return
	}

	req.result <- decodeResult(req.method, resp)
}

func (h *handler) HandleClose(c comm.Comm, _ comm.Message) {
	m := h.m

	m.lk.Lock()
	if m.comm != nil && m.comm.ID() == c.ID() {
		m.comm = nil
	}
	m.lk.Unlock()

	m.failPending(c.ID(), ErrCommClosed)
	m.logger.Info("comm closed by the frontend", telemetry.LabelCommID.L(c.ID()))
}

func decodeResult(method string, resp response) result {
	switch resp.Status {
	case statusOK:
		if resp.Result == nil {
			return result{err: fmt.Errorf("%w: %s: ok response without result", ErrProtocol, method)}
		}
		return result{value: resp.Result}
	case statusError:
		e := &Error{Method: method}
		if resp.Error != nil {
			e.Message = resp.Error.Message
			e.Code = codeString(resp.Error.Code)
		}
		return result{err: e}
	default:
		return result{err: fmt.Errorf("%w: %s: unknown status %q", ErrProtocol, method, resp.Status)}
	}
}

// codeString accepts both string and numeric codes.
func codeString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
