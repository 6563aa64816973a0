package comm

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/raskyld/ipywire/pkg/telemetry"
)

type deadliner interface {
	SetWriteDeadline(t time.Time) error
}

// StreamTransport writes frames to a byte stream using the frame codec.
type StreamTransport struct {
	rwc io.ReadWriteCloser
	r   *bufio.Reader

	wlk sync.Mutex
	buf []byte

	closeOnce sync.Once
	closeErr  error
}

func NewStreamTransport(rwc io.ReadWriteCloser) *StreamTransport {
	return &StreamTransport{
		rwc: rwc,
		r:   bufio.NewReader(rwc),
	}
}

// ReadFrame reads the next frame from the stream. It is meant for
// handshakes happening before `ServeStream` takes over the read side.
func (st *StreamTransport) ReadFrame(maxSize int) (Frame, error) {
	return ReadFrame(st.r, maxSize)
}

func (st *StreamTransport) WriteFrame(ctx context.Context, f Frame) error {
	st.wlk.Lock()
	defer st.wlk.Unlock()

	var err error
	st.buf, err = AppendFrame(st.buf[:0], f)
	if err != nil {
		return err
	}

	if dl, ok := st.rwc.(deadliner); ok {
		deadline, _ := ctx.Deadline()
		if err := dl.SetWriteDeadline(deadline); err != nil {
			return err
		}
	}

	_, err = st.rwc.Write(st.buf)
	return err
}

func (st *StreamTransport) Close() error {
	st.closeOnce.Do(func() {
		st.closeErr = st.rwc.Close()
	})
	return st.closeErr
}

// ServeStream creates an endpoint over st and starts its read loop. The
// endpoint is closed when the stream fails or reaches EOF.
func ServeStream(st *StreamTransport, opts ...Option) (*Endpoint, error) {
	ep, err := NewEndpoint(st, opts...)
	if err != nil {
		return nil, err
	}

	go func() {
		if err := st.serve(ep); err != nil {
			ep.logger.Warn("comm stream terminated", telemetry.LabelError.L(err))
		}
	}()
	return ep, nil
}

// NewStreamEndpoint is a shortcut for `ServeStream(NewStreamTransport(rwc))`.
func NewStreamEndpoint(rwc io.ReadWriteCloser, opts ...Option) (*Endpoint, error) {
	return ServeStream(NewStreamTransport(rwc), opts...)
}

func (st *StreamTransport) serve(ep *Endpoint) error {
	defer ep.Close()

	for {
		f, err := ReadFrame(st.r, ep.cfg.maxFrameSize)
		if err != nil {
			if ep.isClosed() || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		if err := ep.Deliver(context.Background(), f); err != nil {
			return nil
		}
	}
}
