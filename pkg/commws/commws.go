// Package commws carries comm sessions over WebSocket, one binary message
// per comm frame. It is how a browser-side bridge reaches a kernel.
package commws

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raskyld/ipywire/pkg/comm"
	"github.com/raskyld/ipywire/pkg/telemetry"
)

const closeGracePeriod = 1 * time.Second

// SessionFunc is called for every accepted session, before inbound frames
// are dispatched. Returning an error closes the session.
type SessionFunc func(r *http.Request, ep *comm.Endpoint) error

// Server upgrades HTTP requests to comm sessions. The zero `Upgrader`
// only accepts same-origin browsers.
type Server struct {
	Upgrader  websocket.Upgrader
	OnSession SessionFunc
	Options   []comm.Option
}

// Handler returns a `Server` with a default upgrader.
func Handler(onSession SessionFunc, opts ...comm.Option) *Server {
	return &Server{
		OnSession: onSession,
		Options:   opts,
	}
}

// ServeHTTP blocks until the session ends.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		return
	}

	tr := newTransport(conn)
	ep, err := comm.NewEndpoint(tr, s.Options...)
	if err != nil {
		_ = tr.Close()
		return
	}

	if s.OnSession != nil {
		if err := s.OnSession(r, ep); err != nil {
			ep.Logger().Warn(
				"websocket session rejected",
				telemetry.LabelPeerAddr.L(r.RemoteAddr),
				telemetry.LabelError.L(err),
			)
			_ = ep.Close()
			return
		}
	}

	if err := tr.serve(ep); err != nil {
		ep.Logger().Warn(
			"websocket session terminated",
			telemetry.LabelPeerAddr.L(r.RemoteAddr),
			telemetry.LabelError.L(err),
		)
	}
}

// Dial a comm session served by a `Server`.
func Dial(ctx context.Context, url string, opts ...comm.Option) (*comm.Endpoint, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("commws: failed to dial %s (%s): %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("commws: failed to dial %s: %w", url, err)
	}

	tr := newTransport(conn)
	ep, err := comm.NewEndpoint(tr, opts...)
	if err != nil {
		_ = tr.Close()
		return nil, err
	}

	go func() {
		if err := tr.serve(ep); err != nil {
			ep.Logger().Warn("websocket session terminated", telemetry.LabelError.L(err))
		}
	}()
	return ep, nil
}

type transport struct {
	conn *websocket.Conn

	// gorilla connections support one concurrent writer.
	wlk sync.Mutex
	buf []byte

	closeOnce sync.Once
	closing   chan struct{}
}

func newTransport(conn *websocket.Conn) *transport {
	return &transport{
		conn:    conn,
		closing: make(chan struct{}),
	}
}

func (t *transport) WriteFrame(ctx context.Context, f comm.Frame) error {
	t.wlk.Lock()
	defer t.wlk.Unlock()

	var err error
	t.buf, err = comm.AppendFrame(t.buf[:0], f)
	if err != nil {
		return err
	}

	deadline, _ := ctx.Deadline()
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.BinaryMessage, t.buf)
}

func (t *transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closing)
		_ = t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod),
		)
		err = t.conn.Close()
	})
	return err
}

func (t *transport) serve(ep *comm.Endpoint) error {
	defer ep.Close()

	maxSize := ep.MaxFrameSize()
	// Varint prefixes are not accounted in the frame size.
	t.conn.SetReadLimit(2 * int64(maxSize))

	for {
		typ, data, err := t.conn.ReadMessage()
		if err != nil {
			select {
			case <-t.closing:
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		if typ != websocket.BinaryMessage {
			return fmt.Errorf("%w: unexpected websocket message type %d", comm.ErrProtocolViolation, typ)
		}

		f, err := comm.ReadFrame(bufio.NewReader(bytes.NewReader(data)), maxSize)
		if err != nil {
			return err
		}

		if err := ep.Deliver(context.Background(), f); err != nil {
			if errors.Is(err, comm.ErrEndpointClosed) {
				return nil
			}
			return err
		}
	}
}
