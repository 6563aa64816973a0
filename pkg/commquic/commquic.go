// Package commquic carries comm sessions over QUIC.
//
// A session is a single bidirectional stream: the dialer opens it and
// sends a hello frame, the listener answers with nothing but starts
// serving comm frames right after. Both ends must negotiate the `ALPN`
// protocol, so the listener can share a UDP port with other protocols.
package commquic

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"slices"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/raskyld/ipywire/pkg/comm"
)

const (
	ALPN = "ipywire/1"

	handshakeTimeout = 10 * time.Second
	helloMaxSize     = 1 << 12

	errCodeNone     quic.ApplicationErrorCode = 0
	errCodeProtocol quic.ApplicationErrorCode = 1
)

var ErrNoTLSConfig = errors.New("commquic: a TLS config is required")

func quicConfig() *quic.Config {
	return &quic.Config{
		Versions:              []quic.Version{quic.Version2, quic.Version1},
		MaxIncomingStreams:    1,
		MaxIncomingUniStreams: -1,
		MaxIdleTimeout:        1 * time.Minute,
		KeepAlivePeriod:       15 * time.Second,
	}
}

func withALPN(tlsConf *tls.Config) (*tls.Config, error) {
	if tlsConf == nil {
		return nil, ErrNoTLSConfig
	}
	tlsConf = tlsConf.Clone()
	if !slices.Contains(tlsConf.NextProtos, ALPN) {
		tlsConf.NextProtos = append(tlsConf.NextProtos, ALPN)
	}
	return tlsConf, nil
}

// Listener accepts comm sessions.
type Listener struct {
	ln   *quic.Listener
	opts []comm.Option
}

// Listen on the UDP address addr. The options are applied to every
// accepted endpoint.
func Listen(addr string, tlsConf *tls.Config, opts ...comm.Option) (*Listener, error) {
	tlsConf, err := withALPN(tlsConf)
	if err != nil {
		return nil, err
	}

	ln, err := quic.ListenAddr(addr, tlsConf, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("commquic: failed to allocate QUIC listener: %w", err)
	}
	return &Listener{ln: ln, opts: opts}, nil
}

func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

func (l *Listener) Close() error {
	return l.ln.Close()
}

// Accept the next session. A peer failing the handshake is disconnected
// and reported as an error wrapping `comm.ErrProtocolViolation`, the
// listener stays usable.
func (l *Listener) Accept(ctx context.Context) (*comm.Endpoint, error) {
	conn, err := l.ln.Accept(ctx)
	if err != nil {
		return nil, err
	}

	hsCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	stream, err := conn.AcceptStream(hsCtx)
	if err != nil {
		_ = conn.CloseWithError(errCodeProtocol, "no session stream")
		return nil, fmt.Errorf("%w: %w", comm.ErrProtocolViolation, err)
	}

	st := comm.NewStreamTransport(&session{Stream: stream, conn: conn})
	if err := stream.SetReadDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		_ = st.Close()
		return nil, err
	}

	hello, err := st.ReadFrame(helloMaxSize)
	if err == nil && hello.Type != comm.FrameHello {
		err = fmt.Errorf("expected %s frame, got %q", comm.FrameHello, hello.Type)
	}
	if err != nil {
		_ = conn.CloseWithError(errCodeProtocol, "handshake failed")
		return nil, fmt.Errorf("%w: %w", comm.ErrProtocolViolation, err)
	}

	if err := stream.SetReadDeadline(time.Time{}); err != nil {
		_ = st.Close()
		return nil, err
	}
	return comm.ServeStream(st, l.opts...)
}

// Dial a listener and open a session.
func Dial(ctx context.Context, addr string, tlsConf *tls.Config, opts ...comm.Option) (*comm.Endpoint, error) {
	tlsConf, err := withALPN(tlsConf)
	if err != nil {
		return nil, err
	}

	conn, err := quic.DialAddr(ctx, addr, tlsConf, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("commquic: failed to dial %s: %w", addr, err)
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(errCodeNone, "")
		return nil, fmt.Errorf("commquic: failed to open session stream: %w", err)
	}

	st := comm.NewStreamTransport(&session{Stream: stream, conn: conn})
	hello := comm.Frame{
		Type: comm.FrameHello,
		Data: comm.JSON(map[string]string{"protocol": ALPN}).Data,
	}
	if err := st.WriteFrame(ctx, hello); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("commquic: failed to send hello: %w", err)
	}
	return comm.ServeStream(st, opts...)
}

// session closes the QUIC connection along with its only stream.
type session struct {
	quic.Stream
	conn quic.Connection
}

func (s *session) Close() error {
	s.Stream.CancelRead(quic.StreamErrorCode(errCodeNone))
	err := s.Stream.Close()
	_ = s.conn.CloseWithError(errCodeNone, "session closed")
	return err
}
