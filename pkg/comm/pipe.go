package comm

import (
	"context"
	"sync"
)

type pipeTransport struct {
	lk   sync.Mutex
	peer *Endpoint
}

func (p *pipeTransport) WriteFrame(ctx context.Context, f Frame) error {
	p.lk.Lock()
	peer := p.peer
	p.lk.Unlock()
	if peer == nil {
		return ErrEndpointClosed
	}
	return peer.Deliver(ctx, f.clone())
}

func (p *pipeTransport) Close() error {
	p.lk.Lock()
	peer := p.peer
	p.peer = nil
	p.lk.Unlock()
	if peer == nil {
		return nil
	}
	return peer.Close()
}

// Pipe returns two endpoints connected in memory, what one sends the
// other receives. Buffers are copied on the way. Closing one side closes
// the other.
func Pipe(opts ...Option) (*Endpoint, *Endpoint, error) {
	ta, tb := &pipeTransport{}, &pipeTransport{}

	a, err := NewEndpoint(ta, opts...)
	if err != nil {
		return nil, nil, err
	}
	b, err := NewEndpoint(tb, opts...)
	if err != nil {
		a.Close()
		return nil, nil, err
	}

	ta.peer = b
	tb.peer = a
	return a, b, nil
}
