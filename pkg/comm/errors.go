package comm

import "errors"

var (
	ErrInvalidCfg        = errors.New("comm: invalid options")
	ErrClosed            = errors.New("comm: comm is closed")
	ErrEndpointClosed    = errors.New("comm: endpoint is closed")
	ErrTargetInvalid     = errors.New("comm: target names must be non-empty")
	ErrTargetConflict    = errors.New("comm: target already registered")
	ErrProtocolViolation = errors.New("comm: protocol violation")
	ErrTooLargeFrame     = errors.New("comm: frame is too large")
)
