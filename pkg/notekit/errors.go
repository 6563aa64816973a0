package notekit

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCfg  = errors.New("notekit: invalid options")
	ErrTimeout     = errors.New("notekit: request timed out")
	ErrProtocol    = errors.New("notekit: protocol violation")
	ErrCommClosed  = errors.New("notekit: comm closed before the response")
	ErrClosed      = errors.New("notekit: manipulator is closed")
	ErrInvalidCell = errors.New("notekit: invalid cell")
)

// CodeTimeout is the code of the `*Error` returned when no response came
// in time.
const CodeTimeout = "TIMEOUT"

// Error is a failed request, either reported by the frontend through an
// error envelope or raised locally on timeout.
type Error struct {
	Method  string
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("notekit: %s failed: %s", e.Method, e.Message)
	}
	return fmt.Sprintf("notekit: %s failed: %s (code %s)", e.Method, e.Message, e.Code)
}

// Is makes timeouts match `ErrTimeout`.
func (e *Error) Is(target error) bool {
	return target == ErrTimeout && e.Code == CodeTimeout
}
