package ipywire

import "errors"

var (
	ErrInvalidCfg = errors.New("ipywire: invalid options")

	ErrNotRegistered  = errors.New("ipywire: widget is not registered")
	ErrForeignWidget  = errors.New("ipywire: widget belongs to another manager")
	ErrUnknownWidget  = errors.New("ipywire: no live widget has this id")
	ErrNotWidget      = errors.New("ipywire: value is not a widget")
	ErrReferenceCycle = errors.New("ipywire: unregistered widgets reference each other")
	ErrMalformedMsg   = errors.New("ipywire: malformed widget message")
	ErrManagerClosed  = errors.New("ipywire: manager is shut down")
	ErrUnknownModel   = errors.New("ipywire: no factory for model name")
	ErrInvalidFactory = errors.New("ipywire: factories need a name and a function")
	ErrFactoryExists  = errors.New("ipywire: factory already registered")
)
