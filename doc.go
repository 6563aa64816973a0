// Package ipywire implements the kernel side of the Jupyter widget
// protocol: typed widget models whose state is kept in sync with a
// frontend over comms.
//
// ## How it works
//
// A widget is a `Model` holding an ordered set of typed `Property` values,
// declared with `Attach`. Every model starts with the six properties of its
// `WidgetSpec`, which tell the frontend which JavaScript model and view
// classes to instantiate.
//
// A `Manager` makes a model *live*: `Manager.Register` opens a comm on the
// `jupyter.widget` target carrying the full state of the model, and from
// then on:
//
// * local writes (`Property.Set`, `Model.ApplyPatch`) are sent to the
// frontend as `update` messages,
// * inbound `update` messages are applied to the model without being sent
// back,
// * `request_state` is answered with the full state,
// * `custom` messages reach the handlers registered with `Model.OnCustom`.
//
// The frontend can create widgets too: a comm opened on `jupyter.widget`
// is turned into a model through the `Registry` of factories, keyed by
// `_model_name`. The `jupyter.widget.control` target serves bulk state
// resynchronisation after a frontend reconnects.
//
// Binary values never travel inside JSON. They are stripped into the
// buffers of the comm message and put back by path, see package `wire`.
//
// ## Design Principles
//
// Managers are passed explicitly to every widget constructor: there is no
// process-wide manager. The comm substrate is an interface (`comm.Manager`)
// so a model can be tested against an in-memory `comm.Pipe` and served
// over QUIC or WebSocket without any change.
package ipywire
