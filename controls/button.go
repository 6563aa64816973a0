package controls

import (
	"slices"
	"sync"

	"github.com/raskyld/ipywire"
	"github.com/raskyld/ipywire/pkg/proptype"
)

type ButtonKind string

const (
	ButtonDefault ButtonKind = ""
	ButtonPrimary ButtonKind = "primary"
	ButtonSuccess ButtonKind = "success"
	ButtonInfo    ButtonKind = "info"
	ButtonWarning ButtonKind = "warning"
	ButtonDanger  ButtonKind = "danger"
)

var (
	buttonSpec = ipywire.ControlSpec("ButtonModel", "ButtonView")

	buttonKind = proptype.Enum("button_style",
		ButtonDefault, ButtonPrimary, ButtonSuccess, ButtonInfo, ButtonWarning, ButtonDanger,
	)
)

// Button notifies `OnClick` handlers every time it is clicked in the
// frontend.
type Button struct {
	DOMWidget

	Description *ipywire.Property[string]
	Icon        *ipywire.Property[string]
	ButtonStyle *ipywire.Property[ButtonKind]
	Disabled    *ipywire.Property[bool]
	Style       *ipywire.Property[*ButtonStyle]

	lk       sync.Mutex
	handlers []func(b *Button)
}

func NewButton(mgr *ipywire.Manager) *Button {
	return newButton(mgr, false)
}

func newButton(mgr *ipywire.Manager, fromFrontend bool) *Button {
	base := newDOMWidget(mgr, buttonSpec, fromFrontend)
	m := base.Model
	b := &Button{
		DOMWidget:   base,
		Description: ipywire.AttachDefault(m, "description", proptype.String),
		Icon:        ipywire.AttachDefault(m, "icon", proptype.String),
		ButtonStyle: ipywire.AttachDefault(m, "button_style", buttonKind),
		Disabled:    ipywire.AttachDefault(m, "disabled", proptype.Bool),
		Style:       attachStyle(m, "ButtonStyle", func() *ButtonStyle { return NewButtonStyle(mgr) }, fromFrontend),
	}
	m.OnCustom(b.handleCustom)
	return b
}

// OnClick registers fn. Handlers run on the dispatching goroutine of the
// comm endpoint, they must not wait for the frontend.
func (b *Button) OnClick(fn func(b *Button)) {
	b.lk.Lock()
	defer b.lk.Unlock()
	b.handlers = append(b.handlers, fn)
}

// Click runs the click handlers as if the button was clicked.
func (b *Button) Click() {
	b.lk.Lock()
	handlers := slices.Clone(b.handlers)
	b.lk.Unlock()

	for _, fn := range handlers {
		fn(b)
	}
}

func (b *Button) handleCustom(content map[string]any, _ [][]byte) {
	if content["event"] == "click" {
		b.Click()
	}
}
