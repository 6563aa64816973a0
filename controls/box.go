package controls

import (
	"github.com/raskyld/ipywire"
	"github.com/raskyld/ipywire/pkg/proptype"
)

type BoxKind string

const (
	BoxDefault BoxKind = ""
	BoxSuccess BoxKind = "success"
	BoxInfo    BoxKind = "info"
	BoxWarning BoxKind = "warning"
	BoxDanger  BoxKind = "danger"
)

var (
	boxSpec  = ipywire.ControlSpec("BoxModel", "BoxView")
	hboxSpec = ipywire.ControlSpec("HBoxModel", "HBoxView")
	vboxSpec = ipywire.ControlSpec("VBoxModel", "VBoxView")

	boxKind  = proptype.Enum("box_style", BoxDefault, BoxSuccess, BoxInfo, BoxWarning, BoxDanger)
	children = proptype.Array(proptype.Reference[ipywire.Widget]("Widget"))
)

// Box lays out its children. Children are registered along with the box.
type Box struct {
	DOMWidget

	Children *ipywire.Property[[]ipywire.Widget]
	BoxStyle *ipywire.Property[BoxKind]
}

func NewBox(mgr *ipywire.Manager, items ...ipywire.Widget) *Box {
	return newBox(mgr, boxSpec, false, items)
}

// NewHBox lays out items horizontally.
func NewHBox(mgr *ipywire.Manager, items ...ipywire.Widget) *Box {
	return newBox(mgr, hboxSpec, false, items)
}

// NewVBox lays out items vertically.
func NewVBox(mgr *ipywire.Manager, items ...ipywire.Widget) *Box {
	return newBox(mgr, vboxSpec, false, items)
}

func newBoxOf(spec ipywire.WidgetSpec) func(*ipywire.Manager, bool) *Box {
	return func(mgr *ipywire.Manager, fromFrontend bool) *Box {
		return newBox(mgr, spec, fromFrontend, nil)
	}
}

func newBox(mgr *ipywire.Manager, spec ipywire.WidgetSpec, fromFrontend bool, items []ipywire.Widget) *Box {
	if items == nil {
		items = []ipywire.Widget{}
	}
	base := newDOMWidget(mgr, spec, fromFrontend)
	m := base.Model
	return &Box{
		DOMWidget: base,
		Children:  ipywire.Attach(m, "children", children, items),
		BoxStyle:  ipywire.AttachDefault(m, "box_style", boxKind),
	}
}

// Append adds items after the current children.
func (b *Box) Append(items ...ipywire.Widget) error {
	current := b.Children.Get()
	next := make([]ipywire.Widget, 0, len(current)+len(items))
	next = append(next, current...)
	return b.Children.Set(append(next, items...))
}
