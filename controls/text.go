package controls

import (
	"github.com/raskyld/ipywire"
	"github.com/raskyld/ipywire/pkg/proptype"
)

var (
	textSpec     = ipywire.ControlSpec("TextModel", "TextView")
	checkboxSpec = ipywire.ControlSpec("CheckboxModel", "CheckboxView")
)

type Text struct {
	DescriptionWidget

	Value            *ipywire.Property[string]
	Placeholder      *ipywire.Property[string]
	ContinuousUpdate *ipywire.Property[bool]
	Disabled         *ipywire.Property[bool]
	Style            *ipywire.Property[*DescriptionStyle]
}

func NewText(mgr *ipywire.Manager) *Text {
	return newText(mgr, false)
}

func newText(mgr *ipywire.Manager, fromFrontend bool) *Text {
	base := newDescriptionWidget(mgr, textSpec, fromFrontend)
	m := base.Model
	return &Text{
		DescriptionWidget: base,
		Value:             ipywire.AttachDefault(m, "value", proptype.String),
		Placeholder:       ipywire.Attach(m, "placeholder", proptype.String, "\u200b"),
		ContinuousUpdate:  ipywire.Attach(m, "continuous_update", proptype.Bool, true),
		Disabled:          ipywire.AttachDefault(m, "disabled", proptype.Bool),
		Style:             attachStyle(m, "DescriptionStyle", func() *DescriptionStyle { return NewDescriptionStyle(mgr) }, fromFrontend),
	}
}

type Checkbox struct {
	DescriptionWidget

	Value    *ipywire.Property[bool]
	Indent   *ipywire.Property[bool]
	Disabled *ipywire.Property[bool]
	Style    *ipywire.Property[*DescriptionStyle]
}

func NewCheckbox(mgr *ipywire.Manager) *Checkbox {
	return newCheckbox(mgr, false)
}

func newCheckbox(mgr *ipywire.Manager, fromFrontend bool) *Checkbox {
	base := newDescriptionWidget(mgr, checkboxSpec, fromFrontend)
	m := base.Model
	return &Checkbox{
		DescriptionWidget: base,
		Value:             ipywire.AttachDefault(m, "value", proptype.Bool),
		Indent:            ipywire.Attach(m, "indent", proptype.Bool, true),
		Disabled:          ipywire.AttachDefault(m, "disabled", proptype.Bool),
		Style:             attachStyle(m, "DescriptionStyle", func() *DescriptionStyle { return NewDescriptionStyle(mgr) }, fromFrontend),
	}
}
