// Package controls provides the widgets of `@jupyter-widgets/controls`
// and their supporting `@jupyter-widgets/base` models.
//
// Widgets are built with a `*ipywire.Manager` and registered lazily: the
// first time they are displayed, or referenced by a registered widget.
// `Provider` makes every widget of this package constructible by the
// frontend.
package controls

import (
	"errors"

	"github.com/raskyld/ipywire"
	"github.com/raskyld/ipywire/pkg/proptype"
)

// Provider registers the factories of every widget of this package.
func Provider() ipywire.Provider {
	return func(reg *ipywire.Registry) error {
		return errors.Join(
			reg.Register(layoutSpec.ModelName, factory(newLayout)),
			reg.Register(descriptionStyleSpec.ModelName, factory(newDescriptionStyle)),
			reg.Register(sliderStyleSpec.ModelName, factory(newSliderStyle)),
			reg.Register(buttonStyleSpec.ModelName, factory(newButtonStyle)),
			reg.Register(intSliderSpec.ModelName, factory(newIntSlider)),
			reg.Register(floatSliderSpec.ModelName, factory(newFloatSlider)),
			reg.Register(textSpec.ModelName, factory(newText)),
			reg.Register(checkboxSpec.ModelName, factory(newCheckbox)),
			reg.Register(buttonSpec.ModelName, factory(newButton)),
			reg.Register(imageSpec.ModelName, factory(newImage)),
			reg.Register(boxSpec.ModelName, factory(newBoxOf(boxSpec))),
			reg.Register(hboxSpec.ModelName, factory(newBoxOf(hboxSpec))),
			reg.Register(vboxSpec.ModelName, factory(newBoxOf(vboxSpec))),
			reg.Register(dropdownSpec.ModelName, factory(newDropdown)),
			reg.Register(datePickerSpec.ModelName, factory(newDatePicker)),
		)
	}
}

// Registry returns a registry loaded with `Provider`.
func Registry() *ipywire.Registry {
	return ipywire.NewRegistry(Provider())
}

func factory[W ipywire.Widget](build func(mgr *ipywire.Manager, fromFrontend bool) W) ipywire.Factory {
	return func(mgr *ipywire.Manager, fromFrontend bool) (ipywire.Widget, error) {
		return build(mgr, fromFrontend), nil
	}
}

// DOMWidget holds the properties shared by every widget with a view.
type DOMWidget struct {
	*ipywire.Model

	Layout     *ipywire.Property[*Layout]
	DOMClasses *ipywire.Property[[]string]
	Tabbable   *ipywire.Property[*bool]
	Tooltip    *ipywire.Property[*string]
}

// newDOMWidget creates the model of spec. Widgets created by the frontend
// get their layout from the open state, so none is built for them.
func newDOMWidget(mgr *ipywire.Manager, spec ipywire.WidgetSpec, fromFrontend bool) DOMWidget {
	m := ipywire.NewModel(mgr, spec)

	var layout *Layout
	if !fromFrontend {
		layout = NewLayout(mgr)
	}

	return DOMWidget{
		Model:      m,
		Layout:     ipywire.Attach(m, "layout", proptype.Reference[*Layout]("Layout"), layout),
		DOMClasses: ipywire.AttachDefault(m, "_dom_classes", proptype.Array(proptype.String)),
		Tabbable:   ipywire.AttachDefault(m, "tabbable", proptype.Nullable(proptype.Bool)),
		Tooltip:    ipywire.AttachDefault(m, "tooltip", proptype.Nullable(proptype.String)),
	}
}

// DescriptionWidget is a `DOMWidget` with a label.
type DescriptionWidget struct {
	DOMWidget

	Description          *ipywire.Property[string]
	DescriptionAllowHTML *ipywire.Property[bool]
}

func newDescriptionWidget(mgr *ipywire.Manager, spec ipywire.WidgetSpec, fromFrontend bool) DescriptionWidget {
	dom := newDOMWidget(mgr, spec, fromFrontend)
	return DescriptionWidget{
		DOMWidget:            dom,
		Description:          ipywire.AttachDefault(dom.Model, "description", proptype.String),
		DescriptionAllowHTML: ipywire.AttachDefault(dom.Model, "description_allow_html", proptype.Bool),
	}
}

// attachStyle declares the `style` reference of m, building the style
// unless the frontend created the widget.
func attachStyle[S comparable](m *ipywire.Model, name string, build func() S, fromFrontend bool) *ipywire.Property[S] {
	var style S
	if !fromFrontend {
		style = build()
	}
	return ipywire.Attach(m, "style", proptype.Reference[S](name), style)
}
