package controls

import (
	"github.com/raskyld/ipywire"
	"github.com/raskyld/ipywire/pkg/proptype"
)

var (
	layoutSpec = ipywire.BaseSpec("LayoutModel", "LayoutView")

	descriptionStyleSpec = styleSpec("DescriptionStyleModel")
	sliderStyleSpec      = styleSpec("SliderStyleModel")
	buttonStyleSpec      = styleSpec("ButtonStyleModel")
)

// styleSpec returns the spec of a style model: they live in the controls
// module but are rendered by the base `StyleView`.
func styleSpec(modelName string) ipywire.WidgetSpec {
	spec := ipywire.ControlSpec(modelName, "StyleView")
	spec.ViewModule = ipywire.BaseModule
	return spec
}

// Layout controls the CSS box of a widget. Nil properties are left to the
// frontend defaults.
type Layout struct {
	*ipywire.Model

	Width          *ipywire.Property[*string]
	Height         *ipywire.Property[*string]
	MinWidth       *ipywire.Property[*string]
	MaxWidth       *ipywire.Property[*string]
	MinHeight      *ipywire.Property[*string]
	MaxHeight      *ipywire.Property[*string]
	Margin         *ipywire.Property[*string]
	Padding        *ipywire.Property[*string]
	Border         *ipywire.Property[*string]
	Display        *ipywire.Property[*string]
	Flex           *ipywire.Property[*string]
	FlexFlow       *ipywire.Property[*string]
	AlignItems     *ipywire.Property[*string]
	JustifyContent *ipywire.Property[*string]
	Overflow       *ipywire.Property[*string]
	Visibility     *ipywire.Property[*string]
	GridArea       *ipywire.Property[*string]
}

func NewLayout(mgr *ipywire.Manager) *Layout {
	return newLayout(mgr, false)
}

func newLayout(mgr *ipywire.Manager, _ bool) *Layout {
	m := ipywire.NewModel(mgr, layoutSpec)
	css := func(name string) *ipywire.Property[*string] {
		return ipywire.AttachDefault(m, name, proptype.Nullable(proptype.String))
	}

	return &Layout{
		Model:          m,
		Width:          css("width"),
		Height:         css("height"),
		MinWidth:       css("min_width"),
		MaxWidth:       css("max_width"),
		MinHeight:      css("min_height"),
		MaxHeight:      css("max_height"),
		Margin:         css("margin"),
		Padding:        css("padding"),
		Border:         css("border"),
		Display:        css("display"),
		Flex:           css("flex"),
		FlexFlow:       css("flex_flow"),
		AlignItems:     css("align_items"),
		JustifyContent: css("justify_content"),
		Overflow:       css("overflow"),
		Visibility:     css("visibility"),
		GridArea:       css("grid_area"),
	}
}

// CSS is a helper turning a literal into a value for `Layout` properties.
func CSS(v string) *string {
	return &v
}

type DescriptionStyle struct {
	*ipywire.Model

	DescriptionWidth *ipywire.Property[string]
}

func NewDescriptionStyle(mgr *ipywire.Manager) *DescriptionStyle {
	return newDescriptionStyle(mgr, false)
}

func newDescriptionStyle(mgr *ipywire.Manager, _ bool) *DescriptionStyle {
	m := ipywire.NewModel(mgr, descriptionStyleSpec)
	return &DescriptionStyle{
		Model:            m,
		DescriptionWidth: ipywire.AttachDefault(m, "description_width", proptype.String),
	}
}

type SliderStyle struct {
	*ipywire.Model

	DescriptionWidth *ipywire.Property[string]
	HandleColor      *ipywire.Property[*string]
}

func NewSliderStyle(mgr *ipywire.Manager) *SliderStyle {
	return newSliderStyle(mgr, false)
}

func newSliderStyle(mgr *ipywire.Manager, _ bool) *SliderStyle {
	m := ipywire.NewModel(mgr, sliderStyleSpec)
	return &SliderStyle{
		Model:            m,
		DescriptionWidth: ipywire.AttachDefault(m, "description_width", proptype.String),
		HandleColor:      ipywire.AttachDefault(m, "handle_color", proptype.Nullable(proptype.String)),
	}
}

type ButtonStyle struct {
	*ipywire.Model

	ButtonColor *ipywire.Property[*string]
	FontWeight  *ipywire.Property[string]
}

func NewButtonStyle(mgr *ipywire.Manager) *ButtonStyle {
	return newButtonStyle(mgr, false)
}

func newButtonStyle(mgr *ipywire.Manager, _ bool) *ButtonStyle {
	m := ipywire.NewModel(mgr, buttonStyleSpec)
	return &ButtonStyle{
		Model:       m,
		ButtonColor: ipywire.AttachDefault(m, "button_color", proptype.Nullable(proptype.String)),
		FontWeight:  ipywire.AttachDefault(m, "font_weight", proptype.String),
	}
}
