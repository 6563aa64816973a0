package controls

import (
	"fmt"

	"github.com/raskyld/ipywire"
	"github.com/raskyld/ipywire/pkg/proptype"
)

type Orientation string

const (
	Horizontal Orientation = "horizontal"
	Vertical   Orientation = "vertical"
)

var (
	intSliderSpec   = ipywire.ControlSpec("IntSliderModel", "IntSliderView")
	floatSliderSpec = ipywire.ControlSpec("FloatSliderModel", "FloatSliderView")

	orientation = proptype.Enum("orientation", Horizontal, Vertical)
)

// IntSlider selects an integer in [Min, Max].
type IntSlider struct {
	DescriptionWidget

	Value            *ipywire.Property[int]
	Min              *ipywire.Property[int]
	Max              *ipywire.Property[int]
	Step             *ipywire.Property[int]
	Orientation      *ipywire.Property[Orientation]
	Readout          *ipywire.Property[bool]
	ReadoutFormat    *ipywire.Property[string]
	ContinuousUpdate *ipywire.Property[bool]
	Disabled         *ipywire.Property[bool]
	Style            *ipywire.Property[*SliderStyle]
}

func NewIntSlider(mgr *ipywire.Manager) *IntSlider {
	return newIntSlider(mgr, false)
}

func newIntSlider(mgr *ipywire.Manager, fromFrontend bool) *IntSlider {
	base := newDescriptionWidget(mgr, intSliderSpec, fromFrontend)
	m := base.Model
	return &IntSlider{
		DescriptionWidget: base,
		Value:             ipywire.AttachDefault(m, "value", proptype.Int),
		Min:               ipywire.AttachDefault(m, "min", proptype.Int),
		Max:               ipywire.Attach(m, "max", proptype.Int, 100),
		Step:              ipywire.Attach(m, "step", proptype.Int, 1),
		Orientation:       ipywire.AttachDefault(m, "orientation", orientation),
		Readout:           ipywire.Attach(m, "readout", proptype.Bool, true),
		ReadoutFormat:     ipywire.Attach(m, "readout_format", proptype.String, "d"),
		ContinuousUpdate:  ipywire.Attach(m, "continuous_update", proptype.Bool, true),
		Disabled:          ipywire.AttachDefault(m, "disabled", proptype.Bool),
		Style:             attachStyle(m, "SliderStyle", func() *SliderStyle { return NewSliderStyle(mgr) }, fromFrontend),
	}
}

// SetRange updates both bounds and clamps the value into them.
func (s *IntSlider) SetRange(lower, upper int) error {
	if lower > upper {
		return fmt.Errorf("controls: invalid range [%d, %d]", lower, upper)
	}
	if err := s.Min.Set(lower); err != nil {
		return err
	}
	if err := s.Max.Set(upper); err != nil {
		return err
	}
	return s.Value.Set(min(max(s.Value.Get(), lower), upper))
}

// FloatSlider selects a float in [Min, Max].
type FloatSlider struct {
	DescriptionWidget

	Value            *ipywire.Property[float64]
	Min              *ipywire.Property[float64]
	Max              *ipywire.Property[float64]
	Step             *ipywire.Property[*float64]
	Orientation      *ipywire.Property[Orientation]
	Readout          *ipywire.Property[bool]
	ReadoutFormat    *ipywire.Property[string]
	ContinuousUpdate *ipywire.Property[bool]
	Disabled         *ipywire.Property[bool]
	Style            *ipywire.Property[*SliderStyle]
}

func NewFloatSlider(mgr *ipywire.Manager) *FloatSlider {
	return newFloatSlider(mgr, false)
}

func newFloatSlider(mgr *ipywire.Manager, fromFrontend bool) *FloatSlider {
	base := newDescriptionWidget(mgr, floatSliderSpec, fromFrontend)
	m := base.Model
	step := 0.1
	return &FloatSlider{
		DescriptionWidget: base,
		Value:             ipywire.AttachDefault(m, "value", proptype.Float),
		Min:               ipywire.AttachDefault(m, "min", proptype.Float),
		Max:               ipywire.Attach(m, "max", proptype.Float, 10),
		Step:              ipywire.Attach(m, "step", proptype.Nullable(proptype.Float), &step),
		Orientation:       ipywire.AttachDefault(m, "orientation", orientation),
		Readout:           ipywire.Attach(m, "readout", proptype.Bool, true),
		ReadoutFormat:     ipywire.Attach(m, "readout_format", proptype.String, ".2f"),
		ContinuousUpdate:  ipywire.Attach(m, "continuous_update", proptype.Bool, true),
		Disabled:          ipywire.AttachDefault(m, "disabled", proptype.Bool),
		Style:             attachStyle(m, "SliderStyle", func() *SliderStyle { return NewSliderStyle(mgr) }, fromFrontend),
	}
}

// SetRange updates both bounds and clamps the value into them.
func (s *FloatSlider) SetRange(lower, upper float64) error {
	if lower > upper {
		return fmt.Errorf("controls: invalid range [%g, %g]", lower, upper)
	}
	if err := s.Min.Set(lower); err != nil {
		return err
	}
	if err := s.Max.Set(upper); err != nil {
		return err
	}
	return s.Value.Set(min(max(s.Value.Get(), lower), upper))
}
