package controls

import (
	"time"

	"github.com/raskyld/ipywire"
	"github.com/raskyld/ipywire/pkg/proptype"
)

var datePickerSpec = ipywire.ControlSpec("DatePickerModel", "DatePickerView")

// DatePicker selects a calendar date. Only the date part of the values is
// synchronized.
type DatePicker struct {
	DescriptionWidget

	Value    *ipywire.Property[*time.Time]
	Min      *ipywire.Property[*time.Time]
	Max      *ipywire.Property[*time.Time]
	Disabled *ipywire.Property[bool]
	Style    *ipywire.Property[*DescriptionStyle]
}

func NewDatePicker(mgr *ipywire.Manager) *DatePicker {
	return newDatePicker(mgr, false)
}

func newDatePicker(mgr *ipywire.Manager, fromFrontend bool) *DatePicker {
	base := newDescriptionWidget(mgr, datePickerSpec, fromFrontend)
	m := base.Model
	date := proptype.Nullable(proptype.Date)
	return &DatePicker{
		DescriptionWidget: base,
		Value:             ipywire.AttachDefault(m, "value", date),
		Min:               ipywire.AttachDefault(m, "min", date),
		Max:               ipywire.AttachDefault(m, "max", date),
		Disabled:          ipywire.AttachDefault(m, "disabled", proptype.Bool),
		Style:             attachStyle(m, "DescriptionStyle", func() *DescriptionStyle { return NewDescriptionStyle(mgr) }, fromFrontend),
	}
}

// Date is a helper building a value for `DatePicker` properties.
func Date(year int, month time.Month, day int) *time.Time {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &t
}
