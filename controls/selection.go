package controls

import (
	"fmt"
	"slices"

	"github.com/raskyld/ipywire"
	"github.com/raskyld/ipywire/pkg/proptype"
)

var dropdownSpec = ipywire.ControlSpec("DropdownModel", "DropdownView")

// Dropdown selects one of its options, by index.
type Dropdown struct {
	DescriptionWidget

	Options  *ipywire.Property[[]string]
	Index    *ipywire.Property[*int]
	Disabled *ipywire.Property[bool]
	Style    *ipywire.Property[*DescriptionStyle]
}

func NewDropdown(mgr *ipywire.Manager, options ...string) *Dropdown {
	d := newDropdown(mgr, false)
	if len(options) > 0 {
		first := 0
		// Plain values: Set cannot fail.
		_ = d.Options.Set(slices.Clone(options))
		_ = d.Index.Set(&first)
	}
	return d
}

func newDropdown(mgr *ipywire.Manager, fromFrontend bool) *Dropdown {
	base := newDescriptionWidget(mgr, dropdownSpec, fromFrontend)
	m := base.Model
	return &Dropdown{
		DescriptionWidget: base,
		Options:           ipywire.AttachDefault(m, "_options_labels", proptype.Array(proptype.String)),
		Index:             ipywire.AttachDefault(m, "index", proptype.Nullable(proptype.Int)),
		Disabled:          ipywire.AttachDefault(m, "disabled", proptype.Bool),
		Style:             attachStyle(m, "DescriptionStyle", func() *DescriptionStyle { return NewDescriptionStyle(mgr) }, fromFrontend),
	}
}

// Selected returns the label of the selected option.
func (d *Dropdown) Selected() (string, bool) {
	idx := d.Index.Get()
	options := d.Options.Get()
	if idx == nil || *idx < 0 || *idx >= len(options) {
		return "", false
	}
	return options[*idx], true
}

// Select the first option labelled label.
func (d *Dropdown) Select(label string) error {
	idx := slices.Index(d.Options.Get(), label)
	if idx < 0 {
		return fmt.Errorf("controls: %q is not an option", label)
	}
	return d.Index.Set(&idx)
}
