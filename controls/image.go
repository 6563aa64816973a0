package controls

import (
	"github.com/raskyld/ipywire"
	"github.com/raskyld/ipywire/pkg/proptype"
)

var imageSpec = ipywire.ControlSpec("ImageModel", "ImageView")

// Image displays Value, sent to the frontend as a binary buffer.
type Image struct {
	DOMWidget

	Value  *ipywire.Property[[]byte]
	Format *ipywire.Property[string]
	Width  *ipywire.Property[string]
	Height *ipywire.Property[string]
}

func NewImage(mgr *ipywire.Manager) *Image {
	return newImage(mgr, false)
}

func newImage(mgr *ipywire.Manager, fromFrontend bool) *Image {
	base := newDOMWidget(mgr, imageSpec, fromFrontend)
	m := base.Model
	return &Image{
		DOMWidget: base,
		Value:     ipywire.AttachDefault(m, "value", proptype.Bytes),
		Format:    ipywire.Attach(m, "format", proptype.String, "png"),
		Width:     ipywire.AttachDefault(m, "width", proptype.String),
		Height:    ipywire.AttachDefault(m, "height", proptype.String),
	}
}
