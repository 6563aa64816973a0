package ipywire

import (
	"context"
	"fmt"
	"html"
	"regexp"

	"github.com/Masterminds/semver/v3"
)

const (
	MIMEText       = "text/plain"
	MIMEHTML       = "text/html"
	MIMEWidgetView = "application/vnd.jupyter.widget-view+json"

	defaultVersionMajor = 2
	defaultVersionMinor = 1
)

// versionOperand extracts the version of a constraint such as "^2.0.0" or
// "~1.2".
var versionOperand = regexp.MustCompile(`^\s*(?:\^|~>?|>=?|<=?|=)?\s*v?(\d+(?:\.\d+){0,2}(?:-[0-9A-Za-z.-]+)?)`)

// DisplayData maps MIME types to the representations of a widget.
type DisplayData map[string]any

// WidgetView is the payload a frontend uses to instantiate a view.
type WidgetView struct {
	ModelID      string `json:"model_id"`
	VersionMajor uint64 `json:"version_major"`
	VersionMinor uint64 `json:"version_minor"`
}

// Render returns the display representations of a live widget.
func (mgr *Manager) Render(w Widget) (DisplayData, error) {
	m, err := mgr.modelOf(w)
	if err != nil {
		return nil, err
	}
	id := m.ID()
	if id == "" {
		return nil, ErrNotRegistered
	}

	major, minor := moduleVersion(m.ModelModuleVersion.Get())
	name := m.ModelName.Get()
	if view := m.ViewName.Get(); view != nil {
		name = *view
	}

	return DisplayData{
		MIMEText: fmt.Sprintf("%s(model_id=%s)", name, id),
		MIMEHTML: fmt.Sprintf(
			"<p>Failed to display Jupyter Widget of type <code>%s</code>.</p>",
			html.EscapeString(name),
		),
		MIMEWidgetView: WidgetView{
			ModelID:      id,
			VersionMajor: major,
			VersionMinor: minor,
		},
	}, nil
}

// Display registers w if needed, then renders it.
func (mgr *Manager) Display(ctx context.Context, w Widget) (DisplayData, error) {
	if err := mgr.Register(ctx, w); err != nil {
		return nil, err
	}
	return mgr.Render(w)
}

func moduleVersion(constraint string) (uint64, uint64) {
	match := versionOperand.FindStringSubmatch(constraint)
	if match == nil {
		return defaultVersionMajor, defaultVersionMinor
	}
	v, err := semver.NewVersion(match[1])
	if err != nil {
		return defaultVersionMajor, defaultVersionMinor
	}
	return v.Major(), v.Minor()
}
