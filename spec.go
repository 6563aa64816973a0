package ipywire

const (
	TargetWidget  = "jupyter.widget"
	TargetControl = "jupyter.widget.control"

	// ProtocolVersion of the widget messages, sent as comm open metadata.
	ProtocolVersion = "2.1.0"

	BaseModule     = "@jupyter-widgets/base"
	ControlsModule = "@jupyter-widgets/controls"

	// ModuleVersion of the JavaScript modules above.
	ModuleVersion = "2.0.0"
)

// WidgetSpec identifies the frontend model and view classes of a widget.
// An empty ViewName is sent as null, for models without a view.
type WidgetSpec struct {
	ModelName          string
	ModelModule        string
	ModelModuleVersion string
	ViewName           string
	ViewModule         string
	ViewModuleVersion  string
}

// ControlSpec returns the spec of a `@jupyter-widgets/controls` widget.
func ControlSpec(modelName, viewName string) WidgetSpec {
	return WidgetSpec{
		ModelName:          modelName,
		ModelModule:        ControlsModule,
		ModelModuleVersion: ModuleVersion,
		ViewName:           viewName,
		ViewModule:         ControlsModule,
		ViewModuleVersion:  ModuleVersion,
	}
}

// BaseSpec returns the spec of a `@jupyter-widgets/base` widget.
func BaseSpec(modelName, viewName string) WidgetSpec {
	return WidgetSpec{
		ModelName:          modelName,
		ModelModule:        BaseModule,
		ModelModuleVersion: ModuleVersion,
		ViewName:           viewName,
		ViewModule:         BaseModule,
		ViewModuleVersion:  ModuleVersion,
	}
}
