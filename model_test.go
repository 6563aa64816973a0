package ipywire

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/raskyld/ipywire/pkg/proptype"
	"github.com/raskyld/ipywire/pkg/value"
)

type slider struct {
	*Model
	Value *Property[int]
	Label *Property[string]
	Data  *Property[[]byte]
}

func newSlider(mgr *Manager) *slider {
	m := NewModel(mgr, ControlSpec("IntSliderModel", "IntSliderView"))
	return &slider{
		Model: m,
		Value: Attach(m, "value", proptype.Int, 0),
		Label: AttachDefault(m, "description", proptype.String),
		Data:  AttachDefault(m, "data", proptype.Bytes),
	}
}

func TestModel_SpecProperties(t *testing.T) {
	s := newSlider(nil)

	require.Equal(t, []string{
		"_model_name",
		"_model_module",
		"_model_module_version",
		"_view_name",
		"_view_module",
		"_view_module_version",
		"value",
		"description",
		"data",
	}, s.PropertyNames())

	state, err := s.FullState()
	require.NoError(t, err)
	require.Equal(t, value.String("IntSliderModel"), state["_model_name"])
	require.Equal(t, value.String("IntSliderView"), state["_view_name"])
	require.Equal(t, value.String(ControlsModule), state["_model_module"])
	require.Equal(t, value.Number(0), state["value"])
	require.Equal(t, value.Bytes{}, state["data"])

	t.Run("when the widget has no view, the view name is null", func(t *testing.T) {
		m := NewModel(nil, WidgetSpec{ModelName: "LayoutModel", ModelModule: BaseModule})
		state, err := m.FullState()
		require.NoError(t, err)
		require.Equal(t, value.Null{}, state["_view_name"])
	})
}

func TestProperty_NoOpSuppression(t *testing.T) {
	s := newSlider(nil)

	var changes, patches int
	s.Value.OnChange(func(old, new int, origin Origin) {
		changes++
	})
	s.OnPatch(func(value.Map, Origin) {
		patches++
	})

	require.NoError(t, s.Value.Set(0))
	require.Zero(t, changes, "setting the current value must not notify")
	require.Zero(t, patches)

	require.NoError(t, s.Value.Set(3))
	require.Equal(t, 1, changes)
	require.Equal(t, 1, patches)

	require.NoError(t, s.Value.Set(3))
	require.Equal(t, 1, changes)
	require.Equal(t, 1, patches)
}

func TestProperty_ListenersReceiveOrigin(t *testing.T) {
	s := newSlider(nil)

	var (
		gotOld, gotNew int
		gotOrigin      Origin
		gotPatch       value.Map
	)
	s.Value.OnChange(func(old, new int, origin Origin) {
		gotOld, gotNew, gotOrigin = old, new, origin
	})
	s.OnPatch(func(patch value.Map, origin Origin) {
		gotPatch = patch
	})

	require.NoError(t, s.Value.Set(4))
	require.Equal(t, 0, gotOld)
	require.Equal(t, 4, gotNew)
	require.Equal(t, OriginLocal, gotOrigin)
	require.Equal(t, value.Map{"value": value.Number(4)}, gotPatch)

	require.NoError(t, s.applyPatchWithoutEcho(value.Map{"value": value.Number(9)}))
	require.Equal(t, OriginRemote, gotOrigin)
	require.Equal(t, 9, s.Value.Get())
}

func TestApplyPatch_UnknownKeys(t *testing.T) {
	s := newSlider(nil)

	err := s.ApplyPatch(value.Map{
		"nonexistent_prop": value.Number(1),
		"value":            value.Number(2),
	})
	require.NoError(t, err)
	require.Equal(t, 2, s.Value.Get())
}

func TestApplyPatch_ReportsEveryFailure(t *testing.T) {
	s := newSlider(nil)

	err := s.ApplyPatch(value.Map{
		"value":       value.String("two"),
		"description": value.Bool(true),
		"data":        value.Bytes{0x1},
	})
	require.ErrorIs(t, err, proptype.ErrTypeMismatch)
	require.Contains(t, err.Error(), "property value")
	require.Contains(t, err.Error(), "property description")
	require.Equal(t, []byte{0x1}, s.Data.Get(), "valid keys are still applied")
}

func TestAttach_Panics(t *testing.T) {
	s := newSlider(nil)

	t.Run("when the name is taken", func(t *testing.T) {
		require.Panics(t, func() {
			Attach(s.Model, "value", proptype.Int, 1)
		})
	})

	t.Run("when the type has no default", func(t *testing.T) {
		require.Panics(t, func() {
			AttachDefault(s.Model, "child", proptype.Reference[*slider]("slider"))
		})
	})
}

func TestOrigin_String(t *testing.T) {
	require.Equal(t, "local", OriginLocal.String())
	require.Equal(t, "remote", OriginRemote.String())
}
