package proptype

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/raskyld/ipywire/pkg/value"
)

type fakeWidget struct {
	id string
}

type fakeResolver struct {
	widgets map[string]any
}

func (r *fakeResolver) Resolve(id string) (any, error) {
	w, ok := r.widgets[id]
	if !ok {
		return nil, fmt.Errorf("unknown widget %q", id)
	}
	return w, nil
}

func (r *fakeResolver) IDOf(w any) (string, error) {
	fw, ok := w.(*fakeWidget)
	if !ok {
		return "", errors.New("not a widget")
	}
	r.widgets[fw.id] = fw
	return fw.id, nil
}

func TestPrimitives(t *testing.T) {
	v, err := Int.Serialize(42, nil)
	require.NoError(t, err)
	require.Equal(t, value.Number(42), v)

	i, err := Int.Deserialize(value.Number(7), nil)
	require.NoError(t, err)
	require.Equal(t, 7, i)

	_, err = Int.Deserialize(value.Number(7.5), nil)
	require.ErrorIs(t, err, ErrTypeMismatch)

	s, err := String.Deserialize(value.String("hey"), nil)
	require.NoError(t, err)
	require.Equal(t, "hey", s)

	b, err := Bytes.Deserialize(value.Bytes{0x1}, nil)
	require.NoError(t, err)
	require.Equal(t, []byte{0x1}, b)
	require.True(t, Bytes.Equal([]byte{0x1}, []byte{0x1}))

	raw, err := Raw.Deserialize(value.Map{"a": value.List{value.Number(1)}}, nil)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"a": []any{1.0}}, raw)
	require.True(t, Raw.Equal(map[string]any{"a": 1}, map[string]any{"a": 1.0}))
}

func TestInt_Range(t *testing.T) {
	t.Run("when the number is beyond the int range, it is a mismatch", func(t *testing.T) {
		for _, n := range []float64{1e300, -1e300, 9.3e18, -9.3e18, 1 << 63} {
			_, err := Int.Deserialize(value.Number(n), nil)
			require.ErrorIs(t, err, ErrTypeMismatch, "%g", n)

			var mismatchErr *MismatchError
			require.ErrorAs(t, err, &mismatchErr)
			require.Equal(t, "out of range number", mismatchErr.Actual)
		}
	})

	t.Run("when the number is the smallest int, it is kept", func(t *testing.T) {
		i, err := Int.Deserialize(value.Number(-(1 << 63)), nil)
		require.NoError(t, err)
		require.Equal(t, int64(math.MinInt64), int64(i))
	})

	t.Run("when the number is large but in range, it is kept", func(t *testing.T) {
		i, err := Int.Deserialize(value.Number(1<<53), nil)
		require.NoError(t, err)
		require.Equal(t, 1<<53, i)
	})
}

func TestMismatch_NamesBothTags(t *testing.T) {
	_, err := Bool.Deserialize(value.String("true"), nil)
	require.ErrorIs(t, err, ErrTypeMismatch)

	var mismatchErr *MismatchError
	require.ErrorAs(t, err, &mismatchErr)
	require.Equal(t, "bool", mismatchErr.Expected)
	require.Equal(t, "string", mismatchErr.Actual)
	require.Contains(t, err.Error(), "expected bool but got string")
}

func TestNullable(t *testing.T) {
	typ := Nullable(Int)
	require.Equal(t, "nullable<int>", typ.Name())

	v, err := typ.Serialize(nil, nil)
	require.NoError(t, err)
	require.Equal(t, value.Null{}, v)

	out, err := typ.Deserialize(value.Null{}, nil)
	require.NoError(t, err)
	require.Nil(t, out)

	out, err = typ.Deserialize(value.Number(3), nil)
	require.NoError(t, err)
	require.Equal(t, 3, *out)

	three := 3
	also := 3
	require.True(t, typ.Equal(&three, &also))
	require.False(t, typ.Equal(&three, nil))
	require.True(t, typ.Equal(nil, nil))
}

func TestArrayMapPair(t *testing.T) {
	arr := Array(String)
	require.Equal(t, "array<string>", arr.Name())
	v, err := arr.Serialize([]string{"a", "b"}, nil)
	require.NoError(t, err)
	require.Equal(t, value.List{value.String("a"), value.String("b")}, v)

	_, err = arr.Deserialize(value.List{value.String("a"), value.Number(1)}, nil)
	require.ErrorIs(t, err, ErrTypeMismatch)
	require.Contains(t, err.Error(), "array<string>[1]")

	m := Map(Float)
	mv, err := m.Deserialize(value.Map{"x": value.Number(1.5)}, nil)
	require.NoError(t, err)
	require.Equal(t, map[string]float64{"x": 1.5}, mv)

	pair := Pair(Int, String)
	require.Equal(t, "pair<int,string>", pair.Name())
	pv, err := pair.Serialize(Tuple[int, string]{First: 1, Second: "one"}, nil)
	require.NoError(t, err)
	require.Equal(t, value.List{value.Number(1), value.String("one")}, pv)

	_, err = pair.Deserialize(value.List{value.Number(1)}, nil)
	require.ErrorIs(t, err, ErrTypeMismatch)
}

func TestUnion_DeclarationOrder(t *testing.T) {
	failing := Widen(Int)
	succeeding := Widen(String)

	union := Union[any](nil, func(v any) (Type[any], error) {
		if Accepts[int](v) {
			return failing, nil
		}
		return succeeding, nil
	}, failing, succeeding)

	t.Run("when the first candidate fails, the second one wins", func(t *testing.T) {
		out, err := union.Deserialize(value.String("x"), nil)
		require.NoError(t, err)
		require.Equal(t, "x", out)
	})

	t.Run("when the first candidate succeeds, it wins", func(t *testing.T) {
		out, err := union.Deserialize(value.Number(2), nil)
		require.NoError(t, err)
		require.Equal(t, 2, out)
	})

	t.Run("when every candidate fails, the error mentions all of them", func(t *testing.T) {
		_, err := union.Deserialize(value.Bool(true), nil)
		require.ErrorIs(t, err, ErrNoCandidate)
		require.ErrorIs(t, err, ErrTypeMismatch)
		require.Contains(t, err.Error(), "int expected number but got bool")
		require.Contains(t, err.Error(), "string expected string but got bool")
	})

	t.Run("serializer is picked by the selector", func(t *testing.T) {
		v, err := union.Serialize(12, nil)
		require.NoError(t, err)
		require.Equal(t, value.Number(12), v)

		v, err = union.Serialize("twelve", nil)
		require.NoError(t, err)
		require.Equal(t, value.String("twelve"), v)
	})

	require.Equal(t, "union<int|string>", union.Name())
	require.True(t, union.Equal(1, 1))
	require.False(t, union.Equal(1, "1"))
}

type orientation string

func TestEnum(t *testing.T) {
	typ := Enum("orientation", orientation("horizontal"), orientation("vertical"))

	def, err := typ.Default()
	require.NoError(t, err)
	require.Equal(t, orientation("horizontal"), def)

	out, err := typ.Deserialize(value.String("vertical"), nil)
	require.NoError(t, err)
	require.Equal(t, orientation("vertical"), out)

	_, err = typ.Deserialize(value.String("diagonal"), nil)
	require.ErrorIs(t, err, ErrUnknownEntry)

	_, err = typ.Serialize("diagonal", nil)
	require.ErrorIs(t, err, ErrUnknownEntry)
}

func TestDateTime(t *testing.T) {
	day := time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC)
	v, err := Date.Serialize(day, nil)
	require.NoError(t, err)
	require.Equal(t, value.Map{
		"year":  value.Number(2024),
		"month": value.Number(1),
		"date":  value.Number(29),
	}, v)

	back, err := Date.Deserialize(v, nil)
	require.NoError(t, err)
	require.True(t, back.Equal(day))

	_, err = Date.Deserialize(value.Map{
		"year":  value.Number(2023),
		"month": value.Number(1),
		"date":  value.Number(29),
	}, nil)
	require.ErrorIs(t, err, ErrInvalidLiteral)

	clock := TimeOfDay{Hours: 13, Minutes: 37, Seconds: 5, Milliseconds: 250}
	tv, err := Time.Serialize(clock, nil)
	require.NoError(t, err)
	tback, err := Time.Deserialize(tv, nil)
	require.NoError(t, err)
	require.Equal(t, clock, tback)

	instant := time.Date(2025, time.July, 14, 8, 30, 15, 123*int(time.Millisecond), time.UTC)
	dv, err := DateTime.Serialize(instant, nil)
	require.NoError(t, err)
	dback, err := DateTime.Deserialize(dv, nil)
	require.NoError(t, err)
	require.True(t, dback.Equal(instant))
}

func TestReference(t *testing.T) {
	resolver := &fakeResolver{widgets: map[string]any{}}
	typ := Reference[*fakeWidget]("fake")
	w := &fakeWidget{id: "abc"}

	v, err := typ.Serialize(w, resolver)
	require.NoError(t, err)
	require.Equal(t, value.String("IPY_MODEL_abc"), v)

	out, err := typ.Deserialize(v, resolver)
	require.NoError(t, err)
	require.Same(t, w, out)

	_, err = typ.Deserialize(value.String("IPY_MODEL_unknown"), resolver)
	require.ErrorIs(t, err, ErrUnresolvable)

	_, err = typ.Deserialize(value.String("abc"), resolver)
	require.ErrorIs(t, err, ErrInvalidLiteral)

	_, err = typ.Default()
	require.ErrorIs(t, err, ErrNoDefault)
	require.Panics(t, func() { MustDefault(typ) })

	_, err = typ.Serialize(nil, resolver)
	require.ErrorIs(t, err, ErrUnresolvable)

	resolver.widgets["other"] = "not a widget"
	_, err = typ.Deserialize(value.String("IPY_MODEL_other"), resolver)
	require.ErrorIs(t, err, ErrTypeMismatch)

	require.True(t, typ.Equal(w, w))
	require.False(t, typ.Equal(w, &fakeWidget{id: "abc"}), "references compare by identity")
}
