package proptype

import (
	"fmt"
	"time"

	"github.com/raskyld/ipywire/pkg/value"
)

// Date, Time and DateTime follow the JSON shapes of the ipywidgets
// serializers. Months are 0-based on the wire, like JavaScript dates, and
// every instant is expressed in UTC.
var (
	Date     Type[time.Time] = dateType{}
	Time     Type[TimeOfDay] = timeType{}
	DateTime Type[time.Time] = dateTimeType{}
)

// TimeOfDay is a wall clock time without date nor location.
type TimeOfDay struct {
	Hours        int
	Minutes      int
	Seconds      int
	Milliseconds int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d.%03d", t.Hours, t.Minutes, t.Seconds, t.Milliseconds)
}

func (t TimeOfDay) valid() bool {
	return t.Hours >= 0 && t.Hours < 24 &&
		t.Minutes >= 0 && t.Minutes < 60 &&
		t.Seconds >= 0 && t.Seconds < 60 &&
		t.Milliseconds >= 0 && t.Milliseconds < 1000
}

type dateType struct{}

func (dateType) Name() string { return "date" }

func (dateType) Default() (time.Time, error) {
	return time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC), nil
}

func (dateType) Equal(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func (dateType) Serialize(v time.Time, _ Resolver) (value.Value, error) {
	y, m, d := v.UTC().Date()
	return value.Map{
		"year":  value.Number(y),
		"month": value.Number(int(m) - 1),
		"date":  value.Number(d),
	}, nil
}

func (t dateType) Deserialize(v value.Value, _ Resolver) (time.Time, error) {
	fields, err := intFields(t.Name(), v, "year", "month", "date")
	if err != nil {
		return time.Time{}, err
	}
	return civilDate(t.Name(), fields["year"], fields["month"], fields["date"])
}

type timeType struct{}

func (timeType) Name() string                { return "time" }
func (timeType) Default() (TimeOfDay, error) { return TimeOfDay{}, nil }
func (timeType) Equal(a, b TimeOfDay) bool   { return a == b }

func (t timeType) Serialize(v TimeOfDay, _ Resolver) (value.Value, error) {
	if !v.valid() {
		return nil, fmt.Errorf("%w: %s is not a valid %s", ErrInvalidLiteral, v, t.Name())
	}
	return value.Map{
		"hours":        value.Number(v.Hours),
		"minutes":      value.Number(v.Minutes),
		"seconds":      value.Number(v.Seconds),
		"milliseconds": value.Number(v.Milliseconds),
	}, nil
}

func (t timeType) Deserialize(v value.Value, _ Resolver) (TimeOfDay, error) {
	fields, err := intFields(t.Name(), v, "hours", "minutes", "seconds", "milliseconds")
	if err != nil {
		return TimeOfDay{}, err
	}
	out := TimeOfDay{
		Hours:        fields["hours"],
		Minutes:      fields["minutes"],
		Seconds:      fields["seconds"],
		Milliseconds: fields["milliseconds"],
	}
	if !out.valid() {
		return TimeOfDay{}, fmt.Errorf("%w: %s is not a valid %s", ErrInvalidLiteral, out, t.Name())
	}
	return out, nil
}

type dateTimeType struct{}

func (dateTimeType) Name() string { return "datetime" }

func (dateTimeType) Default() (time.Time, error) {
	return time.Unix(0, 0).UTC(), nil
}

func (dateTimeType) Equal(a, b time.Time) bool {
	return a.Truncate(time.Millisecond).Equal(b.Truncate(time.Millisecond))
}

func (dateTimeType) Serialize(v time.Time, _ Resolver) (value.Value, error) {
	v = v.UTC()
	y, m, d := v.Date()
	return value.Map{
		"year":         value.Number(y),
		"month":        value.Number(int(m) - 1),
		"date":         value.Number(d),
		"hours":        value.Number(v.Hour()),
		"minutes":      value.Number(v.Minute()),
		"seconds":      value.Number(v.Second()),
		"milliseconds": value.Number(v.Nanosecond() / int(time.Millisecond)),
	}, nil
}

func (t dateTimeType) Deserialize(v value.Value, _ Resolver) (time.Time, error) {
	fields, err := intFields(t.Name(), v,
		"year", "month", "date", "hours", "minutes", "seconds", "milliseconds")
	if err != nil {
		return time.Time{}, err
	}
	day, err := civilDate(t.Name(), fields["year"], fields["month"], fields["date"])
	if err != nil {
		return time.Time{}, err
	}
	clock := TimeOfDay{
		Hours:        fields["hours"],
		Minutes:      fields["minutes"],
		Seconds:      fields["seconds"],
		Milliseconds: fields["milliseconds"],
	}
	if !clock.valid() {
		return time.Time{}, fmt.Errorf("%w: %s is not a valid %s", ErrInvalidLiteral, clock, t.Name())
	}
	return day.Add(
		time.Duration(clock.Hours)*time.Hour +
			time.Duration(clock.Minutes)*time.Minute +
			time.Duration(clock.Seconds)*time.Second +
			time.Duration(clock.Milliseconds)*time.Millisecond,
	), nil
}

func civilDate(typeName string, year, month, day int) (time.Time, error) {
	if month < 0 || month > 11 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("%w: %04d-%02d-%02d is not a valid %s",
			ErrInvalidLiteral, year, month+1, day, typeName)
	}
	out := time.Date(year, time.Month(month+1), day, 0, 0, 0, 0, time.UTC)
	if out.Day() != day {
		return time.Time{}, fmt.Errorf("%w: %04d-%02d-%02d does not exist",
			ErrInvalidLiteral, year, month+1, day)
	}
	return out, nil
}

func intFields(typeName string, v value.Value, names ...string) (map[string]int, error) {
	m, ok := v.(value.Map)
	if !ok {
		return nil, mismatch(typeName, value.KindMap, v)
	}
	out := make(map[string]int, len(names))
	for _, name := range names {
		field, err := Int.Deserialize(m[name], nil)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", typeName, name, err)
		}
		out[name] = field
	}
	return out, nil
}
