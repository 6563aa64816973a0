package proptype

import (
	"bytes"
	"math"

	"github.com/raskyld/ipywire/pkg/value"
)

var (
	Int    Type[int]         = intType{}
	Float  Type[float64]     = floatType{}
	String Type[string]      = stringType{}
	Bool   Type[bool]        = boolType{}
	Bytes  Type[[]byte]      = bytesType{}
	Raw    Type[any]         = rawType{}
	Value  Type[value.Value] = valueType{}
)

type intType struct{}

func (intType) Name() string          { return "int" }
func (intType) Default() (int, error) { return 0, nil }
func (intType) Equal(a, b int) bool   { return a == b }

func (intType) Serialize(v int, _ Resolver) (value.Value, error) {
	return value.Number(v), nil
}

func (t intType) Deserialize(v value.Value, _ Resolver) (int, error) {
	n, ok := v.(value.Number)
	if !ok {
		return 0, mismatch(t.Name(), value.KindNumber, v)
	}
	f := float64(n)
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, &MismatchError{Type: t.Name(), Expected: "integral number", Actual: "fractional number"}
	}
	// 2^63 is exact as a float64, the largest int is not.
	if f >= math.MaxInt64+1.0 || f < math.MinInt64 || int64(int(f)) != int64(f) {
		return 0, &MismatchError{Type: t.Name(), Expected: "integer in range", Actual: "out of range number"}
	}
	return int(f), nil
}

type floatType struct{}

func (floatType) Name() string              { return "float" }
func (floatType) Default() (float64, error) { return 0, nil }
func (floatType) Equal(a, b float64) bool   { return a == b || (math.IsNaN(a) && math.IsNaN(b)) }

func (floatType) Serialize(v float64, _ Resolver) (value.Value, error) {
	return value.Number(v), nil
}

func (t floatType) Deserialize(v value.Value, _ Resolver) (float64, error) {
	n, ok := v.(value.Number)
	if !ok {
		return 0, mismatch(t.Name(), value.KindNumber, v)
	}
	return float64(n), nil
}

type stringType struct{}

func (stringType) Name() string             { return "string" }
func (stringType) Default() (string, error) { return "", nil }
func (stringType) Equal(a, b string) bool   { return a == b }

func (stringType) Serialize(v string, _ Resolver) (value.Value, error) {
	return value.String(v), nil
}

func (t stringType) Deserialize(v value.Value, _ Resolver) (string, error) {
	s, ok := v.(value.String)
	if !ok {
		return "", mismatch(t.Name(), value.KindString, v)
	}
	return string(s), nil
}

type boolType struct{}

func (boolType) Name() string           { return "bool" }
func (boolType) Default() (bool, error) { return false, nil }
func (boolType) Equal(a, b bool) bool   { return a == b }

func (boolType) Serialize(v bool, _ Resolver) (value.Value, error) {
	return value.Bool(v), nil
}

func (t boolType) Deserialize(v value.Value, _ Resolver) (bool, error) {
	b, ok := v.(value.Bool)
	if !ok {
		return false, mismatch(t.Name(), value.KindBool, v)
	}
	return bool(b), nil
}

type bytesType struct{}

func (bytesType) Name() string             { return "bytes" }
func (bytesType) Default() ([]byte, error) { return []byte{}, nil }
func (bytesType) Equal(a, b []byte) bool   { return bytes.Equal(a, b) }

func (bytesType) Serialize(v []byte, _ Resolver) (value.Value, error) {
	return value.Bytes(v), nil
}

func (t bytesType) Deserialize(v value.Value, _ Resolver) ([]byte, error) {
	b, ok := v.(value.Bytes)
	if !ok {
		return nil, mismatch(t.Name(), value.KindBytes, v)
	}
	return []byte(b), nil
}

// rawType carries arbitrary plain Go trees, as produced by value.Raw.
type rawType struct{}

func (rawType) Name() string          { return "raw" }
func (rawType) Default() (any, error) { return nil, nil }

func (rawType) Equal(a, b any) bool {
	av, aerr := value.From(a)
	bv, berr := value.From(b)
	if aerr != nil || berr != nil {
		return false
	}
	return value.Equal(av, bv)
}

func (rawType) Serialize(v any, _ Resolver) (value.Value, error) {
	return value.From(v)
}

func (rawType) Deserialize(v value.Value, _ Resolver) (any, error) {
	if v == nil {
		return nil, nil
	}
	return v.Raw(), nil
}

// valueType passes tagged values through untouched.
type valueType struct{}

func (valueType) Name() string                  { return "value" }
func (valueType) Default() (value.Value, error) { return value.Null{}, nil }
func (valueType) Equal(a, b value.Value) bool   { return value.Equal(a, b) }

func (valueType) Serialize(v value.Value, _ Resolver) (value.Value, error) {
	if v == nil {
		return value.Null{}, nil
	}
	return v, nil
}

func (valueType) Deserialize(v value.Value, _ Resolver) (value.Value, error) {
	if v == nil {
		return value.Null{}, nil
	}
	return v, nil
}
