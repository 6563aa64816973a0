// Package value implements the wire-level representation of widget
// properties: a closed JSON-like union which keeps binary buffers apart
// from JSON-encodable values.
package value

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
)

var (
	ErrUnsupported = errors.New("value: unsupported Go type")
)

type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindBytes
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is one node of a property tree.
//
// Raw returns the plain Go tree (nil, string, float64, bool, []byte,
// []any, map[string]any) the value stands for. Bytes are returned as-is,
// JSON encoding of buffers is the job of the wire package.
type Value interface {
	Kind() Kind
	Raw() any
	isValue()
}

type (
	Null   struct{}
	String string
	Number float64
	Bool   bool
	Bytes  []byte
	List   []Value
	Map    map[string]Value
)

func (Null) Kind() Kind   { return KindNull }
func (String) Kind() Kind { return KindString }
func (Number) Kind() Kind { return KindNumber }
func (Bool) Kind() Kind   { return KindBool }
func (Bytes) Kind() Kind  { return KindBytes }
func (List) Kind() Kind   { return KindList }
func (Map) Kind() Kind    { return KindMap }

func (Null) isValue()   {}
func (String) isValue() {}
func (Number) isValue() {}
func (Bool) isValue()   {}
func (Bytes) isValue()  {}
func (List) isValue()   {}
func (Map) isValue()    {}

func (Null) Raw() any     { return nil }
func (v String) Raw() any { return string(v) }
func (v Number) Raw() any { return float64(v) }
func (v Bool) Raw() any   { return bool(v) }
func (v Bytes) Raw() any  { return []byte(v) }

func (v List) Raw() any {
	out := make([]any, len(v))
	for i, item := range v {
		out[i] = item.Raw()
	}
	return out
}

func (v Map) Raw() any {
	out := make(map[string]any, len(v))
	for k, item := range v {
		out[k] = item.Raw()
	}
	return out
}

// Of is a shortcut returning the kind of v, treating a nil interface as
// Null.
func Of(v Value) Kind {
	if v == nil {
		return KindNull
	}
	return v.Kind()
}

// From converts a plain Go tree into a Value.
//
// Supported inputs are nil, strings, every integer and float kind,
// json.Number, bools, []byte, slices and arrays, maps keyed by strings and
// values which already are a Value. Numbers are widened to float64.
func From(x any) (Value, error) {
	switch x := x.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case []byte:
		return Bytes(x), nil
	case float64:
		return Number(x), nil
	case float32:
		return Number(x), nil
	case int:
		return Number(x), nil
	case int8:
		return Number(x), nil
	case int16:
		return Number(x), nil
	case int32:
		return Number(x), nil
	case int64:
		return Number(x), nil
	case uint:
		return Number(x), nil
	case uint8:
		return Number(x), nil
	case uint16:
		return Number(x), nil
	case uint32:
		return Number(x), nil
	case uint64:
		return Number(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: json.Number %q: %w", ErrUnsupported, x.String(), err)
		}
		return Number(f), nil
	case []any:
		out := make(List, len(x))
		for i, item := range x {
			v, err := From(item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case map[string]any:
		out := make(Map, len(x))
		for k, item := range x {
			v, err := From(item)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	}

	return fromReflect(reflect.ValueOf(x))
}

// MustFrom is like From but panics on unsupported input.
func MustFrom(x any) Value {
	v, err := From(x)
	if err != nil {
		panic(err)
	}
	return v
}

func fromReflect(rv reflect.Value) (Value, error) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null{}, nil
		}
		return From(rv.Elem().Interface())
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Number(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Number(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return Number(rv.Float()), nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return Null{}, nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			buf := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(buf), rv)
			return Bytes(buf), nil
		}
		out := make(List, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			v, err := From(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%w: map keyed by %s", ErrUnsupported, rv.Type().Key())
		}
		if rv.IsNil() {
			return Null{}, nil
		}
		out := make(Map, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			v, err := From(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = v
		}
		return out, nil
	}

	if !rv.IsValid() {
		return Null{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, rv.Type())
}

// Equal reports whether a and b are structurally equal. Buffers are
// compared by content and nil interfaces are treated as Null.
func Equal(a, b Value) bool {
	if Of(a) != Of(b) {
		return false
	}

	switch a := a.(type) {
	case nil, Null:
		return true
	case String:
		return a == b.(String)
	case Number:
		bn := b.(Number)
		return a == bn || (math.IsNaN(float64(a)) && math.IsNaN(float64(bn)))
	case Bool:
		return a == b.(Bool)
	case Bytes:
		return bytes.Equal(a, b.(Bytes))
	case List:
		bl := b.(List)
		if len(a) != len(bl) {
			return false
		}
		for i := range a {
			if !Equal(a[i], bl[i]) {
				return false
			}
		}
		return true
	case Map:
		bm := b.(Map)
		if len(a) != len(bm) {
			return false
		}
		for k, av := range a {
			bv, ok := bm[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}
