package fieldpath

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/buger/jsonparser"
)

// MaxParseDepth bounds nesting accepted by Parse.
const MaxParseDepth = 256

// Kind identifies the variant of a Value.
type Kind int

// Value kinds.
const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Value is a parsed JSON document or a node inside one.
//
// The set of implementations is closed: *Object, Array, String, Number,
// Bool and Null. A nil Value means "absent", which is distinct from Null.
// Values are treated as immutable once shared.
type Value interface {
	Kind() Kind
	json.Marshaler
	isValue()
}

// Object is a JSON object that remembers key order.
type Object struct {
	keys   []string
	fields map[string]Value
}

// Array is a JSON array.
type Array []Value

// String is a JSON string.
type String string

// Number is a JSON number kept as its source literal so that formatting
// survives a round trip.
type Number string

// Bool is a JSON boolean.
type Bool bool

// Null is the JSON null literal.
type Null struct{}

func (*Object) isValue() {}
func (Array) isValue()   {}
func (String) isValue()  {}
func (Number) isValue()  {}
func (Bool) isValue()    {}
func (Null) isValue()    {}

func (*Object) Kind() Kind { return KindObject }
func (Array) Kind() Kind   { return KindArray }
func (String) Kind() Kind  { return KindString }
func (Number) Kind() Kind  { return KindNumber }
func (Bool) Kind() Kind    { return KindBool }
func (Null) Kind() Kind    { return KindNull }

// NewObject returns an empty object.
func NewObject() *Object {
	return &Object{fields: make(map[string]Value)}
}

// Set adds or replaces a key. A replaced key keeps its original position.
// Only call Set while building an object.
func (o *Object) Set(key string, v Value) {
	if _, exists := o.fields[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.fields[key] = v
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.fields[key]
	return v, ok
}

// Keys returns the keys in document order.
func (o *Object) Keys() []string {
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Len returns the number of keys.
func (o *Object) Len() int { return len(o.keys) }

// Float returns the numeric value of n.
func (n Number) Float() (float64, error) {
	return strconv.ParseFloat(string(n), 64)
}

// MarshalJSON writes keys in document order.
func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := marshalValue(o.fields[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (a Array) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		vb, err := marshalValue(v)
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func (s String) MarshalJSON() ([]byte, error) { return json.Marshal(string(s)) }
func (n Number) MarshalJSON() ([]byte, error) { return []byte(n), nil }
func (b Bool) MarshalJSON() ([]byte, error)   { return json.Marshal(bool(b)) }
func (Null) MarshalJSON() ([]byte, error)     { return []byte("null"), nil }

func marshalValue(v Value) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return v.MarshalJSON()
}

// Parse decodes a JSON document, preserving object key order.
// Duplicate keys keep their first position and their last value.
// Invalid UTF-8 is replaced with U+FFFD rather than rejected.
func Parse(data []byte) (Value, error) {
	if !utf8.Valid(data) {
		data = bytes.ToValidUTF8(data, []byte("\uFFFD"))
	}
	if !json.Valid(data) {
		return nil, ErrInvalidJSON
	}

	raw, typ, _, err := jsonparser.Get(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return build(raw, typ, 0)
}

// FromRaw parses payload as JSON and falls back to the raw text when it is
// not a JSON document. Stream messages are delivered through FromRaw.
func FromRaw(payload []byte) Value {
	v, err := Parse(payload)
	if err != nil {
		return String(payload)
	}
	return v
}

func build(raw []byte, typ jsonparser.ValueType, depth int) (Value, error) {
	if depth > MaxParseDepth {
		return nil, ErrTooDeep
	}

	switch typ {
	case jsonparser.Object:
		obj := NewObject()
		err := jsonparser.ObjectEach(raw, func(key, value []byte, vt jsonparser.ValueType, _ int) error {
			child, err := build(value, vt, depth+1)
			if err != nil {
				return err
			}
			// key is already unescaped and may alias a scratch buffer.
			obj.Set(string(key), child)
			return nil
		})
		if err != nil {
			return nil, wrapParseErr(err)
		}
		return obj, nil

	case jsonparser.Array:
		arr := Array{}
		var inner error
		_, err := jsonparser.ArrayEach(raw, func(value []byte, vt jsonparser.ValueType, _ int, err error) {
			if inner != nil {
				return
			}
			if err != nil {
				inner = err
				return
			}
			child, err := build(value, vt, depth+1)
			if err != nil {
				inner = err
				return
			}
			arr = append(arr, child)
		})
		if inner != nil {
			return nil, wrapParseErr(inner)
		}
		if err != nil {
			return nil, wrapParseErr(err)
		}
		return arr, nil

	case jsonparser.String:
		s, err := jsonparser.ParseString(raw)
		if err != nil {
			return nil, wrapParseErr(err)
		}
		return String(s), nil

	case jsonparser.Number:
		return Number(string(raw)), nil

	case jsonparser.Boolean:
		b, err := jsonparser.ParseBoolean(raw)
		if err != nil {
			return nil, wrapParseErr(err)
		}
		return Bool(b), nil

	case jsonparser.Null:
		return Null{}, nil
	}

	return nil, fmt.Errorf("%w: unexpected value type %s", ErrInvalidJSON, typ)
}

func wrapParseErr(err error) error {
	if errors.Is(err, ErrTooDeep) || errors.Is(err, ErrInvalidJSON) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
}

// Equal reports whether a and b are structurally equal. Numbers compare by
// value, so 1.0 equals 1.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	switch x := a.(type) {
	case *Object:
		y, ok := b.(*Object)
		if !ok || x.Len() != y.Len() {
			return false
		}
		for _, k := range x.keys {
			yv, ok := y.fields[k]
			if !ok || !Equal(x.fields[k], yv) {
				return false
			}
		}
		return true
	case Array:
		y, ok := b.(Array)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case Number:
		y, ok := b.(Number)
		if !ok {
			return false
		}
		xf, errX := x.Float()
		yf, errY := y.Float()
		if errX != nil || errY != nil {
			return x == y
		}
		return xf == yf
	case String:
		y, ok := b.(String)
		return ok && x == y
	case Bool:
		y, ok := b.(Bool)
		return ok && x == y
	case Null:
		_, ok := b.(Null)
		return ok
	}
	return false
}

// Text renders v for display and search. Strings are returned unquoted,
// everything else as compact JSON. A nil value renders as "".
func Text(v Value) string {
	switch x := v.(type) {
	case nil:
		return ""
	case String:
		return string(x)
	case Number:
		return string(x)
	default:
		b, err := x.MarshalJSON()
		if err != nil {
			return ""
		}
		return string(b)
	}
}
