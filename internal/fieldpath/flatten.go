package fieldpath

import "strings"

// MaxFlattenDepth bounds how deep Flatten and Discover descend.
// Branches below it are dropped.
const MaxFlattenDepth = 64

// FieldType is the type label of a flattened field.
type FieldType string

// Field types.
const (
	TypeArray   FieldType = "array"
	TypeObject  FieldType = "object"
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
)

// Field is one addressable leaf of a document.
type Field struct {
	Key     string    `json:"key"`
	Type    FieldType `json:"type"`
	Preview Value     `json:"preview"`
}

// Flatten lists the leaves of an object document in pre-order.
//
// Objects recurse with a dotted path. A non-empty array is a single leaf of
// type "array" whose preview is its first element; arrays are never
// expanded. Null values, empty objects and empty arrays are omitted. A
// document that is not an object yields no fields.
func Flatten(doc Value) []Field {
	obj, ok := doc.(*Object)
	if !ok {
		return nil
	}
	var out []Field
	flattenObject(obj, "", 0, &out)
	return out
}

func flattenObject(obj *Object, prefix string, depth int, out *[]Field) {
	if depth >= MaxFlattenDepth {
		return
	}
	for _, k := range obj.keys {
		key := joinPath(prefix, k)
		switch v := obj.fields[k].(type) {
		case *Object:
			flattenObject(v, key, depth+1, out)
		case Array:
			if len(v) > 0 {
				*out = append(*out, Field{Key: key, Type: TypeArray, Preview: v[0]})
			}
		case String:
			*out = append(*out, Field{Key: key, Type: TypeString, Preview: v})
		case Number:
			*out = append(*out, Field{Key: key, Type: TypeNumber, Preview: v})
		case Bool:
			*out = append(*out, Field{Key: key, Type: TypeBoolean, Preview: v})
		case Null:
		}
	}
}

// Discover lists annotated field paths suitable for a selection list,
// e.g. "data.rates.USD (number)" or "items[].price (number)".
//
// Unlike Flatten it looks inside arrays: when the first element is an
// object or array, discovery continues through it with a "[]" segment.
// An array of scalars is listed once, typed by its first element.
func Discover(doc Value) []string {
	var out []string
	discover(doc, "", 0, &out)
	return out
}

func discover(v Value, path string, depth int, out *[]string) {
	if depth > MaxFlattenDepth {
		return
	}
	switch x := v.(type) {
	case nil, Null:
	case *Object:
		for _, k := range x.keys {
			discover(x.fields[k], joinPath(path, k), depth+1, out)
		}
	case Array:
		if len(x) == 0 {
			return
		}
		switch item := x[0].(type) {
		case *Object, Array:
			discover(item, path+"[]", depth+1, out)
		case Null:
		default:
			*out = append(*out, Annotate(path, TypeOf(item)))
		}
	default:
		*out = append(*out, Annotate(path, TypeOf(x)))
	}
}

// TypeOf returns the field type label for v.
func TypeOf(v Value) FieldType {
	switch v.(type) {
	case Array:
		return TypeArray
	case String:
		return TypeString
	case Number:
		return TypeNumber
	case Bool:
		return TypeBoolean
	default:
		return TypeObject
	}
}

// FilterOptions narrows a field list for interactive selection.
type FilterOptions struct {
	// Search matches case-insensitively against the field key.
	Search string

	// ArraysOnly keeps array fields only (used by table widgets).
	ArraysOnly bool
}

// Filter returns the fields matching opts, preserving order.
func Filter(fields []Field, opts FilterOptions) []Field {
	term := strings.ToLower(strings.TrimSpace(opts.Search))
	out := make([]Field, 0, len(fields))
	for _, f := range fields {
		if opts.ArraysOnly && f.Type != TypeArray {
			continue
		}
		if term != "" && !strings.Contains(strings.ToLower(f.Key), term) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
