package fieldpath

import (
	"regexp"
	"strings"
)

const firstElementSuffix = "[]"

// Resolve walks doc along path and returns the value found there.
//
// The path is split on ".". A plain segment reads an object key. A segment
// "k[]" reads key k and takes element 0 of the array stored there; repeated
// suffixes ("k[][]") descend once per suffix. A bare "[]" segment takes
// element 0 of the current array. The second result is false at the first
// missing or incompatible step.
func Resolve(doc Value, path string) (Value, bool) {
	cur := doc
	for _, seg := range strings.Split(path, ".") {
		if cur == nil {
			return nil, false
		}
		name := seg
		hops := 0
		for strings.HasSuffix(name, firstElementSuffix) {
			name = strings.TrimSuffix(name, firstElementSuffix)
			hops++
		}

		// An empty name with [] addresses the current value, unless the
		// current value is an object that really has an empty key.
		if name != "" || hops == 0 || cur.Kind() == KindObject {
			next, ok := readKey(cur, name)
			if !ok {
				return nil, false
			}
			cur = next
		}

		for ; hops > 0; hops-- {
			arr, ok := cur.(Array)
			if !ok || len(arr) == 0 {
				return nil, false
			}
			cur = arr[0]
		}
	}
	return cur, cur != nil
}

func readKey(v Value, key string) (Value, bool) {
	obj, ok := v.(*Object)
	if !ok {
		return nil, false
	}
	return obj.Get(key)
}

var typeAnnotation = regexp.MustCompile(`\s*\(.*?\)\s*$`)

// StripTypeAnnotation removes a trailing parenthetical, turning a discovery
// label such as "data.rates.USD (number)" back into a path.
func StripTypeAnnotation(label string) string {
	return typeAnnotation.ReplaceAllString(label, "")
}

// Annotate appends the type to a path the way Discover labels fields.
func Annotate(path string, t FieldType) string {
	return path + " (" + string(t) + ")"
}
