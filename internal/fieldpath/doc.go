// Package fieldpath addresses values inside arbitrary JSON documents.
//
// Widgets are wired to APIs whose response shapes are unknown ahead of time,
// so nothing here relies on a schema. A document is parsed into a closed sum
// type (Value) that keeps object keys in source order. Flatten and Discover
// turn a document into selectable paths; Resolve walks a path back to a value.
//
// # Paths
//
// A path is a dot-separated list of object keys. A segment ending in "[]"
// reads the key and then takes element 0 of the array found there:
//
//	data.rates.USD      -> doc["data"]["rates"]["USD"]
//	items[].price       -> doc["items"][0]["price"]
//
// Resolve never fails. A missing key, a non-array under "[]" or an empty
// array all yield (nil, false), which callers render as a placeholder.
//
// # Labels
//
// Discover appends the value type to every path, e.g. "data.rates.USD (number)".
// StripTypeAnnotation removes that suffix before a path is shown or resolved.
package fieldpath
