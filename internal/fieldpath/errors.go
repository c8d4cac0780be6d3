package fieldpath

import "errors"

// Domain-specific errors for document parsing.
var (
	// ErrInvalidJSON is returned when a payload is not well-formed JSON.
	ErrInvalidJSON = errors.New("fieldpath: invalid JSON document")

	// ErrTooDeep is returned when a document nests deeper than MaxParseDepth.
	ErrTooDeep = errors.New("fieldpath: document nested too deeply")
)
