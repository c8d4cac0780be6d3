package widget

import (
	"errors"
	"fmt"
)

// Domain errors for the widget package.
//
//	if errors.Is(err, widget.ErrWidgetNotFound) {
//	    // handle not found case
//	}
var (
	// ErrWidgetNotFound is returned when a widget ID does not exist.
	ErrWidgetNotFound = errors.New("widget: not found")

	// ErrWidgetExists is returned when inserting a widget whose ID is taken.
	ErrWidgetExists = errors.New("widget: already exists")

	// ErrOrderMismatch is returned when a reorder does not list exactly the current widgets.
	ErrOrderMismatch = errors.New("widget: order does not match current widgets")

	// ErrTemplateNotFound is returned when applying an unknown template.
	ErrTemplateNotFound = errors.New("widget: template not found")
)

// Validation errors. They are wrapped in a *ValidationError naming the field.
var (
	ErrInvalidName            = errors.New("widget: invalid name")
	ErrInvalidAPIURL          = errors.New("widget: invalid API URL")
	ErrInvalidStreamURL       = errors.New("widget: invalid stream URL")
	ErrInvalidRefreshInterval = errors.New("widget: invalid refresh interval")
	ErrInvalidDisplayMode     = errors.New("widget: invalid display mode")
	ErrNoFieldsSelected       = errors.New("widget: no fields selected")
	ErrInvalidField           = errors.New("widget: invalid field path")
)

// Persistence errors.
var (
	// ErrInvalidDocument is returned when an imported document is malformed.
	// Nothing is applied when it is returned.
	ErrInvalidDocument = errors.New("widget: invalid dashboard document")

	// ErrIncompatibleVersion is returned when a saved document has a different version.
	ErrIncompatibleVersion = errors.New("widget: incompatible dashboard version")
)

// ValidationError reports user input that cannot be accepted.
// It never reaches the Store.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field string, sentinel error, format string, args ...any) error {
	err := sentinel
	if format != "" {
		err = fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...)
	}
	return &ValidationError{Field: field, Err: err}
}

func invalidf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...)
}
