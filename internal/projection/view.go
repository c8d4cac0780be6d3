package projection

import (
	"github.com/nerrad567/finboard-core/internal/fieldpath"
	"github.com/nerrad567/finboard-core/internal/widget"
)

// EmptyReason explains why a projection has nothing to show.
type EmptyReason string

// Empty reasons.
const (
	EmptyNone       EmptyReason = ""
	EmptyWaiting    EmptyReason = "waiting"    // no data fetched yet
	EmptyNoFields   EmptyReason = "no_fields"  // nothing selected
	EmptyUnsuitable EmptyReason = "unsuitable" // data shape does not fit the mode
)

// View is the projection for a widget's display mode. Exactly one of
// Card, Table and Chart is set unless Empty is non-empty.
type View struct {
	ID    string             `json:"id"`
	Mode  widget.DisplayMode `json:"displayMode"`
	Empty EmptyReason        `json:"empty,omitempty"`
	Card  []CardEntry        `json:"card,omitempty"`
	Table *Table             `json:"table,omitempty"`
	Chart *Chart             `json:"chart,omitempty"`
}

// Project builds the view for w's display mode.
func Project(w *widget.Widget, opts TableOptions) View {
	v := View{ID: w.ID, Mode: w.DisplayMode}
	switch w.DisplayMode {
	case widget.DisplayTable:
		t, empty := BuildTable(w, opts)
		v.Empty = empty
		if empty == EmptyNone {
			v.Table = t
		}
	case widget.DisplayChart:
		c, empty := BuildChart(w)
		v.Empty = empty
		if empty == EmptyNone {
			v.Chart = c
		}
	default:
		entries, empty := Card(w)
		v.Empty = empty
		v.Card = entries
	}
	return v
}

// Label returns the display label of a selected field.
func Label(field string) string {
	return fieldpath.StripTypeAnnotation(field)
}
