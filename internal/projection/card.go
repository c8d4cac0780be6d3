package projection

import (
	"github.com/nerrad567/finboard-core/internal/fieldpath"
	"github.com/nerrad567/finboard-core/internal/widget"
)

// CardEntry is one labelled value on a card.
type CardEntry struct {
	Label string          `json:"label"`
	Path  string          `json:"path"`
	Value fieldpath.Value `json:"value"`
	Text  string          `json:"text"`
	Found bool            `json:"found"`
}

// Card resolves every selected field against the widget's data.
func Card(w *widget.Widget) ([]CardEntry, EmptyReason) {
	if w.Data == nil {
		return nil, EmptyWaiting
	}
	if len(w.SelectedFields) == 0 {
		return nil, EmptyNoFields
	}

	out := make([]CardEntry, 0, len(w.SelectedFields))
	for _, field := range w.SelectedFields {
		path := Label(field)
		v, ok := fieldpath.Resolve(w.Data, path)
		out = append(out, CardEntry{
			Label: path,
			Path:  path,
			Value: v,
			Text:  fieldpath.Text(v),
			Found: ok,
		})
	}
	return out, EmptyNone
}
