package projection

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/nerrad567/finboard-core/internal/fieldpath"
	"github.com/nerrad567/finboard-core/internal/widget"
)

const (
	// DefaultTableLimit is the number of rows shown when no limit is given.
	DefaultTableLimit = 10

	maxCellText = 50
)

// TableOptions controls row filtering and ordering.
type TableOptions struct {
	Search     string
	SortKey    string
	Descending bool
	Limit      int
}

// RowSource records where table rows came from.
type RowSource string

// Row sources, in order of preference.
const (
	SourceArray   RowSource = "array"   // the document is an array
	SourceField   RowSource = "field"   // the first selected field holding an array
	SourceEntries RowSource = "entries" // the document's key/value pairs
)

// Column is a table column.
type Column struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Cell is one table cell.
type Cell struct {
	Value fieldpath.Value `json:"value"`
	Text  string          `json:"text"`
}

// Table is a projected table.
type Table struct {
	Source  RowSource `json:"source"`
	Field   string    `json:"field,omitempty"`
	Columns []Column  `json:"columns"`
	Rows    [][]Cell  `json:"rows"`
	Total   int       `json:"total"`
}

// BuildTable projects w's data as rows.
//
// Rows come from the document itself when it is an array, else from the
// first selected field that resolves to an array, else from the document's
// key/value pairs. Search matches the row's JSON case-insensitively; sort
// compares the text of SortKey. Total counts matching rows before the limit.
func BuildTable(w *widget.Widget, opts TableOptions) (*Table, EmptyReason) {
	if w.Data == nil {
		return nil, EmptyWaiting
	}

	rows, source, field := tableRows(w)
	if rows == nil {
		return nil, emptyReason(w)
	}

	term := strings.ToLower(strings.TrimSpace(opts.Search))
	if term != "" {
		filtered := rows[:0:0]
		for _, r := range rows {
			if strings.Contains(strings.ToLower(searchText(r, source)), term) {
				filtered = append(filtered, r)
			}
		}
		rows = filtered
	}
	if len(rows) == 0 {
		return nil, emptyReason(w)
	}

	if key := Label(opts.SortKey); key != "" {
		sortRows(rows, key, opts.Descending)
	}

	t := &Table{
		Source:  source,
		Field:   field,
		Columns: columns(w, rows[0]),
		Total:   len(rows),
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultTableLimit
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}

	t.Rows = make([][]Cell, 0, len(rows))
	for _, r := range rows {
		cells := make([]Cell, 0, len(t.Columns))
		for _, c := range t.Columns {
			v, _ := fieldpath.Resolve(r, c.Key)
			cells = append(cells, Cell{Value: v, Text: cellText(v)})
		}
		t.Rows = append(t.Rows, cells)
	}
	return t, EmptyNone
}

func tableRows(w *widget.Widget) ([]fieldpath.Value, RowSource, string) {
	switch data := w.Data.(type) {
	case fieldpath.Array:
		return append([]fieldpath.Value(nil), data...), SourceArray, ""
	case *fieldpath.Object:
		for _, f := range w.SelectedFields {
			path := Label(f)
			if v, ok := fieldpath.Resolve(data, path); ok {
				if arr, isArr := v.(fieldpath.Array); isArr {
					return append([]fieldpath.Value(nil), arr...), SourceField, path
				}
			}
		}
		if data.Len() == 0 {
			return nil, SourceEntries, ""
		}
		rows := make([]fieldpath.Value, 0, data.Len())
		for _, k := range data.Keys() {
			v, _ := data.Get(k)
			row := fieldpath.NewObject()
			row.Set("key", fieldpath.String(k))
			row.Set("value", v)
			rows = append(rows, row)
		}
		return rows, SourceEntries, ""
	}
	return nil, "", ""
}

func emptyReason(w *widget.Widget) EmptyReason {
	if len(w.SelectedFields) == 0 {
		return EmptyNoFields
	}
	return EmptyUnsuitable
}

func searchText(row fieldpath.Value, source RowSource) string {
	if source == SourceEntries {
		if obj, ok := row.(*fieldpath.Object); ok {
			k, _ := obj.Get("key")
			v, _ := obj.Get("value")
			return fieldpath.Text(k) + " " + jsonText(v)
		}
	}
	return jsonText(row)
}

func jsonText(v fieldpath.Value) string {
	if v == nil {
		return "null"
	}
	b, err := v.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(b)
}

func sortRows(rows []fieldpath.Value, key string, desc bool) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, _ := fieldpath.Resolve(rows[i], key)
		b, _ := fieldpath.Resolve(rows[j], key)
		if desc {
			return fieldpath.Text(a) > fieldpath.Text(b)
		}
		return fieldpath.Text(a) < fieldpath.Text(b)
	})
}

// columns prefers the selected fields, then the first row's keys.
func columns(w *widget.Widget, first fieldpath.Value) []Column {
	var keys []string
	if len(w.SelectedFields) > 0 {
		keys = w.SelectedFields
	} else if obj, ok := first.(*fieldpath.Object); ok {
		keys = obj.Keys()
	}

	out := make([]Column, 0, len(keys))
	for _, k := range keys {
		label := Label(k)
		out = append(out, Column{Key: label, Label: label})
	}
	return out
}

// cellText renders a cell; objects and arrays are cut to maxCellText runes.
func cellText(v fieldpath.Value) string {
	switch v.(type) {
	case *fieldpath.Object, fieldpath.Array:
		s := fieldpath.Text(v)
		if utf8.RuneCountInString(s) > maxCellText {
			return string([]rune(s)[:maxCellText])
		}
		return s
	}
	return fieldpath.Text(v)
}
