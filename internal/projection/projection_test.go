package projection

import (
	"strings"
	"testing"

	"github.com/nerrad567/finboard-core/internal/fieldpath"
	"github.com/nerrad567/finboard-core/internal/widget"
)

func mustParse(t *testing.T, doc string) fieldpath.Value {
	t.Helper()
	v, err := fieldpath.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse(%s) error = %v", doc, err)
	}
	return v
}

func testWidget(mode widget.DisplayMode, data fieldpath.Value, fields ...string) *widget.Widget {
	return &widget.Widget{
		Config: widget.Config{ID: "widget-1", Name: "Test", DisplayMode: mode, SelectedFields: fields},
		Data:   data,
	}
}

func TestCard(t *testing.T) {
	data := mustParse(t, `{"data":{"rates":{"USD":"64000.12","EUR":"59000"}},"items":[{"x":1}]}`)
	w := testWidget(widget.DisplayCard, data, "data.rates.USD (string)", "items[].x", "missing.path")

	entries, empty := Card(w)
	if empty != EmptyNone {
		t.Fatalf("Card() empty = %q", empty)
	}
	want := []struct {
		label string
		text  string
		found bool
	}{
		{"data.rates.USD", "64000.12", true},
		{"items[].x", "1", true},
		{"missing.path", "", false},
	}
	for i, w := range want {
		e := entries[i]
		if e.Label != w.label || e.Text != w.text || e.Found != w.found {
			t.Errorf("entries[%d] = {%q %q %v}, want {%q %q %v}", i, e.Label, e.Text, e.Found, w.label, w.text, w.found)
		}
	}
}

func TestCard_Empty(t *testing.T) {
	if _, empty := Card(testWidget(widget.DisplayCard, nil, "a")); empty != EmptyWaiting {
		t.Errorf("Card(no data) empty = %q, want %q", empty, EmptyWaiting)
	}
	data := mustParse(t, `{"a":1}`)
	if _, empty := Card(testWidget(widget.DisplayCard, data)); empty != EmptyNoFields {
		t.Errorf("Card(no fields) empty = %q, want %q", empty, EmptyNoFields)
	}
}

func TestBuildTable_RowSources(t *testing.T) {
	tests := []struct {
		name       string
		doc        string
		fields     []string
		wantSource RowSource
		wantField  string
		wantCols   []string
		wantTotal  int
	}{
		{
			name:       "array document",
			doc:        `[{"sym":"BTC","px":1},{"sym":"ETH","px":2}]`,
			fields:     []string{"sym"},
			wantSource: SourceArray,
			wantCols:   []string{"sym"},
			wantTotal:  2,
		},
		{
			name:       "first array field",
			doc:        `{"meta":{"n":3},"rows":[{"a":1},{"a":2},{"a":3}]}`,
			fields:     []string{"meta.n", "rows (array)"},
			wantSource: SourceField,
			wantField:  "rows",
			wantCols:   []string{"meta.n", "rows"},
			wantTotal:  3,
		},
		{
			name:       "object entries",
			doc:        `{"USD":1,"EUR":0.9}`,
			fields:     nil,
			wantSource: SourceEntries,
			wantCols:   []string{"key", "value"},
			wantTotal:  2,
		},
		{
			name:       "array rows without selection use first row keys",
			doc:        `[{"sym":"BTC","px":1}]`,
			wantSource: SourceArray,
			wantCols:   []string{"sym", "px"},
			wantTotal:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := testWidget(widget.DisplayTable, mustParse(t, tt.doc), tt.fields...)
			tbl, empty := BuildTable(w, TableOptions{})
			if empty != EmptyNone {
				t.Fatalf("BuildTable() empty = %q", empty)
			}
			if tbl.Source != tt.wantSource || tbl.Field != tt.wantField {
				t.Errorf("source = %q/%q, want %q/%q", tbl.Source, tbl.Field, tt.wantSource, tt.wantField)
			}
			if tbl.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", tbl.Total, tt.wantTotal)
			}
			if len(tbl.Columns) != len(tt.wantCols) {
				t.Fatalf("Columns = %+v, want %v", tbl.Columns, tt.wantCols)
			}
			for i, c := range tbl.Columns {
				if c.Key != tt.wantCols[i] {
					t.Errorf("Columns[%d] = %q, want %q", i, c.Key, tt.wantCols[i])
				}
			}
		})
	}
}

func TestBuildTable_SearchSortLimit(t *testing.T) {
	doc := `[
		{"sym":"ETH","px":"3"},{"sym":"BTC","px":"1"},{"sym":"SOL","px":"5"},
		{"sym":"ADA","px":"2"},{"sym":"DOT","px":"4"},{"sym":"XRP","px":"6"},
		{"sym":"LTC","px":"7"},{"sym":"BCH","px":"8"},{"sym":"XLM","px":"9"},
		{"sym":"TRX","px":"0"},{"sym":"UNI","px":"a"},{"sym":"AVAX","px":"b"}
	]`
	w := testWidget(widget.DisplayTable, mustParse(t, doc), "sym", "px")

	tbl, _ := BuildTable(w, TableOptions{})
	if tbl.Total != 12 || len(tbl.Rows) != DefaultTableLimit {
		t.Errorf("Total = %d, rows = %d, want 12, %d", tbl.Total, len(tbl.Rows), DefaultTableLimit)
	}

	tbl, _ = BuildTable(w, TableOptions{Search: "bt", SortKey: "sym"})
	if tbl.Total != 1 || tbl.Rows[0][0].Text != "BTC" {
		t.Errorf("search bt = %+v", tbl.Rows)
	}

	tbl, _ = BuildTable(w, TableOptions{SortKey: "sym", Limit: 3})
	got := []string{tbl.Rows[0][0].Text, tbl.Rows[1][0].Text, tbl.Rows[2][0].Text}
	want := []string{"ADA", "AVAX", "BCH"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("asc row %d = %q, want %q", i, got[i], want[i])
		}
	}

	tbl, _ = BuildTable(w, TableOptions{SortKey: "sym (string)", Descending: true, Limit: 1})
	if tbl.Rows[0][0].Text != "XRP" {
		t.Errorf("desc first = %q, want XRP", tbl.Rows[0][0].Text)
	}
}

func TestBuildTable_EntriesSearchIncludesKey(t *testing.T) {
	w := testWidget(widget.DisplayTable, mustParse(t, `{"USD":1,"EUR":0.9,"GBP":0.8}`))
	tbl, empty := BuildTable(w, TableOptions{Search: "eur"})
	if empty != EmptyNone || tbl.Total != 1 {
		t.Fatalf("BuildTable() = %+v, %q", tbl, empty)
	}
	if tbl.Rows[0][0].Text != "EUR" || tbl.Rows[0][1].Text != "0.9" {
		t.Errorf("row = %+v", tbl.Rows[0])
	}
}

func TestBuildTable_CellTruncation(t *testing.T) {
	doc := `[{"blob":{"k":"` + strings.Repeat("a", 60) + `"}}]`
	w := testWidget(widget.DisplayTable, mustParse(t, doc), "blob")
	tbl, _ := BuildTable(w, TableOptions{})
	if n := len([]rune(tbl.Rows[0][0].Text)); n != maxCellText {
		t.Errorf("cell length = %d, want %d", n, maxCellText)
	}
}

func TestBuildTable_Empty(t *testing.T) {
	tests := []struct {
		name   string
		data   fieldpath.Value
		fields []string
		want   EmptyReason
	}{
		{"no data", nil, []string{"a"}, EmptyWaiting},
		{"scalar with fields", fieldpath.Number("1"), []string{"a"}, EmptyUnsuitable},
		{"empty array no fields", fieldpath.Array{}, nil, EmptyNoFields},
		{"search excludes all", fieldpath.Array{fieldpath.String("x")}, []string{"a"}, EmptyUnsuitable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, empty := BuildTable(testWidget(widget.DisplayTable, tt.data, tt.fields...), TableOptions{Search: "zzz"})
			if empty != tt.want {
				t.Errorf("empty = %q, want %q", empty, tt.want)
			}
		})
	}
}

func TestBuildChart(t *testing.T) {
	doc := `[{"p":1.5,"v":"2.5kg"},{"p":"abc","v":true},{"p":null}]`
	w := testWidget(widget.DisplayChart, mustParse(t, doc), "p", "v")
	c, empty := BuildChart(w)
	if empty != EmptyNone {
		t.Fatalf("BuildChart() empty = %q", empty)
	}
	if len(c.Points) != 3 {
		t.Fatalf("len(Points) = %d, want 3", len(c.Points))
	}
	want := []map[string]float64{
		{"p": 1.5, "v": 2.5},
		{"p": 0, "v": 0},
		{"p": 0, "v": 0},
	}
	for i, p := range c.Points {
		if p.Index != i {
			t.Errorf("Points[%d].Index = %d", i, p.Index)
		}
		for k, v := range want[i] {
			if p.Values[k] != v {
				t.Errorf("Points[%d][%s] = %v, want %v", i, k, p.Values[k], v)
			}
		}
	}
}

func TestBuildChart_LimitsAndEmpty(t *testing.T) {
	items := make(fieldpath.Array, 80)
	for i := range items {
		items[i] = fieldpath.Number("1")
	}
	c, _ := BuildChart(testWidget(widget.DisplayChart, items, "x"))
	if len(c.Points) != MaxChartPoints {
		t.Errorf("len(Points) = %d, want %d", len(c.Points), MaxChartPoints)
	}

	if _, empty := BuildChart(testWidget(widget.DisplayChart, mustParse(t, `{"a":1}`), "a")); empty != EmptyUnsuitable {
		t.Errorf("object data empty = %q, want %q", empty, EmptyUnsuitable)
	}
	if _, empty := BuildChart(testWidget(widget.DisplayChart, items)); empty != EmptyNoFields {
		t.Errorf("no fields empty = %q, want %q", empty, EmptyNoFields)
	}
}

func TestToNumber(t *testing.T) {
	tests := []struct {
		in   fieldpath.Value
		want float64
	}{
		{fieldpath.Number("42"), 42},
		{fieldpath.Number("-1e3"), -1000},
		{fieldpath.String(" 3.25 USD"), 3.25},
		{fieldpath.String(".5"), 0.5},
		{fieldpath.String("USD 3"), 0},
		{fieldpath.Bool(true), 0},
		{fieldpath.Null{}, 0},
		{nil, 0},
	}
	for _, tt := range tests {
		if got := ToNumber(tt.in); got != tt.want {
			t.Errorf("ToNumber(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestProject(t *testing.T) {
	data := mustParse(t, `[{"a":1}]`)
	tests := []struct {
		mode  widget.DisplayMode
		check func(View) bool
	}{
		{widget.DisplayCard, func(v View) bool { return len(v.Card) == 1 }},
		{widget.DisplayTable, func(v View) bool { return v.Table != nil && v.Table.Total == 1 }},
		{widget.DisplayChart, func(v View) bool { return v.Chart != nil && len(v.Chart.Points) == 1 }},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			v := Project(testWidget(tt.mode, data, "a"), TableOptions{})
			if v.Mode != tt.mode || v.Empty != EmptyNone || !tt.check(v) {
				t.Errorf("Project() = %+v", v)
			}
		})
	}
}
