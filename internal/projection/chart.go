package projection

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/nerrad567/finboard-core/internal/fieldpath"
	"github.com/nerrad567/finboard-core/internal/widget"
)

// MaxChartPoints bounds the number of items plotted.
const MaxChartPoints = 50

// Point is one x position with a value per series.
type Point struct {
	Index  int                `json:"name"`
	Values map[string]float64 `json:"values"`
}

// Chart is a projected line chart. Series are the selected fields.
type Chart struct {
	Series []string `json:"series"`
	Points []Point  `json:"points"`
}

var leadingFloat = regexp.MustCompile(`^\s*[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?`)

// BuildChart plots the first MaxChartPoints items of an array document.
// Numbers are used as-is, strings are parsed from their numeric prefix and
// anything else plots as zero.
func BuildChart(w *widget.Widget) (*Chart, EmptyReason) {
	if w.Data == nil {
		return nil, EmptyWaiting
	}
	if len(w.SelectedFields) == 0 {
		return nil, EmptyNoFields
	}
	items, ok := w.Data.(fieldpath.Array)
	if !ok || len(items) == 0 {
		return nil, EmptyUnsuitable
	}
	if len(items) > MaxChartPoints {
		items = items[:MaxChartPoints]
	}

	c := &Chart{
		Series: append([]string(nil), w.SelectedFields...),
		Points: make([]Point, 0, len(items)),
	}
	for i, item := range items {
		p := Point{Index: i, Values: make(map[string]float64, len(w.SelectedFields))}
		for _, field := range w.SelectedFields {
			v, _ := fieldpath.Resolve(item, Label(field))
			p.Values[field] = ToNumber(v)
		}
		c.Points = append(c.Points, p)
	}
	return c, EmptyNone
}

// ToNumber coerces v for plotting.
func ToNumber(v fieldpath.Value) float64 {
	switch x := v.(type) {
	case fieldpath.Number:
		f, err := x.Float()
		if err != nil {
			return 0
		}
		return f
	case fieldpath.String:
		m := leadingFloat.FindString(string(x))
		if m == "" {
			return 0
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(m), 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}
