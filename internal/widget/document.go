package widget

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Document is the exported dashboard layout. It carries configuration only.
type Document struct {
	Version     int      `json:"version"`
	ExportedAt  string   `json:"exportedAt,omitempty"`
	LastUpdated string   `json:"lastUpdated,omitempty"`
	Widgets     []Config `json:"widgets"`
}

//go:embed document.schema.json
var documentSchemaJSON string

var documentSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("document.json", strings.NewReader(documentSchemaJSON)); err != nil {
		return nil, err
	}
	return compiler.Compile("document.json")
})

// Export renders configs as an indented document. The output is identical
// for the same configs and time; a zero time omits exportedAt.
func Export(configs []Config, at time.Time) ([]byte, error) {
	doc := Document{
		Version: CurrentVersion,
		Widgets: make([]Config, 0, len(configs)),
	}
	if !at.IsZero() {
		doc.ExportedAt = at.UTC().Format(time.RFC3339)
	}
	for _, c := range configs {
		c = c.Copy()
		if c.SelectedFields == nil {
			c.SelectedFields = []string{}
		}
		doc.Widgets = append(doc.Widgets, c)
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding dashboard: %w", err)
	}
	return out, nil
}

// Import parses a document and returns its widget configs, normalised and
// validated. Any defect rejects the whole document with ErrInvalidDocument.
// The document version is not checked; see LoadDocument.
func Import(data []byte) ([]Config, error) {
	doc, err := decodeDocument(data)
	if err != nil {
		return nil, err
	}
	return doc.Widgets, nil
}

// LoadDocument parses a document saved by this version of the dashboard.
// Documents from any other version are rejected with ErrIncompatibleVersion.
func LoadDocument(data []byte) (*Document, error) {
	doc, err := decodeDocument(data)
	if err != nil {
		return nil, err
	}
	if doc.Version != CurrentVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrIncompatibleVersion, doc.Version, CurrentVersion)
	}
	return doc, nil
}

func decodeDocument(data []byte) (*Document, error) {
	schema, err := documentSchema()
	if err != nil {
		return nil, fmt.Errorf("compiling document schema: %w", err)
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	var doc Document
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	for i := range doc.Widgets {
		c := &doc.Widgets[i]
		Normalise(c)
		fillRefresh(c, DefaultRefreshInterval)
		if err := ValidateConfig(c); err != nil {
			return nil, fmt.Errorf("%w: widget %d: %v", ErrInvalidDocument, i, err)
		}
	}
	if doc.Widgets == nil {
		doc.Widgets = []Config{}
	}
	return &doc, nil
}
