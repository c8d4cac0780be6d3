package widget

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestExport_StableAndOrdered(t *testing.T) {
	cfgs := []Config{testConfig("widget-1", "Alpha"), testConfig("widget-2", "Beta")}
	at := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

	first, err := Export(cfgs, at)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	second, err := Export(cfgs, at)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("Export() output differs for identical input")
	}

	s := string(first)
	iv := strings.Index(s, `"version": 1`)
	ie := strings.Index(s, `"exportedAt": "2026-10-17T09:00:00Z"`)
	iw := strings.Index(s, `"widgets": [`)
	if iv < 0 || ie < 0 || iw < 0 || !(iv < ie && ie < iw) {
		t.Errorf("Export() key order wrong:\n%s", s)
	}
	if !strings.Contains(s, "\n  \"widgets\"") {
		t.Errorf("Export() not indented by two spaces:\n%s", s)
	}
}

func TestExport_ZeroTimeOmitsExportedAt(t *testing.T) {
	out, err := Export(nil, time.Time{})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if strings.Contains(string(out), "exportedAt") {
		t.Errorf("Export() with zero time = %s", out)
	}
	if !strings.Contains(string(out), `"widgets": []`) {
		t.Errorf("Export(nil) widgets not an empty list: %s", out)
	}
}

// Importing an export reproduces the configuration.
func TestExportImport_RoundTrip(t *testing.T) {
	a := testConfig("widget-1", "Alpha")
	b := testConfig("widget-2", "Beta")
	b.UseWebSocket = true
	b.WSURL = "wss://stream.test.local"
	b.SelectedFields = []string{"items[]", "meta.count"}
	b.DisplayMode = DisplayChart

	out, err := Export([]Config{a, b}, time.Now())
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	got, err := Import(out)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(Import()) = %d, want 2", len(got))
	}
	for i, want := range []Config{a, b} {
		g := got[i]
		if g.ID != want.ID || g.Name != want.Name || g.APIURL != want.APIURL ||
			g.RefreshInterval != want.RefreshInterval || g.DisplayMode != want.DisplayMode ||
			g.UseWebSocket != want.UseWebSocket || g.WSURL != want.WSURL ||
			strings.Join(g.SelectedFields, ",") != strings.Join(want.SelectedFields, ",") {
			t.Errorf("Import()[%d] = %+v, want %+v", i, g, want)
		}
	}
}

func TestImport_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{"widgets": [`},
		{"missing widgets", `{"version": 1}`},
		{"widgets not a list", `{"version": 1, "widgets": {"a": 1}}`},
		{"widget missing name", `{"widgets": [{"apiUrl": "https://x.test"}]}`},
		{"bad display mode", `{"widgets": [{"name": "a", "apiUrl": "https://x.test", "displayMode": "pie"}]}`},
		{"bad api url", `{"widgets": [{"name": "a", "apiUrl": "mailto:x"}]}`},
		{"root array", `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Import([]byte(tt.doc))
			if !errors.Is(err, ErrInvalidDocument) {
				t.Errorf("Import() error = %v, want ErrInvalidDocument", err)
			}
			if got != nil {
				t.Errorf("Import() = %v, want nil", got)
			}
		})
	}
}

func TestImport_DefaultsAndLenience(t *testing.T) {
	doc := `{
		"widgets": [
			{"name": "Bare", "apiUrl": "https://x.test/a"},
			{"name": "Bad stream", "apiUrl": "https://x.test/b", "useWebSocket": true, "wsUrl": "nope"}
		]
	}`
	got, err := Import([]byte(doc))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if got[0].RefreshInterval != DefaultRefreshInterval || got[0].DisplayMode != DisplayCard {
		t.Errorf("defaults not applied: %+v", got[0])
	}
	if got[0].SelectedFields == nil {
		t.Error("SelectedFields = nil, want empty list")
	}
	if !got[1].UseWebSocket || got[1].WSURL != "nope" {
		t.Errorf("stream settings altered on import: %+v", got[1])
	}
}

func TestImport_IgnoresVersion(t *testing.T) {
	doc := `{"version": 7, "widgets": [{"name": "a", "apiUrl": "https://x.test"}]}`
	if _, err := Import([]byte(doc)); err != nil {
		t.Errorf("Import() error = %v, want nil", err)
	}
}

func TestLoadDocument(t *testing.T) {
	ok := `{"version": 1, "lastUpdated": "2026-10-17T09:00:00Z", "widgets": []}`
	doc, err := LoadDocument([]byte(ok))
	if err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}
	if doc.LastUpdated != "2026-10-17T09:00:00Z" || len(doc.Widgets) != 0 {
		t.Errorf("LoadDocument() = %+v", doc)
	}

	old := `{"version": 0, "widgets": []}`
	if _, err := LoadDocument([]byte(old)); !errors.Is(err, ErrIncompatibleVersion) {
		t.Errorf("LoadDocument(old) error = %v, want ErrIncompatibleVersion", err)
	}
}
