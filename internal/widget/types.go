package widget

import (
	"time"

	"github.com/nerrad567/finboard-core/internal/fieldpath"
)

// DisplayMode selects how a widget renders its data.
type DisplayMode string

// Display modes.
const (
	DisplayCard  DisplayMode = "card"
	DisplayTable DisplayMode = "table"
	DisplayChart DisplayMode = "chart"
)

// AllDisplayModes returns every supported display mode.
func AllDisplayModes() []DisplayMode {
	return []DisplayMode{DisplayCard, DisplayTable, DisplayChart}
}

// DefaultRefreshInterval is used when a widget does not set one (seconds).
const DefaultRefreshInterval = 30

// Config is the persisted part of a widget.
type Config struct {
	ID              string      `json:"id,omitempty"`
	Name            string      `json:"name"`
	APIURL          string      `json:"apiUrl"`
	RefreshInterval int         `json:"refreshInterval"`
	DisplayMode     DisplayMode `json:"displayMode"`
	SelectedFields  []string    `json:"selectedFields"`
	UseWebSocket    bool        `json:"useWebSocket"`
	WSURL           string      `json:"wsUrl,omitempty"`
}

// Widget is a configured tile plus its latest acquisition result.
type Widget struct {
	Config

	// Data is the last successfully fetched document; nil until the first success.
	Data        fieldpath.Value `json:"data"`
	LastUpdated string          `json:"lastUpdated"`
	Loading     bool            `json:"loading"`
	Error       *string         `json:"error"`
}

// Copy returns a deep copy of the config.
func (c Config) Copy() Config {
	out := c
	if c.SelectedFields != nil {
		out.SelectedFields = make([]string, len(c.SelectedFields))
		copy(out.SelectedFields, c.SelectedFields)
	}
	return out
}

// DeepCopy returns a copy that shares no mutable state with w.
// Data is shared because parsed documents are never mutated.
func (w *Widget) DeepCopy() *Widget {
	if w == nil {
		return nil
	}
	out := *w
	out.Config = w.Config.Copy()
	if w.Error != nil {
		msg := *w.Error
		out.Error = &msg
	}
	return &out
}

// Patch is a partial update of widget configuration. Nil fields are left unchanged.
type Patch struct {
	Name            *string      `json:"name,omitempty"`
	APIURL          *string      `json:"apiUrl,omitempty"`
	RefreshInterval *int         `json:"refreshInterval,omitempty"`
	DisplayMode     *DisplayMode `json:"displayMode,omitempty"`
	SelectedFields  *[]string    `json:"selectedFields,omitempty"`
	UseWebSocket    *bool        `json:"useWebSocket,omitempty"`
	WSURL           *string      `json:"wsUrl,omitempty"`
}

// Apply merges p into c.
func (p Patch) Apply(c *Config) {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.APIURL != nil {
		c.APIURL = *p.APIURL
	}
	if p.RefreshInterval != nil {
		c.RefreshInterval = *p.RefreshInterval
	}
	if p.DisplayMode != nil {
		c.DisplayMode = *p.DisplayMode
	}
	if p.SelectedFields != nil {
		c.SelectedFields = append([]string(nil), (*p.SelectedFields)...)
	}
	if p.UseWebSocket != nil {
		c.UseWebSocket = *p.UseWebSocket
	}
	if p.WSURL != nil {
		c.WSURL = *p.WSURL
	}
}

// AcquisitionChanged reports whether the data source settings differ,
// which requires the acquisition session to be restarted.
func AcquisitionChanged(prev, next Config) bool {
	return prev.APIURL != next.APIURL ||
		prev.RefreshInterval != next.RefreshInterval ||
		prev.UseWebSocket != next.UseWebSocket ||
		prev.WSURL != next.WSURL
}

// ReportKind is the acquisition transition being reported.
type ReportKind int

// Acquisition transitions.
const (
	// ReportLoading marks a fetch in flight.
	ReportLoading ReportKind = iota

	// ReportSuccess sets data and lastUpdated, and clears loading and error.
	ReportSuccess

	// ReportFailure sets error and clears loading. Data is retained.
	ReportFailure

	// ReportIdle clears loading without touching data or error.
	ReportIdle
)

// Report carries one acquisition result into the store.
type Report struct {
	Kind ReportKind
	Data fieldpath.Value
	At   time.Time
	Err  string
}

// Loading returns a ReportLoading report.
func Loading() Report { return Report{Kind: ReportLoading} }

// Success returns a ReportSuccess report.
func Success(data fieldpath.Value, at time.Time) Report {
	return Report{Kind: ReportSuccess, Data: data, At: at}
}

// Failure returns a ReportFailure report.
func Failure(msg string) Report { return Report{Kind: ReportFailure, Err: msg} }

// Idle returns a ReportIdle report.
func Idle() Report { return Report{Kind: ReportIdle} }

// EventKind identifies a store change.
type EventKind string

// Store events.
const (
	EventCreated   EventKind = "widget.created"
	EventUpdated   EventKind = "widget.updated"
	EventReported  EventKind = "widget.reported"
	EventCorrected EventKind = "widget.corrected"
	EventRemoved   EventKind = "widget.removed"
)

// Event describes a completed store mutation.
type Event struct {
	Kind EventKind
	ID   string

	// Widget is the state after the change; nil for EventRemoved.
	Widget *Widget

	// Previous is the configuration before an EventUpdated.
	Previous *Config
}

// Listener receives store events. It runs on the mutating goroutine after
// the store lock is released, and may call back into the store.
type Listener func(Event)
