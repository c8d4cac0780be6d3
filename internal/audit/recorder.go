package audit

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/finboard-core/internal/widget"
)

// Logger is the logging interface used by Recorder.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Recorder turns widget store events into audit entries. HandleEvent only
// queues; Run writes the queue to the repository.
type Recorder struct {
	repo   Repository
	logger Logger
	now    func() time.Time

	mu      sync.Mutex
	pending []Entry
	wake    chan struct{}
}

// NewRecorder creates a recorder writing to repo.
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{
		repo:   repo,
		logger: noopLogger{},
		now:    time.Now,
		wake:   make(chan struct{}, 1),
	}
}

// SetLogger sets the logger.
func (r *Recorder) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// HandleEvent is a widget.Listener.
func (r *Recorder) HandleEvent(ev widget.Event) {
	e, ok := EntryFor(ev)
	if !ok {
		return
	}
	e.CreatedAt = r.now().UTC()

	r.mu.Lock()
	r.pending = append(r.pending, e)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run writes queued entries until ctx is cancelled, then flushes once more.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.Flush(context.WithoutCancel(ctx))
			return
		case <-r.wake:
			r.Flush(ctx)
		}
	}
}

// Flush writes everything queued so far and returns how many entries were
// stored. Entries that fail to store are logged and dropped.
func (r *Recorder) Flush(ctx context.Context) int {
	r.mu.Lock()
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()

	stored := 0
	for i := range pending {
		if err := r.repo.Create(ctx, &pending[i]); err != nil {
			r.logger.Warn("writing audit entry", "widget_id", pending[i].WidgetID, "action", pending[i].Action, "error", err)
			continue
		}
		stored++
	}
	return stored
}

// EntryFor describes ev as an audit entry. Data reports and updates that
// change nothing are not recorded.
func EntryFor(ev widget.Event) (Entry, bool) {
	e := Entry{WidgetID: ev.ID}
	if ev.Widget != nil {
		e.WidgetName = ev.Widget.Name
	}

	switch ev.Kind {
	case widget.EventCreated:
		if ev.Widget == nil {
			return Entry{}, false
		}
		e.Action = ActionCreated
		e.Details = map[string]any{
			"apiUrl":      ev.Widget.APIURL,
			"displayMode": string(ev.Widget.DisplayMode),
			"streaming":   ev.Widget.UseWebSocket,
		}
	case widget.EventUpdated:
		if ev.Widget == nil || ev.Previous == nil {
			return Entry{}, false
		}
		changed := ChangedFields(*ev.Previous, ev.Widget.Config)
		if len(changed) == 0 {
			return Entry{}, false
		}
		e.Action = ActionUpdated
		e.Details = map[string]any{"changed": changed}
	case widget.EventCorrected:
		if ev.Widget == nil {
			return Entry{}, false
		}
		e.Action = ActionCorrected
		e.Details = map[string]any{"streaming": ev.Widget.UseWebSocket}
	case widget.EventRemoved:
		e.Action = ActionRemoved
	default:
		return Entry{}, false
	}
	return e, true
}

// ChangedFields lists the JSON names of the fields that differ between
// prev and next.
func ChangedFields(prev, next widget.Config) []string {
	var out []string
	if prev.Name != next.Name {
		out = append(out, "name")
	}
	if prev.APIURL != next.APIURL {
		out = append(out, "apiUrl")
	}
	if prev.RefreshInterval != next.RefreshInterval {
		out = append(out, "refreshInterval")
	}
	if prev.DisplayMode != next.DisplayMode {
		out = append(out, "displayMode")
	}
	if !slices.Equal(prev.SelectedFields, next.SelectedFields) {
		out = append(out, "selectedFields")
	}
	if prev.UseWebSocket != next.UseWebSocket {
		out = append(out, "useWebSocket")
	}
	if prev.WSURL != next.WSURL {
		out = append(out, "wsUrl")
	}
	return out
}
