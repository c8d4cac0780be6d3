package widget

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Store is the single owner of the dashboard's widgets.
//
// Configuration changes are persisted through the Repository before they
// become visible. Acquisition results (Report) are held in memory only.
// Readers always receive deep copies.
//
// All public methods are thread-safe.
type Store struct {
	repo Repository

	mu       sync.RWMutex // Protects order, widgets, template
	order    []string
	widgets  map[string]*Widget
	template string

	listenersMu sync.RWMutex
	listeners   []Listener

	defaultRefresh int
	now            func() time.Time
	logger         Logger
}

// NewStore creates an empty store backed by repo. Call Load to rehydrate it.
func NewStore(repo Repository) *Store {
	return &Store{
		repo:           repo,
		widgets:        make(map[string]*Widget),
		defaultRefresh: DefaultRefreshInterval,
		now:            time.Now,
		logger:         noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// SetDefaultRefreshInterval sets the interval (seconds) given to widgets that omit one.
func (s *Store) SetDefaultRefreshInterval(seconds int) {
	if seconds > 0 {
		s.defaultRefresh = seconds
	}
}

// Subscribe registers a listener for store events.
func (s *Store) Subscribe(l Listener) {
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, l)
	s.listenersMu.Unlock()
}

// Load replaces the in-memory collection with the persisted one.
// Transient fields start empty. A dashboard saved under a different
// version is discarded and the database cleared.
func (s *Store) Load(ctx context.Context) error {
	state, err := s.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading dashboard: %w", err)
	}

	if state.Version != 0 && state.Version != CurrentVersion {
		s.logger.Warn("discarding dashboard with incompatible version",
			"version", state.Version,
			"expected", CurrentVersion,
			"widgets", len(state.Widgets),
		)
		if err := s.repo.ReplaceAll(ctx, nil, ""); err != nil {
			return fmt.Errorf("clearing incompatible dashboard: %w", err)
		}
		state = &State{}
	}

	s.mu.Lock()
	s.order = make([]string, 0, len(state.Widgets))
	s.widgets = make(map[string]*Widget, len(state.Widgets))
	for _, cfg := range state.Widgets {
		s.order = append(s.order, cfg.ID)
		s.widgets[cfg.ID] = &Widget{Config: cfg.Copy()}
	}
	s.template = state.CurrentTemplate
	count := len(s.order)
	s.mu.Unlock()

	s.logger.Info("dashboard loaded", "widgets", count, "template", state.CurrentTemplate)
	return nil
}

// Create validates cfg, assigns a fresh ID and adds the widget to the end of the dashboard.
// Any ID on cfg is ignored.
func (s *Store) Create(ctx context.Context, cfg Config) (*Widget, error) {
	cfg = cfg.Copy()
	Normalise(&cfg)
	if cfg.UseWebSocket {
		fillRefresh(&cfg, s.defaultRefresh)
	}
	if err := ValidateNew(&cfg); err != nil {
		return nil, err
	}

	s.mu.Lock()
	cfg.ID = s.newIDLocked(nil)
	if err := s.repo.Insert(ctx, cfg); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("creating widget: %w", err)
	}
	w := &Widget{Config: cfg}
	s.widgets[cfg.ID] = w
	s.order = append(s.order, cfg.ID)
	out := w.DeepCopy()
	s.mu.Unlock()

	s.logger.Info("widget created", "id", cfg.ID, "name", cfg.Name, "streaming", cfg.UseWebSocket)
	s.emit(Event{Kind: EventCreated, ID: cfg.ID, Widget: out.DeepCopy()})
	return out, nil
}

// List returns every widget in display order.
func (s *Store) List() []Widget {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Widget, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.widgets[id].DeepCopy())
	}
	return out
}

// Configs returns the configuration of every widget in display order.
func (s *Store) Configs() []Config {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Config, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.widgets[id].Config.Copy())
	}
	return out
}

// Get returns a widget by ID, or ErrWidgetNotFound.
func (s *Store) Get(id string) (*Widget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.widgets[id]
	if !ok {
		return nil, ErrWidgetNotFound
	}
	return w.DeepCopy(), nil
}

// Count returns the number of widgets.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// CurrentTemplate returns the ID of the template the dashboard was built
// from, or "" when it was not built from one.
func (s *Store) CurrentTemplate() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.template
}

// Update merges p into the widget's configuration.
// Transient fields are untouched; listeners use AcquisitionChanged on the
// event to decide whether acquisition must restart.
func (s *Store) Update(ctx context.Context, id string, p Patch) (*Widget, error) {
	s.mu.Lock()
	w, ok := s.widgets[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrWidgetNotFound
	}

	prev := w.Config.Copy()
	next := prev.Copy()
	p.Apply(&next)
	next.ID = id
	Normalise(&next)
	if next.UseWebSocket {
		fillRefresh(&next, s.defaultRefresh)
	}

	if err := ValidateConfig(&next); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if next.UseWebSocket && (p.UseWebSocket != nil || p.WSURL != nil) && !IsStreamURL(next.WSURL) {
		s.mu.Unlock()
		return nil, invalid("wsUrl", ErrInvalidStreamURL, "%q is not a ws:// or wss:// URL", next.WSURL)
	}

	if err := s.repo.Update(ctx, next); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("updating widget: %w", err)
	}
	w.Config = next
	out := w.DeepCopy()
	s.mu.Unlock()

	s.logger.Info("widget updated", "id", id, "name", next.Name)
	s.emit(Event{Kind: EventUpdated, ID: id, Widget: out.DeepCopy(), Previous: &prev})
	return out, nil
}

// Report applies one acquisition result. It is not persisted.
// Results are applied in arrival order.
func (s *Store) Report(id string, r Report) error {
	s.mu.Lock()
	w, ok := s.widgets[id]
	if !ok {
		s.mu.Unlock()
		return ErrWidgetNotFound
	}

	switch r.Kind {
	case ReportLoading:
		w.Loading = true
	case ReportSuccess:
		at := r.At
		if at.IsZero() {
			at = s.now()
		}
		w.Data = r.Data
		w.LastUpdated = at.UTC().Format(time.RFC3339)
		w.Loading = false
		w.Error = nil
	case ReportFailure:
		msg := r.Err
		w.Error = &msg
		w.Loading = false
	case ReportIdle:
		w.Loading = false
	}
	out := w.DeepCopy()
	s.mu.Unlock()

	s.emit(Event{Kind: EventReported, ID: id, Widget: out})
	return nil
}

// DisableStreaming switches a widget to polling and persists the change.
// It is a silent correction: nothing is recorded on the widget's error.
func (s *Store) DisableStreaming(ctx context.Context, id string) error {
	s.mu.Lock()
	w, ok := s.widgets[id]
	if !ok {
		s.mu.Unlock()
		return ErrWidgetNotFound
	}
	if !w.UseWebSocket {
		s.mu.Unlock()
		return nil
	}

	next := w.Config.Copy()
	next.UseWebSocket = false
	fillRefresh(&next, s.defaultRefresh)
	if err := s.repo.Update(ctx, next); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("disabling streaming: %w", err)
	}
	w.Config = next
	out := w.DeepCopy()
	s.mu.Unlock()

	s.logger.Info("streaming disabled", "id", id, "ws_url", next.WSURL)
	s.emit(Event{Kind: EventCorrected, ID: id, Widget: out})
	return nil
}

// Remove deletes a widget. Listeners have run by the time Remove returns.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.widgets[id]; !ok {
		s.mu.Unlock()
		return ErrWidgetNotFound
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("removing widget: %w", err)
	}
	delete(s.widgets, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.logger.Info("widget removed", "id", id)
	s.emit(Event{Kind: EventRemoved, ID: id})
	return nil
}

// Reorder sets the display order. ids must name every widget exactly once.
func (s *Store) Reorder(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(ids) != len(s.order) {
		return ErrOrderMismatch
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := s.widgets[id]; !ok {
			return fmt.Errorf("%w: unknown widget %q", ErrOrderMismatch, id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate widget %q", ErrOrderMismatch, id)
		}
		seen[id] = struct{}{}
	}

	if err := s.repo.SaveOrder(ctx, ids); err != nil {
		return fmt.Errorf("reordering widgets: %w", err)
	}
	s.order = append([]string(nil), ids...)
	s.logger.Debug("widgets reordered", "count", len(ids))
	return nil
}

// ClearAll removes every widget and forgets the current template.
func (s *Store) ClearAll(ctx context.Context) error {
	removed, _, err := s.replace(ctx, nil, "", false)
	if err != nil {
		return fmt.Errorf("clearing widgets: %w", err)
	}
	s.logger.Info("dashboard cleared", "removed", len(removed))
	return nil
}

// Replace swaps the whole collection for cfgs, as an import does.
// Every entry is validated first; on any error nothing changes.
// IDs on cfgs are kept when present and unique.
func (s *Store) Replace(ctx context.Context, cfgs []Config) error {
	removed, created, err := s.replace(ctx, cfgs, "", true)
	if err != nil {
		return err
	}
	s.logger.Info("dashboard replaced", "removed", len(removed), "created", len(created))
	return nil
}

// ApplyTemplate replaces the dashboard with a built-in template's widgets.
func (s *Store) ApplyTemplate(ctx context.Context, templateID string) error {
	t, ok := FindTemplate(templateID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrTemplateNotFound, templateID)
	}
	_, created, err := s.replace(ctx, t.Configs(), t.ID, false)
	if err != nil {
		return fmt.Errorf("applying template %s: %w", t.ID, err)
	}
	s.logger.Info("template applied", "template", t.ID, "widgets", len(created))
	return nil
}

// replace validates cfgs, swaps them in and emits removal then creation events.
func (s *Store) replace(ctx context.Context, cfgs []Config, template string, keepIDs bool) ([]string, []*Widget, error) {
	prepared := make([]Config, 0, len(cfgs))
	for i, cfg := range cfgs {
		cfg = cfg.Copy()
		Normalise(&cfg)
		fillRefresh(&cfg, s.defaultRefresh)
		if err := ValidateConfig(&cfg); err != nil {
			return nil, nil, fmt.Errorf("widget %d: %w", i, err)
		}
		prepared = append(prepared, cfg)
	}

	s.mu.Lock()
	taken := make(map[string]struct{}, len(prepared))
	for i := range prepared {
		id := prepared[i].ID
		if _, dup := taken[id]; !keepIDs || id == "" || dup {
			id = s.newIDLocked(taken)
		}
		prepared[i].ID = id
		taken[id] = struct{}{}
	}

	if err := s.repo.ReplaceAll(ctx, prepared, template); err != nil {
		s.mu.Unlock()
		return nil, nil, err
	}

	removed := s.order
	s.order = make([]string, 0, len(prepared))
	s.widgets = make(map[string]*Widget, len(prepared))
	created := make([]*Widget, 0, len(prepared))
	for _, cfg := range prepared {
		w := &Widget{Config: cfg}
		s.order = append(s.order, cfg.ID)
		s.widgets[cfg.ID] = w
		created = append(created, w.DeepCopy())
	}
	s.template = template
	s.mu.Unlock()

	events := make([]Event, 0, len(removed)+len(created))
	for _, id := range removed {
		events = append(events, Event{Kind: EventRemoved, ID: id})
	}
	for _, w := range created {
		events = append(events, Event{Kind: EventCreated, ID: w.ID, Widget: w})
	}
	s.emit(events...)
	return removed, created, nil
}

// newIDLocked returns an ID unused by the store and by taken.
// Caller must hold s.mu.
func (s *Store) newIDLocked(taken map[string]struct{}) string {
	for {
		id := GenerateID(s.now())
		if _, ok := s.widgets[id]; ok {
			continue
		}
		if _, ok := taken[id]; ok {
			continue
		}
		return id
	}
}

// emit delivers events to every listener. Caller must not hold s.mu.
func (s *Store) emit(events ...Event) {
	s.listenersMu.RLock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.listenersMu.RUnlock()

	for _, ev := range events {
		for _, l := range listeners {
			l(ev)
		}
	}
}
