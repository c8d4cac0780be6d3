package widget

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/finboard-core/internal/fieldpath"
)

// MockRepository is a test implementation of Repository.
type MockRepository struct {
	mu       sync.Mutex
	state    State
	writes   int
	writeErr error
	loadErr  error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{}
}

func (m *MockRepository) Load(_ context.Context) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	st := m.state
	st.Widgets = append([]Config(nil), m.state.Widgets...)
	return &st, nil
}

func (m *MockRepository) write() error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writes++
	m.state.Version = CurrentVersion
	return nil
}

func (m *MockRepository) Insert(_ context.Context, cfg Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write(); err != nil {
		return err
	}
	m.state.Widgets = append(m.state.Widgets, cfg.Copy())
	return nil
}

func (m *MockRepository) Update(_ context.Context, cfg Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write(); err != nil {
		return err
	}
	for i := range m.state.Widgets {
		if m.state.Widgets[i].ID == cfg.ID {
			m.state.Widgets[i] = cfg.Copy()
			return nil
		}
	}
	return ErrWidgetNotFound
}

func (m *MockRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write(); err != nil {
		return err
	}
	for i := range m.state.Widgets {
		if m.state.Widgets[i].ID == id {
			m.state.Widgets = append(m.state.Widgets[:i], m.state.Widgets[i+1:]...)
			return nil
		}
	}
	return ErrWidgetNotFound
}

func (m *MockRepository) SaveOrder(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write(); err != nil {
		return err
	}
	byID := make(map[string]Config, len(m.state.Widgets))
	for _, c := range m.state.Widgets {
		byID[c.ID] = c
	}
	m.state.Widgets = m.state.Widgets[:0]
	for _, id := range ids {
		m.state.Widgets = append(m.state.Widgets, byID[id])
	}
	return nil
}

func (m *MockRepository) ReplaceAll(_ context.Context, cfgs []Config, template string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write(); err != nil {
		return err
	}
	m.state.Widgets = append([]Config(nil), cfgs...)
	m.state.CurrentTemplate = template
	return nil
}

func (m *MockRepository) SetTemplate(_ context.Context, template string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write(); err != nil {
		return err
	}
	m.state.CurrentTemplate = template
	return nil
}

// eventRecorder collects store events.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) listen(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func newTestStore(t *testing.T) (*Store, *MockRepository, *eventRecorder) {
	t.Helper()
	repo := NewMockRepository()
	s := NewStore(repo)
	rec := &eventRecorder{}
	s.Subscribe(rec.listen)
	return s, repo, rec
}

func validNew() Config {
	return Config{
		Name:            "BTC",
		APIURL:          "https://api.coinbase.com/v2/exchange-rates?currency=BTC",
		RefreshInterval: 60,
		DisplayMode:     DisplayCard,
		SelectedFields:  []string{"data.rates.USD"},
	}
}

var idPattern = regexp.MustCompile(`^widget-\d+-[0-9a-z]{7}$`)

func TestStore_Create(t *testing.T) {
	s, repo, rec := newTestStore(t)

	w, err := s.Create(context.Background(), validNew())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !idPattern.MatchString(w.ID) {
		t.Errorf("ID = %q, want widget-<ms>-<base36>", w.ID)
	}
	if w.Data != nil || w.Loading || w.Error != nil || w.LastUpdated != "" {
		t.Errorf("transient fields not empty: %+v", w)
	}
	if s.Count() != 1 || len(repo.state.Widgets) != 1 {
		t.Errorf("Count() = %d, persisted = %d, want 1", s.Count(), len(repo.state.Widgets))
	}
	if got := rec.kinds(); len(got) != 1 || got[0] != EventCreated {
		t.Errorf("events = %v, want [%s]", got, EventCreated)
	}
}

func TestStore_CreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
		want   error
	}{
		{"empty name", func(c *Config) { c.Name = "  " }, "name", ErrInvalidName},
		{"bad url", func(c *Config) { c.APIURL = "ftp://x" }, "apiUrl", ErrInvalidAPIURL},
		{"no fields", func(c *Config) { c.SelectedFields = nil }, "selectedFields", ErrNoFieldsSelected},
		{"zero interval polling", func(c *Config) { c.RefreshInterval = 0 }, "refreshInterval", ErrInvalidRefreshInterval},
		{"bad mode", func(c *Config) { c.DisplayMode = "pie" }, "displayMode", ErrInvalidDisplayMode},
		{"stream without ws url", func(c *Config) {
			c.UseWebSocket = true
			c.WSURL = "https://not-a-socket"
		}, "wsUrl", ErrInvalidStreamURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, repo, rec := newTestStore(t)
			cfg := validNew()
			tt.mutate(&cfg)

			_, err := s.Create(context.Background(), cfg)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Create() error = %v, want %v", err, tt.want)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Errorf("ValidationError.Field = %v, want %q", ve, tt.field)
			}
			if repo.writes != 0 || len(rec.kinds()) != 0 {
				t.Error("validation failure touched the store")
			}
		})
	}
}

func TestStore_CreateStreamingDefaultsInterval(t *testing.T) {
	s, _, _ := newTestStore(t)
	cfg := validNew()
	cfg.RefreshInterval = 0
	cfg.UseWebSocket = true
	cfg.WSURL = "wss://stream.test.local/btc"

	w, err := s.Create(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if w.RefreshInterval != DefaultRefreshInterval {
		t.Errorf("RefreshInterval = %d, want %d", w.RefreshInterval, DefaultRefreshInterval)
	}
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s, _, _ := newTestStore(t)
	w, err := s.Create(context.Background(), validNew())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := s.Get(w.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got.SelectedFields[0] = "mutated"
	got.Name = "mutated"

	again, _ := s.Get(w.ID) //nolint:errcheck // exists
	if again.Name != "BTC" || again.SelectedFields[0] != "data.rates.USD" {
		t.Errorf("Get() shares state with caller: %+v", again)
	}

	if _, err := s.Get("nope"); !errors.Is(err, ErrWidgetNotFound) {
		t.Errorf("Get(nope) error = %v, want ErrWidgetNotFound", err)
	}
}

func TestStore_Update(t *testing.T) {
	s, _, rec := newTestStore(t)
	w, err := s.Create(context.Background(), validNew())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	name := "Bitcoin"
	interval := 120
	got, err := s.Update(context.Background(), w.ID, Patch{Name: &name, RefreshInterval: &interval})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got.Name != "Bitcoin" || got.RefreshInterval != 120 || got.APIURL != w.APIURL {
		t.Errorf("Update() = %+v", got)
	}

	rec.mu.Lock()
	last := rec.events[len(rec.events)-1]
	rec.mu.Unlock()
	if last.Kind != EventUpdated || last.Previous == nil || last.Previous.RefreshInterval != 60 {
		t.Fatalf("last event = %+v, want widget.updated with previous", last)
	}
	if !AcquisitionChanged(*last.Previous, last.Widget.Config) {
		t.Error("AcquisitionChanged() = false after interval change")
	}

	if _, err := s.Update(context.Background(), "missing", Patch{Name: &name}); !errors.Is(err, ErrWidgetNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrWidgetNotFound", err)
	}

	empty := ""
	if _, err := s.Update(context.Background(), w.ID, Patch{Name: &empty}); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Update(empty name) error = %v, want ErrInvalidName", err)
	}
}

func TestAcquisitionChanged(t *testing.T) {
	base := validNew()
	tests := []struct {
		name   string
		mutate func(*Config)
		want   bool
	}{
		{"name only", func(c *Config) { c.Name = "x" }, false},
		{"fields only", func(c *Config) { c.SelectedFields = []string{"a"} }, false},
		{"display only", func(c *Config) { c.DisplayMode = DisplayTable }, false},
		{"api url", func(c *Config) { c.APIURL = "https://other.test" }, true},
		{"interval", func(c *Config) { c.RefreshInterval = 5 }, true},
		{"streaming", func(c *Config) { c.UseWebSocket = true }, true},
		{"ws url", func(c *Config) { c.WSURL = "wss://x.test" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := base.Copy()
			tt.mutate(&next)
			if got := AcquisitionChanged(base, next); got != tt.want {
				t.Errorf("AcquisitionChanged() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStore_Report(t *testing.T) {
	s, repo, _ := newTestStore(t)
	w, err := s.Create(context.Background(), validNew())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	writes := repo.writes

	if err := s.Report(w.ID, Loading()); err != nil {
		t.Fatalf("Report(loading) error = %v", err)
	}
	got, _ := s.Get(w.ID) //nolint:errcheck // exists
	if !got.Loading {
		t.Error("Loading = false after loading report")
	}

	data, _ := fieldpath.Parse([]byte(`{"price":42}`)) //nolint:errcheck // constant
	at := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)
	if err := s.Report(w.ID, Success(data, at)); err != nil {
		t.Fatalf("Report(success) error = %v", err)
	}
	got, _ = s.Get(w.ID) //nolint:errcheck // exists
	if got.Loading || got.Error != nil || !fieldpath.Equal(got.Data, data) {
		t.Errorf("after success = %+v", got)
	}
	if got.LastUpdated != "2026-10-17T09:30:00Z" {
		t.Errorf("LastUpdated = %q", got.LastUpdated)
	}

	if err := s.Report(w.ID, Failure("HTTP 500: Internal Server Error")); err != nil {
		t.Fatalf("Report(failure) error = %v", err)
	}
	got, _ = s.Get(w.ID) //nolint:errcheck // exists
	if got.Error == nil || *got.Error != "HTTP 500: Internal Server Error" {
		t.Errorf("Error = %v", got.Error)
	}
	if !fieldpath.Equal(got.Data, data) {
		t.Error("failure report discarded previous data")
	}

	if err := s.Report(w.ID, Loading()); err != nil {
		t.Fatalf("Report(loading) error = %v", err)
	}
	if err := s.Report(w.ID, Idle()); err != nil {
		t.Fatalf("Report(idle) error = %v", err)
	}
	got, _ = s.Get(w.ID) //nolint:errcheck // exists
	if got.Loading {
		t.Error("Loading = true after idle report")
	}
	if got.Error == nil || !fieldpath.Equal(got.Data, data) {
		t.Errorf("idle report changed error or data: %+v", got)
	}

	if repo.writes != writes {
		t.Errorf("Report() persisted: writes = %d, want %d", repo.writes, writes)
	}
	if err := s.Report("missing", Loading()); !errors.Is(err, ErrWidgetNotFound) {
		t.Errorf("Report(missing) error = %v, want ErrWidgetNotFound", err)
	}
}

func TestStore_DisableStreaming(t *testing.T) {
	s, repo, rec := newTestStore(t)
	cfg := validNew()
	cfg.UseWebSocket = true
	cfg.WSURL = "wss://stream.test.local"
	w, err := s.Create(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := s.DisableStreaming(context.Background(), w.ID); err != nil {
		t.Fatalf("DisableStreaming() error = %v", err)
	}
	got, _ := s.Get(w.ID) //nolint:errcheck // exists
	if got.UseWebSocket || got.Error != nil {
		t.Errorf("after DisableStreaming() = %+v", got)
	}
	if repo.state.Widgets[0].UseWebSocket {
		t.Error("correction not persisted")
	}
	kinds := rec.kinds()
	if kinds[len(kinds)-1] != EventCorrected {
		t.Errorf("last event = %s, want %s", kinds[len(kinds)-1], EventCorrected)
	}

	// Already polling: no-op.
	before := len(rec.kinds())
	if err := s.DisableStreaming(context.Background(), w.ID); err != nil {
		t.Fatalf("DisableStreaming() again error = %v", err)
	}
	if len(rec.kinds()) != before {
		t.Error("DisableStreaming() on polling widget emitted an event")
	}
}

func TestStore_RemoveRunsListenersBeforeReturning(t *testing.T) {
	s, _, _ := newTestStore(t)
	w, err := s.Create(context.Background(), validNew())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	var tornDown bool
	s.Subscribe(func(ev Event) {
		if ev.Kind == EventRemoved && ev.ID == w.ID {
			// Listeners may call back into the store.
			if _, err := s.Get(ev.ID); !errors.Is(err, ErrWidgetNotFound) {
				t.Errorf("Get() during removal error = %v, want ErrWidgetNotFound", err)
			}
			tornDown = true
		}
	})

	if err := s.Remove(context.Background(), w.ID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if !tornDown {
		t.Error("removal listener had not run when Remove() returned")
	}
	if err := s.Remove(context.Background(), w.ID); !errors.Is(err, ErrWidgetNotFound) {
		t.Errorf("Remove() twice error = %v, want ErrWidgetNotFound", err)
	}
}

func TestStore_Reorder(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	var ids []string
	for i := 0; i < 3; i++ {
		w, err := s.Create(ctx, validNew())
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		ids = append(ids, w.ID)
	}

	want := []string{ids[2], ids[0], ids[1]}
	if err := s.Reorder(ctx, want); err != nil {
		t.Fatalf("Reorder() error = %v", err)
	}
	for i, w := range s.List() {
		if w.ID != want[i] {
			t.Errorf("List()[%d] = %s, want %s", i, w.ID, want[i])
		}
	}

	bad := [][]string{
		ids[:2],
		{ids[0], ids[0], ids[1]},
		{ids[0], ids[1], "unknown"},
	}
	for _, order := range bad {
		if err := s.Reorder(ctx, order); !errors.Is(err, ErrOrderMismatch) {
			t.Errorf("Reorder(%v) error = %v, want ErrOrderMismatch", order, err)
		}
	}
}

func TestStore_ClearAll(t *testing.T) {
	s, _, rec := newTestStore(t)
	ctx := context.Background()
	if err := s.ApplyTemplate(ctx, "crypto-tracker"); err != nil {
		t.Fatalf("ApplyTemplate() error = %v", err)
	}
	if s.CurrentTemplate() != "crypto-tracker" || s.Count() != 3 {
		t.Fatalf("after template: template = %q, count = %d", s.CurrentTemplate(), s.Count())
	}

	rec.mu.Lock()
	rec.events = nil
	rec.mu.Unlock()

	if err := s.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll() error = %v", err)
	}
	if s.Count() != 0 || s.CurrentTemplate() != "" {
		t.Errorf("after ClearAll: count = %d, template = %q", s.Count(), s.CurrentTemplate())
	}
	kinds := rec.kinds()
	if len(kinds) != 3 {
		t.Fatalf("events = %v, want 3 removals", kinds)
	}
	for _, k := range kinds {
		if k != EventRemoved {
			t.Errorf("event = %s, want %s", k, EventRemoved)
		}
	}
}

func TestStore_ApplyTemplateUnknown(t *testing.T) {
	s, repo, _ := newTestStore(t)
	if err := s.ApplyTemplate(context.Background(), "nope"); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("ApplyTemplate(nope) error = %v, want ErrTemplateNotFound", err)
	}
	if repo.writes != 0 {
		t.Error("unknown template touched the repository")
	}
}

func TestStore_Replace(t *testing.T) {
	s, _, rec := newTestStore(t)
	ctx := context.Background()
	old, err := s.Create(ctx, validNew())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	keep := validNew()
	keep.ID = "widget-imported"
	dup := validNew()
	dup.ID = "widget-imported"
	fresh := validNew()
	fresh.SelectedFields = nil

	if err := s.Replace(ctx, []Config{keep, dup, fresh}); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	list := s.List()
	if len(list) != 3 {
		t.Fatalf("len(List()) = %d, want 3", len(list))
	}
	if list[0].ID != "widget-imported" {
		t.Errorf("List()[0].ID = %q, want imported id kept", list[0].ID)
	}
	if list[1].ID == "widget-imported" || !idPattern.MatchString(list[1].ID) {
		t.Errorf("duplicate id not regenerated: %q", list[1].ID)
	}
	if _, err := s.Get(old.ID); !errors.Is(err, ErrWidgetNotFound) {
		t.Error("old widget survived Replace()")
	}

	kinds := rec.kinds()
	want := []EventKind{EventCreated, EventRemoved, EventCreated, EventCreated, EventCreated}
	if len(kinds) != len(want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("events[%d] = %s, want %s", i, kinds[i], want[i])
		}
	}
}

func TestStore_ReplaceRejectsWholeBatch(t *testing.T) {
	s, repo, _ := newTestStore(t)
	ctx := context.Background()
	if _, err := s.Create(ctx, validNew()); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	writes := repo.writes

	bad := validNew()
	bad.APIURL = "not a url"
	if err := s.Replace(ctx, []Config{validNew(), bad}); !errors.Is(err, ErrInvalidAPIURL) {
		t.Fatalf("Replace() error = %v, want ErrInvalidAPIURL", err)
	}
	if s.Count() != 1 || repo.writes != writes {
		t.Error("failed Replace() changed the store")
	}
}

func TestStore_RepositoryErrorLeavesCacheUntouched(t *testing.T) {
	s, repo, rec := newTestStore(t)
	repo.writeErr = errors.New("disk full")

	if _, err := s.Create(context.Background(), validNew()); err == nil {
		t.Fatal("Create() should fail when the repository fails")
	}
	if s.Count() != 0 || len(rec.kinds()) != 0 {
		t.Error("failed Create() changed the store")
	}
}

func TestStore_Load(t *testing.T) {
	repo := NewMockRepository()
	repo.state = State{
		Version:         CurrentVersion,
		CurrentTemplate: "forex-dashboard",
		Widgets:         []Config{testConfig("a", "A"), testConfig("b", "B")},
	}
	s := NewStore(repo)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	list := s.List()
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "b" {
		t.Errorf("List() = %+v, want [a b]", list)
	}
	if list[0].Data != nil || list[0].Loading {
		t.Error("transient fields not empty after Load()")
	}
	if s.CurrentTemplate() != "forex-dashboard" {
		t.Errorf("CurrentTemplate() = %q", s.CurrentTemplate())
	}
}

func TestStore_LoadDiscardsIncompatibleVersion(t *testing.T) {
	repo := NewMockRepository()
	repo.state = State{
		Version: CurrentVersion + 1,
		Widgets: []Config{testConfig("a", "A")},
	}
	s := NewStore(repo)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Count() != 0 {
		t.Errorf("Count() = %d, want 0", s.Count())
	}
	if len(repo.state.Widgets) != 0 {
		t.Error("incompatible widgets were not cleared from the repository")
	}
}

func TestStore_LoadError(t *testing.T) {
	repo := NewMockRepository()
	repo.loadErr = errors.New("boom")
	if err := NewStore(repo).Load(context.Background()); err == nil {
		t.Error("Load() error = nil, want error")
	}
}

func TestStore_SQLiteRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	s := NewStore(NewSQLiteRepository(db.DB))
	if err := s.ApplyTemplate(ctx, "economic-calendar"); err != nil {
		t.Fatalf("ApplyTemplate() error = %v", err)
	}
	w := s.List()[0]
	data, _ := fieldpath.Parse([]byte(`{"rates":{"EUR":0.9}}`)) //nolint:errcheck // constant
	if err := s.Report(w.ID, Success(data, time.Now())); err != nil {
		t.Fatalf("Report() error = %v", err)
	}

	reloaded := NewStore(NewSQLiteRepository(db.DB))
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if reloaded.Count() != 3 || reloaded.CurrentTemplate() != "economic-calendar" {
		t.Fatalf("reloaded count = %d, template = %q", reloaded.Count(), reloaded.CurrentTemplate())
	}
	got, err := reloaded.Get(w.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Data != nil || got.LastUpdated != "" {
		t.Error("fetched data was persisted")
	}
}
