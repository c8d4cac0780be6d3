package acquisition

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/finboard-core/internal/fieldpath"
	"github.com/nerrad567/finboard-core/internal/infrastructure/database"
	"github.com/nerrad567/finboard-core/internal/widget"
	"github.com/nerrad567/finboard-core/migrations"
)

// fakeScheduler runs jobs only when Tick is called.
type fakeScheduler struct {
	mu      sync.Mutex
	next    int
	jobs    map[int]func()
	maxSeen int
	stopped bool
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{jobs: make(map[int]func())}
}

func (f *fakeScheduler) Every(_ time.Duration, job func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.jobs[id] = job
	if len(f.jobs) > f.maxSeen {
		f.maxSeen = len(f.jobs)
	}
	return func() {
		f.mu.Lock()
		delete(f.jobs, id)
		f.mu.Unlock()
	}
}

func (f *fakeScheduler) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.jobs = make(map[int]func())
	f.mu.Unlock()
}

// Tick runs every scheduled job once, synchronously.
func (f *fakeScheduler) Tick() {
	f.mu.Lock()
	jobs := make([]func(), 0, len(f.jobs))
	for _, j := range f.jobs {
		jobs = append(jobs, j)
	}
	f.mu.Unlock()
	for _, j := range jobs {
		j()
	}
}

func (f *fakeScheduler) Active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

type fetchResult struct {
	data fieldpath.Value
	err  error
}

// fakeFetcher returns canned results. When gate is set, Fetch blocks until it is closed.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	results map[string]fetchResult
	gate    chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{results: make(map[string]fetchResult)}
}

func (f *fakeFetcher) set(url string, doc string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var v fieldpath.Value
	if doc != "" {
		v = mustParse(doc)
	}
	f.results[url] = fetchResult{data: v, err: err}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (fieldpath.Value, error) {
	f.mu.Lock()
	f.calls++
	res, ok := f.results[url]
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !ok {
		return mustParse(`{"ok":true}`), nil
	}
	return res.data, res.err
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeDialer fails every dial with err.
type fakeDialer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (d *fakeDialer) Dial(_ context.Context, _ string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return nil, d.err
}

func (d *fakeDialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func mustParse(doc string) fieldpath.Value {
	v, err := fieldpath.Parse([]byte(doc))
	if err != nil {
		panic(err)
	}
	return v
}

// newTestStore returns a widget store backed by an in-memory database.
func newTestStore(t *testing.T) *widget.Store {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        database.MemoryPath,
		BusyTimeout: 5,
		Migrations:  migrations.FS,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() {
		db.Close() //nolint:errcheck // Test cleanup
	})
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return widget.NewStore(widget.NewSQLiteRepository(db.DB))
}

// newTestEngine wires an engine to store events. It is closed at cleanup.
func newTestEngine(t *testing.T, store *widget.Store, opts ...Option) *Engine {
	t.Helper()
	e := New(store, opts...)
	store.Subscribe(e.HandleEvent)
	t.Cleanup(e.Close)
	return e
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func getWidget(t *testing.T, store *widget.Store, id string) *widget.Widget {
	t.Helper()
	w, err := store.Get(id)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", id, err)
	}
	return w
}

func pollingConfig(apiURL string) widget.Config {
	return widget.Config{
		Name:            "Prices",
		APIURL:          apiURL,
		RefreshInterval: 30,
		DisplayMode:     widget.DisplayCard,
		SelectedFields:  []string{"price"},
	}
}
