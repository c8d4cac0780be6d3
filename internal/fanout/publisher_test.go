package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/finboard-core/internal/fieldpath"
	"github.com/nerrad567/finboard-core/internal/infrastructure/database"
	"github.com/nerrad567/finboard-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/finboard-core/internal/widget"
	"github.com/nerrad567/finboard-core/migrations"
)

type published struct {
	topic    string
	payload  string
	qos      byte
	retained bool
}

// mockClient records publishes.
type mockClient struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (m *mockClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, published{topic, string(payload), qos, retained})
	return nil
}

func (m *mockClient) messages() []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]published(nil), m.msgs...)
}

func testWidget(id string) *widget.Widget {
	return &widget.Widget{
		Config:      widget.Config{ID: id, Name: "BTC"},
		Data:        fieldpath.String("64000"),
		LastUpdated: "2026-10-17T09:30:00Z",
	}
}

func TestPublisher_StateAndRemoval(t *testing.T) {
	client := &mockClient{}
	p := NewPublisher(client, mqtt.NewTopics("fb"), 1)

	p.HandleEvent(widget.Event{Kind: widget.EventCreated, ID: "w1", Widget: testWidget("w1")})
	p.HandleEvent(widget.Event{Kind: widget.EventRemoved, ID: "w2"})

	if n := p.Flush(); n != 2 {
		t.Fatalf("Flush() = %d, want 2", n)
	}
	msgs := client.messages()

	if msgs[0].topic != "fb/widget/w1/state" || !msgs[0].retained || msgs[0].qos != 1 {
		t.Errorf("msgs[0] = %+v", msgs[0])
	}
	var st map[string]any
	if err := json.Unmarshal([]byte(msgs[0].payload), &st); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if st["id"] != "w1" || st["name"] != "BTC" || st["data"] != "64000" || st["error"] != nil {
		t.Errorf("payload = %v", st)
	}

	if msgs[1].topic != "fb/widget/w2/state" || msgs[1].payload != "" || !msgs[1].retained {
		t.Errorf("removal = %+v, want empty retained payload", msgs[1])
	}
}

func TestPublisher_CoalescesPerWidget(t *testing.T) {
	client := &mockClient{}
	p := NewPublisher(client, mqtt.NewTopics("fb"), 0)

	first := testWidget("w1")
	first.Loading = true
	p.HandleEvent(widget.Event{Kind: widget.EventReported, ID: "w1", Widget: first})
	p.HandleEvent(widget.Event{Kind: widget.EventReported, ID: "w1", Widget: testWidget("w1")})

	if n := p.Flush(); n != 1 {
		t.Fatalf("Flush() = %d, want 1", n)
	}
	var st State
	json.Unmarshal([]byte(client.messages()[0].payload), &st) //nolint:errcheck // checked via fields
	if st.Loading {
		t.Error("coalesced state should be the latest (not loading)")
	}

	if n := p.Flush(); n != 0 {
		t.Errorf("second Flush() = %d, want 0", n)
	}
}

func TestPublisher_IgnoresEventsWithoutWidget(t *testing.T) {
	client := &mockClient{}
	p := NewPublisher(client, mqtt.NewTopics(""), 0)
	p.HandleEvent(widget.Event{Kind: widget.EventUpdated, ID: "w1"})
	if n := p.Flush(); n != 0 {
		t.Errorf("Flush() = %d, want 0", n)
	}
}

func TestPublisher_PublishErrorDropsMessage(t *testing.T) {
	client := &mockClient{err: errors.New("not connected")}
	p := NewPublisher(client, mqtt.NewTopics(""), 0)
	p.HandleEvent(widget.Event{Kind: widget.EventCreated, ID: "w1", Widget: testWidget("w1")})
	if n := p.Flush(); n != 0 {
		t.Errorf("Flush() = %d, want 0", n)
	}
}

func TestPublisher_Run(t *testing.T) {
	client := &mockClient{}
	p := NewPublisher(client, mqtt.NewTopics(""), 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	p.HandleEvent(widget.Event{Kind: widget.EventCreated, ID: "w1", Widget: testWidget("w1")})

	deadline := time.Now().Add(3 * time.Second)
	for len(client.messages()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for publish")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := client.messages()[0].topic; got != "finboard/widget/w1/state" {
		t.Errorf("topic = %q", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestPublisher_WithStore(t *testing.T) {
	client := &mockClient{}
	p := NewPublisher(client, mqtt.NewTopics("fb"), 1)

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
	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	store := widget.NewStore(widget.NewSQLiteRepository(db.DB))
	store.Subscribe(p.HandleEvent)

	w, err := store.Create(ctx, widget.Config{
		Name:            "BTC",
		APIURL:          "https://api.example.com/btc",
		RefreshInterval: 30,
		SelectedFields:  []string{"price"},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.Remove(ctx, w.ID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	p.Flush()
	msgs := client.messages()
	if len(msgs) != 1 || msgs[0].payload != "" {
		t.Errorf("messages = %+v, want a single clear", msgs)
	}
}

// mockSubscriber records subscriptions and lets tests deliver messages.
type mockSubscriber struct {
	mu       sync.Mutex
	handlers map[string]mqtt.MessageHandler
	err      error
}

func (m *mockSubscriber) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.handlers == nil {
		m.handlers = make(map[string]mqtt.MessageHandler)
	}
	m.handlers[topic] = handler
	return nil
}

func (m *mockSubscriber) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, topic)
	return nil
}

func (m *mockSubscriber) deliver(t *testing.T, pattern, topic string) error {
	t.Helper()
	m.mu.Lock()
	h, ok := m.handlers[pattern]
	m.mu.Unlock()
	if !ok {
		t.Fatalf("no handler for %s", pattern)
	}
	return h(topic, nil)
}

// mockRefresher records refreshed widget IDs.
type mockRefresher struct {
	mu      sync.Mutex
	ids     []string
	missing map[string]bool
	called  chan string
}

func (m *mockRefresher) Refresh(_ context.Context, id string) error {
	m.mu.Lock()
	m.ids = append(m.ids, id)
	m.mu.Unlock()
	if m.called != nil {
		m.called <- id
	}
	if m.missing[id] {
		return widget.ErrWidgetNotFound
	}
	return nil
}

func (m *mockRefresher) refreshed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ids...)
}

func TestCommands_RefreshRequests(t *testing.T) {
	sub := &mockSubscriber{}
	ref := &mockRefresher{missing: map[string]bool{"gone": true}}
	topics := mqtt.NewTopics("fb")
	c := NewCommands(sub, topics, 1, ref)

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	pattern := topics.AllWidgetRefreshes()

	for _, topic := range []string{
		topics.WidgetRefresh("w1"),
		topics.WidgetRefresh("w2"),
		topics.WidgetRefresh("w1"),
		topics.WidgetRefresh("gone"),
	} {
		if err := sub.deliver(t, pattern, topic); err != nil {
			t.Fatalf("handler(%s) error = %v", topic, err)
		}
	}
	if err := sub.deliver(t, pattern, "fb/system/status"); err == nil {
		t.Error("handler accepted a non-widget topic")
	}

	if n := c.Drain(context.Background()); n != 2 {
		t.Errorf("Drain() = %d, want 2", n)
	}
	got := ref.refreshed()
	want := []string{"w1", "w2", "gone"}
	if len(got) != len(want) {
		t.Fatalf("refreshed = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("refreshed[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if len(sub.handlers) != 0 {
		t.Errorf("handlers after Stop = %d, want 0", len(sub.handlers))
	}
}

func TestCommands_StartError(t *testing.T) {
	sub := &mockSubscriber{err: mqtt.ErrNotConnected}
	c := NewCommands(sub, mqtt.NewTopics(""), 0, &mockRefresher{})
	if err := c.Start(); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Start() error = %v, want ErrNotConnected", err)
	}
}

func TestCommands_Run(t *testing.T) {
	sub := &mockSubscriber{}
	ref := &mockRefresher{called: make(chan string, 1)}
	topics := mqtt.NewTopics("")
	c := NewCommands(sub, topics, 0, ref)
	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	if err := sub.deliver(t, topics.AllWidgetRefreshes(), topics.WidgetRefresh("w9")); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	select {
	case id := <-ref.called:
		if id != "w9" {
			t.Errorf("refreshed %q, want w9", id)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for refresh")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
