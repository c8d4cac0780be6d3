package fanout

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/nerrad567/finboard-core/internal/fieldpath"
	"github.com/nerrad567/finboard-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/finboard-core/internal/widget"
)

// Client is the subset of *mqtt.Client used for publishing.
type Client interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Logger is the logging interface used by Publisher.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// State is the retained payload for one widget.
type State struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Data        fieldpath.Value `json:"data"`
	LastUpdated string          `json:"lastUpdated,omitempty"`
	Loading     bool            `json:"loading"`
	Error       *string         `json:"error"`
}

// StateOf builds the payload for w.
func StateOf(w *widget.Widget) State {
	return State{
		ID:          w.ID,
		Name:        w.Name,
		Data:        w.Data,
		LastUpdated: w.LastUpdated,
		Loading:     w.Loading,
		Error:       w.Error,
	}
}

// Publisher mirrors widget state to MQTT.
type Publisher struct {
	client Client
	topics mqtt.Topics
	qos    byte
	logger Logger

	mu      sync.Mutex
	pending map[string][]byte // topic -> payload; empty payload clears
	order   []string
	wake    chan struct{}
}

// NewPublisher creates a publisher. Call Run to start delivering.
func NewPublisher(client Client, topics mqtt.Topics, qos byte) *Publisher {
	return &Publisher{
		client:  client,
		topics:  topics,
		qos:     qos,
		logger:  noopLogger{},
		pending: make(map[string][]byte),
		wake:    make(chan struct{}, 1),
	}
}

// SetLogger sets the logger.
func (p *Publisher) SetLogger(logger Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// HandleEvent is a widget.Listener.
func (p *Publisher) HandleEvent(ev widget.Event) {
	topic := p.topics.WidgetState(ev.ID)

	if ev.Kind == widget.EventRemoved {
		p.enqueue(topic, []byte{})
		return
	}
	if ev.Widget == nil {
		return
	}
	payload, err := json.Marshal(StateOf(ev.Widget))
	if err != nil {
		p.logger.Warn("encoding widget state", "widget_id", ev.ID, "error", err)
		return
	}
	p.enqueue(topic, payload)
}

func (p *Publisher) enqueue(topic string, payload []byte) {
	p.mu.Lock()
	if _, queued := p.pending[topic]; !queued {
		p.order = append(p.order, topic)
	}
	p.pending[topic] = payload
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run delivers queued states until ctx is cancelled, then flushes once more.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.Flush()
			return
		case <-p.wake:
			p.Flush()
		}
	}
}

// Flush publishes everything queued so far and returns how many messages
// were delivered.
func (p *Publisher) Flush() int {
	p.mu.Lock()
	order := p.order
	pending := p.pending
	p.order = nil
	p.pending = make(map[string][]byte, len(pending))
	p.mu.Unlock()

	sent := 0
	for _, topic := range order {
		if err := p.client.Publish(topic, pending[topic], p.qos, true); err != nil {
			p.logger.Warn("publishing widget state", "topic", topic, "error", err)
			continue
		}
		sent++
	}
	if sent > 0 {
		p.logger.Debug("widget state published", "messages", sent)
	}
	return sent
}
