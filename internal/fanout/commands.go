package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/finboard-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/finboard-core/internal/widget"
)

// DefaultRefreshTimeout bounds one commanded refresh.
const DefaultRefreshTimeout = 30 * time.Second

// Subscriber is the subset of *mqtt.Client used for commands.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Refresher performs an out-of-schedule fetch. *acquisition.Engine
// satisfies it.
type Refresher interface {
	Refresh(ctx context.Context, id string) error
}

// Commands listens on {prefix}/widget/+/refresh and refreshes the named
// widget. Message payloads are ignored. Requests for a widget that is
// already waiting are merged.
type Commands struct {
	sub       Subscriber
	topics    mqtt.Topics
	qos       byte
	refresher Refresher
	timeout   time.Duration
	logger    Logger

	mu      sync.Mutex
	pending []string
	queued  map[string]bool
	wake    chan struct{}
}

// NewCommands creates a command listener. Call Start to subscribe and Run
// to process requests.
func NewCommands(sub Subscriber, topics mqtt.Topics, qos byte, refresher Refresher) *Commands {
	return &Commands{
		sub:       sub,
		topics:    topics,
		qos:       qos,
		refresher: refresher,
		timeout:   DefaultRefreshTimeout,
		logger:    noopLogger{},
		queued:    make(map[string]bool),
		wake:      make(chan struct{}, 1),
	}
}

// SetLogger sets the logger.
func (c *Commands) SetLogger(logger Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// SetTimeout overrides DefaultRefreshTimeout.
func (c *Commands) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// Start subscribes to the refresh command topic.
func (c *Commands) Start() error {
	if err := c.sub.Subscribe(c.topics.AllWidgetRefreshes(), c.qos, c.handle); err != nil {
		return fmt.Errorf("subscribing to refresh commands: %w", err)
	}
	return nil
}

// Stop unsubscribes from the command topic.
func (c *Commands) Stop() error {
	return c.sub.Unsubscribe(c.topics.AllWidgetRefreshes())
}

func (c *Commands) handle(topic string, _ []byte) error {
	id, ok := c.topics.WidgetID(topic)
	if !ok {
		return fmt.Errorf("unexpected command topic %q", topic)
	}

	c.mu.Lock()
	if !c.queued[id] {
		c.queued[id] = true
		c.pending = append(c.pending, id)
	}
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

// Run processes queued refresh requests until ctx is cancelled.
func (c *Commands) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
			c.Drain(ctx)
		}
	}
}

// Drain runs every queued refresh and returns how many succeeded.
func (c *Commands) Drain(ctx context.Context) int {
	c.mu.Lock()
	ids := c.pending
	c.pending = nil
	c.queued = make(map[string]bool, len(ids))
	c.mu.Unlock()

	done := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		rctx, cancel := context.WithTimeout(ctx, c.timeout)
		err := c.refresher.Refresh(rctx, id)
		cancel()

		switch {
		case errors.Is(err, widget.ErrWidgetNotFound):
			c.logger.Warn("refresh command for unknown widget", "widget_id", id)
		case err != nil:
			c.logger.Warn("refresh command failed", "widget_id", id, "error", err)
		default:
			c.logger.Debug("widget refreshed by command", "widget_id", id)
			done++
		}
	}
	return done
}
