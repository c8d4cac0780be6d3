package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/finboard-core/internal/infrastructure/config"
	"github.com/nerrad567/finboard-core/internal/infrastructure/logging"
	"github.com/nerrad567/finboard-core/internal/widget"
)

// Message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// Channels. A client subscribed to ChannelWidgets receives every store
// event; one subscribed to WidgetChannel(id) receives only that widget's.
const (
	ChannelWidgets      = "widgets"
	widgetChannelPrefix = "widget:"

	// EventSnapshot is sent right after a subscription and carries the
	// current state of every widget the channel covers.
	EventSnapshot = "widget.snapshot"
)

const wsSendBufferSize = 256

// Fallbacks for unset websocket settings (seconds).
const (
	defaultPingInterval = 30
	defaultPongTimeout  = 10
)

// WidgetChannel returns the channel carrying events for a single widget.
func WidgetChannel(id string) string { return widgetChannelPrefix + id }

// WSMessage is a message sent to a client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Channel   string `json:"channel,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// wsRequest is a message received from a client.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe requests.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// WidgetEventPayload is the payload of a widget event message.
// Widget is omitted for widget.removed.
type WidgetEventPayload struct {
	ID     string         `json:"id"`
	Widget *widget.Widget `json:"widget,omitempty"`
}

// SnapshotPayload is the payload of an EventSnapshot message.
type SnapshotPayload struct {
	Widgets []widget.Widget `json:"widgets"`
}

// Hub fans widget events out to WebSocket clients by channel.
type Hub struct {
	cfg      config.WebSocketConfig
	logger   *logging.Logger
	snapshot func() []widget.Widget

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// WSClient is one connected browser.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu       sync.RWMutex
	channels map[string]struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a hub. snapshot, when non-nil, supplies the widgets sent
// to a client as soon as it subscribes.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger, snapshot func() []widget.Widget) *Hub {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultPongTimeout
	}
	return &Hub{
		cfg:      cfg,
		logger:   logger,
		snapshot: snapshot,
		clients:  make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
		delete(h.clients, c)
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister removes a client. Only the call that removes it closes its
// send channel, so shutdown and disconnect cannot double-close.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		close(c.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleEvent is a widget.Listener. Each event goes to ChannelWidgets and
// to the widget's own channel; a client subscribed to both gets it once,
// on ChannelWidgets.
func (h *Hub) HandleEvent(ev widget.Event) {
	payload := WidgetEventPayload{ID: ev.ID, Widget: ev.Widget}
	own := WidgetChannel(ev.ID)

	var all, single []byte
	sent := 0
	for _, c := range h.snapshotClients() {
		var data *[]byte
		channel := ChannelWidgets
		switch {
		case c.subscribed(ChannelWidgets):
			data = &all
		case c.subscribed(own):
			data, channel = &single, own
		default:
			continue
		}
		if *data == nil {
			encoded, err := encodeEvent(channel, string(ev.Kind), payload)
			if err != nil {
				h.logger.Error("failed to encode widget event", "widget_id", ev.ID, "error", err)
				return
			}
			*data = encoded
		}
		c.trySend(*data)
		sent++
	}
	if sent > 0 {
		h.logger.Debug("widget event sent", "event", ev.Kind, "widget_id", ev.ID, "recipients", sent)
	}
}

// snapshotClients copies the client set so sends happen without the hub
// lock held.
func (h *Hub) snapshotClients() []*WSClient {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

// widgetsFor returns the snapshot for channel, or false when the channel
// has none.
func (h *Hub) widgetsFor(channel string) ([]widget.Widget, bool) {
	if h.snapshot == nil {
		return nil, false
	}
	switch {
	case channel == ChannelWidgets:
		return h.snapshot(), true
	case strings.HasPrefix(channel, widgetChannelPrefix):
		id := strings.TrimPrefix(channel, widgetChannelPrefix)
		for _, w := range h.snapshot() {
			if w.ID == id {
				return []widget.Widget{w}, true
			}
		}
		return []widget.Widget{}, true
	}
	return nil, false
}

func encodeEvent(channel, eventType string, payload any) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		Channel:   channel,
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
}

// handleWebSocket upgrades the connection. Clients then send
// {"type":"subscribe","payload":{"channels":["widgets"]}}.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	hub := s.Hub()
	c := &WSClient{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, wsSendBufferSize),
		channels: make(map[string]struct{}),
	}
	hub.Register(c)

	go c.writePump()
	go c.readPump()
}

func (c *WSClient) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	cfg := c.hub.cfg
	wait := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	c.conn.SetReadDeadline(time.Now().Add(wait)) //nolint:errcheck // read error surfaces below
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		// Browsers may not answer protocol pings; any message counts.
		c.conn.SetReadDeadline(time.Now().Add(wait)) //nolint:errcheck // read error surfaces above
		c.handle(data)
	}
}

func (c *WSClient) writePump() {
	cfg := c.hub.cfg
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // write error surfaces below
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // write error surfaces below
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handle(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch req.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		c.updateChannels(req)
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)
	default:
		c.sendError(req.ID, "unknown message type: "+req.Type)
	}
}

// updateChannels applies a subscribe or unsubscribe request. New
// subscriptions are acknowledged, then followed by a snapshot.
func (c *WSClient) updateChannels(req wsRequest) {
	var p WSSubscribePayload
	if len(req.Payload) == 0 || json.Unmarshal(req.Payload, &p) != nil {
		c.sendError(req.ID, "invalid "+req.Type+" payload")
		return
	}

	subscribe := req.Type == WSTypeSubscribe
	var added []string
	c.mu.Lock()
	for _, ch := range p.Channels {
		if subscribe {
			if _, ok := c.channels[ch]; !ok {
				added = append(added, ch)
			}
			c.channels[ch] = struct{}{}
		} else {
			delete(c.channels, ch)
		}
	}
	c.mu.Unlock()

	if !subscribe {
		c.reply(req.ID, WSTypeResponse, map[string]any{"unsubscribed": p.Channels})
		return
	}

	c.hub.logger.Debug("websocket client subscribed", "channels", p.Channels)
	c.reply(req.ID, WSTypeResponse, map[string]any{"subscribed": p.Channels})

	for _, ch := range added {
		widgets, ok := c.hub.widgetsFor(ch)
		if !ok {
			continue
		}
		if data, err := encodeEvent(ch, EventSnapshot, SnapshotPayload{Widgets: widgets}); err == nil {
			c.trySend(data)
		}
	}
}

// trySend queues data without blocking. A full buffer drops the message;
// a channel closed by a concurrent disconnect is ignored.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // send on closed channel after disconnect
	}()

	select {
	case c.send <- data:
	default:
	}
}

func (c *WSClient) subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.channels[channel]
	return ok
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *WSClient) sendError(id, message string) {
	c.reply(id, WSTypeError, map[string]string{"message": message})
}
