package acquisition

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is an open stream connection.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens stream connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WSDialer dials WebSocket endpoints.
type WSDialer struct {
	dialer *websocket.Dialer
}

// NewWSDialer creates a dialer with the given handshake timeout.
func NewWSDialer(handshakeTimeout time.Duration) *WSDialer {
	return &WSDialer{
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

// Dial connects to url. No auth headers are sent.
func (d *WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close() //nolint:errcheck // handshake response
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// closedByServer reports whether err is a normal or going-away close frame
// from the peer. Such a close ends the stream without a failure.
func closedByServer(err error) bool {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway
}
