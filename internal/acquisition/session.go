package acquisition

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/finboard-core/internal/widget"
)

// Mode is how a session acquires data.
type Mode string

// Session modes.
const (
	ModePolling   Mode = "polling"
	ModeStreaming Mode = "streaming"
)

// session is the acquisition state of one widget.
// A session holds a timer or a connection, never both.
type session struct {
	id   string
	mode Mode

	// live is cleared by stop. Work belonging to a dead session has no effect.
	live     atomic.Bool
	reportMu sync.Mutex // Held across a report so stop cannot interleave

	ctx    context.Context
	cancel context.CancelFunc

	// Guarded by Engine.mu.
	cancelTimer func()
	conn        Conn

	// Owned by the stream goroutine.
	attempts int

	// Fetches between their loading report and their result.
	inflight atomic.Int32
}

// SessionInfo is a snapshot of one session.
type SessionInfo struct {
	ID          string `json:"id"`
	Mode        Mode   `json:"mode"`
	Timers      int    `json:"timers"`
	Connections int    `json:"connections"`
}

func (s *session) info() SessionInfo {
	info := SessionInfo{ID: s.id, Mode: s.mode}
	if s.cancelTimer != nil {
		info.Timers = 1
	}
	if s.conn != nil {
		info.Connections = 1
	}
	return info
}

// report applies r to the store unless the session has been stopped.
func (s *session) report(store Store, r widget.Report) bool {
	s.reportMu.Lock()
	defer s.reportMu.Unlock()
	if !s.live.Load() {
		return false
	}
	store.Report(s.id, r) //nolint:errcheck // widget may have been removed
	return true
}

// kill marks the session dead. No report can be in progress once it returns.
func (s *session) kill() {
	s.reportMu.Lock()
	s.live.Store(false)
	s.reportMu.Unlock()
	s.cancel()
}
