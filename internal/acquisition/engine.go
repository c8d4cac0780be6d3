package acquisition

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/finboard-core/internal/fieldpath"
	"github.com/nerrad567/finboard-core/internal/widget"
)

// Store is the subset of the widget store the engine reads and reports to.
type Store interface {
	Get(id string) (*widget.Widget, error)
	Report(id string, r widget.Report) error
	DisableStreaming(ctx context.Context, id string) error
}

// Logger defines the logging interface used by the Engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Option configures an Engine.
type Option func(*Engine)

// WithFetcher sets the REST fetcher.
func WithFetcher(f Fetcher) Option { return func(e *Engine) { e.fetcher = f } }

// WithDialer sets the stream dialer.
func WithDialer(d Dialer) Option { return func(e *Engine) { e.dialer = d } }

// WithScheduler sets the polling scheduler.
func WithScheduler(s Scheduler) Option { return func(e *Engine) { e.scheduler = s } }

// WithPolicy sets placeholder hosts and stream failure handling.
func WithPolicy(p Policy) Option { return func(e *Engine) { e.policy = p } }

// WithLogger sets the logger.
func WithLogger(l Logger) Option { return func(e *Engine) { e.logger = l } }

// WithRegisterer registers the engine's metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option { return func(e *Engine) { e.registerer = reg } }

// WithClock sets the time source used for lastUpdated.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// Engine manages one acquisition session per widget.
//
// All public methods are thread-safe.
type Engine struct {
	store      Store
	fetcher    Fetcher
	dialer     Dialer
	scheduler  Scheduler
	policy     Policy
	logger     Logger
	registerer prometheus.Registerer
	metrics    *metrics
	now        func() time.Time

	// baseCtx outlives individual sessions; in-flight fetches of a stopped
	// session run to completion and their results are dropped.
	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu       sync.Mutex // Protects sessions, closed and session timers/conns
	sessions map[string]*session
	closed   bool

	wg sync.WaitGroup
}

// New creates an engine reading widgets from store.
// Unset dependencies default to HTTP, WebSocket and cron implementations.
func New(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		policy:   DefaultPolicy(),
		logger:   noopLogger{},
		now:      time.Now,
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.fetcher == nil {
		e.fetcher = NewHTTPFetcher(10*time.Second, 10<<20, "")
	}
	if e.dialer == nil {
		e.dialer = NewWSDialer(45 * time.Second)
	}
	if e.scheduler == nil {
		e.scheduler = NewCronScheduler()
	}
	e.metrics = newMetrics(e.registerer)
	e.baseCtx, e.cancelBase = context.WithCancel(context.Background())
	return e
}

// HandleEvent keeps sessions in step with the widget store.
// Register it with widget.Store.Subscribe.
func (e *Engine) HandleEvent(ev widget.Event) {
	switch ev.Kind {
	case widget.EventCreated:
		e.startQuietly(ev.ID)
	case widget.EventUpdated:
		if ev.Previous == nil || ev.Widget == nil || widget.AcquisitionChanged(*ev.Previous, ev.Widget.Config) {
			e.logger.Debug("acquisition settings changed", "id", ev.ID)
			e.startQuietly(ev.ID)
		}
	case widget.EventRemoved:
		e.Stop(ev.ID)
	case widget.EventReported, widget.EventCorrected:
		// Results and corrections come from the engine itself.
	}
}

func (e *Engine) startQuietly(id string) {
	err := e.Start(e.baseCtx, id)
	if err != nil && !errors.Is(err, widget.ErrWidgetNotFound) && !errors.Is(err, ErrEngineClosed) {
		e.logger.Warn("starting acquisition failed", "id", id, "error", err)
	}
}

// Start tears down any session for id and starts a new one from the
// widget's current configuration. A streaming widget with an unusable
// stream URL is switched to polling.
func (e *Engine) Start(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}
	e.stopLocked(id)

	w, err := e.store.Get(id)
	if err != nil {
		return err
	}
	e.startLocked(ctx, w)
	return nil
}

// Reconfigure restarts acquisition for id with its current configuration.
func (e *Engine) Reconfigure(ctx context.Context, id string) error {
	return e.Start(ctx, id)
}

// Stop tears down the session for id. It is a no-op when there is none.
// Once Stop returns, the session reports nothing further. A fetch cut off
// mid-flight has its loading flag cleared.
func (e *Engine) Stop(id string) {
	e.mu.Lock()
	s := e.sessions[id]
	e.stopLocked(id)
	e.mu.Unlock()

	if s != nil {
		e.settle(s)
	}
}

// StopAll tears down every session.
func (e *Engine) StopAll() {
	e.mu.Lock()
	for id := range e.sessions {
		e.stopLocked(id)
	}
	e.mu.Unlock()
}

// Close stops every session and the scheduler, and waits for session
// goroutines to exit. The engine cannot be restarted.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	for id := range e.sessions {
		e.stopLocked(id)
	}
	e.mu.Unlock()

	e.cancelBase()
	e.scheduler.Stop()
	e.wg.Wait()
}

// Refresh performs one fetch for id now, exactly like a scheduled tick.
// The schedule is unchanged. Without a session the result is still applied.
func (e *Engine) Refresh(ctx context.Context, id string) error {
	w, err := e.store.Get(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	s, ok := e.sessions[id]
	e.mu.Unlock()
	if !ok {
		s = e.newSession(id, ModePolling)
		defer s.cancel()
	}

	e.fetch(ctx, s, w.APIURL)
	return nil
}

// Probe fetches url once without touching any widget.
func (e *Engine) Probe(ctx context.Context, url string) (fieldpath.Value, error) {
	if err := widget.ValidateAPIURL(url); err != nil {
		return nil, &widget.ValidationError{Field: "apiUrl", Err: err}
	}
	return e.fetcher.Fetch(ctx, url)
}

// Sessions returns a snapshot of all sessions ordered by widget ID.
func (e *Engine) Sessions() []SessionInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]SessionInfo, 0, len(e.sessions))
	for _, s := range e.sessions {
		out = append(out, s.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Session returns a snapshot of the session for id.
func (e *Engine) Session(id string) (SessionInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[id]
	if !ok {
		return SessionInfo{}, false
	}
	return s.info(), true
}

func (e *Engine) newSession(id string, mode Mode) *session {
	s := &session{id: id, mode: mode}
	s.ctx, s.cancel = context.WithCancel(e.baseCtx)
	s.live.Store(true)
	return s
}

// startLocked establishes a session for w. Caller must hold e.mu and must
// have stopped any previous session.
func (e *Engine) startLocked(ctx context.Context, w *widget.Widget) {
	streaming := w.UseWebSocket
	if streaming && !widget.IsStreamURL(w.WSURL) {
		e.logger.Info("invalid stream URL, switching to polling", "id", w.ID, "ws_url", w.WSURL)
		if err := e.store.DisableStreaming(ctx, w.ID); err != nil {
			e.logger.Warn("disabling streaming failed", "id", w.ID, "error", err)
		}
		streaming = false
	}

	mode := ModePolling
	if streaming {
		mode = ModeStreaming
	}
	s := e.newSession(w.ID, mode)
	e.sessions[w.ID] = s
	e.metrics.activeSessions.WithLabelValues(string(mode)).Inc()

	apiURL := w.APIURL
	if streaming {
		e.wg.Add(1)
		go e.runStream(s, w.WSURL)
	} else {
		interval := e.policy.pollInterval(w.RefreshInterval)
		s.cancelTimer = e.scheduler.Every(interval, func() {
			e.fetch(e.baseCtx, s, apiURL)
		})
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.fetch(e.baseCtx, s, apiURL)
	}()

	e.logger.Debug("acquisition started", "id", w.ID, "mode", mode)
}

// stopLocked tears down the session for id. Caller must hold e.mu.
func (e *Engine) stopLocked(id string) {
	s, ok := e.sessions[id]
	if !ok {
		return
	}
	delete(e.sessions, id)

	s.kill()
	if s.cancelTimer != nil {
		s.cancelTimer()
		s.cancelTimer = nil
	}
	if s.conn != nil {
		s.conn.Close() //nolint:errcheck // reader goroutine sees the error
		s.conn = nil
	}
	e.metrics.activeSessions.WithLabelValues(string(s.mode)).Dec()
	e.logger.Debug("acquisition stopped", "id", id, "mode", s.mode)
}

// fetch runs one REST fetch cycle for s.
func (e *Engine) fetch(ctx context.Context, s *session, apiURL string) {
	s.inflight.Add(1)
	defer s.inflight.Add(-1)

	if !s.report(e.store, widget.Loading()) {
		return
	}

	start := time.Now()
	data, err := e.fetcher.Fetch(ctx, apiURL)
	e.metrics.fetchDuration.Observe(time.Since(start).Seconds())

	var r widget.Report
	result := "success"
	if err != nil {
		r = widget.Failure(err.Error())
		result = "error"
	} else {
		r = widget.Success(data, e.now())
	}

	if !s.report(e.store, r) {
		e.metrics.fetchTotal.WithLabelValues("stale").Inc()
		return
	}
	e.metrics.fetchTotal.WithLabelValues(result).Inc()
	if err != nil {
		e.logger.Debug("fetch failed", "id", s.id, "url", apiURL, "error", err)
	}
}

// runStream dials and reads the stream for s until the session ends.
func (e *Engine) runStream(s *session, wsURL string) {
	defer e.wg.Done()

	for {
		conn, err := e.dialer.Dial(s.ctx, wsURL)
		if err == nil {
			if !e.attach(s, conn) {
				conn.Close() //nolint:errcheck // session stopped during dial
				return
			}
			e.logger.Debug("stream connected", "id", s.id, "url", wsURL)
			err = e.readStream(s, conn)
			e.detach(s, conn)
		}
		if !s.live.Load() {
			return
		}
		if closedByServer(err) {
			e.logger.Debug("stream closed by server", "id", s.id, "url", wsURL, "reason", err)
			e.end(s)
			return
		}
		if !e.streamFailed(s, wsURL, err) {
			return
		}
	}
}

func (e *Engine) attach(s *session, conn Conn) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !s.live.Load() {
		return false
	}
	s.conn = conn
	s.attempts = 0
	return true
}

func (e *Engine) detach(s *session, conn Conn) {
	e.mu.Lock()
	if s.conn == conn {
		s.conn = nil
		conn.Close() //nolint:errcheck // already failed
	}
	e.mu.Unlock()
}

// readStream reports every message as a success until the connection fails.
func (e *Engine) readStream(s *session, conn Conn) error {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		e.metrics.streamMessages.Inc()
		if !s.report(e.store, widget.Success(fieldpath.FromRaw(msg), e.now())) {
			return nil
		}
	}
}

// streamFailed applies the failure policy and reports whether to redial.
func (e *Engine) streamFailed(s *session, wsURL string, cause error) bool {
	if cause == nil {
		cause = errors.New("connection closed")
	}

	if e.policy.IsPlaceholder(wsURL) {
		e.metrics.streamFailures.WithLabelValues("suppressed").Inc()
		e.logger.Info("placeholder stream host unavailable, switching to polling", "id", s.id, "url", wsURL)
		e.fallBackToPolling(s)
		return false
	}

	msg := fmt.Sprintf("stream connection error: %v", cause)
	switch e.policy.StreamFailure {
	case FailurePoll:
		e.metrics.streamFailures.WithLabelValues("poll").Inc()
		e.logger.Warn("stream failed, switching to polling", "id", s.id, "url", wsURL, "error", cause)
		s.report(e.store, widget.Failure(msg))
		e.fallBackToPolling(s)
		return false

	case FailureRetry:
		if s.attempts < e.policy.MaxAttempts {
			s.attempts++
			delay := e.policy.Backoff(s.attempts)
			e.metrics.streamFailures.WithLabelValues("retry").Inc()
			e.logger.Debug("stream failed, redialling", "id", s.id, "attempt", s.attempts, "delay", delay, "error", cause)
			t := time.NewTimer(delay)
			defer t.Stop()
			select {
			case <-s.ctx.Done():
				return false
			case <-t.C:
				return s.live.Load()
			}
		}
	}

	e.metrics.streamFailures.WithLabelValues("error").Inc()
	e.logger.Warn("stream failed", "id", s.id, "url", wsURL, "error", cause)
	s.report(e.store, widget.Failure(msg))
	e.end(s)
	return false
}

// end removes s from the registry if it is still the current session.
func (e *Engine) end(s *session) {
	e.mu.Lock()
	current := e.sessions[s.id] == s
	if current {
		e.stopLocked(s.id)
	}
	e.mu.Unlock()

	if current {
		e.settle(s)
	}
}

// settle clears the loading flag of a fetch that the stopped session s
// will no longer complete. Caller must not hold e.mu.
func (e *Engine) settle(s *session) {
	if s.inflight.Load() > 0 {
		e.store.Report(s.id, widget.Idle()) //nolint:errcheck // widget may have been removed
	}
}

// fallBackToPolling persists useWebSocket=false and replaces s with a polling session.
func (e *Engine) fallBackToPolling(s *session) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || e.sessions[s.id] != s {
		return
	}
	e.stopLocked(s.id)

	if err := e.store.DisableStreaming(e.baseCtx, s.id); err != nil {
		e.logger.Warn("disabling streaming failed", "id", s.id, "error", err)
		return
	}
	w, err := e.store.Get(s.id)
	if err != nil {
		return
	}
	e.startLocked(e.baseCtx, w)
}
