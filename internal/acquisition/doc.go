// Package acquisition keeps each widget's data fresh.
//
// The Engine owns one session per widget. A session either polls the
// widget's REST endpoint on a schedule, or holds a single stream connection
// (after one immediate REST fetch). Sessions are started and torn down in
// response to widget store events:
//
//	store.Subscribe(engine.HandleEvent)
//
// Start always tears down the previous session for the widget first, so at
// any instant a widget has at most one timer and at most one connection.
// Results that arrive after a session was stopped are dropped.
//
// Stream failures are handled by Policy: connections to placeholder hosts
// quietly fall back to polling; anything else follows the configured
// stream failure mode (fail, poll or retry).
package acquisition
