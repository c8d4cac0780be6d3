package acquisition

import (
	"net/url"
	"strings"
	"time"
)

// StreamFailureMode selects how a failed stream is handled.
type StreamFailureMode string

// Stream failure modes.
const (
	// FailureFail records the error on the widget and ends the stream session.
	FailureFail StreamFailureMode = "fail"

	// FailurePoll records the error, disables streaming and starts polling.
	FailurePoll StreamFailureMode = "poll"

	// FailureRetry redials with exponential backoff, then behaves as FailureFail.
	FailureRetry StreamFailureMode = "retry"
)

// Policy holds the acquisition rules that come from configuration.
type Policy struct {
	// PlaceholderHosts are demo domains whose stream failures are not
	// reported; the widget falls back to polling instead. A host matches
	// itself and every subdomain.
	PlaceholderHosts []string

	StreamFailure StreamFailureMode
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration

	// DefaultInterval is used when a polling widget has no refresh interval.
	DefaultInterval time.Duration
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		PlaceholderHosts: []string{"example.com", "example.org", "example.net", "example", "invalid", "test"},
		StreamFailure:    FailureFail,
		MaxAttempts:      5,
		InitialDelay:     time.Second,
		MaxDelay:         30 * time.Second,
		DefaultInterval:  30 * time.Second,
	}
}

// IsPlaceholder reports whether rawURL points at a placeholder host.
func (p Policy) IsPlaceholder(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return false
	}
	for _, h := range p.PlaceholderHosts {
		h = strings.Trim(strings.ToLower(h), ".")
		if h == "" {
			continue
		}
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// Backoff returns the delay before redial attempt n (1-based).
func (p Policy) Backoff(n int) time.Duration {
	delay := p.InitialDelay
	if delay <= 0 {
		delay = time.Second
	}
	for i := 1; i < n; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

func (p Policy) pollInterval(seconds int) time.Duration {
	if seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if p.DefaultInterval > 0 {
		return p.DefaultInterval
	}
	return 30 * time.Second
}
