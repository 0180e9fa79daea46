package outputs

import (
	"time"

	"github.com/smazurov/outputnode/internal/handles"
)

// Reconnect defaults.
const (
	DefaultMaxRetries = 25
	DefaultRetryDelay = 2 * time.Second
)

// ReconnectPolicy is the transport reconnect policy: a fixed number of
// attempts separated by a fixed delay.
type ReconnectPolicy struct {
	Enabled    bool
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultReconnectPolicy returns the default policy.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{Enabled: true, MaxRetries: DefaultMaxRetries, RetryDelay: DefaultRetryDelay}
}

// Next returns the wait before the given attempt (1-based) and whether
// the attempt is allowed. Every attempt waits the same RetryDelay.
func (p ReconnectPolicy) Next(attempt int) (time.Duration, bool) {
	if !p.Enabled || attempt < 1 || attempt > p.MaxRetries {
		return 0, false
	}
	return p.RetryDelay, true
}

// Settings renders the policy as output settings.
func (p ReconnectPolicy) Settings() handles.Settings {
	return handles.Settings{
		"reconnect":       p.Enabled,
		"max_retries":     p.MaxRetries,
		"retry_delay_sec": int(p.RetryDelay / time.Second),
	}
}

// ReconnectPolicyFromSettings reads a policy written by Settings. Missing
// keys fall back to the defaults.
func ReconnectPolicyFromSettings(s handles.Settings) ReconnectPolicy {
	p := DefaultReconnectPolicy()
	if s.Has("reconnect") {
		p.Enabled = s.Bool("reconnect")
	}
	if s.Has("max_retries") {
		p.MaxRetries = s.Int("max_retries")
	}
	if s.Has("retry_delay_sec") {
		p.RetryDelay = time.Duration(s.Int("retry_delay_sec")) * time.Second
	}
	return p
}
