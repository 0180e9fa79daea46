package systemd

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

type recorder struct {
	mu     sync.Mutex
	states []string
}

func (r *recorder) notify(_ bool, state string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	return true, nil
}

func (r *recorder) count(state string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.states {
		if s == state {
			n++
		}
	}
	return n
}

func newTestNotifier(r *recorder, interval time.Duration) *Notifier {
	return &Notifier{
		notify:   r.notify,
		watchdog: func(bool) (time.Duration, error) { return interval, nil },
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestNotifierLifecycle(t *testing.T) {
	tests := []struct {
		name         string
		interval     time.Duration
		wantWatchdog bool
	}{
		{name: "watchdog disabled", interval: 0},
		{name: "watchdog enabled", interval: 20 * time.Millisecond, wantWatchdog: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &recorder{}
			n := newTestNotifier(r, tt.interval)
			n.Ready(context.Background())
			n.Status("streaming active")
			time.Sleep(60 * time.Millisecond)
			n.Stopping()

			if r.count(daemon.SdNotifyReady) != 1 {
				t.Errorf("READY sent %d times", r.count(daemon.SdNotifyReady))
			}
			if r.count("STATUS=streaming active") != 1 {
				t.Errorf("status not sent: %v", r.states)
			}
			if got := r.count(daemon.SdNotifyWatchdog) > 0; got != tt.wantWatchdog {
				t.Errorf("watchdog pings = %v, want %v", got, tt.wantWatchdog)
			}
			if r.count(daemon.SdNotifyStopping) != 1 {
				t.Errorf("STOPPING sent %d times", r.count(daemon.SdNotifyStopping))
			}

			// No pings after Stopping returns.
			before := r.count(daemon.SdNotifyWatchdog)
			time.Sleep(50 * time.Millisecond)
			if after := r.count(daemon.SdNotifyWatchdog); after != before {
				t.Errorf("watchdog kept pinging after Stopping: %d -> %d", before, after)
			}
		})
	}
}
