// Package systemd reports daemon readiness and output status to the
// service manager over the sd_notify socket.
package systemd

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/smazurov/outputnode/internal/logging"
)

// notifyFunc matches daemon.SdNotify.
type notifyFunc func(unsetEnvironment bool, state string) (bool, error)

// Notifier sends state updates to systemd. Outside a unit every call is
// a no-op.
type Notifier struct {
	notify   notifyFunc
	watchdog func(unsetEnvironment bool) (time.Duration, error)
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNotifier creates a notifier backed by the NOTIFY_SOCKET environment.
func NewNotifier() *Notifier {
	return &Notifier{
		notify:   daemon.SdNotify,
		watchdog: daemon.SdWatchdogEnabled,
		logger:   logging.GetLogger("systemd"),
	}
}

func (n *Notifier) send(state string) {
	sent, err := n.notify(false, state)
	if err != nil {
		n.logger.Warn("sd_notify failed", "state", state, "error", err)
		return
	}
	if sent {
		n.logger.Debug("sd_notify", "state", state)
	}
}

// Ready reports that startup finished and starts the watchdog pinger when
// the unit sets WatchdogSec.
func (n *Notifier) Ready(ctx context.Context) {
	n.send(daemon.SdNotifyReady)

	interval, err := n.watchdog(false)
	if err != nil || interval == 0 {
		return
	}
	ctx, n.cancel = context.WithCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ticker := time.NewTicker(interval / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n.send(daemon.SdNotifyWatchdog)
			}
		}
	}()
}

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(status string) {
	n.send("STATUS=" + status)
}

// Stopping reports shutdown and stops the watchdog pinger.
func (n *Notifier) Stopping() {
	n.send(daemon.SdNotifyStopping)
	if n.cancel != nil {
		n.cancel()
	}
	n.wg.Wait()
}
