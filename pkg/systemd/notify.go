// Package systemd speaks the sd_notify protocol when botmon runs as a
// Type=notify unit. Outside systemd every call is a no-op.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "botmon/pkg/logx"
)

// Notifier sends state changes to the service manager.
type Notifier struct {
	log      logx.Logger
	notify   func(unsetEnv bool, state string) (bool, error)
	watchdog func(unsetEnv bool) (time.Duration, error)
}

func New(log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{log: log.With(logx.String("comp", "systemd")), notify: daemon.SdNotify, watchdog: daemon.SdWatchdogEnabled}
}

func (n *Notifier) send(state string) {
	sent, err := n.notify(false, state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		n.log.Debug("sd_notify sent", logx.String("state", state))
	}
}

func (n *Notifier) Ready()     { n.send(daemon.SdNotifyReady) }
func (n *Notifier) Stopping()  { n.send(daemon.SdNotifyStopping) }
func (n *Notifier) Reloading() { n.send(daemon.SdNotifyReloading) }

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(text string) { n.send("STATUS=" + text) }

// Watchdog pings the manager at half of WatchdogSec until ctx ends. It
// returns at once when the unit has no watchdog. alive, when set, gates each
// ping and must report process liveness only: a dependency outage belongs in
// Status, not in a withheld ping.
func (n *Notifier) Watchdog(ctx context.Context, alive func(context.Context) error) error {
	every, err := n.watchdog(false)
	if err != nil || every <= 0 {
		return err
	}
	t := time.NewTicker(every / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if alive != nil {
				if err := alive(ctx); err != nil {
					n.log.Warn("watchdog ping withheld", logx.Err(err))
					continue
				}
			}
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}
