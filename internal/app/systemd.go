package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "schedbot/pkg/logx"
)

// notifyReady reports readiness to systemd (Type=notify units) and starts
// watchdog pings when WATCHDOG_USEC is set. Outside systemd both are no-ops.
func (a *App) notifyReady() {
	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("systemd ready notification failed", logx.Err(err))
	} else if sent {
		a.log.Debug("systemd notified ready")
	}

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		a.log.Warn("systemd watchdog config invalid", logx.Err(err))
		return
	}
	if interval <= 0 {
		return
	}
	a.log.Info("systemd watchdog enabled", logx.Duration("interval", interval))
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-t.C:
				if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
					a.log.Warn("systemd watchdog ping failed", logx.Err(err))
				}
			}
		}
	})
}

func (a *App) notifyStopping() {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		a.log.Debug("systemd stopping notification failed", logx.Err(err))
	}
}
