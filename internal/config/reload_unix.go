//go:build !windows

package config

import (
	"os"
	"os/signal"
	"syscall"
)

// registerSignalHandler reloads the config on every SIGHUP until Stop.
func (r *Reloader) registerSignalHandler() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	go func() {
		defer signal.Stop(sigCh)
		for {
			select {
			case <-sigCh:
				r.logger.Info("SIGHUP received, reloading config")
				r.Reload()
			case <-r.stopCh:
				return
			}
		}
	}()
}
