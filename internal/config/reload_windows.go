//go:build windows

package config

// registerSignalHandler is a no-op on Windows, which has no SIGHUP; the file
// watcher still triggers reloads.
func (r *Reloader) registerSignalHandler() {}
