package config

import (
	"fmt"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch re-reads the config file whenever it changes on disk and hands the
// validated result to onChange. Invalid edits are logged and ignored.
func Watch(configPath string, onChange func(*Config)) error {
	if onChange == nil {
		return fmt.Errorf("onChange callback is required")
	}

	v := newViper(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config for watch: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg := DefaultConfig()
		if err := decode(v, cfg); err != nil {
			slog.Warn("config reload failed", "path", e.Name, "error", err)
			return
		}
		if err := cfg.Validate(); err != nil {
			slog.Warn("config reload rejected", "path", e.Name, "error", err)
			return
		}
		slog.Info("config reloaded", "path", e.Name, "op", e.Op.String())
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}
