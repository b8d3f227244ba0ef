package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/MEKXH/mcpilot/internal/config"
)

var logLevels = map[string]slog.Level{
	"":        slog.LevelInfo,
	"info":    slog.LevelInfo,
	"debug":   slog.LevelDebug,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// logSink owns the file behind the default handler so a config reload can
// swap or close it.
type logSink struct {
	mu   sync.Mutex
	file *os.File
}

var sink logSink

// writer returns where logs go. A configured file always wins; otherwise an
// interactive session keeps stderr quiet unless debugging, so log lines do
// not interleave with the answer.
func (s *logSink) writer(path string, level slog.Level, interactive bool) (io.Writer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil && s.file.Name() != path {
		_ = s.file.Close()
		s.file = nil
	}
	if path == "" {
		if interactive && level > slog.LevelDebug {
			return io.Discard, nil
		}
		return os.Stderr, nil
	}
	if s.file != nil {
		return s.file, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	s.file = f
	return f, nil
}

func (s *logSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
}

// configureLogger installs the default slog handler from log.level/log.file,
// with --log-level taking precedence over the file.
func configureLogger(cfg *config.Config, overrideLevel string, interactive bool) error {
	level, err := parseLogLevel(cfg.Log.Level, overrideLevel)
	if err != nil {
		return err
	}
	w, err := sink.writer(strings.TrimSpace(cfg.Log.File), level, interactive)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
	return nil
}

func parseLogLevel(configLevel, override string) (slog.Level, error) {
	name := strings.TrimSpace(configLevel)
	if o := strings.TrimSpace(override); o != "" {
		name = o
	}
	level, ok := logLevels[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("invalid log level: %s", name)
	}
	return level, nil
}
