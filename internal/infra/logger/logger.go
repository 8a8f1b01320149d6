// Package logger builds the process slog.Logger from config.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"medhelper/internal/domain"
	"medhelper/internal/infra/config"
)

// New returns the logger and a closer for its output. Domain errors logged
// under any key are expanded into op, code and message.
func New(cfg config.LoggerConfig) (*slog.Logger, func() error, error) {
	w, closeOutput, err := openOutput(cfg.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("open log output: %w", err)
	}
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: expandDomainError,
	}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), closeOutput, nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), closeOutput, nil
}

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// parseLevel falls back to info for unknown names.
func parseLevel(s string) slog.Level {
	if l, ok := levels[strings.ToLower(strings.TrimSpace(s))]; ok {
		return l
	}
	return slog.LevelInfo
}

func expandDomainError(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindAny {
		return a
	}
	err, ok := a.Value.Any().(error)
	if !ok {
		return a
	}
	var de *domain.DomainError
	if !errors.As(err, &de) || de == nil {
		return a
	}
	return slog.Group(a.Key,
		slog.String("op", de.Op),
		slog.String("code", string(domain.ErrorCodeOf(de))),
		slog.String("detail", err.Error()),
	)
}

// openOutput resolves stdout, stderr (the default), daily:<dir> or a file
// path. The closer releases whatever was opened.
func openOutput(output string) (io.Writer, func() error, error) {
	if dir, ok := strings.CutPrefix(output, "daily:"); ok {
		w, err := NewDailyWriter(strings.TrimSpace(dir))
		if err != nil {
			return nil, nil, err
		}
		return w, w.Close, nil
	}

	keep := func() error { return nil }
	switch strings.ToLower(output) {
	case "", "stderr":
		return os.Stderr, keep, nil
	case "stdout":
		return os.Stdout, keep, nil
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
