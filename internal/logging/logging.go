// Package logging defines the log provider handed to connections and readers.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Logger receives non-fatal diagnostics. Implementations must be safe for
// concurrent use and must never terminate the process.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Provider creates named logger instances.
type Provider interface {
	CreateLogger(id string) Logger
}

// SlogProvider is a Provider backed by log/slog.
type SlogProvider struct {
	base *slog.Logger
}

// NewSlogProvider wraps base. A nil base uses slog.Default().
func NewSlogProvider(base *slog.Logger) *SlogProvider {
	if base == nil {
		base = slog.Default()
	}
	return &SlogProvider{base: base}
}

// NewProvider builds a slog provider writing to w. Format is "text" or "json";
// level is one of debug, info, warn, error.
func NewProvider(w io.Writer, format, level string) (*SlogProvider, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, fmt.Errorf("logging: parse level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("logging: unknown format %q", format)
	}
	return NewSlogProvider(slog.New(h)), nil
}

// Discard returns a provider that drops everything.
func Discard() *SlogProvider {
	return NewSlogProvider(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// CreateLogger returns a logger tagged with component=id.
func (p *SlogProvider) CreateLogger(id string) Logger {
	return &slogLogger{l: p.base.With("component", id)}
}

type slogLogger struct {
	l *slog.Logger
}

func (s *slogLogger) Infof(format string, args ...any) {
	s.l.Info(fmt.Sprintf(format, args...))
}

func (s *slogLogger) Warnf(format string, args ...any) {
	s.l.Warn(fmt.Sprintf(format, args...))
}

func (s *slogLogger) Errorf(format string, args ...any) {
	s.l.Error(fmt.Sprintf(format, args...))
}
