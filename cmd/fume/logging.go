package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// newLogger builds the process-wide logger. Handler choice (colorized text
// vs. plain) is decided once at startup by checking whether stdout is a
// terminal: level-colored messages are a minor readability win for an
// operator watching `fume fuzz` live, and actively unwanted once output is
// piped to a file or log collector.
func newLogger(level string) *slog.Logger {
	lvl := parseLevel(level)
	if isatty.IsTerminal(os.Stdout.Fd()) {
		return slog.New(newColorHandler(os.Stdout, lvl))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// colorHandler wraps a plain slog.TextHandler, wrapping each record's
// message in an ANSI color code chosen by its level before delegating. It
// exists solely for the isatty-detected interactive case; it does not
// colorize the level tag or the attributes, only the message, matching the
// lightweight ambiance of a
// single-binary CLI tool rather than a full logging framework.
type colorHandler struct {
	inner slog.Handler
	out   io.Writer
}

func newColorHandler(w io.Writer, level slog.Level) *colorHandler {
	return &colorHandler{
		inner: slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}),
		out:   w,
	}
}

func (h *colorHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *colorHandler) Handle(ctx context.Context, r slog.Record) error {
	r.Message = fmt.Sprintf("%s%s", levelColor(r.Level), r.Message) + colorReset
	return h.inner.Handle(ctx, r)
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &colorHandler{inner: h.inner.WithAttrs(attrs), out: h.out}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	return &colorHandler{inner: h.inner.WithGroup(name), out: h.out}
}

const colorReset = "\033[0m"

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "\033[31m"
	case level >= slog.LevelWarn:
		return "\033[33m"
	case level >= slog.LevelInfo:
		return "\033[36m"
	default:
		return "\033[90m"
	}
}
