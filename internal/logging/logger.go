// Package logging provides structured logging configuration using log/slog.
//
// Every pipeline event goes to two places: the run log, a daily file of
// human-readable "[YYYY-MM-DD HH:MM:SS] message key=value" lines, and the
// console. Console output uses the same line format in text mode, or slog's
// JSON handler when machine parsing is wanted.
//
// Run ids travel on the context and are attached by FromContext, together with
// chi's request id when the status server handles a request.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// Options configures Setup.
type Options struct {
	Level      string    // debug, info, warn, error (default: info)
	Format     string    // text or json (default: text)
	Dir        string    // directory receiving the daily run log files
	FilePrefix string    // daily files are named <prefix>_YYYY-MM-DD.log
	Console    io.Writer // defaults to os.Stdout
}

// Setup configures the global slog logger to write to the daily run log and
// the console. The returned DailyFile must be closed on shutdown.
func Setup(opts Options) (*DailyFile, error) {
	file, err := NewDailyFile(opts.Dir, opts.FilePrefix)
	if err != nil {
		return nil, err
	}

	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	slog.SetDefault(slog.New(NewHandler(opts.Level, opts.Format, console, file)))
	return file, nil
}

// NewHandler builds the fan-out handler used by Setup: run log lines to file,
// and either the same lines or JSON records to console.
func NewHandler(level, format string, console, file io.Writer) slog.Handler {
	lvl := parseLevel(level)

	var consoleHandler slog.Handler
	if strings.ToLower(format) == "json" {
		consoleHandler = slog.NewJSONHandler(console, &slog.HandlerOptions{Level: lvl})
	} else {
		consoleHandler = NewLineHandler(console, lvl)
	}

	return fanout{NewLineHandler(file, lvl), consoleHandler}
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type runIDKey struct{}

// ContextWithRunID returns a context carrying the pipeline run id.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext returns the run id stored by ContextWithRunID, if any.
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// FromContext returns a logger enriched with the run id and, for status
// server requests, chi's request id.
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if runID := RunIDFromContext(ctx); runID != "" {
		logger = logger.With("run_id", runID)
	}

	// Chi's RequestID middleware stores the ID in context
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}

	return logger
}

// WithFields returns a logger with additional structured fields.
//
// Usage:
//
//	stageLogger := logging.WithFields(ctx, "stage", "sniff", "path", local)
//	stageLogger.Info("line ending detected", "line_ending", `\r\n`)
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
