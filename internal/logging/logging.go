package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/pgzip"
)

const logFileName = "mtp-bridge.log"

// fanoutHandler duplicates every record to the console handler and the file
// handler. The file side runs at Debug, the console at Info, so the log file
// is the authoritative diagnostic stream.
type fanoutHandler struct {
	console slog.Handler
	file    slog.Handler
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.console.Enabled(ctx, level) || h.file.Enabled(ctx, level)
}

func (h *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	if h.console.Enabled(ctx, r.Level) {
		firstErr = h.console.Handle(ctx, r.Clone())
	}
	if h.file.Enabled(ctx, r.Level) {
		if err := h.file.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &fanoutHandler{console: h.console.WithAttrs(attrs), file: h.file.WithAttrs(attrs)}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	return &fanoutHandler{console: h.console.WithGroup(name), file: h.file.WithGroup(name)}
}

// Setup prepares the log directory, rotates the previous log file aside as a
// gzip archive, and returns a logger writing to both console and file. The
// returned closer flushes the log file on exit.
func Setup(dir string, console io.Writer) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}

	logPath := filepath.Join(dir, logFileName)
	if err := rotate(logPath); err != nil {
		// Rotation failure is not worth refusing to start over; the old
		// file simply keeps growing.
		fmt.Fprintf(console, "log rotation failed: %v\n", err)
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	handler := &fanoutHandler{
		console: slog.NewTextHandler(console, &slog.HandlerOptions{Level: slog.LevelInfo}),
		file:    slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}),
	}
	return slog.New(handler), f, nil
}

// rotate compresses the previous run's log into a timestamped .gz next to it
// and truncates the live path. Empty or missing files are left alone.
func rotate(logPath string) error {
	info, err := os.Stat(logPath)
	if err != nil || info.Size() == 0 {
		return nil
	}

	src, err := os.Open(logPath)
	if err != nil {
		return err
	}
	defer src.Close()

	archived := fmt.Sprintf("%s.%s.gz", logPath, time.Now().Format("20060102-150405"))
	dst, err := os.Create(archived)
	if err != nil {
		return err
	}
	defer dst.Close()

	zw := pgzip.NewWriter(dst)
	if _, err := io.Copy(zw, src); err != nil {
		zw.Close()
		os.Remove(archived)
		return err
	}
	if err := zw.Close(); err != nil {
		os.Remove(archived)
		return err
	}
	src.Close()
	return os.Remove(logPath)
}
