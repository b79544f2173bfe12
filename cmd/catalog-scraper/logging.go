package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// newLogger logs text to a terminal and JSON otherwise. A non-empty
// logFile additionally receives JSON records.
func newLogger(out *os.File, verbose bool, logFile string) (*slog.Logger, func() error, slog.Level, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	console := consoleHandler(out, isTerminal(out), level)
	if logFile == "" {
		return slog.New(console), func() error { return nil }, level, nil
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, level, fmt.Errorf("open log file: %w", err)
	}
	return fanoutLogger(console, file, level), file.Close, level, nil
}

func consoleHandler(w io.Writer, terminal bool, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if terminal {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func fanoutLogger(console slog.Handler, file io.Writer, level slog.Level) *slog.Logger {
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return slog.New(slogmulti.Fanout(console, fileHandler))
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
