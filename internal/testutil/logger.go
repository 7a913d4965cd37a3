// Package testutil provides shared helpers for tests.
package testutil

import (
	"log/slog"
	"testing"
)

// NewTestLogger returns a debug-level logger routed through t.Log, so
// log lines only surface on failure or with -v.
func NewTestLogger(t testing.TB) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(tbWriter{t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type tbWriter struct {
	tb testing.TB
}

func (w tbWriter) Write(p []byte) (int, error) {
	w.tb.Helper()
	w.tb.Log(string(p))
	return len(p), nil
}
