package handler

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsoleHandler_ModulePrefixFromWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewConsoleHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})).
		With("module", "connector", "component", "lifecycle")

	logger.Info("listener started", "port", 8080)

	out := buf.String()
	assert.Contains(t, out, "[connector/lifecycle]")
	assert.Contains(t, out, "listener started")
	assert.Contains(t, out, "port=8080")
	assert.NotContains(t, out, "module=")
}

func TestConsoleHandler_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewConsoleHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestConsoleHandler_SingleLineWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewConsoleHandler(&buf, nil)).
		With("module", "http", "component", "request")

	logger.Info("Request handled", "request_id", "0123456789abcdef", "status", 200)

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.Contains(t, out, "(01234567)")
	assert.NotContains(t, out, "89abcdef")
	assert.Contains(t, out, "Request handled status=200")
}

func TestConsoleHandler_Group(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewConsoleHandler(&buf, nil)).WithGroup("session")

	logger.Info("Session restored", "agent", "adam")

	assert.Contains(t, buf.String(), "session.agent=adam")
}

func TestConsoleHandler_AddSource(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewConsoleHandler(&buf, &slog.HandlerOptions{AddSource: true}))

	logger.Info("with source")

	assert.Contains(t, buf.String(), "console_test.go:")
}
