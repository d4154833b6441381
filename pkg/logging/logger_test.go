package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"bogus": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Format: "json", Component: "scheduler", Writer: &buf})

	ctx := context.WithValue(context.Background(), WorkerKey, "w-7")
	l.WithContext(ctx).WithRunID("run-1").WithError(errors.New("boom")).Info("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "scheduler", entry["component"])
	assert.Equal(t, "w-7", entry["worker"])
	assert.Equal(t, "run-1", entry["run_id"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Writer: &buf})

	l.Info("hidden")
	l.FlushLog("run-1", 1, time.Millisecond, nil)
	assert.Empty(t, buf.String())

	l.FlushLog("run-1", 2, time.Millisecond, errors.New("store down"))
	assert.Contains(t, buf.String(), "Flush failed")
	assert.Contains(t, buf.String(), "store down")
}

func TestLogger_WithErrorNil(t *testing.T) {
	l := Discard()
	assert.Same(t, l, l.WithError(nil))
	assert.Same(t, l, l.WithContext(context.Background()))
}
