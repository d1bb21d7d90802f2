package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerErrorIncludesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})

	ctx := context.Background()
	ctx = log.WithCorrelationID(ctx, "req-123")
	ctx = log.WithWarehouseID(ctx, "wh-1")

	log.Error(ctx, "boom", errors.New("boom"))

	out := buf.String()
	assert.Contains(t, out, `"correlation_id":"req-123"`)
	assert.Contains(t, out, `"warehouse_id":"wh-1"`)
	assert.Contains(t, out, `"stack"`)
	assert.Contains(t, out, `"service":"test"`)
}

func TestLoggerWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf, WarnStack: true})
	log.Warn(context.Background(), "warny")
	require.Contains(t, buf.String(), `"stack"`)

	buf.Reset()
	quiet := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})
	quiet.Warn(context.Background(), "warny")
	require.NotContains(t, buf.String(), `"stack"`)
}

func TestLoggerRespectsLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: zerolog.WarnLevel, Output: buf})
	log.Debug(context.Background(), "hidden")
	log.Info(context.Background(), "hidden")
	assert.Empty(t, buf.String())
}

func TestWithFieldsDoesNotLeakIntoParentContext(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: zerolog.InfoLevel, Output: buf})

	parent := context.Background()
	child := log.WithFields(parent, map[string]any{"reservation_id": "r-1"})

	log.Info(parent, "parent")
	assert.NotContains(t, buf.String(), "reservation_id")

	buf.Reset()
	log.Info(child, "child")
	assert.Contains(t, buf.String(), `"reservation_id":"r-1"`)
}

func TestParseLevelDefaults(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("invalid"))
	assert.Equal(t, zerolog.DebugLevel, ParseLevel(" DEBUG "))
}

func TestStaticFieldsAndConsoleFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{
		ServiceName: "test",
		Output:      buf,
		Fields:      map[string]string{"env": "dev", "instance": "host-1"},
	})
	log.Info(context.Background(), "hello")
	assert.Contains(t, buf.String(), `"env":"dev"`)
	assert.Contains(t, buf.String(), `"instance":"host-1"`)

	buf.Reset()
	console := New(Options{ServiceName: "test", Output: buf, Format: FormatConsole})
	console.Info(context.Background(), "hello")
	assert.NotContains(t, buf.String(), `"message"`)
	assert.Contains(t, buf.String(), "hello")
}

func TestWithEmptyFieldsKeepsContext(t *testing.T) {
	log := New(Options{ServiceName: "test", Output: &bytes.Buffer{}})
	ctx := context.Background()
	assert.Equal(t, ctx, log.WithFields(ctx, nil))
}
