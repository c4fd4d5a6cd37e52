package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewLogger tests the creation of a new JSON logger
func TestNewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
	}{
		{name: "default log level (info)", logLevel: ""},
		{name: "debug log level", logLevel: "debug"},
		{name: "invalid log level defaults to info", logLevel: "invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.logLevel != "" {
				os.Setenv("LOG_LEVEL", tt.logLevel)
				defer os.Unsetenv("LOG_LEVEL")
			}

			logger := NewLogger()

			assert.NotNil(t, logger, "logger should not be nil")
		})
	}
}

// TestNewTextLogger tests the creation of a new text logger
func TestNewTextLogger(t *testing.T) {
	logger := NewTextLogger()
	assert.NotNil(t, logger, "logger should not be nil")
}

// TestWithRunID tests run ID tagging of log output
func TestWithRunID(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	logger := WithRunID(base, "run-123")
	logger.Info("batch started")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "run-123", entry["run_id"])
}

// TestWithRunID_Empty verifies that an empty run ID returns the base logger unchanged
func TestWithRunID_Empty(t *testing.T) {
	base := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	assert.Same(t, base, WithRunID(base, ""))
}

// TestWithFields tests structured field attachment
func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	logger := WithFields(base, map[string]interface{}{
		"feed_url": "https://a.example/rss.xml",
		"batch":    2,
	})
	logger.Info("feed settled")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "https://a.example/rss.xml", entry["feed_url"])
	assert.Equal(t, float64(2), entry["batch"])
}

// TestLoggerContext tests storing and retrieving loggers via context
func TestLoggerContext(t *testing.T) {
	base := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	ctx := WithLogger(context.Background(), base)

	assert.Same(t, base, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()), "missing logger should fall back to default")
}
