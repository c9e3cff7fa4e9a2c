package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "stdout only", cfg: Config{}},
		{name: "file", cfg: Config{Path: "/tmp/logs", RotationTime: "24h", MaxAge: "168h", Level: "debug", Format: "json"}},
		{name: "bad rotation", cfg: Config{Path: "/tmp/logs", RotationTime: "daily", MaxAge: "168h"}, wantErr: true},
		{name: "bad level", cfg: Config{Level: "trace"}, wantErr: true},
		{name: "bad format", cfg: Config{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewHandler_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, Config{Level: "info", Format: "json"})).With("module", "test")

	logger.Debug("hidden")
	logger.Info("index created", "index", "docs")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "index created", entry["msg"])
	assert.Equal(t, "docs", entry["index"])
	assert.Equal(t, "test", entry["module"])
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{6}$`, entry["time"])
}
