// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package commons

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewApplicationLogger_Defaults(t *testing.T) {
	logger, err := NewApplicationLogger()
	require.NoError(t, err)
	require.NotNil(t, logger)

	assert.NotPanics(t, func() {
		logger.Info("hello", "key", "value")
		logger.Debugf("formatted %d", 42)
		logger.Warnw("warned", "key", "value")
	})
}

func TestNewApplicationLogger_RejectsUnknownLevel(t *testing.T) {
	_, err := NewApplicationLogger(Level("loud"))
	assert.Error(t, err)
}

func TestNewApplicationLogger_WritesRotatedFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	logger, err := NewApplicationLogger(Name("filetest"), Path(dir))
	require.NoError(t, err)

	logger.Infow("file sink check", "key", "value")
	logger.Sync()

	data, err := os.ReadFile(filepath.Join(dir, "filetest.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "file sink check")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"INFO", zapcore.InfoLevel, false},
		{" debug ", zapcore.DebugLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"fatal", zapcore.FatalLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			level, err := parseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, level)
		})
	}
}
