// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package manager

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/streamhub/internal/bus"
)

type sampleCommand struct {
	DeviceID string `mapstructure:"device_id" validate:"required"`
	Port     int    `mapstructure:"port" validate:"omitempty,gte=1,lte=65535"`
}

func TestDecodeCommand_WeaklyTypedNumbers(t *testing.T) {
	// Payloads that crossed a JSON boundary carry float64 numbers.
	var cmd sampleCommand
	err := DecodeCommand(bus.Payload{"device_id": "cam", "port": float64(554)}, &cmd)
	require.NoError(t, err)
	assert.Equal(t, "cam", cmd.DeviceID)
	assert.Equal(t, 554, cmd.Port)
}

func TestDecodeCommand_MissingRequiredField(t *testing.T) {
	var cmd sampleCommand
	err := DecodeCommand(bus.Payload{"port": 554}, &cmd)
	assert.Error(t, err)
}

func TestDecodeCommand_OutOfRangeValue(t *testing.T) {
	var cmd sampleCommand
	err := DecodeCommand(bus.Payload{"device_id": "cam", "port": 70000}, &cmd)
	assert.Error(t, err)
}

func TestDecodeCommand_UnknownKeysIgnored(t *testing.T) {
	var cmd sampleCommand
	err := DecodeCommand(bus.Payload{"device_id": "cam", "surprise": true}, &cmd)
	assert.NoError(t, err)
}

func TestResult(t *testing.T) {
	ok := Result(true, nil)
	assert.Equal(t, bus.Payload{"success": true}, ok)

	failed := Result(false, errors.New("boom"))
	assert.Equal(t, false, failed["success"])
	assert.Equal(t, "boom", failed["error"])
}
