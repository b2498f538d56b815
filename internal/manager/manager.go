// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package manager defines the contracts shared by the device managers: the
// lifecycle the supervisor drives, and the orchestrator capability the
// managers delegate streaming to.
package manager

import (
	"errors"

	"github.com/rapidaai/streamhub/internal/bus"
	"github.com/rapidaai/streamhub/internal/stream"
)

// Contract-level conditions shared by the managers' command handlers.
var (
	ErrUnknownDevice   = errors.New("manager: unknown device")
	ErrDuplicateDevice = errors.New("manager: device already exists")
	ErrUnknownStream   = errors.New("manager: unknown stream")
	ErrUnknownCommand  = errors.New("manager: unknown command")
)

// Manager is a bus participant with a periodic scan loop. Start subscribes
// it to its command topics and launches the loop; Stop tears down streams,
// stops the loop, and closes the bus client. Both are idempotent.
type Manager interface {
	Name() string
	Start() error
	Stop()
}

// StreamOrchestrator is the capability managers need from the stream
// subsystem. Satisfied by *stream.Orchestrator; narrowed here so tests can
// substitute a fake.
type StreamOrchestrator interface {
	StartStream(src stream.Source, protocol stream.Protocol) (string, error)
	StopStream(streamID string) bool
	Streams() []stream.Info
	Shutdown()
}

// Result builds the uniform command-result payload published on the
// manager's "command/{manager}/result" topic.
func Result(success bool, err error) bus.Payload {
	p := bus.Payload{"success": success}
	if err != nil {
		p["error"] = err.Error()
	}
	return p
}
