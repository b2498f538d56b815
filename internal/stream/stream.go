// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package stream owns active transcoding sessions: port assignment, child
// process launch and supervision, the stream registry, and the per-protocol
// launcher strategies that build transcoder argument vectors.
package stream

import (
	"github.com/rapidaai/streamhub/internal/device"
)

// Protocol is the outbound streaming protocol of a session.
type Protocol string

const (
	ProtocolRTSP   Protocol = "rtsp"
	ProtocolRTMP   Protocol = "rtmp"
	ProtocolWebRTC Protocol = "webrtc"
)

// Valid reports whether p is a supported streaming protocol.
func (p Protocol) Valid() bool {
	return p == ProtocolRTSP || p == ProtocolRTMP || p == ProtocolWebRTC
}

// Source is the orchestrator's neutral view of a device to stream from.
// Local devices carry Driver/SystemPath; network devices carry URL.
type Source struct {
	DeviceID   string
	Name       string
	Type       device.Type
	Driver     device.Driver
	SystemPath string
	URL        string
}

// LocalSource builds a Source from a local device.
func LocalSource(d *device.Local) Source {
	return Source{
		DeviceID:   d.ID,
		Name:       d.Name,
		Type:       d.Type,
		Driver:     d.Driver,
		SystemPath: d.SystemPath,
	}
}

// NetworkSource builds a Source from a network device.
func NetworkSource(d *device.Network) Source {
	return Source{
		DeviceID: d.ID,
		Name:     d.Name,
		Type:     d.Type,
		URL:      d.SourceURL(),
	}
}

// Stream is one active transcoding session. Immutable after creation apart
// from its process handles, which only the orchestrator touches.
type Stream struct {
	ID         string
	DeviceID   string
	DeviceType device.Type
	Protocol   Protocol
	URL        string
	OutputDir  string
	Port       int

	transcoder *process
	ancillary  *process
}

// Info is the bus-safe snapshot of a stream.
type Info struct {
	ID         string      `json:"stream_id"`
	DeviceID   string      `json:"device_id"`
	DeviceType device.Type `json:"type"`
	Protocol   Protocol    `json:"protocol"`
	URL        string      `json:"url"`
	Port       int         `json:"port"`
}

func (s *Stream) info() Info {
	return Info{
		ID:         s.ID,
		DeviceID:   s.DeviceID,
		DeviceType: s.DeviceType,
		Protocol:   s.Protocol,
		URL:        s.URL,
		Port:       s.Port,
	}
}
