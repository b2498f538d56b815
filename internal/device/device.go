// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package device defines the device data model shared by the managers: a
// tagged pair of variants (Local, Network) over a common header, plus the
// per-manager registries and the on-disk network device store.
package device

import (
	"fmt"
	"time"
)

// Type classifies what a device captures.
type Type string

const (
	TypeVideo Type = "video"
	TypeAudio Type = "audio"
)

// Valid reports whether t is a known device type.
func (t Type) Valid() bool {
	return t == TypeVideo || t == TypeAudio
}

// Status is the last observed presence of a device.
type Status string

const (
	StatusUnknown Status = "unknown"
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Protocol is the transport a network device speaks.
type Protocol string

const (
	ProtocolRTSP Protocol = "rtsp"
	ProtocolRTMP Protocol = "rtmp"
	ProtocolHTTP Protocol = "http"
)

// Valid reports whether p is a known network device protocol.
func (p Protocol) Valid() bool {
	return p == ProtocolRTSP || p == ProtocolRTMP || p == ProtocolHTTP
}

// Driver enumerates the local capture backends the launchers understand.
type Driver string

const (
	DriverV4L2         Driver = "v4l2"
	DriverALSA         Driver = "alsa"
	DriverPulse        Driver = "pulse"
	DriverAVFoundation Driver = "avfoundation"
	DriverDirectShow   Driver = "dshow"
)

// Header carries the attributes common to both device variants.
type Header struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        Type      `json:"type"`
	Status      Status    `json:"status"`
	LastChecked time.Time `json:"last_checked"`
}

// Local is a capture device attached to this host.
type Local struct {
	Header
	SystemPath  string   `json:"system_path"`
	Driver      Driver   `json:"driver"`
	Formats     []string `json:"formats,omitempty"`
	Resolutions []string `json:"resolutions,omitempty"`
}

// Network is a remote device reached over IP. Credentials never leave the
// process: they are excluded from JSON and from bus snapshots.
type Network struct {
	Header
	IP       string            `json:"ip"`
	Port     int               `json:"port"`
	Protocol Protocol          `json:"protocol"`
	Username string            `json:"-"`
	Password string            `json:"-"`
	Streams  map[string]string `json:"streams,omitempty"`
}

// NetworkID builds the canonical composite device id for an ip:port pair.
func NetworkID(ip string, port int) string {
	return fmt.Sprintf("%s:%d", ip, port)
}

// Address returns the dial target for reachability probes.
func (n *Network) Address() string {
	return NetworkID(n.IP, n.Port)
}

// SourceURL returns the media URL the transcoder should consume. An explicit
// stream entry named "main" wins; otherwise a protocol-default URL is built,
// embedding credentials when present (the URL is handed to a child process,
// never published or persisted).
func (n *Network) SourceURL() string {
	if url, ok := n.Streams["main"]; ok {
		return url
	}
	auth := ""
	if n.Username != "" {
		auth = n.Username
		if n.Password != "" {
			auth += ":" + n.Password
		}
		auth += "@"
	}
	switch n.Protocol {
	case ProtocolRTMP:
		return fmt.Sprintf("rtmp://%s%s/live", auth, n.Address())
	case ProtocolHTTP:
		return fmt.Sprintf("http://%s%s/video", auth, n.Address())
	default:
		return fmt.Sprintf("rtsp://%s%s/stream", auth, n.Address())
	}
}

// Snapshot returns the bus-safe representation of a local device.
func (d *Local) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"id":           d.ID,
		"name":         d.Name,
		"type":         string(d.Type),
		"status":       string(d.Status),
		"last_checked": d.LastChecked,
		"system_path":  d.SystemPath,
		"driver":       string(d.Driver),
		"formats":      append([]string(nil), d.Formats...),
		"resolutions":  append([]string(nil), d.Resolutions...),
	}
}

// Snapshot returns the bus-safe representation of a network device.
// Credentials are redacted.
func (n *Network) Snapshot() map[string]interface{} {
	streams := make(map[string]string, len(n.Streams))
	for k, v := range n.Streams {
		streams[k] = v
	}
	return map[string]interface{}{
		"id":           n.ID,
		"name":         n.Name,
		"type":         string(n.Type),
		"status":       string(n.Status),
		"last_checked": n.LastChecked,
		"ip":           n.IP,
		"port":         n.Port,
		"protocol":     string(n.Protocol),
		"streams":      streams,
	}
}

// Clone returns a deep copy, so registry snapshots never alias live values.
func (n *Network) Clone() *Network {
	out := *n
	out.Streams = make(map[string]string, len(n.Streams))
	for k, v := range n.Streams {
		out.Streams[k] = v
	}
	return &out
}

// Clone returns a deep copy of a local device.
func (d *Local) Clone() *Local {
	out := *d
	out.Formats = append([]string(nil), d.Formats...)
	out.Resolutions = append([]string(nil), d.Resolutions...)
	return &out
}
