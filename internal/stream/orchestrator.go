// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package stream

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rapidaai/streamhub/internal/bus"
	"github.com/rapidaai/streamhub/internal/config"
	"github.com/rapidaai/streamhub/pkg/commons"
)

// Orchestrator contract errors.
var (
	ErrUnsupportedProtocol = errors.New("stream: unsupported protocol")
	ErrInvalidDeviceType   = errors.New("stream: invalid device type")
	ErrTranscoderFailed    = errors.New("stream: transcoder exited during startup")
	ErrAncillaryFailed     = errors.New("stream: ancillary process exited during startup")
)

// Publisher is the slice of the bus a manager hands its orchestrator for
// surfacing stream lifecycle events.
type Publisher interface {
	Publish(topic string, payload bus.Payload)
}

// Orchestrator owns the active streams of one manager: it assigns ports,
// launches and supervises the transcoder and any ancillary process, tracks
// sessions in a registry, and emits start/stop events on the bus.
//
// All operations serialize on a single mutex covering the stream map and
// port allocation: two concurrent starts for the same (device, protocol)
// either both return the same URL or one creates and one finds.
type Orchestrator struct {
	mu     sync.Mutex
	logger commons.Logger

	streams   map[string]*Stream
	launchers map[Protocol]Launcher

	publisher   Publisher
	eventPrefix string

	transcoderBin string
	storagePath   string
	portBase      map[Protocol]int
	startupGrace  time.Duration
	stopTimeout   time.Duration
}

// NewOrchestrator wires an orchestrator from configuration. eventPrefix is
// the manager's event namespace (for example "event/local_devices");
// lifecycle events are published beneath it. publisher may be nil, in which
// case events are skipped.
func NewOrchestrator(logger commons.Logger, cfg *config.Store, publisher Publisher, eventPrefix string) *Orchestrator {
	launchers := map[Protocol]Launcher{
		ProtocolRTSP: NewRTSPLauncher(),
		ProtocolRTMP: NewRTMPLauncher(cfg.GetString("streaming.rtmp.server_bin")),
		ProtocolWebRTC: NewWebRTCLauncher(
			cfg.GetString("streaming.webrtc.server_bin"),
			cfg.GetString("streaming.webrtc.stun_server"),
		),
	}
	return &Orchestrator{
		logger:      logger,
		streams:     make(map[string]*Stream),
		launchers:   launchers,
		publisher:   publisher,
		eventPrefix: eventPrefix,

		transcoderBin: cfg.GetString("streaming.transcoder_bin"),
		storagePath:   cfg.GetString("system.storage_path"),
		portBase: map[Protocol]int{
			ProtocolRTSP:   cfg.GetInt("streaming.rtsp.port_start"),
			ProtocolRTMP:   cfg.GetInt("streaming.rtmp.port_start"),
			ProtocolWebRTC: cfg.GetInt("streaming.webrtc.port_start"),
		},
		startupGrace: time.Duration(cfg.GetInt("streaming.startup_grace_seconds")) * time.Second,
		stopTimeout:  time.Duration(cfg.GetInt("streaming.stop_timeout_seconds")) * time.Second,
	}
}

// StartStream launches a transcoding session for the source on the given
// protocol and returns the externally reachable URL. Starting a second
// session on an existing (device, protocol) pair returns the existing URL
// without launching anything.
func (o *Orchestrator) StartStream(src Source, protocol Protocol) (string, error) {
	if !protocol.Valid() {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedProtocol, protocol)
	}
	if !src.Type.Valid() {
		return "", fmt.Errorf("%w: %s", ErrInvalidDeviceType, src.Type)
	}
	launcher, ok := o.launchers[protocol]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedProtocol, protocol)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	for _, s := range o.streams {
		if s.DeviceID == src.DeviceID && s.Protocol == protocol {
			return s.URL, nil
		}
	}

	streamID := uuid.New().String()
	outputDir := filepath.Join(o.storagePath, "streams", streamID)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("could not create stream output directory: %w", err)
	}

	port, err := o.allocatePortLocked(protocol)
	if err != nil {
		return "", err
	}

	input, err := launcher.InputArgs(src)
	if err != nil {
		return "", err
	}
	output, err := launcher.OutputArgs(src, port, streamID, outputDir)
	if err != nil {
		return "", err
	}

	ancSpec, err := launcher.Prepare(outputDir, port, streamID)
	if err != nil {
		return "", err
	}

	// The output directory is deliberately left behind on failure paths
	// below: it holds the generated configs and any early process output,
	// which is what a post-mortem needs.

	var ancillary *process
	if ancSpec != nil {
		ancillary, err = startProcess(o.logger, ancSpec.Name, ancSpec.Bin, ancSpec.Args, outputDir)
		if err != nil {
			return "", err
		}
		if !ancillary.waitExit(o.startupGrace) {
			return "", fmt.Errorf("%w: %s", ErrAncillaryFailed, ancSpec.Name)
		}
	}

	args := append(append([]string{}, input...), output...)
	transcoder, err := startProcess(o.logger, "transcoder", o.transcoderBin, args, outputDir)
	if err != nil {
		if ancillary != nil {
			ancillary.stop(o.logger, o.stopTimeout)
		}
		return "", err
	}
	if !transcoder.waitExit(o.startupGrace) {
		if ancillary != nil {
			ancillary.stop(o.logger, o.stopTimeout)
		}
		return "", ErrTranscoderFailed
	}
	if ancillary != nil && !ancillary.alive() {
		transcoder.stop(o.logger, o.stopTimeout)
		return "", fmt.Errorf("%w: %s", ErrAncillaryFailed, ancSpec.Name)
	}

	url := launcher.StreamURL(port, streamID)
	s := &Stream{
		ID:         streamID,
		DeviceID:   src.DeviceID,
		DeviceType: src.Type,
		Protocol:   protocol,
		URL:        url,
		OutputDir:  outputDir,
		Port:       port,
		transcoder: transcoder,
		ancillary:  ancillary,
	}
	o.streams[streamID] = s

	o.logger.Infow("stream started",
		"stream_id", streamID,
		"device_id", src.DeviceID,
		"protocol", string(protocol),
		"port", port,
		"transcoder_pid", transcoder.pid(),
	)
	o.publish("stream_started", bus.Payload{
		"stream_id": streamID,
		"device_id": src.DeviceID,
		"type":      string(src.Type),
		"protocol":  string(protocol),
		"url":       url,
	})
	return url, nil
}

// StopStream terminates the session's processes and removes it from the
// registry. Returns false for unknown ids; safe to call repeatedly.
func (o *Orchestrator) StopStream(streamID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stopLocked(streamID)
}

func (o *Orchestrator) stopLocked(streamID string) bool {
	s, ok := o.streams[streamID]
	if !ok {
		return false
	}

	s.transcoder.stop(o.logger, o.stopTimeout)
	if s.ancillary != nil {
		s.ancillary.stop(o.logger, o.stopTimeout)
	}

	// Registry removal is the last mutation before the stop event, so a
	// caller that no longer sees the id can safely retry start.
	delete(o.streams, streamID)

	o.logger.Infow("stream stopped",
		"stream_id", streamID, "device_id", s.DeviceID)
	o.publish("stream_stopped", bus.Payload{
		"stream_id": s.ID,
		"device_id": s.DeviceID,
		"type":      string(s.DeviceType),
	})
	return true
}

// FindURL returns the URL of the active stream on (deviceID, protocol), if
// one exists.
func (o *Orchestrator) FindURL(deviceID string, protocol Protocol) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, s := range o.streams {
		if s.DeviceID == deviceID && s.Protocol == protocol {
			return s.URL, true
		}
	}
	return "", false
}

// Streams returns a snapshot of every active session, ordered by id.
func (o *Orchestrator) Streams() []Info {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Info, 0, len(o.streams))
	for _, s := range o.streams {
		out = append(out, s.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Shutdown stops every active stream. Called by the owning manager during
// supervisor shutdown, before its bus client closes.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]string, 0, len(o.streams))
	for id := range o.streams {
		ids = append(ids, id)
	}
	for _, id := range ids {
		o.stopLocked(id)
	}
}

// allocatePortLocked probes for a free port above the protocol's base,
// excluding ports held by still-running streams. Callers hold o.mu, which
// makes probe + insert a single critical section.
func (o *Orchestrator) allocatePortLocked(protocol Protocol) (int, error) {
	reserved := make(map[int]struct{}, len(o.streams))
	for _, s := range o.streams {
		reserved[s.Port] = struct{}{}
	}
	port, err := findFreePort(o.portBase[protocol], reserved)
	if err != nil {
		return 0, fmt.Errorf("%w (base %d)", err, o.portBase[protocol])
	}
	return port, nil
}

func (o *Orchestrator) publish(kind string, payload bus.Payload) {
	if o.publisher == nil {
		return
	}
	o.publisher.Publish(o.eventPrefix+"/"+kind, payload)
}
