// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package manager_local implements the local device manager: periodic
// enumeration of attached capture devices, snapshot publication, and
// stream start/stop command handling over the bus.
package manager_local

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rapidaai/streamhub/internal/bus"
	"github.com/rapidaai/streamhub/internal/config"
	"github.com/rapidaai/streamhub/internal/device"
	"github.com/rapidaai/streamhub/internal/manager"
	"github.com/rapidaai/streamhub/internal/stream"
	"github.com/rapidaai/streamhub/pkg/commons"
)

// Bus surface of the local device manager.
const (
	ClientID      = "local_device_manager"
	commandPrefix = "command/local_devices/"
	commandTopics = "command/local_devices/#"
	resultTopic   = "command/local_devices/result"
	infoTopic     = "info/local_devices"
	streamsTopic  = "info/local_devices/streams"
)

// scanTick is the granularity at which the scan loop re-checks both the
// elapsed interval and the shutdown flag.
const scanTick = time.Second

// Manager is the local device manager.
type Manager struct {
	logger   commons.Logger
	client   *bus.Client
	scanner  Scanner
	registry *device.LocalRegistry
	orch     manager.StreamOrchestrator

	scanInterval time.Duration
	enableVideo  bool
	enableAudio  bool
	autoStart    bool

	running   atomic.Bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
	scannedCh chan struct{} // closed after the first completed scan
}

// New builds the manager and registers its bus client. Call Start to begin
// scanning and accepting commands.
func New(
	logger commons.Logger,
	cfg *config.Store,
	broker *bus.Broker,
	scanner Scanner,
	orch manager.StreamOrchestrator,
) (*Manager, error) {
	client, err := bus.NewClient(ClientID, broker, logger)
	if err != nil {
		return nil, err
	}
	interval := cfg.GetInt("local_devices.scan_interval")
	if interval <= 0 {
		interval = 60
	}
	return &Manager{
		logger:       logger,
		client:       client,
		scanner:      scanner,
		registry:     device.NewLocalRegistry(),
		orch:         orch,
		scanInterval: time.Duration(interval) * time.Second,
		enableVideo:  cfg.GetBool("local_devices.enable_video"),
		enableAudio:  cfg.GetBool("local_devices.enable_audio"),
		autoStart:    cfg.GetBool("local_devices.auto_start"),
		stopCh:       make(chan struct{}),
		scannedCh:    make(chan struct{}),
	}, nil
}

// Name identifies the manager to the supervisor.
func (m *Manager) Name() string { return "local_devices" }

// Registry exposes the device registry (read-only use).
func (m *Manager) Registry() *device.LocalRegistry { return m.registry }

// Start subscribes to the command topics and launches the scan loop.
func (m *Manager) Start() error {
	if !m.running.CompareAndSwap(false, true) {
		return nil
	}
	m.client.Subscribe(commandTopics, m.handleCommand)
	m.wg.Add(1)
	go m.scanLoop()
	m.logger.Infow("local device manager started",
		"scan_interval", m.scanInterval.String(),
		"video", m.enableVideo,
		"audio", m.enableAudio,
	)
	return nil
}

// Stop halts the scan loop, tears down any streams this manager owns, and
// closes the bus client. Idempotent.
func (m *Manager) Stop() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	close(m.stopCh)
	m.wg.Wait()
	m.orch.Shutdown()
	m.client.Close()
	m.logger.Infow("local device manager stopped")
}

// WaitForScan blocks until the first scan completes or the timeout passes.
func (m *Manager) WaitForScan(timeout time.Duration) bool {
	select {
	case <-m.scannedCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// scanLoop re-enumerates devices on the configured interval. The sleep is
// polled in one-second ticks so shutdown is observed within a second.
func (m *Manager) scanLoop() {
	defer m.wg.Done()

	m.scan()
	close(m.scannedCh)
	if m.autoStart {
		m.autoStartStreams()
	}

	elapsed := time.Duration(0)
	ticker := time.NewTicker(scanTick)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			elapsed += scanTick
			if elapsed >= m.scanInterval {
				elapsed = 0
				m.scan()
			}
		}
	}
}

// scan replaces the enabled categories wholesale and publishes the
// registry snapshot.
func (m *Manager) scan() {
	if m.enableVideo {
		video, err := m.scanner.ScanVideoDevices()
		if err != nil {
			m.logger.Errorw("video device scan failed", "error", err.Error())
		} else {
			m.registry.ReplaceVideo(video)
		}
	}
	if m.enableAudio {
		audio, err := m.scanner.ScanAudioDevices()
		if err != nil {
			m.logger.Errorw("audio device scan failed", "error", err.Error())
		} else {
			m.registry.ReplaceAudio(audio)
		}
	}
	m.publishInfo()
}

// autoStartStreams starts an RTSP stream for every video device found by
// the first scan.
func (m *Manager) autoStartStreams() {
	for id, d := range m.registry.Video() {
		if _, err := m.orch.StartStream(stream.LocalSource(d), stream.ProtocolRTSP); err != nil {
			m.logger.Warnw("auto-start failed", "device_id", id, "error", err.Error())
		}
	}
}

func (m *Manager) publishInfo() {
	video := bus.Payload{}
	for id, d := range m.registry.Video() {
		video[id] = d.Snapshot()
	}
	audio := bus.Payload{}
	for id, d := range m.registry.Audio() {
		audio[id] = d.Snapshot()
	}
	m.client.Publish(infoTopic, bus.Payload{"video": video, "audio": audio})
}

func (m *Manager) publishStreams() {
	streams := make([]interface{}, 0)
	for _, info := range m.orch.Streams() {
		streams = append(streams, info)
	}
	m.client.Publish(streamsTopic, bus.Payload{"streams": streams})
}

type startStreamRequest struct {
	DeviceID string `mapstructure:"device_id" validate:"required"`
	Protocol string `mapstructure:"protocol" validate:"omitempty,oneof=rtsp rtmp webrtc"`
}

type stopStreamRequest struct {
	StreamID string `mapstructure:"stream_id" validate:"required"`
}

// handleCommand dispatches one command message. Failures become a result
// payload on the result topic; they never unwind the dispatcher.
func (m *Manager) handleCommand(topic string, payload bus.Payload) {
	verb := strings.TrimPrefix(topic, commandPrefix)
	switch verb {
	case "scan":
		m.scan()
		m.client.Publish(resultTopic, manager.Result(true, nil))
	case "start_stream":
		m.startStream(payload)
	case "stop_stream":
		m.stopStream(payload)
	case "get_devices":
		m.publishInfo()
	case "get_streams":
		m.publishStreams()
	case "result":
		// Our own result echoes; nothing to do.
	default:
		m.logger.Warnw("unknown local device command", "topic", topic)
		m.client.Publish(resultTopic,
			manager.Result(false, fmt.Errorf("%w %q", manager.ErrUnknownCommand, verb)))
	}
}

func (m *Manager) startStream(payload bus.Payload) {
	var req startStreamRequest
	if err := manager.DecodeCommand(payload, &req); err != nil {
		m.logger.Warnw("rejecting start_stream", "error", err.Error())
		m.client.Publish(resultTopic, manager.Result(false, err))
		return
	}
	if req.Protocol == "" {
		req.Protocol = string(stream.ProtocolRTSP)
	}

	d, ok := m.registry.Get(req.DeviceID)
	if !ok {
		err := fmt.Errorf("%w %q", manager.ErrUnknownDevice, req.DeviceID)
		m.logger.Warnw("rejecting start_stream", "error", err.Error())
		m.client.Publish(resultTopic, manager.Result(false, err))
		return
	}

	url, err := m.orch.StartStream(stream.LocalSource(d), stream.Protocol(req.Protocol))
	if err != nil {
		m.logger.Errorw("start_stream failed",
			"device_id", req.DeviceID, "error", err.Error())
		m.client.Publish(resultTopic, manager.Result(false, err))
		return
	}
	result := manager.Result(true, nil)
	result["url"] = url
	m.client.Publish(resultTopic, result)
}

func (m *Manager) stopStream(payload bus.Payload) {
	var req stopStreamRequest
	if err := manager.DecodeCommand(payload, &req); err != nil {
		m.logger.Warnw("rejecting stop_stream", "error", err.Error())
		m.client.Publish(resultTopic, manager.Result(false, err))
		return
	}
	if !m.orch.StopStream(req.StreamID) {
		m.client.Publish(resultTopic,
			manager.Result(false, fmt.Errorf("%w %q", manager.ErrUnknownStream, req.StreamID)))
		return
	}
	m.client.Publish(resultTopic, manager.Result(true, nil))
}
