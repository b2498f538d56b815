// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package manager_network implements the network device manager: periodic
// reachability probing, discovery ingestion, CRUD over the bus, and durable
// persistence of the device registry.
package manager_network

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
	"github.com/rapidaai/streamhub/pkg/utils"
)

// Bus surface of the network device manager.
const (
	ClientID      = "network_device_manager"
	commandPrefix = "command/network_devices/"
	commandTopics = "command/network_devices/#"
	resultTopic   = "command/network_devices/result"
	infoTopic     = "info/network_devices"
	streamsTopic  = "info/network_devices/streams"
	eventPrefix   = "event/network_devices"
)

// DefaultPort is assumed for added devices that do not name one (RTSP).
const DefaultPort = 554

const scanTick = time.Second

// Manager is the network device manager.
type Manager struct {
	logger   commons.Logger
	client   *bus.Client
	registry *device.NetworkRegistry
	store    *device.Store
	monitor  Monitor
	orch     manager.StreamOrchestrator

	scanInterval     time.Duration
	discoveryEnabled bool

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New builds the manager, registers its bus client, and restores the
// persisted registry. Restored devices come back with Unknown status and no
// credentials.
func New(
	logger commons.Logger,
	cfg *config.Store,
	broker *bus.Broker,
	monitor Monitor,
	orch manager.StreamOrchestrator,
) (*Manager, error) {
	client, err := bus.NewClient(ClientID, broker, logger)
	if err != nil {
		return nil, err
	}
	interval := cfg.GetInt("network_devices.scan_interval")
	if interval <= 0 {
		interval = 60
	}

	m := &Manager{
		logger:           logger,
		client:           client,
		registry:         device.NewNetworkRegistry(),
		store:            device.NewStore(logger, cfg.GetString("system.storage_path")),
		monitor:          monitor,
		orch:             orch,
		scanInterval:     time.Duration(interval) * time.Second,
		discoveryEnabled: cfg.GetBool("network_devices.discovery_enabled"),
		stopCh:           make(chan struct{}),
	}

	restored, err := m.store.Load()
	if err != nil {
		logger.Errorw("could not load persisted network devices", "error", err.Error())
	}
	for _, d := range restored {
		d.Status = device.StatusUnknown
		m.registry.Replace(d)
	}
	if len(restored) > 0 {
		logger.Infow("restored network devices", "count", len(restored))
	}
	return m, nil
}

// Name identifies the manager to the supervisor.
func (m *Manager) Name() string { return "network_devices" }

// Registry exposes the device registry (read-only use).
func (m *Manager) Registry() *device.NetworkRegistry { return m.registry }

// Start subscribes to the command topics and launches the scan loop.
func (m *Manager) Start() error {
	if !m.running.CompareAndSwap(false, true) {
		return nil
	}
	m.client.Subscribe(commandTopics, m.handleCommand)
	m.wg.Add(1)
	go m.scanLoop()
	m.logger.Infow("network device manager started",
		"scan_interval", m.scanInterval.String(),
		"discovery", m.discoveryEnabled,
		"devices", m.registry.Len(),
	)
	return nil
}

// Stop halts the scan loop, tears down streams, persists the registry, and
// closes the bus client. Idempotent.
func (m *Manager) Stop() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	close(m.stopCh)
	m.wg.Wait()
	m.orch.Shutdown()
	m.persist()
	m.client.Close()
	m.logger.Infow("network device manager stopped")
}

// scanLoop runs scan cycles on the configured interval, polling the stop
// flag every second.
func (m *Manager) scanLoop() {
	defer m.wg.Done()

	m.scan()

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

// scan is one full cycle: re-probe stale devices, ingest discovery,
// persist, publish the registry snapshot.
func (m *Manager) scan() {
	staleAfter := m.scanInterval / 2
	now := time.Now().UTC()

	for id, d := range m.registry.List() {
		if now.Sub(d.LastChecked) < staleAfter {
			continue
		}
		status := m.monitor.CheckDeviceStatus(d)
		previous, ok := m.registry.UpdateStatus(id, status)
		if ok && previous != status {
			m.logger.Infow("network device status changed",
				"device_id", id, "from", string(previous), "to", string(status))
			m.client.Publish(eventPrefix+"/status/"+id, bus.Payload{
				"device_id": id,
				"status":    string(status),
			})
		}
	}

	if m.discoveryEnabled {
		m.ingestDiscovery()
	}

	m.persist()
	m.publishInfo()
}

// ingestDiscovery registers every discovered endpoint whose ip:port is not
// already known.
func (m *Manager) ingestDiscovery() {
	for _, rec := range m.monitor.DiscoverDevices() {
		port := rec.Port
		if port == 0 {
			port = DefaultPort
		}
		id := device.NetworkID(rec.IP, port)
		if _, ok := m.registry.Get(id); ok {
			continue
		}
		name := rec.Name
		if name == "" {
			name = id
		}
		devType := rec.Type
		if !devType.Valid() {
			devType = device.TypeVideo
		}
		protocol := rec.Protocol
		if !protocol.Valid() {
			protocol = device.ProtocolRTSP
		}
		streams := rec.Paths
		if streams == nil {
			streams = make(map[string]string)
		}
		d := &device.Network{
			Header: device.Header{
				ID:     id,
				Name:   name,
				Type:   devType,
				Status: device.StatusUnknown,
			},
			IP:       rec.IP,
			Port:     port,
			Protocol: protocol,
			Username: rec.Username,
			Password: rec.Password,
			Streams:  streams,
		}
		if m.registry.Insert(d) {
			m.logger.Infow("discovered network device", "device_id", id)
			m.client.Publish(eventPrefix+"/added/"+id, d.Snapshot())
		}
	}
}

// persist writes the registry to disk. Persistence failures are logged and
// never fail the surrounding operation; memory stays authoritative.
func (m *Manager) persist() {
	if err := m.store.Save(m.registry.List()); err != nil {
		m.logger.Errorw("could not persist network devices", "error", err.Error())
	}
}

func (m *Manager) publishInfo() {
	devices := bus.Payload{}
	for id, d := range m.registry.List() {
		devices[id] = d.Snapshot()
	}
	m.client.Publish(infoTopic, bus.Payload{"devices": devices})
}

func (m *Manager) publishStreams() {
	streams := make([]interface{}, 0)
	for _, info := range m.orch.Streams() {
		streams = append(streams, info)
	}
	m.client.Publish(streamsTopic, bus.Payload{"streams": streams})
}

// ============================================================================
// Command handling
// ============================================================================

type addRequest struct {
	Name     string            `mapstructure:"name" validate:"required"`
	IP       string            `mapstructure:"ip" validate:"required,ipv4"`
	Port     int               `mapstructure:"port" validate:"omitempty,gte=1,lte=65535"`
	Type     string            `mapstructure:"type" validate:"omitempty,oneof=video audio"`
	Protocol string            `mapstructure:"protocol" validate:"omitempty,oneof=rtsp rtmp http"`
	Username string            `mapstructure:"username"`
	Password string            `mapstructure:"password"`
	Paths    map[string]string `mapstructure:"paths"`
}

type removeRequest struct {
	DeviceID string `mapstructure:"device_id" validate:"required"`
}

type updateRequest struct {
	DeviceID string            `mapstructure:"device_id" validate:"required"`
	Name     string            `mapstructure:"name"`
	IP       string            `mapstructure:"ip" validate:"omitempty,ipv4"`
	Port     int               `mapstructure:"port" validate:"omitempty,gte=1,lte=65535"`
	Type     string            `mapstructure:"type" validate:"omitempty,oneof=video audio"`
	Protocol string            `mapstructure:"protocol" validate:"omitempty,oneof=rtsp rtmp http"`
	Username string            `mapstructure:"username"`
	Password string            `mapstructure:"password"`
	Paths    map[string]string `mapstructure:"paths"`
}

type startStreamRequest struct {
	DeviceID string `mapstructure:"device_id" validate:"required"`
	Protocol string `mapstructure:"protocol" validate:"omitempty,oneof=rtsp rtmp webrtc"`
}

type stopStreamRequest struct {
	StreamID string `mapstructure:"stream_id" validate:"required"`
}

// handleCommand dispatches one command message. Validation failures become
// result payloads; they never interrupt the scan loop.
func (m *Manager) handleCommand(topic string, payload bus.Payload) {
	verb := strings.TrimPrefix(topic, commandPrefix)
	switch verb {
	case "add":
		m.add(payload)
	case "remove":
		m.remove(payload)
	case "update":
		m.update(payload)
	case "scan":
		m.scan()
		m.client.Publish(resultTopic, manager.Result(true, nil))
	case "get_devices":
		m.publishInfo()
	case "get_streams":
		m.publishStreams()
	case "start_stream":
		m.startStream(payload)
	case "stop_stream":
		m.stopStream(payload)
	case "result":
		// Our own result echoes; nothing to do.
	default:
		m.logger.Warnw("unknown network device command", "topic", topic)
		m.client.Publish(resultTopic,
			manager.Result(false, fmt.Errorf("%w %q", manager.ErrUnknownCommand, verb)))
	}
}

func (m *Manager) add(payload bus.Payload) {
	var req addRequest
	if err := manager.DecodeCommand(payload, &req); err != nil {
		m.logger.Warnw("rejecting add", "error", err.Error())
		m.client.Publish(resultTopic, manager.Result(false, err))
		return
	}
	if utils.IsEmpty(req.Name) {
		err := fmt.Errorf("device name must not be blank")
		m.logger.Warnw("rejecting add", "error", err.Error())
		m.client.Publish(resultTopic, manager.Result(false, err))
		return
	}
	if req.Port == 0 {
		req.Port = DefaultPort
	}
	if req.Type == "" {
		req.Type = string(device.TypeVideo)
	}
	if req.Protocol == "" {
		req.Protocol = string(device.ProtocolRTSP)
	}
	streams := req.Paths
	if streams == nil {
		streams = make(map[string]string)
	}

	id := device.NetworkID(req.IP, req.Port)
	d := &device.Network{
		Header: device.Header{
			ID:     id,
			Name:   req.Name,
			Type:   device.Type(req.Type),
			Status: device.StatusUnknown,
		},
		IP:       req.IP,
		Port:     req.Port,
		Protocol: device.Protocol(req.Protocol),
		Username: req.Username,
		Password: req.Password,
		Streams:  streams,
	}
	if !m.registry.Insert(d) {
		err := fmt.Errorf("%w: %q", manager.ErrDuplicateDevice, id)
		m.logger.Warnw("rejecting add", "error", err.Error())
		m.client.Publish(resultTopic, manager.Result(false, err))
		return
	}

	m.persist()
	m.logger.Infow("network device added", "device_id", id, "name", req.Name)
	m.client.Publish(eventPrefix+"/added/"+id, d.Snapshot())
	result := manager.Result(true, nil)
	result["device_id"] = id
	m.client.Publish(resultTopic, result)
}

func (m *Manager) remove(payload bus.Payload) {
	var req removeRequest
	if err := manager.DecodeCommand(payload, &req); err != nil {
		m.logger.Warnw("rejecting remove", "error", err.Error())
		m.client.Publish(resultTopic, manager.Result(false, err))
		return
	}
	if !m.registry.Remove(req.DeviceID) {
		err := fmt.Errorf("%w %q", manager.ErrUnknownDevice, req.DeviceID)
		m.client.Publish(resultTopic, manager.Result(false, err))
		return
	}
	m.persist()
	m.logger.Infow("network device removed", "device_id", req.DeviceID)
	m.client.Publish(eventPrefix+"/removed/"+req.DeviceID, bus.Payload{
		"device_id": req.DeviceID,
	})
	m.client.Publish(resultTopic, manager.Result(true, nil))
}

func (m *Manager) update(payload bus.Payload) {
	var req updateRequest
	if err := manager.DecodeCommand(payload, &req); err != nil {
		m.logger.Warnw("rejecting update", "error", err.Error())
		m.client.Publish(resultTopic, manager.Result(false, err))
		return
	}
	d, ok := m.registry.Get(req.DeviceID)
	if !ok {
		err := fmt.Errorf("%w %q", manager.ErrUnknownDevice, req.DeviceID)
		m.client.Publish(resultTopic, manager.Result(false, err))
		return
	}

	if !utils.IsEmpty(req.Name) {
		d.Name = req.Name
	}
	if req.Type != "" {
		d.Type = device.Type(req.Type)
	}
	if req.Protocol != "" {
		d.Protocol = device.Protocol(req.Protocol)
	}
	if req.Username != "" {
		d.Username = req.Username
	}
	if req.Password != "" {
		d.Password = req.Password
	}
	if req.Paths != nil {
		d.Streams = req.Paths
	}

	// Changing the endpoint re-keys the device: the composite id always
	// equals "ip:port".
	newIP, newPort := d.IP, d.Port
	if req.IP != "" {
		newIP = req.IP
	}
	if req.Port != 0 {
		newPort = req.Port
	}
	newID := device.NetworkID(newIP, newPort)
	if newID != d.ID {
		if _, exists := m.registry.Get(newID); exists {
			err := fmt.Errorf("%w: %q", manager.ErrDuplicateDevice, newID)
			m.client.Publish(resultTopic, manager.Result(false, err))
			return
		}
		m.registry.Remove(d.ID)
		d.ID = newID
		d.IP = newIP
		d.Port = newPort
	}
	m.registry.Replace(d)

	m.persist()
	m.logger.Infow("network device updated", "device_id", d.ID)
	m.client.Publish(eventPrefix+"/updated/"+d.ID, d.Snapshot())
	m.client.Publish(resultTopic, manager.Result(true, nil))
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
		m.client.Publish(resultTopic, manager.Result(false, err))
		return
	}
	url, err := m.orch.StartStream(stream.NetworkSource(d), stream.Protocol(req.Protocol))
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
