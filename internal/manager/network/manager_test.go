// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package manager_network

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/streamhub/internal/bus"
	"github.com/rapidaai/streamhub/internal/config"
	"github.com/rapidaai/streamhub/internal/device"
	"github.com/rapidaai/streamhub/internal/stream"
	"github.com/rapidaai/streamhub/pkg/commons"
)

// ============================================================================
// Test fakes
// ============================================================================

type fakeMonitor struct {
	mu         sync.Mutex
	status     device.Status
	discovered []Discovered
}

func (f *fakeMonitor) CheckDeviceStatus(d *device.Network) device.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeMonitor) DiscoverDevices() []Discovered {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Discovered(nil), f.discovered...)
}

type fakeOrchestrator struct {
	mu      sync.Mutex
	started []string
}

func (o *fakeOrchestrator) StartStream(src stream.Source, protocol stream.Protocol) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, src.DeviceID)
	return "rtsp://localhost:8554/" + src.DeviceID, nil
}

func (o *fakeOrchestrator) StopStream(streamID string) bool { return false }
func (o *fakeOrchestrator) Streams() []stream.Info          { return nil }
func (o *fakeOrchestrator) Shutdown()                       {}

type observer struct {
	mu       sync.Mutex
	messages []bus.Message
}

func (r *observer) handler(topic string, payload bus.Payload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, bus.Message{Topic: topic, Payload: payload})
}

func (r *observer) find(topic string) (bus.Payload, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.Topic == topic {
			return m.Payload, true
		}
	}
	return nil, false
}

func (r *observer) results() []bus.Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []bus.Payload
	for _, m := range r.messages {
		if m.Topic == resultTopic {
			out = append(out, m.Payload)
		}
	}
	return out
}

// ============================================================================
// Harness
// ============================================================================

type harness struct {
	manager *Manager
	monitor *fakeMonitor
	orch    *fakeOrchestrator
	obs     *observer
	cfg     *config.Store
	broker  *bus.Broker
	logger  commons.Logger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger, err := commons.NewApplicationLogger(commons.Name("network-test"))
	require.NoError(t, err)

	cfg := config.NewStore(logger,
		config.WithSystemFile(""), config.WithUserFile(""), config.WithProjectFile(""))
	cfg.Set(config.LayerProject, "system.storage_path", t.TempDir())
	cfg.Set(config.LayerProject, "network_devices.scan_interval", 3600)

	broker := bus.NewBroker(logger)
	monitor := &fakeMonitor{status: device.StatusOnline}
	orch := &fakeOrchestrator{}
	m, err := New(logger, cfg, broker, monitor, orch)
	require.NoError(t, err)

	obs := &observer{}
	control, err := bus.NewClient("test_control", broker, logger,
		bus.WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)
	control.Subscribe("event/network_devices/#", obs.handler)
	control.Subscribe(resultTopic, obs.handler)
	control.Subscribe(infoTopic, obs.handler)
	t.Cleanup(control.Close)

	return &harness{
		manager: m, monitor: monitor, orch: orch, obs: obs,
		cfg: cfg, broker: broker, logger: logger,
	}
}

func await(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 3*time.Second, 10*time.Millisecond, msg)
}

func addPayload() bus.Payload {
	return bus.Payload{
		"name":     "front door",
		"ip":       "192.168.1.20",
		"username": "admin",
		"password": "hunter2",
	}
}

// ============================================================================
// Add
// ============================================================================

func TestNetworkManager_AddAppliesDefaults(t *testing.T) {
	h := newHarness(t)

	h.manager.handleCommand("command/network_devices/add", addPayload())

	d, ok := h.manager.Registry().Get("192.168.1.20:554")
	require.True(t, ok, "the device id defaults to ip:554")
	assert.Equal(t, device.TypeVideo, d.Type)
	assert.Equal(t, device.ProtocolRTSP, d.Protocol)
	assert.Equal(t, device.StatusUnknown, d.Status)
	assert.Equal(t, "admin", d.Username, "credentials stay in memory")

	await(t, func() bool { return len(h.obs.results()) == 1 }, "a result should arrive")
	result := h.obs.results()[0]
	assert.Equal(t, true, result["success"])
	assert.Equal(t, "192.168.1.20:554", result["device_id"])
}

func TestNetworkManager_AddEventRedactsCredentials(t *testing.T) {
	h := newHarness(t)

	h.manager.handleCommand("command/network_devices/add", addPayload())

	await(t, func() bool {
		_, ok := h.obs.find("event/network_devices/added/192.168.1.20:554")
		return ok
	}, "an added event should arrive")
	event, _ := h.obs.find("event/network_devices/added/192.168.1.20:554")
	assert.NotContains(t, event, "username")
	assert.NotContains(t, event, "password")
	for _, v := range event {
		assert.NotEqual(t, "hunter2", v)
	}
}

func TestNetworkManager_AddValidation(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name    string
		payload bus.Payload
	}{
		{"missing name", bus.Payload{"ip": "192.168.1.20"}},
		{"blank name", bus.Payload{"name": "   ", "ip": "192.168.1.20"}},
		{"missing ip", bus.Payload{"name": "cam"}},
		{"not dotted quad", bus.Payload{"name": "cam", "ip": "camera.local"}},
		{"port too high", bus.Payload{"name": "cam", "ip": "192.168.1.20", "port": 70000}},
		{"port zero is default, negative rejected", bus.Payload{"name": "cam", "ip": "192.168.1.20", "port": -1}},
		{"bad type", bus.Payload{"name": "cam", "ip": "192.168.1.20", "type": "screen"}},
		{"bad protocol", bus.Payload{"name": "cam", "ip": "192.168.1.20", "protocol": "ftp"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.manager.handleCommand("command/network_devices/add", tt.payload)
			assert.Equal(t, 0, h.manager.Registry().Len(),
				"invalid add must not touch the registry")
		})
	}
}

func TestNetworkManager_AddRejectsDuplicates(t *testing.T) {
	h := newHarness(t)

	h.manager.handleCommand("command/network_devices/add", addPayload())
	h.manager.handleCommand("command/network_devices/add", addPayload())

	assert.Equal(t, 1, h.manager.Registry().Len())
	await(t, func() bool { return len(h.obs.results()) == 2 }, "two results should arrive")
	assert.Equal(t, false, h.obs.results()[1]["success"])
}

// ============================================================================
// Remove / update
// ============================================================================

func TestNetworkManager_Remove(t *testing.T) {
	h := newHarness(t)
	h.manager.handleCommand("command/network_devices/add", addPayload())

	h.manager.handleCommand("command/network_devices/remove",
		bus.Payload{"device_id": "192.168.1.20:554"})
	assert.Equal(t, 0, h.manager.Registry().Len())

	await(t, func() bool {
		_, ok := h.obs.find("event/network_devices/removed/192.168.1.20:554")
		return ok
	}, "a removed event should arrive")
}

func TestNetworkManager_RemoveUnknown(t *testing.T) {
	h := newHarness(t)

	h.manager.handleCommand("command/network_devices/remove",
		bus.Payload{"device_id": "10.0.0.9:554"})

	await(t, func() bool { return len(h.obs.results()) == 1 }, "a result should arrive")
	assert.Equal(t, false, h.obs.results()[0]["success"])
}

func TestNetworkManager_UpdateFields(t *testing.T) {
	h := newHarness(t)
	h.manager.handleCommand("command/network_devices/add", addPayload())

	h.manager.handleCommand("command/network_devices/update", bus.Payload{
		"device_id": "192.168.1.20:554",
		"name":      "back door",
		"protocol":  "rtmp",
	})

	d, ok := h.manager.Registry().Get("192.168.1.20:554")
	require.True(t, ok)
	assert.Equal(t, "back door", d.Name)
	assert.Equal(t, device.ProtocolRTMP, d.Protocol)
}

func TestNetworkManager_UpdateEndpointRekeysDevice(t *testing.T) {
	h := newHarness(t)
	h.manager.handleCommand("command/network_devices/add", addPayload())

	h.manager.handleCommand("command/network_devices/update", bus.Payload{
		"device_id": "192.168.1.20:554",
		"port":      8554,
	})

	_, ok := h.manager.Registry().Get("192.168.1.20:554")
	assert.False(t, ok, "the old id must be gone")
	d, ok := h.manager.Registry().Get("192.168.1.20:8554")
	require.True(t, ok, "the device must live under its new ip:port id")
	assert.Equal(t, 8554, d.Port)
}

func TestNetworkManager_UpdateRekeyCollision(t *testing.T) {
	h := newHarness(t)
	h.manager.handleCommand("command/network_devices/add", addPayload())
	h.manager.handleCommand("command/network_devices/add", bus.Payload{
		"name": "side door", "ip": "192.168.1.21",
	})

	h.manager.handleCommand("command/network_devices/update", bus.Payload{
		"device_id": "192.168.1.21:554",
		"ip":        "192.168.1.20",
	})

	// The collision must leave both devices untouched.
	assert.Equal(t, 2, h.manager.Registry().Len())
	_, ok := h.manager.Registry().Get("192.168.1.21:554")
	assert.True(t, ok)
}

// ============================================================================
// Persistence
// ============================================================================

func TestNetworkManager_DevicesSurviveRestartWithoutCredentials(t *testing.T) {
	h := newHarness(t)
	h.manager.handleCommand("command/network_devices/add", addPayload())

	raw, err := os.ReadFile(h.manager.store.Path())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "hunter2")
	assert.NotContains(t, string(raw), "admin")

	reborn, err := New(h.logger, h.cfg, bus.NewBroker(h.logger), h.monitor, h.orch)
	require.NoError(t, err)

	d, ok := reborn.Registry().Get("192.168.1.20:554")
	require.True(t, ok, "devices must be restored from disk")
	assert.Equal(t, "front door", d.Name)
	assert.Equal(t, device.StatusUnknown, d.Status,
		"restored devices start with unknown status")
	assert.Empty(t, d.Username)
	assert.Empty(t, d.Password)
}

// ============================================================================
// Scanning
// ============================================================================

func TestNetworkManager_ScanPublishesStatusChanges(t *testing.T) {
	h := newHarness(t)
	h.manager.handleCommand("command/network_devices/add", addPayload())

	h.monitor.mu.Lock()
	h.monitor.status = device.StatusOnline
	h.monitor.mu.Unlock()
	h.manager.scan()

	d, ok := h.manager.Registry().Get("192.168.1.20:554")
	require.True(t, ok)
	assert.Equal(t, device.StatusOnline, d.Status)

	await(t, func() bool {
		_, ok := h.obs.find("event/network_devices/status/192.168.1.20:554")
		return ok
	}, "a status event should arrive")
	event, _ := h.obs.find("event/network_devices/status/192.168.1.20:554")
	assert.Equal(t, "online", event["status"])
}

func TestNetworkManager_ScanSkipsRecentlyCheckedDevices(t *testing.T) {
	h := newHarness(t)
	h.manager.handleCommand("command/network_devices/add", addPayload())

	h.manager.scan() // probes: unknown -> online
	h.monitor.mu.Lock()
	h.monitor.status = device.StatusOffline
	h.monitor.mu.Unlock()
	h.manager.scan() // within interval/2 of the last check: no probe

	d, ok := h.manager.Registry().Get("192.168.1.20:554")
	require.True(t, ok)
	assert.Equal(t, device.StatusOnline, d.Status,
		"a freshly checked device must not be re-probed")
}

func TestNetworkManager_ScanIngestsDiscovery(t *testing.T) {
	h := newHarness(t)
	h.monitor.mu.Lock()
	h.monitor.discovered = []Discovered{
		{IP: "192.168.1.30", Name: "garage"},
		{IP: "192.168.1.31", Port: 8000, Type: device.TypeVideo, Protocol: device.ProtocolHTTP},
	}
	h.monitor.mu.Unlock()

	h.manager.scan()

	d, ok := h.manager.Registry().Get("192.168.1.30:554")
	require.True(t, ok, "a discovered device without a port gets the RTSP default")
	assert.Equal(t, "garage", d.Name)
	assert.Equal(t, device.ProtocolRTSP, d.Protocol)

	d, ok = h.manager.Registry().Get("192.168.1.31:8000")
	require.True(t, ok)
	assert.Equal(t, device.ProtocolHTTP, d.Protocol)

	// A second scan must not duplicate or reset the now-known endpoints.
	h.manager.scan()
	assert.Equal(t, 2, h.manager.Registry().Len())
}

// ============================================================================
// Streaming commands
// ============================================================================

func TestNetworkManager_StartStreamCommand(t *testing.T) {
	h := newHarness(t)
	h.manager.handleCommand("command/network_devices/add", addPayload())

	h.manager.handleCommand("command/network_devices/start_stream",
		bus.Payload{"device_id": "192.168.1.20:554"})

	h.orch.mu.Lock()
	started := append([]string(nil), h.orch.started...)
	h.orch.mu.Unlock()
	assert.Equal(t, []string{"192.168.1.20:554"}, started)
}

func TestNetworkManager_StartStreamUnknownDevice(t *testing.T) {
	h := newHarness(t)

	h.manager.handleCommand("command/network_devices/start_stream",
		bus.Payload{"device_id": "10.0.0.9:554"})

	await(t, func() bool { return len(h.obs.results()) == 1 }, "a result should arrive")
	assert.Equal(t, false, h.obs.results()[0]["success"])
}
