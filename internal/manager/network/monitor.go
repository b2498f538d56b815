// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package manager_network

import (
	"net"
	"time"

	"github.com/rapidaai/streamhub/internal/device"
	"github.com/rapidaai/streamhub/pkg/commons"
)

// Discovered is one record produced by a discovery probe (ONVIF, UPnP,
// mDNS). The concrete probes live outside the core; the manager only
// ingests their output.
type Discovered struct {
	IP       string
	Port     int
	Type     device.Type
	Protocol device.Protocol
	Name     string
	Username string
	Password string
	Paths    map[string]string
}

// Discoverer is a single discovery method.
type Discoverer interface {
	Discover() []Discovered
}

// Monitor probes known devices for reachability and runs discovery.
type Monitor interface {
	CheckDeviceStatus(d *device.Network) device.Status
	DiscoverDevices() []Discovered
}

// probeTimeout bounds each reachability dial.
const probeTimeout = 2 * time.Second

// tcpMonitor determines reachability with a bounded TCP dial against the
// device's ip:port, and fans discovery out to the injected discoverers.
type tcpMonitor struct {
	logger      commons.Logger
	discoverers []Discoverer
}

// NewTCPMonitor builds the default monitor. discoverers may be empty, in
// which case DiscoverDevices never produces records.
func NewTCPMonitor(logger commons.Logger, discoverers ...Discoverer) Monitor {
	return &tcpMonitor{logger: logger, discoverers: discoverers}
}

func (m *tcpMonitor) CheckDeviceStatus(d *device.Network) device.Status {
	conn, err := net.DialTimeout("tcp", d.Address(), probeTimeout)
	if err != nil {
		return device.StatusOffline
	}
	conn.Close()
	return device.StatusOnline
}

func (m *tcpMonitor) DiscoverDevices() []Discovered {
	var out []Discovered
	for _, d := range m.discoverers {
		out = append(out, d.Discover()...)
	}
	return out
}
