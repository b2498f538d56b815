// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package supervisor owns the broker, the configuration store, and the
// managers. It is the only place where the pieces are wired together; there
// is no process-global state.
package supervisor

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rapidaai/streamhub/internal/bus"
	"github.com/rapidaai/streamhub/internal/config"
	"github.com/rapidaai/streamhub/internal/manager"
	manager_local "github.com/rapidaai/streamhub/internal/manager/local"
	manager_network "github.com/rapidaai/streamhub/internal/manager/network"
	"github.com/rapidaai/streamhub/internal/stream"
	"github.com/rapidaai/streamhub/pkg/commons"
)

// ClientID is the supervisor's own bus identity.
const ClientID = "supervisor"

const statusTopic = "system/status"

// Supervisor builds and drives the whole core: broker, bus clients,
// managers and their orchestrators.
type Supervisor struct {
	logger commons.Logger
	cfg    *config.Store

	broker   *bus.Broker
	client   *bus.Client
	managers []manager.Manager

	mu      sync.Mutex
	started bool
}

// Option overrides collaborator construction, mainly for tests.
type Option func(*builders)

type builders struct {
	scanner manager_local.Scanner
	monitor manager_network.Monitor
}

// WithScanner injects a local device scanner.
func WithScanner(s manager_local.Scanner) Option {
	return func(b *builders) { b.scanner = s }
}

// WithMonitor injects a network device monitor.
func WithMonitor(m manager_network.Monitor) Option {
	return func(b *builders) { b.monitor = m }
}

// New wires the supervisor: one broker, one bus client for itself, and the
// two device managers with their own orchestrators.
func New(logger commons.Logger, cfg *config.Store, opts ...Option) (*Supervisor, error) {
	b := builders{
		scanner: manager_local.NewPlatformScanner(),
		monitor: manager_network.NewTCPMonitor(logger),
	}
	for _, opt := range opts {
		opt(&b)
	}

	broker := bus.NewBroker(logger)
	client, err := bus.NewClient(ClientID, broker, logger)
	if err != nil {
		return nil, err
	}

	localOrch := stream.NewOrchestrator(logger, cfg, client, "event/local_devices")
	local, err := manager_local.New(logger, cfg, broker, b.scanner, localOrch)
	if err != nil {
		return nil, err
	}

	networkOrch := stream.NewOrchestrator(logger, cfg, client, "event/network_devices")
	network, err := manager_network.New(logger, cfg, broker, b.monitor, networkOrch)
	if err != nil {
		return nil, err
	}

	return &Supervisor{
		logger:   logger,
		cfg:      cfg,
		broker:   broker,
		client:   client,
		managers: []manager.Manager{local, network},
	}, nil
}

// Broker exposes the bus for external clients (REST facade, automation,
// tests).
func (s *Supervisor) Broker() *bus.Broker { return s.broker }

// Start launches every manager and announces the system on the bus.
// Idempotent.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	var g errgroup.Group
	for _, m := range s.managers {
		g.Go(m.Start)
	}
	if err := g.Wait(); err != nil {
		return err
	}
	s.started = true

	names := make([]string, 0, len(s.managers))
	for _, m := range s.managers {
		names = append(names, m.Name())
	}
	s.client.Publish(statusTopic, bus.Payload{
		"status":    "started",
		"timestamp": time.Now().UTC(),
		"info":      bus.Payload{"managers": names},
	})
	s.logger.Infow("supervisor started", "managers", names)
	return nil
}

// Stop announces shutdown, stops every manager (which drains its streams
// and scan loop), then closes the supervisor's own client. Idempotent.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.started = false

	s.client.Publish(statusTopic, bus.Payload{
		"status":    "stopped",
		"timestamp": time.Now().UTC(),
	})
	for _, m := range s.managers {
		m.Stop()
	}
	s.client.Close()
	s.logger.Infow("supervisor stopped")
}

// Run starts the system and blocks until an interrupt or termination
// signal arrives, then performs an ordered stop.
func (s *Supervisor) Run() error {
	if err := s.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	sig := <-sigCh
	s.logger.Infow("shutdown signal received", "signal", sig.String())
	s.Stop()
	return nil
}
