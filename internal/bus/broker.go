// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package bus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rapidaai/streamhub/pkg/commons"
)

// ErrClientExists is returned by Register when the client id is taken.
var ErrClientExists = errors.New("bus: client id already registered")

// Broker routes topic-addressed messages between registered clients.
//
// It maintains two tables: pattern → subscriber ids and client id → client.
// All table mutation and match evaluation happens under a single mutex;
// enqueueing into a client mailbox also happens inside that region, so a
// single publisher's messages reach a given subscriber's mailbox in publish
// order. Draining the mailbox is the client dispatcher's job and runs
// outside the broker lock.
type Broker struct {
	mu     sync.Mutex
	logger commons.Logger

	clients       map[string]*Client
	subscriptions map[string]map[string]struct{}
}

// NewBroker creates an empty broker.
func NewBroker(logger commons.Logger) *Broker {
	return &Broker{
		logger:        logger,
		clients:       make(map[string]*Client),
		subscriptions: make(map[string]map[string]struct{}),
	}
}

// Register records a client by id. Fails if the id is already present.
func (b *Broker) Register(c *Client) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[c.id]; ok {
		return fmt.Errorf("%w: %s", ErrClientExists, c.id)
	}
	b.clients[c.id] = c
	b.logger.Debugw("bus client registered", "client_id", c.id)
	return nil
}

// Unregister removes the client and evicts it from every pattern's
// subscriber set. Idempotent.
func (b *Broker) Unregister(clientID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[clientID]; !ok {
		return
	}
	delete(b.clients, clientID)
	for pattern, subs := range b.subscriptions {
		delete(subs, clientID)
		if len(subs) == 0 {
			delete(b.subscriptions, pattern)
		}
	}
	b.logger.Debugw("bus client unregistered", "client_id", clientID)
}

// Subscribe adds the client to the subscribers of the literal pattern.
// Idempotent.
func (b *Broker) Subscribe(clientID, pattern string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.subscriptions[pattern]
	if !ok {
		subs = make(map[string]struct{})
		b.subscriptions[pattern] = subs
	}
	subs[clientID] = struct{}{}
}

// Unsubscribe removes the client from the pattern's subscriber set and
// drops the pattern entry once empty. Idempotent.
func (b *Broker) Unsubscribe(clientID, pattern string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.subscriptions[pattern]
	if !ok {
		return
	}
	delete(subs, clientID)
	if len(subs) == 0 {
		delete(b.subscriptions, pattern)
	}
}

// Publish enqueues the payload to every client subscribed to a pattern that
// matches topic, excluding the sender. A client matched by several of its
// patterns still receives a single copy. Publishing with no matching
// subscribers is a silent no-op; the publisher never blocks.
func (b *Broker) Publish(senderID, topic string, payload Payload) {
	msg := Message{
		Topic:     topic,
		Sender:    senderID,
		Timestamp: time.Now().UTC(),
		ID:        uuid.New().String(),
		Payload:   payload,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	delivered := make(map[string]struct{})
	for pattern, subs := range b.subscriptions {
		if !MatchTopic(pattern, topic) {
			continue
		}
		for clientID := range subs {
			if clientID == senderID {
				continue
			}
			if _, done := delivered[clientID]; done {
				continue
			}
			delivered[clientID] = struct{}{}
			if c, ok := b.clients[clientID]; ok {
				c.enqueue(msg)
			}
		}
	}
}

// SubscriberCount returns the number of clients subscribed to the literal
// pattern. Intended for diagnostics.
func (b *Broker) SubscriberCount(pattern string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscriptions[pattern])
}
