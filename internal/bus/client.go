// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package bus

import (
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rapidaai/streamhub/pkg/commons"
)

// Handler processes one delivered message. Handlers run sequentially on the
// client's single dispatcher goroutine; a panicking handler is logged and
// swallowed without disturbing later deliveries.
type Handler func(topic string, payload Payload)

// Defaults for client construction; override with Option values.
const (
	DefaultMailboxSize  = 256
	DefaultPollInterval = 200 * time.Millisecond
	DefaultDrainTimeout = 5 * time.Second
)

// Option configures NewClient.
type Option func(*clientOptions)

type clientOptions struct {
	mailboxSize  int
	pollInterval time.Duration
	drainTimeout time.Duration
}

// WithMailboxSize bounds the client mailbox. When full, the oldest pending
// message is dropped to admit the newest.
func WithMailboxSize(n int) Option {
	return func(o *clientOptions) {
		if n > 0 {
			o.mailboxSize = n
		}
	}
}

// WithPollInterval sets how long the dispatcher blocks on an empty mailbox
// before re-checking the running flag.
func WithPollInterval(d time.Duration) Option {
	return func(o *clientOptions) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithDrainTimeout bounds how long Close waits for the dispatcher to drain
// the mailbox before giving up on it.
func WithDrainTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		if d > 0 {
			o.drainTimeout = d
		}
	}
}

// Client is a named bus endpoint: a bounded mailbox, a pattern → handler
// table, and one dispatcher goroutine that drains the mailbox and invokes
// handlers.
type Client struct {
	id     string
	broker *Broker
	logger commons.Logger

	mailbox chan Message
	running atomic.Bool
	done    chan struct{}
	dropped atomic.Uint64

	drainTimeout time.Duration
	pollInterval time.Duration

	mu       sync.Mutex
	handlers map[string]Handler
	order    []string
}

// NewClient registers a new client with the broker and starts its
// dispatcher. The returned client is ready to subscribe and publish.
func NewClient(id string, broker *Broker, logger commons.Logger, opts ...Option) (*Client, error) {
	o := clientOptions{
		mailboxSize:  DefaultMailboxSize,
		pollInterval: DefaultPollInterval,
		drainTimeout: DefaultDrainTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{
		id:           id,
		broker:       broker,
		logger:       logger,
		mailbox:      make(chan Message, o.mailboxSize),
		done:         make(chan struct{}),
		drainTimeout: o.drainTimeout,
		pollInterval: o.pollInterval,
		handlers:     make(map[string]Handler),
	}
	if err := broker.Register(c); err != nil {
		return nil, err
	}
	c.running.Store(true)
	go c.dispatch()
	return c, nil
}

// ID returns the client id used as the sender on published messages.
func (c *Client) ID() string { return c.id }

// Dropped returns how many messages were evicted from a full mailbox.
func (c *Client) Dropped() uint64 { return c.dropped.Load() }

// Subscribe registers the pattern with the broker and stores the handler
// locally. Re-subscribing a pattern replaces its handler.
func (c *Client) Subscribe(pattern string, handler Handler) {
	c.mu.Lock()
	if _, ok := c.handlers[pattern]; !ok {
		c.order = append(c.order, pattern)
	}
	c.handlers[pattern] = handler
	c.mu.Unlock()
	c.broker.Subscribe(c.id, pattern)
}

// Unsubscribe removes the pattern from both the broker and the local
// handler table. A no-op for unknown patterns.
func (c *Client) Unsubscribe(pattern string) {
	c.mu.Lock()
	if _, ok := c.handlers[pattern]; ok {
		delete(c.handlers, pattern)
		for i, p := range c.order {
			if p == pattern {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	}
	c.mu.Unlock()
	c.broker.Unsubscribe(c.id, pattern)
}

// Publish forwards to the broker with this client as sender.
func (c *Client) Publish(topic string, payload Payload) {
	c.broker.Publish(c.id, topic, payload)
}

// Close stops the dispatcher, waits (bounded) for it to drain, and
// unregisters from the broker. Safe to call more than once.
func (c *Client) Close() {
	if !c.running.CompareAndSwap(true, false) {
		return
	}
	select {
	case <-c.done:
	case <-time.After(c.drainTimeout):
		c.logger.Warnw("bus client close timed out waiting for dispatcher",
			"client_id", c.id)
	}
	c.broker.Unregister(c.id)
}

// enqueue places a message in the mailbox. Called by the broker under its
// lock. On a full mailbox the oldest message is evicted so the publisher
// never blocks.
func (c *Client) enqueue(msg Message) {
	for {
		select {
		case c.mailbox <- msg:
			return
		default:
		}
		select {
		case <-c.mailbox:
			c.dropped.Add(1)
		default:
		}
	}
}

// dispatch is the single dispatcher loop. It blocks on the mailbox in short
// slices so the running flag is observed promptly; on shutdown it drains
// whatever is still queued before signalling done.
func (c *Client) dispatch() {
	defer close(c.done)

	timer := time.NewTimer(c.pollInterval)
	defer timer.Stop()

	for c.running.Load() {
		timer.Reset(c.pollInterval)
		select {
		case msg := <-c.mailbox:
			c.handle(msg)
		case <-timer.C:
		}
	}

	// Drain-then-exit: deliver what is already queued, but never block.
	for {
		select {
		case msg := <-c.mailbox:
			c.handle(msg)
		default:
			return
		}
	}
}

// handle selects a handler for the message: an exact pattern match wins,
// otherwise the first wildcard pattern (in subscription order) that matches.
func (c *Client) handle(msg Message) {
	c.mu.Lock()
	handler, ok := c.handlers[msg.Topic]
	if !ok {
		for _, pattern := range c.order {
			if MatchTopic(pattern, msg.Topic) {
				handler = c.handlers[pattern]
				ok = true
				break
			}
		}
	}
	c.mu.Unlock()

	if !ok {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorw("bus handler panicked",
				"client_id", c.id,
				"topic", msg.Topic,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	handler(msg.Topic, msg.Payload)
}
