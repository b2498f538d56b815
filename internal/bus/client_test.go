// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/streamhub/pkg/commons"
)

func testLogger(t *testing.T) commons.Logger {
	t.Helper()
	logger, err := commons.NewApplicationLogger(commons.Name("bus-test"))
	require.NoError(t, err)
	return logger
}

// ============================================================================
// Handler selection
// ============================================================================

func TestClient_ExactMatchBeatsWildcard(t *testing.T) {
	broker := newTestBroker(t)

	pub, err := NewClient("publisher", broker, testLogger(t))
	require.NoError(t, err)
	defer pub.Close()

	var mu sync.Mutex
	var hits []string
	record := func(label string) Handler {
		return func(string, Payload) {
			mu.Lock()
			hits = append(hits, label)
			mu.Unlock()
		}
	}

	sub, err := NewClient("subscriber", broker, testLogger(t))
	require.NoError(t, err)
	defer sub.Close()
	// The wildcard is subscribed first; the exact pattern must still win.
	sub.Subscribe("command/#", record("wildcard"))
	sub.Subscribe("command/local_devices/scan", record("exact"))

	pub.Publish("command/local_devices/scan", Payload{})

	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(hits) == 1
	}, "one handler should run")
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"exact"}, hits)
}

func TestClient_WildcardsMatchInSubscriptionOrder(t *testing.T) {
	broker := newTestBroker(t)

	pub, err := NewClient("publisher", broker, testLogger(t))
	require.NoError(t, err)
	defer pub.Close()

	var mu sync.Mutex
	var hits []string
	record := func(label string) Handler {
		return func(string, Payload) {
			mu.Lock()
			hits = append(hits, label)
			mu.Unlock()
		}
	}

	sub, err := NewClient("subscriber", broker, testLogger(t))
	require.NoError(t, err)
	defer sub.Close()
	sub.Subscribe("command/+/scan", record("first"))
	sub.Subscribe("command/#", record("second"))

	pub.Publish("command/local_devices/scan", Payload{})

	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(hits) == 1
	}, "one handler should run")
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first"}, hits,
		"the earliest-subscribed matching wildcard must win")
}

func TestClient_PanickingHandlerDoesNotKillDispatcher(t *testing.T) {
	broker := newTestBroker(t)

	pub, err := NewClient("publisher", broker, testLogger(t))
	require.NoError(t, err)
	defer pub.Close()

	var rec recorder
	sub, err := NewClient("subscriber", broker, testLogger(t))
	require.NoError(t, err)
	defer sub.Close()
	sub.Subscribe("boom", func(string, Payload) { panic("handler exploded") })
	sub.Subscribe("ok", rec.handler)

	pub.Publish("boom", Payload{})
	pub.Publish("ok", Payload{})

	eventually(t, func() bool { return len(rec.received()) == 1 },
		"delivery should continue after a handler panic")
}

// ============================================================================
// Mailbox bounds
// ============================================================================

func TestClient_FullMailboxDropsOldest(t *testing.T) {
	broker := newTestBroker(t)

	pub, err := NewClient("publisher", broker, testLogger(t))
	require.NoError(t, err)
	defer pub.Close()

	gate := make(chan struct{})
	var rec recorder
	sub, err := NewClient("subscriber", broker, testLogger(t),
		WithMailboxSize(2), WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)
	defer sub.Close()

	first := true
	sub.Subscribe("flood/#", func(topic string, payload Payload) {
		if first {
			first = false
			<-gate // wedge the dispatcher so the mailbox backs up
		}
		rec.handler(topic, payload)
	})

	pub.Publish("flood/0", Payload{})
	eventually(t, func() bool { return len(sub.mailbox) == 0 },
		"first message should be in the handler")

	// Mailbox holds 2; the remaining publishes must evict the oldest.
	pub.Publish("flood/1", Payload{})
	pub.Publish("flood/2", Payload{})
	pub.Publish("flood/3", Payload{})
	pub.Publish("flood/4", Payload{})
	close(gate)

	eventually(t, func() bool { return len(rec.received()) == 3 },
		"the wedged message plus the two surviving ones should be delivered")
	assert.Equal(t, []string{"flood/0", "flood/3", "flood/4"}, rec.received(),
		"the oldest queued messages must be the ones dropped")
	assert.Equal(t, uint64(2), sub.Dropped())
}

// ============================================================================
// Close
// ============================================================================

func TestClient_CloseDrainsQueuedMessages(t *testing.T) {
	broker := newTestBroker(t)

	pub, err := NewClient("publisher", broker, testLogger(t))
	require.NoError(t, err)
	defer pub.Close()

	var rec recorder
	sub, err := NewClient("subscriber", broker, testLogger(t),
		WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)
	sub.Subscribe("drain/#", rec.handler)

	for i := 0; i < 20; i++ {
		pub.Publish("drain/msg", Payload{"i": i})
	}
	sub.Close()

	assert.Len(t, rec.received(), 20,
		"Close must deliver messages already enqueued before returning")
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	broker := newTestBroker(t)

	c, err := NewClient("twice", broker, testLogger(t),
		WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)

	c.Close()
	assert.NotPanics(t, func() { c.Close() })
}

func TestClient_PublishAfterCloseDoesNotDeliver(t *testing.T) {
	broker := newTestBroker(t)

	pub, err := NewClient("publisher", broker, testLogger(t))
	require.NoError(t, err)
	defer pub.Close()

	var rec recorder
	sub, err := NewClient("subscriber", broker, testLogger(t),
		WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)
	sub.Subscribe("late/#", rec.handler)
	sub.Close()

	pub.Publish("late/msg", Payload{})
	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, rec.received(),
		"a closed client is unregistered and must receive nothing")
}
