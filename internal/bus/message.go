// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package bus implements the in-process publish/subscribe message bus that
// connects device managers, the stream orchestrators, and external clients.
// Topics are slash-delimited strings; subscription patterns may use the
// wildcards "+" (exactly one segment) and "#" (one or more trailing
// segments, last position only). The broker never retains messages.
package bus

import (
	"strings"
	"time"
)

// Payload is the opaque body of a bus message.
type Payload map[string]interface{}

// Message is a single topic-addressed message in flight on the bus.
type Message struct {
	Topic     string    `json:"topic"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	ID        string    `json:"message_id"`
	Payload   Payload   `json:"payload"`
}

// Wildcard segments understood by MatchTopic.
const (
	WildcardSingle = "+"
	WildcardMulti  = "#"
)

// MatchTopic reports whether the subscription pattern matches the concrete
// topic. Rules:
//
//   - segments are separated by "/" and compared positionally;
//   - "+" matches exactly one segment at its position;
//   - "#" matches one or more trailing segments and is only meaningful as
//     the final pattern segment;
//   - a pattern without wildcards matches only a segment-wise equal topic.
func MatchTopic(pattern, topic string) bool {
	if pattern == "" || topic == "" {
		return false
	}
	ps := strings.Split(pattern, "/")
	ts := strings.Split(topic, "/")

	for i, seg := range ps {
		if seg == WildcardMulti {
			// "#" must be last and must consume at least one topic segment.
			if i != len(ps)-1 {
				return false
			}
			return len(ts) > i
		}
		if i >= len(ts) {
			return false
		}
		if seg == WildcardSingle {
			continue
		}
		if seg != ts[i] {
			return false
		}
	}
	return len(ps) == len(ts)
}
