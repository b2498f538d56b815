// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package stream

import (
	"errors"
	"net"
	"strconv"
	"time"
)

// ErrNoFreePorts is returned when the whole probe range is occupied.
var ErrNoFreePorts = errors.New("stream: no free port in range")

// Port probing bounds. A port is considered free when a loopback TCP
// connect attempt fails within the probe timeout. The window between probe
// and child-process bind is an accepted race; a lost race surfaces as a
// transcoder start failure.
const (
	portScanRange    = 1000
	portProbeTimeout = 100 * time.Millisecond
)

// findFreePort scans base..base+portScanRange for the first port that is
// neither reserved by the caller nor accepting loopback connections.
func findFreePort(base int, reserved map[int]struct{}) (int, error) {
	for port := base; port <= base+portScanRange; port++ {
		if port > 65535 {
			break
		}
		if _, held := reserved[port]; held {
			continue
		}
		addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
		conn, err := net.DialTimeout("tcp", addr, portProbeTimeout)
		if err != nil {
			// Nothing answered: the port is unbound.
			return port, nil
		}
		conn.Close()
	}
	return 0, ErrNoFreePorts
}
