// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package manager_local

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rapidaai/streamhub/internal/device"
)

// Scanner enumerates the capture devices attached to this host. The
// platform-specific probing (V4L2 ioctls, CoreAudio, DirectShow) lives
// behind this interface; the manager only consumes the resulting records.
type Scanner interface {
	ScanVideoDevices() (map[string]*device.Local, error)
	ScanAudioDevices() (map[string]*device.Local, error)
}

// platformScanner is the built-in best-effort scanner. On Linux it walks
// the V4L2 and ALSA device nodes; elsewhere it reports nothing and a
// platform-specific Scanner should be injected instead.
type platformScanner struct{}

// NewPlatformScanner returns the built-in scanner for this OS.
func NewPlatformScanner() Scanner {
	return &platformScanner{}
}

func (s *platformScanner) ScanVideoDevices() (map[string]*device.Local, error) {
	devices := make(map[string]*device.Local)
	if runtime.GOOS != "linux" {
		return devices, nil
	}
	nodes, err := filepath.Glob("/dev/video*")
	if err != nil {
		return devices, err
	}
	for _, node := range nodes {
		id := "local:" + strings.TrimPrefix(node, "/dev/")
		devices[id] = &device.Local{
			Header: device.Header{
				ID:          id,
				Name:        filepath.Base(node),
				Type:        device.TypeVideo,
				Status:      device.StatusOnline,
				LastChecked: time.Now().UTC(),
			},
			SystemPath: node,
			Driver:     device.DriverV4L2,
		}
	}
	return devices, nil
}

func (s *platformScanner) ScanAudioDevices() (map[string]*device.Local, error) {
	devices := make(map[string]*device.Local)
	if runtime.GOOS != "linux" {
		return devices, nil
	}
	// ALSA exposes one pcmC<card>D<dev>c node per capture endpoint.
	nodes, err := filepath.Glob("/dev/snd/pcmC*D*c")
	if err != nil {
		return devices, err
	}
	for _, node := range nodes {
		base := filepath.Base(node)
		var card, dev int
		if _, err := fmt.Sscanf(base, "pcmC%dD%dc", &card, &dev); err != nil {
			continue
		}
		hw := fmt.Sprintf("hw:%d,%d", card, dev)
		id := "local:" + hw
		devices[id] = &device.Local{
			Header: device.Header{
				ID:          id,
				Name:        base,
				Type:        device.TypeAudio,
				Status:      device.StatusOnline,
				LastChecked: time.Now().UTC(),
			},
			SystemPath: hw,
			Driver:     device.DriverALSA,
		}
	}
	return devices, nil
}
