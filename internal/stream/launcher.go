// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package stream

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/rapidaai/streamhub/internal/device"
)

// ErrUnsupportedCapture is returned when no transcoder input can be built
// for the device's OS/driver combination.
var ErrUnsupportedCapture = errors.New("stream: unsupported capture for this platform")

// AncillarySpec describes a helper process a protocol needs alongside the
// transcoder (an RTMP ingest server, a static HTTP server).
type AncillarySpec struct {
	Name string
	Bin  string
	Args []string
}

// Launcher is a stateless per-protocol strategy. InputArgs and OutputArgs
// build the two halves of the transcoder argument vector; Prepare writes
// any ancillary configuration into the output directory and names the
// ancillary process to launch, or returns nil when the protocol needs none.
type Launcher interface {
	Protocol() Protocol
	InputArgs(src Source) ([]string, error)
	OutputArgs(src Source, port int, streamID, outputDir string) ([]string, error)
	StreamURL(port int, streamID string) string
	Prepare(outputDir string, port int, streamID string) (*AncillarySpec, error)
}

// inputArgs builds the capture half of the transcoder vector. Network
// sources read from their URL; local sources go through the platform
// driver. Combinations outside the supported matrix fail with
// ErrUnsupportedCapture.
func inputArgs(src Source) ([]string, error) {
	if src.URL != "" {
		if src.Driver == "" {
			args := []string{}
			if src.Type == device.TypeVideo {
				// Favour TCP interleaving for RTSP cameras; harmless otherwise.
				args = append(args, "-rtsp_transport", "tcp")
			}
			return append(args, "-i", src.URL), nil
		}
	}

	switch runtime.GOOS {
	case "linux":
		switch src.Driver {
		case device.DriverV4L2:
			return []string{"-f", "v4l2", "-framerate", "30", "-i", src.SystemPath}, nil
		case device.DriverALSA:
			return []string{"-f", "alsa", "-i", src.SystemPath}, nil
		case device.DriverPulse:
			return []string{"-f", "pulse", "-i", src.SystemPath}, nil
		}
	case "darwin":
		if src.Driver == device.DriverAVFoundation {
			if src.Type == device.TypeVideo {
				return []string{"-f", "avfoundation", "-framerate", "30", "-i", src.SystemPath + ":none"}, nil
			}
			return []string{"-f", "avfoundation", "-i", "none:" + src.SystemPath}, nil
		}
	case "windows":
		if src.Driver == device.DriverDirectShow {
			if src.Type == device.TypeVideo {
				return []string{"-f", "dshow", "-i", "video=" + src.Name}, nil
			}
			return []string{"-f", "dshow", "-i", "audio=" + src.Name}, nil
		}
	}
	return nil, fmt.Errorf("%w: os=%s driver=%s", ErrUnsupportedCapture, runtime.GOOS, src.Driver)
}

// encoderArgs builds the encoding half shared by every protocol: H.264
// low-latency plus AAC for video devices, AAC only for audio devices.
func encoderArgs(t device.Type) []string {
	if t == device.TypeVideo {
		return []string{
			"-c:v", "libx264",
			"-preset", "ultrafast",
			"-tune", "zerolatency",
			"-profile:v", "baseline",
			"-pix_fmt", "yuv420p",
			"-c:a", "aac",
			"-b:a", "128k",
		}
	}
	return []string{"-vn", "-c:a", "aac", "-b:a", "128k"}
}
