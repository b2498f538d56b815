// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package stream

import (
	"fmt"
	"os"
	"path/filepath"
)

// rtmpServerConfigFile is the generated ancillary server config name.
const rtmpServerConfigFile = "rtmp-server.yml"

// rtmpLauncher pushes FLV into an ancillary RTMP ingest server (MediaMTX by
// default) bound to the allocated port.
type rtmpLauncher struct {
	serverBin string
}

// NewRTMPLauncher returns the RTMP argument strategy. serverBin is the
// ancillary ingest server binary.
func NewRTMPLauncher(serverBin string) Launcher {
	return &rtmpLauncher{serverBin: serverBin}
}

func (l *rtmpLauncher) Protocol() Protocol { return ProtocolRTMP }

func (l *rtmpLauncher) InputArgs(src Source) ([]string, error) {
	return inputArgs(src)
}

func (l *rtmpLauncher) OutputArgs(src Source, port int, streamID, outputDir string) ([]string, error) {
	args := encoderArgs(src.Type)
	args = append(args, "-f", "flv", l.StreamURL(port, streamID))
	return args, nil
}

func (l *rtmpLauncher) StreamURL(port int, streamID string) string {
	return fmt.Sprintf("rtmp://localhost:%d/live/%s", port, streamID)
}

// Prepare writes a minimal MediaMTX-style configuration that enables only
// RTMP on the allocated port, and names the server process to launch with
// that config as its sole argument.
func (l *rtmpLauncher) Prepare(outputDir string, port int, streamID string) (*AncillarySpec, error) {
	cfg := fmt.Sprintf(`# generated by streamhub; do not edit
logLevel: warn
rtmp: yes
rtmpAddress: :%d
rtsp: no
hls: no
webrtc: no
srt: no
api: no
metrics: no
paths:
  live/%s:
`, port, streamID)

	path := filepath.Join(outputDir, rtmpServerConfigFile)
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		return nil, fmt.Errorf("could not write rtmp server config: %w", err)
	}
	return &AncillarySpec{
		Name: "rtmp-server",
		Bin:  l.serverBin,
		Args: []string{path},
	}, nil
}
