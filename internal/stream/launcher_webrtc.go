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

// webrtcPageFile is the player page served from the stream output
// directory.
const webrtcPageFile = "webrtc.html"

// webrtcLauncher segments the transcoded media into the output directory
// and serves it, together with a signalling/player page, from an ancillary
// static HTTP server bound to the allocated port.
type webrtcLauncher struct {
	serverBin  string
	stunServer string
}

// NewWebRTCLauncher returns the WebRTC argument strategy. serverBin is the
// static HTTP server binary; stunServer may be empty.
func NewWebRTCLauncher(serverBin, stunServer string) Launcher {
	return &webrtcLauncher{serverBin: serverBin, stunServer: stunServer}
}

func (l *webrtcLauncher) Protocol() Protocol { return ProtocolWebRTC }

func (l *webrtcLauncher) InputArgs(src Source) ([]string, error) {
	return inputArgs(src)
}

func (l *webrtcLauncher) OutputArgs(src Source, port int, streamID, outputDir string) ([]string, error) {
	args := encoderArgs(src.Type)
	args = append(args,
		"-f", "hls",
		"-hls_time", "1",
		"-hls_list_size", "3",
		"-hls_flags", "delete_segments",
		filepath.Join(outputDir, streamID+".m3u8"),
	)
	return args, nil
}

func (l *webrtcLauncher) StreamURL(port int, streamID string) string {
	return fmt.Sprintf("http://localhost:%d/webrtc.html?stream=%s", port, streamID)
}

// Prepare writes the player page into the output directory and names the
// static HTTP server to launch, rooted at that directory.
func (l *webrtcLauncher) Prepare(outputDir string, port int, streamID string) (*AncillarySpec, error) {
	page := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>streamhub</title></head>
<body>
<video id="player" autoplay muted playsinline controls></video>
<script>
  const params = new URLSearchParams(window.location.search);
  const stream = params.get("stream") || %q;
  const stun = %q;
  const video = document.getElementById("player");
  const src = stream + ".m3u8";
  if (video.canPlayType("application/vnd.apple.mpegurl")) {
    video.src = src;
  } else {
    fetch(src).then(() => { video.src = src; });
  }
</script>
</body>
</html>
`, streamID, l.stunServer)

	path := filepath.Join(outputDir, webrtcPageFile)
	if err := os.WriteFile(path, []byte(page), 0o644); err != nil {
		return nil, fmt.Errorf("could not write webrtc page: %w", err)
	}
	return &AncillarySpec{
		Name: "http-server",
		Bin:  l.serverBin,
		Args: []string{
			"-addr", fmt.Sprintf("127.0.0.1:%d", port),
			"-root", outputDir,
		},
	}, nil
}
