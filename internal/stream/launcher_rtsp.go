// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package stream

import "fmt"

// rtspLauncher publishes through the transcoder's own RTSP listener, so no
// ancillary process is needed.
type rtspLauncher struct{}

// NewRTSPLauncher returns the RTSP argument strategy.
func NewRTSPLauncher() Launcher { return &rtspLauncher{} }

func (l *rtspLauncher) Protocol() Protocol { return ProtocolRTSP }

func (l *rtspLauncher) InputArgs(src Source) ([]string, error) {
	return inputArgs(src)
}

func (l *rtspLauncher) OutputArgs(src Source, port int, streamID, outputDir string) ([]string, error) {
	args := encoderArgs(src.Type)
	args = append(args,
		"-f", "rtsp",
		"-rtsp_flags", "listen",
		"-rtsp_transport", "tcp",
		l.StreamURL(port, streamID),
	)
	return args, nil
}

func (l *rtspLauncher) StreamURL(port int, streamID string) string {
	return fmt.Sprintf("rtsp://localhost:%d/%s", port, streamID)
}

func (l *rtspLauncher) Prepare(outputDir string, port int, streamID string) (*AncillarySpec, error) {
	return nil, nil
}
