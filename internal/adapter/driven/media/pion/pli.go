package pion

import (
	"context"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const keyframeInterval = 3 * time.Second

// RequestKeyframes asks the sender for a keyframe right away and then
// periodically, until ctx is done.
func RequestKeyframes(ctx context.Context, pc *webrtc.PeerConnection, track *webrtc.TrackRemote) {
	sendPLI := func() {
		if err := pc.WriteRTCP([]rtcp.Packet{
			&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())},
		}); err != nil {
			log.Trace().Err(err).Msg("PLI not sent")
		}
	}

	sendPLI()

	ticker := time.NewTicker(keyframeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sendPLI()
		}
	}
}
