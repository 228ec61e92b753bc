package service

import (
	"context"
	"fmt"

	"github.com/Wyydra/peercall/internal/core/domain"
	"github.com/Wyydra/peercall/internal/core/port"
)

// AcquireLocalStream asks for camera and microphone, then microphone only, then
// settles for an empty stream. It only fails when even the empty stream cannot be built.
func AcquireLocalStream(ctx context.Context, devices port.MediaDevices, constraints domain.MediaConstraints, logs *DebugLog) (port.LocalStream, domain.StreamKind, error) {
	if constraints.Video {
		full := constraints
		full.Audio = true
		stream, err := devices.GetUserMedia(ctx, full)
		if err == nil {
			return stream, domain.StreamFull, nil
		}
		logs.Recordf(ctx, domain.LevelWarn, "Camera unavailable, falling back to audio only: %v", err)
	}

	audio := constraints
	audio.Video = false
	audio.Audio = true
	stream, err := devices.GetUserMedia(ctx, audio)
	if err == nil {
		return stream, domain.StreamAudioOnly, nil
	}
	logs.Recordf(ctx, domain.LevelWarn, "Microphone unavailable, continuing without local media: %v", err)

	stream, err = devices.EmptyStream()
	if err != nil {
		return nil, domain.StreamNone, fmt.Errorf("create empty stream: %w", err)
	}
	return stream, domain.StreamEmpty, nil
}
