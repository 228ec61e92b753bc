// Package capture opens local camera and microphone through pion/mediadevices.
// Drivers and encoders register themselves by import; see cmd/peercall.
package capture

import (
	"context"
	"fmt"

	"github.com/Wyydra/peercall/internal/core/domain"
	"github.com/Wyydra/peercall/internal/core/port"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Devices implements port.MediaDevices.
type Devices struct {
	codecs *mediadevices.CodecSelector
}

// New returns devices encoding with codecs. A nil selector leaves tracks
// without encoders, which only suits an empty stream.
func New(codecs *mediadevices.CodecSelector) *Devices {
	return &Devices{codecs: codecs}
}

// RegisterCodecs fills m with the encoders the selector offers.
func (d *Devices) RegisterCodecs(m *webrtc.MediaEngine) error {
	if d.codecs == nil {
		return m.RegisterDefaultCodecs()
	}
	d.codecs.Populate(m)
	return nil
}

func (d *Devices) GetUserMedia(ctx context.Context, c domain.MediaConstraints) (port.LocalStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !c.Video && !c.Audio {
		return nil, domain.ErrNoMediaDevices
	}

	constraints := mediadevices.MediaStreamConstraints{Codec: d.codecs}
	if c.Video {
		constraints.Video = func(mc *mediadevices.MediaTrackConstraints) {
			if c.Width > 0 {
				mc.Width = prop.Int(c.Width)
			}
			if c.Height > 0 {
				mc.Height = prop.Int(c.Height)
			}
		}
	}
	if c.Audio {
		constraints.Audio = func(mc *mediadevices.MediaTrackConstraints) {}
	}

	ms, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, fmt.Errorf("get user media: %w", err)
	}
	s := newStream(ms)
	log.Debug().Str("stream_id", s.ID()).Int("video", s.Counts().Video).Int("audio", s.Counts().Audio).Msg("Opened local media")
	return s, nil
}

func (d *Devices) EmptyStream() (port.LocalStream, error) {
	ms, err := mediadevices.NewMediaStream()
	if err != nil {
		return nil, fmt.Errorf("new media stream: %w", err)
	}
	return newStream(ms), nil
}
