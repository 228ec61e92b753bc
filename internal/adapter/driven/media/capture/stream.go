package capture

import (
	"errors"
	"sync"

	"github.com/Wyydra/peercall/internal/core/domain"
	"github.com/google/uuid"
	"github.com/pion/mediadevices"
	"github.com/pion/webrtc/v4"
)

// Stream wraps a captured media stream. It implements port.LocalStream and
// pion.TrackSource.
type Stream struct {
	id string
	ms mediadevices.MediaStream

	once sync.Once
	err  error
}

func newStream(ms mediadevices.MediaStream) *Stream {
	return &Stream{id: uuid.NewString(), ms: ms}
}

func (s *Stream) ID() string {
	return s.id
}

func (s *Stream) Counts() domain.TrackCounts {
	return domain.TrackCounts{
		Video: len(s.ms.GetVideoTracks()),
		Audio: len(s.ms.GetAudioTracks()),
	}
}

func (s *Stream) LocalTracks() []webrtc.TrackLocal {
	var out []webrtc.TrackLocal
	for _, t := range s.ms.GetTracks() {
		if tl, ok := t.(webrtc.TrackLocal); ok {
			out = append(out, tl)
		}
	}
	return out
}

// Stop releases every device; later calls return the first result.
func (s *Stream) Stop() error {
	s.once.Do(func() {
		var errs []error
		for _, t := range s.ms.GetTracks() {
			if err := t.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		s.err = errors.Join(errs...)
	})
	return s.err
}
