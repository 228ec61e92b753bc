package port

import (
	"context"

	"github.com/Wyydra/peercall/internal/core/domain"
)

type LocalStream interface {
	ID() string
	Counts() domain.TrackCounts
	// Stop releases every capture track. Calls after the first are no-ops.
	Stop() error
}

type MediaDevices interface {
	GetUserMedia(ctx context.Context, constraints domain.MediaConstraints) (LocalStream, error)
	// EmptyStream returns a stream without tracks, used when nothing can be captured.
	EmptyStream() (LocalStream, error)
}
