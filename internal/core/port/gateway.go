package port

import (
	"context"

	"github.com/Wyydra/peercall/internal/core/domain"
)

// StatusGateway pushes UI-facing state to whatever presentation layer is attached.
type StatusGateway interface {
	PublishStatus(ctx context.Context, status domain.Status) error
	PublishLog(ctx context.Context, entry domain.LogEntry) error
}
