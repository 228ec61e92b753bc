package port

import (
	"context"

	"github.com/Wyydra/peercall/internal/core/domain"
)

type LogRepository interface {
	Save(ctx context.Context, entry domain.LogEntry) error
	// List returns at most limit entries, oldest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]domain.LogEntry, error)
}
