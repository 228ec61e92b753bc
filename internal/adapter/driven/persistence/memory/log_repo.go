package memory

import (
	"context"
	"sync"

	"github.com/Wyydra/peercall/internal/core/domain"
)

// DefaultLogCapacity bounds the debug console history.
const DefaultLogCapacity = 500

// LogRepository keeps the most recent entries in a ring.
type LogRepository struct {
	mu      sync.Mutex
	entries []domain.LogEntry
	start   int
	size    int
}

func NewLogRepository(capacity int) *LogRepository {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &LogRepository{
		entries: make([]domain.LogEntry, capacity),
	}
}

func (r *LogRepository) Save(ctx context.Context, entry domain.LogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size < len(r.entries) {
		r.entries[(r.start+r.size)%len(r.entries)] = entry
		r.size++
		return nil
	}
	r.entries[r.start] = entry
	r.start = (r.start + 1) % len(r.entries)
	return nil
}

// List returns up to limit of the newest entries, oldest first. A limit of
// zero or less returns everything kept.
func (r *LogRepository) List(ctx context.Context, limit int) ([]domain.LogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 || limit > r.size {
		limit = r.size
	}
	out := make([]domain.LogEntry, 0, limit)
	for i := r.size - limit; i < r.size; i++ {
		out = append(out, r.entries[(r.start+i)%len(r.entries)])
	}
	return out, nil
}
