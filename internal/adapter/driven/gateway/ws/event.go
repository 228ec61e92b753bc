package ws

import "github.com/Wyydra/peercall/internal/core/domain"

const (
	EventStatus = "status"
	EventLog    = "log"
)

// Event is the envelope pushed to UI clients.
type Event struct {
	Event  string           `json:"event"`
	Status *domain.Status   `json:"status,omitempty"`
	Log    *domain.LogEntry `json:"log,omitempty"`
}

func StatusEvent(st domain.Status) Event {
	return Event{Event: EventStatus, Status: &st}
}

func LogEvent(entry domain.LogEntry) Event {
	return Event{Event: EventLog, Log: &entry}
}
