package domain

import (
	"errors"
	"time"
)

type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogEntry is one line of the debug console shown next to the call.
type LogEntry struct {
	ID      EntryID   `json:"id"`
	Time    time.Time `json:"time"`
	Level   LogLevel  `json:"level"`
	Message string    `json:"message"`
}

func NewLogEntry(at time.Time, level LogLevel, message string) (*LogEntry, error) {
	if message == "" {
		return nil, errors.New("log entry message cannot be empty")
	}
	return &LogEntry{
		ID:      NewEntryID(),
		Time:    at,
		Level:   level,
		Message: message,
	}, nil
}
