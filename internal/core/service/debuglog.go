package service

import (
	"context"
	"fmt"

	"github.com/Wyydra/peercall/internal/core/domain"
	"github.com/Wyydra/peercall/internal/core/port"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DebugLog feeds the debug console: every entry is stored, pushed to the UI and logged.
type DebugLog struct {
	repo    port.LogRepository
	gateway port.StatusGateway
	clock   port.Clock
}

func NewDebugLog(repo port.LogRepository, gateway port.StatusGateway, clock port.Clock) *DebugLog {
	return &DebugLog{
		repo:    repo,
		gateway: gateway,
		clock:   clock,
	}
}

func (d *DebugLog) Record(ctx context.Context, level domain.LogLevel, message string) error {
	entry, err := domain.NewLogEntry(d.clock.Now(), level, message)
	if err != nil {
		return err
	}

	log.WithLevel(zerologLevel(level)).Str("component", "call").Msg(message)

	if err := d.repo.Save(ctx, *entry); err != nil {
		return err
	}
	return d.gateway.PublishLog(ctx, *entry)
}

func (d *DebugLog) Recordf(ctx context.Context, level domain.LogLevel, format string, args ...any) {
	if err := d.Record(ctx, level, fmt.Sprintf(format, args...)); err != nil {
		log.Debug().Err(err).Msg("Failed to record debug log entry")
	}
}

func (d *DebugLog) Entries(ctx context.Context, limit int) ([]domain.LogEntry, error) {
	return d.repo.List(ctx, limit)
}

func zerologLevel(level domain.LogLevel) zerolog.Level {
	switch level {
	case domain.LevelDebug:
		return zerolog.DebugLevel
	case domain.LevelWarn:
		return zerolog.WarnLevel
	case domain.LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
