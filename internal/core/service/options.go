package service

import (
	"fmt"
	"time"

	"github.com/Wyydra/peercall/internal/core/domain"
)

type Timings struct {
	StartSettleDelay     time.Duration
	AnswerSettleDelay    time.Duration
	LockCooldown         time.Duration
	FailureTeardownDelay time.Duration
	ErrorRecoveryDelay   time.Duration
	// Watchdog thresholds, in whole seconds spent connecting.
	WatchdogWarnAfter int
	WatchdogFailAfter int
}

func DefaultTimings() Timings {
	return Timings{
		StartSettleDelay:     300 * time.Millisecond,
		AnswerSettleDelay:    500 * time.Millisecond,
		LockCooldown:         1 * time.Second,
		FailureTeardownDelay: 2 * time.Second,
		ErrorRecoveryDelay:   1 * time.Second,
		WatchdogWarnAfter:    15,
		WatchdogFailAfter:    30,
	}
}

func (t Timings) Validate() error {
	for name, d := range map[string]time.Duration{
		"start settle delay":     t.StartSettleDelay,
		"answer settle delay":    t.AnswerSettleDelay,
		"lock cooldown":          t.LockCooldown,
		"failure teardown delay": t.FailureTeardownDelay,
		"error recovery delay":   t.ErrorRecoveryDelay,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative (got %s)", name, d)
		}
	}
	if t.WatchdogWarnAfter <= 0 || t.WatchdogFailAfter <= 0 {
		return fmt.Errorf("watchdog thresholds must be positive (warn=%d fail=%d)", t.WatchdogWarnAfter, t.WatchdogFailAfter)
	}
	if t.WatchdogWarnAfter >= t.WatchdogFailAfter {
		return fmt.Errorf("watchdog warn threshold (%d) must be below fail threshold (%d)", t.WatchdogWarnAfter, t.WatchdogFailAfter)
	}
	return nil
}

type Options struct {
	Timings    Timings
	AutoAnswer bool
	Capture    domain.MediaConstraints
}

func DefaultOptions() Options {
	return Options{
		Timings:    DefaultTimings(),
		AutoAnswer: true,
		Capture: domain.MediaConstraints{
			Video:  true,
			Audio:  true,
			Width:  640,
			Height: 480,
		},
	}
}
