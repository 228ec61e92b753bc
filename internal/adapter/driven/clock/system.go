package clock

import (
	"time"

	"github.com/Wyydra/peercall/internal/core/port"
)

// System is the wall clock.
type System struct{}

func New() System {
	return System{}
}

func (System) Now() time.Time {
	return time.Now()
}

func (System) AfterFunc(d time.Duration, f func()) port.Timer {
	return time.AfterFunc(d, f)
}
