// Package clock abstracts wall-clock time so day boundaries, weekends and
// cooldown expiry can be simulated in tests.
package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

// Real reports the current time in a fixed location.
type Real struct {
	Loc *time.Location
}

func New(loc *time.Location) Real {
	if loc == nil {
		loc = time.UTC
	}
	return Real{Loc: loc}
}

func (r Real) Now() time.Time { return time.Now().In(r.Loc) }

// Fixed is a manually advanced clock.
type Fixed struct {
	mu  sync.Mutex
	now time.Time
}

func NewFixed(t time.Time) *Fixed { return &Fixed{now: t} }

func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}
