// Package clock provides the time sources behind ports.Clock.
package clock

import (
	"sync/atomic"
	"time"

	"github.com/artpar/paycore/ports"
)

// Settlement reads the system clock in the settlement location, so charge
// timestamps and ledger date boundaries agree on the calendar day.
type Settlement struct {
	loc *time.Location
}

// New returns a system clock reporting times in loc (time.Local when nil).
func New(loc *time.Location) Settlement {
	if loc == nil {
		loc = time.Local
	}
	return Settlement{loc: loc}
}

// Now returns the current time in the settlement location.
func (c Settlement) Now() time.Time {
	if c.loc == nil {
		return time.Now()
	}
	return time.Now().In(c.loc)
}

// Fake is a manual clock for tests and the in-memory processor. A ticking
// fake moves forward on every read, so resources created back to back get
// distinct created epochs.
type Fake struct {
	nanos atomic.Int64
	tick  int64
	loc   *time.Location
}

// NewFake creates a fake clock frozen at t.
func NewFake(t time.Time) *Fake {
	return NewTicking(t, 0)
}

// NewTicking creates a fake clock at t that advances by tick after each Now.
func NewTicking(t time.Time, tick time.Duration) *Fake {
	f := &Fake{tick: int64(tick), loc: t.Location()}
	f.nanos.Store(t.UnixNano())
	return f
}

// Now returns the fake time.
func (f *Fake) Now() time.Time {
	n := f.nanos.Load()
	if f.tick > 0 {
		n = f.nanos.Add(f.tick) - f.tick
	}
	return time.Unix(0, n).In(f.loc)
}

// Set moves the clock to t.
func (f *Fake) Set(t time.Time) {
	f.nanos.Store(t.UnixNano())
}

// Advance moves the clock by d.
func (f *Fake) Advance(d time.Duration) {
	f.nanos.Add(int64(d))
}

var (
	_ ports.Clock = Settlement{}
	_ ports.Clock = (*Fake)(nil)
)
