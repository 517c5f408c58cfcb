package hallsdk

import (
	"time"
)

// SessionClock computes displayed elapsed time from a session snapshot and a
// local wall clock. The server's started_at already excludes paused time, so
// the clock needs no accumulator and no server round-trip per tick; local
// wall-clock deltas are enough. The display only needs monotonic, smooth
// counting, not cross-client synchronization, so skew between the local and
// server clocks is tolerated.
type SessionClock struct {
	Session Session
	// CompletedToday is today's completed total in seconds at the time the
	// snapshot was taken. Total adds the live interval on top of it.
	CompletedToday int64
}

// Elapsed returns the running time of the current interval at the given
// local instant. Paused sessions are frozen at the instant they were paused;
// running sessions tick with now. With no session at all there is no
// interval, so elapsed is zero.
func (c SessionClock) Elapsed(now time.Time) time.Duration {
	if c.Session.StartedAt.IsZero() {
		return 0
	}
	if c.Session.IsPaused && c.Session.PausedAt != nil {
		return c.Session.PausedAt.Sub(c.Session.StartedAt)
	}
	elapsed := now.Sub(c.Session.StartedAt)
	if elapsed < 0 {
		// Local clock behind the server's. Clamp rather than count down.
		return 0
	}
	return elapsed
}

// Total returns the displayed focus total: today's completed seconds plus
// the current interval, floored to whole seconds.
func (c SessionClock) Total(now time.Time) int64 {
	return c.CompletedToday + int64(c.Elapsed(now)/time.Second)
}
