// Package reaper force-stops abandoned active sessions. A client that closes
// its tab, sleeps or crashes cannot be relied on to deliver a stop, so
// sessions whose owner heartbeat has gone stale beyond a grace period are
// stopped server-side through the regular atomic stop path, producing a
// completed record like any other stop.
package reaper

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"cdr.dev/slog"
	"github.com/studyhall/studyhall/halld/database"
	"github.com/studyhall/studyhall/halld/sessiontrack"
)

// DefaultGracePeriod is how long a session may go without a heartbeat before
// it is considered abandoned. Generous on purpose: a missed sweep only means
// extra recorded minutes, a premature one truncates a live session.
const DefaultGracePeriod = 30 * time.Minute

// Stats contains statistics about the last run of the reaper.
type Stats struct {
	// StoppedSessionIDs contains the IDs of all active sessions that were
	// detected as abandoned and stopped.
	StoppedSessionIDs []uuid.UUID
	// Error is the fatal error that occurred during the last run, if any.
	Error error
}

// Reaper sweeps for abandoned active sessions on every tick.
type Reaper struct {
	ctx     context.Context
	db      database.Store
	tracker *sessiontrack.Tracker
	logger  slog.Logger
	tick    <-chan time.Time
	grace   time.Duration
	stats   chan<- Stats
	done    chan struct{}
}

// New returns a session reaper. It does not start sweeping until Start is
// called.
func New(ctx context.Context, db database.Store, tracker *sessiontrack.Tracker, logger slog.Logger, tick <-chan time.Time, grace time.Duration) *Reaper {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Reaper{
		ctx:     ctx,
		db:      db,
		tracker: tracker,
		logger:  logger,
		tick:    tick,
		grace:   grace,
		done:    make(chan struct{}),
	}
}

// WithStatsChannel will cause the reaper to push a Stats to ch after every
// tick. This push is blocking, so if ch is not read, the reaper will hang.
// This should only be used in tests.
func (r *Reaper) WithStatsChannel(ch chan<- Stats) *Reaper {
	r.stats = ch
	return r
}

// Start will cause the reaper to sweep on every tick from its channel. It
// will stop when its context is done, or when its channel is closed.
//
// Start should only be called once.
func (r *Reaper) Start() {
	go func() {
		defer close(r.done)
		for {
			select {
			case <-r.ctx.Done():
				return
			case t, ok := <-r.tick:
				if !ok {
					return
				}
				stats := r.run(t)
				if stats.Error != nil {
					r.logger.Warn(r.ctx, "error running session reaper once", slog.Error(stats.Error))
				}
				if len(stats.StoppedSessionIDs) != 0 {
					r.logger.Info(r.ctx, "force-stopped abandoned sessions",
						slog.F("session_ids", stats.StoppedSessionIDs))
				}
				if r.stats != nil {
					select {
					case <-r.ctx.Done():
						return
					case r.stats <- stats:
					}
				}
			}
		}
	}()
}

// Wait will block until the reaper is stopped.
func (r *Reaper) Wait() {
	<-r.done
}

func (r *Reaper) run(t time.Time) Stats {
	ctx, cancel := context.WithTimeout(r.ctx, time.Minute)
	defer cancel()

	stats := Stats{
		StoppedSessionIDs: []uuid.UUID{},
	}

	sessions, err := r.db.GetStaleActiveSessions(ctx, t.Add(-r.grace))
	if err != nil {
		stats.Error = xerrors.Errorf("get stale active sessions: %w", err)
		return stats
	}

	for _, session := range sessions {
		logger := r.logger.With(
			slog.F("session_id", session.ID),
			slog.F("user_id", session.UserID),
		)

		user, err := r.db.GetUserByID(ctx, session.UserID)
		if errors.Is(err, sql.ErrNoRows) {
			// Owner deleted; the row cascades away with the user.
			continue
		}
		if err != nil {
			logger.Warn(ctx, "get session owner", slog.Error(err))
			continue
		}

		logger.Info(ctx, "detected abandoned session, forcefully stopping",
			slog.F("last_heartbeat_at", session.LastHeartbeatAt))

		_, err = r.tracker.Stop(ctx, user)
		if errors.Is(err, sessiontrack.ErrNoActiveSession) {
			// The owner stopped it between the sweep query and now.
			continue
		}
		if err != nil {
			logger.Warn(ctx, "stop abandoned session", slog.Error(err))
			continue
		}
		stats.StoppedSessionIDs = append(stats.StoppedSessionIDs, session.ID)
	}

	return stats
}
