package hallsdk

import (
	"context"
	"sync"
	"time"

	"cdr.dev/slog"
)

// SessionCommand applies session transitions optimistically: the local clock
// state flips immediately and the server call happens in the background.
// There is no rollback when the call fails; the next Resync converges the
// local view back onto the server's. This is an accepted weak-consistency
// trade-off, the stakes of a study timer being what they are.
type SessionCommand struct {
	Client *Client
	Logger slog.Logger

	mu    sync.Mutex
	clock SessionClock
}

// Clock returns the current local view.
func (s *SessionCommand) Clock() SessionClock {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock
}

// Start optimistically begins a session for the tag and fires the server
// call. The local snapshot is replaced wholesale, matching the server's
// overwrite semantics.
func (s *SessionCommand) Start(ctx context.Context, tag string) {
	s.mu.Lock()
	s.clock.Session = Session{
		Tag:       tag,
		StartedAt: time.Now().UTC(),
	}
	s.mu.Unlock()
	go func() {
		resp, err := s.Client.StartSession(context.WithoutCancel(ctx), StartSessionRequest{Tag: tag})
		if err != nil {
			s.Logger.Warn(ctx, "start session", slog.Error(err))
			return
		}
		s.mu.Lock()
		s.clock.Session = resp.Session
		s.clock.CompletedToday = resp.CompletedToday
		s.mu.Unlock()
	}()
}

// Pause freezes the local clock and fires the server pause.
func (s *SessionCommand) Pause(ctx context.Context) {
	now := time.Now().UTC()
	s.mu.Lock()
	if !s.clock.Session.IsPaused {
		s.clock.Session.IsPaused = true
		s.clock.Session.PausedAt = &now
	}
	s.mu.Unlock()
	go func() {
		_, err := s.Client.PauseSession(context.WithoutCancel(ctx))
		if err != nil {
			s.Logger.Warn(ctx, "pause session", slog.Error(err))
		}
	}()
}

// Resume unfreezes the local clock, shifting its start forward by the paused
// interval the same way the server does, and fires the server resume.
func (s *SessionCommand) Resume(ctx context.Context) {
	s.mu.Lock()
	if s.clock.Session.IsPaused && s.clock.Session.PausedAt != nil {
		paused := time.Since(*s.clock.Session.PausedAt)
		s.clock.Session.StartedAt = s.clock.Session.StartedAt.Add(paused)
	}
	s.clock.Session.IsPaused = false
	s.clock.Session.PausedAt = nil
	s.mu.Unlock()
	go func() {
		_, err := s.Client.ResumeSession(context.WithoutCancel(ctx))
		if err != nil {
			s.Logger.Warn(ctx, "resume session", slog.Error(err))
		}
	}()
}

// Stop folds the interval into the local completed total, clears the
// session, and fires the server stop.
func (s *SessionCommand) Stop(ctx context.Context) {
	s.mu.Lock()
	s.clock.CompletedToday = s.clock.Total(time.Now().UTC())
	s.clock.Session = Session{}
	s.mu.Unlock()
	go func() {
		_, err := s.Client.StopSession(context.WithoutCancel(ctx))
		if err != nil {
			s.Logger.Warn(ctx, "stop session", slog.Error(err))
		}
	}()
}

// Resync replaces the local view with the server's. Called on restore and
// whenever a missed broadcast is suspected.
func (s *SessionCommand) Resync(ctx context.Context) error {
	resp, err := s.Client.ActiveSession(ctx)
	if err != nil {
		return err
	}
	stats, err := s.Client.SessionStats(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if resp.Session == nil {
		s.clock.Session = Session{}
	} else {
		s.clock.Session = *resp.Session
	}
	s.clock.CompletedToday = stats.TodaySeconds
	s.mu.Unlock()
	return nil
}
