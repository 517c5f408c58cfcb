// Package sessiontrack owns the active-session state machine: the single
// in-progress study timer per user and its start, pause, resume and stop
// transitions.
//
// The elapsed-time bookkeeping uses no accumulator. Resume shifts started_at
// forward by exactly the paused interval, so "now - started_at" excludes
// paused time for free, and stop's duration is a single subtraction.
package sessiontrack

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"cdr.dev/slog"
	"github.com/studyhall/studyhall/halld/cache"
	"github.com/studyhall/studyhall/halld/database"
	"github.com/studyhall/studyhall/halld/presence"
)

var (
	// ErrNoActiveSession is returned by transitions that require an existing
	// active session when the user has none.
	ErrNoActiveSession = xerrors.New("no active session")
	// ErrEmptyTag is returned by Start when the subject tag is missing.
	ErrEmptyTag = xerrors.New("subject tag is required")
)

// Tracker executes session transitions against the store and fans the
// resulting presence events out to the user's rooms. Each transition is a
// single request-scoped unit of work; the store mutation commits first, then
// derived caches are invalidated, then the event is broadcast best-effort.
type Tracker struct {
	Database    database.Store
	Broadcaster *presence.Broadcaster
	Cache       cache.Cache
	Logger      slog.Logger

	// Now is the transition clock. Defaults to database.Now.
	Now func() time.Time
}

func (t *Tracker) now() time.Time {
	if t.Now != nil {
		return database.Time(t.Now().UTC())
	}
	return database.Now()
}

// StartOfDay truncates a timestamp to midnight in its own location. Today's
// completed total covers completions at or after this instant.
func StartOfDay(now time.Time) time.Time {
	year, month, day := now.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, now.Location())
}

type StartResult struct {
	Session database.ActiveSession
	// CompletedToday is the sum of today's completed durations in seconds,
	// not including the interval that just started.
	CompletedToday int64
}

type PauseResult struct {
	Session database.ActiveSession
	// AlreadyPaused reports that the session was paused before the call and
	// pausedAt was left untouched. Duplicate client retries land here.
	AlreadyPaused bool
}

type ResumeResult struct {
	Session database.ActiveSession
	// AlreadyRunning reports that the session was not paused and nothing was
	// mutated.
	AlreadyRunning bool
	// PausedDuration is how long the session sat paused; started_at was
	// shifted forward by exactly this much.
	PausedDuration time.Duration
}

type StopResult struct {
	Completed database.StudySession
}

// RoomSession is one member's active session joined with the owning user and
// the member's completed total for today.
type RoomSession struct {
	Session        database.ActiveSession `json:"session"`
	User           database.User          `json:"user"`
	CompletedToday int64                  `json:"completed_today"`
}

// Start creates the user's active session, overwriting any existing one. An
// existing session is discarded rather than merged; start is an authoritative
// reset, which also clears out sessions orphaned by crashed clients.
func (t *Tracker) Start(ctx context.Context, user database.User, tag string) (StartResult, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return StartResult{}, ErrEmptyTag
	}

	now := t.now()
	session, err := t.Database.UpsertActiveSession(ctx, database.UpsertActiveSessionParams{
		ID:              uuid.New(),
		UserID:          user.ID,
		Tag:             tag,
		StartedAt:       now,
		LastHeartbeatAt: now,
	})
	if err != nil {
		return StartResult{}, xerrors.Errorf("upsert active session: %w", err)
	}

	completedToday, err := t.CompletedToday(ctx, user.ID)
	if err != nil {
		return StartResult{}, xerrors.Errorf("sum completed today: %w", err)
	}

	rooms := t.roomsForUser(ctx, user.ID)
	t.invalidate(ctx, user.ID, rooms)
	t.Broadcaster.Broadcast(ctx, rooms, presence.Event{
		Type:           presence.EventSessionStarted,
		UserID:         user.ID,
		Username:       user.Username,
		AvatarURL:      user.AvatarURL,
		Tag:            session.Tag,
		StartedAt:      &session.StartedAt,
		CompletedToday: &completedToday,
	})

	return StartResult{Session: session, CompletedToday: completedToday}, nil
}

// Pause freezes the running session. Pausing an already-paused session is a
// no-op that keeps the original pausedAt, so blind client retries are safe.
func (t *Tracker) Pause(ctx context.Context, user database.User) (PauseResult, error) {
	session, err := t.Database.GetActiveSessionByUserID(ctx, user.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return PauseResult{}, ErrNoActiveSession
	}
	if err != nil {
		return PauseResult{}, xerrors.Errorf("get active session: %w", err)
	}
	if session.IsPaused {
		return PauseResult{Session: session, AlreadyPaused: true}, nil
	}

	now := t.now()
	session, err = t.Database.UpdateActiveSessionPauseState(ctx, database.UpdateActiveSessionPauseStateParams{
		ID:              session.ID,
		StartedAt:       session.StartedAt,
		IsPaused:        true,
		PausedAt:        sql.NullTime{Time: now, Valid: true},
		LastHeartbeatAt: now,
	})
	if err != nil {
		return PauseResult{}, xerrors.Errorf("pause active session: %w", err)
	}

	rooms := t.roomsForUser(ctx, user.ID)
	t.invalidate(ctx, user.ID, rooms)
	t.Broadcaster.Broadcast(ctx, rooms, presence.Event{
		Type:     presence.EventSessionPaused,
		UserID:   user.ID,
		Username: user.Username,
		Tag:      session.Tag,
		PausedAt: &session.PausedAt.Time,
	})

	return PauseResult{Session: session}, nil
}

// Resume unfreezes a paused session by shifting started_at forward by the
// paused interval. Elapsed time immediately after resume equals elapsed time
// at the moment of pause; pausing never advances or retreats the clock.
// Resuming a session that is not paused is a no-op.
func (t *Tracker) Resume(ctx context.Context, user database.User) (ResumeResult, error) {
	session, err := t.Database.GetActiveSessionByUserID(ctx, user.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return ResumeResult{}, ErrNoActiveSession
	}
	if err != nil {
		return ResumeResult{}, xerrors.Errorf("get active session: %w", err)
	}
	if !session.IsPaused || !session.PausedAt.Valid {
		return ResumeResult{Session: session, AlreadyRunning: true}, nil
	}

	now := t.now()
	pausedDuration := now.Sub(session.PausedAt.Time)
	session, err = t.Database.UpdateActiveSessionPauseState(ctx, database.UpdateActiveSessionPauseStateParams{
		ID:              session.ID,
		StartedAt:       session.StartedAt.Add(pausedDuration),
		IsPaused:        false,
		PausedAt:        sql.NullTime{},
		LastHeartbeatAt: now,
	})
	if err != nil {
		return ResumeResult{}, xerrors.Errorf("resume active session: %w", err)
	}

	rooms := t.roomsForUser(ctx, user.ID)
	t.invalidate(ctx, user.ID, rooms)
	t.Broadcaster.Broadcast(ctx, rooms, presence.Event{
		Type:         presence.EventSessionResumed,
		UserID:       user.ID,
		Username:     user.Username,
		Tag:          session.Tag,
		NewStartedAt: &session.StartedAt,
	})

	return ResumeResult{Session: session, PausedDuration: pausedDuration}, nil
}

// Stop completes the session, paused or running. The active row is deleted
// and the completed record inserted in one transaction; a crash can never be
// observed as a session that vanished without history. Zero elapsed time
// still records a zero-duration completion.
func (t *Tracker) Stop(ctx context.Context, user database.User) (StopResult, error) {
	session, err := t.Database.GetActiveSessionByUserID(ctx, user.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return StopResult{}, ErrNoActiveSession
	}
	if err != nil {
		return StopResult{}, xerrors.Errorf("get active session: %w", err)
	}

	now := t.now()
	duration := int64(now.Sub(session.StartedAt) / time.Second)

	var completed database.StudySession
	err = t.Database.InTx(func(db database.Store) error {
		err := db.DeleteActiveSession(ctx, session.ID)
		if err != nil {
			return xerrors.Errorf("delete active session: %w", err)
		}
		completed, err = db.InsertStudySession(ctx, database.InsertStudySessionParams{
			ID:        uuid.New(),
			UserID:    user.ID,
			Tag:       session.Tag,
			Duration:  duration,
			CreatedAt: now,
		})
		if err != nil {
			return xerrors.Errorf("insert study session: %w", err)
		}
		return nil
	})
	if err != nil {
		return StopResult{}, err
	}

	rooms := t.roomsForUser(ctx, user.ID)
	t.invalidate(ctx, user.ID, rooms)
	t.Broadcaster.Broadcast(ctx, rooms, presence.Event{
		Type:     presence.EventSessionStopped,
		UserID:   user.ID,
		Username: user.Username,
		Tag:      completed.Tag,
		Duration: &completed.Duration,
	})

	return StopResult{Completed: completed}, nil
}

// Active returns the user's current session, if any. Pure read; the cached
// snapshot only short-circuits the lookup and a miss always hits the store.
func (t *Tracker) Active(ctx context.Context, userID uuid.UUID) (database.ActiveSession, bool, error) {
	type snapshot struct {
		Session *database.ActiveSession `json:"session"`
	}

	key := cache.ActiveSessionKey(userID)
	var cached snapshot
	hit, err := t.Cache.Get(ctx, key, &cached)
	if err != nil {
		t.Logger.Warn(ctx, "read active session cache", slog.Error(err))
	} else if hit {
		if cached.Session == nil {
			return database.ActiveSession{}, false, nil
		}
		return *cached.Session, true, nil
	}

	session, err := t.Database.GetActiveSessionByUserID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		t.cacheSet(ctx, key, snapshot{}, cache.ActiveSessionTTL)
		return database.ActiveSession{}, false, nil
	}
	if err != nil {
		return database.ActiveSession{}, false, xerrors.Errorf("get active session: %w", err)
	}
	t.cacheSet(ctx, key, snapshot{Session: &session}, cache.ActiveSessionTTL)
	return session, true, nil
}

// Heartbeat records that the owner's client is still alive, deferring the
// reaper's grace period.
func (t *Tracker) Heartbeat(ctx context.Context, userID uuid.UUID) error {
	err := t.Database.UpdateActiveSessionHeartbeat(ctx, database.UpdateActiveSessionHeartbeatParams{
		UserID:          userID,
		LastHeartbeatAt: t.now(),
	})
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNoActiveSession
	}
	if err != nil {
		return xerrors.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// CompletedToday sums the durations of the user's completed sessions since
// local midnight, in seconds.
func (t *Tracker) CompletedToday(ctx context.Context, userID uuid.UUID) (int64, error) {
	stats, err := t.Database.GetStudySessionStats(ctx, database.GetStudySessionStatsParams{
		UserID:       userID,
		CreatedAfter: StartOfDay(t.now()),
	})
	if err != nil {
		return 0, err
	}
	return stats.DurationSum, nil
}

// Stats is the aggregate view of a user's completed ledger: today's and the
// trailing week's totals, the week broken down per tag and per day.
type Stats struct {
	TodaySeconds  int64     `json:"today_seconds"`
	TodaySessions int64     `json:"today_sessions"`
	WeekSeconds   int64     `json:"week_seconds"`
	WeekSessions  int64     `json:"week_sessions"`
	Tags          []TagStat `json:"tags"`
	Days          []DayStat `json:"days"`
}

// TagStat is one tag's share of the trailing week.
type TagStat struct {
	Tag      string `json:"tag"`
	Seconds  int64  `json:"seconds"`
	Sessions int64  `json:"sessions"`
}

// DayStat is one calendar day's completed total. The week series always has
// seven entries, zero-filled, oldest first.
type DayStat struct {
	Day     time.Time `json:"day"`
	Seconds int64     `json:"seconds"`
}

// UserStats aggregates the user's completed sessions. Served through the
// cache; every transition invalidates it, so a hit is never staler than the
// last completed mutation.
func (t *Tracker) UserStats(ctx context.Context, userID uuid.UUID) (Stats, error) {
	key := cache.UserStatsKey(userID)
	var cached Stats
	hit, err := t.Cache.Get(ctx, key, &cached)
	if err != nil {
		t.Logger.Warn(ctx, "read stats cache", slog.Error(err))
	} else if hit {
		return cached, nil
	}

	now := t.now()
	today := StartOfDay(now)
	weekStart := today.AddDate(0, 0, -6)

	todayStats, err := t.Database.GetStudySessionStats(ctx, database.GetStudySessionStatsParams{
		UserID:       userID,
		CreatedAfter: today,
	})
	if err != nil {
		return Stats{}, xerrors.Errorf("aggregate today: %w", err)
	}
	weekStats, err := t.Database.GetStudySessionStats(ctx, database.GetStudySessionStatsParams{
		UserID:       userID,
		CreatedAfter: weekStart,
	})
	if err != nil {
		return Stats{}, xerrors.Errorf("aggregate week: %w", err)
	}
	tagStats, err := t.Database.GetStudySessionTagStats(ctx, database.GetStudySessionTagStatsParams{
		UserID:       userID,
		CreatedAfter: weekStart,
	})
	if err != nil {
		return Stats{}, xerrors.Errorf("aggregate tags: %w", err)
	}
	weekSessions, err := t.Database.GetStudySessionsCreatedAfter(ctx, database.GetStudySessionsCreatedAfterParams{
		UserID:       userID,
		CreatedAfter: weekStart,
	})
	if err != nil {
		return Stats{}, xerrors.Errorf("list week sessions: %w", err)
	}

	days := make([]DayStat, 7)
	for i := range days {
		days[i].Day = weekStart.AddDate(0, 0, i)
	}
	for _, session := range weekSessions {
		i := int(StartOfDay(session.CreatedAt).Sub(weekStart).Hours() / 24)
		if i < 0 || i >= len(days) {
			continue
		}
		days[i].Seconds += session.Duration
	}

	tags := make([]TagStat, 0, len(tagStats))
	for _, row := range tagStats {
		tags = append(tags, TagStat{
			Tag:      row.Tag,
			Seconds:  row.DurationSum,
			Sessions: row.SessionCount,
		})
	}

	stats := Stats{
		TodaySeconds:  todayStats.DurationSum,
		TodaySessions: todayStats.SessionCount,
		WeekSeconds:   weekStats.DurationSum,
		WeekSessions:  weekStats.SessionCount,
		Tags:          tags,
		Days:          days,
	}
	t.cacheSet(ctx, key, stats, cache.StatsTTL)
	return stats, nil
}

// RoomActive lists every member's active session in the room, joined with the
// member's user record and today's completed total. Room views call this on
// join and whenever they suspect a missed event.
func (t *Tracker) RoomActive(ctx context.Context, room database.Room) ([]RoomSession, error) {
	key := cache.RoomActiveKey(room.Code)
	var cached []RoomSession
	hit, err := t.Cache.Get(ctx, key, &cached)
	if err != nil {
		t.Logger.Warn(ctx, "read room active cache", slog.Error(err))
	} else if hit {
		return cached, nil
	}

	members, err := t.Database.GetRoomMembersByRoomID(ctx, room.ID)
	if err != nil {
		return nil, xerrors.Errorf("get room members: %w", err)
	}
	userIDs := make([]uuid.UUID, 0, len(members))
	for _, member := range members {
		userIDs = append(userIDs, member.UserID)
	}
	if len(userIDs) == 0 {
		return []RoomSession{}, nil
	}

	sessions, err := t.Database.GetActiveSessionsByUserIDs(ctx, userIDs)
	if err != nil {
		return nil, xerrors.Errorf("get active sessions: %w", err)
	}
	users, err := t.Database.GetUsersByIDs(ctx, userIDs)
	if err != nil {
		return nil, xerrors.Errorf("get users: %w", err)
	}
	sums, err := t.Database.GetStudySessionSums(ctx, database.GetStudySessionSumsParams{
		UserIDs:      userIDs,
		CreatedAfter: StartOfDay(t.now()),
	})
	if err != nil {
		return nil, xerrors.Errorf("sum completed durations: %w", err)
	}

	usersByID := make(map[uuid.UUID]database.User, len(users))
	for _, user := range users {
		usersByID[user.ID] = user
	}
	sumsByID := make(map[uuid.UUID]int64, len(sums))
	for _, sum := range sums {
		sumsByID[sum.UserID] = sum.DurationSum
	}

	roomSessions := make([]RoomSession, 0, len(sessions))
	for _, session := range sessions {
		roomSessions = append(roomSessions, RoomSession{
			Session:        session,
			User:           usersByID[session.UserID],
			CompletedToday: sumsByID[session.UserID],
		})
	}
	t.cacheSet(ctx, key, roomSessions, cache.RoomActiveTTL)
	return roomSessions, nil
}

func (t *Tracker) roomsForUser(ctx context.Context, userID uuid.UUID) []database.Room {
	rooms, err := t.Database.GetRoomsByUserID(ctx, userID)
	if err != nil {
		// Fan-out is best-effort. The transition already committed, so a
		// failed room lookup only costs the broadcast, never the mutation.
		t.Logger.Warn(ctx, "list rooms for fan-out", slog.Error(err))
		return nil
	}
	return rooms
}

// invalidate drops every derived cache the transition could have staled,
// before the transition returns success.
func (t *Tracker) invalidate(ctx context.Context, userID uuid.UUID, rooms []database.Room) {
	keys := []string{
		cache.ActiveSessionKey(userID),
		cache.UserStatsKey(userID),
	}
	for _, room := range rooms {
		keys = append(keys, cache.RoomActiveKey(room.Code))
	}
	err := t.Cache.Delete(ctx, keys...)
	if err != nil {
		t.Logger.Warn(ctx, "invalidate caches", slog.Error(err))
	}
}

func (t *Tracker) cacheSet(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	err := t.Cache.Set(ctx, key, value, ttl)
	if err != nil {
		t.Logger.Warn(ctx, "write cache", slog.F("key", key), slog.Error(err))
	}
}
