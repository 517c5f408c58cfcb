package sessiontrack_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"cdr.dev/slog/sloggers/slogtest"
	"github.com/studyhall/studyhall/halld/cache"
	"github.com/studyhall/studyhall/halld/database"
	"github.com/studyhall/studyhall/halld/database/databasefake"
	"github.com/studyhall/studyhall/halld/database/pubsub"
	"github.com/studyhall/studyhall/halld/presence"
	"github.com/studyhall/studyhall/halld/sessiontrack"
)

type fixture struct {
	tracker *sessiontrack.Tracker
	db      database.Store
	pubsub  pubsub.Pubsub
	cache   cache.Cache
	user    database.User
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slogtest.Make(t, nil)
	db := databasefake.New()
	ps := pubsub.NewInMemory()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedis("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Close()
	})

	f := &fixture{
		db:     db,
		pubsub: ps,
		cache:  c,
		now:    time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC),
	}
	f.tracker = &sessiontrack.Tracker{
		Database: db,
		Broadcaster: &presence.Broadcaster{
			Pubsub: ps,
			Logger: logger,
		},
		Cache:  c,
		Logger: logger,
		Now:    func() time.Time { return f.now },
	}

	f.user, err = db.InsertUser(context.Background(), database.InsertUserParams{
		ID:        uuid.New(),
		Email:     "dev@studyhall.test",
		Username:  "dev",
		CreatedAt: database.Now(),
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) joinRoom(t *testing.T, code string) database.Room {
	t.Helper()
	ctx := context.Background()
	room, err := f.db.InsertRoom(ctx, database.InsertRoomParams{
		ID:        uuid.New(),
		Code:      code,
		Name:      "study room",
		HostID:    f.user.ID,
		CreatedAt: database.Now(),
	})
	require.NoError(t, err)
	_, err = f.db.InsertRoomMember(ctx, database.InsertRoomMemberParams{
		RoomID:   room.ID,
		UserID:   f.user.ID,
		JoinedAt: database.Now(),
	})
	require.NoError(t, err)
	return room
}

func TestStart(t *testing.T) {
	t.Parallel()

	t.Run("Running", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		f := newFixture(t)

		res, err := f.tracker.Start(ctx, f.user, "Math")
		require.NoError(t, err)
		require.Equal(t, "Math", res.Session.Tag)
		require.False(t, res.Session.IsPaused)
		require.False(t, res.Session.PausedAt.Valid)
		require.True(t, res.Session.StartedAt.Equal(f.now))

		active, ok, err := f.tracker.Active(ctx, f.user.ID)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "Math", active.Tag)
		require.False(t, active.IsPaused)
	})

	t.Run("EmptyTag", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		f := newFixture(t)

		_, err := f.tracker.Start(ctx, f.user, "   ")
		require.ErrorIs(t, err, sessiontrack.ErrEmptyTag)
		_, ok, err := f.tracker.Active(ctx, f.user.ID)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("OverwritesExisting", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		f := newFixture(t)

		first, err := f.tracker.Start(ctx, f.user, "A")
		require.NoError(t, err)
		f.advance(10 * time.Second)
		second, err := f.tracker.Start(ctx, f.user, "B")
		require.NoError(t, err)

		// The prior interval is silently discarded. A single row remains,
		// carrying the newest tag and start time.
		active, ok, err := f.tracker.Active(ctx, f.user.ID)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "B", active.Tag)
		require.True(t, active.StartedAt.Equal(first.Session.StartedAt.Add(10*time.Second)))
		require.True(t, active.StartedAt.Equal(second.Session.StartedAt))

		sessions, err := f.db.GetActiveSessionsByUserIDs(ctx, []uuid.UUID{f.user.ID})
		require.NoError(t, err)
		require.Len(t, sessions, 1)
	})

	t.Run("CompletedToday", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		f := newFixture(t)

		// A session completed earlier today counts; yesterday's does not.
		_, err := f.db.InsertStudySession(ctx, database.InsertStudySessionParams{
			ID: uuid.New(), UserID: f.user.ID, Tag: "Math",
			Duration: 600, CreatedAt: f.now.Add(-2 * time.Hour),
		})
		require.NoError(t, err)
		_, err = f.db.InsertStudySession(ctx, database.InsertStudySessionParams{
			ID: uuid.New(), UserID: f.user.ID, Tag: "Math",
			Duration: 999, CreatedAt: f.now.Add(-24 * time.Hour),
		})
		require.NoError(t, err)

		res, err := f.tracker.Start(ctx, f.user, "Math")
		require.NoError(t, err)
		require.EqualValues(t, 600, res.CompletedToday)
	})
}

func TestPause(t *testing.T) {
	t.Parallel()

	t.Run("NoSession", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		f := newFixture(t)

		_, err := f.tracker.Pause(ctx, f.user)
		require.ErrorIs(t, err, sessiontrack.ErrNoActiveSession)
		_, ok, err := f.tracker.Active(ctx, f.user.ID)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("Pause", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		f := newFixture(t)

		_, err := f.tracker.Start(ctx, f.user, "Math")
		require.NoError(t, err)
		f.advance(30 * time.Second)

		res, err := f.tracker.Pause(ctx, f.user)
		require.NoError(t, err)
		require.False(t, res.AlreadyPaused)
		require.True(t, res.Session.IsPaused)
		require.True(t, res.Session.PausedAt.Valid)
		require.True(t, res.Session.PausedAt.Time.Equal(f.now))
	})

	t.Run("Idempotent", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		f := newFixture(t)

		_, err := f.tracker.Start(ctx, f.user, "Math")
		require.NoError(t, err)
		f.advance(30 * time.Second)
		first, err := f.tracker.Pause(ctx, f.user)
		require.NoError(t, err)

		// The retry must not re-stamp pausedAt.
		f.advance(15 * time.Second)
		second, err := f.tracker.Pause(ctx, f.user)
		require.NoError(t, err)
		require.True(t, second.AlreadyPaused)
		require.True(t, second.Session.PausedAt.Time.Equal(first.Session.PausedAt.Time))
	})
}

func TestResume(t *testing.T) {
	t.Parallel()

	t.Run("NoSession", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		f := newFixture(t)

		_, err := f.tracker.Resume(ctx, f.user)
		require.ErrorIs(t, err, sessiontrack.ErrNoActiveSession)
	})

	t.Run("ShiftsStartForward", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		f := newFixture(t)

		started, err := f.tracker.Start(ctx, f.user, "Math")
		require.NoError(t, err)
		startedAt := started.Session.StartedAt

		f.advance(30 * time.Second)
		paused, err := f.tracker.Pause(ctx, f.user)
		require.NoError(t, err)

		f.advance(60 * time.Second)
		res, err := f.tracker.Resume(ctx, f.user)
		require.NoError(t, err)
		require.False(t, res.AlreadyRunning)
		require.Equal(t, 60*time.Second, res.PausedDuration)
		require.True(t, res.Session.StartedAt.Equal(startedAt.Add(60*time.Second)))
		require.False(t, res.Session.IsPaused)
		require.False(t, res.Session.PausedAt.Valid)

		// Elapsed immediately after resume equals elapsed at pause time:
		// 30s, not 90s.
		elapsedAtPause := paused.Session.PausedAt.Time.Sub(paused.Session.StartedAt)
		elapsedAfterResume := f.now.Sub(res.Session.StartedAt)
		require.Equal(t, elapsedAtPause, elapsedAfterResume)
		require.Equal(t, 30*time.Second, elapsedAfterResume)
	})

	t.Run("Idempotent", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		f := newFixture(t)

		started, err := f.tracker.Start(ctx, f.user, "Math")
		require.NoError(t, err)
		f.advance(30 * time.Second)

		res, err := f.tracker.Resume(ctx, f.user)
		require.NoError(t, err)
		require.True(t, res.AlreadyRunning)
		require.True(t, res.Session.StartedAt.Equal(started.Session.StartedAt))
	})
}

func TestStop(t *testing.T) {
	t.Parallel()

	t.Run("NoSession", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		f := newFixture(t)

		_, err := f.tracker.Stop(ctx, f.user)
		require.ErrorIs(t, err, sessiontrack.ErrNoActiveSession)
	})

	t.Run("RecordsFlooredSeconds", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		f := newFixture(t)

		_, err := f.tracker.Start(ctx, f.user, "Math")
		require.NoError(t, err)
		f.advance(125*time.Second + 800*time.Millisecond)

		res, err := f.tracker.Stop(ctx, f.user)
		require.NoError(t, err)
		require.EqualValues(t, 125, res.Completed.Duration)
		require.Equal(t, "Math", res.Completed.Tag)

		// Exactly one completed record, and the active row is gone.
		_, ok, err := f.tracker.Active(ctx, f.user.ID)
		require.NoError(t, err)
		require.False(t, ok)
		completed, err := f.db.GetStudySessionsCreatedAfter(ctx, database.GetStudySessionsCreatedAfterParams{
			UserID:       f.user.ID,
			CreatedAfter: f.now.Add(-time.Hour),
		})
		require.NoError(t, err)
		require.Len(t, completed, 1)
	})

	t.Run("ZeroDuration", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		f := newFixture(t)

		_, err := f.tracker.Start(ctx, f.user, "Math")
		require.NoError(t, err)
		res, err := f.tracker.Stop(ctx, f.user)
		require.NoError(t, err)
		require.EqualValues(t, 0, res.Completed.Duration)
	})

	t.Run("WhilePaused", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		f := newFixture(t)

		_, err := f.tracker.Start(ctx, f.user, "Math")
		require.NoError(t, err)
		f.advance(30 * time.Second)
		_, err = f.tracker.Pause(ctx, f.user)
		require.NoError(t, err)
		f.advance(70 * time.Second)

		// Stop reads started_at as-is: a stop without resume includes the
		// paused tail, exactly like the pause/stop race resolving stop-last.
		res, err := f.tracker.Stop(ctx, f.user)
		require.NoError(t, err)
		require.EqualValues(t, 100, res.Completed.Duration)
	})

	t.Run("PauseResumeExcludesPausedTime", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		f := newFixture(t)

		_, err := f.tracker.Start(ctx, f.user, "Math")
		require.NoError(t, err)
		f.advance(30 * time.Second)
		_, err = f.tracker.Pause(ctx, f.user)
		require.NoError(t, err)
		f.advance(60 * time.Second)
		_, err = f.tracker.Resume(ctx, f.user)
		require.NoError(t, err)
		f.advance(20 * time.Second)

		res, err := f.tracker.Stop(ctx, f.user)
		require.NoError(t, err)
		require.EqualValues(t, 50, res.Completed.Duration)
	})
}

func TestPresenceEvents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	room := f.joinRoom(t, "ABC123")

	events := make(chan presence.Event, 8)
	unsub, err := f.pubsub.Subscribe(presence.RoomChannel(room.Code), func(_ context.Context, message []byte) {
		var event presence.Event
		if err := json.Unmarshal(message, &event); err != nil {
			t.Errorf("unmarshal event: %v", err)
			return
		}
		events <- event
	})
	require.NoError(t, err)
	defer unsub()

	recv := func() presence.Event {
		select {
		case event := <-events:
			return event
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for presence event")
			return presence.Event{}
		}
	}

	_, err = f.tracker.Start(ctx, f.user, "Math")
	require.NoError(t, err)
	started := recv()
	require.Equal(t, presence.EventSessionStarted, started.Type)
	require.Equal(t, f.user.ID, started.UserID)
	require.Equal(t, "dev", started.Username)
	require.Equal(t, "Math", started.Tag)
	require.NotNil(t, started.StartedAt)
	require.NotNil(t, started.CompletedToday)

	f.advance(30 * time.Second)
	_, err = f.tracker.Pause(ctx, f.user)
	require.NoError(t, err)
	paused := recv()
	require.Equal(t, presence.EventSessionPaused, paused.Type)
	require.NotNil(t, paused.PausedAt)

	f.advance(10 * time.Second)
	_, err = f.tracker.Resume(ctx, f.user)
	require.NoError(t, err)
	resumed := recv()
	require.Equal(t, presence.EventSessionResumed, resumed.Type)
	require.NotNil(t, resumed.NewStartedAt)

	f.advance(15 * time.Second)
	_, err = f.tracker.Stop(ctx, f.user)
	require.NoError(t, err)
	stopped := recv()
	require.Equal(t, presence.EventSessionStopped, stopped.Type)
	require.NotNil(t, stopped.Duration)
	require.EqualValues(t, 45, *stopped.Duration)
}

func TestCacheInvalidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.tracker.Start(ctx, f.user, "Math")
	require.NoError(t, err)

	// Warm the active-session cache, then pause. The stale running snapshot
	// must not survive the transition.
	_, ok, err := f.tracker.Active(ctx, f.user.ID)
	require.NoError(t, err)
	require.True(t, ok)

	f.advance(30 * time.Second)
	_, err = f.tracker.Pause(ctx, f.user)
	require.NoError(t, err)

	active, ok, err := f.tracker.Active(ctx, f.user.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, active.IsPaused)
}

func TestRoomActive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	room := f.joinRoom(t, "ABC123")

	// A second member with completed history and a running session.
	other, err := f.db.InsertUser(ctx, database.InsertUserParams{
		ID: uuid.New(), Email: "other@studyhall.test", Username: "other",
		CreatedAt: database.Now(),
	})
	require.NoError(t, err)
	_, err = f.db.InsertRoomMember(ctx, database.InsertRoomMemberParams{
		RoomID: room.ID, UserID: other.ID, JoinedAt: database.Now(),
	})
	require.NoError(t, err)
	_, err = f.db.InsertStudySession(ctx, database.InsertStudySessionParams{
		ID: uuid.New(), UserID: other.ID, Tag: "Physics",
		Duration: 1200, CreatedAt: f.now.Add(-time.Hour),
	})
	require.NoError(t, err)
	_, err = f.tracker.Start(ctx, other, "Physics")
	require.NoError(t, err)

	sessions, err := f.tracker.RoomActive(ctx, room)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, other.ID, sessions[0].User.ID)
	require.Equal(t, "Physics", sessions[0].Session.Tag)
	require.EqualValues(t, 1200, sessions[0].CompletedToday)

	// The fixture user starts too; the room snapshot cache was invalidated
	// by the transition, so the refreshed listing includes both.
	_, err = f.tracker.Start(ctx, f.user, "Math")
	require.NoError(t, err)
	sessions, err = f.tracker.RoomActive(ctx, room)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
}

func TestHeartbeat(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	err := f.tracker.Heartbeat(ctx, f.user.ID)
	require.ErrorIs(t, err, sessiontrack.ErrNoActiveSession)

	_, err = f.tracker.Start(ctx, f.user, "Math")
	require.NoError(t, err)
	f.advance(time.Minute)
	require.NoError(t, f.tracker.Heartbeat(ctx, f.user.ID))

	session, err := f.db.GetActiveSessionByUserID(ctx, f.user.ID)
	require.NoError(t, err)
	require.True(t, session.LastHeartbeatAt.Equal(f.now))
}

func TestUserStats(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	complete := func(tag string, d time.Duration) {
		_, err := f.tracker.Start(ctx, f.user, tag)
		require.NoError(t, err)
		f.advance(d)
		_, err = f.tracker.Stop(ctx, f.user)
		require.NoError(t, err)
	}

	// Two days ago, inside the trailing week but not today.
	f.advance(-48 * time.Hour)
	complete("Math", 10*time.Minute)
	f.advance(48*time.Hour - 10*time.Minute)

	complete("Math", 20*time.Minute)
	complete("History", 5*time.Minute)

	stats, err := f.tracker.UserStats(ctx, f.user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, stats.TodaySessions)
	require.EqualValues(t, 1500, stats.TodaySeconds)
	require.EqualValues(t, 3, stats.WeekSessions)
	require.EqualValues(t, 2100, stats.WeekSeconds)

	require.Len(t, stats.Days, 7)
	require.EqualValues(t, 600, stats.Days[4].Seconds)
	require.EqualValues(t, 1500, stats.Days[6].Seconds)

	byTag := map[string]sessiontrack.TagStat{}
	for _, tag := range stats.Tags {
		byTag[tag.Tag] = tag
	}
	require.EqualValues(t, 1800, byTag["Math"].Seconds)
	require.EqualValues(t, 2, byTag["Math"].Sessions)
	require.EqualValues(t, 300, byTag["History"].Seconds)

	// A hit is served from the cache; completing another session
	// invalidates it.
	cached, err := f.tracker.UserStats(ctx, f.user.ID)
	require.NoError(t, err)
	require.Equal(t, stats, cached)

	complete("Math", time.Minute)
	stats, err = f.tracker.UserStats(ctx, f.user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1560, stats.TodaySeconds)
}
