package hallsdk_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/studyhall/studyhall/hallsdk"
)

func TestSessionClock(t *testing.T) {
	t.Parallel()
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("Running", func(t *testing.T) {
		t.Parallel()
		clock := hallsdk.SessionClock{
			Session: hallsdk.Session{StartedAt: start},
		}
		require.Equal(t, 90*time.Second, clock.Elapsed(start.Add(90*time.Second)))
	})

	t.Run("FrozenWhilePaused", func(t *testing.T) {
		t.Parallel()
		pausedAt := start.Add(45 * time.Second)
		clock := hallsdk.SessionClock{
			Session: hallsdk.Session{
				StartedAt: start,
				IsPaused:  true,
				PausedAt:  &pausedAt,
			},
		}
		// No matter how far now advances, a paused clock shows the same
		// elapsed time.
		require.Equal(t, 45*time.Second, clock.Elapsed(start.Add(10*time.Minute)))
		require.Equal(t, 45*time.Second, clock.Elapsed(start.Add(2*time.Hour)))
	})

	t.Run("ClampsLocalSkew", func(t *testing.T) {
		t.Parallel()
		clock := hallsdk.SessionClock{
			Session: hallsdk.Session{StartedAt: start},
		}
		require.Equal(t, time.Duration(0), clock.Elapsed(start.Add(-5*time.Second)))
	})

	t.Run("NoSession", func(t *testing.T) {
		t.Parallel()
		// The view a stop or an empty resync installs: zero-value session,
		// only the completed total remains.
		clock := hallsdk.SessionClock{
			CompletedToday: 900,
		}
		require.Equal(t, time.Duration(0), clock.Elapsed(start))
		require.EqualValues(t, 900, clock.Total(start))
		// Folding the total again must not change it.
		clock.CompletedToday = clock.Total(start.Add(time.Hour))
		require.EqualValues(t, 900, clock.Total(start.Add(2*time.Hour)))
	})

	t.Run("TotalAddsCompleted", func(t *testing.T) {
		t.Parallel()
		clock := hallsdk.SessionClock{
			Session:        hallsdk.Session{StartedAt: start},
			CompletedToday: 600,
		}
		require.EqualValues(t, 630, clock.Total(start.Add(30*time.Second)))
		// Sub-second progress is floored, not rounded.
		require.EqualValues(t, 630, clock.Total(start.Add(30*time.Second+900*time.Millisecond)))
	})
}
