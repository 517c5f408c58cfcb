package hallsdk

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Session is a snapshot of an in-progress study timer. StartedAt already
// excludes all paused intervals, so elapsed time is always now minus
// StartedAt while running.
type Session struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	Tag       string     `json:"tag"`
	StartedAt time.Time  `json:"started_at"`
	IsPaused  bool       `json:"is_paused"`
	PausedAt  *time.Time `json:"paused_at,omitempty"`
}

// StudySession is one completed study interval from the ledger.
type StudySession struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Tag       string    `json:"tag"`
	Duration  int64     `json:"duration"`
	CreatedAt time.Time `json:"created_at"`
}

type StartSessionRequest struct {
	Tag string `json:"tag" validate:"required"`
}

type StartSessionResponse struct {
	Session Session `json:"session"`
	// CompletedToday is the user's completed total for today in seconds,
	// excluding the session that just started.
	CompletedToday int64 `json:"completed_today"`
}

type PauseSessionResponse struct {
	Session Session `json:"session"`
	// AlreadyPaused reports that the session was paused before this call and
	// the original paused timestamp was kept.
	AlreadyPaused bool `json:"already_paused"`
}

type ResumeSessionResponse struct {
	Session        Session `json:"session"`
	AlreadyRunning bool    `json:"already_running"`
	// PausedDurationMs is how long the session sat paused before this
	// resume, in milliseconds.
	PausedDurationMs int64 `json:"paused_duration_ms"`
}

type StopSessionResponse struct {
	Completed StudySession `json:"completed"`
}

// ActiveSessionResponse carries the current session, or a null session when
// the user has none.
type ActiveSessionResponse struct {
	Session *Session `json:"session"`
}

// SessionStats mirrors the tracker's aggregate view of the completed ledger.
type SessionStats struct {
	TodaySeconds  int64     `json:"today_seconds"`
	TodaySessions int64     `json:"today_sessions"`
	WeekSeconds   int64     `json:"week_seconds"`
	WeekSessions  int64     `json:"week_sessions"`
	Tags          []TagStat `json:"tags"`
	Days          []DayStat `json:"days"`
}

type TagStat struct {
	Tag      string `json:"tag"`
	Seconds  int64  `json:"seconds"`
	Sessions int64  `json:"sessions"`
}

type DayStat struct {
	Day     time.Time `json:"day"`
	Seconds int64     `json:"seconds"`
}

// StartSession begins a study session for the given subject tag, replacing
// any session already in progress.
func (c *Client) StartSession(ctx context.Context, req StartSessionRequest) (StartSessionResponse, error) {
	res, err := c.Request(ctx, http.MethodPost, "/api/v1/sessions/start", req)
	if err != nil {
		return StartSessionResponse{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		return StartSessionResponse{}, readBodyAsError(res)
	}
	var resp StartSessionResponse
	return resp, json.NewDecoder(res.Body).Decode(&resp)
}

func (c *Client) PauseSession(ctx context.Context) (PauseSessionResponse, error) {
	res, err := c.Request(ctx, http.MethodPost, "/api/v1/sessions/pause", nil)
	if err != nil {
		return PauseSessionResponse{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return PauseSessionResponse{}, readBodyAsError(res)
	}
	var resp PauseSessionResponse
	return resp, json.NewDecoder(res.Body).Decode(&resp)
}

func (c *Client) ResumeSession(ctx context.Context) (ResumeSessionResponse, error) {
	res, err := c.Request(ctx, http.MethodPost, "/api/v1/sessions/resume", nil)
	if err != nil {
		return ResumeSessionResponse{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return ResumeSessionResponse{}, readBodyAsError(res)
	}
	var resp ResumeSessionResponse
	return resp, json.NewDecoder(res.Body).Decode(&resp)
}

// StopSession completes the active session and returns the ledger record,
// duration floored to whole seconds.
func (c *Client) StopSession(ctx context.Context) (StopSessionResponse, error) {
	res, err := c.Request(ctx, http.MethodPost, "/api/v1/sessions/stop", nil)
	if err != nil {
		return StopSessionResponse{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return StopSessionResponse{}, readBodyAsError(res)
	}
	var resp StopSessionResponse
	return resp, json.NewDecoder(res.Body).Decode(&resp)
}

// Heartbeat tells the server the client is still attached to its active
// session, deferring the abandoned-session reaper.
func (c *Client) Heartbeat(ctx context.Context) error {
	res, err := c.Request(ctx, http.MethodPut, "/api/v1/sessions/heartbeat", nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		return readBodyAsError(res)
	}
	return nil
}

// ActiveSession returns the current session snapshot. The session is nil
// when nothing is running.
func (c *Client) ActiveSession(ctx context.Context) (ActiveSessionResponse, error) {
	res, err := c.Request(ctx, http.MethodGet, "/api/v1/sessions/active", nil)
	if err != nil {
		return ActiveSessionResponse{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return ActiveSessionResponse{}, readBodyAsError(res)
	}
	var resp ActiveSessionResponse
	return resp, json.NewDecoder(res.Body).Decode(&resp)
}

func (c *Client) SessionStats(ctx context.Context) (SessionStats, error) {
	res, err := c.Request(ctx, http.MethodGet, "/api/v1/sessions/stats", nil)
	if err != nil {
		return SessionStats{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return SessionStats{}, readBodyAsError(res)
	}
	var resp SessionStats
	return resp, json.NewDecoder(res.Body).Decode(&resp)
}
