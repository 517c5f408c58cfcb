package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// querier contains all database queries. Implemented by sqlQuerier against
// Postgres and by databasefake for tests and single-binary development.
type querier interface {
	// Users
	GetUserByID(ctx context.Context, id uuid.UUID) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUsersByIDs(ctx context.Context, ids []uuid.UUID) ([]User, error)
	GetUserCount(ctx context.Context) (int64, error)
	InsertUser(ctx context.Context, arg InsertUserParams) (User, error)

	// API keys
	GetAPIKeyByID(ctx context.Context, id string) (APIKey, error)
	InsertAPIKey(ctx context.Context, arg InsertAPIKeyParams) (APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, arg UpdateAPIKeyLastUsedParams) error
	DeleteAPIKeyByID(ctx context.Context, id string) error

	// Rooms
	GetRoomByID(ctx context.Context, id uuid.UUID) (Room, error)
	GetRoomByCode(ctx context.Context, code string) (Room, error)
	GetRoomsByUserID(ctx context.Context, userID uuid.UUID) ([]Room, error)
	GetRoomMember(ctx context.Context, arg GetRoomMemberParams) (RoomMember, error)
	GetRoomMembersByRoomID(ctx context.Context, roomID uuid.UUID) ([]RoomMember, error)
	InsertRoom(ctx context.Context, arg InsertRoomParams) (Room, error)
	InsertRoomMember(ctx context.Context, arg InsertRoomMemberParams) (RoomMember, error)
	DeleteRoomMember(ctx context.Context, arg DeleteRoomMemberParams) error

	// Active sessions
	GetActiveSessionByUserID(ctx context.Context, userID uuid.UUID) (ActiveSession, error)
	GetActiveSessionsByUserIDs(ctx context.Context, userIDs []uuid.UUID) ([]ActiveSession, error)
	GetStaleActiveSessions(ctx context.Context, heartbeatBefore time.Time) ([]ActiveSession, error)
	UpsertActiveSession(ctx context.Context, arg UpsertActiveSessionParams) (ActiveSession, error)
	UpdateActiveSessionPauseState(ctx context.Context, arg UpdateActiveSessionPauseStateParams) (ActiveSession, error)
	UpdateActiveSessionHeartbeat(ctx context.Context, arg UpdateActiveSessionHeartbeatParams) error
	DeleteActiveSession(ctx context.Context, id uuid.UUID) error

	// Completed study sessions
	InsertStudySession(ctx context.Context, arg InsertStudySessionParams) (StudySession, error)
	GetStudySessionStats(ctx context.Context, arg GetStudySessionStatsParams) (StudySessionStatsRow, error)
	GetStudySessionSums(ctx context.Context, arg GetStudySessionSumsParams) ([]StudySessionSumRow, error)
	GetStudySessionTagStats(ctx context.Context, arg GetStudySessionTagStatsParams) ([]StudySessionTagStatsRow, error)
	GetStudySessionsCreatedAfter(ctx context.Context, arg GetStudySessionsCreatedAfterParams) ([]StudySession, error)
}

type InsertUserParams struct {
	ID             uuid.UUID `db:"id"`
	Email          string    `db:"email"`
	Username       string    `db:"username"`
	HashedPassword []byte    `db:"hashed_password"`
	AvatarURL      string    `db:"avatar_url"`
	CreatedAt      time.Time `db:"created_at"`
}

type InsertAPIKeyParams struct {
	ID           string    `db:"id"`
	HashedSecret []byte    `db:"hashed_secret"`
	UserID       uuid.UUID `db:"user_id"`
	LastUsed     time.Time `db:"last_used"`
	ExpiresAt    time.Time `db:"expires_at"`
	CreatedAt    time.Time `db:"created_at"`
}

type UpdateAPIKeyLastUsedParams struct {
	ID       string    `db:"id"`
	LastUsed time.Time `db:"last_used"`
}

type InsertRoomParams struct {
	ID        uuid.UUID `db:"id"`
	Code      string    `db:"code"`
	Name      string    `db:"name"`
	HostID    uuid.UUID `db:"host_id"`
	CreatedAt time.Time `db:"created_at"`
}

type InsertRoomMemberParams struct {
	RoomID   uuid.UUID `db:"room_id"`
	UserID   uuid.UUID `db:"user_id"`
	JoinedAt time.Time `db:"joined_at"`
}

type GetRoomMemberParams struct {
	RoomID uuid.UUID `db:"room_id"`
	UserID uuid.UUID `db:"user_id"`
}

type DeleteRoomMemberParams struct {
	RoomID uuid.UUID `db:"room_id"`
	UserID uuid.UUID `db:"user_id"`
}

type UpsertActiveSessionParams struct {
	ID              uuid.UUID `db:"id"`
	UserID          uuid.UUID `db:"user_id"`
	Tag             string    `db:"tag"`
	StartedAt       time.Time `db:"started_at"`
	LastHeartbeatAt time.Time `db:"last_heartbeat_at"`
}

type UpdateActiveSessionPauseStateParams struct {
	ID              uuid.UUID    `db:"id"`
	StartedAt       time.Time    `db:"started_at"`
	IsPaused        bool         `db:"is_paused"`
	PausedAt        sql.NullTime `db:"paused_at"`
	LastHeartbeatAt time.Time    `db:"last_heartbeat_at"`
}

type UpdateActiveSessionHeartbeatParams struct {
	UserID          uuid.UUID `db:"user_id"`
	LastHeartbeatAt time.Time `db:"last_heartbeat_at"`
}

type InsertStudySessionParams struct {
	ID        uuid.UUID `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	Tag       string    `db:"tag"`
	Duration  int64     `db:"duration"`
	CreatedAt time.Time `db:"created_at"`
}

type GetStudySessionStatsParams struct {
	UserID       uuid.UUID `db:"user_id"`
	CreatedAfter time.Time `db:"created_after"`
}

type StudySessionStatsRow struct {
	DurationSum  int64 `db:"duration_sum"`
	SessionCount int64 `db:"session_count"`
}

type GetStudySessionSumsParams struct {
	UserIDs      []uuid.UUID `db:"user_ids"`
	CreatedAfter time.Time   `db:"created_after"`
}

type StudySessionSumRow struct {
	UserID      uuid.UUID `db:"user_id"`
	DurationSum int64     `db:"duration_sum"`
}

type GetStudySessionTagStatsParams struct {
	UserID       uuid.UUID `db:"user_id"`
	CreatedAfter time.Time `db:"created_after"`
}

type StudySessionTagStatsRow struct {
	Tag          string `db:"tag"`
	DurationSum  int64  `db:"duration_sum"`
	SessionCount int64  `db:"session_count"`
}

type GetStudySessionsCreatedAfterParams struct {
	UserID       uuid.UUID `db:"user_id"`
	CreatedAfter time.Time `db:"created_after"`
}
