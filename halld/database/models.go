package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID             uuid.UUID `db:"id" json:"id"`
	Email          string    `db:"email" json:"email"`
	Username       string    `db:"username" json:"username"`
	HashedPassword []byte    `db:"hashed_password" json:"hashed_password"`
	AvatarURL      string    `db:"avatar_url" json:"avatar_url"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

type APIKey struct {
	ID           string    `db:"id" json:"id"`
	HashedSecret []byte    `db:"hashed_secret" json:"hashed_secret"`
	UserID       uuid.UUID `db:"user_id" json:"user_id"`
	LastUsed     time.Time `db:"last_used" json:"last_used"`
	ExpiresAt    time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type Room struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	HostID    uuid.UUID `db:"host_id" json:"host_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type RoomMember struct {
	RoomID   uuid.UUID `db:"room_id" json:"room_id"`
	UserID   uuid.UUID `db:"user_id" json:"user_id"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}

// ActiveSession is the single in-progress study timer for a user. The
// "user_id" column carries a unique constraint, so at most one row can exist
// per user no matter how many server instances race on it.
type ActiveSession struct {
	ID              uuid.UUID    `db:"id" json:"id"`
	UserID          uuid.UUID    `db:"user_id" json:"user_id"`
	Tag             string       `db:"tag" json:"tag"`
	StartedAt       time.Time    `db:"started_at" json:"started_at"`
	IsPaused        bool         `db:"is_paused" json:"is_paused"`
	PausedAt        sql.NullTime `db:"paused_at" json:"paused_at"`
	LastHeartbeatAt time.Time    `db:"last_heartbeat_at" json:"last_heartbeat_at"`
}

// StudySession is an immutable record of one finished study interval.
// Rows are only ever inserted; duration is whole seconds.
type StudySession struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Tag       string    `db:"tag" json:"tag"`
	Duration  int64     `db:"duration" json:"duration"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
