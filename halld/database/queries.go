package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

func (q *sqlQuerier) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	var user User
	err := q.db.GetContext(ctx, &user, `
		SELECT id, email, username, hashed_password, avatar_url, created_at
		FROM users WHERE id = $1
	`, id)
	return user, err
}

func (q *sqlQuerier) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := q.db.GetContext(ctx, &user, `
		SELECT id, email, username, hashed_password, avatar_url, created_at
		FROM users WHERE LOWER(email) = LOWER($1)
	`, email)
	return user, err
}

func (q *sqlQuerier) GetUsersByIDs(ctx context.Context, ids []uuid.UUID) ([]User, error) {
	users := []User{}
	err := q.db.SelectContext(ctx, &users, `
		SELECT id, email, username, hashed_password, avatar_url, created_at
		FROM users WHERE id = ANY($1)
	`, pq.Array(ids))
	return users, err
}

func (q *sqlQuerier) GetUserCount(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM users`)
	return count, err
}

func (q *sqlQuerier) InsertUser(ctx context.Context, arg InsertUserParams) (User, error) {
	var user User
	err := q.db.GetContext(ctx, &user, `
		INSERT INTO users (id, email, username, hashed_password, avatar_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, email, username, hashed_password, avatar_url, created_at
	`, arg.ID, arg.Email, arg.Username, arg.HashedPassword, arg.AvatarURL, arg.CreatedAt)
	return user, err
}

func (q *sqlQuerier) GetAPIKeyByID(ctx context.Context, id string) (APIKey, error) {
	var key APIKey
	err := q.db.GetContext(ctx, &key, `
		SELECT id, hashed_secret, user_id, last_used, expires_at, created_at
		FROM api_keys WHERE id = $1
	`, id)
	return key, err
}

func (q *sqlQuerier) InsertAPIKey(ctx context.Context, arg InsertAPIKeyParams) (APIKey, error) {
	var key APIKey
	err := q.db.GetContext(ctx, &key, `
		INSERT INTO api_keys (id, hashed_secret, user_id, last_used, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, hashed_secret, user_id, last_used, expires_at, created_at
	`, arg.ID, arg.HashedSecret, arg.UserID, arg.LastUsed, arg.ExpiresAt, arg.CreatedAt)
	return key, err
}

func (q *sqlQuerier) UpdateAPIKeyLastUsed(ctx context.Context, arg UpdateAPIKeyLastUsedParams) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE api_keys SET last_used = $2 WHERE id = $1
	`, arg.ID, arg.LastUsed)
	return err
}

func (q *sqlQuerier) DeleteAPIKeyByID(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	return err
}

func (q *sqlQuerier) GetRoomByID(ctx context.Context, id uuid.UUID) (Room, error) {
	var room Room
	err := q.db.GetContext(ctx, &room, `
		SELECT id, code, name, host_id, created_at FROM rooms WHERE id = $1
	`, id)
	return room, err
}

func (q *sqlQuerier) GetRoomByCode(ctx context.Context, code string) (Room, error) {
	var room Room
	err := q.db.GetContext(ctx, &room, `
		SELECT id, code, name, host_id, created_at FROM rooms WHERE code = $1
	`, code)
	return room, err
}

func (q *sqlQuerier) GetRoomsByUserID(ctx context.Context, userID uuid.UUID) ([]Room, error) {
	rooms := []Room{}
	err := q.db.SelectContext(ctx, &rooms, `
		SELECT rooms.id, rooms.code, rooms.name, rooms.host_id, rooms.created_at
		FROM rooms
		JOIN room_members ON room_members.room_id = rooms.id
		WHERE room_members.user_id = $1
		ORDER BY rooms.created_at
	`, userID)
	return rooms, err
}

func (q *sqlQuerier) GetRoomMember(ctx context.Context, arg GetRoomMemberParams) (RoomMember, error) {
	var member RoomMember
	err := q.db.GetContext(ctx, &member, `
		SELECT room_id, user_id, joined_at FROM room_members
		WHERE room_id = $1 AND user_id = $2
	`, arg.RoomID, arg.UserID)
	return member, err
}

func (q *sqlQuerier) GetRoomMembersByRoomID(ctx context.Context, roomID uuid.UUID) ([]RoomMember, error) {
	members := []RoomMember{}
	err := q.db.SelectContext(ctx, &members, `
		SELECT room_id, user_id, joined_at FROM room_members
		WHERE room_id = $1 ORDER BY joined_at
	`, roomID)
	return members, err
}

func (q *sqlQuerier) InsertRoom(ctx context.Context, arg InsertRoomParams) (Room, error) {
	var room Room
	err := q.db.GetContext(ctx, &room, `
		INSERT INTO rooms (id, code, name, host_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, code, name, host_id, created_at
	`, arg.ID, arg.Code, arg.Name, arg.HostID, arg.CreatedAt)
	return room, err
}

func (q *sqlQuerier) InsertRoomMember(ctx context.Context, arg InsertRoomMemberParams) (RoomMember, error) {
	var member RoomMember
	err := q.db.GetContext(ctx, &member, `
		INSERT INTO room_members (room_id, user_id, joined_at)
		VALUES ($1, $2, $3)
		RETURNING room_id, user_id, joined_at
	`, arg.RoomID, arg.UserID, arg.JoinedAt)
	return member, err
}

func (q *sqlQuerier) DeleteRoomMember(ctx context.Context, arg DeleteRoomMemberParams) error {
	_, err := q.db.ExecContext(ctx, `
		DELETE FROM room_members WHERE room_id = $1 AND user_id = $2
	`, arg.RoomID, arg.UserID)
	return err
}

func (q *sqlQuerier) GetActiveSessionByUserID(ctx context.Context, userID uuid.UUID) (ActiveSession, error) {
	var session ActiveSession
	err := q.db.GetContext(ctx, &session, `
		SELECT id, user_id, tag, started_at, is_paused, paused_at, last_heartbeat_at
		FROM active_sessions WHERE user_id = $1
	`, userID)
	return session, err
}

func (q *sqlQuerier) GetActiveSessionsByUserIDs(ctx context.Context, userIDs []uuid.UUID) ([]ActiveSession, error) {
	sessions := []ActiveSession{}
	err := q.db.SelectContext(ctx, &sessions, `
		SELECT id, user_id, tag, started_at, is_paused, paused_at, last_heartbeat_at
		FROM active_sessions WHERE user_id = ANY($1)
	`, pq.Array(userIDs))
	return sessions, err
}

func (q *sqlQuerier) GetStaleActiveSessions(ctx context.Context, heartbeatBefore time.Time) ([]ActiveSession, error) {
	sessions := []ActiveSession{}
	err := q.db.SelectContext(ctx, &sessions, `
		SELECT id, user_id, tag, started_at, is_paused, paused_at, last_heartbeat_at
		FROM active_sessions WHERE last_heartbeat_at < $1
	`, heartbeatBefore)
	return sessions, err
}

// UpsertActiveSession creates the active session for a user, or overwrites it
// entirely when one already exists. Overwriting discards the prior interval;
// "start" is an authoritative reset.
func (q *sqlQuerier) UpsertActiveSession(ctx context.Context, arg UpsertActiveSessionParams) (ActiveSession, error) {
	var session ActiveSession
	err := q.db.GetContext(ctx, &session, `
		INSERT INTO active_sessions (id, user_id, tag, started_at, is_paused, paused_at, last_heartbeat_at)
		VALUES ($1, $2, $3, $4, false, NULL, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			tag = EXCLUDED.tag,
			started_at = EXCLUDED.started_at,
			is_paused = false,
			paused_at = NULL,
			last_heartbeat_at = EXCLUDED.last_heartbeat_at
		RETURNING id, user_id, tag, started_at, is_paused, paused_at, last_heartbeat_at
	`, arg.ID, arg.UserID, arg.Tag, arg.StartedAt, arg.LastHeartbeatAt)
	return session, err
}

func (q *sqlQuerier) UpdateActiveSessionPauseState(ctx context.Context, arg UpdateActiveSessionPauseStateParams) (ActiveSession, error) {
	var session ActiveSession
	err := q.db.GetContext(ctx, &session, `
		UPDATE active_sessions SET
			started_at = $2,
			is_paused = $3,
			paused_at = $4,
			last_heartbeat_at = $5
		WHERE id = $1
		RETURNING id, user_id, tag, started_at, is_paused, paused_at, last_heartbeat_at
	`, arg.ID, arg.StartedAt, arg.IsPaused, arg.PausedAt, arg.LastHeartbeatAt)
	return session, err
}

func (q *sqlQuerier) UpdateActiveSessionHeartbeat(ctx context.Context, arg UpdateActiveSessionHeartbeatParams) error {
	result, err := q.db.ExecContext(ctx, `
		UPDATE active_sessions SET last_heartbeat_at = $2 WHERE user_id = $1
	`, arg.UserID, arg.LastHeartbeatAt)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (q *sqlQuerier) DeleteActiveSession(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM active_sessions WHERE id = $1`, id)
	return err
}

func (q *sqlQuerier) InsertStudySession(ctx context.Context, arg InsertStudySessionParams) (StudySession, error) {
	var session StudySession
	err := q.db.GetContext(ctx, &session, `
		INSERT INTO study_sessions (id, user_id, tag, duration, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, user_id, tag, duration, created_at
	`, arg.ID, arg.UserID, arg.Tag, arg.Duration, arg.CreatedAt)
	return session, err
}

func (q *sqlQuerier) GetStudySessionStats(ctx context.Context, arg GetStudySessionStatsParams) (StudySessionStatsRow, error) {
	var row StudySessionStatsRow
	err := q.db.GetContext(ctx, &row, `
		SELECT COALESCE(SUM(duration), 0) AS duration_sum, COUNT(*) AS session_count
		FROM study_sessions
		WHERE user_id = $1 AND created_at >= $2
	`, arg.UserID, arg.CreatedAfter)
	return row, err
}

func (q *sqlQuerier) GetStudySessionSums(ctx context.Context, arg GetStudySessionSumsParams) ([]StudySessionSumRow, error) {
	rows := []StudySessionSumRow{}
	err := q.db.SelectContext(ctx, &rows, `
		SELECT user_id, COALESCE(SUM(duration), 0) AS duration_sum
		FROM study_sessions
		WHERE user_id = ANY($1) AND created_at >= $2
		GROUP BY user_id
	`, pq.Array(arg.UserIDs), arg.CreatedAfter)
	return rows, err
}

func (q *sqlQuerier) GetStudySessionTagStats(ctx context.Context, arg GetStudySessionTagStatsParams) ([]StudySessionTagStatsRow, error) {
	rows := []StudySessionTagStatsRow{}
	err := q.db.SelectContext(ctx, &rows, `
		SELECT tag, COALESCE(SUM(duration), 0) AS duration_sum, COUNT(*) AS session_count
		FROM study_sessions
		WHERE user_id = $1 AND created_at >= $2
		GROUP BY tag
		ORDER BY duration_sum DESC
	`, arg.UserID, arg.CreatedAfter)
	return rows, err
}

func (q *sqlQuerier) GetStudySessionsCreatedAfter(ctx context.Context, arg GetStudySessionsCreatedAfterParams) ([]StudySession, error) {
	sessions := []StudySession{}
	err := q.db.SelectContext(ctx, &sessions, `
		SELECT id, user_id, tag, duration, created_at
		FROM study_sessions
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at
	`, arg.UserID, arg.CreatedAfter)
	return sessions, err
}
