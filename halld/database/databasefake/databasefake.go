// Package databasefake is an in-memory implementation of database.Store,
// used for testing and single-binary development mode.
package databasefake

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/studyhall/studyhall/halld/database"
)

// New returns an in-memory fake of the database.
func New() database.Store {
	return &fakeQuerier{
		mutex: &sync.RWMutex{},
		data: &data{
			users:          make([]database.User, 0),
			apiKeys:        make([]database.APIKey, 0),
			rooms:          make([]database.Room, 0),
			roomMembers:    make([]database.RoomMember, 0),
			activeSessions: make([]database.ActiveSession, 0),
			studySessions:  make([]database.StudySession, 0),
		},
	}
}

type rwMutex interface {
	Lock()
	RLock()
	Unlock()
	RUnlock()
}

// inTxMutex is a no op, since inside a transaction we are already locked.
type inTxMutex struct{}

func (inTxMutex) Lock()    {}
func (inTxMutex) RLock()   {}
func (inTxMutex) Unlock()  {}
func (inTxMutex) RUnlock() {}

// fakeQuerier replicates database functionality to enable quick testing.
type fakeQuerier struct {
	mutex rwMutex
	*data
}

type data struct {
	users          []database.User
	apiKeys        []database.APIKey
	rooms          []database.Room
	roomMembers    []database.RoomMember
	activeSessions []database.ActiveSession
	studySessions  []database.StudySession
}

func uniqueConstraintError(constraint database.UniqueConstraint) error {
	return &pq.Error{
		Code:       "23505",
		Message:    "duplicate key value violates unique constraint",
		Constraint: string(constraint),
	}
}

func (q *fakeQuerier) Ping(_ context.Context) (time.Duration, error) {
	return 0, nil
}

// InTx doesn't rollback data properly for in-memory yet.
func (q *fakeQuerier) InTx(fn func(database.Store) error) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return fn(&fakeQuerier{mutex: inTxMutex{}, data: q.data})
}

func (q *fakeQuerier) GetUserByID(_ context.Context, id uuid.UUID) (database.User, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, user := range q.users {
		if user.ID == id {
			return user, nil
		}
	}
	return database.User{}, sql.ErrNoRows
}

func (q *fakeQuerier) GetUserByEmail(_ context.Context, email string) (database.User, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, user := range q.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return database.User{}, sql.ErrNoRows
}

func (q *fakeQuerier) GetUsersByIDs(_ context.Context, ids []uuid.UUID) ([]database.User, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	users := []database.User{}
	for _, user := range q.users {
		for _, id := range ids {
			if user.ID == id {
				users = append(users, user)
				break
			}
		}
	}
	return users, nil
}

func (q *fakeQuerier) GetUserCount(_ context.Context) (int64, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	return int64(len(q.users)), nil
}

func (q *fakeQuerier) InsertUser(_ context.Context, arg database.InsertUserParams) (database.User, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for _, user := range q.users {
		if strings.EqualFold(user.Email, arg.Email) {
			return database.User{}, uniqueConstraintError(database.UniqueUsersEmailKey)
		}
	}
	user := database.User{
		ID:             arg.ID,
		Email:          arg.Email,
		Username:       arg.Username,
		HashedPassword: arg.HashedPassword,
		AvatarURL:      arg.AvatarURL,
		CreatedAt:      arg.CreatedAt,
	}
	q.users = append(q.users, user)
	return user, nil
}

func (q *fakeQuerier) GetAPIKeyByID(_ context.Context, id string) (database.APIKey, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, key := range q.apiKeys {
		if key.ID == id {
			return key, nil
		}
	}
	return database.APIKey{}, sql.ErrNoRows
}

func (q *fakeQuerier) InsertAPIKey(_ context.Context, arg database.InsertAPIKeyParams) (database.APIKey, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	key := database.APIKey{
		ID:           arg.ID,
		HashedSecret: arg.HashedSecret,
		UserID:       arg.UserID,
		LastUsed:     arg.LastUsed,
		ExpiresAt:    arg.ExpiresAt,
		CreatedAt:    arg.CreatedAt,
	}
	q.apiKeys = append(q.apiKeys, key)
	return key, nil
}

func (q *fakeQuerier) UpdateAPIKeyLastUsed(_ context.Context, arg database.UpdateAPIKeyLastUsedParams) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for index, key := range q.apiKeys {
		if key.ID != arg.ID {
			continue
		}
		key.LastUsed = arg.LastUsed
		q.apiKeys[index] = key
		return nil
	}
	return sql.ErrNoRows
}

func (q *fakeQuerier) DeleteAPIKeyByID(_ context.Context, id string) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for index, key := range q.apiKeys {
		if key.ID == id {
			q.apiKeys = append(q.apiKeys[:index], q.apiKeys[index+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (q *fakeQuerier) GetRoomByID(_ context.Context, id uuid.UUID) (database.Room, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, room := range q.rooms {
		if room.ID == id {
			return room, nil
		}
	}
	return database.Room{}, sql.ErrNoRows
}

func (q *fakeQuerier) GetRoomByCode(_ context.Context, code string) (database.Room, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, room := range q.rooms {
		if room.Code == code {
			return room, nil
		}
	}
	return database.Room{}, sql.ErrNoRows
}

func (q *fakeQuerier) GetRoomsByUserID(_ context.Context, userID uuid.UUID) ([]database.Room, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	rooms := []database.Room{}
	for _, member := range q.roomMembers {
		if member.UserID != userID {
			continue
		}
		for _, room := range q.rooms {
			if room.ID == member.RoomID {
				rooms = append(rooms, room)
				break
			}
		}
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
	return rooms, nil
}

func (q *fakeQuerier) GetRoomMember(_ context.Context, arg database.GetRoomMemberParams) (database.RoomMember, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, member := range q.roomMembers {
		if member.RoomID == arg.RoomID && member.UserID == arg.UserID {
			return member, nil
		}
	}
	return database.RoomMember{}, sql.ErrNoRows
}

func (q *fakeQuerier) GetRoomMembersByRoomID(_ context.Context, roomID uuid.UUID) ([]database.RoomMember, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	members := []database.RoomMember{}
	for _, member := range q.roomMembers {
		if member.RoomID == roomID {
			members = append(members, member)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})
	return members, nil
}

func (q *fakeQuerier) InsertRoom(_ context.Context, arg database.InsertRoomParams) (database.Room, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for _, room := range q.rooms {
		if room.Code == arg.Code {
			return database.Room{}, uniqueConstraintError(database.UniqueRoomsCodeKey)
		}
	}
	room := database.Room{
		ID:        arg.ID,
		Code:      arg.Code,
		Name:      arg.Name,
		HostID:    arg.HostID,
		CreatedAt: arg.CreatedAt,
	}
	q.rooms = append(q.rooms, room)
	return room, nil
}

func (q *fakeQuerier) InsertRoomMember(_ context.Context, arg database.InsertRoomMemberParams) (database.RoomMember, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for _, member := range q.roomMembers {
		if member.RoomID == arg.RoomID && member.UserID == arg.UserID {
			return database.RoomMember{}, uniqueConstraintError(database.UniqueRoomMembersPkey)
		}
	}
	member := database.RoomMember{
		RoomID:   arg.RoomID,
		UserID:   arg.UserID,
		JoinedAt: arg.JoinedAt,
	}
	q.roomMembers = append(q.roomMembers, member)
	return member, nil
}

func (q *fakeQuerier) DeleteRoomMember(_ context.Context, arg database.DeleteRoomMemberParams) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for index, member := range q.roomMembers {
		if member.RoomID == arg.RoomID && member.UserID == arg.UserID {
			q.roomMembers = append(q.roomMembers[:index], q.roomMembers[index+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (q *fakeQuerier) GetActiveSessionByUserID(_ context.Context, userID uuid.UUID) (database.ActiveSession, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, session := range q.activeSessions {
		if session.UserID == userID {
			return session, nil
		}
	}
	return database.ActiveSession{}, sql.ErrNoRows
}

func (q *fakeQuerier) GetActiveSessionsByUserIDs(_ context.Context, userIDs []uuid.UUID) ([]database.ActiveSession, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	sessions := []database.ActiveSession{}
	for _, session := range q.activeSessions {
		for _, id := range userIDs {
			if session.UserID == id {
				sessions = append(sessions, session)
				break
			}
		}
	}
	return sessions, nil
}

func (q *fakeQuerier) GetStaleActiveSessions(_ context.Context, heartbeatBefore time.Time) ([]database.ActiveSession, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	sessions := []database.ActiveSession{}
	for _, session := range q.activeSessions {
		if session.LastHeartbeatAt.Before(heartbeatBefore) {
			sessions = append(sessions, session)
		}
	}
	return sessions, nil
}

func (q *fakeQuerier) UpsertActiveSession(_ context.Context, arg database.UpsertActiveSessionParams) (database.ActiveSession, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for index, session := range q.activeSessions {
		if session.UserID != arg.UserID {
			continue
		}
		session.Tag = arg.Tag
		session.StartedAt = arg.StartedAt
		session.IsPaused = false
		session.PausedAt = sql.NullTime{}
		session.LastHeartbeatAt = arg.LastHeartbeatAt
		q.activeSessions[index] = session
		return session, nil
	}
	session := database.ActiveSession{
		ID:              arg.ID,
		UserID:          arg.UserID,
		Tag:             arg.Tag,
		StartedAt:       arg.StartedAt,
		IsPaused:        false,
		PausedAt:        sql.NullTime{},
		LastHeartbeatAt: arg.LastHeartbeatAt,
	}
	q.activeSessions = append(q.activeSessions, session)
	return session, nil
}

func (q *fakeQuerier) UpdateActiveSessionPauseState(_ context.Context, arg database.UpdateActiveSessionPauseStateParams) (database.ActiveSession, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for index, session := range q.activeSessions {
		if session.ID != arg.ID {
			continue
		}
		session.StartedAt = arg.StartedAt
		session.IsPaused = arg.IsPaused
		session.PausedAt = arg.PausedAt
		session.LastHeartbeatAt = arg.LastHeartbeatAt
		q.activeSessions[index] = session
		return session, nil
	}
	return database.ActiveSession{}, sql.ErrNoRows
}

func (q *fakeQuerier) UpdateActiveSessionHeartbeat(_ context.Context, arg database.UpdateActiveSessionHeartbeatParams) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for index, session := range q.activeSessions {
		if session.UserID != arg.UserID {
			continue
		}
		session.LastHeartbeatAt = arg.LastHeartbeatAt
		q.activeSessions[index] = session
		return nil
	}
	return sql.ErrNoRows
}

func (q *fakeQuerier) DeleteActiveSession(_ context.Context, id uuid.UUID) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for index, session := range q.activeSessions {
		if session.ID == id {
			q.activeSessions = append(q.activeSessions[:index], q.activeSessions[index+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (q *fakeQuerier) InsertStudySession(_ context.Context, arg database.InsertStudySessionParams) (database.StudySession, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	session := database.StudySession{
		ID:        arg.ID,
		UserID:    arg.UserID,
		Tag:       arg.Tag,
		Duration:  arg.Duration,
		CreatedAt: arg.CreatedAt,
	}
	q.studySessions = append(q.studySessions, session)
	return session, nil
}

func (q *fakeQuerier) GetStudySessionStats(_ context.Context, arg database.GetStudySessionStatsParams) (database.StudySessionStatsRow, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	var row database.StudySessionStatsRow
	for _, session := range q.studySessions {
		if session.UserID != arg.UserID || session.CreatedAt.Before(arg.CreatedAfter) {
			continue
		}
		row.DurationSum += session.Duration
		row.SessionCount++
	}
	return row, nil
}

func (q *fakeQuerier) GetStudySessionSums(_ context.Context, arg database.GetStudySessionSumsParams) ([]database.StudySessionSumRow, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	sums := map[uuid.UUID]int64{}
	for _, session := range q.studySessions {
		if session.CreatedAt.Before(arg.CreatedAfter) {
			continue
		}
		for _, id := range arg.UserIDs {
			if session.UserID == id {
				sums[id] += session.Duration
				break
			}
		}
	}
	rows := []database.StudySessionSumRow{}
	for id, sum := range sums {
		rows = append(rows, database.StudySessionSumRow{UserID: id, DurationSum: sum})
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].UserID.String() < rows[j].UserID.String()
	})
	return rows, nil
}

func (q *fakeQuerier) GetStudySessionTagStats(_ context.Context, arg database.GetStudySessionTagStatsParams) ([]database.StudySessionTagStatsRow, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	byTag := map[string]*database.StudySessionTagStatsRow{}
	for _, session := range q.studySessions {
		if session.UserID != arg.UserID || session.CreatedAt.Before(arg.CreatedAfter) {
			continue
		}
		row, ok := byTag[session.Tag]
		if !ok {
			row = &database.StudySessionTagStatsRow{Tag: session.Tag}
			byTag[session.Tag] = row
		}
		row.DurationSum += session.Duration
		row.SessionCount++
	}
	rows := []database.StudySessionTagStatsRow{}
	for _, row := range byTag {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].DurationSum > rows[j].DurationSum
	})
	return rows, nil
}

func (q *fakeQuerier) GetStudySessionsCreatedAfter(_ context.Context, arg database.GetStudySessionsCreatedAfterParams) ([]database.StudySession, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	sessions := []database.StudySession{}
	for _, session := range q.studySessions {
		if session.UserID != arg.UserID || session.CreatedAt.Before(arg.CreatedAfter) {
			continue
		}
		sessions = append(sessions, session)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions, nil
}
