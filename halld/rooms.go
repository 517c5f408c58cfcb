package halld

import (
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"cdr.dev/slog"
	"github.com/studyhall/studyhall/halld/cache"
	"github.com/studyhall/studyhall/halld/database"
	"github.com/studyhall/studyhall/halld/httpapi"
	"github.com/studyhall/studyhall/halld/httpmw"
	"github.com/studyhall/studyhall/hallsdk"
)

const (
	roomCodeLength  = 6
	roomCodeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// postRoom creates a room with a generated code and joins the creator as
// host. The code generation retries on the rare collision with an existing
// room.
func (api *API) postRoom(rw http.ResponseWriter, r *http.Request) {
	var createRoom hallsdk.CreateRoomRequest
	if !httpapi.Read(rw, r, &createRoom) {
		return
	}
	user := httpmw.AuthedUser(r)

	var room database.Room
	var err error
	for attempt := 0; attempt < 5; attempt++ {
		var code string
		code, err = generateRoomCode()
		if err != nil {
			break
		}
		err = api.Database.InTx(func(db database.Store) error {
			now := database.Now()
			var err error
			room, err = db.InsertRoom(r.Context(), database.InsertRoomParams{
				ID:        uuid.New(),
				Code:      code,
				Name:      strings.TrimSpace(createRoom.Name),
				HostID:    user.ID,
				CreatedAt: now,
			})
			if err != nil {
				return xerrors.Errorf("insert room: %w", err)
			}
			_, err = db.InsertRoomMember(r.Context(), database.InsertRoomMemberParams{
				RoomID:   room.ID,
				UserID:   user.ID,
				JoinedAt: now,
			})
			if err != nil {
				return xerrors.Errorf("insert host membership: %w", err)
			}
			return nil
		})
		if !database.IsUniqueViolation(err, database.UniqueRoomsCodeKey) {
			break
		}
	}
	if err != nil {
		httpapi.Write(rw, http.StatusInternalServerError, httpapi.Response{
			Message: fmt.Sprintf("create room: %s", err.Error()),
		})
		return
	}

	api.invalidateUserRooms(r, user.ID)
	httpapi.Write(rw, http.StatusCreated, convertRoom(room))
}

// postRoomJoin adds the caller to the room with the submitted code. Joining
// a room you are already in returns the room unchanged.
func (api *API) postRoomJoin(rw http.ResponseWriter, r *http.Request) {
	var joinRoom hallsdk.JoinRoomRequest
	if !httpapi.Read(rw, r, &joinRoom) {
		return
	}
	user := httpmw.AuthedUser(r)

	room, err := api.Database.GetRoomByCode(r.Context(), strings.ToUpper(joinRoom.Code))
	if errors.Is(err, sql.ErrNoRows) {
		httpapi.Write(rw, http.StatusNotFound, httpapi.Response{
			Message: fmt.Sprintf("no room with code %q", joinRoom.Code),
		})
		return
	}
	if err != nil {
		httpapi.Write(rw, http.StatusInternalServerError, httpapi.Response{
			Message: fmt.Sprintf("get room: %s", err.Error()),
		})
		return
	}

	_, err = api.Database.InsertRoomMember(r.Context(), database.InsertRoomMemberParams{
		RoomID:   room.ID,
		UserID:   user.ID,
		JoinedAt: database.Now(),
	})
	if err != nil && !database.IsUniqueViolation(err, database.UniqueRoomMembersPkey) {
		httpapi.Write(rw, http.StatusInternalServerError, httpapi.Response{
			Message: fmt.Sprintf("join room: %s", err.Error()),
		})
		return
	}

	api.invalidateUserRooms(r, user.ID)
	httpapi.Write(rw, http.StatusOK, convertRoom(room))
}

// rooms lists the caller's rooms, served through the cache. Create and join
// drop the cached list, so a hit is never staler than the last membership
// change.
func (api *API) rooms(rw http.ResponseWriter, r *http.Request) {
	user := httpmw.AuthedUser(r)
	key := cache.UserRoomsKey(user.ID)

	var converted []hallsdk.Room
	hit, err := api.Cache.Get(r.Context(), key, &converted)
	if err != nil {
		api.Logger.Warn(r.Context(), "read room list cache", slog.Error(err))
	} else if hit {
		httpapi.Write(rw, http.StatusOK, converted)
		return
	}

	rooms, err := api.Database.GetRoomsByUserID(r.Context(), user.ID)
	if err != nil {
		httpapi.Write(rw, http.StatusInternalServerError, httpapi.Response{
			Message: fmt.Sprintf("get rooms: %s", err.Error()),
		})
		return
	}
	converted = make([]hallsdk.Room, 0, len(rooms))
	for _, room := range rooms {
		converted = append(converted, convertRoom(room))
	}
	err = api.Cache.Set(r.Context(), key, converted, cache.UserRoomsTTL)
	if err != nil {
		api.Logger.Warn(r.Context(), "write room list cache", slog.Error(err))
	}
	httpapi.Write(rw, http.StatusOK, converted)
}

// room returns the room with its member list.
func (api *API) room(rw http.ResponseWriter, r *http.Request) {
	room := httpmw.RoomParam(r)
	members, err := api.Database.GetRoomMembersByRoomID(r.Context(), room.ID)
	if err != nil {
		httpapi.Write(rw, http.StatusInternalServerError, httpapi.Response{
			Message: fmt.Sprintf("get room members: %s", err.Error()),
		})
		return
	}
	userIDs := make([]uuid.UUID, 0, len(members))
	for _, member := range members {
		userIDs = append(userIDs, member.UserID)
	}
	users, err := api.Database.GetUsersByIDs(r.Context(), userIDs)
	if err != nil {
		httpapi.Write(rw, http.StatusInternalServerError, httpapi.Response{
			Message: fmt.Sprintf("get member users: %s", err.Error()),
		})
		return
	}
	usersByID := make(map[uuid.UUID]database.User, len(users))
	for _, user := range users {
		usersByID[user.ID] = user
	}

	details := hallsdk.RoomDetails{
		Room:    convertRoom(room),
		Members: make([]hallsdk.RoomMember, 0, len(members)),
	}
	for _, member := range members {
		details.Members = append(details.Members, hallsdk.RoomMember{
			User:     convertUser(usersByID[member.UserID]),
			JoinedAt: member.JoinedAt,
		})
	}
	httpapi.Write(rw, http.StatusOK, details)
}

// postRoomLeave removes the caller from the room. The room itself survives,
// even with no members left, so its code keeps working.
func (api *API) postRoomLeave(rw http.ResponseWriter, r *http.Request) {
	room := httpmw.RoomParam(r)
	user := httpmw.AuthedUser(r)
	err := api.Database.DeleteRoomMember(r.Context(), database.DeleteRoomMemberParams{
		RoomID: room.ID,
		UserID: user.ID,
	})
	if err != nil {
		httpapi.Write(rw, http.StatusInternalServerError, httpapi.Response{
			Message: fmt.Sprintf("leave room: %s", err.Error()),
		})
		return
	}

	api.invalidateUserRooms(r, user.ID)
	err = api.Cache.Delete(r.Context(), cache.RoomActiveKey(room.Code))
	if err != nil {
		api.Logger.Warn(r.Context(), "invalidate room snapshot cache", slog.Error(err))
	}
	httpapi.Write(rw, http.StatusOK, httpapi.Response{
		Message: fmt.Sprintf("left room %q", room.Code),
	})
}

// roomActive lists the in-progress sessions of everyone in the room.
func (api *API) roomActive(rw http.ResponseWriter, r *http.Request) {
	room := httpmw.RoomParam(r)
	sessions, err := api.Tracker.RoomActive(r.Context(), room)
	if err != nil {
		httpapi.Write(rw, http.StatusInternalServerError, httpapi.Response{
			Message: fmt.Sprintf("get room sessions: %s", err.Error()),
		})
		return
	}
	converted := make([]hallsdk.RoomSession, 0, len(sessions))
	for _, session := range sessions {
		converted = append(converted, hallsdk.RoomSession{
			Session:        convertActiveSession(session.Session),
			User:           convertUser(session.User),
			CompletedToday: session.CompletedToday,
		})
	}
	httpapi.Write(rw, http.StatusOK, converted)
}

// invalidateUserRooms drops the cached room list after a membership change.
func (api *API) invalidateUserRooms(r *http.Request, userID uuid.UUID) {
	err := api.Cache.Delete(r.Context(), cache.UserRoomsKey(userID))
	if err != nil {
		api.Logger.Warn(r.Context(), "invalidate room list cache", slog.Error(err))
	}
}

func generateRoomCode() (string, error) {
	code := make([]byte, roomCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(roomCodeCharset))))
		if err != nil {
			return "", xerrors.Errorf("generate room code: %w", err)
		}
		code[i] = roomCodeCharset[n.Int64()]
	}
	return string(code), nil
}

func convertRoom(room database.Room) hallsdk.Room {
	return hallsdk.Room{
		ID:        room.ID,
		Code:      room.Code,
		Name:      room.Name,
		HostID:    room.HostID,
		CreatedAt: room.CreatedAt,
	}
}
