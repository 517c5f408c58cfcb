package httpmw

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/studyhall/studyhall/halld/database"
	"github.com/studyhall/studyhall/halld/httpapi"
)

type roomParamContextKey struct{}

// RoomParam returns the room from the ExtractRoomParam handler.
func RoomParam(r *http.Request) database.Room {
	room, ok := r.Context().Value(roomParamContextKey{}).(database.Room)
	if !ok {
		panic("developer error: room param middleware not provided")
	}
	return room
}

// ExtractRoomParam grabs a room from the "roomcode" URL parameter. It
// requires the authed user to be a member; non-members get a 404 so room
// codes cannot be probed.
func ExtractRoomParam(db database.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			code := strings.ToUpper(chi.URLParam(r, "roomcode"))
			if code == "" {
				httpapi.Write(rw, http.StatusBadRequest, httpapi.Response{
					Message: "room code must be provided",
				})
				return
			}
			room, err := db.GetRoomByCode(r.Context(), code)
			if errors.Is(err, sql.ErrNoRows) {
				httpapi.Write(rw, http.StatusNotFound, httpapi.Response{
					Message: fmt.Sprintf("room %q does not exist", code),
				})
				return
			}
			if err != nil {
				httpapi.Write(rw, http.StatusInternalServerError, httpapi.Response{
					Message: fmt.Sprintf("get room: %s", err.Error()),
				})
				return
			}
			user := AuthedUser(r)
			_, err = db.GetRoomMember(r.Context(), database.GetRoomMemberParams{
				RoomID: room.ID,
				UserID: user.ID,
			})
			if errors.Is(err, sql.ErrNoRows) {
				httpapi.Write(rw, http.StatusNotFound, httpapi.Response{
					Message: fmt.Sprintf("room %q does not exist", code),
				})
				return
			}
			if err != nil {
				httpapi.Write(rw, http.StatusInternalServerError, httpapi.Response{
					Message: fmt.Sprintf("get room member: %s", err.Error()),
				})
				return
			}

			ctx := context.WithValue(r.Context(), roomParamContextKey{}, room)
			next.ServeHTTP(rw, r.WithContext(ctx))
		})
	}
}
