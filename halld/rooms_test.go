package halld_test

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/studyhall/studyhall/halld/halldtest"
	"github.com/studyhall/studyhall/hallsdk"
)

func TestCreateRoom(t *testing.T) {
	t.Parallel()
	client := halldtest.New(t, nil)
	halldtest.CreateFirstUser(t, client)

	room, err := client.CreateRoom(context.Background(), hallsdk.CreateRoomRequest{Name: "night owls"})
	require.NoError(t, err)
	require.Equal(t, "night owls", room.Name)
	require.Regexp(t, regexp.MustCompile("^[A-Z0-9]{6}$"), room.Code)

	// The creator is a member immediately.
	rooms, err := client.Rooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	require.Equal(t, room.ID, rooms[0].ID)
}

func TestJoinRoom(t *testing.T) {
	t.Parallel()
	t.Run("Works", func(t *testing.T) {
		t.Parallel()
		client, api := halldtest.NewWithAPI(t, nil)
		halldtest.CreateFirstUser(t, client)
		room, err := client.CreateRoom(context.Background(), hallsdk.CreateRoomRequest{Name: "study buddies"})
		require.NoError(t, err)

		bob := halldtest.CreateAnotherUser(t, client, api, "bob")
		joined, err := bob.JoinRoom(context.Background(), hallsdk.JoinRoomRequest{Code: room.Code})
		require.NoError(t, err)
		require.Equal(t, room.ID, joined.ID)

		rooms, err := bob.Rooms(context.Background())
		require.NoError(t, err)
		require.Len(t, rooms, 1)
	})

	t.Run("Twice", func(t *testing.T) {
		t.Parallel()
		client, api := halldtest.NewWithAPI(t, nil)
		halldtest.CreateFirstUser(t, client)
		room, err := client.CreateRoom(context.Background(), hallsdk.CreateRoomRequest{Name: "study buddies"})
		require.NoError(t, err)

		bob := halldtest.CreateAnotherUser(t, client, api, "bob")
		_, err = bob.JoinRoom(context.Background(), hallsdk.JoinRoomRequest{Code: room.Code})
		require.NoError(t, err)
		joined, err := bob.JoinRoom(context.Background(), hallsdk.JoinRoomRequest{Code: room.Code})
		require.NoError(t, err)
		require.Equal(t, room.ID, joined.ID)
	})

	t.Run("LowercaseCode", func(t *testing.T) {
		t.Parallel()
		client, api := halldtest.NewWithAPI(t, nil)
		halldtest.CreateFirstUser(t, client)
		room, err := client.CreateRoom(context.Background(), hallsdk.CreateRoomRequest{Name: "study buddies"})
		require.NoError(t, err)

		// Codes get typed by hand; case must not matter.
		bob := halldtest.CreateAnotherUser(t, client, api, "bob")
		joined, err := bob.JoinRoom(context.Background(), hallsdk.JoinRoomRequest{Code: strings.ToLower(room.Code)})
		require.NoError(t, err)
		require.Equal(t, room.ID, joined.ID)
	})

	t.Run("UnknownCode", func(t *testing.T) {
		t.Parallel()
		client := halldtest.New(t, nil)
		halldtest.CreateFirstUser(t, client)

		_, err := client.JoinRoom(context.Background(), hallsdk.JoinRoomRequest{Code: "ZZZZZZ"})
		var apiErr *hallsdk.Error
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusNotFound, apiErr.StatusCode())
	})

	t.Run("MalformedCode", func(t *testing.T) {
		t.Parallel()
		client := halldtest.New(t, nil)
		halldtest.CreateFirstUser(t, client)

		_, err := client.JoinRoom(context.Background(), hallsdk.JoinRoomRequest{Code: "nope"})
		var apiErr *hallsdk.Error
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusBadRequest, apiErr.StatusCode())
	})
}

func TestRoom(t *testing.T) {
	t.Parallel()
	t.Run("Members", func(t *testing.T) {
		t.Parallel()
		client, api := halldtest.NewWithAPI(t, nil)
		halldtest.CreateFirstUser(t, client)
		room, err := client.CreateRoom(context.Background(), hallsdk.CreateRoomRequest{Name: "study buddies"})
		require.NoError(t, err)

		bob := halldtest.CreateAnotherUser(t, client, api, "bob")
		_, err = bob.JoinRoom(context.Background(), hallsdk.JoinRoomRequest{Code: room.Code})
		require.NoError(t, err)

		details, err := client.Room(context.Background(), room.Code)
		require.NoError(t, err)
		require.Equal(t, room.ID, details.Room.ID)
		require.Len(t, details.Members, 2)
	})

	t.Run("NonMember", func(t *testing.T) {
		t.Parallel()
		client, api := halldtest.NewWithAPI(t, nil)
		halldtest.CreateFirstUser(t, client)
		room, err := client.CreateRoom(context.Background(), hallsdk.CreateRoomRequest{Name: "study buddies"})
		require.NoError(t, err)

		// Not joining; the code alone should not grant access, and the
		// response must not reveal the room exists.
		mallory := halldtest.CreateAnotherUser(t, client, api, "mallory")
		_, err = mallory.Room(context.Background(), room.Code)
		var apiErr *hallsdk.Error
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusNotFound, apiErr.StatusCode())
	})
}

func TestLeaveRoom(t *testing.T) {
	t.Parallel()
	client, api := halldtest.NewWithAPI(t, nil)
	halldtest.CreateFirstUser(t, client)
	room, err := client.CreateRoom(context.Background(), hallsdk.CreateRoomRequest{Name: "study buddies"})
	require.NoError(t, err)

	bob := halldtest.CreateAnotherUser(t, client, api, "bob")
	_, err = bob.JoinRoom(context.Background(), hallsdk.JoinRoomRequest{Code: room.Code})
	require.NoError(t, err)

	err = bob.LeaveRoom(context.Background(), room.Code)
	require.NoError(t, err)

	rooms, err := bob.Rooms(context.Background())
	require.NoError(t, err)
	require.Empty(t, rooms)

	// Having left, the room is invisible again.
	_, err = bob.Room(context.Background(), room.Code)
	var apiErr *hallsdk.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.StatusCode())
}

func TestRoomActive(t *testing.T) {
	t.Parallel()
	client, api := halldtest.NewWithAPI(t, nil)
	halldtest.CreateFirstUser(t, client)
	room, err := client.CreateRoom(context.Background(), hallsdk.CreateRoomRequest{Name: "study buddies"})
	require.NoError(t, err)

	bob := halldtest.CreateAnotherUser(t, client, api, "bob")
	_, err = bob.JoinRoom(context.Background(), hallsdk.JoinRoomRequest{Code: room.Code})
	require.NoError(t, err)

	sessions, err := client.RoomActiveSessions(context.Background(), room.Code)
	require.NoError(t, err)
	require.Empty(t, sessions)

	_, err = bob.StartSession(context.Background(), hallsdk.StartSessionRequest{Tag: "biology"})
	require.NoError(t, err)

	sessions, err = client.RoomActiveSessions(context.Background(), room.Code)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, "biology", sessions[0].Session.Tag)
	require.Equal(t, "bob", sessions[0].User.Username)
}
