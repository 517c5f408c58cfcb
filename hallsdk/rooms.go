package hallsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Room is a study room. The code is the six-character join token shown to
// other people.
type Room struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	HostID    uuid.UUID `json:"host_id"`
	CreatedAt time.Time `json:"created_at"`
}

// RoomMember is one member of a room joined with their user record.
type RoomMember struct {
	User     User      `json:"user"`
	JoinedAt time.Time `json:"joined_at"`
}

// RoomDetails is a room plus its member list.
type RoomDetails struct {
	Room    Room         `json:"room"`
	Members []RoomMember `json:"members"`
}

// RoomSession is one member's in-progress session, joined with the owning
// user and their completed total for today.
type RoomSession struct {
	Session        Session `json:"session"`
	User           User    `json:"user"`
	CompletedToday int64   `json:"completed_today"`
}

type CreateRoomRequest struct {
	Name string `json:"name" validate:"required,max=64"`
}

type JoinRoomRequest struct {
	Code string `json:"code" validate:"required,roomcode"`
}

// CreateRoom creates a room with a generated code and joins the caller as
// host.
func (c *Client) CreateRoom(ctx context.Context, req CreateRoomRequest) (Room, error) {
	res, err := c.Request(ctx, http.MethodPost, "/api/v1/rooms", req)
	if err != nil {
		return Room{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		return Room{}, readBodyAsError(res)
	}
	var room Room
	return room, json.NewDecoder(res.Body).Decode(&room)
}

// JoinRoom adds the caller to the room with the given code. The code is
// case-insensitive. Joining a room twice returns the room unchanged.
func (c *Client) JoinRoom(ctx context.Context, req JoinRoomRequest) (Room, error) {
	req.Code = strings.ToUpper(req.Code)
	res, err := c.Request(ctx, http.MethodPost, "/api/v1/rooms/join", req)
	if err != nil {
		return Room{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return Room{}, readBodyAsError(res)
	}
	var room Room
	return room, json.NewDecoder(res.Body).Decode(&room)
}

// Rooms lists the rooms the caller belongs to.
func (c *Client) Rooms(ctx context.Context) ([]Room, error) {
	res, err := c.Request(ctx, http.MethodGet, "/api/v1/rooms", nil)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, readBodyAsError(res)
	}
	var rooms []Room
	return rooms, json.NewDecoder(res.Body).Decode(&rooms)
}

// Room returns the room with the given code and its member list. Requires
// membership.
func (c *Client) Room(ctx context.Context, code string) (RoomDetails, error) {
	res, err := c.Request(ctx, http.MethodGet, fmt.Sprintf("/api/v1/rooms/%s", code), nil)
	if err != nil {
		return RoomDetails{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return RoomDetails{}, readBodyAsError(res)
	}
	var details RoomDetails
	return details, json.NewDecoder(res.Body).Decode(&details)
}

// LeaveRoom removes the caller from the room.
func (c *Client) LeaveRoom(ctx context.Context, code string) error {
	res, err := c.Request(ctx, http.MethodPost, fmt.Sprintf("/api/v1/rooms/%s/leave", code), nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return readBodyAsError(res)
	}
	return nil
}

// RoomActiveSessions lists every member's in-progress session in the room.
func (c *Client) RoomActiveSessions(ctx context.Context, code string) ([]RoomSession, error) {
	res, err := c.Request(ctx, http.MethodGet, fmt.Sprintf("/api/v1/rooms/%s/active", code), nil)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, readBodyAsError(res)
	}
	var sessions []RoomSession
	return sessions, json.NewDecoder(res.Body).Decode(&sessions)
}
