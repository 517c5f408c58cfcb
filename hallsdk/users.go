package hallsdk

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// User is the JSON-safe shape of an account. The password hash never leaves
// the server.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateFirstUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,username"`
	Password string `json:"password" validate:"required,min=8"`
}

type CreateFirstUserResponse struct {
	UserID uuid.UUID `json:"user_id"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	SessionToken string `json:"session_token"`
}

// HasFirstUser returns whether the server already has its bootstrap account.
func (c *Client) HasFirstUser(ctx context.Context) (bool, error) {
	res, err := c.Request(ctx, http.MethodGet, "/api/v1/users/first", nil)
	if err != nil {
		return false, err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if res.StatusCode != http.StatusOK {
		return false, readBodyAsError(res)
	}
	return true, nil
}

// CreateFirstUser attempts to create the first user on a server.
func (c *Client) CreateFirstUser(ctx context.Context, req CreateFirstUserRequest) (CreateFirstUserResponse, error) {
	res, err := c.Request(ctx, http.MethodPost, "/api/v1/users/first", req)
	if err != nil {
		return CreateFirstUserResponse{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		return CreateFirstUserResponse{}, readBodyAsError(res)
	}
	var resp CreateFirstUserResponse
	return resp, json.NewDecoder(res.Body).Decode(&resp)
}

// Login exchanges credentials for a session token and stores it on the
// client for subsequent requests.
func (c *Client) Login(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	res, err := c.Request(ctx, http.MethodPost, "/api/v1/users/login", req)
	if err != nil {
		return LoginResponse{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		return LoginResponse{}, readBodyAsError(res)
	}
	var resp LoginResponse
	err = json.NewDecoder(res.Body).Decode(&resp)
	if err != nil {
		return LoginResponse{}, err
	}
	c.SessionToken = resp.SessionToken
	return resp, nil
}

// Logout invalidates the client's session token on the server.
func (c *Client) Logout(ctx context.Context) error {
	res, err := c.Request(ctx, http.MethodPost, "/api/v1/users/logout", nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return readBodyAsError(res)
	}
	return nil
}

// Me returns the account that owns the session token.
func (c *Client) Me(ctx context.Context) (User, error) {
	res, err := c.Request(ctx, http.MethodGet, "/api/v1/users/me", nil)
	if err != nil {
		return User{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return User{}, readBodyAsError(res)
	}
	var user User
	return user, json.NewDecoder(res.Body).Decode(&user)
}
