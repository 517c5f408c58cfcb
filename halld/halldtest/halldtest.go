// Package halldtest boots a full in-memory Studyhall server for tests: fake
// store, in-memory pubsub, throwaway redis, real HTTP stack.
package halldtest

import (
	"context"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"cdr.dev/slog/sloggers/slogtest"
	"github.com/studyhall/studyhall/halld"
	"github.com/studyhall/studyhall/halld/cache"
	"github.com/studyhall/studyhall/halld/database"
	"github.com/studyhall/studyhall/halld/database/databasefake"
	"github.com/studyhall/studyhall/halld/database/pubsub"
	"github.com/studyhall/studyhall/hallsdk"
)

type Options struct {
	Database database.Store
	Pubsub   pubsub.Pubsub
	Clock    func() time.Time
}

// New constructs an in-memory API and returns a client pointed at it.
func New(t *testing.T, options *Options) *hallsdk.Client {
	client, _ := NewWithAPI(t, options)
	return client
}

// NewWithAPI also returns the API for tests that reach into the tracker or
// the store directly.
func NewWithAPI(t *testing.T, options *Options) (*hallsdk.Client, *halld.API) {
	t.Helper()
	if options == nil {
		options = &Options{}
	}
	if options.Database == nil {
		options.Database = databasefake.New()
	}
	if options.Pubsub == nil {
		options.Pubsub = pubsub.NewInMemory()
	}

	mr := miniredis.RunT(t)
	redisCache, err := cache.NewRedis("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = redisCache.Close()
	})

	api := halld.New(&halld.Options{
		Logger:   slogtest.Make(t, &slogtest.Options{IgnoreErrors: true}),
		Database: options.Database,
		Pubsub:   options.Pubsub,
		Cache:    redisCache,
		Clock:    options.Clock,
	})
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	serverURL, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return hallsdk.New(serverURL), api
}

// FirstUserParams are the credentials CreateFirstUser boots the server with.
var FirstUserParams = hallsdk.CreateFirstUserRequest{
	Email:    "alice@studyhall.dev",
	Username: "alice",
	Password: "SoSecurePassword!",
}

// CreateFirstUser bootstraps the initial account and logs the client in.
func CreateFirstUser(t *testing.T, client *hallsdk.Client) hallsdk.CreateFirstUserResponse {
	t.Helper()
	resp, err := client.CreateFirstUser(context.Background(), FirstUserParams)
	require.NoError(t, err)
	_, err = client.Login(context.Background(), hallsdk.LoginRequest{
		Email:    FirstUserParams.Email,
		Password: FirstUserParams.Password,
	})
	require.NoError(t, err)
	return resp
}

// CreateAnotherUser inserts an account straight into the store and returns a
// fresh logged-in client for it. There is no self-serve registration
// endpoint, so tests write the row the way an inviter would.
func CreateAnotherUser(t *testing.T, client *hallsdk.Client, api *halld.API, username string) *hallsdk.Client {
	t.Helper()
	password := "SoSecurePassword!"
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	email := username + "@studyhall.dev"
	_, err = api.Database.InsertUser(context.Background(), database.InsertUserParams{
		ID:             uuid.New(),
		Email:          email,
		Username:       username,
		HashedPassword: hashed,
		CreatedAt:      database.Now(),
	})
	require.NoError(t, err)

	other := hallsdk.New(client.URL)
	_, err = other.Login(context.Background(), hallsdk.LoginRequest{
		Email:    email,
		Password: password,
	})
	require.NoError(t, err)
	return other
}
