package halld_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/studyhall/studyhall/halld/halldtest"
	"github.com/studyhall/studyhall/hallsdk"
)

func TestFirstUser(t *testing.T) {
	t.Parallel()
	t.Run("NotExists", func(t *testing.T) {
		t.Parallel()
		client := halldtest.New(t, nil)
		exists, err := client.HasFirstUser(context.Background())
		require.NoError(t, err)
		require.False(t, exists)
	})

	t.Run("Create", func(t *testing.T) {
		t.Parallel()
		client := halldtest.New(t, nil)
		resp, err := client.CreateFirstUser(context.Background(), halldtest.FirstUserParams)
		require.NoError(t, err)
		require.NotEqual(t, resp.UserID.String(), "")

		exists, err := client.HasFirstUser(context.Background())
		require.NoError(t, err)
		require.True(t, exists)
	})

	t.Run("AlreadyExists", func(t *testing.T) {
		t.Parallel()
		client := halldtest.New(t, nil)
		halldtest.CreateFirstUser(t, client)
		_, err := client.CreateFirstUser(context.Background(), hallsdk.CreateFirstUserRequest{
			Email:    "bob@studyhall.dev",
			Username: "bob",
			Password: "SoSecurePassword!",
		})
		var apiErr *hallsdk.Error
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusConflict, apiErr.StatusCode())
	})

	t.Run("BadEmail", func(t *testing.T) {
		t.Parallel()
		client := halldtest.New(t, nil)
		_, err := client.CreateFirstUser(context.Background(), hallsdk.CreateFirstUserRequest{
			Email:    "not-an-email",
			Username: "alice",
			Password: "SoSecurePassword!",
		})
		var apiErr *hallsdk.Error
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusBadRequest, apiErr.StatusCode())
	})
}

func TestLogin(t *testing.T) {
	t.Parallel()
	t.Run("Works", func(t *testing.T) {
		t.Parallel()
		client := halldtest.New(t, nil)
		halldtest.CreateFirstUser(t, client)

		user, err := client.Me(context.Background())
		require.NoError(t, err)
		require.Equal(t, halldtest.FirstUserParams.Email, user.Email)
		require.Equal(t, halldtest.FirstUserParams.Username, user.Username)
	})

	t.Run("BadPassword", func(t *testing.T) {
		t.Parallel()
		client := halldtest.New(t, nil)
		halldtest.CreateFirstUser(t, client)

		other := hallsdk.New(client.URL)
		_, err := other.Login(context.Background(), hallsdk.LoginRequest{
			Email:    halldtest.FirstUserParams.Email,
			Password: "totally-wrong",
		})
		var apiErr *hallsdk.Error
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode())
	})

	t.Run("UnknownEmail", func(t *testing.T) {
		t.Parallel()
		client := halldtest.New(t, nil)
		halldtest.CreateFirstUser(t, client)

		other := hallsdk.New(client.URL)
		_, err := other.Login(context.Background(), hallsdk.LoginRequest{
			Email:    "nobody@studyhall.dev",
			Password: "SoSecurePassword!",
		})
		// Must be indistinguishable from a bad password.
		var apiErr *hallsdk.Error
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode())
	})
}

func TestLogout(t *testing.T) {
	t.Parallel()
	client := halldtest.New(t, nil)
	halldtest.CreateFirstUser(t, client)

	err := client.Logout(context.Background())
	require.NoError(t, err)

	_, err = client.Me(context.Background())
	var apiErr *hallsdk.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode())
}

func TestUnauthenticated(t *testing.T) {
	t.Parallel()
	client := halldtest.New(t, nil)
	_, err := client.Me(context.Background())
	var apiErr *hallsdk.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode())
}
