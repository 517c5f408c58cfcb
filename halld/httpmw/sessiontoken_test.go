package httpmw_test

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/studyhall/studyhall/halld/database"
	"github.com/studyhall/studyhall/halld/database/databasefake"
	"github.com/studyhall/studyhall/halld/httpmw"
	"github.com/studyhall/studyhall/hallsdk"
)

func insertSession(t *testing.T, db database.Store, expiresAt time.Time) (database.User, string) {
	t.Helper()
	ctx := context.Background()
	user, err := db.InsertUser(ctx, database.InsertUserParams{
		ID:        uuid.New(),
		Email:     "dev@studyhall.test",
		Username:  "dev",
		CreatedAt: database.Now(),
	})
	require.NoError(t, err)

	id, secret := "abcdef1234", "supersecretkeyvalue"
	hashed := sha256.Sum256([]byte(secret))
	_, err = db.InsertAPIKey(ctx, database.InsertAPIKeyParams{
		ID:           id,
		HashedSecret: hashed[:],
		UserID:       user.ID,
		LastUsed:     database.Now(),
		ExpiresAt:    expiresAt,
		CreatedAt:    database.Now(),
	})
	require.NoError(t, err)
	return user, fmt.Sprintf("%s-%s", id, secret)
}

func TestExtractSessionToken(t *testing.T) {
	t.Parallel()

	successHandler := func(t *testing.T, wantUser database.User) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			require.Equal(t, wantUser.ID, httpmw.AuthedUser(r).ID)
			require.Equal(t, wantUser.ID, httpmw.APIKey(r).UserID)
			rw.WriteHeader(http.StatusOK)
		})
	}

	t.Run("NoToken", func(t *testing.T) {
		t.Parallel()
		db := databasefake.New()
		rw := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/", nil)
		httpmw.ExtractSessionToken(db)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("should not be called")
		})).ServeHTTP(rw, r)
		require.Equal(t, http.StatusUnauthorized, rw.Code)
	})

	t.Run("Malformed", func(t *testing.T) {
		t.Parallel()
		db := databasefake.New()
		rw := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set(hallsdk.SessionTokenHeader, "nohyphenhere")
		httpmw.ExtractSessionToken(db)(nil).ServeHTTP(rw, r)
		require.Equal(t, http.StatusUnauthorized, rw.Code)
	})

	t.Run("NotFound", func(t *testing.T) {
		t.Parallel()
		db := databasefake.New()
		rw := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set(hallsdk.SessionTokenHeader, "unknown-secret")
		httpmw.ExtractSessionToken(db)(nil).ServeHTTP(rw, r)
		require.Equal(t, http.StatusUnauthorized, rw.Code)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		t.Parallel()
		db := databasefake.New()
		_, token := insertSession(t, db, database.Now().Add(time.Hour))
		rw := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set(hallsdk.SessionTokenHeader, token+"tampered")
		httpmw.ExtractSessionToken(db)(nil).ServeHTTP(rw, r)
		require.Equal(t, http.StatusUnauthorized, rw.Code)
	})

	t.Run("Expired", func(t *testing.T) {
		t.Parallel()
		db := databasefake.New()
		_, token := insertSession(t, db, database.Now().Add(-time.Minute))
		rw := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set(hallsdk.SessionTokenHeader, token)
		httpmw.ExtractSessionToken(db)(nil).ServeHTTP(rw, r)
		require.Equal(t, http.StatusUnauthorized, rw.Code)
	})

	t.Run("HeaderToken", func(t *testing.T) {
		t.Parallel()
		db := databasefake.New()
		user, token := insertSession(t, db, database.Now().Add(time.Hour))
		rw := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set(hallsdk.SessionTokenHeader, token)
		httpmw.ExtractSessionToken(db)(successHandler(t, user)).ServeHTTP(rw, r)
		require.Equal(t, http.StatusOK, rw.Code)
	})

	t.Run("CookieToken", func(t *testing.T) {
		t.Parallel()
		db := databasefake.New()
		user, token := insertSession(t, db, database.Now().Add(time.Hour))
		rw := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/", nil)
		r.AddCookie(&http.Cookie{
			Name:  hallsdk.SessionTokenCookie,
			Value: token,
		})
		httpmw.ExtractSessionToken(db)(successHandler(t, user)).ServeHTTP(rw, r)
		require.Equal(t, http.StatusOK, rw.Code)
	})
}
