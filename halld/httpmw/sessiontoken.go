package httpmw

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/studyhall/studyhall/halld/database"
	"github.com/studyhall/studyhall/halld/httpapi"
	"github.com/studyhall/studyhall/hallsdk"
)

type apiKeyContextKey struct{}
type authedUserContextKey struct{}

// APIKey returns the API key from the ExtractSessionToken handler.
func APIKey(r *http.Request) database.APIKey {
	key, ok := r.Context().Value(apiKeyContextKey{}).(database.APIKey)
	if !ok {
		panic("developer error: session token middleware not provided")
	}
	return key
}

// AuthedUser returns the owner of the session token. Depends on the
// ExtractSessionToken handler.
func AuthedUser(r *http.Request) database.User {
	user, ok := r.Context().Value(authedUserContextKey{}).(database.User)
	if !ok {
		panic("developer error: session token middleware not provided")
	}
	return user
}

// ExtractSessionToken authenticates the request with a session token taken
// from the request cookie or header. Tokens have the form "<id>-<secret>";
// only the sha256 of the secret is stored, so the comparison happens against
// the hash.
func ExtractSessionToken(db database.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(hallsdk.SessionTokenHeader)
			if token == "" {
				cookie, err := r.Cookie(hallsdk.SessionTokenCookie)
				if err != nil {
					httpapi.Write(rw, http.StatusUnauthorized, httpapi.Response{
						Message: fmt.Sprintf("no session token in %q cookie or %q header", hallsdk.SessionTokenCookie, hallsdk.SessionTokenHeader),
					})
					return
				}
				token = cookie.Value
			}
			parts := strings.SplitN(token, "-", 2)
			// The token is truncated at the first hyphen. The id is generated
			// without hyphens, so the remainder is the whole secret.
			if len(parts) != 2 {
				httpapi.Write(rw, http.StatusUnauthorized, httpapi.Response{
					Message: "session token is malformed",
				})
				return
			}
			keyID, keySecret := parts[0], parts[1]

			key, err := db.GetAPIKeyByID(r.Context(), keyID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					httpapi.Write(rw, http.StatusUnauthorized, httpapi.Response{
						Message: "session does not exist",
					})
					return
				}
				httpapi.Write(rw, http.StatusInternalServerError, httpapi.Response{
					Message: fmt.Sprintf("get session: %s", err.Error()),
				})
				return
			}
			hashed := sha256.Sum256([]byte(keySecret))
			if subtle.ConstantTimeCompare(key.HashedSecret, hashed[:]) != 1 {
				httpapi.Write(rw, http.StatusUnauthorized, httpapi.Response{
					Message: "session token is invalid",
				})
				return
			}
			now := database.Now()
			if key.ExpiresAt.Before(now) {
				httpapi.Write(rw, http.StatusUnauthorized, httpapi.Response{
					Message: fmt.Sprintf("session expired at %q", key.ExpiresAt.String()),
				})
				return
			}
			// Only bump the last used timestamp once an hour, to keep reads
			// from writing on every request.
			if now.Sub(key.LastUsed) > time.Hour {
				err = db.UpdateAPIKeyLastUsed(r.Context(), database.UpdateAPIKeyLastUsedParams{
					ID:       key.ID,
					LastUsed: now,
				})
				if err != nil {
					httpapi.Write(rw, http.StatusInternalServerError, httpapi.Response{
						Message: fmt.Sprintf("update session: %s", err.Error()),
					})
					return
				}
				key.LastUsed = now
			}
			user, err := db.GetUserByID(r.Context(), key.UserID)
			if err != nil {
				httpapi.Write(rw, http.StatusInternalServerError, httpapi.Response{
					Message: fmt.Sprintf("get authed user: %s", err.Error()),
				})
				return
			}

			ctx := context.WithValue(r.Context(), apiKeyContextKey{}, key)
			ctx = context.WithValue(ctx, authedUserContextKey{}, user)
			next.ServeHTTP(rw, r.WithContext(ctx))
		})
	}
}
