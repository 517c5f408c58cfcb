package httpmw

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/studyhall/studyhall/halld/database"
	"github.com/studyhall/studyhall/halld/httpapi"
)

// RateLimitPerMinute limits the number of requests allowed per minute. The
// key is the authed user when the session token middleware ran first, and
// the remote IP otherwise.
func RateLimitPerMinute(count int) func(http.Handler) http.Handler {
	return httprate.Limit(
		count,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if key, ok := r.Context().Value(apiKeyContextKey{}).(database.APIKey); ok {
				return key.UserID.String(), nil
			}
			return httprate.KeyByIP(r)
		}),
		httprate.WithLimitHandler(func(rw http.ResponseWriter, r *http.Request) {
			httpapi.Write(rw, http.StatusTooManyRequests, httpapi.Response{
				Message: "You've been rate limited for sending too many requests!",
			})
		}),
	)
}
