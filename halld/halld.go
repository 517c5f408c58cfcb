// Package halld is the Studyhall server: session tracking, rooms, presence
// fan-out and the HTTP API in front of them.
package halld

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"cdr.dev/slog"
	"github.com/studyhall/studyhall/halld/cache"
	"github.com/studyhall/studyhall/halld/database"
	"github.com/studyhall/studyhall/halld/database/pubsub"
	"github.com/studyhall/studyhall/halld/httpapi"
	"github.com/studyhall/studyhall/halld/httpmw"
	"github.com/studyhall/studyhall/halld/presence"
	"github.com/studyhall/studyhall/halld/sessiontrack"
)

// Options are requires parameters for Studyhall to start.
type Options struct {
	Logger   slog.Logger
	Database database.Store
	Pubsub   pubsub.Pubsub
	Cache    cache.Cache

	// APIRateLimit is the minute throughput allowed per authed user. Login
	// and bootstrap endpoints get a tighter fixed budget.
	APIRateLimit int
	// SessionDuration is the lifetime of issued session tokens.
	SessionDuration  time.Duration
	SecureAuthCookie bool

	// Clock overrides the transition clock, for tests.
	Clock func() time.Time
}

// New constructs the Studyhall API handler.
func New(options *Options) *API {
	if options == nil {
		options = &Options{}
	}
	if options.APIRateLimit == 0 {
		options.APIRateLimit = 512
	}
	if options.SessionDuration == 0 {
		options.SessionDuration = 30 * 24 * time.Hour
	}
	if options.Cache == nil {
		options.Cache = cache.NewNoop()
	}

	broadcaster := &presence.Broadcaster{
		Pubsub: options.Pubsub,
		Logger: options.Logger.Named("presence"),
	}
	tracker := &sessiontrack.Tracker{
		Database:    options.Database,
		Broadcaster: broadcaster,
		Cache:       options.Cache,
		Logger:      options.Logger.Named("sessiontrack"),
		Now:         options.Clock,
	}

	api := &API{
		Options: options,
		Tracker: tracker,
	}

	r := chi.NewRouter()
	r.Use(
		httpmw.AttachRequestID,
		httpmw.Recover(options.Logger),
		httpmw.Logger(options.Logger.Named("http")),
	)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(rw http.ResponseWriter, _ *http.Request) {
			httpapi.Write(rw, http.StatusOK, httpapi.Response{
				Message: "ready to study",
			})
		})
		r.Route("/users", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				// Unauthed surface gets a tight fixed budget, keyed by IP.
				r.Use(httpmw.RateLimitPerMinute(60))
				r.Get("/first", api.firstUser)
				r.Post("/first", api.postFirstUser)
				r.Post("/login", api.postLogin)
			})
			r.Group(func(r chi.Router) {
				r.Use(
					httpmw.ExtractSessionToken(options.Database),
					httpmw.RateLimitPerMinute(options.APIRateLimit),
				)
				r.Post("/logout", api.postLogout)
				r.Get("/me", api.userMe)
			})
		})
		r.Route("/sessions", func(r chi.Router) {
			r.Use(
				httpmw.ExtractSessionToken(options.Database),
				httpmw.RateLimitPerMinute(options.APIRateLimit),
			)
			r.Group(func(r chi.Router) {
				// Transitions get their own, tighter budget. No honest
				// client starts or stops a timer this often.
				r.Use(httpmw.RateLimitPerMinute(60))
				r.Post("/start", api.postSessionStart)
				r.Post("/pause", api.postSessionPause)
				r.Post("/resume", api.postSessionResume)
				r.Post("/stop", api.postSessionStop)
			})
			r.Put("/heartbeat", api.putSessionHeartbeat)
			r.Get("/active", api.activeSession)
			r.Get("/stats", api.sessionStats)
		})
		r.Route("/rooms", func(r chi.Router) {
			r.Use(
				httpmw.ExtractSessionToken(options.Database),
				httpmw.RateLimitPerMinute(options.APIRateLimit),
			)
			r.Group(func(r chi.Router) {
				r.Use(httpmw.RateLimitPerMinute(30))
				r.Post("/", api.postRoom)
				r.Post("/join", api.postRoomJoin)
			})
			r.Get("/", api.rooms)
			r.Route("/{roomcode}", func(r chi.Router) {
				r.Use(httpmw.ExtractRoomParam(options.Database))
				r.Get("/", api.room)
				r.Get("/active", api.roomActive)
				r.Post("/leave", api.postRoomLeave)
			})
		})
	})
	api.Handler = r
	return api
}

// API owns the handler state. The tracker is exported because the reaper
// drives stops through it.
type API struct {
	*Options
	Handler chi.Router
	Tracker *sessiontrack.Tracker
}

func (api *API) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	api.Handler.ServeHTTP(rw, r)
}
