package cli

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	// Postgres driver for database/sql.
	_ "github.com/lib/pq"

	"cdr.dev/slog"
	"cdr.dev/slog/sloggers/sloghuman"
	"github.com/studyhall/studyhall/halld"
	"github.com/studyhall/studyhall/halld/cache"
	"github.com/studyhall/studyhall/halld/database"
	"github.com/studyhall/studyhall/halld/database/databasefake"
	"github.com/studyhall/studyhall/halld/database/pubsub"
	"github.com/studyhall/studyhall/halld/reaper"
)

func server() *cobra.Command {
	var (
		address          string
		postgresURL      string
		redisURL         string
		dev              bool
		verbose          bool
		apiRateLimit     int
		sessionGrace     time.Duration
		secureAuthCookie bool
	)
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the studyhall server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			logger := slog.Make(sloghuman.Sink(os.Stderr))
			if verbose {
				logger = logger.Leveled(slog.LevelDebug)
			}

			var (
				store database.Store
				ps    pubsub.Pubsub
				ch    cache.Cache
				err   error
			)
			if dev {
				logger.Info(ctx, "running in dev mode, all state is in memory")
				store = databasefake.New()
				ps = pubsub.NewInMemory()
				ch = cache.NewNoop()
			} else {
				if postgresURL == "" {
					return xerrors.New("--postgres-url is required outside dev mode")
				}
				sqlDB, err := sql.Open("postgres", postgresURL)
				if err != nil {
					return xerrors.Errorf("open postgres: %w", err)
				}
				defer sqlDB.Close()
				err = sqlDB.PingContext(ctx)
				if err != nil {
					return xerrors.Errorf("ping postgres: %w", err)
				}
				err = database.MigrateUp(sqlDB)
				if err != nil {
					return xerrors.Errorf("migrate: %w", err)
				}
				store = database.New(sqlDB)
				ps, err = pubsub.New(ctx, sqlDB, postgresURL)
				if err != nil {
					return xerrors.Errorf("create pubsub: %w", err)
				}
				defer ps.Close()

				if redisURL != "" {
					ch, err = cache.NewRedis(redisURL)
					if err != nil {
						return xerrors.Errorf("connect redis: %w", err)
					}
					defer ch.Close()
				} else {
					logger.Warn(ctx, "no --redis-url provided, caching is disabled")
					ch = cache.NewNoop()
				}
			}

			api := halld.New(&halld.Options{
				Logger:           logger.Named("halld"),
				Database:         store,
				Pubsub:           ps,
				Cache:            ch,
				APIRateLimit:     apiRateLimit,
				SecureAuthCookie: secureAuthCookie,
			})

			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			sweeper := reaper.New(ctx, store, api.Tracker, logger.Named("reaper"), ticker.C, sessionGrace)
			sweeper.Start()
			defer sweeper.Wait()

			listener, err := net.Listen("tcp", address)
			if err != nil {
				return xerrors.Errorf("listen on %q: %w", address, err)
			}
			defer listener.Close()
			logger.Info(ctx, "started listening", slog.F("address", listener.Addr().String()))

			srv := &http.Server{
				Handler:           api,
				ReadHeaderTimeout: 10 * time.Second,
				BaseContext: func(net.Listener) context.Context {
					return ctx
				},
			}
			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Serve(listener)
			}()

			select {
			case err = <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&address, "address", envOr("STUDYHALL_ADDRESS", "127.0.0.1:3000"), "Address to serve the API on.")
	cmd.Flags().StringVar(&postgresURL, "postgres-url", os.Getenv("STUDYHALL_POSTGRES_URL"), "URL of the PostgreSQL database to store state in.")
	cmd.Flags().StringVar(&redisURL, "redis-url", os.Getenv("STUDYHALL_REDIS_URL"), "URL of the Redis instance for derived-data caching.")
	cmd.Flags().BoolVar(&dev, "dev", false, "Run with an in-memory store; all data is lost on exit.")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging.")
	cmd.Flags().IntVar(&apiRateLimit, "api-rate-limit", 512, "Maximum requests per minute per authed user.")
	cmd.Flags().DurationVar(&sessionGrace, "session-grace", reaper.DefaultGracePeriod, "How long a session may go without a heartbeat before it is force-stopped.")
	cmd.Flags().BoolVar(&secureAuthCookie, "secure-auth-cookie", false, "Set the Secure flag on the session cookie.")
	return cmd
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
