package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cyp0633/caldora-recur/server/auth"
	authmem "github.com/cyp0633/caldora-recur/server/auth/memory"
	"github.com/cyp0633/caldora-recur/server/feed"
)

func newServeCommand(g *globals) *cobra.Command {
	var (
		listen string
		users  []string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve read-only occurrence feeds over HTTP",
		Long: `Serves GET /{organization}/{resource path}?from=...&to=...&format=ics|xcal|json.
With --user the feed requires HTTP Basic credentials and limits each user to
the listed organizations ("*" for all).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed := make([]authmem.User, 0, len(users))
			for _, raw := range users {
				u, err := authmem.ParseUser(raw)
				if err != nil {
					return err
				}
				parsed = append(parsed, u)
			}
			return g.run(cmd, func(ctx context.Context, a *app) error {
				var handler http.Handler = feed.NewHandler(a.svc,
					feed.WithLogger(a.logger), feed.WithMaxWindow(a.cfg.Feed.MaxWindow))
				if len(parsed) > 0 {
					store := authmem.New(authmem.WithLogger(a.logger))
					for _, u := range parsed {
						if err := store.AddUser(u.Username, u.Password, u.Organizations...); err != nil {
							return err
						}
					}
					handler = auth.Middleware(store, a.cfg.Feed.Realm)(handler)
				}

				addr := a.cfg.Feed.Listen
				if listen != "" {
					addr = listen
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

				ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				errc := make(chan error, 1)
				go func() { errc <- srv.ListenAndServe() }()
				a.logger.Info("feed listening", "addr", addr, "auth", len(parsed) > 0)

				select {
				case err := <-errc:
					return err
				case <-ctx.Done():
				}
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				a.logger.Info("feed stopped")
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&listen, "listen", "", "listen address (default from feed.listen)")
	f.StringArrayVar(&users, "user", nil, "name:password:org1,org2 allowed to read the feed")
	return cmd
}
