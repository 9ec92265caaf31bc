package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/unitmatch/internal/monitoring"
	"github.com/banshee-data/unitmatch/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve run reports and the SQL debug console",
		Long: `Serve HTML and PNG reports of stored runs under /runs/ and the
tsweb debug index with a tailsql console under /debug/.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDB(func(db *store.DB) error {
				mux := http.NewServeMux()
				if err := db.AttachAdminRoutes(mux); err != nil {
					return err
				}
				(&reportHandlers{db: db}).register(mux)

				h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					monitoring.Logf("[serve] %s %s", r.Method, r.URL.Path)
					mux.ServeHTTP(w, r)
				})
				server := &http.Server{
					Addr:              listen,
					Handler:           h,
					ReadHeaderTimeout: 10 * time.Second,
				}

				sigCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				g, gctx := errgroup.WithContext(sigCtx)

				g.Go(func() error {
					monitoring.Logf("[serve] listening on %s", listen)
					if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					monitoring.Logf("[serve] shutting down HTTP server...")
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return server.Shutdown(shutdownCtx)
				})
				return g.Wait()
			})
		},
	}

	cmd.Flags().StringVar(&listen, "listen", ":8080", "HTTP listen address")
	return cmd
}
