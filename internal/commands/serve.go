package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gigurra/subsmart/internal/api/handlers"
	"github.com/gigurra/subsmart/internal/api/middleware"
	"github.com/gigurra/subsmart/internal/logger"
	"github.com/gigurra/subsmart/internal/settings"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newServeCommand(settingsPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := settings.Load(*settingsPath)
			if err != nil {
				return err
			}
			if addr != "" {
				s.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, s)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")

	return cmd
}

// newRouter builds the HTTP handler with middleware applied.
func newRouter(h *handlers.Handler, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()
	h.Register(mux)
	return middleware.Chain(mux,
		middleware.Recovery(log),
		middleware.RequestID,
		middleware.Logger(log),
		middleware.CORS,
	)
}

func runServe(ctx context.Context, s settings.Settings) error {
	log := logger.NewFromConfig(s.Log.Level, s.Log.Format)

	a, err := buildApp(s, log)
	if err != nil {
		return err
	}
	defer a.Close()

	server := &http.Server{
		Addr:         s.Server.Addr,
		Handler:      newRouter(handlers.New(a.service, a.categorizer, nil), log),
		ReadTimeout:  s.Server.ReadTimeout,
		WriteTimeout: s.Server.WriteTimeout,
		IdleTimeout:  s.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.Server.Addr).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Info().Msg("Server exited")
	return nil
}
