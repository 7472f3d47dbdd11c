package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/floodcover/internal/api"
)

const (
	shutdownTimeout  = 15 * time.Second
	saveStateTimeout = 30 * time.Second
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the settlement engine and HTTP API",
	Long:  "Restores the latest snapshot, starts periodic ingestion, serves the API and alert checks, and saves state on shutdown.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		eng := env.Engine
		eng.Start(ctx)
		restored, err := eng.RestoreState(ctx)
		if err != nil {
			zap.L().Fatal("restore state", zap.Error(err))
		}
		zap.L().Info("engine ready",
			zap.Bool("restored", restored),
			zap.String("admin", string(eng.Guard.Admin())),
			zap.Bool("ingestion_running", eng.Oracle.TimerRunning()),
		)

		handler := api.NewServer(eng,
			api.WithMetrics(env.Metrics),
			api.WithCORSOrigins(cfg.Server.CORSOrigins),
		).Routes()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return startServer(gctx, handler, resolvePort(servePort, cfg.Server.Port))
		})
		g.Go(func() error {
			env.Checker.Run(gctx)
			return nil
		})
		runErr := g.Wait()

		saveCtx, cancel := context.WithTimeout(context.Background(), saveStateTimeout)
		defer cancel()
		if _, err := eng.SaveState(saveCtx); err != nil {
			zap.L().Fatal("save state", zap.Error(err))
		}
		return runErr
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// resolvePort prefers the flag value and falls back to config.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer serves handler on port until ctx is done, then shuts down
// gracefully.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("server shutdown", zap.Error(err))
		}
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	<-done
	return nil
}
