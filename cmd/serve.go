package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/caselink/internal/analytics"
	"github.com/sells-group/caselink/internal/api"
	"github.com/sells-group/caselink/internal/model"
	"github.com/sells-group/caselink/internal/monitoring"
)

var (
	servePort    int
	serveRefresh time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard query API",
	Long:  "Serves the published snapshot over HTTP, runs background health checks and, with --refresh, recomputes the snapshot on an interval.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		if serveRefresh > 0 {
			if err := cfg.Validate("run"); err != nil {
				return err
			}
		}

		st, err := openOutputStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		metrics := monitoring.NewMetrics()
		srvAPI := api.New(st, cfg.Server, api.WithMetrics(metrics.Handler(), metrics))

		checker := monitoring.NewChecker(
			monitoring.NewCollector(st, metrics),
			monitoring.NewAlerter(cfg.Monitoring),
			cfg.Monitoring,
		)
		go checker.Run(ctx)

		if serveRefresh > 0 {
			sinks, closeSinks, err := initSinks(ctx)
			if err != nil {
				return err
			}
			defer closeSinks()

			runner := analytics.NewRunner(st, cfg.Analytics,
				analytics.WithSinks(sinks...),
				analytics.WithSinkPolicy(cfg.Sinks),
				analytics.WithRecorder(metrics),
			)
			go refreshLoop(ctx, runner, srvAPI, serveRefresh)
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           srvAPI.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

// snapshotRunner is the part of analytics.Runner the refresh loop drives.
type snapshotRunner interface {
	Run(ctx context.Context) (*model.Snapshot, error)
}

// refreshLoop recomputes the snapshot every interval and drops the API
// cache after each successful publish. Failed runs keep the last snapshot.
func refreshLoop(ctx context.Context, runner snapshotRunner, srv *api.Server, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := runner.Run(ctx)
			if err != nil {
				zap.L().Error("scheduled run failed", zap.Error(err))
				continue
			}
			srv.Invalidate()
			zap.L().Info("scheduled run published", zap.String("run_id", snap.RunID))
		}
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().DurationVar(&serveRefresh, "refresh", 0, "recompute the snapshot on this interval (0 disables)")
	rootCmd.AddCommand(serveCmd)
}
