package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/onhand/internal/core"
	"github.com/JonMunkholm/onhand/internal/web"
)

// shutdownTimeout bounds the status server's graceful shutdown.
const shutdownTimeout = 10 * time.Second

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "onhand",
		Short:         "Ingest the on-hand inventory extract into the staging table",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newScheduleCmd())
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return err
			}
			defer a.Close()

			rec, err := a.pipeline.Run(ctx)
			if err != nil {
				fmt.Fprintln(os.Stderr, core.FormatUserError(err))
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "run %s loaded %d rows (%d null quantities) in %s\n",
				rec.ID, rec.RowsLoaded, rec.NullQuantities, rec.Duration().Round(time.Millisecond))
			return nil
		},
	}
}

func newScheduleCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline periodically until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return err
			}
			defer a.Close()

			if interval > 0 {
				a.cfg.Schedule.Interval = interval
			}
			return a.schedule(ctx)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Override SCHEDULE_INTERVAL")
	return cmd
}

// schedule runs the scheduler and, when enabled, the status server until ctx
// is cancelled or either of them fails.
func (a *app) schedule(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	scheduler := &core.Scheduler{
		Runner:     a.pipeline,
		Interval:   a.cfg.Schedule.Interval,
		RunOnStart: a.cfg.Schedule.RunOnStart,
	}
	g.Go(func() error {
		return scheduler.Start(gctx)
	})

	if a.cfg.Status.Enabled {
		server := web.NewServer(a.history, a.registry)

		g.Go(func() error {
			if err := server.Start(a.cfg.Status.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status server: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			slog.Info("shutting down...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				slog.Error("shutdown error", "error", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("schedule stopped", "error", err)
		return err
	}
	return nil
}
