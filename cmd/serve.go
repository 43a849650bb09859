package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/centinela-labs/centinela/internal/scheduler"
	"github.com/centinela-labs/centinela/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard API and the periodic monitoring loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, st, err := initPipeline()
		if err != nil {
			return err
		}

		sched := scheduler.New(p,
			time.Duration(cfg.Scheduler.IntervalSecs)*time.Second,
			time.Duration(cfg.Scheduler.BackoffSecs)*time.Second,
		)
		srv := server.New(st, sched)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		// A cold store gets an immediate first run so the dashboard has
		// data to show.
		immediate := st.Current() == nil
		if immediate {
			zap.L().Info("no current snapshot, running pipeline at startup")
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return sched.RunLoop(gctx, immediate)
		})
		g.Go(func() error {
			return srv.ListenAndServe(gctx, port)
		})

		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		zap.L().Info("shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
