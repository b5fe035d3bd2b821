package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matthewbaird/outbreak/internal/feed"
	"github.com/matthewbaird/outbreak/internal/server"
	"github.com/matthewbaird/outbreak/internal/worker"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		port     int
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run detection on a schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}
			if cmd.Flags().Changed("interval") {
				a.cfg.Schedule.Interval = interval
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := wire(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			hub := feed.NewHub(a.logger)
			rt.bus.Subscribe("feed", hub)
			rt.bus.Start(ctx)
			defer rt.Close()

			sched := worker.NewScheduler(rt.engine, a.cfg.Schedule.Interval,
				worker.WithLogger(a.logger),
				worker.WithRunOnStart(a.cfg.Schedule.RunOnStart),
			)
			go sched.Start(ctx)

			err = server.Run(ctx, server.Config{
				Port:     a.cfg.Server.Port,
				Records:  rt.records,
				Activity: rt.activity,
				Runner:   sched,
				Feed:     hub,
				Logger:   a.logger,
			})
			a.logger.Info("server stopped", zap.Error(err))
			return err
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "HTTP port (overrides server.port)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "run interval, 0 disables scheduled runs (overrides schedule.interval)")
	return cmd
}
