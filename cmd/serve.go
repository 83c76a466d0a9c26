package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobmate/discovery-service/internal/api"
	"jobmate/discovery-service/internal/grpcserver"
	"jobmate/discovery-service/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and gRPC admin service and run the scheduled jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context(), cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cmd *cobra.Command) error {
	b, err := newBase(ctx, cmd)
	if err != nil {
		return err
	}
	p, err := newPipeline(ctx, b)
	if err != nil {
		b.close()
		return err
	}
	defer p.close()
	log := p.log

	if err := p.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	defer p.scheduler.Stop()

	handler := api.NewServer(api.NewHandler(p.scheduler, p.matches, p.apps, log))
	gs, hs := grpcserver.New(grpcserver.NewServer(p.scheduler, p.matches, p.apps, log), log)
	srv := server.New(handler, gs, hs, log)

	log.Info("discovery-service starting",
		zap.String("version", version),
		zap.String("port", p.cfg.Port),
		zap.String("ingest_schedule", p.cfg.Ingest.Schedule),
		zap.String("retention_schedule", p.cfg.Retention.Schedule))
	return srv.ListenAndServe(ctx, ":"+p.cfg.Port)
}
