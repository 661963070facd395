package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"voznote/internal/application"
	"voznote/internal/infra/audio"
	"voznote/internal/infra/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and, if configured, the audio inbox watcher",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		server := web.NewServer(cfg.Server.Addr, cfg.Server.AuthToken, web.Deps{
			Pipeline: a.pipeline,
			View:     a.view,
			Notes:    a.notes,
			Quotes:   a.quotes,
		}, logger)
		server.TrustProxyHeaders(cfg.Server.TrustProxy)

		if err := server.Start(ctx); err != nil {
			return err
		}
		defer server.Stop()

		logger.Info("starting voznote",
			"addr", cfg.Server.Addr,
			"storage", cfg.Storage.Driver,
			"inbox", cfg.Audio.InboxDir,
		)

		g, ctx := errgroup.WithContext(ctx)
		if cfg.Audio.InboxDir != "" {
			intake := application.NewIntake(audio.NewFileSource(cfg.Audio.InboxDir), a.pipeline, a.notes, logger)
			g.Go(func() error {
				return intake.Run(ctx)
			})
		}
		g.Go(func() error {
			<-ctx.Done()
			logger.Info("shutting down")
			return nil
		})

		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
