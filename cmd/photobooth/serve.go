package main

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"photobooth/internal/logger"
	"photobooth/internal/server"
	"photobooth/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "HTTP APIを起動する",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cfg)
		if err != nil {
			return err
		}

		srv := server.New(cfg, server.Deps{
			Controller: a.controller,
			Camera:     a.camera,
			Discovery:  a.discovery(),
			Catalog:    a.catalog,
			Builder:    a.builder,
			Metrics:    a.metrics,
		})

		events, unsubscribe := a.controller.Subscribe(16)
		defer unsubscribe()

		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error {
			return srv.Start(ctx)
		})
		g.Go(func() error {
			logEvents(ctx, events)
			return nil
		})
		return g.Wait()
	},
}

// logEvents は完了・中断したセッションをログに残す。購読が閉じるまで続く
func logEvents(ctx context.Context, events <-chan session.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			snap := ev.Snapshot
			switch {
			case snap.Status == session.StatusComplete:
				logger.Info("合成画像をダウンロードできます", "session", snap.ID, "path", "/api/session/composite")
			case snap.Status == session.StatusIdle && snap.Error != "":
				logger.Info("セッションをやり直してください", "session", snap.ID, "reason", snap.Error)
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
