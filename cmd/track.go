package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/kasuboski/bangumiz/pkg/logger"
	"github.com/kasuboski/bangumiz/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	trackOnce   bool
	trackListen int
)

// trackCmd represents the track command
var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "poll feeds and submit new episodes",
	Long:  `poll every configured feed each pull interval and submit new episodes to the download client`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, log := loadConfig()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx = logger.WithCtx(ctx, log)

		if cfg.Settings.LockFile != "" {
			lock := flock.New(cfg.Settings.LockFile)
			ok, err := lock.TryLock()
			if err != nil {
				log.Fatalw("failed to acquire lock", zap.String("path", cfg.Settings.LockFile), zap.Error(err))
			}
			if !ok {
				log.Fatalw("another tracker is already running", zap.String("path", cfg.Settings.LockFile))
			}
			defer func() {
				if err := lock.Unlock(); err != nil {
					log.Warnw("failed to release lock", zap.Error(err))
				}
			}()
		}

		t, err := newTracker(cfg)
		if err != nil {
			log.Fatalw("failed to create tracker", zap.Error(err))
		}

		if trackOnce {
			report, err := t.RunCycle(ctx)
			if err != nil {
				log.Errorw("cycle failed", zap.Error(err))
				return
			}
			log.Infow("cycle complete", "selected", len(report.Selected), "submitted", report.Submitted)
			return
		}

		port := cfg.Settings.StatusPort
		if cmd.Flags().Changed("listen") {
			port = trackListen
		}
		if port != 0 {
			srv := server.New(log, t)
			go func() {
				if err := srv.Serve(ctx, port); err != nil {
					log.Errorw("status server failed", zap.Error(err))
				}
			}()
		}

		log.Infow("starting tracker", "shows", len(cfg.Shows), "interval", cfg.Settings.PullInterval.String())
		if err := t.Run(ctx, cfg.Settings.PullInterval); err != nil {
			log.Errorw("tracker failed", zap.Error(err))
		}
	},
}

func init() {
	trackCmd.Flags().BoolVar(&trackOnce, "once", false, "run a single cycle and exit")
	trackCmd.Flags().IntVar(&trackListen, "listen", 0, "serve the status api on this port")
	rootCmd.AddCommand(trackCmd)
}
