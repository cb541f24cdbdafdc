package cmd

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/kasuboski/bangumiz/pkg/logger"
	"github.com/kasuboski/bangumiz/pkg/torrent"
	"github.com/kasuboski/bangumiz/pkg/tracker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// previewCmd represents the preview command
var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "show which episodes would be submitted",
	Long:  `run a single selection over every feed and print the new episodes without submitting them`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, log := loadConfig()
		ctx := logger.WithCtx(context.Background(), log)

		t, err := newTracker(cfg)
		if err != nil {
			log.Fatalw("failed to create tracker", zap.Error(err))
		}

		_, episodes, err := t.Plan(ctx)
		if err != nil {
			log.Fatalw("failed to select episodes", zap.Error(err))
		}

		if len(episodes) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no new episodes found")
			return
		}

		fmt.Fprintln(cmd.OutOrStdout(), renderEpisodes(episodes))
	},
}

func renderEpisodes(episodes []tracker.Episode) string {
	rows := make([][]string, 0, len(episodes))
	for _, ep := range episodes {
		rows = append(rows, []string{
			ep.ShowTitle,
			ep.Title,
			formatSize(ep.Descriptor),
			ep.Descriptor.Hash(),
			ep.SavePath,
		})
	}

	return renderTable(
		[]string{"Show", "Episode", "Size", "Hash", "Save Path"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	)
}

func formatSize(d torrent.Descriptor) string {
	size, ok := d.ByteSize()
	if !ok {
		return "-"
	}
	return humanize.IBytes(uint64(size))
}

func init() {
	rootCmd.AddCommand(previewCmd)
}
