package cmd

import (
	"errors"
	"fmt"

	"github.com/kasuboski/bangumiz/pkg/torrent"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect <file>...",
	Short: "print the metadata of torrent files",
	Long:  `decode local torrent files and print their info hash, size and name`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := inspectFiles(afero.NewOsFs(), args)
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return err
	},
}

// inspectFiles renders a row per path. Files that fail to decode get their
// error in place of a hash and are reported together.
func inspectFiles(fs afero.Fs, paths []string) (string, error) {
	var errs []error

	rows := make([][]string, 0, len(paths))
	for _, p := range paths {
		d, err := torrent.ReadFile(fs, p)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			rows = append(rows, []string{p, "-", err.Error(), ""})
			continue
		}

		rows = append(rows, []string{p, formatSize(d), d.Hash(), d.DisplayName()})
	}

	out := renderTable(
		[]string{"File", "Size", "Hash", "Name"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft},
	)

	return out, errors.Join(errs...)
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
