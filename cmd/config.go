package cmd

import (
	"github.com/kasuboski/bangumiz/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "inspect configuration",
}

// configShowCmd represents the config show command
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "print the effective configuration",
	Long:  `print the configuration after defaults and environment overrides are applied, with secrets redacted`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New(viper.GetViper())
		if err != nil {
			return err
		}

		b, err := config.Render(cfg)
		if err != nil {
			return err
		}

		_, err = cmd.OutOrStdout().Write(b)
		return err
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
