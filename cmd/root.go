package cmd

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kasuboski/bangumiz/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	debug   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bangumiz",
	Short: "bangumiz tracks anime feeds and sends new episodes to a download client",
	Long: `bangumiz polls the subscription feed of every configured show, skips episodes
the download client already has, and submits the rest with a per episode save path.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.toml", "config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func initConfig() {
	// credentials are often kept next to the config in a .env file
	_ = godotenv.Load()

	viper.SetConfigFile(cfgFile)

	viper.SetEnvPrefix("BANGUMIZ")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", ""))
	viper.AutomaticEnv()

	viper.SetDefault("client.implementation", "qbittorrent")
	viper.SetDefault("client.scheme", "http")
	viper.SetDefault("client.host", "localhost")
	viper.SetDefault("client.port", 8080)
	viper.SetDefault("client.username", "")
	viper.SetDefault("client.password", "")
	viper.SetDefault("client.savePathRoot", "")

	viper.SetDefault("settings.pullInterval", config.DefaultPullInterval)
	viper.SetDefault("settings.fetchTimeout", config.DefaultFetchTimeout)
	viper.SetDefault("settings.logDir", "logs")
	viper.SetDefault("settings.lockFile", "bangumiz.lock")
	viper.SetDefault("settings.statusPort", 0)
}
