package main

import (
	logging "github.com/ipfs/go-log/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var log = logging.Logger("indexer")

const shortDescription = `
Aethernet indexer - node registry mirror
`

const longDescription = `
The Aethernet indexer mirrors the set of NodeDevice accounts owned by the
registry program into Postgres and serves the committed state over HTTP.
`

var (
	cfgFile string

	logLevel string

	rootCmd = &cobra.Command{
		Use:   "indexer",
		Short: shortDescription,
		Long:  longDescription,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "logging level")

	// register all commands and their subcommands
	rootCmd.AddCommand(startCmd)
}

func initConfig() {
	if err := godotenv.Load(); err == nil {
		log.Debug("loaded environment from .env")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("INDEXER")

	if logLevel != "" {
		ll, err := logging.LevelFromString(logLevel)
		cobra.CheckErr(err)
		logging.SetAllLoggers(ll)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		cobra.CheckErr(viper.ReadInConfig())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
