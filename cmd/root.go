package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/striezel/botvinnik-sub001/internal/version"
	"github.com/striezel/botvinnik-sub001/pkg/log"
)

var (
	cfgFile     string
	showVersion bool
)

var rootCmd = &cobra.Command{
	Use:   "botvinnik",
	Short: "A Matrix chat bot with pluggable commands",
	Long: `botvinnik is a chat bot for the Matrix protocol. It joins rooms it is
invited to, listens for prefixed commands and answers through a set of
plugins (ping, fortune, xkcd, weather and more).`,
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion {
			fmt.Println(version.FullVersion())

			if hasUpdate, latestVersion, err := version.CheckForUpdate(); err == nil && hasUpdate {
				fmt.Printf("\nUpdate available: %s (current: %s)\n", latestVersion, version.ShortVersion())
			}
			os.Exit(0)
		}
		cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./botvinnik.yaml or $HOME/.botvinnik.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable verbose output")
	rootCmd.Flags().BoolVarP(&showVersion, "version", "V", false, "Show version information")

	if err := viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding verbose flag: %v\n", err)
	}
}

// initLogging sets up a stderr logger before any command runs. The run
// command re-initializes it once the config file's logging section is
// known.
func initLogging() {
	level := zerolog.InfoLevel
	if viper.GetBool("verbose") {
		level = zerolog.DebugLevel
	}
	log.InitLogger(os.Stderr, level, true)
}

// resolveConfigPath returns the config file to use: the --config flag
// when given, otherwise the first existing default location.
func resolveConfigPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}

	candidates := []string{"botvinnik.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, home+"/.botvinnik.yaml")
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no config file found (tried %v); run 'botvinnik init' or pass --config", candidates)
}
