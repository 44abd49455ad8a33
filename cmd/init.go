package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/striezel/botvinnik-sub001/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	Long: `Create a botvinnik configuration file with default values. Edit the
matrix section afterwards to add your homeserver and credentials.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringP("output", "o", "botvinnik.yaml", "Output configuration file path")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing configuration file")
}

func runInit(cmd *cobra.Command, args []string) error {
	outputPath, _ := cmd.Flags().GetString("output")

	if _, err := os.Stat(outputPath); err == nil && !initForce {
		return fmt.Errorf("configuration file %q already exists (use --force to overwrite)", outputPath)
	}

	cfg := config.NewDefaultConfig()
	cfg.Matrix.Homeserver = "https://matrix.example.com"
	cfg.Matrix.UserID = "@botvinnik:example.com"

	if err := cfg.SaveConfig(outputPath); err != nil {
		return err
	}

	fmt.Printf("Wrote %s\n", outputPath)
	fmt.Println("Fill in matrix.homeserver, matrix.user_id and either matrix.access_token or matrix.password, then start the bot with 'botvinnik run'.")
	return nil
}
