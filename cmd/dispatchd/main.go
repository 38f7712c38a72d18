package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gigboard/dispatch/cmd/dispatchd/commands"
	"github.com/gigboard/dispatch/logger"
)

var rootCmd = &cobra.Command{
	Use:   "dispatchd",
	Short: "dispatchd - background job dispatch and event fan-out daemon",
	Long: `dispatchd - background job dispatch and event fan-out for gigboard.

dispatchd runs the persistent job queue, the skillfolio processor, and the
listeners that fan lifecycle events out to notifications and live WebSocket
channels.

Examples:
  dispatchd serve                    # Run the daemon in the foreground
  dispatchd serve --config my.toml   # Run with an explicit config file
  dispatchd migrate                  # Apply pending database migrations`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Initialize(false); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			logger.SetVerbose()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: ./dispatch.toml)")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.MigrateCmd)
}

func main() {
	defer logger.Sync()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
