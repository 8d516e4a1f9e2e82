// Command lelink serves BLE connections through a Linux HCI controller.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/muxable/lelink/pkg/config"
	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "lelink",
	Short: "BLE link layer data channel peripheral",
	Long: `lelink advertises through a Linux HCI controller and serves the
connections it accepts: L2CAP reassembly, the LE signalling channel and a
minimal ATT server carrying the GAP service.`,
	Version:       version,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (.toml, .yaml or .yml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level overriding the config (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the --config file and applies the flags that override it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	c, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		c.Log.Level = level
	}
	if f := cmd.Flags().Lookup("device"); f != nil && f.Changed {
		c.HCI.Device, _ = cmd.Flags().GetInt("device")
	}
	return c, c.Validate()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "lelink", version)
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "lelink: %v\n", err)
		os.Exit(1)
	}
}
