package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quillhq/quill/internal/config"
)

// Shared CLI flags (used across multiple command files)
var (
	cfgFile   string
	verbose   bool
	noOverlay bool
)

// HostConfig holds the loaded host configuration (set by main)
var HostConfig *config.Config

// SetupRootCmd configures the root command with all subcommands and flags
func SetupRootCmd(c *config.Config) *cobra.Command {
	HostConfig = c

	rootCmd := &cobra.Command{
		Use:   "quill",
		Short: "Quill - reply suggestions for your desktop messenger",
		Long: `Quill watches the conversation you have open in your messenger and
floats short reply suggestions next to it. Click one to insert it into
the compose field.

Just type 'quill' to start the host. Activate or close the overlay from
the menu it serves, or over the local API.`,
		Run: func(cmd *cobra.Command, args []string) {
			RunHost()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: <data-dir>/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Root-only flags
	rootCmd.Flags().BoolVar(&noOverlay, "no-overlay", false, "start the host without bringing up the overlay")

	// Add commands
	rootCmd.AddCommand(AgentCmd())
	rootCmd.AddCommand(DraftCmd())
	rootCmd.AddCommand(DoctorCmd())

	return rootCmd
}

// hostConfig returns the active configuration, honoring --config.
func hostConfig() *config.Config {
	if cfgFile != "" {
		c, err := config.LoadFrom(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot load config %s: %v\n", cfgFile, err)
			os.Exit(1)
		}
		return c
	}
	if HostConfig != nil {
		return HostConfig
	}
	c, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot load config: %v\n", err)
		os.Exit(1)
	}
	return c
}
