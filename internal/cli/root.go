// Package cli provides the command-line interface for clawsync.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/liteclaw/clawsync/internal/cli/commands"
	"github.com/liteclaw/clawsync/internal/config"
	"github.com/liteclaw/clawsync/internal/version"
)

// NewRootCommand builds the clawsync command tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "clawsync",
		Short: "clawsync - Gateway operator client",
		Long: `clawsync connects to a Gateway as an operator: chat with the agent,
switch sessions and models, and advertise device capabilities.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			if path != "" {
				return os.Setenv("CLAWSYNC_CONFIG_PATH", path)
			}
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			if !isConfigured() {
				showFirstRunHint(cmd)
			}
			_ = cmd.Help()
		},
	}

	rootCmd.AddCommand(commands.NewTuiCommand())
	rootCmd.AddCommand(commands.NewSessionsCommand())
	rootCmd.AddCommand(commands.NewModelsCommand())
	rootCmd.AddCommand(commands.NewLoginCommand())
	rootCmd.AddCommand(commands.NewLogoutCommand())
	rootCmd.AddCommand(commands.NewStatusCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is ~/.clawsync/clawsync.json)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}

func isConfigured() bool {
	_, err := os.Stat(config.ConfigPath())
	return err == nil
}

func showFirstRunHint(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(out, "")
	_, _ = fmt.Fprintf(out, "   No config found at %s.\n", config.ConfigPath())
	_, _ = fmt.Fprintln(out, "   Run 'clawsync login --host <HOST>' or 'clawsync tui --setup-code <CODE>' to get started.")
	_, _ = fmt.Fprintln(out, "")
}
