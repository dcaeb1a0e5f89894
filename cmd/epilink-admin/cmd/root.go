// Package cmd implements the epilink-admin subcommands.
package cmd

import (
	"github.com/spf13/cobra"
)

var version string

// Global flags
var (
	flagGuildsFile string
	flagVerbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "epilink-admin",
	Short: "EpiLink role engine administration CLI",
	Long: `epilink-admin manages the EpiLink role computation engine.

It validates guild and rule configuration before deployment, and can
invalidate a user's cached rule results and schedule a full role
resynchronization across all monitored guilds.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the CLI version from build flags.
func SetVersion(v string) {
	version = v
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagGuildsFile, "guilds-file", "", "Path to the guilds YAML file (default: EPILINK_GUILDS_FILE)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(checkConfigCmd)
	rootCmd.AddCommand(invalidateCmd)
}
