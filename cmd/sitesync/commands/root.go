package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	configPath string
	tokenFlag  string
	userFlag   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sitesync",
	Short: "sitesync - construction project sync client",
	Long: `sitesync keeps a local copy of construction project data (budget,
inventory, schedule, team, documents, uploads and chat) in step with the
project API, and follows live changes over a realtime channel.

This CLI is a diagnostic front end to the sync engine.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute runs the root command. Cobra's own error output is silenced;
// commands print formatted errors through the printer package.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to sitesync.yml (environment only if omitted)")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "API bearer token (overrides SITESYNC_API_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&userFlag, "user", "", "User id for the session (enables the user channel)")
}
