package main

import (
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "partnerauth",
	Short: "OAuth federation, user sync and session reconciliation",
	Long: `partnerauth signs users in through Google and LinkedIn, hands the client a
bridging JWT for the managed auth service, keeps local user records in step
with managed sessions and resolves conflicts with the legacy PHP session.

All settings come from PARTNERAUTH_* environment variables.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}
