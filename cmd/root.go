package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the gmailauth application
var rootCmd = &cobra.Command{
	Use:   "gmailauth",
	Short: "Obtains a Gmail OAuth2 refresh token",
	Long: `gmailauth walks through Google's OAuth2 consent flow for Gmail and prints
the resulting refresh token.

It can run in two modes:
  - Automated (default): opens a browser and receives the redirect on a
    short-lived loopback listener
  - Manual: prints the authorization URL and reads the redirect URL you paste`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "gmailauth version %s\n" .Version}}`)

	// If no subcommand is provided, run the authorize command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "authorize")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newAuthorizeCmd())
	rootCmd.AddCommand(newVersionCmd())
}
