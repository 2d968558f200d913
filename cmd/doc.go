// Package cmd implements the command-line interface for gmailauth.
//
// This package provides the following commands:
//   - authorize: Run the OAuth2 consent flow and print the refresh token
//   - version: Display version information
//
// The authorize command is the default command when no subcommand is specified.
// Status output goes to stderr so stdout carries only the refresh token.
package cmd
