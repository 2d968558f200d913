// Package logging provides structured logging utilities for gmailauth.
//
// All logging goes through log/slog. This package only adds consistent
// attribute names and a constructor for the CLI handler.
//
// # Usage Patterns
//
//	logger := logging.WithOperation(slog.Default(), "authorize")
//	logger.Info("authorization finished",
//	    logging.Mode("automated"),
//	    logging.Status(logging.StatusSuccess))
//
// # Security Considerations
//
// Authorization codes and tokens are never logged. Use SanitizeToken when a
// log line needs to show that a token was present.
package logging
