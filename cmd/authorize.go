package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/gmailauth/internal/authflow"
	"github.com/teemow/gmailauth/internal/config"
	"github.com/teemow/gmailauth/internal/instrumentation"
	"github.com/teemow/gmailauth/internal/logging"
)

const revokeHint = `Google only issues a refresh token on the first consent for a client.
Revoke the app's access at https://myaccount.google.com/permissions and run authorize again.`

// telemetryFlushTimeout bounds the exporter flush after the flow has ended.
const telemetryFlushTimeout = 5 * time.Second

type authorizeOptions struct {
	manual       bool
	clientID     string
	clientSecret string
	timeout      time.Duration
	listenHost   string
	noBrowser    bool
	debug        bool
}

func newAuthorizeCmd() *cobra.Command {
	var opts authorizeOptions

	cmd := &cobra.Command{
		Use:   "authorize",
		Short: "Run the Gmail OAuth2 consent flow and print the refresh token",
		Long: `Run Google's OAuth2 authorization-code flow for the full Gmail scope
(https://mail.google.com/) and print the refresh token to stdout.

By default a browser is opened and the redirect is received on a loopback
listener bound to a random port. The flow times out after --timeout.

With --manual no listener is started. Open the printed URL, authorize, and
paste the URL of the page you land on (it will fail to load) back into the
terminal.

Client credentials are read from GMAIL_OAUTH_CLIENT_ID and
GMAIL_OAUTH_CLIENT_SECRET unless given as flags.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return runAuthorize(ctx, cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.manual, "manual", false, "Paste the redirect URL instead of running a loopback listener")
	cmd.Flags().StringVar(&opts.clientID, "client-id", "", "Google OAuth client ID. Can also use GMAIL_OAUTH_CLIENT_ID env var.")
	cmd.Flags().StringVar(&opts.clientSecret, "client-secret", "", "Google OAuth client secret. Can also use GMAIL_OAUTH_CLIENT_SECRET env var.")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", config.DefaultTimeout, "How long to wait for the browser redirect. Can also use GMAIL_OAUTH_TIMEOUT env var.")
	cmd.Flags().StringVar(&opts.listenHost, "listen-host", "localhost", "Loopback host for the callback listener. Can also use GMAIL_OAUTH_LISTEN_HOST env var.")
	cmd.Flags().BoolVar(&opts.noBrowser, "no-browser", false, "Print the authorization URL without opening a browser. Can also use GMAIL_OAUTH_NO_BROWSER env var.")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	return cmd
}

// applyFlags overrides environment configuration with explicitly set flags.
func applyFlags(cmd *cobra.Command, opts authorizeOptions, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("client-id") {
		cfg.ClientID = opts.clientID
	}
	if flags.Changed("client-secret") {
		cfg.ClientSecret = opts.clientSecret
	}
	if flags.Changed("timeout") {
		cfg.Timeout = opts.timeout
	}
	if flags.Changed("listen-host") {
		cfg.ListenHost = opts.listenHost
	}
	if flags.Changed("no-browser") {
		cfg.NoBrowser = opts.noBrowser
	}
}

func runAuthorize(ctx context.Context, cmd *cobra.Command, opts authorizeOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	applyFlags(cmd, opts, &cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	stderr := cmd.ErrOrStderr()
	logger := logging.New(stderr, opts.debug)

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	instrConfig.ConsoleWriter = stderr

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		// ctx may already be cancelled; flushing still gets a bounded window.
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), telemetryFlushTimeout)
		defer cancel()
		if err := provider.Shutdown(flushCtx); err != nil {
			logger.Warn("instrumentation shutdown failed", logging.Operation("telemetry_flush"), logging.Err(err))
		}
	}()

	ctrl := authflow.New(cfg.Credentials(), authflow.Config{
		Timeout:        cfg.Timeout,
		ListenHost:     cfg.ListenHost,
		Out:            stderr,
		Input:          authflow.NewReader(cmd.InOrStdin(), stderr),
		DisableBrowser: cfg.NoBrowser,
		Logger:         logger,
		Metrics:        provider.Metrics(),
		Audit:          instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging),
	})

	token, err := ctrl.Authorize(ctx, opts.manual)
	if err != nil {
		if errors.Is(err, authflow.ErrMissingRefreshToken) {
			fmt.Fprintln(stderr, revokeHint)
		}
		return fmt.Errorf("authorization failed: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
