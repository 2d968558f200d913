package authflow

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"

	"github.com/teemow/gmailauth/internal/browser"
	"github.com/teemow/gmailauth/internal/google"
	"github.com/teemow/gmailauth/internal/instrumentation"
	"github.com/teemow/gmailauth/internal/logging"
)

// DefaultTimeout bounds the automated flow.
const DefaultTimeout = 2 * time.Minute

// Exchanger is the token-exchange client for one redirect URI.
type Exchanger interface {
	AuthorizationURL() string
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)
}

// ExchangerFactory binds credentials to a redirect URI. It is called once per
// session because the redirect URI is only known after the listener binds.
type ExchangerFactory func(creds google.Credentials, redirectURI string) Exchanger

// BrowserOpener opens a URL in a browser. Errors are logged and otherwise ignored.
type BrowserOpener func(url string) error

// Config configures a Controller. Zero values select the defaults.
type Config struct {
	// Timeout bounds the automated flow (default: 2m).
	Timeout time.Duration

	// ListenHost is the host the callback listener binds to (default: localhost).
	ListenHost string

	// Out receives the authorization URL and status lines (default: os.Stdout).
	Out io.Writer

	// Input reads the pasted redirect URL in manual mode (default: stdin).
	Input LineReader

	// OpenBrowser launches the browser (default: browser.Open).
	OpenBrowser BrowserOpener

	// DisableBrowser skips the browser launch; the URL is still printed.
	DisableBrowser bool

	// NewExchanger creates the token-exchange client (default: google.NewExchanger).
	NewExchanger ExchangerFactory

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
	Audit   *instrumentation.AuditLogger
}

// Controller runs authorization attempts for one set of client credentials.
type Controller struct {
	creds google.Credentials
	cfg   Config

	// listen binds the callback listener; replaced in tests.
	listen func(network, address string) (net.Listener, error)

	inFlight atomic.Bool
}

// New returns a Controller for the given credentials.
func New(creds google.Credentials, cfg Config) *Controller {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ListenHost == "" {
		cfg.ListenHost = "localhost"
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Input == nil {
		cfg.Input = NewStdinReader(cfg.Out)
	}
	if cfg.OpenBrowser == nil {
		cfg.OpenBrowser = browser.Open
	}
	if cfg.NewExchanger == nil {
		cfg.NewExchanger = func(creds google.Credentials, redirectURI string) Exchanger {
			return google.NewExchanger(creds, redirectURI)
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Controller{
		creds:  creds,
		cfg:    cfg,
		listen: net.Listen,
	}
}

// Authorize runs one authorization attempt and returns the refresh token.
//
// manual selects the paste-the-URL flow instead of the loopback listener.
// Failures are returned as *Error; nothing is retried. Only one attempt may
// run per Controller at a time; a concurrent call fails with
// ErrAuthorizationInProgress.
func (c *Controller) Authorize(ctx context.Context, manual bool) (string, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return "", &Error{Kind: KindInProgress, Message: "Authorization already in progress"}
	}
	defer c.inFlight.Store(false)

	mode := instrumentation.ModeAutomated
	if manual {
		mode = instrumentation.ModeManual
	}
	sessionID := uuid.NewString()
	logger := logging.WithSession(logging.WithOperation(c.cfg.Logger, "authorize"), sessionID).
		With(logging.Mode(mode))

	ctx, span := instrumentation.StartAuthorizationSpan(ctx, mode, sessionID)
	defer span.End()
	attempt := instrumentation.NewAttempt(mode, sessionID).WithSpanContext(ctx)

	logger.Debug("authorization started")

	var res Result
	if manual {
		res = c.runManual(ctx, logger)
	} else {
		res = newSession(c, ctx, logger).run()
	}

	token, err := res.refreshToken()
	span.SetAttributes(attribute.Bool(instrumentation.SpanAttrRefreshToken, res.RefreshToken != ""))

	reason := ""
	if e, ok := err.(*Error); ok {
		reason = string(e.Kind)
		span.SetAttributes(attribute.String(instrumentation.SpanAttrReason, reason))
	}
	attempt.Complete(err == nil, reason, err)
	c.cfg.Metrics.RecordAuthorization(ctx, mode, attempt.Result(), reason, attempt.Duration)
	c.cfg.Audit.LogAttempt(attempt)

	if err != nil {
		instrumentation.SetSpanError(span, err)
		logger.Debug("authorization failed",
			logging.Status(logging.StatusError), logging.Err(err), logging.Duration(attempt.Duration))
		return "", err
	}

	instrumentation.SetSpanSuccess(span)
	logger.Debug("authorization succeeded",
		logging.Status(logging.StatusSuccess),
		slog.String("refresh_token", logging.SanitizeToken(token)),
		logging.Duration(attempt.Duration))
	return token, nil
}

// exchange redeems code and converts the outcome into a Result.
func (c *Controller) exchange(ctx context.Context, ex Exchanger, mode, code string, logger *slog.Logger) Result {
	ctx, span := instrumentation.StartExchangeSpan(ctx, mode)
	defer span.End()

	start := time.Now()
	tok, err := ex.ExchangeCode(ctx, code)
	if err != nil {
		c.cfg.Metrics.RecordTokenExchange(ctx, mode, instrumentation.ResultFailure, time.Since(start))
		instrumentation.SetSpanError(span, err)
		logger.Warn("token exchange failed", logging.Err(err))
		return failed(KindTokenExchange, err.Error(), err)
	}

	c.cfg.Metrics.RecordTokenExchange(ctx, mode, instrumentation.ResultSuccess, time.Since(start))
	instrumentation.SetSpanSuccess(span)

	refreshToken := ""
	if tok != nil {
		refreshToken = tok.RefreshToken
	}
	span.SetAttributes(attribute.Bool(instrumentation.SpanAttrRefreshToken, refreshToken != ""))
	return succeeded(refreshToken)
}

func (c *Controller) openBrowser(url string, logger *slog.Logger) {
	if c.cfg.DisableBrowser {
		return
	}
	if err := c.cfg.OpenBrowser(url); err != nil {
		logger.Debug("failed to open browser", logging.Err(err))
	}
}
