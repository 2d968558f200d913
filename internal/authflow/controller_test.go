package authflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"golang.org/x/oauth2"

	"github.com/teemow/gmailauth/internal/google"
	"github.com/teemow/gmailauth/internal/instrumentation"
)

func TestAuthorize_AutomatedSuccess(t *testing.T) {
	ex := &stubExchanger{token: &oauth2.Token{AccessToken: "AT", RefreshToken: "RT1"}}
	h := newHarness(t, ex, Config{})

	outcome := h.authorize(context.Background(), false)
	redirect := h.waitRedirect(t)
	assert.Regexp(t, `^http://localhost:\d+$`, redirect)

	status, body := get(t, callbackURL(t, redirect, "/?code=ABC"))
	assert.Equal(t, 200, status)
	assert.Contains(t, body, "<h1>Success!</h1>")
	assert.Contains(t, body, "You can close this window.")

	o := waitOutcome(t, outcome)
	require.NoError(t, o.err)
	assert.Equal(t, "RT1", o.token)
	assert.Equal(t, []string{"ABC"}, ex.exchangedCodes())

	out := h.out.String()
	assert.Contains(t, out, "Opening browser for Gmail authorization...")
	assert.Contains(t, out, "If browser doesn't open, visit this URL:")
	assert.Contains(t, out, ex.AuthorizationURL())
}

func TestAuthorize_AutomatedUserDenied(t *testing.T) {
	ex := &stubExchanger{token: &oauth2.Token{RefreshToken: "RT1"}}
	h := newHarness(t, ex, Config{})

	outcome := h.authorize(context.Background(), false)
	redirect := h.waitRedirect(t)

	status, body := get(t, callbackURL(t, redirect, "/?error=access_denied"))
	assert.Equal(t, 200, status)
	assert.Contains(t, body, "Authorization cancelled")

	o := waitOutcome(t, outcome)
	require.Error(t, o.err)
	assert.ErrorIs(t, o.err, ErrUserCancelled)
	assert.Equal(t, "access_denied", o.err.Error())
	assert.Empty(t, ex.exchangedCodes(), "no exchange after user denial")
}

func TestAuthorize_AutomatedMissingCode(t *testing.T) {
	h := newHarness(t, &stubExchanger{}, Config{})

	outcome := h.authorize(context.Background(), false)
	redirect := h.waitRedirect(t)

	status, body := get(t, callbackURL(t, redirect, "/"))
	assert.Equal(t, 400, status)
	assert.Contains(t, body, "No authorization code")

	o := waitOutcome(t, outcome)
	assert.ErrorIs(t, o.err, ErrMissingAuthorizationCode)
	assert.Equal(t, "No authorization code", o.err.Error())
}

func TestAuthorize_AutomatedIgnoresOtherPaths(t *testing.T) {
	ex := &stubExchanger{token: &oauth2.Token{RefreshToken: "RT2"}}
	h := newHarness(t, ex, Config{})

	outcome := h.authorize(context.Background(), false)
	redirect := h.waitRedirect(t)

	status, _ := get(t, callbackURL(t, redirect, "/favicon.ico?code=NOPE"))
	assert.Equal(t, 404, status)

	select {
	case o := <-outcome:
		t.Fatalf("session ended on a non-root request: %+v", o)
	case <-time.After(50 * time.Millisecond):
	}

	status, _ = get(t, callbackURL(t, redirect, "/?code=ABC"))
	assert.Equal(t, 200, status)

	o := waitOutcome(t, outcome)
	require.NoError(t, o.err)
	assert.Equal(t, "RT2", o.token)
	assert.Equal(t, []string{"ABC"}, ex.exchangedCodes())
}

func TestAuthorize_AutomatedExchangeFailure(t *testing.T) {
	cause := errors.New(`oauth2: "invalid_grant" <bad code>`)
	h := newHarness(t, &stubExchanger{err: cause}, Config{})

	outcome := h.authorize(context.Background(), false)
	redirect := h.waitRedirect(t)

	status, body := get(t, callbackURL(t, redirect, "/?code=ABC"))
	assert.Equal(t, 500, status)
	assert.Contains(t, body, "<h1>Error</h1>")
	assert.Contains(t, body, "&lt;bad code&gt;")
	assert.NotContains(t, body, "<bad code>")

	o := waitOutcome(t, outcome)
	assert.ErrorIs(t, o.err, ErrTokenExchange)
	assert.ErrorIs(t, o.err, cause)
	assert.Equal(t, cause.Error(), o.err.Error())
}

func TestAuthorize_AutomatedMissingRefreshToken(t *testing.T) {
	h := newHarness(t, &stubExchanger{token: &oauth2.Token{AccessToken: "AT"}}, Config{})

	outcome := h.authorize(context.Background(), false)
	redirect := h.waitRedirect(t)

	status, body := get(t, callbackURL(t, redirect, "/?code=ABC"))
	assert.Equal(t, 200, status)
	assert.Contains(t, body, "Success!")

	o := waitOutcome(t, outcome)
	assert.ErrorIs(t, o.err, ErrMissingRefreshToken)
	assert.Equal(t, "No refresh token received", o.err.Error())
	assert.Empty(t, o.token)
}

func TestAuthorize_AutomatedTimeout(t *testing.T) {
	ex := &stubExchanger{token: &oauth2.Token{RefreshToken: "RT1"}}
	h := newHarness(t, ex, Config{Timeout: 50 * time.Millisecond})

	outcome := h.authorize(context.Background(), false)
	redirect := h.waitRedirect(t)

	o := waitOutcome(t, outcome)
	assert.ErrorIs(t, o.err, ErrTimeout)
	assert.Equal(t, "Authorization timed out", o.err.Error())
	assert.Contains(t, h.out.String(), "Authorization timed out after 50ms")

	// The listener is gone once the session has ended.
	_, err := net.DialTimeout("tcp", listenAddr(t, redirect), time.Second)
	assert.Error(t, err)
	assert.Empty(t, ex.exchangedCodes())
}

func TestAuthorize_AutomatedListenerBindFailure(t *testing.T) {
	h := newHarness(t, &stubExchanger{}, Config{})
	bindErr := errors.New("listen tcp 127.0.0.1:0: bind: address already in use")
	h.ctrl.listen = func(network, address string) (net.Listener, error) {
		assert.Equal(t, "tcp", network)
		assert.Equal(t, "127.0.0.1:0", address)
		return nil, bindErr
	}

	token, err := h.ctrl.Authorize(context.Background(), false)
	assert.Empty(t, token)
	assert.ErrorIs(t, err, ErrListenerBind)
	assert.ErrorIs(t, err, bindErr)
	assert.Empty(t, h.redirects, "no exchanger is created without a listener")
}

func TestAuthorize_AutomatedContextCancelled(t *testing.T) {
	h := newHarness(t, &stubExchanger{}, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	outcome := h.authorize(ctx, false)
	redirect := h.waitRedirect(t)
	cancel()

	o := waitOutcome(t, outcome)
	assert.ErrorIs(t, o.err, ErrCancelled)
	assert.ErrorIs(t, o.err, context.Canceled)

	_, err := net.DialTimeout("tcp", listenAddr(t, redirect), time.Second)
	assert.Error(t, err)
}

func TestAuthorize_RejectsConcurrentAttempt(t *testing.T) {
	ex := &stubExchanger{token: &oauth2.Token{RefreshToken: "RT1"}}
	h := newHarness(t, ex, Config{})

	outcome := h.authorize(context.Background(), false)
	redirect := h.waitRedirect(t)

	_, err := h.ctrl.Authorize(context.Background(), true)
	assert.ErrorIs(t, err, ErrAuthorizationInProgress)

	get(t, callbackURL(t, redirect, "/?code=ABC"))
	o := waitOutcome(t, outcome)
	require.NoError(t, o.err)

	// The controller is reusable once the first attempt has ended.
	second := h.authorize(context.Background(), false)
	redirect = h.waitRedirect(t)
	get(t, callbackURL(t, redirect, "/?code=DEF"))
	o = waitOutcome(t, second)
	require.NoError(t, o.err)
	assert.Equal(t, []string{"ABC", "DEF"}, ex.exchangedCodes())
}

func TestAuthorize_OpensBrowser(t *testing.T) {
	ex := &stubExchanger{token: &oauth2.Token{RefreshToken: "RT1"}}
	opened := make(chan string, 1)

	h := newHarness(t, ex, Config{})
	h.ctrl.cfg.DisableBrowser = false
	h.ctrl.cfg.OpenBrowser = func(url string) error {
		opened <- url
		return errors.New("no display")
	}

	outcome := h.authorize(context.Background(), false)
	redirect := h.waitRedirect(t)

	select {
	case url := <-opened:
		assert.Equal(t, ex.AuthorizationURL(), url)
	case <-time.After(testWait):
		t.Fatal("browser was not opened")
	}

	// A browser failure does not end the session.
	get(t, callbackURL(t, redirect, "/?code=ABC"))
	o := waitOutcome(t, outcome)
	require.NoError(t, o.err)
}

func TestAuthorize_RecordsMetricsAndAudit(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := instrumentation.NewMetrics(mp.Meter("test"))
	require.NoError(t, err)

	var audit bytes.Buffer
	h := newHarness(t, &stubExchanger{token: &oauth2.Token{AccessToken: "AT"}}, Config{
		Input:   &fakeReader{line: "http://localhost:1/?code=XYZ"},
		Metrics: metrics,
		Audit:   instrumentation.NewAuditLogger(slog.New(slog.NewJSONHandler(&audit, nil))),
	})

	_, err = h.ctrl.Authorize(context.Background(), true)
	require.ErrorIs(t, err, ErrMissingRefreshToken)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := false
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "gmailauth_authorizations_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			require.Len(t, sum.DataPoints, 1)
			dp := sum.DataPoints[0]
			mode, _ := dp.Attributes.Value(attribute.Key("mode"))
			reason, _ := dp.Attributes.Value(attribute.Key("reason"))
			assert.Equal(t, "manual", mode.AsString())
			assert.Equal(t, "missing_refresh_token", reason.AsString())
			assert.Equal(t, int64(1), dp.Value)
			found = true
		}
	}
	assert.True(t, found, "authorization counter not recorded")

	var record map[string]any
	require.NoError(t, json.Unmarshal(audit.Bytes(), &record))
	assert.Equal(t, "authorization_failed", record["msg"])
	assert.Equal(t, "missing_refresh_token", record["reason"])
	assert.Equal(t, "No refresh token received", record["error"])
	assert.NotEmpty(t, record["session_id"])
}

func TestNew_Defaults(t *testing.T) {
	c := New(google.Credentials{ClientID: "id", ClientSecret: "secret"}, Config{})

	assert.Equal(t, DefaultTimeout, c.cfg.Timeout)
	assert.Equal(t, "localhost", c.cfg.ListenHost)
	assert.NotNil(t, c.cfg.Out)
	assert.NotNil(t, c.cfg.Input)
	assert.NotNil(t, c.cfg.OpenBrowser)
	assert.NotNil(t, c.cfg.Logger)

	ex := c.cfg.NewExchanger(c.creds, "http://localhost:8080")
	assert.Contains(t, ex.AuthorizationURL(), "redirect_uri=http%3A%2F%2Flocalhost%3A8080")
}

type callbackResponse struct {
	status int
	body   string
	err    error
}

// getAsync issues a callback request that may block on a slow exchange.
func getAsync(target string) <-chan callbackResponse {
	ch := make(chan callbackResponse, 1)
	go func() {
		client := &http.Client{Timeout: testWait}
		resp, err := client.Get(target)
		if err != nil {
			ch <- callbackResponse{err: err}
			return
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		ch <- callbackResponse{status: resp.StatusCode, body: string(body), err: err}
	}()
	return ch
}

func waitExchangeStarted(t *testing.T, ex *stubExchanger) {
	t.Helper()
	select {
	case <-ex.started:
	case <-time.After(testWait):
		t.Fatal("token exchange did not start")
	}
}

func TestAuthorize_TimeoutDuringExchangeKeepsToken(t *testing.T) {
	ex := newSlowExchanger(&oauth2.Token{RefreshToken: "RT1"})
	h := newHarness(t, ex, Config{Timeout: 100 * time.Millisecond})

	outcome := h.authorize(context.Background(), false)
	redirect := h.waitRedirect(t)

	response := getAsync(callbackURL(t, redirect, "/?code=ABC"))
	waitExchangeStarted(t, ex)

	// Well past the timeout the claimed session is still waiting on the exchange.
	select {
	case o := <-outcome:
		t.Fatalf("session ended while the exchange was in flight: %+v", o)
	case <-time.After(300 * time.Millisecond):
	}
	close(ex.release)

	resp := <-response
	require.NoError(t, resp.err)
	assert.Equal(t, 200, resp.status)
	assert.Contains(t, resp.body, "Success!")

	o := waitOutcome(t, outcome)
	require.NoError(t, o.err)
	assert.Equal(t, "RT1", o.token)
	assert.NotContains(t, h.out.String(), "timed out")
}

func TestAuthorize_CancelDuringExchangeKeepsToken(t *testing.T) {
	ex := newSlowExchanger(&oauth2.Token{RefreshToken: "RT1"})
	h := newHarness(t, ex, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	outcome := h.authorize(ctx, false)
	redirect := h.waitRedirect(t)

	response := getAsync(callbackURL(t, redirect, "/?code=ABC"))
	waitExchangeStarted(t, ex)
	cancel()

	select {
	case o := <-outcome:
		t.Fatalf("cancellation overtook the claimed callback: %+v", o)
	case <-time.After(100 * time.Millisecond):
	}
	close(ex.release)

	resp := <-response
	require.NoError(t, resp.err)
	assert.Equal(t, 200, resp.status)

	o := waitOutcome(t, outcome)
	require.NoError(t, o.err)
	assert.Equal(t, "RT1", o.token)
}
