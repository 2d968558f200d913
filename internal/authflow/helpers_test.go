package authflow

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/teemow/gmailauth/internal/google"
)

const testWait = 5 * time.Second

// stubExchanger stands in for the Google token endpoint. With a non-nil
// release channel ExchangeCode signals started and blocks until release is
// closed, ignoring the context like a slow token endpoint would.
type stubExchanger struct {
	token *oauth2.Token
	err   error

	started chan struct{}
	release chan struct{}

	mu    sync.Mutex
	codes []string
}

func newSlowExchanger(token *oauth2.Token) *stubExchanger {
	return &stubExchanger{
		token:   token,
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (s *stubExchanger) AuthorizationURL() string {
	return "https://accounts.google.com/o/oauth2/auth?client_id=test&access_type=offline"
}

func (s *stubExchanger) ExchangeCode(_ context.Context, code string) (*oauth2.Token, error) {
	s.mu.Lock()
	s.codes = append(s.codes, code)
	s.mu.Unlock()
	if s.release != nil {
		s.started <- struct{}{}
		<-s.release
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

func (s *stubExchanger) exchangedCodes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.codes...)
}

// fakeReader returns a canned line. A non-nil block channel makes it wait.
type fakeReader struct {
	line   string
	err    error
	block  chan struct{}
	prompt string
}

func (f *fakeReader) ReadLine(prompt string) (string, error) {
	f.prompt = prompt
	if f.block != nil {
		<-f.block
	}
	return f.line, f.err
}

type testHarness struct {
	ctrl      *Controller
	out       *bytes.Buffer
	redirects chan string
}

func newHarness(t *testing.T, ex Exchanger, cfg Config) *testHarness {
	t.Helper()

	h := &testHarness{
		out:       &bytes.Buffer{},
		redirects: make(chan string, 4),
	}

	if cfg.ListenHost == "" {
		cfg.ListenHost = "127.0.0.1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = testWait
	}
	cfg.Out = h.out
	cfg.DisableBrowser = true
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cfg.NewExchanger = func(creds google.Credentials, redirectURI string) Exchanger {
		require.Equal(t, "client-id", creds.ClientID)
		require.Equal(t, "client-secret", creds.ClientSecret)
		h.redirects <- redirectURI
		return ex
	}

	h.ctrl = New(google.Credentials{ClientID: "client-id", ClientSecret: "client-secret"}, cfg)
	return h
}

type authOutcome struct {
	token string
	err   error
}

func (h *testHarness) authorize(ctx context.Context, manual bool) <-chan authOutcome {
	ch := make(chan authOutcome, 1)
	go func() {
		token, err := h.ctrl.Authorize(ctx, manual)
		ch <- authOutcome{token, err}
	}()
	return ch
}

// waitRedirect returns the redirect URI of the session that just bound.
func (h *testHarness) waitRedirect(t *testing.T) string {
	t.Helper()
	select {
	case r := <-h.redirects:
		return r
	case <-time.After(testWait):
		t.Fatal("listener did not bind in time")
		return ""
	}
}

func waitOutcome(t *testing.T, ch <-chan authOutcome) authOutcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(testWait):
		t.Fatal("authorization did not finish in time")
		return authOutcome{}
	}
}

// callbackURL points at the bound loopback listener. The redirect URI says
// localhost; tests dial the literal address the listener is bound to.
func callbackURL(t *testing.T, redirectURI, pathAndQuery string) string {
	t.Helper()
	return "http://" + listenAddr(t, redirectURI) + pathAndQuery
}

func listenAddr(t *testing.T, redirectURI string) string {
	t.Helper()
	u, err := url.Parse(redirectURI)
	require.NoError(t, err)
	return net.JoinHostPort("127.0.0.1", u.Port())
}

func get(t *testing.T, target string) (int, string) {
	t.Helper()
	client := &http.Client{Timeout: testWait}
	resp, err := client.Get(target)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}
