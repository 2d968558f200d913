package authflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/teemow/gmailauth/internal/instrumentation"
	"github.com/teemow/gmailauth/internal/logging"
)

// shutdownGrace bounds how long in-flight callback responses may drain after
// the session has ended.
const shutdownGrace = 5 * time.Second

type sessionState int

const (
	stateStarting sessionState = iota
	stateListening
	// stateCompleting means a root callback owns the session. The timer is
	// stopped and only that callback may finish the session.
	stateCompleting
	stateDone
)

func (s sessionState) String() string {
	switch s {
	case stateStarting:
		return "starting"
	case stateListening:
		return "listening"
	case stateCompleting:
		return "completing"
	case stateDone:
		return "done"
	default:
		return "unknown"
	}
}

// session is one automated authorization attempt. Its timer, listener and
// server are owned by the session and released by cleanup exactly once.
type session struct {
	ctrl   *Controller
	ctx    context.Context
	logger *slog.Logger

	// Set before the server starts serving, read-only afterwards.
	exchanger   Exchanger
	redirectURI string

	mu       sync.Mutex
	state    sessionState
	listener net.Listener
	server   *http.Server
	timer    *time.Timer
	cleanups int

	// callbackMu serializes root-path callbacks so a code is redeemed at most once.
	callbackMu sync.Mutex

	result chan Result
}

func newSession(c *Controller, ctx context.Context, logger *slog.Logger) *session {
	return &session{
		ctrl:   c,
		ctx:    ctx,
		logger: logger,
		state:  stateStarting,
		result: make(chan Result, 1),
	}
}

// run starts the session and blocks until it reaches a terminal state.
func (s *session) run() Result {
	s.start()

	select {
	case res := <-s.result:
		return res
	case <-s.ctx.Done():
		err := s.ctx.Err()
		s.interrupt(failed(KindCancelled, err.Error(), err), func() {
			s.logger.Info("authorization cancelled", logging.Err(err))
		})
		// Whichever trigger won publishes the only result. A claimed
		// callback finishes on its own once the exchange returns.
		return <-s.result
	}
}

// start binds the listener, announces the authorization URL and arms the
// timeout. A bind failure finishes the session immediately.
func (s *session) start() {
	addr := net.JoinHostPort(s.ctrl.cfg.ListenHost, "0")
	ln, err := s.ctrl.listen("tcp", addr)
	if err != nil {
		s.finish(failed(KindListenerBind, err.Error(), err), func() {
			s.logger.Error("failed to bind callback listener", slog.String("address", addr), logging.Err(err))
		})
		return
	}

	port := ln.Addr().(*net.TCPAddr).Port
	s.redirectURI = fmt.Sprintf("http://localhost:%d", port)
	s.exchanger = s.ctrl.cfg.NewExchanger(s.ctrl.creds, s.redirectURI)
	authURL := s.exchanger.AuthorizationURL()

	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	out := s.ctrl.cfg.Out
	fmt.Fprintln(out, "Opening browser for Gmail authorization...")
	fmt.Fprintln(out, "If browser doesn't open, visit this URL:")
	fmt.Fprintln(out, authURL)

	s.mu.Lock()
	s.listener = ln
	s.server = srv
	s.state = stateListening
	s.timer = time.AfterFunc(s.ctrl.cfg.Timeout, s.onTimeout)
	s.mu.Unlock()

	s.logger.Debug("callback listener started", logging.Port(port), slog.String("redirect_uri", s.redirectURI))

	go s.serve(srv, ln)
	s.ctrl.openBrowser(authURL, s.logger)
}

func (s *session) serve(srv *http.Server, ln net.Listener) {
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return
	}
	// After cleanup closed the listener this is a no-op.
	s.interrupt(failed(KindListenerBind, err.Error(), err), func() {
		s.logger.Error("callback listener failed", logging.Err(err))
	})
}

func (s *session) onTimeout() {
	timeout := s.ctrl.cfg.Timeout
	s.interrupt(failed(KindTimeout, msgTimedOut, nil), func() {
		fmt.Fprintf(s.ctrl.cfg.Out, "Authorization timed out after %s\n", humanDuration(timeout))
		s.logger.Warn("authorization timed out", logging.Duration(timeout))
	})
}

// finish moves the session to stateDone, runs cleanup and publishes res.
// Only the first caller wins; later calls return false and do nothing.
// announce runs for the winner after cleanup and before the result is published.
func (s *session) finish(res Result, announce func()) bool {
	return s.transition(res, announce, true)
}

func (s *session) transition(res Result, announce func(), claimed bool) bool {
	s.mu.Lock()
	if s.state == stateDone || (s.state == stateCompleting && !claimed) {
		s.mu.Unlock()
		return false
	}
	prev := s.state
	s.state = stateDone
	s.cleanupLocked()
	s.mu.Unlock()

	s.logger.Debug("session finished",
		slog.String("from", prev.String()),
		slog.Bool("success", res.Success),
		slog.String("kind", string(res.Kind)))

	if announce != nil {
		announce()
	}
	s.result <- res
	return true
}

// interrupt finishes the session from outside a callback: timeout, caller
// cancellation or a serve failure. It does nothing once a callback has
// claimed the session.
func (s *session) interrupt(res Result, announce func()) bool {
	return s.transition(res, announce, false)
}

// claim hands the session to the calling root request. The timer is stopped
// so a slow token exchange cannot be overtaken by the timeout. It fails if the
// session is not listening.
func (s *session) claim() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateListening {
		return false
	}
	s.state = stateCompleting
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return true
}

func (s *session) done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateDone
}

// cleanup releases the session resources. Safe to call any number of times.
func (s *session) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked()
}

func (s *session) cleanupLocked() {
	if s.timer == nil && s.listener == nil && s.server == nil {
		return
	}
	s.cleanups++

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.listener != nil {
		// Closing the listener stops new connections right away.
		_ = s.listener.Close()
		s.listener = nil
	}
	if s.server != nil {
		// Shutdown waits for active handlers, including the one that may be
		// calling us, so it must not block here.
		srv := s.server
		s.server = nil
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}
}

// humanDuration formats whole minutes and seconds in words for the timeout
// notice, e.g. "2 minutes". Other durations use the Duration format.
func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int64(d/time.Minute), "minute")
	case d >= time.Second && d%time.Second == 0:
		return plural(int64(d/time.Second), "second")
	default:
		return d.String()
	}
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// recordRequest feeds the callback request metric.
func (s *session) recordRequest(path string, status int) {
	s.ctrl.cfg.Metrics.RecordCallbackRequest(s.ctx, path, status)
	s.logger.Debug("callback request", logging.Path(path), slog.Int("status", status))
}

var _ http.Handler = (*session)(nil)

// modeAutomated is used for exchange metrics from the callback handler.
const modeAutomated = instrumentation.ModeAutomated
