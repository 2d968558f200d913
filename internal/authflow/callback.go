package authflow

import (
	"bytes"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
)

var pageTemplate = template.Must(template.New("page").Parse(
	`<html><body><h1>{{.Title}}</h1>{{if .Message}}<p>{{.Message}}</p>{{end}}</body></html>`))

type page struct {
	Title   string
	Message string
}

var (
	pageCancelled = page{Title: "Authorization cancelled"}
	pageNoCode    = page{Title: "No authorization code"}
	pageSuccess   = page{Title: "Success!", Message: "You can close this window."}
	pageFinished  = page{Title: "Authorization already finished", Message: "You can close this window."}
)

func errorPage(msg string) page {
	return page{Title: "Error", Message: msg}
}

// ServeHTTP answers the provider redirect. Only "/" is meaningful; anything
// else (favicon requests, probes) gets a bare 404 and leaves the session alone.
func (s *session) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		w.WriteHeader(http.StatusNotFound)
		s.recordRequest(r.URL.Path, http.StatusNotFound)
		return
	}

	s.callbackMu.Lock()
	defer s.callbackMu.Unlock()

	// The first root request owns the outcome; anything after it, including
	// requests on keep-alive connections that outlive the listener, is told
	// the session is over.
	if !s.claim() {
		s.render(w, r, http.StatusGone, pageFinished)
		return
	}

	status, p, res := s.handleCallback(r.URL.Query())
	s.render(w, r, status, p)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	// A claimed session can only be finished from here.
	s.finish(res, nil)
}

// handleCallback maps the redirect query to a response and a terminal result.
func (s *session) handleCallback(q url.Values) (int, page, Result) {
	if errParam := q.Get("error"); errParam != "" {
		s.logger.Info("authorization denied by user", "provider_error", errParam)
		return http.StatusOK, pageCancelled, failed(KindUserCancelled, errParam, nil)
	}

	code := q.Get("code")
	if code == "" {
		return http.StatusBadRequest, pageNoCode, failed(KindMissingAuthorizationCode, msgNoCode, nil)
	}

	res := s.ctrl.exchange(s.ctx, s.exchanger, modeAutomated, code, s.logger)
	if !res.Success {
		return http.StatusInternalServerError, errorPage(res.Err), res
	}
	return http.StatusOK, pageSuccess, res
}

func (s *session) render(w http.ResponseWriter, r *http.Request, status int, p page) {
	var body bytes.Buffer
	if err := pageTemplate.Execute(&body, p); err != nil {
		// The template is static; this only fails on a broken writer.
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		s.recordRequest(r.URL.Path, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(body.Len()))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(body.Bytes())
	s.recordRequest(r.URL.Path, status)
}
