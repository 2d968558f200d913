package authflow

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/teemow/gmailauth/internal/google"
	"github.com/teemow/gmailauth/internal/instrumentation"
	"github.com/teemow/gmailauth/internal/logging"
)

const manualPrompt = "Paste redirect URL: "

// LineReader reads one line of user input after showing prompt.
type LineReader interface {
	ReadLine(prompt string) (string, error)
}

// PromptReader prompts on a writer and reads lines from a stream.
type PromptReader struct {
	out io.Writer
	in  *bufio.Reader
}

// NewStdinReader returns a PromptReader that prompts on out and reads os.Stdin.
func NewStdinReader(out io.Writer) *PromptReader {
	return NewReader(os.Stdin, out)
}

// NewReader returns a LineReader over an arbitrary input stream.
func NewReader(in io.Reader, out io.Writer) *PromptReader {
	return &PromptReader{out: out, in: bufio.NewReader(in)}
}

// ReadLine prints prompt and returns the next line without its line ending.
// A final line without a trailing newline is returned as is.
func (r *PromptReader) ReadLine(prompt string) (string, error) {
	fmt.Fprint(r.out, prompt)

	line, err := r.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// runManual performs the paste-the-redirect-URL flow. It has no timeout; it
// waits for input until the context ends.
func (c *Controller) runManual(ctx context.Context, logger *slog.Logger) Result {
	ex := c.cfg.NewExchanger(c.creds, google.ManualRedirectURI)

	out := c.cfg.Out
	fmt.Fprintln(out, "Visit this URL to authorize:")
	fmt.Fprintln(out, ex.AuthorizationURL())
	fmt.Fprintln(out)
	fmt.Fprintln(out, "After authorizing, you'll be redirected to a page that won't load.")
	fmt.Fprintln(out, "Copy the URL from your browser's address bar and paste it here.")
	fmt.Fprintln(out)

	input, err := c.readLine(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return failed(KindCancelled, ctxErr.Error(), ctxErr)
		}
		logger.Warn("failed to read redirect URL", logging.Err(err))
		return failed(KindInput, err.Error(), err)
	}

	code := codeFromRedirectURL(input)
	if code == "" {
		return failed(KindMissingAuthorizationCode, msgNoCodeInURL, nil)
	}
	return c.exchange(ctx, ex, instrumentation.ModeManual, code, logger)
}

// readLine reads from the configured LineReader without outliving ctx.
// The reader goroutine is abandoned on cancellation; stdin cannot be interrupted.
func (c *Controller) readLine(ctx context.Context) (string, error) {
	type lineResult struct {
		line string
		err  error
	}
	ch := make(chan lineResult, 1)
	go func() {
		line, err := c.cfg.Input.ReadLine(manualPrompt)
		ch <- lineResult{line, err}
	}()

	select {
	case r := <-ch:
		return r.line, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// codeFromRedirectURL extracts the code query parameter from a pasted URL.
func codeFromRedirectURL(input string) string {
	u, err := url.Parse(strings.TrimSpace(input))
	if err != nil {
		return ""
	}
	return u.Query().Get("code")
}
