package authflow

// Messages carried by failed results.
const (
	msgAuthorizationFailed = "Authorization failed"
	msgNoRefreshToken      = "No refresh token received"
	msgNoCode              = "No authorization code"
	msgNoCodeInURL         = "No authorization code found in URL"
	msgTimedOut            = "Authorization timed out"
)

// Result is the terminal outcome of one authorization session.
// Success does not guarantee a refresh token; the controller checks that.
type Result struct {
	Success      bool
	RefreshToken string
	Err          string
	Kind         ErrorKind

	cause error
}

func succeeded(refreshToken string) Result {
	return Result{Success: true, RefreshToken: refreshToken}
}

func failed(kind ErrorKind, msg string, cause error) Result {
	return Result{Kind: kind, Err: msg, cause: cause}
}

// refreshToken validates the result and returns the token or an *Error.
func (r Result) refreshToken() (string, error) {
	if !r.Success {
		msg := r.Err
		if msg == "" {
			msg = msgAuthorizationFailed
		}
		kind := r.Kind
		if kind == "" {
			kind = KindAuthorizationFailed
		}
		return "", &Error{Kind: kind, Message: msg, Err: r.cause}
	}
	if r.RefreshToken == "" {
		return "", &Error{Kind: KindMissingRefreshToken, Message: msgNoRefreshToken}
	}
	return r.RefreshToken, nil
}
