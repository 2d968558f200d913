package authflow

// ErrorKind classifies why an authorization attempt failed.
// Kinds are stable strings and double as metric labels.
type ErrorKind string

const (
	// KindUserCancelled means the provider redirected back with an error
	// parameter, usually access_denied.
	KindUserCancelled ErrorKind = "user_cancelled"

	// KindMissingAuthorizationCode means the redirect carried no code.
	KindMissingAuthorizationCode ErrorKind = "missing_authorization_code"

	// KindTokenExchange means redeeming the code at the token endpoint failed.
	KindTokenExchange ErrorKind = "token_exchange"

	// KindListenerBind means the callback listener could not bind or failed while serving.
	KindListenerBind ErrorKind = "listener_bind"

	// KindTimeout means no callback arrived within the session timeout.
	KindTimeout ErrorKind = "timeout"

	// KindMissingRefreshToken means the exchange succeeded without a refresh token.
	KindMissingRefreshToken ErrorKind = "missing_refresh_token"

	// KindCancelled means the caller's context ended the session.
	KindCancelled ErrorKind = "cancelled"

	// KindInput means the pasted redirect URL could not be read.
	KindInput ErrorKind = "input"

	// KindInProgress means another attempt is already running on the controller.
	KindInProgress ErrorKind = "in_progress"

	// KindAuthorizationFailed is used when a failed result carries no kind.
	KindAuthorizationFailed ErrorKind = "authorization_failed"
)

// Error is returned by Controller.Authorize.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error implements the error interface. The message is shown to users as is.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind, so the sentinels
// below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t != nil && t.Kind == e.Kind
}

// Sentinels for errors.Is. Only the Kind is compared.
var (
	ErrUserCancelled            = &Error{Kind: KindUserCancelled, Message: "authorization cancelled"}
	ErrMissingAuthorizationCode = &Error{Kind: KindMissingAuthorizationCode, Message: "no authorization code"}
	ErrTokenExchange            = &Error{Kind: KindTokenExchange, Message: "token exchange failed"}
	ErrListenerBind             = &Error{Kind: KindListenerBind, Message: "callback listener failed"}
	ErrTimeout                  = &Error{Kind: KindTimeout, Message: "authorization timed out"}
	ErrMissingRefreshToken      = &Error{Kind: KindMissingRefreshToken, Message: "no refresh token received"}
	ErrCancelled                = &Error{Kind: KindCancelled, Message: "authorization cancelled by caller"}
	ErrInput                    = &Error{Kind: KindInput, Message: "failed to read input"}
	ErrAuthorizationInProgress  = &Error{Kind: KindInProgress, Message: "authorization already in progress"}
	ErrAuthorizationFailed      = &Error{Kind: KindAuthorizationFailed, Message: "authorization failed"}
)
