// Package authflow runs the interactive OAuth2 authorization code handshake
// that yields a Gmail refresh token.
//
// A Controller drives one authorization attempt at a time through one of two
// strategies:
//
//   - Automated: a listener is bound to an ephemeral loopback port and used as
//     the redirect target. The browser is opened on the consent page and the
//     session ends on the first of: the callback request, the timeout, a
//     listener failure or context cancellation.
//   - Manual: no listener. The user opens the printed URL, consents, and pastes
//     the URL of the (unreachable) redirect page back into the terminal.
//
// Either strategy produces exactly one Result. The controller turns it into a
// refresh token or an *Error whose Kind tells callers what went wrong:
//
//	token, err := ctrl.Authorize(ctx, false)
//	if errors.Is(err, authflow.ErrMissingRefreshToken) {
//	    // the user consented before; revoke access and try again
//	}
package authflow
