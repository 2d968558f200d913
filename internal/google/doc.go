// Package google provides the OAuth2 token-exchange client used to obtain Gmail
// refresh tokens.
//
// An Exchanger binds the application's client credentials to exactly one
// redirect URI. Because the redirect URI is part of both the authorization URL
// and the code exchange, a new Exchanger is created for every authorization
// session.
package google
