package google

import (
	gmail "google.golang.org/api/gmail/v1"
)

// MailScopes are the Google OAuth scopes requested by the authorization flow.
// Full Gmail access (read, modify, send, delete) is a single scope.
var MailScopes = []string{
	gmail.MailGoogleComScope, // https://mail.google.com/
}
