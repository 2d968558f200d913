// Package browser opens URLs in the user's default web browser.
//
// Launching is best effort: the command is started detached from the current
// process and its outcome is never awaited. Callers print the URL as well so
// the user can open it by hand.
package browser
