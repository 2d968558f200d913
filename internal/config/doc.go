// Package config loads gmailauth settings from the environment.
//
// Flags registered by the cmd package override these values.
package config
