// Package common holds helpers shared by several services.
//
// It provides the HTTP client of the remote build service with per-call
// timeouts and detects the current system actor (user@host) sent with every
// build request.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
