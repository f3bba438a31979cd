// Package version exposes build metadata for arcompile.
//
// Version, Commit and BuildTime are injected via ldflags. Short is what the
// self-updater compares against the published version marker.
package version
