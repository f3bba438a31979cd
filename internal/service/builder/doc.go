// Package builder uploads a sketch to the remote build service and requests
// a compile.
//
// The sketch is sent as a tar stream compressed with zstd. When the server
// reports that the image does not fit the default partition layout, the
// build is retried exactly once with the min_spiffs scheme.
package builder
