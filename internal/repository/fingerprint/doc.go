// Package fingerprint persists the record of the last successful build.
//
// The FileRepository stores the source fingerprint together with the board
// and partition scheme it was built for, so the change detector can decide
// whether the cached binaries are still valid.
package fingerprint
