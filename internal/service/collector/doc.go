// Package collector downloads the compiled binaries of a build.
//
// Files are fetched into a staging directory next to the output directory
// and checked against the sizes and SHA-256 digests announced by the build
// service. Only a complete, verified set replaces the output directory.
package collector
