// Package packager prepares the release manifest consumed by the updater.
//
// It finds the platform binaries in a release folder, computes their SHA-512
// checksums and writes arcompile-version.yaml next to them. The whole folder
// is then uploaded to the update URL.
package packager
