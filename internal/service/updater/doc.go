// Package updater replaces the running arcompile binary with a newer release.
//
// It reads the release manifest from the update URL, compares its version
// with the installed one, downloads the asset built for this platform into a
// temporary directory, verifies its SHA-512 checksum, and only then swaps the
// executable through go-update. A failed swap is rolled back.
package updater
