// Package detector decides whether the sketch must be rebuilt.
//
// It hashes every recognized source file under the sketch directory and
// compares the digest, the board and the forced partition scheme with the
// record of the last successful build.
package detector
