// Package release implements the save and flash commands for named
// snapshots of the artifact directory.
package release
