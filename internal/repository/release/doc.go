// Package release stores named snapshots of the artifact directory.
//
// Each release lives in its own folder with the flashable files and a YAML
// .meta file describing the board it was built for.
package release
