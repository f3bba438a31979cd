// Package sketch contains the core domain types of the remote build flow.
//
// It defines the board (FQBN and chip family), the partition scheme, the
// source fingerprint, the per-family flash layout and the classification of
// compiled artifacts into flashable roles.
package sketch
