// Package compile runs the default arcompile command: detect changes, build
// remotely when needed, collect the artifacts and flash the board.
package compile
