// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with a compact console encoder on stderr,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing and configuration utilities,
//   - convenience functions (Infof, ErrorKV, etc.).
//
// Every service accepts a context and extracts the logger from it, so each
// step of the build pipeline logs under its own name.
package logger
