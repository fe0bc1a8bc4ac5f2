// Package logs tails the daemon log file for the CLI.
//
// ReadLast backs "craefto logs --daemon", ReadFrom resumes from a saved
// offset, and Follow polls for new lines until the caller's context ends.
// Rotated or truncated files are re-read from the start.
package logs
