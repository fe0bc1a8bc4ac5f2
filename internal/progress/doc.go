// Package progress converts per-stage state into a single weighted run
// percentage and keeps the reported value monotonic for the life of a run.
package progress
