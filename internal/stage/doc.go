// Package stage defines the stage model shared by the registry, the progress
// aggregator, and the orchestrator: stage status, content kinds, jobs, the
// Env handed to work functions, and the ordered Registry that turns a job into
// a stage list whose weights sum to 100.
package stage
