// Package services defines shared utilities consumed by the pipeline stage
// work functions and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures
//     into event types and operator hints.
//
// Use these helpers when wiring new stage logic so failure reporting stays
// uniform across the pipeline.
package services
