// Package preflight provides readiness checks for the generation backend
// and filesystem paths that craefto depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup and logs every failing check.
//   - The status endpoint and "craefto status" report the same results so an
//     operator can see why runs fail before starting one.
package preflight
