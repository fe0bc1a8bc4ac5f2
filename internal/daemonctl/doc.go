// Package daemonctl launches, stops, and restarts a background craefto daemon
// from the CLI. It talks to a running daemon through the HTTP API client and
// falls back to the pid file when the API is unreachable.
package daemonctl
