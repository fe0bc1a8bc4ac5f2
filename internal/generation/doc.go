// Package generation talks to the CRAEFTO content backend.
//
// # Request Shape
//
// Generate posts {topic, content_type, style, target_audience,
// include_hero_image} to {base_url}/api/generate/{kind} with an optional
// bearer API key. Every request carries an X-Request-ID header, taken from the
// context correlation id when present.
//
// # Response Envelope
//
// The backend answers with {success, message, data, errors, request_id}.
// Error responses from the framework layer use {detail} instead. Result keeps
// the envelope fields; on failure Result.Error is the first non-empty value of
// errors, detail, error, and message, copied verbatim.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx, dial failures, and network timeouts
// with exponential backoff (base 2s, max 30s, 3 attempts by default), honoring
// Retry-After. Context cancellation aborts retries immediately. When retries
// run out on a status error the decoded body is returned as a failed Result;
// only transport failures come back as errors, wrapped in ErrTransport.
package generation
