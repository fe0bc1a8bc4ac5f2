// Package textutil provides text helpers for topic comparison and slugs.
//
// Fingerprints are term-frequency vectors built from lowercase letter and
// digit runs of at least three runes. Cosine similarity between fingerprints
// ranks saved content against a new topic so near-duplicate requests can be
// flagged before generation.
package textutil
