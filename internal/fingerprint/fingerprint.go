// Package fingerprint provides deterministic content fingerprints used as
// cache and dedup keys across the pipeline.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

const prefix = "sha256:"

// Content returns the fingerprint of a document's bytes. Identical content
// always yields the identical fingerprint, regardless of path.
func Content(data []byte) string {
	sum := sha256.Sum256(data)
	return prefix + hex.EncodeToString(sum[:])
}
