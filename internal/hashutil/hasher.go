// Package hashutil implements the composite-hash freshness oracle: pure,
// deterministic functions over content bytes, compile flags, and include
// hashes. No third-party dependency — the teacher hashes with stdlib
// crypto/sha256 everywhere it needs a digest, and the spec pins the
// algorithm explicitly (SHA-256 hex), so there is nothing an external
// library would add here.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

const separator = "||"

// ContentHash returns the SHA-256 hex digest of raw bytes. An empty byte
// slice (including a missing file, represented by the caller as nil)
// yields the empty string, which forces downstream classification to
// stale per the spec's "no content" rule.
func ContentHash(content []byte) string {
	if len(content) == 0 {
		return ""
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// FlagsHash sorts the flag sequence and hashes the null-joined result, so
// flag reordering never invalidates the cache.
func FlagsHash(flags []string) string {
	return hashSortedJoin(flags)
}

// IncludesHash sorts the list of component hashes and hashes the
// null-joined result, so include-list reordering never invalidates the
// cache.
func IncludesHash(hashes []string) string {
	return hashSortedJoin(hashes)
}

func hashSortedJoin(items []string) string {
	if len(items) == 0 {
		sum := sha256.Sum256(nil)
		return hex.EncodeToString(sum[:])
	}
	sorted := make([]string, len(items))
	copy(sorted, items)
	sort.Strings(sorted)
	joined := strings.Join(sorted, "\x00")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}

// CompositeHash combines content, includes, and flags hashes into the
// single freshness oracle value: H(contentHash ∥ includesHash ∥
// flagsHash).
func CompositeHash(contentHash, includesHash, flagsHash string) string {
	joined := contentHash + separator + includesHash + separator + flagsHash
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}
