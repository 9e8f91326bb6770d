// Package sanitize provides string canonicalization helpers shared
// across the bus's on-disk identifiers.
package sanitize

import "strings"

// AgentID canonicalizes an agent id by stripping every rune outside
// [A-Za-z0-9_-]. Agent ids are used verbatim as path components
// (inbox, caps, processed-ledger, receipt directories), so anything
// that could escape a directory or collide with reserved filenames
// must be removed before the id touches the filesystem.
func AgentID(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}
