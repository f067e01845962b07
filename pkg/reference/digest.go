package reference

import "strings"

// minDigestLength is the shortest string accepted as a resolved digest (a bare sha256 hex).
const minDigestLength = 64

// Digest is the content digest reported for a reference. Anything shorter than
// a sha256 hex string means the lookup failed or the tag does not exist.
type Digest string

// NormalizeDigest strips whitespace and quote characters left around tool output.
func NormalizeDigest(s string) Digest {
	return Digest(strings.Trim(strings.TrimSpace(s), `'" `+"\n\t"))
}

func (d Digest) Resolved() bool {
	return len(d) >= minDigestLength
}

// Equal is an exact, case-sensitive comparison that never matches an unresolved digest.
func (d Digest) Equal(other Digest) bool {
	return d.Resolved() && other.Resolved() && d == other
}

func (d Digest) String() string {
	return string(d)
}
