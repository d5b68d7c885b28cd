// Package gitrepo is the local git repository adapter (spec §4.5 /
// "Peer Store / Repo Adapter"): a narrow, read-only interface over the
// local commit ancestor chain, in the style of the original's git::Repository
// trait, generalized from its all-unimplemented sketch in git/eager.rs.
package gitrepo

import "encoding/hex"

// Commit is an opaque, content-addressed git commit id (a 20- or 32-byte
// object id in the real implementation). Equality is bitwise.
type Commit [32]byte

// NilCommit is the zero value, never a legitimate commit id.
var NilCommit Commit

// String renders c as hex, for logging.
func (c Commit) String() string {
	return hex.EncodeToString(c[:])
}

// IsIn reports whether c appears anywhere in path.
func (c Commit) IsIn(path []Commit) bool {
	for _, other := range path {
		if c == other {
			return true
		}
	}
	return false
}

// Repository is the narrow capability the reactor needs from a local git
// checkout: iterate ancestors from HEAD, name the repository's root
// commit, and answer whether one commit is a first-parent ancestor of
// another (IsAncestorOf).
type Repository interface {
	// Ancestors returns the commit history from HEAD back to the root,
	// tip-first. Implementations MUST return a non-empty slice for any
	// repository with at least one commit.
	Ancestors() ([]Commit, error)

	// Root returns the repository's initial commit (no parents).
	Root() (Commit, error)

	// IsAncestorOf reports whether commit c is a (possibly improper)
	// ancestor of other, i.e. c appears at or after other's position in
	// the first-parent history starting at other.
	IsAncestorOf(c, other Commit) (bool, error)
}
