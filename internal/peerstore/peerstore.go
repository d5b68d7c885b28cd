// Package peerstore is the peer database (spec §4.5): nickname -> PeerId
// bindings plus, per peer, the most recently known common ancestor commit.
// Read operations are side-effect free; AddPeer fails with
// apierrors.NicknameAlreadyExists if the nickname is already bound.
package peerstore

import (
	"github.com/gitpatchd/gitpatchd/internal/gitrepo"
	"github.com/gitpatchd/gitpatchd/internal/peerid"
)

// Store is the narrow capability the reactor needs from the peer
// database.
type Store interface {
	// Contains reports whether id is a registered (allow-listed) peer.
	Contains(id peerid.ID) bool

	// NicknameToPeer resolves a nickname to its bound PeerId.
	NicknameToPeer(nickname string) (peerid.ID, bool)

	// MostRecentCommonAncestor returns the last known common ancestor
	// commit recorded for id, if any.
	MostRecentCommonAncestor(id peerid.ID) (gitrepo.Commit, bool)

	// AddPeer binds nickname to id. Returns apierrors.NicknameAlreadyExists
	// if nickname is already bound to a (possibly different) peer.
	AddPeer(id peerid.ID, nickname string) error

	// SetMostRecentCommonAncestor records a new MRCA for id, overwriting
	// any previous value. Called by the reactor after a successful
	// Update exchange (spec §4.1.3); never surfaced to API callers
	// directly.
	SetMostRecentCommonAncestor(id peerid.ID, commit gitrepo.Commit) error

	// Close releases any underlying resources (file handles, etc).
	Close() error
}
