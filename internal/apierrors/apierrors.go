// Package apierrors holds the tagged error kinds that cross the API and
// swarm wire boundaries (spec §7). These are deliberately plain comparable
// values rather than wrapped errors: a caller across the IPC boundary needs
// to switch on the kind, not inspect a message string.
package apierrors

// IdError is returned in an Id response.
type IdError string

const (
	UnknownNickname IdError = "unknown_nickname"
)

func (e IdError) Error() string { return string(e) }

// UpdateError is returned in an Update response.
type UpdateError string

const (
	UnknownPeerId UpdateError = "unknown_peer_id"
)

func (e UpdateError) Error() string { return string(e) }

// AddPeerError is returned in an AddPeer response.
type AddPeerError string

const (
	NicknameAlreadyExists AddPeerError = "nickname_already_exists"
)

func (e AddPeerError) Error() string { return string(e) }

// ClientIdError is returned by the API front when a new client cannot be
// admitted.
type ClientIdError string

const (
	ClientIdOverflow ClientIdError = "client_id_overflow"
)

func (e ClientIdError) Error() string { return string(e) }

// UpdateRejection is the peer-side rejection kind carried over the swarm
// wire in a SwarmResponse. It never crosses back to the local API caller
// directly (spec §9 open question); the reactor consumes it internally.
type UpdateRejection string

const (
	EmptyPath        UpdateRejection = "empty_path"
	NoCommonAncestor UpdateRejection = "no_common_ancestor"
)

func (e UpdateRejection) Error() string { return string(e) }

// TransportError wraps a dispatch failure that is not one of the named
// kinds above: the swarm front could not hand a request to a registered
// peer, typically because that peer is simply unreachable right now. The
// reactor also uses it when the local repository cannot produce the
// ancestor path for an Update. Unlike the other kinds here, it is not a fixed sentinel — its message
// is the underlying failure's text, carried across the wire as-is, so a
// caller is told the real reason rather than being misdiagnosed against
// one of the documented sentinels.
type TransportError string

func NewTransportError(err error) TransportError { return TransportError(err.Error()) }

func (e TransportError) Error() string { return "transport error: " + string(e) }
