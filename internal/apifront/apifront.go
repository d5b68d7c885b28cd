// Package apifront is the control-plane transport abstraction (spec
// §4.2): it assigns each connected caller a stable ClientId, delivers a
// sequenced stream of (ClientId, Request) pairs to the reactor, and routes
// Response values back to the addressed client.
package apifront

import (
	"github.com/gitpatchd/gitpatchd/internal/gitrepo"
	"github.com/gitpatchd/gitpatchd/internal/peerid"
)

// ClientId names a connected control-plane caller for the life of its
// connection. Assigned monotonically from 0 and never reused within a
// daemon run; once all 65536 ids (0 through 65535) have been handed out,
// every further registration fails with apierrors.ClientIdOverflow.
type ClientId uint16

// Request is an ApiRequest wire variant (spec §3).
type Request interface {
	isRequest()
}

// UpdateRequest initiates an ancestor-chain sync with peer.
type UpdateRequest struct {
	Peer peerid.ID
}

func (UpdateRequest) isRequest() {}

// PatchRequest asks peer for a patch at commit.
type PatchRequest struct {
	Peer   peerid.ID
	Commit gitrepo.Commit
}

func (PatchRequest) isRequest() {}

// IdRequest resolves a nickname, or (if Nickname is nil) asks for the
// daemon's own PeerId.
type IdRequest struct {
	Nickname *string
}

func (IdRequest) isRequest() {}

// AddPeerRequest registers a new peer under a nickname.
type AddPeerRequest struct {
	Peer     peerid.ID
	Nickname string
}

func (AddPeerRequest) isRequest() {}

// ShutdownRequest stops the reactor.
type ShutdownRequest struct{}

func (ShutdownRequest) isRequest() {}

// Response is an ApiResponse wire variant, parallel to Request. Each
// carries either a successful payload or a request-specific error kind
// (spec §7); the error field is the zero value on success.
type Response interface {
	isResponse()
}

// UpdateResponse reports whether a sync was dispatched successfully.
// Spec §9's open question: the peer-side UpdateRejection is not currently
// surfaced here, only a local dispatch failure.
type UpdateResponse struct {
	Err error // nil on success; apierrors.UnknownPeerId or apierrors.TransportError otherwise
}

func (UpdateResponse) isResponse() {}

// PatchResponse is the response envelope for PatchRequest. Spec §9: the
// original implementation has no concrete Patch handler; this stays a
// pass-through envelope.
type PatchResponse struct {
	Err error
}

func (PatchResponse) isResponse() {}

// IdResponse carries the resolved PeerId, or an error kind.
type IdResponse struct {
	Peer peerid.ID
	Err  error // nil on success; apierrors.UnknownNickname otherwise
}

func (IdResponse) isResponse() {}

// AddPeerResponse reports whether registration succeeded.
type AddPeerResponse struct {
	Err error // nil on success; apierrors.NicknameAlreadyExists otherwise
}

func (AddPeerResponse) isResponse() {}

// ShutdownResponse acknowledges a clean shutdown.
type ShutdownResponse struct{}

func (ShutdownResponse) isResponse() {}

// ClientRequest pairs an inbound Request with the ClientId of its caller.
type ClientRequest struct {
	Client  ClientId
	Request Request
}

// Front is the abstract contract the reactor drives (spec §4.2's "Public
// contract").
type Front interface {
	// Requests streams (ClientId, Request) pairs. The channel is closed
	// only after Close: IPCFront closes it once the last live connection
	// has also unwound, LoopbackFront closes it immediately.
	Requests() <-chan ClientRequest

	// SendResponse routes resp back to client. If the target client is
	// gone, the response is silently dropped with a log entry. Must not
	// block other clients longer than their own outbound buffer allows
	// (spec §5 suspension point 2).
	SendResponse(client ClientId, resp Response)

	// IsTerminated reports whether every registered client channel has
	// closed.
	IsTerminated() bool

	// Close shuts down the transport.
	Close() error
}
