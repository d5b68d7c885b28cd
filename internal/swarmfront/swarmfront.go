// Package swarmfront is the peer-to-peer transport abstraction (spec
// §4.3): LAN peer discovery plus a request/response primitive addressed by
// PeerId. The reactor consumes only the Front interface defined here;
// concrete transports (see p2p.go, mock.go) are swapped in by the caller.
package swarmfront

import (
	"github.com/gitpatchd/gitpatchd/internal/peerid"
)

// RequestId is an opaque identifier returned synchronously by SendRequest,
// unique within a single daemon run, used to correlate a later
// ResponseEvent back to the request that produced it.
type RequestId uint64

// Request is a SwarmRequest wire variant the local daemon can send.
type Request interface {
	WireMessage
	isRequest()
}

// Response is a SwarmResponse wire variant the local daemon can send back
// to an inbound request.
type Response interface {
	WireMessage
	isResponse()
}

// ResponseChannel is the opaque handle an inbound Request arrives with;
// SendResponse consumes it exactly once.
type ResponseChannel interface {
	// Peer is the remote peer this channel responds to, exposed so
	// callers don't need to thread it through separately.
	Peer() peerid.ID
}

// Event is one of the swarm event variants listed in spec §4.3.
type Event interface {
	isEvent()
}

// RequestEvent is delivered when a remote peer sends an inbound request.
type RequestEvent struct {
	Peer    peerid.ID
	Request Request
	Channel ResponseChannel
}

func (RequestEvent) isEvent() {}

// ResponseEvent is delivered when a reply to a previously dispatched
// outbound request arrives.
type ResponseEvent struct {
	Peer      peerid.ID
	RequestId RequestId
	Response  Response
}

func (ResponseEvent) isEvent() {}

// DiscoveredEvent is delivered when LAN discovery finds new peers.
type DiscoveredEvent struct {
	Peers []peerid.ID
}

func (DiscoveredEvent) isEvent() {}

// ConnectionEstablishedEvent is delivered when a transport-level
// connection to a peer is established.
type ConnectionEstablishedEvent struct {
	Peer    peerid.ID
	Address string
}

func (ConnectionEstablishedEvent) isEvent() {}

// NewListenAddrEvent is delivered when the swarm transport starts
// listening on a new local address.
type NewListenAddrEvent struct {
	Address string
}

func (NewListenAddrEvent) isEvent() {}

// Front is the abstract contract the reactor drives (spec §4.3's "Public
// contract (the reactor consumes only this)").
type Front interface {
	// ListenOn begins accepting inbound connections on addr.
	ListenOn(addr string) error

	// SendRequest enqueues an outbound request to peer and returns its
	// RequestId synchronously, strictly before any response for that id
	// can be observed on Events().
	SendRequest(peer peerid.ID, req Request) (RequestId, error)

	// SendResponse replies to an inbound request via its channel. Errors
	// are non-fatal; the reactor logs and continues.
	SendResponse(ch ResponseChannel, resp Response) error

	// Events returns the stream of swarm events the reactor selects on.
	Events() <-chan Event

	// Close shuts down the transport.
	Close() error
}
