package swarmfront

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gitpatchd/gitpatchd/internal/gplog"
	"github.com/gitpatchd/gitpatchd/internal/peerid"
	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	libp2ppeer "github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/multiformats/go-multiaddr"
	"golang.org/x/sync/errgroup"
)

var log = gplog.Logger(gplog.SubsystemSwarmFront)

// mdnsServiceTag scopes mDNS discovery to this protocol, the same way the
// original's libp2p::mdns::MdnsConfig::default() scopes discovery to
// whatever service name the behaviour advertises.
const mdnsServiceTag = "gitpatchd"

// P2PFront is the production Front: LAN peer discovery via mDNS, and a
// hand-rolled request/response exchange over the /git-patch/0.1 stream
// protocol, since go-libp2p's core doesn't ship a request/response
// primitive the way libp2p::request_response does in the original Rust
// implementation (see SPEC_FULL.md).
type P2PFront struct {
	host   host.Host
	mdns   mdns.Service
	events chan Event

	nextID uint64 // atomic

	closeOnce sync.Once
}

// NewP2PFront starts a libp2p host identified by the given Ed25519
// keypair. Callers must still call ListenOn to begin accepting inbound
// connections.
func NewP2PFront(keypair ed25519.PrivateKey) (*P2PFront, error) {
	priv, err := crypto.UnmarshalEd25519PrivateKey(keypair)
	if err != nil {
		return nil, fmt.Errorf("swarmfront: unmarshal keypair: %w", err)
	}

	h, err := libp2p.New(libp2p.Identity(priv))
	if err != nil {
		return nil, fmt.Errorf("swarmfront: create libp2p host: %w", err)
	}

	f := &P2PFront{
		host:   h,
		events: make(chan Event, 64),
	}
	h.SetStreamHandler(protocol.ID(ProtocolID), f.handleStream)

	svc := mdns.NewMdnsService(h, mdnsServiceTag, f)
	if err := svc.Start(); err != nil {
		h.Close()
		return nil, fmt.Errorf("swarmfront: start mdns discovery: %w", err)
	}
	f.mdns = svc

	return f, nil
}

// HandlePeerFound implements mdns.Notifee: it's invoked whenever LAN
// discovery finds a peer advertising the gitpatchd service.
func (f *P2PFront) HandlePeerFound(pi libp2ppeer.AddrInfo) {
	id, err := fromLibp2pPeer(pi.ID)
	if err != nil {
		log.Warnf("discovered peer with unrecognized identity: %v", err)
		return
	}
	f.host.Peerstore().AddAddrs(pi.ID, pi.Addrs, peerstore.TempAddrTTL)
	f.events <- DiscoveredEvent{Peers: []peerid.ID{id}}
}

// ListenOn begins accepting inbound connections on addr (a multiaddr
// string, per spec §6's swarm_listen).
func (f *P2PFront) ListenOn(addr string) error {
	maddr, err := multiaddr.NewMultiaddr(addr)
	if err != nil {
		return fmt.Errorf("swarmfront: parse listen address %q: %w", addr, err)
	}
	if err := f.host.Network().Listen(maddr); err != nil {
		return fmt.Errorf("swarmfront: listen on %s: %w", addr, err)
	}
	for _, a := range f.host.Addrs() {
		f.events <- NewListenAddrEvent{Address: a.String()}
	}
	return nil
}

// SendRequest opens a new stream to peer, writes req, and returns a
// RequestId immediately; the eventual response is delivered
// asynchronously as a ResponseEvent on Events(). If reading the response
// fails, the failure is only logged and no event is delivered for that
// RequestId.
func (f *P2PFront) SendRequest(peer peerid.ID, req Request) (RequestId, error) {
	pid, err := toLibp2pPeer(peer)
	if err != nil {
		return 0, fmt.Errorf("swarmfront: convert peer id: %w", err)
	}

	id := RequestId(atomic.AddUint64(&f.nextID, 1))

	stream, err := f.host.NewStream(context.Background(), pid, protocol.ID(ProtocolID))
	if err != nil {
		return 0, fmt.Errorf("swarmfront: open stream to %s: %w", peer, err)
	}

	if _, err := WriteMessage(stream, req); err != nil {
		stream.Reset()
		return 0, fmt.Errorf("swarmfront: write request to %s: %w", peer, err)
	}

	go f.awaitResponse(stream, peer, id)

	return id, nil
}

func (f *P2PFront) awaitResponse(stream network.Stream, peer peerid.ID, id RequestId) {
	defer stream.Close()

	msg, err := ReadMessage(stream)
	if err != nil {
		log.Warnf("swarm request %d to %s: reading response: %v", id, peer, err)
		return
	}
	resp, ok := msg.(Response)
	if !ok {
		log.Warnf("swarm request %d to %s: peer sent a request, not a response", id, peer)
		return
	}
	f.events <- ResponseEvent{Peer: peer, RequestId: id, Response: resp}
}

func (f *P2PFront) handleStream(stream network.Stream) {
	peer, err := fromLibp2pPeer(stream.Conn().RemotePeer())
	if err != nil {
		log.Warnf("inbound stream from unrecognized peer identity: %v", err)
		stream.Reset()
		return
	}

	msg, err := ReadMessage(stream)
	if err != nil {
		log.Warnf("reading inbound request from %s: %v", peer, err)
		stream.Reset()
		return
	}
	req, ok := msg.(Request)
	if !ok {
		log.Warnf("unexpected inbound message from %s", peer)
		stream.Reset()
		return
	}

	f.events <- RequestEvent{
		Peer:    peer,
		Request: req,
		Channel: &streamResponseChannel{peer: peer, stream: stream},
	}
}

// streamResponseChannel replies over the same stream the request arrived
// on, allowing exactly one response (spec §4.1.2: "a double-send ... is
// logged, not propagated").
type streamResponseChannel struct {
	peer   peerid.ID
	stream network.Stream
	used   int32 // atomic
}

func (c *streamResponseChannel) Peer() peerid.ID { return c.peer }

// SendResponse replies to an inbound request via its channel.
func (f *P2PFront) SendResponse(ch ResponseChannel, resp Response) error {
	sc, ok := ch.(*streamResponseChannel)
	if !ok {
		return fmt.Errorf("swarmfront: not a stream response channel")
	}
	if !atomic.CompareAndSwapInt32(&sc.used, 0, 1) {
		return fmt.Errorf("swarmfront: response already sent on this channel")
	}
	defer sc.stream.Close()

	_, err := WriteMessage(sc.stream, resp)
	return err
}

func (f *P2PFront) Events() <-chan Event { return f.events }

// Close shuts down the mDNS service and the libp2p host concurrently.
func (f *P2PFront) Close() error {
	var closeErr error
	f.closeOnce.Do(func() {
		var g errgroup.Group
		if f.mdns != nil {
			g.Go(f.mdns.Close)
		}
		g.Go(f.host.Close)
		closeErr = g.Wait()
		close(f.events)
	})
	return closeErr
}

func fromLibp2pPeer(pid libp2ppeer.ID) (peerid.ID, error) {
	pub, err := pid.ExtractPublicKey()
	if err != nil {
		return peerid.Nil, err
	}
	raw, err := pub.Raw()
	if err != nil {
		return peerid.Nil, err
	}
	return peerid.FromPublicKey(raw)
}

func toLibp2pPeer(id peerid.ID) (libp2ppeer.ID, error) {
	pub, err := crypto.UnmarshalEd25519PublicKey(id.PublicKey())
	if err != nil {
		return "", err
	}
	return libp2ppeer.IDFromPublicKey(pub)
}

var _ Front = (*P2PFront)(nil)
