package apifront

import (
	"net"

	"github.com/gitpatchd/gitpatchd/internal/gitrepo"
	"github.com/gitpatchd/gitpatchd/internal/peerid"
)

// IPCClient is a blocking, synchronous client for the IPC transport,
// sharing the gob envelope codec with IPCFront. This is what
// cmd/gitpatchctl dials; each call is a full request/response round trip
// over one long-lived connection, mirroring the shape of the in-process
// Client used by tests.
type IPCClient struct {
	conn net.Conn
	enc  *requestEncoder
	dec  *responseDecoder
}

// NewIPCClient wraps an already-dialed connection, for callers that
// resolved a standard (non-unix) api_listen multiaddr themselves via
// manet.Dial (spec §6).
func NewIPCClient(conn net.Conn) *IPCClient {
	return &IPCClient{conn: conn, enc: newRequestEncoder(conn), dec: newResponseDecoder(conn)}
}

// DialIPC connects to a running daemon's control socket.
func DialIPC(network, address string) (*IPCClient, error) {
	conn, err := net.Dial(network, address)
	if err != nil {
		return nil, err
	}
	return &IPCClient{conn: conn, enc: newRequestEncoder(conn), dec: newResponseDecoder(conn)}, nil
}

func (c *IPCClient) call(req Request) (Response, error) {
	if err := c.enc.send(req); err != nil {
		return nil, err
	}
	return c.dec.next()
}

// GetID resolves nickname, or (if nil) the daemon's own PeerId.
func (c *IPCClient) GetID(nickname *string) (IdResponse, error) {
	resp, err := c.call(IdRequest{Nickname: nickname})
	if err != nil {
		return IdResponse{}, err
	}
	return resp.(IdResponse), nil
}

// AddPeer registers peer under nickname.
func (c *IPCClient) AddPeer(peer peerid.ID, nickname string) (AddPeerResponse, error) {
	resp, err := c.call(AddPeerRequest{Peer: peer, Nickname: nickname})
	if err != nil {
		return AddPeerResponse{}, err
	}
	return resp.(AddPeerResponse), nil
}

// Update initiates an ancestor-chain sync with peer.
func (c *IPCClient) Update(peer peerid.ID) (UpdateResponse, error) {
	resp, err := c.call(UpdateRequest{Peer: peer})
	if err != nil {
		return UpdateResponse{}, err
	}
	return resp.(UpdateResponse), nil
}

// Patch requests a patch from peer at commit.
func (c *IPCClient) Patch(peer peerid.ID, commit gitrepo.Commit) (PatchResponse, error) {
	resp, err := c.call(PatchRequest{Peer: peer, Commit: commit})
	if err != nil {
		return PatchResponse{}, err
	}
	return resp.(PatchResponse), nil
}

// Shutdown asks the daemon to stop.
func (c *IPCClient) Shutdown() (ShutdownResponse, error) {
	resp, err := c.call(ShutdownRequest{})
	if err != nil {
		return ShutdownResponse{}, err
	}
	return resp.(ShutdownResponse), nil
}

// Close closes the underlying connection.
func (c *IPCClient) Close() error {
	return c.conn.Close()
}
