package apifront

import (
	"fmt"
	"sync"
	"time"

	"github.com/gitpatchd/gitpatchd/internal/apierrors"
	"github.com/gitpatchd/gitpatchd/internal/gitrepo"
	"github.com/gitpatchd/gitpatchd/internal/gplog"
	"github.com/gitpatchd/gitpatchd/internal/peerid"
)

var log = gplog.Logger(gplog.SubsystemAPIFront)

// clientReceiveTimeout is the 3-second receive timeout spec §4.2 and §5
// impose on the test-mode client's blocking calls.
const clientReceiveTimeout = 3 * time.Second

// LoopbackFront is the in-process test Front (spec §4.2): it pairs with
// one or more Client handles over in-memory channels, with no real
// transport involved, for use in reactor tests and the end-to-end
// scenarios of spec §8.
type LoopbackFront struct {
	mu       sync.Mutex
	requests chan ClientRequest
	clients  map[ClientId]chan Response
	nextID   uint32
	closed   bool
}

// NewLoopbackFront creates an empty LoopbackFront.
func NewLoopbackFront() *LoopbackFront {
	return &LoopbackFront{
		requests: make(chan ClientRequest, 64),
		clients:  make(map[ClientId]chan Response),
	}
}

func (f *LoopbackFront) Requests() <-chan ClientRequest { return f.requests }

func (f *LoopbackFront) SendResponse(client ClientId, resp Response) {
	f.mu.Lock()
	ch, ok := f.clients[client]
	f.mu.Unlock()

	if !ok {
		log.Warnf("dropping response for disconnected client %d", client)
		return
	}
	select {
	case ch <- resp:
	default:
		log.Warnf("client %d outbound buffer full, dropping response", client)
	}
}

func (f *LoopbackFront) IsTerminated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed && len(f.clients) == 0
}

func (f *LoopbackFront) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.requests)
	}
	return nil
}

// NewClient registers a new in-process Client, returning
// apierrors.ClientIdOverflow once the 16-bit ClientId space is exhausted.
func (f *LoopbackFront) NewClient() (*Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.nextID > 0xFFFF {
		return nil, apierrors.ClientIdOverflow
	}
	id := ClientId(f.nextID)
	f.nextID++

	respCh := make(chan Response, 1)
	f.clients[id] = respCh

	return &Client{id: id, front: f, respCh: respCh}, nil
}

func (f *LoopbackFront) disconnect(id ClientId) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.clients, id)
}

func (f *LoopbackFront) send(id ClientId, req Request) {
	f.requests <- ClientRequest{Client: id, Request: req}
}

// Client is a handle to one registered loopback connection, with blocking
// helper methods matching the test harness shape required by spec §4.2.
type Client struct {
	id     ClientId
	front  *LoopbackFront
	respCh chan Response
}

// ID returns the ClientId assigned to this connection.
func (c *Client) ID() ClientId { return c.id }

func (c *Client) await() (Response, error) {
	select {
	case resp := <-c.respCh:
		return resp, nil
	case <-time.After(clientReceiveTimeout):
		return nil, fmt.Errorf("apifront: timed out waiting for response")
	}
}

// GetID resolves nickname, or (if nil) the daemon's own PeerId.
func (c *Client) GetID(nickname *string) (IdResponse, error) {
	c.front.send(c.id, IdRequest{Nickname: nickname})
	resp, err := c.await()
	if err != nil {
		return IdResponse{}, err
	}
	return resp.(IdResponse), nil
}

// GetPeer resolves nickname, matching the spec's "get_peer" test client
// method name.
func (c *Client) GetPeer(nickname string) (IdResponse, error) {
	return c.GetID(&nickname)
}

// AddPeer registers peer under nickname.
func (c *Client) AddPeer(peer peerid.ID, nickname string) (AddPeerResponse, error) {
	c.front.send(c.id, AddPeerRequest{Peer: peer, Nickname: nickname})
	resp, err := c.await()
	if err != nil {
		return AddPeerResponse{}, err
	}
	return resp.(AddPeerResponse), nil
}

// Update initiates an ancestor-chain sync with peer.
func (c *Client) Update(peer peerid.ID) (UpdateResponse, error) {
	c.front.send(c.id, UpdateRequest{Peer: peer})
	resp, err := c.await()
	if err != nil {
		return UpdateResponse{}, err
	}
	return resp.(UpdateResponse), nil
}

// Patch requests a patch from peer at commit.
func (c *Client) Patch(peer peerid.ID, commit gitrepo.Commit) (PatchResponse, error) {
	c.front.send(c.id, PatchRequest{Peer: peer, Commit: commit})
	resp, err := c.await()
	if err != nil {
		return PatchResponse{}, err
	}
	return resp.(PatchResponse), nil
}

// Shutdown asks the reactor to stop.
func (c *Client) Shutdown() (ShutdownResponse, error) {
	c.front.send(c.id, ShutdownRequest{})
	resp, err := c.await()
	if err != nil {
		return ShutdownResponse{}, err
	}
	return resp.(ShutdownResponse), nil
}

// Close disconnects the client without sending anything further.
func (c *Client) Close() {
	c.front.disconnect(c.id)
}

var _ Front = (*LoopbackFront)(nil)
