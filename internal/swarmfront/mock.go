package swarmfront

import (
	"fmt"
	"sync"

	"github.com/gitpatchd/gitpatchd/internal/peerid"
)

// SentRequest records one SendRequest call, for test assertions (e.g. spec
// scenario S6: "no swarm request is dispatched").
type SentRequest struct {
	Peer      peerid.ID
	RequestId RequestId
	Request   Request
}

// MockFront is an in-memory Front used by reactor tests: it records every
// outbound SendRequest, and lets tests inject inbound events (including
// fabricated RequestEvents whose ResponseChannel captures whatever the
// reactor eventually sends back).
type MockFront struct {
	mu      sync.Mutex
	events  chan Event
	nextID  RequestId
	Sent    []SentRequest
	closed  bool
	onClose func()

	// SendErr, if set, is returned by every subsequent SendRequest call
	// instead of dispatching — for tests simulating a registered peer
	// that is currently unreachable over the transport.
	SendErr error
}

// NewMockFront creates an empty MockFront with a buffered event channel.
func NewMockFront() *MockFront {
	return &MockFront{events: make(chan Event, 64)}
}

func (m *MockFront) ListenOn(addr string) error { return nil }

func (m *MockFront) SendRequest(peer peerid.ID, req Request) (RequestId, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SendErr != nil {
		return 0, m.SendErr
	}

	m.nextID++
	id := m.nextID
	m.Sent = append(m.Sent, SentRequest{Peer: peer, RequestId: id, Request: req})
	return id, nil
}

func (m *MockFront) SendResponse(ch ResponseChannel, resp Response) error {
	mc, ok := ch.(*mockResponseChannel)
	if !ok {
		return fmt.Errorf("swarmfront: not a mock response channel")
	}
	select {
	case mc.respCh <- resp:
		return nil
	default:
		return fmt.Errorf("swarmfront: response already sent on this channel")
	}
}

func (m *MockFront) Events() <-chan Event { return m.events }

func (m *MockFront) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		close(m.events)
		m.closed = true
		if m.onClose != nil {
			m.onClose()
		}
	}
	return nil
}

// Inject pushes an arbitrary Event onto the stream the reactor is
// selecting on.
func (m *MockFront) Inject(e Event) {
	m.events <- e
}

// mockResponseChannel is the ResponseChannel handed out with a fabricated
// inbound RequestEvent; respCh captures whatever SendResponse is
// eventually called with.
type mockResponseChannel struct {
	peer   peerid.ID
	respCh chan Response
}

func (c *mockResponseChannel) Peer() peerid.ID { return c.peer }

// NewInboundRequest builds a fabricated RequestEvent from peer, along with
// a handle to observe the eventual response.
func NewInboundRequest(peer peerid.ID, req Request) (RequestEvent, *PendingResponse) {
	ch := &mockResponseChannel{peer: peer, respCh: make(chan Response, 1)}
	return RequestEvent{Peer: peer, Request: req, Channel: ch}, &PendingResponse{ch: ch}
}

// PendingResponse lets a test block until the reactor replies to a
// fabricated inbound request.
type PendingResponse struct {
	ch *mockResponseChannel
}

// Wait blocks until a response has been sent on this channel.
func (p *PendingResponse) Wait() Response {
	return <-p.ch.respCh
}

var _ Front = (*MockFront)(nil)
