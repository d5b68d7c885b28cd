package apifront

import (
	"net"
	"sync"

	"github.com/gitpatchd/gitpatchd/internal/apierrors"
)

// ipcSendQueueDepth bounds how many unsent responses a single client
// connection may accumulate before SendResponse starts dropping on the
// floor, matching lnd's peer.go outgoingQueue buffering so one slow
// client can never block delivery to any other (spec §5 suspension point
// 2).
const ipcSendQueueDepth = 50

// IPCFront is the production Front: one listener accepting control-plane
// connections (a unix socket, or any net.Listener per spec §6's
// api_listen), with one reader/writer goroutine pair per connection,
// modeled on lnd's peer.go queueHandler/writeHandler split.
type IPCFront struct {
	listener net.Listener

	requests chan ClientRequest

	mu      sync.Mutex
	clients map[ClientId]*ipcConn
	nextID  uint32
	closed  bool

	wg sync.WaitGroup
}

// ListenIPC starts accepting connections on the given network/address
// pair (e.g. "unix", "/run/gitpatchd.sock").
func ListenIPC(network, address string) (*IPCFront, error) {
	l, err := net.Listen(network, address)
	if err != nil {
		return nil, err
	}
	return ListenIPCFromListener(l), nil
}

// ListenIPCFromListener wraps an already-bound net.Listener, for callers
// that resolved a standard (non-unix) api_listen multiaddr themselves via
// manet.Listen (spec §6).
func ListenIPCFromListener(l net.Listener) *IPCFront {
	f := &IPCFront{
		listener: l,
		requests: make(chan ClientRequest, 64),
		clients:  make(map[ClientId]*ipcConn),
	}

	f.wg.Add(1)
	go f.acceptLoop()

	return f
}

func (f *IPCFront) acceptLoop() {
	defer f.wg.Done()

	for {
		conn, err := f.listener.Accept()
		if err != nil {
			// Listener was closed; every live connection is torn
			// down independently by Close.
			return
		}

		id, err := f.register()
		if err != nil {
			log.Errorf("rejecting new client: %v", err)
			conn.Close()
			continue
		}

		c := newIPCConn(id, conn, f)
		f.mu.Lock()
		f.clients[id] = c
		f.mu.Unlock()

		c.start()
	}
}

func (f *IPCFront) register() (ClientId, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.nextID > 0xFFFF {
		return 0, apierrors.ClientIdOverflow
	}
	id := ClientId(f.nextID)
	f.nextID++
	return id, nil
}

func (f *IPCFront) disconnect(id ClientId) {
	f.mu.Lock()
	delete(f.clients, id)
	terminated := f.closed && len(f.clients) == 0
	f.mu.Unlock()

	if terminated {
		close(f.requests)
	}
}

func (f *IPCFront) Requests() <-chan ClientRequest { return f.requests }

// SendResponse routes resp to client's outbound queue. If the queue is
// full, the response is dropped with a log entry rather than blocking the
// caller (the reactor's main loop).
func (f *IPCFront) SendResponse(client ClientId, resp Response) {
	f.mu.Lock()
	c, ok := f.clients[client]
	f.mu.Unlock()

	if !ok {
		log.Warnf("dropping response for disconnected client %d", client)
		return
	}
	c.queue(resp)
}

func (f *IPCFront) IsTerminated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed && len(f.clients) == 0
}

// Close stops accepting new connections and tears down every live one.
// Requests is closed once the last connection has actually finished
// unwinding.
func (f *IPCFront) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	clients := make([]*ipcConn, 0, len(f.clients))
	for _, c := range f.clients {
		clients = append(clients, c)
	}
	noClients := len(clients) == 0
	f.mu.Unlock()

	err := f.listener.Close()
	f.wg.Wait()

	for _, c := range clients {
		c.close()
	}
	if noClients {
		close(f.requests)
	}
	return err
}

// ipcConn is one accepted connection: a writeHandler goroutine drains
// sendQueue onto the wire while a separate goroutine decodes inbound
// requests and forwards them to the front's shared Requests channel.
type ipcConn struct {
	id    ClientId
	conn  net.Conn
	front *IPCFront

	sendQueue chan Response
	quit      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	enc *responseEncoder
}

func newIPCConn(id ClientId, conn net.Conn, front *IPCFront) *ipcConn {
	return &ipcConn{
		id:        id,
		conn:      conn,
		front:     front,
		sendQueue: make(chan Response, ipcSendQueueDepth),
		quit:      make(chan struct{}),
		enc:       newResponseEncoder(conn),
	}
}

func (c *ipcConn) start() {
	c.wg.Add(2)
	go c.readHandler()
	go c.writeHandler()
}

// queue enqueues resp for delivery, dropping it if the client's outbound
// buffer is already full.
func (c *ipcConn) queue(resp Response) {
	select {
	case c.sendQueue <- resp:
	case <-c.quit:
	default:
		log.Warnf("client %d outbound buffer full, dropping response", c.id)
	}
}

func (c *ipcConn) readHandler() {
	defer c.wg.Done()
	defer c.close()

	dec := newRequestDecoder(c.conn)
	for {
		req, err := dec.next()
		if err != nil {
			log.Debugf("client %d disconnected: %v", c.id, err)
			return
		}
		select {
		case c.front.requests <- ClientRequest{Client: c.id, Request: req}:
		case <-c.quit:
			return
		}
	}
}

func (c *ipcConn) writeHandler() {
	defer c.wg.Done()

	for {
		select {
		case resp := <-c.sendQueue:
			if err := c.enc.send(resp); err != nil {
				log.Debugf("client %d: write failed: %v", c.id, err)
				go c.close()
				return
			}
		case <-c.quit:
			return
		}
	}
}

func (c *ipcConn) close() {
	c.closeOnce.Do(func() {
		close(c.quit)
		c.conn.Close()
		c.front.disconnect(c.id)
	})
}

var _ Front = (*IPCFront)(nil)
