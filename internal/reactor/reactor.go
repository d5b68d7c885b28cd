// Package reactor is the daemon's core: a single-threaded cooperative
// event loop multiplexing the API Front and the Swarm Front, in the same
// shape as the teacher's server.go queryHandler select loop (spec §4.1).
// All mutable state — peer store, correlation table, the keep-serving
// flag — is owned exclusively by the goroutine running Run, so none of it
// needs a lock (spec §9's single-owner discipline).
package reactor

import (
	"crypto/ed25519"
	"sync"

	"github.com/go-errors/errors"

	"github.com/gitpatchd/gitpatchd/internal/apierrors"
	"github.com/gitpatchd/gitpatchd/internal/apifront"
	"github.com/gitpatchd/gitpatchd/internal/config"
	"github.com/gitpatchd/gitpatchd/internal/correlation"
	"github.com/gitpatchd/gitpatchd/internal/gitrepo"
	"github.com/gitpatchd/gitpatchd/internal/gplog"
	"github.com/gitpatchd/gitpatchd/internal/peerid"
	"github.com/gitpatchd/gitpatchd/internal/peerstore"
	"github.com/gitpatchd/gitpatchd/internal/swarmfront"
)

var log = gplog.Logger(gplog.SubsystemReactor)

// Service is the reactor: the daemon's single long-running task (spec
// §2/§4.1's "Reactor").
type Service struct {
	selfID peerid.ID

	apiFront   apifront.Front
	swarmFront swarmfront.Front
	peerStore  peerstore.Store
	repo       gitrepo.Repository

	correlationTable *correlation.Table

	keepServing bool
	interrupt   chan struct{}
	interruptOnce sync.Once
}

// New binds the swarm listen address and returns a ready-to-run Service.
// The API front, swarm front, peer store, and repository are injected by
// the caller (spec §9: both collaborators are narrow interfaces with one
// production and one in-memory test implementation; main.go wires the
// production ones, tests wire loopback/mock/fake ones).
func New(
	cfg *config.Config,
	apiFront apifront.Front,
	swarmFront swarmfront.Front,
	peerStore peerstore.Store,
	repo gitrepo.Repository,
) (*Service, error) {
	pub, ok := cfg.Keypair.Public().(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("reactor: keypair has no ed25519 public half")
	}
	selfID, err := peerid.FromPublicKey(pub)
	if err != nil {
		return nil, errors.Errorf("reactor: derive self peer id: %v", err)
	}

	if err := swarmFront.ListenOn(cfg.SwarmListen.String()); err != nil {
		return nil, errors.Errorf("reactor: listen on swarm address: %v", err)
	}

	return &Service{
		selfID:           selfID,
		apiFront:         apiFront,
		swarmFront:       swarmFront,
		peerStore:        peerStore,
		repo:             repo,
		correlationTable: correlation.New(),
		keepServing:      true,
		interrupt:        make(chan struct{}),
	}, nil
}

// Interrupt requests a shutdown from outside the reactor task (e.g. an OS
// signal handler in cmd/gitpatchd), the same way lnd's interrupt package
// triggers server.Stop() from a SIGINT handler. Unlike an API Shutdown
// request, no ShutdownResponse is sent to any client. Safe to call more
// than once or concurrently with Run.
func (s *Service) Interrupt() {
	s.interruptOnce.Do(func() { close(s.interrupt) })
}

// Run blocks until a clean Shutdown is accepted or Interrupt is called,
// returning nil, or until both event channels are exhausted with no
// shutdown ever having been requested, returning an error (spec §4.1's
// "run() → Result<(), FatalError>"). A single exhausted channel is
// dropped from the select and the loop keeps serving the other.
func (s *Service) Run() error {
	apiCh := s.apiFront.Requests()
	swarmCh := s.swarmFront.Events()

	for s.keepServing {
		select {
		case cr, ok := <-apiCh:
			if !ok {
				apiCh = nil
				if swarmCh == nil {
					return errors.New("reactor: both event sources exhausted before shutdown")
				}
				continue
			}
			s.handleAPIRequest(cr.Client, cr.Request)

		case ev, ok := <-swarmCh:
			if !ok {
				swarmCh = nil
				if apiCh == nil {
					return errors.New("reactor: both event sources exhausted before shutdown")
				}
				continue
			}
			s.handleSwarmEvent(ev)

		case <-s.interrupt:
			s.keepServing = false
		}
	}
	return nil
}

// Close releases the fronts and peer store. Safe to call after Run
// returns.
func (s *Service) Close() error {
	var firstErr error
	if err := s.swarmFront.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.apiFront.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.peerStore.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (s *Service) handleAPIRequest(client apifront.ClientId, req apifront.Request) {
	switch r := req.(type) {
	case apifront.IdRequest:
		s.handleID(client, r)
	case apifront.AddPeerRequest:
		s.handleAddPeer(client, r)
	case apifront.UpdateRequest:
		s.handleUpdate(client, r)
	case apifront.PatchRequest:
		s.handlePatch(client, r)
	case apifront.ShutdownRequest:
		s.handleShutdown(client)
	default:
		log.Errorf("unrecognized api request type %T from client %d", req, client)
	}
}

func (s *Service) handleID(client apifront.ClientId, req apifront.IdRequest) {
	if req.Nickname == nil {
		s.apiFront.SendResponse(client, apifront.IdResponse{Peer: s.selfID})
		return
	}

	peer, ok := s.peerStore.NicknameToPeer(*req.Nickname)
	if !ok {
		s.apiFront.SendResponse(client, apifront.IdResponse{Err: apierrors.UnknownNickname})
		return
	}
	s.apiFront.SendResponse(client, apifront.IdResponse{Peer: peer})
}

func (s *Service) handleAddPeer(client apifront.ClientId, req apifront.AddPeerRequest) {
	err := s.peerStore.AddPeer(req.Peer, req.Nickname)
	s.apiFront.SendResponse(client, apifront.AddPeerResponse{Err: err})
}

func (s *Service) handleUpdate(client apifront.ClientId, req apifront.UpdateRequest) {
	if !s.peerStore.Contains(req.Peer) {
		s.apiFront.SendResponse(client, apifront.UpdateResponse{Err: apierrors.UnknownPeerId})
		return
	}

	path, err := s.ancestorPath(req.Peer)
	if err != nil {
		log.Errorf("computing ancestor path for %s: %v", req.Peer, err)
		s.apiFront.SendResponse(client, apifront.UpdateResponse{Err: apierrors.NewTransportError(err)})
		return
	}

	id, err := s.swarmFront.SendRequest(req.Peer, &swarmfront.UpdateRequest{Path: path})
	if err != nil {
		log.Errorf("dispatching update request to %s: %v", req.Peer, err)
		s.apiFront.SendResponse(client, apifront.UpdateResponse{Err: apierrors.NewTransportError(err)})
		return
	}

	// Do not reply yet: the response is delivered once the peer's
	// SwarmResponse arrives (spec §4.1, §4.1.3).
	s.correlationTable.Insert(id, client)
}

func (s *Service) handlePatch(client apifront.ClientId, req apifront.PatchRequest) {
	if !s.peerStore.Contains(req.Peer) {
		s.apiFront.SendResponse(client, apifront.PatchResponse{Err: apierrors.UnknownPeerId})
		return
	}

	id, err := s.swarmFront.SendRequest(req.Peer, &swarmfront.PatchRequest{Commit: req.Commit})
	if err != nil {
		log.Errorf("dispatching patch request to %s: %v", req.Peer, err)
		s.apiFront.SendResponse(client, apifront.PatchResponse{Err: apierrors.NewTransportError(err)})
		return
	}
	s.correlationTable.Insert(id, client)
}

func (s *Service) handleShutdown(client apifront.ClientId) {
	s.keepServing = false
	s.apiFront.SendResponse(client, apifront.ShutdownResponse{})
}

// ancestorPath computes the path field of an outbound Update request
// (spec §4.1.1): the local HEAD ancestor chain, tip-first, truncated at
// (and including) the most recent known common ancestor with peer, or the
// repository root if none is yet known. Always returns a non-empty slice
// (spec §8 invariant 5).
func (s *Service) ancestorPath(peer peerid.ID) ([]gitrepo.Commit, error) {
	anchor, ok := s.peerStore.MostRecentCommonAncestor(peer)
	if !ok {
		root, err := s.repo.Root()
		if err != nil {
			return nil, err
		}
		anchor = root
	}

	ancestors, err := s.repo.Ancestors()
	if err != nil {
		return nil, err
	}

	path := make([]gitrepo.Commit, 0, len(ancestors)+1)
	for _, c := range ancestors {
		path = append(path, c)
		if c == anchor {
			break
		}
	}
	if len(path) == 0 || path[len(path)-1] != anchor {
		path = append(path, anchor)
	}
	return path, nil
}

func (s *Service) handleSwarmEvent(ev swarmfront.Event) {
	switch e := ev.(type) {
	case swarmfront.RequestEvent:
		s.handleSwarmRequest(e)
	case swarmfront.ResponseEvent:
		s.handleSwarmResponse(e)
	case swarmfront.DiscoveredEvent:
		log.Debugf("discovered %d peer(s)", len(e.Peers))
	case swarmfront.ConnectionEstablishedEvent:
		log.Debugf("connection established with %s at %s", e.Peer, e.Address)
	case swarmfront.NewListenAddrEvent:
		log.Infof("listening on %s", e.Address)
	default:
		log.Errorf("unrecognized swarm event type %T", ev)
	}
}

// handleSwarmRequest implements the peer allow-list policy (spec §4.1.4):
// every inbound swarm message from a peer not in the peer store is
// dropped uniformly, with a warning.
func (s *Service) handleSwarmRequest(e swarmfront.RequestEvent) {
	if !s.peerStore.Contains(e.Peer) {
		log.Warnf("dropping swarm request from unregistered peer %s", e.Peer)
		return
	}

	switch req := e.Request.(type) {
	case *swarmfront.UpdateRequest:
		s.handleSwarmUpdateRequest(e.Peer, req, e.Channel)
	case *swarmfront.PatchRequest:
		// Patch has no concrete handler in the source across revisions
		// (spec §9 open question); reply with an empty envelope rather
		// than leaving the peer's stream hanging.
		if err := s.swarmFront.SendResponse(e.Channel, &swarmfront.PatchResponse{}); err != nil {
			log.Warnf("replying to patch request from %s: %v", e.Peer, err)
		}
	default:
		log.Errorf("unrecognized swarm request type %T from %s", req, e.Peer)
	}
}

// handleSwarmUpdateRequest implements spec §4.1.2.
func (s *Service) handleSwarmUpdateRequest(peer peerid.ID, req *swarmfront.UpdateRequest, ch swarmfront.ResponseChannel) {
	if len(req.Path) == 0 {
		s.replyUpdate(ch, peer, gitrepo.NilCommit, apierrors.EmptyPath)
		return
	}

	ancestors, err := s.repo.Ancestors()
	if err != nil {
		log.Errorf("listing local ancestors while answering %s: %v", peer, err)
		s.replyUpdate(ch, peer, gitrepo.NilCommit, apierrors.NoCommonAncestor)
		return
	}

	// Tip-first iteration with no early break: the last commit that
	// satisfies the predicate overwrites match, so the loop naturally
	// lands on the oldest qualifying commit, maximizing reported common
	// history (spec §4.1.2's intentional tie-break).
	var (
		match gitrepo.Commit
		found bool
	)
	for _, c := range ancestors {
		isAncestor, err := s.repo.IsAncestorOf(c, req.Path[0])
		if err != nil {
			// path[0] may be unknown locally; c can still match by
			// appearing in the path itself.
			log.Errorf("checking ancestry of %s against %s: %v", c, req.Path[0], err)
			isAncestor = false
		}
		if c.IsIn(req.Path) || isAncestor {
			match = c
			found = true
		}
	}

	if !found {
		s.replyUpdate(ch, peer, gitrepo.NilCommit, apierrors.NoCommonAncestor)
		return
	}
	s.replyUpdate(ch, peer, match, "")
}

func (s *Service) replyUpdate(ch swarmfront.ResponseChannel, peer peerid.ID, ancestor gitrepo.Commit, rejection apierrors.UpdateRejection) {
	resp := &swarmfront.UpdateResponse{Ancestor: ancestor, Rejection: rejection}
	if err := s.swarmFront.SendResponse(ch, resp); err != nil {
		// A double-send or channel-closed error is logged, not
		// propagated (spec §4.1.2).
		log.Warnf("replying to update request from %s: %v", peer, err)
	}
}

// handleSwarmResponse implements spec §4.1.3, gated by the same
// allow-list policy as inbound requests (spec §4.1.4, §9: this applies
// even to replies to requests the local daemon itself initiated).
func (s *Service) handleSwarmResponse(e swarmfront.ResponseEvent) {
	if !s.peerStore.Contains(e.Peer) {
		log.Warnf("dropping swarm response from unregistered peer %s", e.Peer)
		return
	}

	client, ok := s.correlationTable.Remove(e.RequestId)
	if !ok {
		log.Warnf("stale reply for request %d from %s, dropping", e.RequestId, e.Peer)
		return
	}

	switch resp := e.Response.(type) {
	case *swarmfront.UpdateResponse:
		s.handleSwarmUpdateResponse(client, e.Peer, resp)
	case *swarmfront.PatchResponse:
		s.apiFront.SendResponse(client, apifront.PatchResponse{})
	default:
		log.Errorf("unrecognized swarm response type %T from %s", resp, e.Peer)
	}
}

func (s *Service) handleSwarmUpdateResponse(client apifront.ClientId, peer peerid.ID, resp *swarmfront.UpdateResponse) {
	if resp.Rejection == "" {
		if err := s.peerStore.SetMostRecentCommonAncestor(peer, resp.Ancestor); err != nil {
			log.Errorf("persisting most recent common ancestor for %s: %v", peer, err)
		}
	} else {
		log.Debugf("peer %s rejected update: %s", peer, resp.Rejection)
	}

	// Spec §9 open question: the local caller currently sees only
	// Ok(()) regardless of the peer-side rejection; NoCommonAncestor and
	// EmptyPath are absorbed here, not surfaced to the API caller.
	s.apiFront.SendResponse(client, apifront.UpdateResponse{})
}
