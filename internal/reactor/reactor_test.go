package reactor

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/gitpatchd/gitpatchd/internal/apierrors"
	"github.com/gitpatchd/gitpatchd/internal/apifront"
	"github.com/gitpatchd/gitpatchd/internal/config"
	"github.com/gitpatchd/gitpatchd/internal/gitrepo"
	"github.com/gitpatchd/gitpatchd/internal/peerid"
	"github.com/gitpatchd/gitpatchd/internal/peerstore"
	"github.com/gitpatchd/gitpatchd/internal/swarmfront"
	"github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/require"
)

func commitN(n byte) gitrepo.Commit {
	var c gitrepo.Commit
	c[0] = n
	return c
}

func testPeerID(t *testing.T) peerid.ID {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	id, err := peerid.FromPublicKey(pub)
	require.NoError(t, err)
	return id
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	addr, err := multiaddr.NewMultiaddr("/ip4/127.0.0.1/tcp/0")
	require.NoError(t, err)
	return &config.Config{
		Keypair:      priv,
		RepoDir:      t.TempDir(),
		DatabasePath: filepath.Join(t.TempDir(), "db"),
		SwarmListen:  addr,
		APIListen:    config.APIListenAddr{UnixPath: filepath.Join(t.TempDir(), "api.sock")},
	}
}

// harness wires one reactor.Service to an in-memory API front, a mock
// swarm front, and an in-memory peer store, and runs it in the
// background for the life of the test.
type harness struct {
	cfg   *config.Config
	api   *apifront.LoopbackFront
	swarm *swarmfront.MockFront
	store peerstore.Store
	repo  gitrepo.Repository
	done  chan error
}

func newHarness(t *testing.T, repo gitrepo.Repository) *harness {
	t.Helper()

	cfg := testConfig(t)
	api := apifront.NewLoopbackFront()
	swarm := swarmfront.NewMockFront()
	store := peerstore.NewMemoryStore()

	svc, err := New(cfg, api, swarm, store, repo)
	require.NoError(t, err)

	h := &harness{cfg: cfg, api: api, swarm: swarm, store: store, repo: repo, done: make(chan error, 1)}
	go func() { h.done <- svc.Run() }()
	return h
}

func (h *harness) shutdown(t *testing.T, client *apifront.Client) {
	t.Helper()
	resp, err := client.Shutdown()
	require.NoError(t, err)
	require.Equal(t, apifront.ShutdownResponse{}, resp)

	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("reactor did not stop after Shutdown")
	}
}

func TestS1OwnID(t *testing.T) {
	repo := gitrepo.NewFakeRepository(commitN(1))
	h := newHarness(t, repo)

	want, err := peerid.FromPublicKey(h.cfg.Keypair.Public().(ed25519.PublicKey))
	require.NoError(t, err)

	client, err := h.api.NewClient()
	require.NoError(t, err)

	resp, err := client.GetID(nil)
	require.NoError(t, err)
	require.NoError(t, resp.Err)
	require.Equal(t, want, resp.Peer)

	h.shutdown(t, client)
}

func TestS2UnknownNickname(t *testing.T) {
	repo := gitrepo.NewFakeRepository(commitN(1))
	h := newHarness(t, repo)

	client, err := h.api.NewClient()
	require.NoError(t, err)

	resp, err := client.GetPeer("alice")
	require.NoError(t, err)
	require.ErrorIs(t, resp.Err, apierrors.UnknownNickname)

	h.shutdown(t, client)
}

func TestS3AddThenResolve(t *testing.T) {
	repo := gitrepo.NewFakeRepository(commitN(1))
	h := newHarness(t, repo)
	peer := testPeerID(t)

	client, err := h.api.NewClient()
	require.NoError(t, err)

	addResp, err := client.AddPeer(peer, "alice")
	require.NoError(t, err)
	require.NoError(t, addResp.Err)

	idResp, err := client.GetPeer("alice")
	require.NoError(t, err)
	require.NoError(t, idResp.Err)
	require.Equal(t, peer, idResp.Peer)

	h.shutdown(t, client)
}

func TestS4DuplicateNickname(t *testing.T) {
	repo := gitrepo.NewFakeRepository(commitN(1))
	h := newHarness(t, repo)
	peer1 := testPeerID(t)
	peer2 := testPeerID(t)

	client, err := h.api.NewClient()
	require.NoError(t, err)

	_, err = client.AddPeer(peer1, "alice")
	require.NoError(t, err)

	resp, err := client.AddPeer(peer2, "alice")
	require.NoError(t, err)
	require.ErrorIs(t, resp.Err, apierrors.NicknameAlreadyExists)

	h.shutdown(t, client)
}

// TestS5TwoDaemonsMutualAddPeer exercises the cross-resolution half of
// scenario S5 directly at the reactor level: once two independently
// running reactors have each registered the other under a nickname
// (standing in for discovery, which belongs to the swarm transport, not
// the reactor), each resolves the other's nickname to the right PeerId.
func TestS5TwoDaemonsMutualAddPeer(t *testing.T) {
	repoA := gitrepo.NewFakeRepository(commitN(1))
	repoB := gitrepo.NewFakeRepository(commitN(2))
	hA := newHarness(t, repoA)
	hB := newHarness(t, repoB)

	peerA, err := peerid.FromPublicKey(hA.cfg.Keypair.Public().(ed25519.PublicKey))
	require.NoError(t, err)
	peerB, err := peerid.FromPublicKey(hB.cfg.Keypair.Public().(ed25519.PublicKey))
	require.NoError(t, err)

	clientA, err := hA.api.NewClient()
	require.NoError(t, err)
	clientB, err := hB.api.NewClient()
	require.NoError(t, err)

	_, err = clientA.AddPeer(peerB, "B")
	require.NoError(t, err)
	_, err = clientB.AddPeer(peerA, "A")
	require.NoError(t, err)

	respA, err := clientA.GetPeer("B")
	require.NoError(t, err)
	require.Equal(t, peerB, respA.Peer)

	respB, err := clientB.GetPeer("A")
	require.NoError(t, err)
	require.Equal(t, peerA, respB.Peer)

	hA.shutdown(t, clientA)
	hB.shutdown(t, clientB)
}

func TestS6UpdateToUnknownPeerDispatchesNoSwarmRequest(t *testing.T) {
	repo := gitrepo.NewFakeRepository(commitN(1))
	h := newHarness(t, repo)
	unknown := testPeerID(t)

	client, err := h.api.NewClient()
	require.NoError(t, err)

	resp, err := client.Update(unknown)
	require.NoError(t, err)
	require.ErrorIs(t, resp.Err, apierrors.UnknownPeerId)

	require.Empty(t, h.swarm.Sent)

	h.shutdown(t, client)
}

// TestUpdateDispatchToUnreachablePeerReturnsTransportError covers a
// registered peer that the swarm transport simply cannot reach right now
// (distinct from TestS6UpdateToUnknownPeerDispatchesNoSwarmRequest above, where the peer was never
// registered at all): the caller must see the real dispatch failure as an
// apierrors.TransportError, not be misdiagnosed against UnknownPeerId.
func TestUpdateDispatchToUnreachablePeerReturnsTransportError(t *testing.T) {
	repo := gitrepo.NewFakeRepository(commitN(1))
	h := newHarness(t, repo)
	peer := testPeerID(t)

	client, err := h.api.NewClient()
	require.NoError(t, err)

	_, err = client.AddPeer(peer, "alice")
	require.NoError(t, err)

	h.swarm.SendErr = fmt.Errorf("dial peer: connection refused")

	resp, err := client.Update(peer)
	require.NoError(t, err)
	require.Error(t, resp.Err)
	require.NotErrorIs(t, resp.Err, apierrors.UnknownPeerId)
	var transportErr apierrors.TransportError
	require.ErrorAs(t, resp.Err, &transportErr)
	require.Contains(t, resp.Err.Error(), "connection refused")

	patchResp, err := client.Patch(peer, commitN(1))
	require.NoError(t, err)
	require.Error(t, patchResp.Err)
	require.ErrorAs(t, patchResp.Err, &transportErr)

	h.shutdown(t, client)
}

// TestUpdateDispatchesNonEmptyPath covers §4.1.1 and §8 invariant 5: the
// outbound SwarmRequest::Update always carries a non-empty path, and the
// reactor does not reply to the API caller until the swarm round-trip
// completes.
func TestUpdateDispatchesNonEmptyPath(t *testing.T) {
	repo := gitrepo.NewFakeRepository(commitN(3), commitN(2), commitN(1))
	h := newHarness(t, repo)
	peer := testPeerID(t)

	client, err := h.api.NewClient()
	require.NoError(t, err)

	_, err = client.AddPeer(peer, "alice")
	require.NoError(t, err)

	done := make(chan apifront.UpdateResponse, 1)
	go func() {
		resp, err := client.Update(peer)
		require.NoError(t, err)
		done <- resp
	}()

	require.Eventually(t, func() bool {
		return len(h.swarm.Sent) == 1
	}, time.Second, 10*time.Millisecond)

	sent := h.swarm.Sent[0]
	require.Equal(t, peer, sent.Peer)
	req, ok := sent.Request.(*swarmfront.UpdateRequest)
	require.True(t, ok)
	require.NotEmpty(t, req.Path)
	require.Equal(t, commitN(1), req.Path[len(req.Path)-1])

	// Reply on the swarm side; only then should the API caller unblock.
	h.swarm.Inject(swarmfront.ResponseEvent{
		Peer:      peer,
		RequestId: sent.RequestId,
		Response:  &swarmfront.UpdateResponse{Ancestor: commitN(1)},
	})

	select {
	case resp := <-done:
		require.NoError(t, resp.Err)
	case <-time.After(3 * time.Second):
		t.Fatal("update response never delivered")
	}

	mrca, ok := h.store.MostRecentCommonAncestor(peer)
	require.True(t, ok)
	require.Equal(t, commitN(1), mrca)

	h.shutdown(t, client)
}

// TestStaleReplyIsDroppedSafely covers §4.4 and §8 invariant 6: a swarm
// response whose RequestId was never inserted (or already consumed) must
// not mutate the peer store or crash the reactor.
func TestStaleReplyIsDroppedSafely(t *testing.T) {
	repo := gitrepo.NewFakeRepository(commitN(1))
	h := newHarness(t, repo)
	peer := testPeerID(t)

	client, err := h.api.NewClient()
	require.NoError(t, err)

	_, err = client.AddPeer(peer, "alice")
	require.NoError(t, err)

	h.swarm.Inject(swarmfront.ResponseEvent{
		Peer:      peer,
		RequestId: swarmfront.RequestId(9999),
		Response:  &swarmfront.UpdateResponse{Ancestor: commitN(1)},
	})

	// The reactor must still be responsive afterwards, and the peer
	// store must remain untouched by the stale reply.
	resp, err := client.GetPeer("alice")
	require.NoError(t, err)
	require.NoError(t, resp.Err)

	_, ok := h.store.MostRecentCommonAncestor(peer)
	require.False(t, ok)

	h.shutdown(t, client)
}

// TestPeerGateDropsUnregisteredSender covers §4.1.4 and §8 invariant 3:
// an inbound swarm request from a PeerId that was never added is dropped
// before touching any state, and no response is ever sent back.
func TestPeerGateDropsUnregisteredSender(t *testing.T) {
	repo := gitrepo.NewFakeRepository(commitN(1))
	h := newHarness(t, repo)
	stranger := testPeerID(t)

	client, err := h.api.NewClient()
	require.NoError(t, err)

	ev, pending := swarmfront.NewInboundRequest(stranger, &swarmfront.UpdateRequest{
		Path: []gitrepo.Commit{commitN(1)},
	})
	h.swarm.Inject(ev)

	respCh := make(chan swarmfront.Response, 1)
	go func() { respCh <- pending.Wait() }()

	select {
	case <-respCh:
		t.Fatal("reactor answered a request from an unregistered peer")
	case <-time.After(200 * time.Millisecond):
		// Expected: no response ever arrives for a gated sender.
	}

	// The reactor must still be alive and answering legitimate requests.
	resp, err := client.GetID(nil)
	require.NoError(t, err)
	require.NoError(t, resp.Err)

	h.shutdown(t, client)
}

// TestClientIdUniqueness covers §8 invariant 1.
func TestClientIdUniqueness(t *testing.T) {
	front := apifront.NewLoopbackFront()

	seen := make(map[apifront.ClientId]bool)
	for i := 0; i < 10; i++ {
		c, err := front.NewClient()
		require.NoError(t, err)
		require.False(t, seen[c.ID()])
		seen[c.ID()] = true
	}
}

// TestShutdownFinality covers §8 invariant 4: a Shutdown request is
// answered with a ShutdownResponse and Run then returns nil.
func TestShutdownFinality(t *testing.T) {
	repo := gitrepo.NewFakeRepository(commitN(1))
	h := newHarness(t, repo)

	client, err := h.api.NewClient()
	require.NoError(t, err)

	h.shutdown(t, client)
}
