package peerstore

import (
	"sync"

	"github.com/gitpatchd/gitpatchd/internal/apierrors"
	"github.com/gitpatchd/gitpatchd/internal/gitrepo"
	"github.com/gitpatchd/gitpatchd/internal/gplog"
	"github.com/gitpatchd/gitpatchd/internal/peerid"
)

var log = gplog.Logger(gplog.SubsystemPeerStore)

// MemoryStore is a non-durable Store, generalized from the original's
// database::mem::Database sketch. It exists mainly for tests and for
// single-run throwaway daemons; its zero durability guarantee is explicit
// per spec §4.5 ("not required to be durable across restarts").
type MemoryStore struct {
	mu    sync.RWMutex
	peers map[string]peerid.ID // nickname -> peer id
	mrca  map[peerid.ID]gitrepo.Commit
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		peers: make(map[string]peerid.ID),
		mrca:  make(map[peerid.ID]gitrepo.Commit),
	}
}

func (s *MemoryStore) Contains(id peerid.ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.peers {
		if p == id {
			return true
		}
	}
	return false
}

func (s *MemoryStore) NicknameToPeer(nickname string) (peerid.ID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.peers[nickname]
	return id, ok
}

func (s *MemoryStore) MostRecentCommonAncestor(id peerid.ID) (gitrepo.Commit, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.mrca[id]
	return c, ok
}

func (s *MemoryStore) AddPeer(id peerid.ID, nickname string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log.Debugf("adding new peer to store: nickname=%s", nickname)
	if _, exists := s.peers[nickname]; exists {
		log.Debugf("nickname %s already exists", nickname)
		return apierrors.NicknameAlreadyExists
	}
	s.peers[nickname] = id
	return nil
}

func (s *MemoryStore) SetMostRecentCommonAncestor(id peerid.ID, commit gitrepo.Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mrca[id] = commit
	return nil
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
