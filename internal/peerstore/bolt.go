package peerstore

import (
	"encoding/binary"

	"github.com/go-errors/errors"
	"github.com/gitpatchd/gitpatchd/internal/apierrors"
	"github.com/gitpatchd/gitpatchd/internal/gitrepo"
	"github.com/gitpatchd/gitpatchd/internal/peerid"
	bolt "go.etcd.io/bbolt"
)

// Bucket names, mirroring channeldb's flat top-level-bucket layout.
var (
	peersBucket = []byte("peers") // nickname -> peer id
	mrcaBucket  = []byte("mrca")  // peer id -> commit
	metaBucket  = []byte("meta")  // db version info
)

const dbFilePermission = 0600

// migration mutates the bucket structure of an out-of-date database to
// the next version, the same shape as channeldb's migration type.
type migration func(tx *bolt.Tx) error

type version struct {
	number    uint32
	migration migration
}

// dbVersions lists every migration needed to bring a database up to the
// current version. Version 0 requires no migration: it's the bucket
// layout created by initBuckets below.
var dbVersions = []version{
	{number: 0, migration: nil},
}

var latestDBVersion = dbVersions[len(dbVersions)-1].number

// BoltStore is the durable Store backing the peer database file named in
// the daemon config (database_path), built the way channeldb/db.go builds
// its own boltdb-backed store: a single file, a fixed set of top-level
// buckets, and an explicit version number checked (and migrated) on open.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens (creating if necessary) the peer store file at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, dbFilePermission, nil)
	if err != nil {
		return nil, errors.Errorf("peerstore: open %s: %v", path, err)
	}

	s := &BoltStore{db: db}
	if err := s.initBuckets(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.syncVersions(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *BoltStore) initBuckets() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{peersBucket, mrcaBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
}

var versionKey = []byte("version")

func (s *BoltStore) syncVersions() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(metaBucket)
		raw := meta.Get(versionKey)

		var current uint32
		if raw != nil {
			current = binary.BigEndian.Uint32(raw)
		}

		for _, v := range dbVersions {
			if v.number <= current {
				continue
			}
			if v.migration != nil {
				if err := v.migration(tx); err != nil {
					return errors.Errorf("peerstore: migration to v%d: %v", v.number, err)
				}
			}
			current = v.number
		}

		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], latestDBVersion)
		return meta.Put(versionKey, buf[:])
	})
}

func (s *BoltStore) Contains(id peerid.ID) bool {
	found := false
	_ = s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(peersBucket).ForEach(func(_, v []byte) error {
			if len(v) == peerid.Size && peerid.ID(v) == id {
				found = true
			}
			return nil
		})
	})
	return found
}

func (s *BoltStore) NicknameToPeer(nickname string) (peerid.ID, bool) {
	var id peerid.ID
	var ok bool
	_ = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(peersBucket).Get([]byte(nickname))
		if v == nil || len(v) != peerid.Size {
			return nil
		}
		id = peerid.ID(v)
		ok = true
		return nil
	})
	return id, ok
}

func (s *BoltStore) MostRecentCommonAncestor(id peerid.ID) (gitrepo.Commit, bool) {
	var commit gitrepo.Commit
	var ok bool
	_ = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(mrcaBucket).Get(id[:])
		if v == nil || len(v) != len(commit) {
			return nil
		}
		copy(commit[:], v)
		ok = true
		return nil
	})
	return commit, ok
}

func (s *BoltStore) AddPeer(id peerid.ID, nickname string) error {
	log.Debugf("adding new peer to store: nickname=%s", nickname)
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(peersBucket)
		if b.Get([]byte(nickname)) != nil {
			log.Debugf("nickname %s already exists", nickname)
			return apierrors.NicknameAlreadyExists
		}
		return b.Put([]byte(nickname), id[:])
	})
}

func (s *BoltStore) SetMostRecentCommonAncestor(id peerid.ID, commit gitrepo.Commit) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(mrcaBucket).Put(id[:], commit[:])
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

var _ Store = (*BoltStore)(nil)
