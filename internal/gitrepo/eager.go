package gitrepo

import (
	"github.com/go-errors/errors"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// EagerRepository is the production Repository, backed by go-git. It
// eagerly walks first-parent history on every call rather than caching,
// mirroring the "eager" naming of the original's git::eager module. The
// reactor does not cache either: each Update dispatch walks the history
// once for Root and once more for Ancestors.
type EagerRepository struct {
	repo *git.Repository
}

// OpenEager opens the git repository rooted at path.
func OpenEager(path string) (*EagerRepository, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, errors.Errorf("gitrepo: open %s: %v", path, err)
	}
	return &EagerRepository{repo: repo}, nil
}

func commitFromHash(h plumbing.Hash) Commit {
	var c Commit
	copy(c[:], h[:])
	return c
}

func hashFromCommit(c Commit) plumbing.Hash {
	var h plumbing.Hash
	copy(h[:], c[:len(h)])
	return h
}

func (r *EagerRepository) headCommit() (*object.Commit, error) {
	head, err := r.repo.Head()
	if err != nil {
		return nil, errors.Errorf("gitrepo: resolve HEAD: %v", err)
	}
	return r.repo.CommitObject(head.Hash())
}

// Ancestors walks first-parent history from HEAD to the root, tip-first.
func (r *EagerRepository) Ancestors() ([]Commit, error) {
	cur, err := r.headCommit()
	if err != nil {
		return nil, err
	}

	var path []Commit
	for {
		path = append(path, commitFromHash(cur.Hash))
		if cur.NumParents() == 0 {
			break
		}
		next, err := cur.Parent(0)
		if err != nil {
			return nil, errors.Errorf("gitrepo: walk parent of %s: %v", cur.Hash, err)
		}
		cur = next
	}
	return path, nil
}

// Root returns the oldest commit reachable by first-parent walk from HEAD.
func (r *EagerRepository) Root() (Commit, error) {
	path, err := r.Ancestors()
	if err != nil {
		return NilCommit, err
	}
	return path[len(path)-1], nil
}

// IsAncestorOf walks other's first-parent history looking for c.
func (r *EagerRepository) IsAncestorOf(c, other Commit) (bool, error) {
	cur, err := r.repo.CommitObject(hashFromCommit(other))
	if err != nil {
		return false, errors.Errorf("gitrepo: resolve %x: %v", other, err)
	}

	for {
		if commitFromHash(cur.Hash) == c {
			return true, nil
		}
		if cur.NumParents() == 0 {
			return false, nil
		}
		next, err := cur.Parent(0)
		if err != nil {
			return false, errors.Errorf("gitrepo: walk parent of %s: %v", cur.Hash, err)
		}
		cur = next
	}
}

var _ Repository = (*EagerRepository)(nil)
