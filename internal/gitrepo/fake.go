package gitrepo

import "fmt"

// FakeRepository is an in-memory Repository driven by an explicit
// tip-first commit chain, used by reactor tests that need
// a deterministic ancestor path without a real .git directory on disk.
type FakeRepository struct {
	// Chain is the tip-first list of commits from HEAD to the root.
	Chain []Commit
}

// NewFakeRepository builds a FakeRepository from a tip-first commit chain.
func NewFakeRepository(chain ...Commit) *FakeRepository {
	return &FakeRepository{Chain: chain}
}

func (f *FakeRepository) Ancestors() ([]Commit, error) {
	if len(f.Chain) == 0 {
		return nil, fmt.Errorf("gitrepo: fake repository has no commits")
	}
	out := make([]Commit, len(f.Chain))
	copy(out, f.Chain)
	return out, nil
}

func (f *FakeRepository) Root() (Commit, error) {
	if len(f.Chain) == 0 {
		return NilCommit, fmt.Errorf("gitrepo: fake repository has no commits")
	}
	return f.Chain[len(f.Chain)-1], nil
}

func (f *FakeRepository) IsAncestorOf(c, other Commit) (bool, error) {
	idx := -1
	for i, commit := range f.Chain {
		if commit == other {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false, fmt.Errorf("gitrepo: commit %x not found", other)
	}
	for _, commit := range f.Chain[idx:] {
		if commit == c {
			return true, nil
		}
	}
	return false, nil
}

var _ Repository = (*FakeRepository)(nil)
