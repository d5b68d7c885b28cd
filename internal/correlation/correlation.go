// Package correlation holds the Reactor's outbound-swarm-request ledger
// (spec §4.4): a map from RequestId to the ClientId awaiting its reply.
// It is deliberately a dumb, unsynchronized map — per spec §9, correlation
// is reactor-private, with single-writer discipline obviating locks, the
// same way lnd's htlcswitch keeps its in-flight-payment index private to
// a single goroutine rather than behind a mutex.
package correlation

import (
	"github.com/gitpatchd/gitpatchd/internal/apifront"
	"github.com/gitpatchd/gitpatchd/internal/swarmfront"
)

// Table maps outbound swarm RequestIds to the ClientId that should
// receive the eventual reply.
type Table struct {
	entries map[swarmfront.RequestId]apifront.ClientId
}

// New returns an empty Table.
func New() *Table {
	return &Table{entries: make(map[swarmfront.RequestId]apifront.ClientId)}
}

// Insert records that a reply to id should be routed to client. Callers
// must insert before the corresponding swarm response could possibly be
// observed (spec §5's ordering guarantee: send_request returns its
// RequestId strictly before any response for that id is observable).
func (t *Table) Insert(id swarmfront.RequestId, client apifront.ClientId) {
	t.entries[id] = client
}

// Remove deletes id from the table and reports the ClientId it was bound
// to, if any. Called exactly once per reply: the first reply for id
// removes the entry (ok == true); every subsequent reply for the same id,
// or a reply for an id that was never inserted (a stale reply), finds
// nothing and reports ok == false, which callers must treat as a no-op,
// not a fatal error (spec §4.4, §8 invariant 6).
func (t *Table) Remove(id swarmfront.RequestId) (apifront.ClientId, bool) {
	client, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	return client, ok
}

// Contains reports whether id is still awaiting a reply.
func (t *Table) Contains(id swarmfront.RequestId) bool {
	_, ok := t.entries[id]
	return ok
}

// Len reports the number of in-flight requests, for tests and metrics.
func (t *Table) Len() int {
	return len(t.entries)
}
