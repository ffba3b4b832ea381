// Package ident interns symbol and sort names into small dense handles and
// exposes the non-cryptographic hash used as the base of every structural
// hash in the engine (symbol hash, term hash, DAG semantic hash, memo-map
// key).
package ident

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Atom is an interned name handle. Atoms compare equal iff their source
// strings compare equal; comparing two Atoms is an integer comparison.
type Atom uint32

// Hash returns the canonical structural hash of s. Every hash computed
// anywhere in the engine (symbol identity, term hash, DAG semantic hash)
// is either this value or a mix built from it.
func Hash(s string) uint64 {
	return xxhash.Sum64String(s)
}

// Mix combines a running hash with another hash value, in the order
// (parent, child), so that swapping argument order changes the result —
// callers that need order-independence (AC/ACU multisets) must instead
// fold with MixUnordered.
func Mix(h, other uint64) uint64 {
	h ^= other + 0x9e3779b97f4a7c15 + (h << 6) + (h >> 2)
	return h
}

// MixUnordered combines two hashes commutatively (MixUnordered(a, b) ==
// MixUnordered(b, a)), for AC/ACU multiset hashing. A fold of it over a
// list of children still depends on their order, so AC/ACU hashes are
// folded over children in their stored order, which Normalize keeps
// sorted by hash.
func MixUnordered(a, b uint64) uint64 {
	return (a + b) * 0x9e3779b97f4a7c15
}

// Table interns strings into Atoms and back. A Table is safe for
// concurrent use; it is shared by a Module for the module's lifetime.
type Table struct {
	mu      sync.RWMutex
	byName  map[string]Atom
	byAtom  []string
	hashes  []uint64
}

// NewTable creates an empty interning table.
func NewTable() *Table {
	return &Table{
		byName: make(map[string]Atom),
	}
}

// Intern returns the Atom for s, allocating a new one if s has not been
// seen before by this table.
func (t *Table) Intern(s string) Atom {
	t.mu.RLock()
	if a, ok := t.byName[s]; ok {
		t.mu.RUnlock()
		return a
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if a, ok := t.byName[s]; ok {
		return a
	}
	a := Atom(len(t.byAtom))
	t.byAtom = append(t.byAtom, s)
	t.hashes = append(t.hashes, Hash(s))
	t.byName[s] = a
	return a
}

// Lookup returns the source string for an Atom previously returned by Intern.
func (t *Table) Lookup(a Atom) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.byAtom[a]
}

// HashOf returns the precomputed structural hash for an interned Atom,
// avoiding recomputation on every symbol/term hash mix.
func (t *Table) HashOf(a Atom) uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.hashes[a]
}

// Len reports the number of distinct atoms interned so far.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byAtom)
}
