// Package natset implements a bit-indexed set of non-negative integers,
// used throughout compilation for leq_sorts, occurs-below/context bit-sets
// on terms, and the unbound/condition-variable sets of a pre-equation's
// VariableInfo. No third-party bitset library is present anywhere in the
// example pack this engine was grounded on, so this is built directly on
// math/bits word operations (see DESIGN.md).
package natset

import "math/bits"

const wordBits = 64

// NatSet is a growable bitset of non-negative ints.
type NatSet struct {
	words []uint64
}

// New creates an empty NatSet, optionally preallocated to hold indices up
// to capacity-1 without reallocation.
func New(capacity int) *NatSet {
	n := &NatSet{}
	if capacity > 0 {
		n.words = make([]uint64, (capacity+wordBits-1)/wordBits)
	}
	return n
}

func (s *NatSet) ensure(word int) {
	if word >= len(s.words) {
		grown := make([]uint64, word+1)
		copy(grown, s.words)
		s.words = grown
	}
}

// Set adds i to the set.
func (s *NatSet) Set(i int) {
	w, b := i/wordBits, uint(i%wordBits)
	s.ensure(w)
	s.words[w] |= 1 << b
}

// Clear removes i from the set.
func (s *NatSet) Clear(i int) {
	w := i / wordBits
	if w >= len(s.words) {
		return
	}
	s.words[w] &^= 1 << uint(i%wordBits)
}

// Test reports whether i is a member.
func (s *NatSet) Test(i int) bool {
	w := i / wordBits
	if w >= len(s.words) {
		return false
	}
	return s.words[w]&(1<<uint(i%wordBits)) != 0
}

// ClearAll resets every bit, retaining the backing storage.
func (s *NatSet) ClearAll() {
	for i := range s.words {
		s.words[i] = 0
	}
}

// Cardinality returns the number of set bits.
func (s *NatSet) Cardinality() int {
	n := 0
	for _, w := range s.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// IsEmpty reports whether no bits are set.
func (s *NatSet) IsEmpty() bool {
	for _, w := range s.words {
		if w != 0 {
			return false
		}
	}
	return true
}

func wordLen(a, b *NatSet) int {
	n := len(a.words)
	if len(b.words) > n {
		n = len(b.words)
	}
	return n
}

// Union sets this set to the union of itself and other.
func (s *NatSet) Union(other *NatSet) {
	n := wordLen(s, other)
	s.ensure(n - 1)
	for i := 0; i < len(other.words); i++ {
		s.words[i] |= other.words[i]
	}
}

// Intersect sets this set to the intersection of itself and other.
func (s *NatSet) Intersect(other *NatSet) {
	for i := range s.words {
		if i < len(other.words) {
			s.words[i] &= other.words[i]
		} else {
			s.words[i] = 0
		}
	}
}

// Subtract removes every member of other from this set.
func (s *NatSet) Subtract(other *NatSet) {
	for i := range s.words {
		if i < len(other.words) {
			s.words[i] &^= other.words[i]
		}
	}
}

// IsSubsetOf reports whether every member of s is also a member of other.
func (s *NatSet) IsSubsetOf(other *NatSet) bool {
	for i, w := range s.words {
		var ow uint64
		if i < len(other.words) {
			ow = other.words[i]
		}
		if w&^ow != 0 {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (s *NatSet) Clone() *NatSet {
	cp := &NatSet{words: make([]uint64, len(s.words))}
	copy(cp.words, s.words)
	return cp
}

// NextSet returns the smallest member of the set that is >= from, and true;
// or (0, false) if no such member exists. Used to implement
// constrain_to_smaller_sort's "iterate from the current sort index" scan.
func (s *NatSet) NextSet(from int) (int, bool) {
	if from < 0 {
		from = 0
	}
	w := from / wordBits
	if w >= len(s.words) {
		return 0, false
	}
	bitOff := uint(from % wordBits)
	first := s.words[w] >> bitOff
	if first != 0 {
		return from + bits.TrailingZeros64(first), true
	}
	for w++; w < len(s.words); w++ {
		if s.words[w] != 0 {
			return w*wordBits + bits.TrailingZeros64(s.words[w]), true
		}
	}
	return 0, false
}

// Members returns every set bit in ascending order. Intended for debugging
// and tests, not the hot path.
func (s *NatSet) Members() []int {
	var out []int
	for i, ok := s.NextSet(0); ok; i, ok = s.NextSet(i + 1) {
		out = append(out, i)
	}
	return out
}

// Equal reports whether two sets contain exactly the same members.
func Equal(a, b *NatSet) bool {
	n := wordLen(a, b)
	for i := 0; i < n; i++ {
		var aw, bw uint64
		if i < len(a.words) {
			aw = a.words[i]
		}
		if i < len(b.words) {
			bw = b.words[i]
		}
		if aw != bw {
			return false
		}
	}
	return true
}
