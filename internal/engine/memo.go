package engine

import "github.com/dagterm/rewrite/internal/dagnode"

// MemoTable caches the result of one equation application, keyed by the
// semantic hash of the node the equation was applied to, consulted only
// for symbols with their MemoFlag set (spec.md §4.2). The cached node is
// the one-step result, not necessarily a fully reduced normal form.
//
// Resolves SPEC_FULL.md §9 Open Question (a): rather than a raw Go map
// keyed by hash (which would hide collision handling behind the runtime's
// own bucket chains and give no capacity control), the table is a
// fixed-size open-addressing array keyed on hash % capacity with linear
// probing, mirroring the teacher's GlobalRegexCache's bounded, explicitly
// sized cache over an unbounded map.
type MemoTable struct {
	capacity int
	used     []bool
	keys     []uint64
	values   []*dagnode.DagNode
}

// NewMemoTable creates a memo table with room for capacity entries; once
// every slot is taken, Insert overwrites the new key's home slot.
func NewMemoTable(capacity int) *MemoTable {
	if capacity < 1 {
		capacity = 1
	}
	return &MemoTable{
		capacity: capacity,
		used:     make([]bool, capacity),
		keys:     make([]uint64, capacity),
		values:   make([]*dagnode.DagNode, capacity),
	}
}

// Lookup returns the cached result node for key, if present.
func (m *MemoTable) Lookup(key uint64) (*dagnode.DagNode, bool) {
	start := int(key % uint64(m.capacity))
	for probe := 0; probe < m.capacity; probe++ {
		slot := (start + probe) % m.capacity
		if !m.used[slot] {
			return nil, false
		}
		if m.keys[slot] == key {
			return m.values[slot], true
		}
	}
	return nil, false
}

// Insert records value as the result for key, evicting whatever occupied
// the key's home slot after a full cycle finds no empty one (an
// unbounded-growth memo table is explicitly out of scope; a full table
// degrades to last-write-wins at its probe limit rather than growing).
func (m *MemoTable) Insert(key uint64, value *dagnode.DagNode) {
	start := int(key % uint64(m.capacity))
	for probe := 0; probe < m.capacity; probe++ {
		slot := (start + probe) % m.capacity
		if !m.used[slot] || m.keys[slot] == key {
			m.used[slot] = true
			m.keys[slot] = key
			m.values[slot] = value
			return
		}
	}
	m.used[start] = true
	m.keys[start] = key
	m.values[start] = value
}

// Clear empties the table (auto-clear-memo interpreter attribute).
func (m *MemoTable) Clear() {
	for i := range m.used {
		m.used[i] = false
	}
}
