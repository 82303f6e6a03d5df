package table

import "github.com/kristofer/loxvm/pkg/value"

type mapEntry struct {
	key         value.Value
	val         value.Value
	present     bool
	isTombstone bool
}

// ValueMap backs the language-level Map type. Unlike Table, keys are
// arbitrary Values compared with value.Equal and hashed with
// value.HashValue rather than being restricted to interned strings
// (spec §4.2).
type ValueMap struct {
	entries []mapEntry
	count   int
}

func NewValueMap() *ValueMap { return &ValueMap{} }

func (m *ValueMap) Len() int {
	n := 0
	for _, e := range m.entries {
		if e.present && !e.isTombstone {
			n++
		}
	}
	return n
}

func (m *ValueMap) findEntry(entries []mapEntry, key value.Value) int {
	idx := value.HashValue(key) % uint32(len(entries))
	tombstone := -1
	for {
		e := &entries[idx]
		if !e.present {
			if tombstone != -1 {
				return tombstone
			}
			return int(idx)
		} else if e.isTombstone {
			if tombstone == -1 {
				tombstone = int(idx)
			}
		} else if value.Equal(e.key, key) {
			return int(idx)
		}
		idx = (idx + 1) % uint32(len(entries))
	}
}

func (m *ValueMap) adjustCapacity(newCap int) {
	newEntries := make([]mapEntry, newCap)
	newCount := 0
	for _, e := range m.entries {
		if !e.present || e.isTombstone {
			continue
		}
		idx := m.findEntry(newEntries, e.key)
		newEntries[idx] = mapEntry{key: e.key, val: e.val, present: true}
		newCount++
	}
	m.entries = newEntries
	m.count = newCount
}

func (m *ValueMap) Get(key value.Value) (value.Value, bool) {
	if len(m.entries) == 0 {
		return value.NilValue, false
	}
	idx := m.findEntry(m.entries, key)
	e := &m.entries[idx]
	if !e.present || e.isTombstone {
		return value.NilValue, false
	}
	return e.val, true
}

// Set inserts or updates key, returning true if the key already existed
// (spec §4.2: "a `set` that encounters the key updates in place and
// returns 'existed'").
func (m *ValueMap) Set(key, val value.Value) bool {
	if float64(m.count+1) > float64(len(m.entries))*maxLoad {
		m.adjustCapacity(growCapacity(len(m.entries)))
	}
	idx := m.findEntry(m.entries, key)
	e := &m.entries[idx]
	existed := e.present && !e.isTombstone
	isNewSlot := !e.present
	if isNewSlot {
		m.count++
	}
	*e = mapEntry{key: key, val: val, present: true}
	return existed
}

func (m *ValueMap) Delete(key value.Value) bool {
	if len(m.entries) == 0 {
		return false
	}
	idx := m.findEntry(m.entries, key)
	e := &m.entries[idx]
	if !e.present || e.isTombstone {
		return false
	}
	*e = mapEntry{present: true, isTombstone: true}
	return true
}

func (m *ValueMap) Each(fn func(k, v value.Value) bool) {
	for i := range m.entries {
		e := &m.entries[i]
		if e.present && !e.isTombstone {
			if !fn(e.key, e.val) {
				return
			}
		}
	}
}

// MarkRoots is called by the GC trace phase: a Map's keys and values are
// both reachable from the Map object (spec §4.3 step 2, "map→keys+
// values").
func (m *ValueMap) MarkRoots(mark func(value.Value)) {
	m.Each(func(k, v value.Value) bool {
		mark(k)
		mark(v)
		return true
	})
}
