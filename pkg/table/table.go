// Package table implements the two open-addressing hash tables spec §4.2
// calls for: Table, keyed by interned strings (used for the VM-wide
// string-intern table, globals, builtins, and const-markers), and
// ValueMap, keyed by arbitrary Values via the language's own equality
// and hash (used to back the language-level Map type).
//
// Both share the same probing/tombstone/resize strategy, grounded in the
// classic clox table.c design described in original_source/table.c: 75%
// max load factor, linear probing, and tombstones represented as a
// present-but-keyless entry so deletion doesn't break probe chains.
package table

import "github.com/kristofer/loxvm/pkg/value"

const maxLoad = 0.75

type entry struct {
	key           *value.String
	val           value.Value
	present       bool // false forever means "never used"; true+key==nil means tombstone
	isTombstone   bool
}

// Table maps interned string keys to Values. One instance serves as the
// VM's global string-intern table; other instances serve as a module's
// globals table and the builtins table (spec §4.2).
type Table struct {
	entries []entry
	count   int // live entries + tombstones, used against maxLoad
}

func New() *Table { return &Table{} }

func (t *Table) Len() int {
	n := 0
	for _, e := range t.entries {
		if e.present && !e.isTombstone {
			n++
		}
	}
	return n
}

func (t *Table) capacity() int { return len(t.entries) }

func (t *Table) findEntry(entries []entry, key *value.String) int {
	idx := key.Hash % uint32(len(entries))
	var tombstone = -1
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
		} else if e.key == key || (e.key.Hash == key.Hash && string(e.key.Chars) == string(key.Chars)) {
			return int(idx)
		}
		idx = (idx + 1) % uint32(len(entries))
	}
}

func (t *Table) adjustCapacity(newCap int) {
	newEntries := make([]entry, newCap)
	newCount := 0
	for _, e := range t.entries {
		if !e.present || e.isTombstone {
			continue
		}
		idx := t.findEntry(newEntries, e.key)
		newEntries[idx] = entry{key: e.key, val: e.val, present: true}
		newCount++
	}
	t.entries = newEntries
	t.count = newCount
}

// Get looks up key and reports whether it was present.
func (t *Table) Get(key *value.String) (value.Value, bool) {
	if len(t.entries) == 0 {
		return value.NilValue, false
	}
	idx := t.findEntry(t.entries, key)
	e := &t.entries[idx]
	if !e.present || e.isTombstone {
		return value.NilValue, false
	}
	return e.val, true
}

// GetStr is a convenience for callers that only have raw bytes, used by
// value.GlobalTable so pkg/value doesn't need an ObjString to probe a
// module's globals (it builds a throwaway String with value.NewString
// for the probe rather than interning one).
func (t *Table) GetStr(name string) (value.Value, bool) {
	return t.Get(value.NewString(name))
}

// Set inserts or updates key, returning true if this created a brand new
// key (as opposed to overwriting an existing one) — callers use that to
// detect "already declared" situations.
func (t *Table) Set(key *value.String, val value.Value) bool {
	if float64(t.count+1) > float64(t.capacity())*maxLoad {
		cap := growCapacity(t.capacity())
		t.adjustCapacity(cap)
	}
	idx := t.findEntry(t.entries, key)
	e := &t.entries[idx]
	isNew := !e.present || e.isTombstone
	if isNew && !e.isTombstone {
		t.count++
	}
	*e = entry{key: key, val: val, present: true}
	return isNew
}

func (t *Table) SetStr(name string, val value.Value) bool {
	return t.Set(value.NewString(name), val)
}

// Delete removes key, leaving a tombstone behind so later probes that
// skipped over this slot while looking for a different key still work.
func (t *Table) Delete(key *value.String) bool {
	if len(t.entries) == 0 {
		return false
	}
	idx := t.findEntry(t.entries, key)
	e := &t.entries[idx]
	if !e.present || e.isTombstone {
		return false
	}
	*e = entry{present: true, isTombstone: true}
	return true
}

// FindInterned returns the canonical String object matching the given
// raw bytes and precomputed hash, or nil if no such string has been
// interned yet. This is the lookup half of interning (spec §3.3): the
// caller allocates a new ObjString only on a miss.
func (t *Table) FindInterned(bytes []byte, hash uint32) *value.String {
	if len(t.entries) == 0 {
		return nil
	}
	idx := hash % uint32(len(t.entries))
	for {
		e := &t.entries[idx]
		if !e.present {
			return nil
		}
		if !e.isTombstone && e.key.Hash == hash && string(e.key.Chars) == string(bytes) {
			return e.key
		}
		idx = (idx + 1) % uint32(len(t.entries))
	}
}

// Each calls fn for every live (non-tombstone) entry.
func (t *Table) Each(fn func(key *value.String, val value.Value) bool) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.present && !e.isTombstone {
			if !fn(e.key, e.val) {
				return
			}
		}
	}
}

// RemoveUnreachable implements the string-table pruning phase of GC
// (spec §4.3 phase 3): the table holds weak references to strings, so
// before sweep frees unmarked string objects this must drop any entry
// whose key is unmarked, or the entry would dangle.
func (t *Table) RemoveUnreachable() {
	for i := range t.entries {
		e := &t.entries[i]
		if e.present && !e.isTombstone && !e.key.Marked() {
			*e = entry{present: true, isTombstone: true}
		}
	}
}

func growCapacity(old int) int {
	if old < 8 {
		return 8
	}
	return old * 2
}
