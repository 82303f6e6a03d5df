package value

import (
	"fmt"
	"math"
)

// fnv1a32 hashes a byte slice with the 32-bit FNV-1a algorithm, the
// algorithm spec §3.2 mandates for cached string hashes and spec §4.2
// mandates for the generic value hash.
func fnv1a32(data []byte) uint32 {
	var h uint32 = 2166136261
	for _, b := range data {
		h ^= uint32(b)
		h *= 16777619
	}
	return h
}

// HashBytes is exported for pkg/vm's string interning, which hashes raw
// candidate string bytes before an ObjString exists for them to probe
// pkg/table's FindInterned (lookup-before-intern, spec §4.2).
func HashBytes(data []byte) uint32 { return fnv1a32(data) }

// HashValue computes the generic value hash used by the language-level
// Map type (spec §4.2): FNV-1a over the tagged representation, with
// strings hashed by content (so two interned copies — which should never
// both exist, but defensively — hash identically) and every other
// reference hashed by identity (object address).
func HashValue(v Value) uint32 {
	switch v.Kind {
	case Nil:
		return fnv1a32([]byte{0})
	case Absence:
		return fnv1a32([]byte{1})
	case Bool:
		if v.b {
			return fnv1a32([]byte{2, 1})
		}
		return fnv1a32([]byte{2, 0})
	case Int:
		buf := [5]byte{3, byte(v.i), byte(v.i >> 8), byte(v.i >> 16), byte(v.i >> 24)}
		return fnv1a32(buf[:])
	case Float:
		bits := math.Float64bits(v.f)
		buf := [9]byte{4}
		for i := 0; i < 8; i++ {
			buf[i+1] = byte(bits >> (8 * i))
		}
		return fnv1a32(buf[:])
	case Ref:
		if s, ok := v.obj.(*String); ok {
			return s.Hash
		}
		// Non-string references hash by identity. %p on an interface
		// value yields the address of the concrete pointer it wraps,
		// which is stable for the object's lifetime (objects never move;
		// the GC frees in place, it does not compact).
		return fnv1a32([]byte(fmt.Sprintf("%p", v.obj)))
	default:
		return 0
	}
}

// NewString constructs an interned-ready String object with its hash
// precomputed. Callers that need actual interning (sharing one object
// per distinct content) go through pkg/vm's string table, not this
// constructor directly — this just builds the object.
func NewString(s string) *String {
	b := []byte(s)
	return &String{Chars: b, Hash: fnv1a32(b)}
}
