package gc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kristofer/loxvm/pkg/value"
)

func TestCollectFreesUnreachableObjectsAndKeepsReachable(t *testing.T) {
	c := New(false)

	root := &value.String{Chars: []byte("kept")}
	garbage := &value.String{Chars: []byte("garbage")}
	c.Track(root, 16)
	c.Track(garbage, 16)

	c.MarkRoots = func(mark func(value.Value)) {
		mark(value.RefValue(root))
	}

	c.Collect()

	var live []value.Obj
	c.Objects(func(o value.Obj) { live = append(live, o) })
	require.Len(t, live, 1)
	require.Same(t, root, live[0])
}

func TestCollectClearsMarkBitOnSurvivors(t *testing.T) {
	c := New(false)
	root := &value.String{Chars: []byte("kept")}
	c.Track(root, 16)
	c.MarkRoots = func(mark func(value.Value)) { mark(value.RefValue(root)) }

	c.Collect()

	require.False(t, root.Marked(), "every live object must leave Collect unmarked (spec invariant)")
}

func TestCollectTracesThroughClosureToUpvalueAndFunction(t *testing.T) {
	c := New(false)

	fn := &value.Function{Chunk: value.NewChunk()}
	upvalue := &value.Upvalue{Open: false, Closed: value.IntValue(1)}
	closure := &value.Closure{Fn: fn, Upvalues: []*value.Upvalue{upvalue}}

	c.Track(fn, 32)
	c.Track(upvalue, 16)
	c.Track(closure, 24)

	c.MarkRoots = func(mark func(value.Value)) { mark(value.RefValue(closure)) }
	c.Collect()

	var live []value.Obj
	c.Objects(func(o value.Obj) { live = append(live, o) })
	require.Len(t, live, 3, "fn and upvalue are only reachable through closure")
}

func TestShouldCollectHonorsStressMode(t *testing.T) {
	c := New(true)
	require.True(t, c.ShouldCollect())

	c2 := New(false)
	require.False(t, c2.ShouldCollect())
}

func TestPruneStringsRunsBeforeSweep(t *testing.T) {
	c := New(false)
	s := &value.String{Chars: []byte("interned")}
	c.Track(s, 16)

	// s is still on the allocation list while PruneStrings runs only if
	// sweep has not happened yet.
	prunedBeforeSweep := false
	c.PruneStrings = func() {
		c.Objects(func(o value.Obj) {
			if o == s {
				prunedBeforeSweep = true
			}
		})
	}
	c.MarkRoots = func(mark func(value.Value)) {} // nothing reachable

	c.Collect()

	require.True(t, prunedBeforeSweep)
	var live []value.Obj
	c.Objects(func(o value.Obj) { live = append(live, o) })
	require.Empty(t, live)
}
