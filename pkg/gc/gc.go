// Package gc implements the tri-color mark-sweep collector described in
// spec §4.3. It owns the global intrusive object list and the mark
// worklist, but has no idea what a "VM" or "compiler" is: the host wires
// up MarkRoots and PruneStrings callbacks that know where the roots and
// the weak string table live (pkg/vm does this in vm/gc.go). This keeps
// the collector itself unit-testable against a bare object graph, the
// way original_source/memory.c's collectGarbage is a handful of
// self-contained phases over a graph rooted elsewhere (vm.c's stack and
// compiler.c's enclosing chain).
package gc

import "github.com/kristofer/loxvm/pkg/value"

// Collector tracks every allocated object and the byte-accounting policy
// that decides when to run a collection.
type Collector struct {
	head value.Obj // head of the global allocation list

	bytesAllocated int
	nextGC         int
	stress         bool

	// MarkRoots pushes every root Value's object (if any) onto the gray
	// worklist via the supplied mark function. Set once by the owning VM.
	MarkRoots func(mark func(value.Value))

	// PruneStrings removes string-table entries whose key object ended
	// up unmarked after tracing (spec §4.3 phase 3), before sweep frees
	// them. Set once by the owning VM.
	PruneStrings func()

	gray []value.Obj

	// OnCollect, if set, is invoked with collection statistics after
	// every run. pkg/vm does not set it.
	OnCollect func(freed, kept, bytes int)
}

const initialThreshold = 1 << 20 // 1 MiB, matches clox's GC_HEAP_GROW initial default scaled to bytes

func New(stress bool) *Collector {
	return &Collector{nextGC: initialThreshold, stress: stress}
}

// Track registers a freshly allocated object into the global list and
// accounts its size toward the next collection threshold. Every
// allocation routine in the VM calls this before returning the object to
// its caller (spec §3.4).
func (c *Collector) Track(o value.Obj, size int) {
	o.SetNext(c.head)
	c.head = o
	c.bytesAllocated += size
}

// ShouldCollect reports whether the allocation accounting or stress mode
// says a collection is due. The VM calls this (and then Collect) around
// every allocation site per spec §4.3's trigger policy.
func (c *Collector) ShouldCollect() bool {
	return c.stress || c.bytesAllocated > c.nextGC
}

// Collect runs one full mark-sweep cycle: mark roots, trace until the
// gray worklist is empty, prune the weak string table, then sweep.
func (c *Collector) Collect() {
	if c.MarkRoots != nil {
		c.MarkRoots(c.MarkValue)
	}
	c.traceAll()
	if c.PruneStrings != nil {
		c.PruneStrings()
	}
	freed, kept := c.sweep()
	c.nextGC = c.bytesAllocated * 2
	if c.nextGC < initialThreshold {
		c.nextGC = initialThreshold
	}
	if c.OnCollect != nil {
		c.OnCollect(freed, kept, c.bytesAllocated)
	}
}

// MarkValue marks the object behind a Value, if it has one. Safe to call
// on any Value including non-Ref kinds.
func (c *Collector) MarkValue(v value.Value) {
	if v.Kind == value.Ref {
		c.MarkObject(v.AsObj())
	}
}

// MarkObject paints an object gray (adds it to the worklist) unless it
// is already marked black/gray from a prior push in this cycle.
func (c *Collector) MarkObject(o value.Obj) {
	if o == nil || o.Marked() {
		return
	}
	o.SetMarked(true)
	c.gray = append(c.gray, o)
}

func (c *Collector) traceAll() {
	for len(c.gray) > 0 {
		n := len(c.gray) - 1
		o := c.gray[n]
		c.gray = c.gray[:n]
		c.blacken(o)
	}
}

// blacken marks every object directly reachable from o (spec §4.3 step
// 2's per-kind reference list). This is the one place in the collector
// that needs to know the object model's shape.
func (c *Collector) blacken(o value.Obj) {
	switch obj := o.(type) {
	case *value.String:
		// no references
	case *value.Function:
		if obj.Name != nil {
			c.MarkObject(obj.Name)
		}
		if obj.Chunk != nil {
			for _, k := range obj.Chunk.Constants {
				c.MarkValue(k)
			}
		}
	case *value.Closure:
		c.MarkObject(obj.Fn)
		for _, uv := range obj.Upvalues {
			c.MarkObject(uv)
		}
		if obj.Module != nil {
			c.MarkObject(obj.Module)
		}
	case *value.Upvalue:
		if !obj.Open {
			c.MarkValue(obj.Closed)
		}
	case *value.Class:
		c.MarkObject(obj.Name)
		for _, m := range obj.Methods {
			c.MarkObject(m)
		}
		for _, v := range obj.StaticFields {
			c.MarkValue(v)
		}
		if obj.Super != nil {
			c.MarkObject(obj.Super)
		}
	case *value.Instance:
		c.MarkObject(obj.Class)
		for _, v := range obj.Fields {
			c.MarkValue(v)
		}
	case *value.BoundMethod:
		c.MarkValue(obj.Receiver)
		c.MarkObject(obj.Method)
	case *value.Array:
		for _, v := range obj.Elements {
			c.MarkValue(v)
		}
	case *value.Map:
		if marker, ok := obj.Table.(interface{ MarkRoots(func(value.Value)) }); ok {
			marker.MarkRoots(c.MarkValue)
		}
	case *value.Module:
		c.MarkObject(obj.Path)
		if gt, ok := obj.Globals.(interface {
			Each(func(*value.String, value.Value) bool)
		}); ok {
			gt.Each(func(k *value.String, v value.Value) bool {
				c.MarkObject(k)
				c.MarkValue(v)
				return true
			})
		}
	case *value.Native:
		c.MarkObject(obj.Name)
	case *value.NativeObject:
		for _, v := range obj.Slots {
			c.MarkValue(v)
		}
	}
}

// sweep walks the intrusive object list, freeing anything left unmarked
// and clearing the mark bit on survivors (spec §4.3 phase 4, §8 invariant
// "for every live object after GC, is_marked == false").
func (c *Collector) sweep() (freed, kept int) {
	var prev value.Obj
	node := c.head
	for node != nil {
		next := node.Next()
		if node.Marked() {
			node.SetMarked(false)
			prev = node
			kept++
		} else {
			if prev == nil {
				c.head = next
			} else {
				prev.SetNext(next)
			}
			freed++
		}
		node = next
	}
	return freed, kept
}

// Objects iterates the live allocation list; used by tests to sanity
// check liveness.
func (c *Collector) Objects(visit func(value.Obj)) {
	for node := c.head; node != nil; node = node.Next() {
		visit(node)
	}
}

func (c *Collector) BytesAllocated() int { return c.bytesAllocated }
