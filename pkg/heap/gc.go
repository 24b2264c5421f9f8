package heap

import "sync/atomic"

// RootProvider is implemented by the thread registry (pkg/vm) — heap
// can't import vm without creating an import cycle, so the collector only
// knows "pause everyone, hand me their roots" and "let everyone go".
type RootProvider interface {
	// PauseAllAndRoots freezes every registered Java thread at its
	// safepoint (spec.md section 4.4 step 2) and returns the union of
	// their local-variable/operand-stack references and the objects whose
	// monitors their synchronized methods hold. Each thread's own
	// java.lang.Thread object is not among the returned roots.
	PauseAllAndRoots() []Reference
	// Resume releases every thread paused by the matching PauseAllAndRoots.
	Resume()
}

// Collector runs the copying GC cycle (spec.md section 4.4) on its own
// goroutine, driven by a channel of requests.
type Collector struct {
	heap     *Heap
	roots    RootProvider
	requests chan struct{}
}

// NewCollector creates a collector for heap, using roots to pause threads
// and compute the thread-local portion of the root set. Call AttachCollector
// on the heap afterward so allocation can request cycles.
func NewCollector(h *Heap, roots RootProvider) *Collector {
	return &Collector{
		heap:     h,
		roots:    roots,
		requests: make(chan struct{}, 1), // coalesce back-to-back requests
	}
}

// RequestCycle asks the collector to run a cycle soon; redundant requests
// while one is already pending are dropped.
func (c *Collector) RequestCycle() {
	select {
	case c.requests <- struct{}{}:
	default:
	}
}

// Run processes GC requests until stop is closed. Intended to be launched
// as `go collector.Run(stopCh)` — the dedicated GC goroutine named in
// spec.md section 2.
func (c *Collector) Run(stop <-chan struct{}) {
	for {
		select {
		case <-c.requests:
			c.runCycle(false)
		case <-stop:
			return
		}
	}
}

// RunCycle runs a single collection synchronously if the used fraction
// warrants it; exported for tests and for a "request one and wait" caller.
func (c *Collector) RunCycle() {
	c.runCycle(false)
}

// ForceCycle runs a collection synchronously regardless of used fraction.
// Called by the allocator when a bump allocation fails outright: spec.md
// section 7 defines OutOfMemory as "allocation after GC still can't fit",
// which requires an actual cycle even when usage hasn't crossed the
// request threshold (a single oversized allocation can fail while overall
// usage is still low).
func (c *Collector) ForceCycle() {
	c.runCycle(true)
}

func (c *Collector) runCycle(force bool) {
	h := c.heap
	if !force && h.usedFraction() <= usedFractionThreshold {
		return
	}

	appRoots := c.roots.PauseAllAndRoots()
	defer c.roots.Resume()

	h.dirMu.Lock()
	defer h.dirMu.Unlock()

	activeIdx := atomic.LoadInt32(&h.active)
	destIdx := 1 - activeIdx
	dst := h.spaces[destIdx]
	var dstOffset int64

	visited := make(map[Reference]Value, len(h.dir))
	var queue []Reference

	enqueue := func(r Reference) {
		if r == 0 {
			return
		}
		if _, ok := visited[r]; ok {
			return
		}
		v, ok := h.dir[r]
		if !ok {
			return
		}
		nv := copyValue(v, dst, &dstOffset)
		visited[r] = nv
		queue = append(queue, r)
	}

	for _, r := range appRoots {
		enqueue(r)
	}
	for _, r := range h.globalRoots() {
		enqueue(r)
	}

	for len(queue) > 0 {
		r := queue[0]
		queue = queue[1:]
		nv := visited[r]
		for _, child := range outgoingRefs(nv) {
			enqueue(child)
		}
	}

	h.dir = visited
	atomic.StoreInt32(&h.active, destIdx)
	atomic.StoreInt64(&h.used, dstOffset)
}

// globalRoots returns the class-mirror / string-constant / static-object
// references spec.md names as global roots (section 4.4 step 3). spec.md
// doesn't separately call out per-class static storage as a root, but it
// must be one — nothing in the ordinary object graph points at a class's
// static-fields object, so without this bucket a live static field would
// be reclaimed the moment a cycle ran.
func (h *Heap) globalRoots() []Reference {
	var roots []Reference

	h.staticsMu.Lock()
	for _, r := range h.statics {
		roots = append(roots, r)
	}
	h.staticsMu.Unlock()

	if h.interner != nil {
		h.interner.mu.Lock()
		for _, r := range h.interner.strings {
			roots = append(roots, r)
		}
		for _, r := range h.interner.classes {
			roots = append(roots, r)
		}
		h.interner.mu.Unlock()
	}
	return roots
}

// copyValue memcpys a value's header+data into dst at the current bump
// offset, advancing it, and returns the relocated Value. The monitor
// pointer is carried over unchanged (spec.md: "Monitor state preserved
// across moves because they live in header... both of which are
// copied" — govm copies the *pointer* to the same ObjectLock rather than
// the mutex's bytes, since a live sync.Mutex cannot be safely duplicated).
func copyValue(v Value, dst []byte, offset *int64) Value {
	size := int64(v.Width())
	start := *offset
	*offset += size
	newData := dst[start : start+size]
	switch v.Kind {
	case KindObject:
		copy(newData, v.Object.Data)
		return Value{Kind: KindObject, Object: &ObjectHandle{
			Class:    v.Object.Class,
			HashCode: v.Object.HashCode,
			Lock:     v.Object.Lock,
			Data:     newData,
		}}
	default:
		copy(newData, v.Array.Data)
		return Value{Kind: KindArray, Array: &ArrayHandle{
			Component: v.Array.Component,
			Length:    v.Array.Length,
			HashCode:  v.Array.HashCode,
			Lock:      v.Array.Lock,
			Data:      newData,
		}}
	}
}

// outgoingRefs enumerates the reference-typed slots reachable directly
// from v: every reference field across v's class hierarchy for an object,
// every element slot for a reference array (spec.md section 4.4 step 4).
func outgoingRefs(v Value) []Reference {
	var refs []Reference
	switch v.Kind {
	case KindObject:
		for _, off := range v.Object.Class.InstanceRefOffsets() {
			refs = append(refs, ReadRef(v.Object.Data, off))
		}
	case KindArray:
		if v.Array.Component.IsReference() {
			for i := 0; i < v.Array.Length; i++ {
				refs = append(refs, ReadRef(v.Array.Data, i*4))
			}
		}
	}
	return refs
}
