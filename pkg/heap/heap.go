// Package heap implements the managed object/array heap: a two-semispace
// bump allocator, the Reference → HeapValue directory that lets GC move
// objects without invalidating application-held handles, and typed
// field/element access (spec.md sections 3 and 4.3).
package heap

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/shunsuke-abe/govm/pkg/monitor"
)

// ErrOutOfMemory is wrapped by bump's error whenever a semispace can't fit
// an allocation even after a collection cycle; callers use errors.Is to
// translate it into a Java OutOfMemoryError (spec.md section 7).
var ErrOutOfMemory = errors.New("heap: out of memory")

// Reference is a 32-bit opaque handle into the heap directory; 0 is null.
type Reference uint32

// DefaultMaxHeapBytes is the default size of *each* semispace (spec.md
// names "≈ 1.25 GiB default" for the whole heap; split across the two
// semispaces that's a little over 0.6 GiB each, but tests construct much
// smaller heaps via NewHeap).
const DefaultMaxHeapBytes = 640 * 1024 * 1024

// usedFractionThreshold is the used/capacity ratio that triggers a GC
// cycle request, per spec.md section 4.3/4.4.
const usedFractionThreshold = 0.25

// ClassInfo is the slice of classarea.Class that the heap needs: object
// size, and which byte offsets hold reference-typed fields (for GC root
// enumeration). Defined here rather than imported so pkg/heap and
// pkg/classarea don't form an import cycle — classarea.Class satisfies
// this interface structurally.
type ClassInfo interface {
	Name() string
	InstanceWidth() int
	StaticWidth() int
	InstanceRefOffsets() []int // offsets of reference fields, ancestor-to-descendant
	StaticRefOffsets() []int
	// FieldOffset locates a named instance field, for the handful of
	// well-known fields the heap itself populates (String.value,
	// Class.name) when interning strings and class mirrors.
	FieldOffset(name string) (offset int, ok bool)
}

// ObjectHandle is a live object: its header (class, identity hash, lock)
// plus its field data, bump-allocated out of the active semispace.
type ObjectHandle struct {
	Class    ClassInfo
	HashCode int32
	Lock     *monitor.ObjectLock
	Data     []byte
}

// ArrayHandle is a live array: its header (component type, length,
// identity hash, lock) plus its element data.
type ArrayHandle struct {
	Component Component
	Length    int
	HashCode  int32
	Lock      *monitor.ObjectLock
	Data      []byte
}

// Kind distinguishes the two shapes a HeapValue can take.
type Kind int

const (
	KindObject Kind = iota
	KindArray
)

// Value is the tagged directory entry: spec.md's "HeapValue is a tagged
// variant: Object(ObjectHandle) or Array(ArrayHandle)".
type Value struct {
	Kind   Kind
	Object *ObjectHandle
	Array  *ArrayHandle
}

// Width returns the size in bytes of this value's data payload.
func (v Value) Width() int {
	if v.Kind == KindObject {
		return len(v.Object.Data)
	}
	return len(v.Array.Data)
}

func (v Value) lock() *monitor.ObjectLock {
	if v.Kind == KindObject {
		return v.Object.Lock
	}
	return v.Array.Lock
}

// Heap owns the two semispaces, the bump pointer, and the reference
// directory.
type Heap struct {
	capacity int
	spaces   [2][]byte
	active   int32 // index into spaces of the currently-active semispace
	used     int64 // atomic byte count within the active semispace

	dirMu sync.RWMutex
	dir   map[Reference]Value

	staticsMu sync.Mutex
	statics   map[string]Reference // class name -> static object reference

	gc       GCRequester
	interner *StringInterner
}

// GCRequester is satisfied by *heap.Collector; allocation asks it to run a
// cycle rather than calling the collector directly, so the collector can
// live on its own goroutine per spec.md section 4.4.
type GCRequester interface {
	RequestCycle()
	// ForceCycle runs a collection synchronously on the caller's
	// goroutine, used to give a failed allocation one real chance to
	// free enough space before it's reported as OutOfMemory.
	ForceCycle()
}

// NewHeap creates a heap with the given per-semispace capacity in bytes.
func NewHeap(capacityPerSemispace int) *Heap {
	h := &Heap{
		capacity: capacityPerSemispace,
		dir:      make(map[Reference]Value),
		statics:  make(map[string]Reference),
	}
	h.spaces[0] = make([]byte, capacityPerSemispace)
	h.spaces[1] = make([]byte, capacityPerSemispace)
	return h
}

// AttachCollector wires the GC requester used by allocation to ask for a
// cycle once the used fraction crosses the threshold. Split from NewHeap
// because the collector itself holds a reference back to the heap.
func (h *Heap) AttachCollector(gc GCRequester) {
	h.gc = gc
}

// AttachInterner wires the string/class-mirror interner so the collector
// can treat its pools as global GC roots (spec.md section 4.4 step 3).
func (h *Heap) AttachInterner(si *StringInterner) {
	h.interner = si
}

// Used returns the number of bytes currently bump-allocated in the active
// semispace.
func (h *Heap) Used() int64 { return atomic.LoadInt64(&h.used) }

// Capacity returns the size of one semispace.
func (h *Heap) Capacity() int { return h.capacity }

func (h *Heap) usedFraction() float64 {
	return float64(h.Used()) / float64(h.capacity)
}

// bump reserves `size` bytes in the active semispace and returns the
// slice. If the semispace can't fit it, a synchronous collection is
// forced and the allocation is retried exactly once before surfacing
// ErrOutOfMemory (spec.md section 7: OutOfMemory is "allocation after GC
// still can't fit", not "allocation missed once").
func (h *Heap) bump(size int) ([]byte, error) {
	data, err := h.tryBump(size)
	if err == nil {
		return data, nil
	}
	if h.gc == nil {
		return nil, err
	}
	h.gc.ForceCycle()
	return h.tryBump(size)
}

func (h *Heap) tryBump(size int) ([]byte, error) {
	active := atomic.LoadInt32(&h.active)
	off := atomic.AddInt64(&h.used, int64(size)) - int64(size)
	if off+int64(size) > int64(h.capacity) {
		// Roll back; this allocation does not fit even empty-handed.
		atomic.AddInt64(&h.used, -int64(size))
		return nil, fmt.Errorf("%w: allocating %d bytes", ErrOutOfMemory, size)
	}
	data := h.spaces[active][off : off+int64(size)]
	return data, nil
}

// maybeTriggerGC asks the collector to run a cycle if the active
// semispace has crossed the used-fraction threshold, per spec.md section
// 4.3 ("Allocation triggers GC").
func (h *Heap) maybeTriggerGC() {
	if h.gc != nil && h.usedFraction() > usedFractionThreshold {
		h.gc.RequestCycle()
	}
}

// newReference draws a fresh, non-zero, currently-unused reference handle.
// Must be called with h.dirMu held for writing.
func (h *Heap) newReference() Reference {
	for {
		r := Reference(rand.Uint32())
		if r == 0 {
			continue
		}
		if _, exists := h.dir[r]; exists {
			continue
		}
		return r
	}
}

// register inserts a fresh HeapValue into the directory and returns its
// reference.
func (h *Heap) register(v Value) Reference {
	h.dirMu.Lock()
	defer h.dirMu.Unlock()
	r := h.newReference()
	h.dir[r] = v
	return r
}

// Get looks up the live value behind a reference. Ok is false for a null
// (0) or stale/unknown reference.
func (h *Heap) Get(ref Reference) (Value, bool) {
	if ref == 0 {
		return Value{}, false
	}
	h.dirMu.RLock()
	defer h.dirMu.RUnlock()
	v, ok := h.dir[ref]
	return v, ok
}

// NewObject allocates header + instance_width bytes for an instance of
// class, zero-filled, registers it in the directory, and returns its
// reference. Mirrors spec.md section 4.3's new_object.
func (h *Heap) NewObject(class ClassInfo) (Reference, error) {
	data, err := h.bump(class.InstanceWidth())
	if err != nil {
		return 0, err
	}
	for i := range data {
		data[i] = 0
	}
	obj := &ObjectHandle{
		Class:    class,
		HashCode: int32(rand.Uint32()),
		Lock:     monitor.NewObjectLock(),
		Data:     data,
	}
	ref := h.register(Value{Kind: KindObject, Object: obj})
	h.maybeTriggerGC()
	return ref, nil
}

// NewArray allocates an array of elementCount elements of the given
// component type. Mirrors spec.md section 4.3's new_array.
func (h *Heap) NewArray(component Component, elementCount int) (Reference, error) {
	if elementCount < 0 {
		return 0, fmt.Errorf("heap: negative array length %d", elementCount)
	}
	lengthBytes := elementCount * component.Width()
	data, err := h.bump(lengthBytes)
	if err != nil {
		return 0, err
	}
	for i := range data {
		data[i] = 0
	}
	arr := &ArrayHandle{
		Component: component,
		Length:    elementCount,
		HashCode:  int32(rand.Uint32()),
		Lock:      monitor.NewObjectLock(),
		Data:      data,
	}
	ref := h.register(Value{Kind: KindArray, Array: arr})
	h.maybeTriggerGC()
	return ref, nil
}

// GetStatic returns the once-allocated static-fields object for a class,
// allocating it on first use. Mirrors spec.md section 4.2/4.3's
// per-class static storage.
func (h *Heap) GetStatic(class ClassInfo) (Reference, error) {
	h.staticsMu.Lock()
	defer h.staticsMu.Unlock()
	if ref, ok := h.statics[class.Name()]; ok {
		return ref, nil
	}
	data, err := h.bump(class.StaticWidth())
	if err != nil {
		return 0, err
	}
	for i := range data {
		data[i] = 0
	}
	obj := &ObjectHandle{
		Class:    staticsPseudoClass{class},
		HashCode: int32(rand.Uint32()),
		Lock:     monitor.NewObjectLock(),
		Data:     data,
	}
	ref := h.register(Value{Kind: KindObject, Object: obj})
	h.statics[class.Name()] = ref
	h.maybeTriggerGC()
	return ref, nil
}

// staticsPseudoClass adapts a ClassInfo so a static-fields object reports
// the class's static layout as if it were its own instance layout; this
// lets the GC root scan walk it with the same InstanceRefOffsets path as
// any other object.
type staticsPseudoClass struct{ ClassInfo }

func (s staticsPseudoClass) InstanceWidth() int        { return s.ClassInfo.StaticWidth() }
func (s staticsPseudoClass) InstanceRefOffsets() []int { return s.ClassInfo.StaticRefOffsets() }

// Copy shallow-copies the bytes of a heap value into a freshly allocated
// slot, for Object.clone (spec.md section 4.3).
func (h *Heap) Copy(v Value) (Reference, error) {
	switch v.Kind {
	case KindObject:
		newRef, err := h.NewObject(v.Object.Class)
		if err != nil {
			return 0, err
		}
		nv, _ := h.Get(newRef)
		copy(nv.Object.Data, v.Object.Data)
		return newRef, nil
	case KindArray:
		newRef, err := h.NewArray(v.Array.Component, v.Array.Length)
		if err != nil {
			return 0, err
		}
		nv, _ := h.Get(newRef)
		copy(nv.Array.Data, v.Array.Data)
		return newRef, nil
	default:
		return 0, fmt.Errorf("heap: copy of unknown value kind")
	}
}

// Lock returns the monitor attached to the object/array behind ref.
func (h *Heap) Lock(ref Reference) (*monitor.ObjectLock, error) {
	v, ok := h.Get(ref)
	if !ok {
		return nil, fmt.Errorf("heap: reference %d not found", ref)
	}
	return v.lock(), nil
}

// DirectorySize reports the number of live entries; used by tests asserting
// GC soundness (unreachable references are dropped when a cycle replaces
// the directory with the set of entries it reached).
func (h *Heap) DirectorySize() int {
	h.dirMu.RLock()
	defer h.dirMu.RUnlock()
	return len(h.dir)
}
