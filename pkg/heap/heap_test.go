package heap

import (
	"testing"

	"github.com/shunsuke-abe/govm/pkg/descriptor"
)

// testClass is a minimal ClassInfo for heap tests, standing in for
// classarea.Class.
type testClass struct {
	name         string
	instanceW    int
	staticW      int
	instRefOffs  []int
	staticRefOff []int
	fields       map[string]int
}

func (c *testClass) Name() string              { return c.name }
func (c *testClass) InstanceWidth() int        { return c.instanceW }
func (c *testClass) StaticWidth() int          { return c.staticW }
func (c *testClass) InstanceRefOffsets() []int { return c.instRefOffs }
func (c *testClass) StaticRefOffsets() []int   { return c.staticRefOff }
func (c *testClass) FieldOffset(name string) (int, bool) {
	off, ok := c.fields[name]
	return off, ok
}

func TestNewObjectAllocatesZeroed(t *testing.T) {
	h := NewHeap(4096)
	cls := &testClass{name: "Point", instanceW: 8}
	ref, err := h.NewObject(cls)
	if err != nil {
		t.Fatalf("NewObject: %v", err)
	}
	v, ok := h.Get(ref)
	if !ok {
		t.Fatal("expected object to be registered")
	}
	for i, b := range v.Object.Data {
		if b != 0 {
			t.Errorf("byte %d not zeroed: %d", i, b)
		}
	}
	if h.Used() != 8 {
		t.Errorf("Used() = %d, want 8", h.Used())
	}
}

func TestNewArrayWidthByComponent(t *testing.T) {
	h := NewHeap(4096)
	ref, err := h.NewArray(ComponentInt, 10)
	if err != nil {
		t.Fatalf("NewArray: %v", err)
	}
	v, _ := h.Get(ref)
	if v.Array.Length != 10 {
		t.Errorf("Length = %d, want 10", v.Array.Length)
	}
	if len(v.Array.Data) != 40 {
		t.Errorf("Data len = %d, want 40", len(v.Array.Data))
	}
}

func TestBumpOutOfMemory(t *testing.T) {
	h := NewHeap(16)
	if _, err := h.NewObject(&testClass{name: "Big", instanceW: 17}); err == nil {
		t.Fatal("expected out-of-memory error")
	}
	if h.Used() != 0 {
		t.Errorf("Used() = %d after failed bump, want 0 (rollback)", h.Used())
	}
}

func TestGetStaticIsMemoized(t *testing.T) {
	h := NewHeap(4096)
	cls := &testClass{name: "Counter", staticW: 4}
	r1, err := h.GetStatic(cls)
	if err != nil {
		t.Fatalf("GetStatic: %v", err)
	}
	r2, err := h.GetStatic(cls)
	if err != nil {
		t.Fatalf("GetStatic (2nd): %v", err)
	}
	if r1 != r2 {
		t.Errorf("GetStatic returned different refs on second call: %d vs %d", r1, r2)
	}
}

func TestCopyIsShallow(t *testing.T) {
	h := NewHeap(4096)
	cls := &testClass{name: "Box", instanceW: 4}
	ref, _ := h.NewObject(cls)
	v, _ := h.Get(ref)
	WriteInt(v.Object.Data, 0, descriptor.Int, 42)

	cloneRef, err := h.Copy(v)
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	cloneVal, _ := h.Get(cloneRef)
	if got := ReadInt(cloneVal.Object.Data, 0, descriptor.Int); got != 42 {
		t.Errorf("clone field = %d, want 42", got)
	}
	if cloneRef == ref {
		t.Error("clone must have a distinct reference")
	}
}

// fakeRoots is a RootProvider that returns a fixed root set and records
// Pause/Resume calls, standing in for pkg/vm's thread registry.
type fakeRoots struct {
	roots  []Reference
	paused bool
}

func (f *fakeRoots) PauseAllAndRoots() []Reference {
	f.paused = true
	return f.roots
}

func (f *fakeRoots) Resume() { f.paused = false }

func TestGCPreservesReachableDropsUnreachable(t *testing.T) {
	h := NewHeap(4096)
	linkedCls := &testClass{name: "Node", instanceW: 4, instRefOffs: []int{0}}

	tailRef, err := h.NewObject(linkedCls)
	if err != nil {
		t.Fatalf("NewObject tail: %v", err)
	}
	headRef, err := h.NewObject(linkedCls)
	if err != nil {
		t.Fatalf("NewObject head: %v", err)
	}
	headVal, _ := h.Get(headRef)
	WriteRef(headVal.Object.Data, 0, tailRef)

	// garbageRef is never rooted and has no incoming edge.
	garbageRef, err := h.NewObject(linkedCls)
	if err != nil {
		t.Fatalf("NewObject garbage: %v", err)
	}

	roots := &fakeRoots{roots: []Reference{headRef}}
	collector := NewCollector(h, roots)
	h.AttachCollector(collector)

	collector.ForceCycle()

	if _, ok := h.Get(headRef); !ok {
		t.Error("rooted head did not survive GC")
	}
	if _, ok := h.Get(tailRef); !ok {
		t.Error("transitively reachable tail did not survive GC")
	}
	if _, ok := h.Get(garbageRef); ok {
		t.Error("unreachable object survived GC")
	}
	if roots.paused {
		t.Error("Resume was not called after the cycle")
	}

	// References must keep working after relocation: head still points
	// at a live tail after the copy.
	headVal, _ = h.Get(headRef)
	if ReadRef(headVal.Object.Data, 0) != tailRef {
		t.Error("head's reference field did not survive relocation unchanged")
	}
}

func TestGCSkipsBelowThreshold(t *testing.T) {
	h := NewHeap(1 << 20)
	cls := &testClass{name: "Small", instanceW: 8}
	ref, _ := h.NewObject(cls)

	roots := &fakeRoots{}
	collector := NewCollector(h, roots)
	collector.RunCycle()

	if roots.paused {
		t.Error("cycle should not have paused threads below the used-fraction threshold")
	}
	if _, ok := h.Get(ref); !ok {
		t.Error("object should still be present, no collection ran")
	}
}

func TestStringInternerRoundTrip(t *testing.T) {
	h := NewHeap(4096)
	stringClass := &testClass{
		name:      "java/lang/String",
		instanceW: 4,
		fields:    map[string]int{"value": 0},
	}
	si := NewStringInterner(h)
	h.AttachInterner(si)

	ref, err := si.InsertStringConst("hello", stringClass)
	if err != nil {
		t.Fatalf("InsertStringConst: %v", err)
	}
	again, err := si.InsertStringConst("hello", stringClass)
	if err != nil {
		t.Fatalf("InsertStringConst (2nd): %v", err)
	}
	if ref != again {
		t.Error("same content must intern to the same reference")
	}

	got, err := si.GetString(ref, stringClass)
	if err != nil {
		t.Fatalf("GetString: %v", err)
	}
	if got != "hello" {
		t.Errorf("GetString = %q, want %q", got, "hello")
	}
}

func TestStringInternerSurvivesGC(t *testing.T) {
	h := NewHeap(4096)
	stringClass := &testClass{
		name:        "java/lang/String",
		instanceW:   4,
		instRefOffs: []int{0},
		fields:      map[string]int{"value": 0},
	}
	si := NewStringInterner(h)
	h.AttachInterner(si)

	ref, err := si.InsertStringConst("interned", stringClass)
	if err != nil {
		t.Fatalf("InsertStringConst: %v", err)
	}

	roots := &fakeRoots{} // no application roots at all
	collector := NewCollector(h, roots)
	collector.ForceCycle()

	if _, ok := h.Get(ref); !ok {
		t.Fatal("interned string did not survive GC as a global root")
	}
	got, err := si.GetString(ref, stringClass)
	if err != nil {
		t.Fatalf("GetString after GC: %v", err)
	}
	if got != "interned" {
		t.Errorf("GetString after GC = %q, want %q", got, "interned")
	}
}

func TestGetStaticSurvivesGCAsGlobalRoot(t *testing.T) {
	h := NewHeap(4096)
	cls := &testClass{name: "Counters", staticW: 4}

	ref, err := h.GetStatic(cls)
	if err != nil {
		t.Fatalf("GetStatic: %v", err)
	}
	v, _ := h.Get(ref)
	WriteInt(v.Object.Data, 0, descriptor.Int, 7)

	roots := &fakeRoots{}
	collector := NewCollector(h, roots)
	collector.ForceCycle()

	v, ok := h.Get(ref)
	if !ok {
		t.Fatal("static storage did not survive GC")
	}
	if got := ReadInt(v.Object.Data, 0, descriptor.Int); got != 7 {
		t.Errorf("static field after GC = %d, want 7", got)
	}
}
