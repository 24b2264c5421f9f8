package native

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/shunsuke-abe/govm/pkg/classarea"
	"github.com/shunsuke-abe/govm/pkg/classfile"
	"github.com/shunsuke-abe/govm/pkg/classpath"
	"github.com/shunsuke-abe/govm/pkg/descriptor"
	"github.com/shunsuke-abe/govm/pkg/heap"
	"github.com/shunsuke-abe/govm/pkg/vm"
)

type noClasspath struct{}

func (noClasspath) Find(binaryName string) ([]byte, error) {
	return nil, fmt.Errorf("native_test: %s is not on the class-path (synthetic-only fixture)", binaryName)
}

var _ classpath.Source = noClasspath{}

// fixture mirrors pkg/vm's own test fixture: a fresh heap/area/VM plus
// the handful of java.lang classes the registry's intrinsics touch.
type fixture struct {
	t        *testing.T
	area     *classarea.MethodArea
	heap     *heap.Heap
	interner *heap.StringInterner
	vm       *vm.VM
	registry *Registry

	objectClass    *classarea.Class
	stringClass    *classarea.Class
	classClass     *classarea.Class
	throwableClass *classarea.Class
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	h := heap.NewHeap(1 << 20)
	interner := heap.NewStringInterner(h)
	area := classarea.NewMethodArea(noClasspath{}, h, interner)
	machine := vm.NewVM(area, h, interner)
	registry := NewRegistry(machine)

	f := &fixture{t: t, area: area, heap: h, interner: interner, vm: machine, registry: registry}
	f.objectClass = f.loadSimple("java/lang/Object", "", nil)
	f.stringClass = f.loadSimple("java/lang/String", "java/lang/Object", []classfile.FieldInfo{
		{AccessFlags: 0, Name: "value", Descriptor: "[C"},
	})
	f.classClass = f.loadSimple("java/lang/Class", "java/lang/Object", []classfile.FieldInfo{
		{AccessFlags: 0, Name: "name", Descriptor: "Ljava/lang/String;"},
	})
	f.throwableClass = f.loadSimple("java/lang/Throwable", "java/lang/Object", []classfile.FieldInfo{
		{AccessFlags: 0, Name: "message", Descriptor: "Ljava/lang/String;"},
	})
	f.loadSimple("java/lang/RuntimeException", "java/lang/Throwable", nil)
	f.loadSimple("java/lang/NullPointerException", "java/lang/RuntimeException", nil)
	return f
}

func (f *fixture) loadSimple(name, super string, fields []classfile.FieldInfo) *classarea.Class {
	f.t.Helper()
	pool := []classfile.ConstantPoolEntry{nil, &classfile.ConstantUtf8{Value: name}}
	thisIdx := uint16(1)
	var superIdx uint16
	if super != "" {
		pool = append(pool, &classfile.ConstantUtf8{Value: super})
		pool = append(pool, &classfile.ConstantClass{NameIndex: uint16(len(pool) - 1)})
		superIdx = uint16(len(pool) - 1)
	}
	cf := &classfile.ClassFile{
		MajorVersion: 52,
		ConstantPool: pool,
		AccessFlags:  classfile.AccPublic | classfile.AccSuper,
		ThisClass:    thisIdx,
		SuperClass:   superIdx,
		Fields:       fields,
	}
	class, err := f.area.LoadSynthetic(name, cf)
	if err != nil {
		f.t.Fatalf("loading synthetic class %s: %v", name, err)
	}
	return class
}

func (f *fixture) newInstance(class *classarea.Class) heap.Reference {
	f.t.Helper()
	ref, err := f.heap.NewObject(class)
	if err != nil {
		f.t.Fatalf("allocating %s: %v", class.Name(), err)
	}
	return ref
}

func call(t *testing.T, r *Registry, v *vm.VM, th *vm.Thread, class, method, descriptor string, args []vm.Value) vm.Value {
	t.Helper()
	fn, ok := r.Lookup(class, method, descriptor)
	if !ok {
		t.Fatalf("no native registered for %s.%s%s", class, method, descriptor)
	}
	result, err := fn(v, th, args)
	if err != nil {
		t.Fatalf("%s.%s%s: %v", class, method, descriptor, err)
	}
	return result
}

func TestLookupUnknownMethodMisses(t *testing.T) {
	f := newFixture(t)
	if _, ok := f.registry.Lookup("java/lang/Object", "noSuchMethod", "()V"); ok {
		t.Fatalf("Lookup found a method that was never registered")
	}
}

func TestObjectHashCodeAndEquals(t *testing.T) {
	f := newFixture(t)
	th := f.vm.NewThread("test")
	defer f.vm.RetireThread(th)

	ref := f.newInstance(f.objectClass)
	hc := call(t, f.registry, f.vm, th, "java/lang/Object", "hashCode", "()I", []vm.Value{vm.RefVal(ref)})
	if hc.I != int32(ref) {
		t.Fatalf("hashCode() = %d, want identity hash %d", hc.I, int32(ref))
	}

	other := f.newInstance(f.objectClass)
	eq := call(t, f.registry, f.vm, th, "java/lang/Object", "equals", "(Ljava/lang/Object;)Z", []vm.Value{vm.RefVal(ref), vm.RefVal(ref)})
	if eq.I == 0 {
		t.Fatalf("equals(self) = false, want true")
	}
	neq := call(t, f.registry, f.vm, th, "java/lang/Object", "equals", "(Ljava/lang/Object;)Z", []vm.Value{vm.RefVal(ref), vm.RefVal(other)})
	if neq.I != 0 {
		t.Fatalf("equals(other) = true, want false")
	}
}

func TestObjectGetClassAndClassGetName(t *testing.T) {
	f := newFixture(t)
	th := f.vm.NewThread("test")
	defer f.vm.RetireThread(th)

	ref := f.newInstance(f.objectClass)
	mirror := call(t, f.registry, f.vm, th, "java/lang/Object", "getClass", "()Ljava/lang/Class;", []vm.Value{vm.RefVal(ref)})
	if mirror.IsNull() {
		t.Fatalf("getClass() returned null")
	}

	nameRef := call(t, f.registry, f.vm, th, "java/lang/Class", "getName", "()Ljava/lang/String;", []vm.Value{mirror})
	name, err := f.interner.GetString(nameRef.Ref, f.stringClass)
	if err != nil {
		t.Fatalf("decoding Class.getName() result: %v", err)
	}
	if name != "java/lang/Object" {
		t.Fatalf("getClass().getName() = %q, want %q", name, "java/lang/Object")
	}
}

func TestObjectClonePreservesFieldsAsDistinctIdentity(t *testing.T) {
	f := newFixture(t)
	th := f.vm.NewThread("test")
	defer f.vm.RetireThread(th)

	ref := f.newInstance(f.throwableClass)
	msgRef, err := f.interner.InsertStringConst("boom", f.stringClass)
	if err != nil {
		t.Fatalf("interning message: %v", err)
	}
	off, ok := f.throwableClass.FieldOffset("message")
	if !ok {
		t.Fatalf("Throwable has no message field")
	}
	v, ok := f.heap.Get(ref)
	if !ok {
		t.Fatalf("allocated object not found")
	}
	heap.WriteRef(v.Object.Data, off, msgRef)

	cloneResult := call(t, f.registry, f.vm, th, "java/lang/Object", "clone", "()Ljava/lang/Object;", []vm.Value{vm.RefVal(ref)})
	if cloneResult.Ref == ref {
		t.Fatalf("clone() returned the same reference as the original")
	}
	cloneVal, ok := f.heap.Get(cloneResult.Ref)
	if !ok {
		t.Fatalf("cloned object not found in heap")
	}
	if got := heap.ReadRef(cloneVal.Object.Data, off); got != msgRef {
		t.Fatalf("clone()'s message field = %d, want %d (copied from the original)", got, msgRef)
	}
}

func TestStringIntern(t *testing.T) {
	f := newFixture(t)
	th := f.vm.NewThread("test")
	defer f.vm.RetireThread(th)

	a, err := f.interner.InsertStringConst("shared", f.stringClass)
	if err != nil {
		t.Fatalf("InsertStringConst: %v", err)
	}
	// A second, independently-allocated String object with the same
	// content: intern() must fold it back onto `a`.
	arrRef, err := f.heap.NewArray(heap.Component{Kind: descriptor.Char}, 6)
	if err != nil {
		t.Fatalf("NewArray: %v", err)
	}
	arrVal, _ := f.heap.Get(arrRef)
	for i, r := range "shared" {
		heap.WriteInt(arrVal.Array.Data, i*2, descriptor.Char, int32(r))
	}
	bRef := f.newInstance(f.stringClass)
	bVal, _ := f.heap.Get(bRef)
	valueOff, _ := f.stringClass.FieldOffset("value")
	heap.WriteRef(bVal.Object.Data, valueOff, arrRef)

	interned := call(t, f.registry, f.vm, th, "java/lang/String", "intern", "()Ljava/lang/String;", []vm.Value{vm.RefVal(bRef)})
	if interned.Ref != a {
		t.Fatalf("intern() of an equal-content String = %d, want the already-interned %d", interned.Ref, a)
	}
}

func TestThrowableFillInStackTraceIsIdentityNoOp(t *testing.T) {
	f := newFixture(t)
	th := f.vm.NewThread("test")
	defer f.vm.RetireThread(th)

	ref := f.newInstance(f.throwableClass)
	result := call(t, f.registry, f.vm, th, "java/lang/Throwable", "fillInStackTrace", "(I)Ljava/lang/Throwable;", []vm.Value{vm.RefVal(ref), vm.IntVal(0)})
	if result.Ref != ref {
		t.Fatalf("fillInStackTrace returned %d, want the receiver %d unchanged", result.Ref, ref)
	}
}

func TestNewThrowableSetsMessage(t *testing.T) {
	f := newFixture(t)
	ref, err := f.registry.NewThrowable("java/lang/NullPointerException", "boom")
	if err != nil {
		t.Fatalf("NewThrowable: %v", err)
	}
	class, err := f.area.LoadClass("java/lang/NullPointerException")
	if err != nil {
		t.Fatalf("LoadClass: %v", err)
	}
	off, ok := class.FieldOffset("message")
	if !ok {
		t.Fatalf("NullPointerException has no message field (inherited from Throwable)")
	}
	v, ok := f.heap.Get(ref)
	if !ok {
		t.Fatalf("thrown object not found")
	}
	msgRef := heap.ReadRef(v.Object.Data, off)
	got, err := f.interner.GetString(msgRef, f.stringClass)
	if err != nil {
		t.Fatalf("decoding message: %v", err)
	}
	if got != "boom" {
		t.Fatalf("message = %q, want %q", got, "boom")
	}
}

func TestSystemArraycopy(t *testing.T) {
	f := newFixture(t)
	th := f.vm.NewThread("test")
	defer f.vm.RetireThread(th)

	src, err := f.heap.NewArray(heap.Component{Kind: descriptor.Int}, 4)
	if err != nil {
		t.Fatalf("NewArray src: %v", err)
	}
	dst, err := f.heap.NewArray(heap.Component{Kind: descriptor.Int}, 4)
	if err != nil {
		t.Fatalf("NewArray dst: %v", err)
	}
	srcVal, _ := f.heap.Get(src)
	for i := 0; i < 4; i++ {
		heap.WriteInt(srcVal.Array.Data, i*4, descriptor.Int, int32(10+i))
	}

	call(t, f.registry, f.vm, th, "java/lang/System", "arraycopy", "(Ljava/lang/Object;ILjava/lang/Object;II)V",
		[]vm.Value{vm.RefVal(src), vm.IntVal(1), vm.RefVal(dst), vm.IntVal(0), vm.IntVal(2)})

	dstVal, _ := f.heap.Get(dst)
	if got := heap.ReadInt(dstVal.Array.Data, 0, descriptor.Int); got != 11 {
		t.Fatalf("dst[0] = %d, want 11", got)
	}
	if got := heap.ReadInt(dstVal.Array.Data, 4, descriptor.Int); got != 12 {
		t.Fatalf("dst[1] = %d, want 12", got)
	}
}

func TestSystemArraycopyOutOfBounds(t *testing.T) {
	f := newFixture(t)
	th := f.vm.NewThread("test")
	defer f.vm.RetireThread(th)

	src, err := f.heap.NewArray(heap.Component{Kind: descriptor.Int}, 2)
	if err != nil {
		t.Fatalf("NewArray src: %v", err)
	}
	dst, err := f.heap.NewArray(heap.Component{Kind: descriptor.Int}, 2)
	if err != nil {
		t.Fatalf("NewArray dst: %v", err)
	}
	fn, ok := f.registry.Lookup("java/lang/System", "arraycopy", "(Ljava/lang/Object;ILjava/lang/Object;II)V")
	if !ok {
		t.Fatalf("arraycopy not registered")
	}
	_, err = fn(f.vm, th, []vm.Value{vm.RefVal(src), vm.IntVal(0), vm.RefVal(dst), vm.IntVal(0), vm.IntVal(5)})
	if err == nil {
		t.Fatalf("arraycopy past the end of src: expected an error")
	}
	if _, ok := err.(*vm.ArrayIndexOutOfBoundsError); !ok {
		t.Fatalf("expected *vm.ArrayIndexOutOfBoundsError, got %T: %v", err, err)
	}
}

func TestPrintStreamPrintlnWritesToBoundStream(t *testing.T) {
	f := newFixture(t)
	th := f.vm.NewThread("test")
	defer f.vm.RetireThread(th)

	streamRef := f.newInstance(f.objectClass)
	var buf bytes.Buffer
	f.registry.BindStream(streamRef, &buf)

	call(t, f.registry, f.vm, th, "java/io/PrintStream", "println", "(I)V", []vm.Value{vm.RefVal(streamRef), vm.IntVal(42)})
	if got := buf.String(); got != "42\n" {
		t.Fatalf("println(42) wrote %q, want %q", got, "42\n")
	}

	buf.Reset()
	msgRef, err := f.interner.InsertStringConst("hi", f.stringClass)
	if err != nil {
		t.Fatalf("InsertStringConst: %v", err)
	}
	call(t, f.registry, f.vm, th, "java/io/PrintStream", "print", "(Ljava/lang/String;)V", []vm.Value{vm.RefVal(streamRef), vm.RefVal(msgRef)})
	if got := buf.String(); got != "hi" {
		t.Fatalf("print(\"hi\") wrote %q, want %q", got, "hi")
	}
}
