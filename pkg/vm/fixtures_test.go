package vm

import (
	"fmt"
	"testing"

	"github.com/shunsuke-abe/govm/pkg/classarea"
	"github.com/shunsuke-abe/govm/pkg/classfile"
	"github.com/shunsuke-abe/govm/pkg/classpath"
	"github.com/shunsuke-abe/govm/pkg/heap"
)

// noClasspath backs every fixture's MethodArea: every real class here is
// installed synthetically, so a lookup that falls through to the
// class-path source is itself the bug under test.
type noClasspath struct{}

func (noClasspath) Find(binaryName string) ([]byte, error) {
	return nil, fmt.Errorf("fixtures_test: %s is not on the class-path (synthetic-only fixture)", binaryName)
}

var _ classpath.Source = noClasspath{}

// poolBuilder accumulates a []classfile.ConstantPoolEntry one entry at a
// time, returning each entry's 1-based index, so hand-built fixture
// classes can name their constants instead of hand-indexing pool slots.
type poolBuilder struct {
	entries []classfile.ConstantPoolEntry // entries[0] unused, pool is 1-indexed
}

func newPool() *poolBuilder {
	return &poolBuilder{entries: make([]classfile.ConstantPoolEntry, 1)}
}

func (b *poolBuilder) add(e classfile.ConstantPoolEntry) uint16 {
	b.entries = append(b.entries, e)
	return uint16(len(b.entries) - 1)
}

func (b *poolBuilder) utf8(s string) uint16 {
	return b.add(&classfile.ConstantUtf8{Value: s})
}

func (b *poolBuilder) class(binaryName string) uint16 {
	return b.add(&classfile.ConstantClass{NameIndex: b.utf8(binaryName)})
}

func (b *poolBuilder) nameAndType(name, descriptor string) uint16 {
	return b.add(&classfile.ConstantNameAndType{NameIndex: b.utf8(name), DescriptorIndex: b.utf8(descriptor)})
}

func (b *poolBuilder) methodref(className, name, descriptor string) uint16 {
	classIdx := b.class(className)
	ntIdx := b.nameAndType(name, descriptor)
	return b.add(&classfile.ConstantMethodref{ClassIndex: classIdx, NameAndTypeIndex: ntIdx})
}

func (b *poolBuilder) fieldref(className, name, descriptor string) uint16 {
	classIdx := b.class(className)
	ntIdx := b.nameAndType(name, descriptor)
	return b.add(&classfile.ConstantFieldref{ClassIndex: classIdx, NameAndTypeIndex: ntIdx})
}

func (b *poolBuilder) stringConst(s string) uint16 {
	return b.add(&classfile.ConstantString{StringIndex: b.utf8(s)})
}

func (b *poolBuilder) pool() []classfile.ConstantPoolEntry { return b.entries }

// testExceptions is a self-contained stand-in for native.Registry's
// ExceptionFactory role: allocates the named exception class and writes
// its message field directly, without running any <init> (pkg/vm can't
// import pkg/native — that import runs the other way — so the conversion
// path from a Go fault to a catchable Java exception needs its own small
// implementation here, mirroring native.Registry.NewThrowable).
type testExceptions struct {
	area        *classarea.MethodArea
	h           *heap.Heap
	interner    *heap.StringInterner
	stringClass *classarea.Class
}

func (te *testExceptions) NewThrowable(className, message string) (heap.Reference, error) {
	class, err := te.area.LoadClass(className)
	if err != nil {
		return 0, err
	}
	if err := te.area.Initialize(class); err != nil {
		return 0, err
	}
	ref, err := te.h.NewObject(class)
	if err != nil {
		return 0, err
	}
	if _, f, ok := class.FindField("message", false); ok {
		v, ok := te.h.Get(ref)
		if ok {
			msgRef, err := te.interner.InsertStringConst(message, te.stringClass)
			if err == nil {
				heap.WriteRef(v.Object.Data, f.Offset, msgRef)
			}
		}
	}
	return ref, nil
}

// fixture bundles every component a scenario test needs plus the classes
// that every scenario shares: java/lang/Object, java/lang/String,
// java/lang/Class, java/lang/Throwable and its exception hierarchy.
type fixture struct {
	t        *testing.T
	area     *classarea.MethodArea
	heap     *heap.Heap
	interner *heap.StringInterner
	vm       *VM

	objectClass            *classarea.Class
	stringClass            *classarea.Class
	classClass              *classarea.Class
	throwableClass          *classarea.Class
	exceptionClass          *classarea.Class
	runtimeExceptionClass   *classarea.Class
	arithmeticExceptionClass *classarea.Class
	otherExceptionClass     *classarea.Class
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	h := heap.NewHeap(1 << 20)
	interner := heap.NewStringInterner(h)
	area := classarea.NewMethodArea(noClasspath{}, h, interner)
	machine := NewVM(area, h, interner)

	f := &fixture{t: t, area: area, heap: h, interner: interner, vm: machine}

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
	f.exceptionClass = f.loadSimple("java/lang/Exception", "java/lang/Throwable", nil)
	f.runtimeExceptionClass = f.loadSimple("java/lang/RuntimeException", "java/lang/Exception", nil)
	f.arithmeticExceptionClass = f.loadSimple("java/lang/ArithmeticException", "java/lang/RuntimeException", nil)
	f.otherExceptionClass = f.loadSimple("OtherException", "java/lang/Throwable", nil)

	machine.Exceptions = &testExceptions{area: area, h: h, interner: interner, stringClass: f.stringClass}

	return f
}

// loadSimple installs a class with no methods of its own beyond the
// constructors every fixture class needs to satisfy `new`: a no-arg
// <init>()V and an <init>(Ljava/lang/String;)V, both of which only chain to
// the superclass's <init>()V (the String argument is not stored). The root
// class (no superclass) gets a bare <init>()V that just returns.
func (f *fixture) loadSimple(name, super string, fields []classfile.FieldInfo) *classarea.Class {
	f.t.Helper()

	b := newPool()
	thisIdx := b.class(name)
	var superIdx uint16
	var methods []classfile.MethodInfo
	if super != "" {
		superIdx = b.class(super)
		objInitRef := b.methodref(super, "<init>", "()V")
		methods = append(methods, classfile.MethodInfo{
			AccessFlags: classfile.AccPublic,
			Name:        "<init>",
			Descriptor:  "()V",
			Code: &classfile.CodeAttribute{
				MaxStack:  1,
				MaxLocals: 1,
				Code: []byte{
					0x2A,                                 // aload_0
					0xB7, byte(objInitRef >> 8), byte(objInitRef), // invokespecial super.<init>()V
					0xB1, // return
				},
			},
		}, classfile.MethodInfo{
			AccessFlags: classfile.AccPublic,
			Name:        "<init>",
			Descriptor:  "(Ljava/lang/String;)V",
			Code: &classfile.CodeAttribute{
				MaxStack:  1,
				MaxLocals: 2,
				Code:      []byte{0x2A, 0xB7, byte(objInitRef >> 8), byte(objInitRef), 0xB1},
			},
		})
	} else {
		methods = append(methods, classfile.MethodInfo{
			AccessFlags: classfile.AccPublic,
			Name:        "<init>",
			Descriptor:  "()V",
			Code:        &classfile.CodeAttribute{MaxStack: 0, MaxLocals: 1, Code: []byte{0xB1}},
		})
	}

	cf := &classfile.ClassFile{
		MajorVersion: 52,
		ConstantPool: b.pool(),
		AccessFlags:  classfile.AccPublic | classfile.AccSuper,
		ThisClass:    thisIdx,
		SuperClass:   superIdx,
		Fields:       fields,
		Methods:      methods,
	}

	class, err := f.area.LoadSynthetic(name, cf)
	if err != nil {
		f.t.Fatalf("loading synthetic class %s: %v", name, err)
	}
	return class
}

// run invokes a static, no-argument method on class and returns its result.
func (f *fixture) run(class *classarea.Class, methodName, descriptor string) (Value, error) {
	f.t.Helper()
	method, ok := class.FindMethod(methodName, descriptor)
	if !ok {
		f.t.Fatalf("method %s%s not found on %s", methodName, descriptor, class.Name())
	}
	th := f.vm.NewThread("test")
	defer f.vm.RetireThread(th)
	return f.vm.InvokeMethod(th, method, nil)
}
