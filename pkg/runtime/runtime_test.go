package runtime

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/shunsuke-abe/govm/pkg/classarea"
	"github.com/shunsuke-abe/govm/pkg/classfile"
	"github.com/shunsuke-abe/govm/pkg/classpath"
	"github.com/shunsuke-abe/govm/pkg/heap"
	"github.com/shunsuke-abe/govm/pkg/native"
	"github.com/shunsuke-abe/govm/pkg/vm"
)

type noClasspath struct{}

func (noClasspath) Find(binaryName string) ([]byte, error) {
	return nil, fmt.Errorf("runtime_test: %s is not on the class-path (synthetic-only fixture)", binaryName)
}

var _ classpath.Source = noClasspath{}

// buildRuntime assembles a *Runtime by hand (rather than through New, which
// owns its own class-path) so a test can pre-install synthetic classes
// before exercising bindStandardStreams/bootstrap directly.
func buildRuntime(t *testing.T) *Runtime {
	t.Helper()
	h := heap.NewHeap(1 << 20)
	interner := heap.NewStringInterner(h)
	area := classarea.NewMethodArea(noClasspath{}, h, interner)
	machine := vm.NewVM(area, h, interner)
	registry := native.NewRegistry(machine)
	return &Runtime{Area: area, Heap: h, Interner: interner, VM: machine, Natives: registry}
}

func loadSimple(t *testing.T, area *classarea.MethodArea, name, super string, fields []classfile.FieldInfo) *classarea.Class {
	t.Helper()
	pool := []classfile.ConstantPoolEntry{nil, &classfile.ConstantUtf8{Value: name}}
	thisIdx := uint16(1)
	var superIdx uint16
	var methods []classfile.MethodInfo
	if super != "" {
		pool = append(pool, &classfile.ConstantUtf8{Value: super})
		pool = append(pool, &classfile.ConstantClass{NameIndex: uint16(len(pool) - 1)})
		superIdx = uint16(len(pool) - 1)
		superClassIdx := superIdx
		pool = append(pool, &classfile.ConstantUtf8{Value: "<init>"}, &classfile.ConstantUtf8{Value: "()V"})
		ntIdx := uint16(len(pool) - 1)
		pool = append(pool, &classfile.ConstantNameAndType{NameIndex: ntIdx - 1, DescriptorIndex: ntIdx})
		ntRefIdx := uint16(len(pool) - 1)
		pool = append(pool, &classfile.ConstantMethodref{ClassIndex: superClassIdx, NameAndTypeIndex: ntRefIdx})
		initRef := uint16(len(pool) - 1)
		methods = append(methods, classfile.MethodInfo{
			AccessFlags: classfile.AccPublic,
			Name:        "<init>",
			Descriptor:  "()V",
			Code: &classfile.CodeAttribute{
				MaxStack:  1,
				MaxLocals: 1,
				Code: []byte{
					0x2A,
					0xB7, byte(initRef >> 8), byte(initRef),
					0xB1,
				},
			},
		})
	}
	cf := &classfile.ClassFile{
		MajorVersion: 52,
		ConstantPool: pool,
		AccessFlags:  classfile.AccPublic | classfile.AccSuper,
		ThisClass:    thisIdx,
		SuperClass:   superIdx,
		Fields:       fields,
		Methods:      methods,
	}
	class, err := area.LoadSynthetic(name, cf)
	if err != nil {
		t.Fatalf("loading synthetic class %s: %v", name, err)
	}
	return class
}

// withJavaLangBasics installs the handful of java.lang classes
// bindStandardStreams/bootstrap/Execute all touch: Object, String, System
// (with static out/err PrintStream fields), and PrintStream itself.
func withJavaLangBasics(t *testing.T, area *classarea.MethodArea) {
	t.Helper()
	loadSimple(t, area, "java/lang/Object", "", nil)
	loadSimple(t, area, "java/lang/String", "java/lang/Object", []classfile.FieldInfo{
		{Name: "value", Descriptor: "[C"},
	})
	loadSimple(t, area, "java/io/PrintStream", "java/lang/Object", nil)
	loadSimple(t, area, "java/lang/System", "java/lang/Object", []classfile.FieldInfo{
		{AccessFlags: classfile.AccStatic, Name: "out", Descriptor: "Ljava/io/PrintStream;"},
		{AccessFlags: classfile.AccStatic, Name: "err", Descriptor: "Ljava/io/PrintStream;"},
	})
}

func TestNewBuildsRuntimeWithDefaults(t *testing.T) {
	rt, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if rt.Area == nil || rt.Heap == nil || rt.Interner == nil || rt.VM == nil || rt.Natives == nil {
		t.Fatalf("New left a Runtime field unset: %+v", rt)
	}
	if rt.VM.Natives != rt.Natives {
		t.Fatalf("vm.Natives was not wired to the Runtime's registry")
	}
}

func TestNewBindsCustomStdout(t *testing.T) {
	var buf bytes.Buffer
	rt, err := New(Config{Stdout: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if rt.VM.Stdout != &buf {
		t.Fatalf("New did not bind cfg.Stdout onto the VM")
	}
}

func TestBindStandardStreamsWithoutSystemClassIsANoOp(t *testing.T) {
	rt := buildRuntime(t)
	// No java/lang/System installed: bindStandardStreams must return
	// without panicking, leaving println natives to fall back to vm.Stdout.
	rt.bindStandardStreams(Config{})
}

func TestBindStandardStreamsBindsOutAndErr(t *testing.T) {
	rt := buildRuntime(t)
	withJavaLangBasics(t, rt.Area)

	var stdout, stderr bytes.Buffer
	rt.bindStandardStreams(Config{Stdout: &stdout, Stderr: &stderr})

	systemClass, err := rt.Area.LoadClass("java/lang/System")
	if err != nil {
		t.Fatalf("LoadClass java/lang/System: %v", err)
	}
	_, f, ok := systemClass.FindField("out", true)
	if !ok {
		t.Fatalf("System has no static out field")
	}
	staticsRef, err := rt.Heap.GetStatic(systemClass)
	if err != nil {
		t.Fatalf("GetStatic: %v", err)
	}
	sv, ok := rt.Heap.Get(staticsRef)
	if !ok {
		t.Fatalf("statics object not found")
	}
	outRef := heap.ReadRef(sv.Object.Data, f.Offset)
	if outRef == 0 {
		t.Fatalf("System.out was not bound to a PrintStream instance")
	}

	fn, ok := rt.Natives.Lookup("java/io/PrintStream", "println", "(I)V")
	if !ok {
		t.Fatalf("println(I)V not registered")
	}
	th := rt.VM.NewThread("test")
	defer rt.VM.RetireThread(th)
	if _, err := fn(rt.VM, th, []vm.Value{vm.RefVal(outRef), vm.IntVal(7)}); err != nil {
		t.Fatalf("println via bound System.out: %v", err)
	}
	if got := stdout.String(); got != "7\n" {
		t.Fatalf("System.out.println(7) wrote %q to the bound writer, want %q", got, "7\n")
	}
}

func TestRunInvokesMain(t *testing.T) {
	rt := buildRuntime(t)
	withJavaLangBasics(t, rt.Area)

	// A trivial main class: main(String[])V that just returns, enough to
	// prove bootstrap() initializes System and Execute() finds and runs it.
	pool := []classfile.ConstantPoolEntry{nil, &classfile.ConstantUtf8{Value: "Main"}}
	thisIdx := uint16(1)
	cf := &classfile.ClassFile{
		MajorVersion: 52,
		ConstantPool: pool,
		AccessFlags:  classfile.AccPublic | classfile.AccSuper,
		ThisClass:    thisIdx,
		Methods: []classfile.MethodInfo{
			{
				AccessFlags: classfile.AccPublic | classfile.AccStatic,
				Name:        "main",
				Descriptor:  "([Ljava/lang/String;)V",
				Code: &classfile.CodeAttribute{
					MaxStack:  0,
					MaxLocals: 1,
					Code:      []byte{0xB1}, // return
				},
			},
		},
	}
	if _, err := rt.Area.LoadSynthetic("Main", cf); err != nil {
		t.Fatalf("loading Main: %v", err)
	}

	if err := rt.Run("Main", []string{"a", "b"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
