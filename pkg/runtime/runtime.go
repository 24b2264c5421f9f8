// Package runtime wires the method area, heap, string interner, native
// registry, and VM into the single `Runtime` struct spec.md section 9
// calls for: "a Runtime struct created once at startup and shared by
// reference", owning every other component's lifetime.
package runtime

import (
	"io"
	"os"

	"github.com/shunsuke-abe/govm/pkg/classarea"
	"github.com/shunsuke-abe/govm/pkg/classpath"
	"github.com/shunsuke-abe/govm/pkg/heap"
	"github.com/shunsuke-abe/govm/pkg/native"
	"github.com/shunsuke-abe/govm/pkg/trace"
	"github.com/shunsuke-abe/govm/pkg/vm"
)

// Config holds the handful of knobs cmd/govm's CLI surface maps onto.
type Config struct {
	ClasspathSpec string
	HeapSize      int // bytes per semispace; 0 uses DefaultHeapSize
	Trace         *trace.Logger
	Stdout        io.Writer
	Stderr        io.Writer
}

// DefaultHeapSize is used when Config.HeapSize is 0.
const DefaultHeapSize = 16 << 20

// Runtime is the shared, reference-counted-by-pointer owner spec.md
// section 9 describes: every goroutine touching the VM holds the same
// *Runtime, never a private copy of its components.
type Runtime struct {
	Area     *classarea.MethodArea
	Heap     *heap.Heap
	Interner *heap.StringInterner
	VM       *vm.VM
	Natives  *native.Registry
}

// New builds a Runtime from cfg: class-path, heap, interner, VM, and the
// native registry, in the dependency order each needs its predecessor.
func New(cfg Config) (*Runtime, error) {
	path, err := classpath.Parse(cfg.ClasspathSpec)
	if err != nil {
		return nil, err
	}

	heapSize := cfg.HeapSize
	if heapSize == 0 {
		heapSize = DefaultHeapSize
	}
	h := heap.NewHeap(heapSize)

	interner := heap.NewStringInterner(h)
	area := classarea.NewMethodArea(path, h, interner)
	machine := vm.NewVM(area, h, interner)

	if cfg.Trace != nil {
		machine.Trace = cfg.Trace
	}
	if cfg.Stdout != nil {
		machine.Stdout = cfg.Stdout
	}

	collector := heap.NewCollector(h, machine)
	h.AttachCollector(collector)
	go collector.Run(nil)

	registry := native.NewRegistry(machine)

	rt := &Runtime{Area: area, Heap: h, Interner: interner, VM: machine, Natives: registry}
	rt.bindStandardStreams(cfg)
	return rt, nil
}

// bindStandardStreams allocates the System.out/System.err PrintStream
// objects and binds them to Go writers, so user bytecode that calls
// System.out.println sees real output without System's own <clinit>
// needing to run any real PrintStream constructor logic.
func (rt *Runtime) bindStandardStreams(cfg Config) {
	stdout := cfg.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := cfg.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	systemClass, err := rt.Area.LoadClass("java/lang/System")
	if err != nil {
		return // no java.lang.System on this class-path; println natives fall back to vm.Stdout
	}
	printStreamClass, err := rt.Area.LoadClass("java/io/PrintStream")
	if err != nil {
		return
	}
	if err := rt.Area.Initialize(systemClass); err != nil {
		return
	}

	outRef, err := rt.Heap.NewObject(printStreamClass)
	if err == nil {
		rt.Natives.BindStream(outRef, stdout)
		rt.writeStaticRef(systemClass, "out", outRef)
	}
	errRef, err := rt.Heap.NewObject(printStreamClass)
	if err == nil {
		rt.Natives.BindStream(errRef, stderr)
		rt.writeStaticRef(systemClass, "err", errRef)
	}
}

func (rt *Runtime) writeStaticRef(class *classarea.Class, field string, ref heap.Reference) {
	_, f, ok := class.FindField(field, true)
	if !ok {
		return
	}
	staticsRef, err := rt.Heap.GetStatic(class)
	if err != nil {
		return
	}
	v, ok := rt.Heap.Get(staticsRef)
	if !ok {
		return
	}
	heap.WriteRef(v.Object.Data, f.Offset, ref)
}

// Run loads mainClassName and invokes its bootstrap through the shim
// (shim.go), then main(String[]) with args.
func (rt *Runtime) Run(mainClassName string, args []string) error {
	return rt.bootstrap(mainClassName, args)
}
