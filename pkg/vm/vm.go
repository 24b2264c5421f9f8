// Package vm implements the bytecode interpreter: per-thread frame
// stacks, method invocation and dispatch, field/array access, exception
// unwinding, and the monitor/safepoint integration that lets the garbage
// collector pause every running thread (spec.md sections 3, 5, and 6).
package vm

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/shunsuke-abe/govm/pkg/classarea"
	"github.com/shunsuke-abe/govm/pkg/heap"
	"github.com/shunsuke-abe/govm/pkg/monitor"
	"github.com/shunsuke-abe/govm/pkg/trace"
)

// NativeRegistry resolves a native method to its Go implementation.
// Defined here (not imported from pkg/native) so pkg/vm and pkg/native
// don't form an import cycle — native.Registry satisfies this interface.
type NativeRegistry interface {
	Lookup(className, methodName, descriptor string) (NativeFunc, bool)
}

// NativeFunc implements one intrinsic method. For instance methods args
// includes the receiver: callers that need `this` look at args[0], since
// invokeMethod places the receiver in local 0 exactly like a regular
// instance method.
type NativeFunc func(vm *VM, th *Thread, args []Value) (Value, error)

// ExceptionFactory synthesizes a Java exception object for an internal
// Go fault (NullPointerError, ArithmeticError, ...), decoupling the
// interpreter from pkg/native's class-loading/construction logic.
type ExceptionFactory interface {
	NewThrowable(className, message string) (heap.Reference, error)
}

// VM wires together the method area, heap, native registry, and the
// thread registry the GC's root scan pauses (spec.md section 4.4).
type VM struct {
	Area       *classarea.MethodArea
	Heap       *heap.Heap
	Interner   *heap.StringInterner
	Natives    NativeRegistry
	Exceptions ExceptionFactory
	Stdout     io.Writer
	Trace      *trace.Logger

	mu      sync.Mutex
	nextID  uint64
	threads map[monitor.ThreadID]*Thread
	paused  []*Thread
}

// NewVM creates a VM over the given method area and heap. Natives and
// Exceptions are wired after construction (runtime.New), since the
// native registry itself needs a *VM to call back into for allocation.
func NewVM(area *classarea.MethodArea, h *heap.Heap, interner *heap.StringInterner) *VM {
	vm := &VM{
		Area:     area,
		Heap:     h,
		Interner: interner,
		Stdout:   os.Stdout,
		Trace:    trace.Discard(),
		threads:  make(map[monitor.ThreadID]*Thread),
	}
	h.AttachInterner(interner)
	area.SetInvoker(vm)
	return vm
}

// NewThread registers a fresh Java thread and returns it; the thread
// registry is what PauseAllAndRoots walks during a GC cycle.
func (vm *VM) NewThread(name string) *Thread {
	id := monitor.ThreadID(atomic.AddUint64(&vm.nextID, 1))
	t := newThread(id, name)
	vm.mu.Lock()
	vm.threads[id] = t
	vm.mu.Unlock()
	return t
}

// RetireThread removes a finished thread from the registry.
func (vm *VM) RetireThread(t *Thread) {
	vm.mu.Lock()
	delete(vm.threads, t.ID)
	vm.mu.Unlock()
}

// Execute loads mainClassName, runs its static initializer chain, and
// invokes main(String[]) on a freshly registered thread (spec.md's
// top-level entry point), against the managed heap/thread model.
func (vm *VM) Execute(mainClassName string, args []string) error {
	class, err := vm.Area.LoadClass(mainClassName)
	if err != nil {
		return err
	}
	method, ok := class.FindMethod("main", "([Ljava/lang/String;)V")
	if !ok {
		return fmt.Errorf("vm: %s has no main([Ljava/lang/String;)V", mainClassName)
	}
	if err := vm.Area.Initialize(class); err != nil {
		return err
	}

	argsRef, err := vm.buildStringArray(args)
	if err != nil {
		return err
	}

	th := vm.NewThread("main")
	defer vm.RetireThread(th)

	_, err = vm.invokeMethod(th, method, []Value{RefVal(argsRef)})
	if jt, ok := err.(*JavaThrow); ok {
		return vm.describeUncaught(jt)
	}
	return err
}

func (vm *VM) buildStringArray(args []string) (heap.Reference, error) {
	stringClass, err := vm.Area.StringClass()
	if err != nil {
		return 0, err
	}
	arrRef, err := vm.Heap.NewArray(heap.ReferenceComponent("java/lang/String"), len(args))
	if err != nil {
		return 0, err
	}
	arrVal, _ := vm.Heap.Get(arrRef)
	for i, a := range args {
		sref, err := vm.Interner.InsertStringConst(a, stringClass)
		if err != nil {
			return 0, err
		}
		heap.WriteRef(arrVal.Array.Data, i*4, sref)
	}
	return arrRef, nil
}

// describeUncaught renders an uncaught exception to Stderr the way `java`
// does, and returns a plain error so the CLI's exit code reflects failure.
func (vm *VM) describeUncaught(jt *JavaThrow) error {
	msg := vm.exceptionSummary(jt.Ref)
	fmt.Fprintf(os.Stderr, "Exception in thread \"main\" %s\n", msg)
	return fmt.Errorf("vm: uncaught exception: %s", msg)
}

func (vm *VM) exceptionSummary(ref heap.Reference) string {
	v, ok := vm.Heap.Get(ref)
	if !ok || v.Kind != heap.KindObject {
		return "<unknown>"
	}
	class, _ := v.Object.Class.(*classarea.Class)
	if class == nil {
		return "<unknown>"
	}
	name := class.Name()
	if off, ok := class.FieldOffset("message"); ok {
		msgRef := heap.ReadRef(v.Object.Data, off)
		if msgRef != 0 {
			if stringClass, err := vm.Area.StringClass(); err == nil {
				if s, err := vm.Interner.GetString(msgRef, stringClass); err == nil {
					return name + ": " + s
				}
			}
		}
	}
	return name
}
