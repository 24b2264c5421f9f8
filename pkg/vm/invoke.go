package vm

import (
	"errors"
	"fmt"

	"github.com/shunsuke-abe/govm/pkg/classarea"
	"github.com/shunsuke-abe/govm/pkg/descriptor"
	"github.com/shunsuke-abe/govm/pkg/heap"
)

// InvokeMethod is invokeMethod's exported form, for callers outside this
// package (pkg/native calling back into interpreted code, e.g.
// Thread.start0's run() callback).
func (vm *VM) InvokeMethod(th *Thread, method *classarea.Method, args []Value) (Value, error) {
	return vm.invokeMethod(th, method, args)
}

// invokeMethod pushes a frame for method on th, places args into its
// locals (static: starting at slot 0; instance: this in slot 0, args
// after — spec.md's pop_args), enters the method's monitor if
// synchronized, and runs it to completion. args excludes any implicit
// receiver handling beyond what the caller already arranged: for an
// instance method, args[0] must be the receiver.
func (vm *VM) invokeMethod(th *Thread, method *classarea.Method, args []Value) (Value, error) {
	if method.IsNative() {
		return vm.invokeNative(th, method, args)
	}
	if method.Code == nil {
		return Value{}, fmt.Errorf("vm: %s.%s%s has no Code attribute", method.Owner.Name(), method.Name, method.Descriptor.String())
	}

	// The frame's Class must be the method's declaring class, not
	// whatever runtime/dispatch class the caller resolved against:
	// exception-table catch types and constant-pool indices inside the
	// Code attribute are relative to the declaring class's own pool.
	frame := NewFrame(method.Owner, method)
	idx := 0
	for _, a := range args {
		frame.SetLocal(idx, a)
		idx += a.Category()
	}

	if method.IsSynchronized() {
		monRef, err := vm.monitorObjectFor(method.Owner, method, args)
		if err != nil {
			return Value{}, err
		}
		lock, err := vm.Heap.Lock(monRef)
		if err != nil {
			return Value{}, err
		}
		lock.Enter(th.ID, th.Safe)
		frame.MonitorOwner = RefVal(monRef)
		frame.HasMonitor = true
	}

	if err := th.pushFrame(frame); err != nil {
		if frame.HasMonitor {
			vm.exitMonitor(th, frame)
		}
		return Value{}, err
	}
	defer th.popFrame()

	vm.Trace.Debugf("invoke %s.%s%s depth=%d", method.Owner.Name(), method.Name, method.Descriptor.String(), th.depth())
	return vm.runFrame(th, frame)
}

// monitorObjectFor returns the object a synchronized method locks: the
// receiver for an instance method, the class's static-fields object
// standing in for "the Class object" for a static one (spec.md section
// 4.6 names "the Class object" for static synchronized methods; govm's
// per-class statics object already has its own monitor and identity, so
// it serves that role without needing a separate Class-mirror lock path).
func (vm *VM) monitorObjectFor(class *classarea.Class, method *classarea.Method, args []Value) (heap.Reference, error) {
	if method.IsStatic() {
		return vm.Heap.GetStatic(class)
	}
	if len(args) == 0 || args[0].IsNull() {
		return 0, &NullPointerError{Op: "synchronized method entry"}
	}
	return args[0].Ref, nil
}

func (vm *VM) exitMonitor(th *Thread, frame *Frame) {
	lock, err := vm.Heap.Lock(frame.MonitorOwner.Ref)
	if err != nil {
		return
	}
	lock.Exit(th.ID)
}

func (vm *VM) invokeNative(th *Thread, method *classarea.Method, args []Value) (Value, error) {
	if vm.Natives == nil {
		return Value{}, fmt.Errorf("vm: no native registry wired, cannot call %s.%s", method.Owner.Name(), method.Name)
	}
	fn, ok := vm.Natives.Lookup(method.Owner.Name(), method.Name, method.Descriptor.String())
	if !ok {
		return Value{}, fmt.Errorf("vm: unresolved native method %s.%s%s", method.Owner.Name(), method.Name, method.Descriptor.String())
	}
	return fn(vm, th, args)
}

// runFrame is the fetch-decode-execute loop for one activation record. A
// fault (Go error from executeInstruction) is converted to a live Java
// exception object and matched against frame's exception table at the PC
// of the instruction that raised it; an unmatched fault propagates to the
// caller as a *JavaThrow, exactly like athrow.
func (vm *VM) runFrame(th *Thread, frame *Frame) (Value, error) {
	for {
		th.Safe.Visit()

		instrPC := frame.PC
		opcode := frame.ReadU8()
		val, done, err := vm.executeInstruction(th, frame, opcode)

		if err != nil {
			ref, convErr := vm.toJavaRef(err)
			if convErr != nil {
				if frame.HasMonitor {
					vm.exitMonitor(th, frame)
				}
				return Value{}, convErr
			}
			if handlerPC, ok := vm.findHandler(frame, instrPC, ref); ok {
				frame.SP = 0
				frame.Push(RefVal(ref))
				frame.PC = handlerPC
				continue
			}
			if frame.HasMonitor {
				vm.exitMonitor(th, frame)
			}
			return Value{}, &JavaThrow{Ref: ref}
		}

		if done {
			if frame.HasMonitor {
				vm.exitMonitor(th, frame)
			}
			return val, nil
		}
	}
}

// toJavaRef turns any error an instruction can return into a live
// exception-object reference: pass a *JavaThrow through unchanged,
// synthesize one for a recognized javaFault via the ExceptionFactory, or
// propagate anything else (a genuine internal/VM bug) unconverted.
func (vm *VM) toJavaRef(err error) (heap.Reference, error) {
	var jt *JavaThrow
	if errors.As(err, &jt) {
		return jt.Ref, nil
	}
	var jf javaFault
	if errors.As(err, &jf) {
		if vm.Exceptions == nil {
			return 0, fmt.Errorf("vm: no exception factory wired: %w", err)
		}
		ref, cerr := vm.Exceptions.NewThrowable(jf.javaClass(), jf.Error())
		if cerr != nil {
			return 0, cerr
		}
		return ref, nil
	}
	return 0, err
}

func (vm *VM) findHandler(frame *Frame, pc int, excRef heap.Reference) (int, bool) {
	if frame.Method.Code == nil {
		return 0, false
	}
	var excClass *classarea.Class
	if v, ok := vm.Heap.Get(excRef); ok && v.Kind == heap.KindObject {
		excClass, _ = v.Object.Class.(*classarea.Class)
	}
	for _, h := range frame.Method.Code.ExceptionHandlers {
		if pc < int(h.StartPC) || pc >= int(h.EndPC) {
			continue
		}
		if h.CatchType == 0 {
			return int(h.HandlerPC), true
		}
		catchClass, err := frame.Class.ConstPool().ResolveClass(h.CatchType)
		if err != nil {
			continue
		}
		if excClass != nil && excClass.IsSubclassOf(catchClass) {
			return int(h.HandlerPC), true
		}
	}
	return 0, false
}

// popArgs pops len(md.Args) values off frame's stack in declaration
// order (they were pushed left-to-right, so the last arg is on top).
func popArgs(frame *Frame, md *descriptor.MethodDescriptor) []Value {
	args := make([]Value, len(md.Args))
	for i := len(md.Args) - 1; i >= 0; i-- {
		args[i] = frame.Pop()
	}
	return args
}

// RuntimeClassOf returns the actual class of a heap object/array
// reference, for virtual/interface dispatch. Arrays report their
// component's owning class only indirectly (arrays don't override
// methods in this implementation's scope), so dispatch on an array
// reference simply isn't something bytecode does.
func (vm *VM) RuntimeClassOf(ref heap.Reference) (*classarea.Class, error) {
	if ref == 0 {
		return nil, &NullPointerError{Op: "virtual dispatch"}
	}
	v, ok := vm.Heap.Get(ref)
	if !ok || v.Kind != heap.KindObject {
		return nil, fmt.Errorf("vm: reference %d is not an object", ref)
	}
	class, ok := v.Object.Class.(*classarea.Class)
	if !ok {
		return nil, fmt.Errorf("vm: reference %d has no classarea.Class", ref)
	}
	return class, nil
}

// readField reads a field of kind d from data at offset into a Value.
func readField(data []byte, offset int, d *descriptor.Descriptor) Value {
	switch d.Kind {
	case descriptor.Long:
		return LongVal(heap.ReadLong(data, offset))
	case descriptor.Float:
		return FloatVal(heap.ReadFloat(data, offset))
	case descriptor.Double:
		return DoubleVal(heap.ReadDouble(data, offset))
	case descriptor.Object, descriptor.Array:
		return RefVal(heap.ReadRef(data, offset))
	default:
		return IntVal(heap.ReadInt(data, offset, d.Kind))
	}
}

// writeField writes v into data at offset per kind d.
func writeField(data []byte, offset int, d *descriptor.Descriptor, v Value) {
	switch d.Kind {
	case descriptor.Long:
		heap.WriteLong(data, offset, v.L)
	case descriptor.Float:
		heap.WriteFloat(data, offset, v.F)
	case descriptor.Double:
		heap.WriteDouble(data, offset, v.D)
	case descriptor.Object, descriptor.Array:
		heap.WriteRef(data, offset, v.Ref)
	default:
		heap.WriteInt(data, offset, d.Kind, v.I)
	}
}
