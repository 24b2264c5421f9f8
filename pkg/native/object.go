package native

import (
	"time"

	"github.com/shunsuke-abe/govm/pkg/heap"
	"github.com/shunsuke-abe/govm/pkg/vm"
)

// registerObject wires java.lang.Object's intrinsics: identity hashing,
// reference equality, the Class mirror, heap.Copy-backed clone, and the
// wait/notify/notifyAll trio delegating to pkg/monitor (robusta
// native/java_lang.rs's Object plugins, SPEC_FULL.md section 7).
func (r *Registry) registerObject() {
	const class = "java/lang/Object"

	r.register(class, "registerNatives", "()V", noOp)

	r.register(class, "hashCode", "()I", func(v *vm.VM, th *vm.Thread, args []vm.Value) (vm.Value, error) {
		return vm.IntVal(int32(args[0].Ref)), nil
	})

	r.register(class, "equals", "(Ljava/lang/Object;)Z", func(v *vm.VM, th *vm.Thread, args []vm.Value) (vm.Value, error) {
		return vm.BoolVal(args[0].Ref == args[1].Ref), nil
	})

	r.register(class, "getClass", "()Ljava/lang/Class;", func(v *vm.VM, th *vm.Thread, args []vm.Value) (vm.Value, error) {
		class, err := v.RuntimeClassOf(args[0].Ref)
		if err != nil {
			return vm.Value{}, err
		}
		classClass, err := v.Area.ClassClass()
		if err != nil {
			return vm.Value{}, err
		}
		stringClass, err := v.Area.StringClass()
		if err != nil {
			return vm.Value{}, err
		}
		ref, err := v.Interner.InsertClassObject(class, classClass, stringClass)
		if err != nil {
			return vm.Value{}, err
		}
		return vm.RefVal(ref), nil
	})

	r.register(class, "clone", "()Ljava/lang/Object;", func(v *vm.VM, th *vm.Thread, args []vm.Value) (vm.Value, error) {
		obj, ok := v.Heap.Get(args[0].Ref)
		if !ok {
			return vm.Value{}, &vm.NullPointerError{Op: "clone"}
		}
		ref, err := v.Heap.Copy(obj)
		if err != nil {
			return vm.Value{}, err
		}
		return vm.RefVal(ref), nil
	})

	r.register(class, "wait", "()V", func(v *vm.VM, th *vm.Thread, args []vm.Value) (vm.Value, error) {
		return vm.Value{}, objectWait(v, th, args[0].Ref, 0)
	})
	r.register(class, "wait", "(J)V", func(v *vm.VM, th *vm.Thread, args []vm.Value) (vm.Value, error) {
		return vm.Value{}, objectWait(v, th, args[0].Ref, time.Duration(args[1].L)*time.Millisecond)
	})

	r.register(class, "notify", "()V", func(v *vm.VM, th *vm.Thread, args []vm.Value) (vm.Value, error) {
		lock, err := v.Heap.Lock(args[0].Ref)
		if err != nil {
			return vm.Value{}, err
		}
		lock.Notify()
		return vm.Value{}, nil
	})
	r.register(class, "notifyAll", "()V", func(v *vm.VM, th *vm.Thread, args []vm.Value) (vm.Value, error) {
		lock, err := v.Heap.Lock(args[0].Ref)
		if err != nil {
			return vm.Value{}, err
		}
		lock.NotifyAll()
		return vm.Value{}, nil
	})
}

func objectWait(v *vm.VM, th *vm.Thread, ref heap.Reference, timeout time.Duration) error {
	lock, err := v.Heap.Lock(ref)
	if err != nil {
		return err
	}
	if err := lock.Wait(th.ID, th.Safe, timeout); err != nil {
		return &vm.IllegalMonitorStateError{Reason: err.Error()}
	}
	return nil
}
