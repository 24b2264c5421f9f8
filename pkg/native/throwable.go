package native

import (
	"github.com/shunsuke-abe/govm/pkg/heap"
	"github.com/shunsuke-abe/govm/pkg/vm"
)

// registerThrowable stubs the one java.lang.Throwable native every
// exception constructor chain touches: fillInStackTrace is a no-op (stack
// traces are a non-goal) and getStackTraceDepth0/getStackTraceElement are
// unreachable without it, so they're simply not registered — a program
// that calls printStackTrace() will fail that call, not construction.
func (r *Registry) registerThrowable() {
	r.register("java/lang/Throwable", "fillInStackTrace", "(I)Ljava/lang/Throwable;", func(v *vm.VM, th *vm.Thread, args []vm.Value) (vm.Value, error) {
		return args[0], nil
	})
}

// NewThrowable implements vm.ExceptionFactory: it loads and initializes
// className, allocates an instance, and — if the class (or an ancestor)
// declares a `message` field, as java.lang.Throwable does — sets it to an
// interned String holding message. This is how an internal Go fault
// (NullPointerError, ArithmeticError, ...) becomes a live Java exception
// object athrow can unwind (spec.md section 7).
func (r *Registry) NewThrowable(className, message string) (heap.Reference, error) {
	v := r.v
	class, err := v.Area.LoadClass(className)
	if err != nil {
		return 0, err
	}
	if err := v.Area.Initialize(class); err != nil {
		return 0, err
	}
	ref, err := v.Heap.NewObject(class)
	if err != nil {
		return 0, err
	}
	if off, ok := class.FieldOffset("message"); ok {
		stringClass, err := v.Area.StringClass()
		if err != nil {
			return 0, err
		}
		msgRef, err := v.Interner.InsertStringConst(message, stringClass)
		if err != nil {
			return 0, err
		}
		obj, _ := v.Heap.Get(ref)
		heap.WriteRef(obj.Object.Data, off, msgRef)
	}
	return ref, nil
}
