package native

import (
	"github.com/shunsuke-abe/govm/pkg/heap"
	"github.com/shunsuke-abe/govm/pkg/vm"
)

// registerClass wires the minimal java.lang.Class surface this
// implementation supports: reflection beyond the Class bootstrap mirror
// itself is out of scope (spec.md non-goals), so getName and
// desiredAssertionStatus (govm never instruments assertions) are all that's
// needed to let ordinary code call getClass().getName().
func (r *Registry) registerClass() {
	const class = "java/lang/Class"

	r.register(class, "registerNatives", "()V", noOp)

	r.register(class, "getName", "()Ljava/lang/String;", func(v *vm.VM, th *vm.Thread, args []vm.Value) (vm.Value, error) {
		classClass, err := v.Area.ClassClass()
		if err != nil {
			return vm.Value{}, err
		}
		off, ok := classClass.FieldOffset("name")
		if !ok {
			return vm.Value{}, &vm.NullPointerError{Op: "Class.getName"}
		}
		obj, ok := v.Heap.Get(args[0].Ref)
		if !ok {
			return vm.Value{}, &vm.NullPointerError{Op: "Class.getName"}
		}
		return vm.RefVal(heap.ReadRef(obj.Object.Data, off)), nil
	})

	r.register(class, "desiredAssertionStatus0", "(Ljava/lang/Class;)Z", func(v *vm.VM, th *vm.Thread, args []vm.Value) (vm.Value, error) {
		return vm.BoolVal(false), nil
	})
}
