package vm

import "github.com/shunsuke-abe/govm/pkg/heap"

func (vm *VM) executeGetstatic(frame *Frame) (Value, bool, error) {
	index := frame.ReadU16()
	class, field, err := frame.Class.ConstPool().ResolveField(index)
	if err != nil {
		return Value{}, false, err
	}
	if err := vm.Area.Initialize(class); err != nil {
		return Value{}, false, err
	}
	ref, err := vm.Heap.GetStatic(class)
	if err != nil {
		return Value{}, false, err
	}
	v, _ := vm.Heap.Get(ref)
	frame.Push(readField(v.Object.Data, field.Offset, field.Descriptor))
	return Value{}, false, nil
}

func (vm *VM) executePutstatic(frame *Frame) (Value, bool, error) {
	index := frame.ReadU16()
	class, field, err := frame.Class.ConstPool().ResolveField(index)
	if err != nil {
		return Value{}, false, err
	}
	if err := vm.Area.Initialize(class); err != nil {
		return Value{}, false, err
	}
	value := frame.Pop()
	ref, err := vm.Heap.GetStatic(class)
	if err != nil {
		return Value{}, false, err
	}
	v, _ := vm.Heap.Get(ref)
	writeField(v.Object.Data, field.Offset, field.Descriptor, value)
	return Value{}, false, nil
}

func (vm *VM) executeGetfield(frame *Frame) (Value, bool, error) {
	index := frame.ReadU16()
	_, field, err := frame.Class.ConstPool().ResolveField(index)
	if err != nil {
		return Value{}, false, err
	}
	objVal := frame.Pop()
	if objVal.IsNull() {
		return Value{}, false, &NullPointerError{Op: "getfield " + field.Name}
	}
	v, ok := vm.Heap.Get(objVal.Ref)
	if !ok || v.Kind != heap.KindObject {
		return Value{}, false, &NullPointerError{Op: "getfield " + field.Name}
	}
	frame.Push(readField(v.Object.Data, field.Offset, field.Descriptor))
	return Value{}, false, nil
}

func (vm *VM) executePutfield(frame *Frame) (Value, bool, error) {
	index := frame.ReadU16()
	_, field, err := frame.Class.ConstPool().ResolveField(index)
	if err != nil {
		return Value{}, false, err
	}
	value := frame.Pop()
	objVal := frame.Pop()
	if objVal.IsNull() {
		return Value{}, false, &NullPointerError{Op: "putfield " + field.Name}
	}
	v, ok := vm.Heap.Get(objVal.Ref)
	if !ok || v.Kind != heap.KindObject {
		return Value{}, false, &NullPointerError{Op: "putfield " + field.Name}
	}
	writeField(v.Object.Data, field.Offset, field.Descriptor, value)
	return Value{}, false, nil
}
