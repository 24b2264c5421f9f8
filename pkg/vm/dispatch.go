package vm

import "fmt"

// executeInvokestatic resolves and calls a static method. No receiver to
// pop; Initialize runs the declaring class's <clinit> first, per spec.md.
func (vm *VM) executeInvokestatic(th *Thread, frame *Frame) (Value, bool, error) {
	index := frame.ReadU16()
	class, method, err := frame.Class.ConstPool().ResolveMethod(index)
	if err != nil {
		return Value{}, false, err
	}
	if err := vm.Area.Initialize(class); err != nil {
		return Value{}, false, err
	}
	args := popArgs(frame, method.Descriptor)
	ret, err := vm.invokeMethod(th, method, args)
	if err != nil {
		return Value{}, false, err
	}
	if method.Descriptor.Returns != nil {
		frame.Push(ret)
	}
	return Value{}, false, nil
}

// executeInvokespecial calls <init>, a private method, or a superclass
// method without virtual dispatch: the symbolically resolved method is
// invoked directly, exactly as resolved (JVM 8 6.5.invokespecial).
func (vm *VM) executeInvokespecial(th *Thread, frame *Frame) (Value, bool, error) {
	index := frame.ReadU16()
	class, method, err := frame.Class.ConstPool().ResolveMethod(index)
	if err != nil {
		return Value{}, false, err
	}
	args := popArgs(frame, method.Descriptor)
	objVal := frame.Pop()
	if objVal.IsNull() {
		return Value{}, false, &NullPointerError{Op: "invokespecial " + method.Name}
	}
	if err := vm.Area.Initialize(class); err != nil {
		return Value{}, false, err
	}
	ret, err := vm.invokeMethod(th, method, append([]Value{objVal}, args...))
	if err != nil {
		return Value{}, false, err
	}
	if method.Descriptor.Returns != nil {
		frame.Push(ret)
	}
	return Value{}, false, nil
}

// executeInvokevirtual resolves the symbolic method for its descriptor,
// then redispatches against the receiver's actual runtime class (JVM 8
// 6.5.invokevirtual): this is where overriding takes effect.
func (vm *VM) executeInvokevirtual(th *Thread, frame *Frame) (Value, bool, error) {
	index := frame.ReadU16()
	_, symbolic, err := frame.Class.ConstPool().ResolveMethod(index)
	if err != nil {
		return Value{}, false, err
	}
	args := popArgs(frame, symbolic.Descriptor)
	objVal := frame.Pop()
	if objVal.IsNull() {
		return Value{}, false, &NullPointerError{Op: "invokevirtual " + symbolic.Name}
	}
	runtime, err := vm.RuntimeClassOf(objVal.Ref)
	if err != nil {
		return Value{}, false, err
	}
	method, ok := runtime.FindMethod(symbolic.Name, symbolic.Descriptor.String())
	if !ok {
		return Value{}, false, fmt.Errorf("vm: %s has no override of %s%s", runtime.Name(), symbolic.Name, symbolic.Descriptor.String())
	}
	ret, err := vm.invokeMethod(th, method, append([]Value{objVal}, args...))
	if err != nil {
		return Value{}, false, err
	}
	if method.Descriptor.Returns != nil {
		frame.Push(ret)
	}
	return Value{}, false, nil
}

// executeInvokeinterface is invokevirtual's counterpart for interface
// method references; the operand layout carries an extra argument-count
// byte and a reserved zero byte that this implementation reads past
// without using (the arg count is already implied by the descriptor).
func (vm *VM) executeInvokeinterface(th *Thread, frame *Frame) (Value, bool, error) {
	index := frame.ReadU16()
	frame.ReadU8() // count, redundant with the descriptor
	frame.ReadU8() // reserved, always 0
	_, symbolic, err := frame.Class.ConstPool().ResolveMethod(index)
	if err != nil {
		return Value{}, false, err
	}
	args := popArgs(frame, symbolic.Descriptor)
	objVal := frame.Pop()
	if objVal.IsNull() {
		return Value{}, false, &NullPointerError{Op: "invokeinterface " + symbolic.Name}
	}
	runtime, err := vm.RuntimeClassOf(objVal.Ref)
	if err != nil {
		return Value{}, false, err
	}
	method, ok := runtime.FindMethod(symbolic.Name, symbolic.Descriptor.String())
	if !ok {
		return Value{}, false, fmt.Errorf("vm: %s has no implementation of %s%s", runtime.Name(), symbolic.Name, symbolic.Descriptor.String())
	}
	ret, err := vm.invokeMethod(th, method, append([]Value{objVal}, args...))
	if err != nil {
		return Value{}, false, err
	}
	if method.Descriptor.Returns != nil {
		frame.Push(ret)
	}
	return Value{}, false, nil
}
