package vm

import (
	"errors"
	"fmt"
	"math"

	"github.com/shunsuke-abe/govm/pkg/classarea"
	"github.com/shunsuke-abe/govm/pkg/classfile"
	"github.com/shunsuke-abe/govm/pkg/heap"
)

// executeInstruction executes a single bytecode instruction over the full
// Value kind set. Returns (returnValue, hasReturn, error); hasReturn
// signals runFrame to pop the frame and hand the value to the caller.
func (vm *VM) executeInstruction(th *Thread, frame *Frame, opcode byte) (Value, bool, error) {
	switch opcode {
	case OpNop:

	// --- Constants ---
	case OpAconstNull:
		frame.Push(NullVal())
	case OpIconstM1:
		frame.Push(IntVal(-1))
	case OpIconst0, OpIconst1, OpIconst2, OpIconst3, OpIconst4, OpIconst5:
		frame.Push(IntVal(int32(opcode - OpIconst0)))
	case OpLconst0:
		frame.Push(LongVal(0))
	case OpLconst1:
		frame.Push(LongVal(1))
	case OpFconst0:
		frame.Push(FloatVal(0))
	case OpFconst1:
		frame.Push(FloatVal(1))
	case OpFconst2:
		frame.Push(FloatVal(2))
	case OpDconst0:
		frame.Push(DoubleVal(0))
	case OpDconst1:
		frame.Push(DoubleVal(1))
	case OpBipush:
		frame.Push(IntVal(int32(frame.ReadI8())))
	case OpSipush:
		frame.Push(IntVal(int32(frame.ReadI16())))
	case OpLdc:
		return vm.executeLdc(frame, uint16(frame.ReadU8()))
	case OpLdcW:
		return vm.executeLdc(frame, frame.ReadU16())
	case OpLdc2W:
		return vm.executeLdc2W(frame, frame.ReadU16())

	// --- Loads ---
	case OpIload, OpLload, OpFload, OpDload, OpAload:
		frame.Push(frame.GetLocal(int(frame.ReadU8())))
	case OpIload0, OpIload1, OpIload2, OpIload3:
		frame.Push(frame.GetLocal(int(opcode - OpIload0)))
	case OpLload0, OpLload1, OpLload2, OpLload3:
		frame.Push(frame.GetLocal(int(opcode - OpLload0)))
	case OpFload0, OpFload1, OpFload2, OpFload3:
		frame.Push(frame.GetLocal(int(opcode - OpFload0)))
	case OpDload0, OpDload1, OpDload2, OpDload3:
		frame.Push(frame.GetLocal(int(opcode - OpDload0)))
	case OpAload0, OpAload1, OpAload2, OpAload3:
		frame.Push(frame.GetLocal(int(opcode - OpAload0)))

	case OpIaload, OpLaload, OpFaload, OpDaload, OpAaload, OpBaload, OpCaload, OpSaload:
		return vm.executeArrayLoad(frame, opcode)

	// --- Stores ---
	case OpIstore, OpLstore, OpFstore, OpDstore, OpAstore:
		frame.SetLocal(int(frame.ReadU8()), frame.Pop())
	case OpIstore0, OpIstore1, OpIstore2, OpIstore3:
		frame.SetLocal(int(opcode-OpIstore0), frame.Pop())
	case OpLstore0, OpLstore1, OpLstore2, OpLstore3:
		frame.SetLocal(int(opcode-OpLstore0), frame.Pop())
	case OpFstore0, OpFstore1, OpFstore2, OpFstore3:
		frame.SetLocal(int(opcode-OpFstore0), frame.Pop())
	case OpDstore0, OpDstore1, OpDstore2, OpDstore3:
		frame.SetLocal(int(opcode-OpDstore0), frame.Pop())
	case OpAstore0, OpAstore1, OpAstore2, OpAstore3:
		frame.SetLocal(int(opcode-OpAstore0), frame.Pop())

	case OpIastore, OpLastore, OpFastore, OpDastore, OpAastore, OpBastore, OpCastore, OpSastore:
		return vm.executeArrayStore(frame, opcode)

	// --- Stack manipulation ---
	case OpPop:
		frame.Pop()
	case OpPop2:
		if frame.Peek().Category() == 2 {
			frame.Pop()
		} else {
			frame.Pop()
			frame.Pop()
		}
	case OpDup:
		v := frame.Peek()
		frame.Push(v)
	case OpDupX1:
		v1, v2 := frame.Pop(), frame.Pop()
		frame.Push(v1)
		frame.Push(v2)
		frame.Push(v1)
	case OpDupX2:
		v1, v2, v3 := frame.Pop(), frame.Pop(), frame.Pop()
		frame.Push(v1)
		frame.Push(v3)
		frame.Push(v2)
		frame.Push(v1)
	case OpDup2:
		if frame.Peek().Category() == 2 {
			v1 := frame.Pop()
			frame.Push(v1)
			frame.Push(v1)
		} else {
			v1, v2 := frame.Pop(), frame.Pop()
			frame.Push(v2)
			frame.Push(v1)
			frame.Push(v2)
			frame.Push(v1)
		}
	case OpDup2X1:
		if frame.Peek().Category() == 2 {
			v1, v2 := frame.Pop(), frame.Pop()
			frame.Push(v1)
			frame.Push(v2)
			frame.Push(v1)
		} else {
			v1, v2, v3 := frame.Pop(), frame.Pop(), frame.Pop()
			frame.Push(v2)
			frame.Push(v1)
			frame.Push(v3)
			frame.Push(v2)
			frame.Push(v1)
		}
	case OpDup2X2:
		v1 := frame.Pop()
		v2 := frame.Pop()
		if v1.Category() == 2 {
			if v2.Category() == 2 {
				// form 4: value1, value2 both category 2
				frame.Push(v1)
				frame.Push(v2)
				frame.Push(v1)
			} else {
				// form 2: value1 category 2; value2, value3 category 1
				v3 := frame.Pop()
				frame.Push(v1)
				frame.Push(v3)
				frame.Push(v2)
				frame.Push(v1)
			}
		} else {
			v3 := frame.Pop()
			if v3.Category() == 2 {
				// form 3: value1, value2 category 1; value3 category 2
				frame.Push(v2)
				frame.Push(v1)
				frame.Push(v3)
				frame.Push(v2)
				frame.Push(v1)
			} else {
				// form 1: all four category 1
				v4 := frame.Pop()
				frame.Push(v2)
				frame.Push(v1)
				frame.Push(v4)
				frame.Push(v3)
				frame.Push(v2)
				frame.Push(v1)
			}
		}
	case OpSwap:
		v2, v1 := frame.Pop(), frame.Pop()
		frame.Push(v2)
		frame.Push(v1)

	// --- Int arithmetic ---
	case OpIadd:
		b, a := frame.Pop().I, frame.Pop().I
		frame.Push(IntVal(a + b))
	case OpIsub:
		b, a := frame.Pop().I, frame.Pop().I
		frame.Push(IntVal(a - b))
	case OpImul:
		b, a := frame.Pop().I, frame.Pop().I
		frame.Push(IntVal(a * b))
	case OpIdiv:
		b, a := frame.Pop().I, frame.Pop().I
		if b == 0 {
			return Value{}, false, &ArithmeticError{Reason: "/ by zero"}
		}
		frame.Push(IntVal(a / b))
	case OpIrem:
		b, a := frame.Pop().I, frame.Pop().I
		if b == 0 {
			return Value{}, false, &ArithmeticError{Reason: "/ by zero"}
		}
		frame.Push(IntVal(a % b))
	case OpIneg:
		frame.Push(IntVal(-frame.Pop().I))
	case OpIshl:
		b, a := frame.Pop().I, frame.Pop().I
		frame.Push(IntVal(a << (uint32(b) & 0x1F)))
	case OpIshr:
		b, a := frame.Pop().I, frame.Pop().I
		frame.Push(IntVal(a >> (uint32(b) & 0x1F)))
	case OpIushr:
		b, a := frame.Pop().I, frame.Pop().I
		frame.Push(IntVal(int32(uint32(a) >> (uint32(b) & 0x1F))))
	case OpIand:
		b, a := frame.Pop().I, frame.Pop().I
		frame.Push(IntVal(a & b))
	case OpIor:
		b, a := frame.Pop().I, frame.Pop().I
		frame.Push(IntVal(a | b))
	case OpIxor:
		b, a := frame.Pop().I, frame.Pop().I
		frame.Push(IntVal(a ^ b))
	case OpIinc:
		index := int(frame.ReadU8())
		delta := int32(frame.ReadI8())
		frame.SetLocal(index, IntVal(frame.GetLocal(index).I+delta))

	// --- Long arithmetic ---
	case OpLadd:
		b, a := frame.Pop().L, frame.Pop().L
		frame.Push(LongVal(a + b))
	case OpLsub:
		b, a := frame.Pop().L, frame.Pop().L
		frame.Push(LongVal(a - b))
	case OpLmul:
		b, a := frame.Pop().L, frame.Pop().L
		frame.Push(LongVal(a * b))
	case OpLdiv:
		b, a := frame.Pop().L, frame.Pop().L
		if b == 0 {
			return Value{}, false, &ArithmeticError{Reason: "/ by zero"}
		}
		frame.Push(LongVal(a / b))
	case OpLrem:
		b, a := frame.Pop().L, frame.Pop().L
		if b == 0 {
			return Value{}, false, &ArithmeticError{Reason: "/ by zero"}
		}
		frame.Push(LongVal(a % b))
	case OpLneg:
		frame.Push(LongVal(-frame.Pop().L))
	case OpLshl:
		b, a := frame.Pop().I, frame.Pop().L
		frame.Push(LongVal(a << (uint32(b) & 0x3F)))
	case OpLshr:
		b, a := frame.Pop().I, frame.Pop().L
		frame.Push(LongVal(a >> (uint32(b) & 0x3F)))
	case OpLushr:
		b, a := frame.Pop().I, frame.Pop().L
		frame.Push(LongVal(int64(uint64(a) >> (uint32(b) & 0x3F))))
	case OpLand:
		b, a := frame.Pop().L, frame.Pop().L
		frame.Push(LongVal(a & b))
	case OpLor:
		b, a := frame.Pop().L, frame.Pop().L
		frame.Push(LongVal(a | b))
	case OpLxor:
		b, a := frame.Pop().L, frame.Pop().L
		frame.Push(LongVal(a ^ b))

	// --- Float/double arithmetic ---
	case OpFadd:
		b, a := frame.Pop().F, frame.Pop().F
		frame.Push(FloatVal(a + b))
	case OpFsub:
		b, a := frame.Pop().F, frame.Pop().F
		frame.Push(FloatVal(a - b))
	case OpFmul:
		b, a := frame.Pop().F, frame.Pop().F
		frame.Push(FloatVal(a * b))
	case OpFdiv:
		b, a := frame.Pop().F, frame.Pop().F
		frame.Push(FloatVal(a / b))
	case OpFrem:
		b, a := frame.Pop().F, frame.Pop().F
		frame.Push(FloatVal(float32(math.Mod(float64(a), float64(b)))))
	case OpFneg:
		frame.Push(FloatVal(-frame.Pop().F))
	case OpDadd:
		b, a := frame.Pop().D, frame.Pop().D
		frame.Push(DoubleVal(a + b))
	case OpDsub:
		b, a := frame.Pop().D, frame.Pop().D
		frame.Push(DoubleVal(a - b))
	case OpDmul:
		b, a := frame.Pop().D, frame.Pop().D
		frame.Push(DoubleVal(a * b))
	case OpDdiv:
		b, a := frame.Pop().D, frame.Pop().D
		frame.Push(DoubleVal(a / b))
	case OpDrem:
		b, a := frame.Pop().D, frame.Pop().D
		frame.Push(DoubleVal(math.Mod(a, b)))
	case OpDneg:
		frame.Push(DoubleVal(-frame.Pop().D))

	// --- Conversions ---
	case OpI2l:
		frame.Push(LongVal(int64(frame.Pop().I)))
	case OpI2f:
		frame.Push(FloatVal(float32(frame.Pop().I)))
	case OpI2d:
		frame.Push(DoubleVal(float64(frame.Pop().I)))
	case OpL2i:
		frame.Push(IntVal(int32(frame.Pop().L)))
	case OpL2f:
		frame.Push(FloatVal(float32(frame.Pop().L)))
	case OpL2d:
		frame.Push(DoubleVal(float64(frame.Pop().L)))
	case OpF2i:
		frame.Push(IntVal(floatToInt32(frame.Pop().F)))
	case OpF2l:
		frame.Push(LongVal(floatToInt64(frame.Pop().F)))
	case OpF2d:
		frame.Push(DoubleVal(float64(frame.Pop().F)))
	case OpD2i:
		frame.Push(IntVal(doubleToInt32(frame.Pop().D)))
	case OpD2l:
		frame.Push(LongVal(doubleToInt64(frame.Pop().D)))
	case OpD2f:
		frame.Push(FloatVal(float32(frame.Pop().D)))
	case OpI2b:
		frame.Push(IntVal(int32(int8(frame.Pop().I))))
	case OpI2c:
		frame.Push(IntVal(int32(uint16(frame.Pop().I))))
	case OpI2s:
		frame.Push(IntVal(int32(int16(frame.Pop().I))))

	// --- Comparisons ---
	case OpLcmp:
		b, a := frame.Pop().L, frame.Pop().L
		frame.Push(IntVal(compare64(a, b)))
	case OpFcmpl:
		b, a := frame.Pop().F, frame.Pop().F
		frame.Push(IntVal(fcmp(float64(a), float64(b), -1)))
	case OpFcmpg:
		b, a := frame.Pop().F, frame.Pop().F
		frame.Push(IntVal(fcmp(float64(a), float64(b), 1)))
	case OpDcmpl:
		b, a := frame.Pop().D, frame.Pop().D
		frame.Push(IntVal(fcmp(a, b, -1)))
	case OpDcmpg:
		b, a := frame.Pop().D, frame.Pop().D
		frame.Push(IntVal(fcmp(a, b, 1)))

	// --- Branches ---
	case OpIfeq:
		return vm.branchUnary(frame, func(v int32) bool { return v == 0 })
	case OpIfne:
		return vm.branchUnary(frame, func(v int32) bool { return v != 0 })
	case OpIflt:
		return vm.branchUnary(frame, func(v int32) bool { return v < 0 })
	case OpIfge:
		return vm.branchUnary(frame, func(v int32) bool { return v >= 0 })
	case OpIfgt:
		return vm.branchUnary(frame, func(v int32) bool { return v > 0 })
	case OpIfle:
		return vm.branchUnary(frame, func(v int32) bool { return v <= 0 })
	case OpIfIcmpeq:
		return vm.branchBinary(frame, func(a, b int32) bool { return a == b })
	case OpIfIcmpne:
		return vm.branchBinary(frame, func(a, b int32) bool { return a != b })
	case OpIfIcmplt:
		return vm.branchBinary(frame, func(a, b int32) bool { return a < b })
	case OpIfIcmpge:
		return vm.branchBinary(frame, func(a, b int32) bool { return a >= b })
	case OpIfIcmpgt:
		return vm.branchBinary(frame, func(a, b int32) bool { return a > b })
	case OpIfIcmple:
		return vm.branchBinary(frame, func(a, b int32) bool { return a <= b })
	case OpIfAcmpeq:
		return vm.branchRef(frame, func(a, b Value) bool { return a.Ref == b.Ref })
	case OpIfAcmpne:
		return vm.branchRef(frame, func(a, b Value) bool { return a.Ref != b.Ref })
	case OpIfnull:
		branchPC := frame.PC - 1
		offset := frame.ReadI16()
		if frame.Pop().IsNull() {
			frame.PC = branchPC + int(offset)
		}
	case OpIfnonnull:
		branchPC := frame.PC - 1
		offset := frame.ReadI16()
		if !frame.Pop().IsNull() {
			frame.PC = branchPC + int(offset)
		}
	case OpGoto:
		branchPC := frame.PC - 1
		offset := frame.ReadI16()
		frame.PC = branchPC + int(offset)
	case OpGotoW:
		branchPC := frame.PC - 1
		offset := frame.ReadI32()
		frame.PC = branchPC + int(offset)
	case OpTableswitch:
		vm.executeTableswitch(frame)
	case OpLookupswitch:
		vm.executeLookupswitch(frame)

	// --- Returns ---
	case OpIreturn, OpLreturn, OpFreturn, OpDreturn, OpAreturn:
		return frame.Pop(), true, nil
	case OpReturn:
		return Value{}, true, nil

	// --- Fields ---
	case OpGetstatic:
		return vm.executeGetstatic(frame)
	case OpPutstatic:
		return vm.executePutstatic(frame)
	case OpGetfield:
		return vm.executeGetfield(frame)
	case OpPutfield:
		return vm.executePutfield(frame)

	// --- Invocation ---
	case OpInvokevirtual:
		return vm.executeInvokevirtual(th, frame)
	case OpInvokespecial:
		return vm.executeInvokespecial(th, frame)
	case OpInvokestatic:
		return vm.executeInvokestatic(th, frame)
	case OpInvokeinterface:
		return vm.executeInvokeinterface(th, frame)

	// --- Objects/arrays ---
	case OpNew:
		return vm.executeNew(frame)
	case OpNewarray:
		return vm.executeNewarray(frame)
	case OpAnewarray:
		return vm.executeAnewarray(frame)
	case OpArraylength:
		v := frame.Pop()
		if v.IsNull() {
			return Value{}, false, &NullPointerError{Op: "arraylength"}
		}
		av, ok := vm.Heap.Get(v.Ref)
		if !ok || av.Kind != heap.KindArray {
			return Value{}, false, fmt.Errorf("vm: arraylength on a non-array reference")
		}
		frame.Push(IntVal(int32(av.Array.Length)))
	case OpAthrow:
		ref := frame.Pop().Ref
		if ref == 0 {
			return Value{}, false, &NullPointerError{Op: "athrow"}
		}
		return Value{}, false, &JavaThrow{Ref: ref}
	case OpCheckcast:
		return vm.executeCheckcast(frame)
	case OpInstanceof:
		return vm.executeInstanceof(frame)
	case OpMonitorenter:
		v := frame.Pop()
		if v.IsNull() {
			return Value{}, false, &NullPointerError{Op: "monitorenter"}
		}
		lock, err := vm.Heap.Lock(v.Ref)
		if err != nil {
			return Value{}, false, err
		}
		lock.Enter(th.ID, th.Safe)
	case OpMonitorexit:
		v := frame.Pop()
		if v.IsNull() {
			return Value{}, false, &NullPointerError{Op: "monitorexit"}
		}
		lock, err := vm.Heap.Lock(v.Ref)
		if err != nil {
			return Value{}, false, err
		}
		if err := lock.Exit(th.ID); err != nil {
			return Value{}, false, &IllegalMonitorStateError{Reason: err.Error()}
		}

	default:
		return Value{}, false, fmt.Errorf("vm: unimplemented opcode 0x%02X at pc=%d in %s.%s", opcode, frame.PC-1, frame.Class.Name(), frame.Method.Name)
	}
	return Value{}, false, nil
}

func (vm *VM) branchUnary(frame *Frame, cond func(int32) bool) (Value, bool, error) {
	branchPC := frame.PC - 1
	offset := frame.ReadI16()
	if cond(frame.Pop().I) {
		frame.PC = branchPC + int(offset)
	}
	return Value{}, false, nil
}

func (vm *VM) branchBinary(frame *Frame, cond func(a, b int32) bool) (Value, bool, error) {
	branchPC := frame.PC - 1
	offset := frame.ReadI16()
	b, a := frame.Pop().I, frame.Pop().I
	if cond(a, b) {
		frame.PC = branchPC + int(offset)
	}
	return Value{}, false, nil
}

func (vm *VM) branchRef(frame *Frame, cond func(a, b Value) bool) (Value, bool, error) {
	branchPC := frame.PC - 1
	offset := frame.ReadI16()
	b, a := frame.Pop(), frame.Pop()
	if cond(a, b) {
		frame.PC = branchPC + int(offset)
	}
	return Value{}, false, nil
}

// executeTableswitch and executeLookupswitch align PC to a 4-byte
// boundary relative to the start of the method's code, per JVM 8 6.5.
func (vm *VM) executeTableswitch(frame *Frame) {
	opcodePC := frame.PC - 1
	vm.alignPC(frame, opcodePC)
	def := frame.ReadI32()
	low := frame.ReadI32()
	high := frame.ReadI32()
	index := frame.Pop().I
	if index < low || index > high {
		frame.PC = opcodePC + int(def)
		return
	}
	frame.PC += int(index-low) * 4
	offset := frame.ReadI32()
	frame.PC = opcodePC + int(offset)
}

func (vm *VM) executeLookupswitch(frame *Frame) {
	opcodePC := frame.PC - 1
	vm.alignPC(frame, opcodePC)
	def := frame.ReadI32()
	count := frame.ReadI32()
	key := frame.Pop().I
	for i := int32(0); i < count; i++ {
		match := frame.ReadI32()
		offset := frame.ReadI32()
		if match == key {
			frame.PC = opcodePC + int(offset)
			return
		}
	}
	frame.PC = opcodePC + int(def)
}

func (vm *VM) alignPC(frame *Frame, opcodePC int) {
	pad := (4 - (opcodePC+1)%4) % 4
	frame.PC += pad
}

func floatToInt32(f float32) int32 {
	if f != f {
		return 0
	}
	if f >= float32(math.MaxInt32) {
		return math.MaxInt32
	}
	if f <= float32(math.MinInt32) {
		return math.MinInt32
	}
	return int32(f)
}

func floatToInt64(f float32) int64 {
	if f != f {
		return 0
	}
	if f >= float32(math.MaxInt64) {
		return math.MaxInt64
	}
	if f <= float32(math.MinInt64) {
		return math.MinInt64
	}
	return int64(f)
}

func doubleToInt32(d float64) int32 {
	if d != d {
		return 0
	}
	if d >= math.MaxInt32 {
		return math.MaxInt32
	}
	if d <= math.MinInt32 {
		return math.MinInt32
	}
	return int32(d)
}

func doubleToInt64(d float64) int64 {
	if d != d {
		return 0
	}
	if d >= math.MaxInt64 {
		return math.MaxInt64
	}
	if d <= math.MinInt64 {
		return math.MinInt64
	}
	return int64(d)
}

func compare64(a, b int64) int32 {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}

// fcmp implements fcmpg/fcmpl and dcmpg/dcmpl: nanResult is the value
// pushed (1 or -1) when either operand is NaN.
func fcmp(a, b float64, nanResult int32) int32 {
	if a != a || b != b {
		return nanResult
	}
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}

// executeLdc pushes a single-slot constant (int/float/String/Class) from
// the constant pool onto the stack.
func (vm *VM) executeLdc(frame *Frame, index uint16) (Value, bool, error) {
	pool := frame.Class.ConstPool()
	switch entry := pool.Raw(index).(type) {
	case *classfile.ConstantInteger:
		frame.Push(IntVal(entry.Value))
	case *classfile.ConstantFloat:
		frame.Push(FloatVal(entry.Value))
	case *classfile.ConstantString:
		ref, err := pool.ResolveString(index)
		if err != nil {
			return Value{}, false, err
		}
		frame.Push(RefVal(ref))
	case *classfile.ConstantClass:
		ref, err := vm.resolveClassMirror(pool, index)
		if err != nil {
			return Value{}, false, err
		}
		frame.Push(RefVal(ref))
	default:
		return Value{}, false, fmt.Errorf("vm: ldc of unsupported constant pool entry at index %d", index)
	}
	return Value{}, false, nil
}

// executeLdc2W pushes a two-slot constant (long/double).
func (vm *VM) executeLdc2W(frame *Frame, index uint16) (Value, bool, error) {
	pool := frame.Class.ConstPool()
	switch entry := pool.Raw(index).(type) {
	case *classfile.ConstantLong:
		frame.Push(LongVal(entry.Value))
	case *classfile.ConstantDouble:
		frame.Push(DoubleVal(entry.Value))
	default:
		return Value{}, false, fmt.Errorf("vm: ldc2_w of non long/double entry at index %d", index)
	}
	return Value{}, false, nil
}

func (vm *VM) resolveClassMirror(pool *classarea.ConstPool, index uint16) (heap.Reference, error) {
	class, err := pool.ResolveClass(index)
	if err != nil {
		return 0, err
	}
	classClass, err := vm.Area.ClassClass()
	if err != nil {
		return 0, err
	}
	stringClass, err := vm.Area.StringClass()
	if err != nil {
		return 0, err
	}
	return vm.Interner.InsertClassObject(class, classClass, stringClass)
}

func (vm *VM) executeArrayLoad(frame *Frame, opcode byte) (Value, bool, error) {
	index := frame.Pop().I
	arrVal := frame.Pop()
	if arrVal.IsNull() {
		return Value{}, false, &NullPointerError{Op: "array load"}
	}
	av, ok := vm.Heap.Get(arrVal.Ref)
	if !ok || av.Kind != heap.KindArray {
		return Value{}, false, fmt.Errorf("vm: array load on a non-array reference")
	}
	if index < 0 || int(index) >= av.Array.Length {
		return Value{}, false, &ArrayIndexOutOfBoundsError{Index: int(index), Length: av.Array.Length}
	}
	width := av.Array.Component.Width()
	off := int(index) * width
	switch opcode {
	case OpLaload:
		frame.Push(LongVal(heap.ReadLong(av.Array.Data, off)))
	case OpFaload:
		frame.Push(FloatVal(heap.ReadFloat(av.Array.Data, off)))
	case OpDaload:
		frame.Push(DoubleVal(heap.ReadDouble(av.Array.Data, off)))
	case OpAaload:
		frame.Push(RefVal(heap.ReadRef(av.Array.Data, off)))
	default: // Iaload, Baload, Caload, Saload
		frame.Push(IntVal(heap.ReadInt(av.Array.Data, off, av.Array.Component.Kind)))
	}
	return Value{}, false, nil
}

func (vm *VM) executeArrayStore(frame *Frame, opcode byte) (Value, bool, error) {
	value := frame.Pop()
	index := frame.Pop().I
	arrVal := frame.Pop()
	if arrVal.IsNull() {
		return Value{}, false, &NullPointerError{Op: "array store"}
	}
	av, ok := vm.Heap.Get(arrVal.Ref)
	if !ok || av.Kind != heap.KindArray {
		return Value{}, false, fmt.Errorf("vm: array store on a non-array reference")
	}
	if index < 0 || int(index) >= av.Array.Length {
		return Value{}, false, &ArrayIndexOutOfBoundsError{Index: int(index), Length: av.Array.Length}
	}
	width := av.Array.Component.Width()
	off := int(index) * width
	switch opcode {
	case OpLastore:
		heap.WriteLong(av.Array.Data, off, value.L)
	case OpFastore:
		heap.WriteFloat(av.Array.Data, off, value.F)
	case OpDastore:
		heap.WriteDouble(av.Array.Data, off, value.D)
	case OpAastore:
		heap.WriteRef(av.Array.Data, off, value.Ref)
	default: // Iastore, Bastore, Castore, Sastore
		heap.WriteInt(av.Array.Data, off, av.Array.Component.Kind, value.I)
	}
	return Value{}, false, nil
}

func (vm *VM) executeNew(frame *Frame) (Value, bool, error) {
	index := frame.ReadU16()
	class, err := frame.Class.ConstPool().ResolveClass(index)
	if err != nil {
		return Value{}, false, err
	}
	if err := vm.Area.Initialize(class); err != nil {
		return Value{}, false, err
	}
	ref, err := vm.Heap.NewObject(class)
	if err != nil {
		return Value{}, false, mapAllocError(err)
	}
	frame.Push(RefVal(ref))
	return Value{}, false, nil
}

func (vm *VM) executeNewarray(frame *Frame) (Value, bool, error) {
	atype := frame.ReadU8()
	count := frame.Pop().I
	if count < 0 {
		return Value{}, false, &NegativeArraySizeError{Length: count}
	}
	component, ok := heap.ComponentFromAtype(atype)
	if !ok {
		return Value{}, false, fmt.Errorf("vm: unknown newarray atype %d", atype)
	}
	ref, err := vm.Heap.NewArray(component, int(count))
	if err != nil {
		return Value{}, false, mapAllocError(err)
	}
	frame.Push(RefVal(ref))
	return Value{}, false, nil
}

func (vm *VM) executeAnewarray(frame *Frame) (Value, bool, error) {
	index := frame.ReadU16()
	count := frame.Pop().I
	if count < 0 {
		return Value{}, false, &NegativeArraySizeError{Length: count}
	}
	class, err := frame.Class.ConstPool().ResolveClass(index)
	if err != nil {
		return Value{}, false, err
	}
	ref, err := vm.Heap.NewArray(heap.ReferenceComponent(class.Name()), int(count))
	if err != nil {
		return Value{}, false, mapAllocError(err)
	}
	frame.Push(RefVal(ref))
	return Value{}, false, nil
}

func (vm *VM) executeCheckcast(frame *Frame) (Value, bool, error) {
	index := frame.ReadU16()
	v := frame.Peek()
	if v.IsNull() {
		return Value{}, false, nil
	}
	target, err := frame.Class.ConstPool().ResolveClass(index)
	if err != nil {
		return Value{}, false, err
	}
	runtime, err := vm.RuntimeClassOf(v.Ref)
	if err != nil {
		return Value{}, false, err
	}
	if !runtime.IsSubclassOf(target) {
		return Value{}, false, &ClassCastError{From: runtime.Name(), To: target.Name()}
	}
	return Value{}, false, nil
}

func (vm *VM) executeInstanceof(frame *Frame) (Value, bool, error) {
	index := frame.ReadU16()
	v := frame.Pop()
	if v.IsNull() {
		frame.Push(IntVal(0))
		return Value{}, false, nil
	}
	target, err := frame.Class.ConstPool().ResolveClass(index)
	if err != nil {
		return Value{}, false, err
	}
	runtime, err := vm.RuntimeClassOf(v.Ref)
	if err != nil {
		return Value{}, false, err
	}
	frame.Push(BoolVal(runtime.IsSubclassOf(target)))
	return Value{}, false, nil
}

func mapAllocError(err error) error {
	if errors.Is(err, heap.ErrOutOfMemory) {
		return &OutOfMemoryError{Reason: err.Error()}
	}
	return err
}
