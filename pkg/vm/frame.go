package vm

import (
	"encoding/binary"
	"fmt"

	"github.com/shunsuke-abe/govm/pkg/classarea"
)

// Frame is one activation record: the operand stack, local variables, and
// program counter for a single method invocation (spec.md section 3's
// Frame), carrying the full Value set in value.go rather than a bare
// int/ref/null stack.
type Frame struct {
	Method *classarea.Method
	Class  *classarea.Class // Method.Owner, kept alongside for readability
	Code   []byte
	PC     int

	LocalVars    []Value
	OperandStack []Value
	SP           int

	// MonitorOwner is non-zero for a synchronized method: the object whose
	// monitor invokeMethod entered on the way in and must exit exactly
	// once on the way out, by normal return or by exception.
	MonitorOwner Value
	HasMonitor   bool
}

// NewFrame allocates an activation record sized per the Code attribute's
// max_locals/max_stack. Native/abstract methods (Code == nil) get a frame
// with no locals/stack; the interpreter never runs their bytecode.
func NewFrame(class *classarea.Class, method *classarea.Method) *Frame {
	var code []byte
	maxLocals, maxStack := 0, 0
	if method.Code != nil {
		code = method.Code.Code
		maxLocals = int(method.Code.MaxLocals)
		maxStack = int(method.Code.MaxStack)
	}
	return &Frame{
		Method:       method,
		Class:        class,
		Code:         code,
		LocalVars:    make([]Value, maxLocals),
		OperandStack: make([]Value, maxStack),
	}
}

func (f *Frame) Push(v Value) {
	if f.SP >= len(f.OperandStack) {
		panic(fmt.Sprintf("vm: operand stack overflow in %s.%s%s", f.Class.Name(), f.Method.Name, f.Method.Descriptor.String()))
	}
	f.OperandStack[f.SP] = v
	f.SP++
}

func (f *Frame) Pop() Value {
	if f.SP == 0 {
		panic(fmt.Sprintf("vm: operand stack underflow in %s.%s%s", f.Class.Name(), f.Method.Name, f.Method.Descriptor.String()))
	}
	f.SP--
	return f.OperandStack[f.SP]
}

func (f *Frame) Peek() Value { return f.OperandStack[f.SP-1] }

func (f *Frame) GetLocal(i int) Value { return f.LocalVars[i] }

func (f *Frame) SetLocal(i int, v Value) { f.LocalVars[i] = v }

func (f *Frame) ReadU8() uint8 {
	v := f.Code[f.PC]
	f.PC++
	return v
}

func (f *Frame) ReadI8() int8 { return int8(f.ReadU8()) }

func (f *Frame) ReadU16() uint16 {
	v := binary.BigEndian.Uint16(f.Code[f.PC : f.PC+2])
	f.PC += 2
	return v
}

func (f *Frame) ReadI16() int16 { return int16(f.ReadU16()) }

func (f *Frame) ReadI32() int32 {
	v := int32(binary.BigEndian.Uint32(f.Code[f.PC : f.PC+4]))
	f.PC += 4
	return v
}
