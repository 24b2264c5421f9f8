package vm

import (
	"fmt"

	"github.com/shunsuke-abe/govm/pkg/heap"
)

// The interpreter raises these distinct Go error types for the faults
// spec.md section 7 lists (NullPointerError, ArrayIndexOutOfBoundsError,
// etc). runFrame converts each into the matching Java exception object via
// the ExceptionFactory and unwinds it exactly like a user athrow — see
// toJavaRef in invoke.go.

type NullPointerError struct{ Op string }

func (e *NullPointerError) Error() string { return fmt.Sprintf("vm: null pointer in %s", e.Op) }
func (e *NullPointerError) javaClass() string { return "java/lang/NullPointerException" }

type ArrayIndexOutOfBoundsError struct {
	Index, Length int
}

func (e *ArrayIndexOutOfBoundsError) Error() string {
	return fmt.Sprintf("vm: array index %d out of bounds for length %d", e.Index, e.Length)
}
func (e *ArrayIndexOutOfBoundsError) javaClass() string {
	return "java/lang/ArrayIndexOutOfBoundsException"
}

type ArithmeticError struct{ Reason string }

func (e *ArithmeticError) Error() string     { return "vm: " + e.Reason }
func (e *ArithmeticError) javaClass() string { return "java/lang/ArithmeticException" }

type ClassCastError struct{ From, To string }

func (e *ClassCastError) Error() string {
	return fmt.Sprintf("vm: cannot cast %s to %s", e.From, e.To)
}
func (e *ClassCastError) javaClass() string { return "java/lang/ClassCastException" }

type NegativeArraySizeError struct{ Length int32 }

func (e *NegativeArraySizeError) Error() string {
	return fmt.Sprintf("vm: negative array size %d", e.Length)
}
func (e *NegativeArraySizeError) javaClass() string {
	return "java/lang/NegativeArraySizeException"
}

type StackOverflowError struct{}

func (e *StackOverflowError) Error() string     { return "vm: stack overflow" }
func (e *StackOverflowError) javaClass() string { return "java/lang/StackOverflowError" }

type OutOfMemoryError struct{ Reason string }

func (e *OutOfMemoryError) Error() string     { return "vm: out of memory: " + e.Reason }
func (e *OutOfMemoryError) javaClass() string { return "java/lang/OutOfMemoryError" }

type IllegalMonitorStateError struct{ Reason string }

func (e *IllegalMonitorStateError) Error() string { return "vm: " + e.Reason }
func (e *IllegalMonitorStateError) javaClass() string {
	return "java/lang/IllegalMonitorStateException"
}

// javaFault is satisfied by every error type above: the interpreter asks
// for the binary name of the Java exception class to synthesize.
type javaFault interface {
	error
	javaClass() string
}

// JavaThrow wraps a live heap exception object (from a user athrow, or
// synthesized by the interpreter from a javaFault) as it propagates
// through Go's own call stack during unwinding.
type JavaThrow struct {
	Ref heap.Reference
}

func (t *JavaThrow) Error() string { return "vm: uncaught Java exception" }
