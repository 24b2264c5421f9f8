package vm

import "github.com/shunsuke-abe/govm/pkg/heap"

// Kind identifies the shape of a stack/local-variable Value: the full set
// spec.md's numeric semantics require, not just int/ref/null.
type Kind int

const (
	KInt Kind = iota
	KLong
	KFloat
	KDouble
	KRef
)

// Value is a tagged operand-stack / local-variable slot. Unlike the real
// JVM's two-slot encoding for long/double, govm's stack stores one Value
// per JVM value regardless of category — Category() is still tracked
// because local-variable *indices* are category-width sensitive (a long
// argument still consumes two local slots, per spec.md's pop_args), but
// there is no need to literally split a Go int64 across two Go stack
// slots the way the bytecode's slot count implies.
type Value struct {
	Kind Kind
	I    int32
	L    int64
	F    float32
	D    float64
	Ref  heap.Reference
}

func IntVal(v int32) Value     { return Value{Kind: KInt, I: v} }
func LongVal(v int64) Value    { return Value{Kind: KLong, L: v} }
func FloatVal(v float32) Value { return Value{Kind: KFloat, F: v} }
func DoubleVal(v float64) Value { return Value{Kind: KDouble, D: v} }
func RefVal(r heap.Reference) Value { return Value{Kind: KRef, Ref: r} }
func NullVal() Value           { return Value{Kind: KRef, Ref: 0} }

// BoolVal/ByteVal etc. are represented as Int on the operand stack, per
// the JVM spec ("boolean, byte, char, short... operated on as int").
func BoolVal(b bool) Value {
	if b {
		return IntVal(1)
	}
	return IntVal(0)
}

func (v Value) IsNull() bool { return v.Kind == KRef && v.Ref == 0 }

// Category returns the local-variable-slot width: 2 for long/double, 1
// otherwise (spec.md section 3/4.5).
func (v Value) Category() int {
	if v.Kind == KLong || v.Kind == KDouble {
		return 2
	}
	return 1
}
