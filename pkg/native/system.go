package native

import (
	"fmt"
	"io"
	"time"

	"github.com/shunsuke-abe/govm/pkg/heap"
	"github.com/shunsuke-abe/govm/pkg/vm"
)

// registerSystem wires the java.lang.System intrinsics robusta's
// native/system.rs implements: arraycopy, identityHashCode, the two clock
// natives every System relies on at class-init time, and the full
// java.io.PrintStream println/print family System.out/System.err need,
// each bound to a real VM-resident receiver rather than a bare io.Writer.
func (r *Registry) registerSystem() {
	const class = "java/lang/System"

	r.register(class, "registerNatives", "()V", noOp)
	r.register(class, "initializeSystemClass", "()V", noOp)

	r.register(class, "arraycopy", "(Ljava/lang/Object;ILjava/lang/Object;II)V", func(v *vm.VM, th *vm.Thread, args []vm.Value) (vm.Value, error) {
		return vm.Value{}, arraycopy(v, args[0].Ref, int(args[1].I), args[2].Ref, int(args[3].I), int(args[4].I))
	})

	r.register(class, "identityHashCode", "(Ljava/lang/Object;)I", func(v *vm.VM, th *vm.Thread, args []vm.Value) (vm.Value, error) {
		return vm.IntVal(int32(args[0].Ref)), nil
	})

	r.register(class, "currentTimeMillis", "()J", func(v *vm.VM, th *vm.Thread, args []vm.Value) (vm.Value, error) {
		return vm.LongVal(time.Now().UnixMilli()), nil
	})

	r.register(class, "nanoTime", "()J", func(v *vm.VM, th *vm.Thread, args []vm.Value) (vm.Value, error) {
		return vm.LongVal(time.Now().UnixNano()), nil
	})

	r.registerPrintStream()
}

func arraycopy(v *vm.VM, srcRef heap.Reference, srcPos int, dstRef heap.Reference, dstPos int, length int) error {
	src, ok := v.Heap.Get(srcRef)
	if !ok || src.Kind != heap.KindArray {
		return &vm.NullPointerError{Op: "arraycopy src"}
	}
	dst, ok := v.Heap.Get(dstRef)
	if !ok || dst.Kind != heap.KindArray {
		return &vm.NullPointerError{Op: "arraycopy dst"}
	}
	if srcPos < 0 || dstPos < 0 || length < 0 ||
		srcPos+length > src.Array.Length || dstPos+length > dst.Array.Length {
		return &vm.ArrayIndexOutOfBoundsError{Index: srcPos + length, Length: src.Array.Length}
	}
	width := src.Array.Component.Width()
	copy(dst.Array.Data[dstPos*width:(dstPos+length)*width], src.Array.Data[srcPos*width:(srcPos+length)*width])
	return nil
}

// BindStream associates a java.io.PrintStream object with a Go writer, for
// the System.out/System.err objects Runtime.bindStandardStreams allocates before
// running the user's main.
func (r *Registry) BindStream(ref heap.Reference, w io.Writer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams[ref] = w
}

func (r *Registry) writerFor(v *vm.VM, ref heap.Reference) io.Writer {
	r.mu.Lock()
	w, ok := r.streams[ref]
	r.mu.Unlock()
	if !ok {
		return v.Stdout
	}
	return w
}

func (r *Registry) registerPrintStream() {
	const class = "java/io/PrintStream"

	printer := func(newline bool) vm.NativeFunc {
		return func(v *vm.VM, th *vm.Thread, args []vm.Value) (vm.Value, error) {
			w := r.writerFor(v, args[0].Ref)
			text, err := printStreamArgText(v, args)
			if err != nil {
				return vm.Value{}, err
			}
			if newline {
				fmt.Fprintln(w, text)
			} else {
				fmt.Fprint(w, text)
			}
			return vm.Value{}, nil
		}
	}

	for _, desc := range []string{"()V", "(Ljava/lang/String;)V", "(I)V", "(J)V", "(Z)V", "(C)V", "(D)V", "(F)V", "(Ljava/lang/Object;)V"} {
		r.register(class, "println", desc, printer(true))
		if desc != "()V" {
			r.register(class, "print", desc, printer(false))
		}
	}
}

// printStreamArgText renders a single print/println argument the way
// PrintStream.print's overloads do: decode a String, or format a
// primitive/Object value with fmt.
func printStreamArgText(v *vm.VM, args []vm.Value) (string, error) {
	if len(args) < 2 {
		return "", nil
	}
	arg := args[1]
	switch arg.Kind {
	case vm.KRef:
		if arg.IsNull() {
			return "null", nil
		}
		if stringClass, err := v.Area.StringClass(); err == nil {
			if class, cerr := v.RuntimeClassOf(arg.Ref); cerr == nil && class == stringClass {
				return v.Interner.GetString(arg.Ref, stringClass)
			}
		}
		return fmt.Sprintf("<object@%d>", arg.Ref), nil
	case vm.KLong:
		return fmt.Sprintf("%d", arg.L), nil
	case vm.KFloat:
		return fmt.Sprintf("%g", arg.F), nil
	case vm.KDouble:
		return fmt.Sprintf("%g", arg.D), nil
	default:
		return fmt.Sprintf("%d", arg.I), nil
	}
}
