// Package native implements the native-method registry spec.md section 1
// names as an out-of-scope collaborator, plus the minimal java.lang/java.io
// intrinsic bundle needed to run the bootstrap shim and the end-to-end
// scenarios in spec.md section 8 (robusta native/java_lang.rs,
// native/system.rs supplement the distilled spec per SPEC_FULL.md section 7).
package native

import (
	"io"
	"sync"

	"github.com/shunsuke-abe/govm/pkg/heap"
	"github.com/shunsuke-abe/govm/pkg/vm"
)

// Registry is a flat table of class/method/descriptor keys to Go
// implementations, a map-of-methods rather than robusta's plugin-list
// (stateless(Method{...}, fn)) — same idea, Go's more natural shape for it.
type Registry struct {
	v     *vm.VM
	table map[string]vm.NativeFunc

	mu      sync.Mutex
	threads map[*vm.Thread]*javaThread
	streams map[heap.Reference]io.Writer
}

// javaThread tracks the heap object backing a started java.lang.Thread
// and the WaitGroup join() blocks on.
type javaThread struct {
	ref  heap.Reference
	done *sync.WaitGroup
}

// NewRegistry builds the registry and binds it to v, wiring v.Natives and
// v.Exceptions so the interpreter can resolve native calls and synthesize
// Java exceptions through the same object (runtime.New calls this
// once at startup, spec.md section 9).
func NewRegistry(v *vm.VM) *Registry {
	r := &Registry{
		v:       v,
		table:   make(map[string]vm.NativeFunc),
		threads: make(map[*vm.Thread]*javaThread),
		streams: make(map[heap.Reference]io.Writer),
	}
	r.registerObject()
	r.registerSystem()
	r.registerThread()
	r.registerClass()
	r.registerString()
	r.registerThrowable()
	v.Natives = r
	v.Exceptions = r
	return r
}

func key(class, method, descriptor string) string {
	return class + "." + method + descriptor
}

func (r *Registry) register(class, method, descriptor string, fn vm.NativeFunc) {
	r.table[key(class, method, descriptor)] = fn
}

// Lookup implements vm.NativeRegistry.
func (r *Registry) Lookup(className, methodName, descriptor string) (vm.NativeFunc, bool) {
	fn, ok := r.table[key(className, methodName, descriptor)]
	return fn, ok
}

func noOp(_ *vm.VM, _ *vm.Thread, _ []vm.Value) (vm.Value, error) {
	return vm.Value{}, nil
}
