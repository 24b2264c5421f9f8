package vm

import (
	"github.com/shunsuke-abe/govm/pkg/classarea"
	"github.com/shunsuke-abe/govm/pkg/heap"
)

// PauseAllAndRoots implements heap.RootProvider: it drives every
// registered thread to its safepoint (spec.md section 4.4 step 1) and
// then walks each paused thread's frame stack collecting every live
// reference-typed operand-stack slot, local variable, and held-monitor
// object as an application GC root (step 2).
func (vm *VM) PauseAllAndRoots() []heap.Reference {
	vm.mu.Lock()
	threads := make([]*Thread, 0, len(vm.threads))
	for _, t := range vm.threads {
		threads = append(threads, t)
	}
	vm.paused = threads
	vm.mu.Unlock()

	for _, t := range threads {
		t.Safe.StartGC()
	}

	var roots []heap.Reference
	for _, t := range threads {
		for _, f := range t.frames {
			for i := 0; i < f.SP; i++ {
				if v := f.OperandStack[i]; v.Kind == KRef && !v.IsNull() {
					roots = append(roots, v.Ref)
				}
			}
			for _, v := range f.LocalVars {
				if v.Kind == KRef && !v.IsNull() {
					roots = append(roots, v.Ref)
				}
			}
			if f.HasMonitor && !f.MonitorOwner.IsNull() {
				roots = append(roots, f.MonitorOwner.Ref)
			}
		}
	}
	return roots
}

// Resume implements heap.RootProvider: releases every thread paused by
// the matching PauseAllAndRoots call.
func (vm *VM) Resume() {
	vm.mu.Lock()
	threads := vm.paused
	vm.paused = nil
	vm.mu.Unlock()
	for _, t := range threads {
		t.Safe.EndGC()
	}
}

// InvokeClinit implements classarea.Invoker: runs class's <clinit> on a
// dedicated, short-lived thread. Class initialization can itself touch
// the heap and trigger further class loading, so it needs a full thread
// context, but it never needs to be resumed after — it's not a Java
// thread any bytecode can join or interrupt.
func (vm *VM) InvokeClinit(class *classarea.Class) error {
	method, ok := class.FindMethod("<clinit>", "()V")
	if !ok {
		return nil
	}
	th := vm.NewThread("<clinit>:" + class.Name())
	defer vm.RetireThread(th)
	_, err := vm.invokeMethod(th, method, nil)
	return err
}
