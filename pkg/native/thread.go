package native

import (
	"fmt"
	"sync"
	"time"

	"github.com/shunsuke-abe/govm/pkg/heap"
	"github.com/shunsuke-abe/govm/pkg/vm"
)

// registerThread wires java.lang.Thread.start0/join/sleep/currentThread:
// enough to exercise the monitor/thread machinery end-to-end (SPEC_FULL.md
// section 7, robusta native/java_lang.rs's Thread plugins). Each started
// Java thread gets its own govm vm.Thread, registered against the heap
// object backing it so currentThread()/join() can find their way back.
func (r *Registry) registerThread() {
	const class = "java/lang/Thread"

	r.register(class, "registerNatives", "()V", noOp)

	r.register(class, "start0", "()V", func(v *vm.VM, th *vm.Thread, args []vm.Value) (vm.Value, error) {
		receiver := args[0].Ref
		runtime, err := v.RuntimeClassOf(receiver)
		if err != nil {
			return vm.Value{}, err
		}
		method, ok := runtime.FindMethod("run", "()V")
		if !ok {
			return vm.Value{}, nil // nothing to run
		}

		var wg sync.WaitGroup
		wg.Add(1)

		go func() {
			defer wg.Done()
			newTh := v.NewThread("Thread-" + runtime.Name())
			defer v.RetireThread(newTh)
			r.mu.Lock()
			r.threads[newTh] = &javaThread{ref: receiver, done: &wg}
			r.mu.Unlock()
			if _, err := v.InvokeMethod(newTh, method, []vm.Value{vm.RefVal(receiver)}); err != nil {
				fmt.Fprintf(v.Stdout, "Exception in thread %q: %v\n", newTh.Name, err)
			}
		}()

		return vm.Value{}, nil
	})

	r.register(class, "join", "()V", func(v *vm.VM, th *vm.Thread, args []vm.Value) (vm.Value, error) {
		r.waitForJoin(args[0].Ref)
		return vm.Value{}, nil
	})
	r.register(class, "join", "(J)V", func(v *vm.VM, th *vm.Thread, args []vm.Value) (vm.Value, error) {
		r.waitForJoin(args[0].Ref)
		return vm.Value{}, nil
	})

	r.register(class, "currentThread", "()Ljava/lang/Thread;", func(v *vm.VM, th *vm.Thread, args []vm.Value) (vm.Value, error) {
		r.mu.Lock()
		jt, ok := r.threads[th]
		r.mu.Unlock()
		if !ok {
			return vm.NullVal(), nil
		}
		return vm.RefVal(jt.ref), nil
	})

	r.register(class, "sleep", "(J)V", func(v *vm.VM, th *vm.Thread, args []vm.Value) (vm.Value, error) {
		th.Safe.Enter()
		time.Sleep(time.Duration(args[0].L) * time.Millisecond)
		th.Safe.Exit()
		return vm.Value{}, nil
	})
}

// waitForJoin blocks until the Java thread backed by ref (if any) has
// finished; joining a thread that was never start0'd (or already retired)
// is a no-op, matching Thread.join on a thread that never started.
func (r *Registry) waitForJoin(ref heap.Reference) {
	r.mu.Lock()
	var wg *sync.WaitGroup
	for _, jt := range r.threads {
		if jt.ref == ref {
			wg = jt.done
			break
		}
	}
	r.mu.Unlock()
	if wg != nil {
		wg.Wait()
	}
}
