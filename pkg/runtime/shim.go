package runtime

import (
	"github.com/shunsuke-abe/govm/pkg/classfile"
)

// shimClassName is the synthetic class bootstrap installs through
// MethodArea.LoadSynthetic — never resolvable from any real class-path
// entry, so it can't collide with a user or library class.
const shimClassName = "<govm-bootstrap>"

// buildShim assembles the synthetic class-file bootstrap runs before
// main(String[]), grounded on robusta's shim.rs create_main_thread: a
// hand-built constant pool plus one static ()V method whose Code is raw
// bytecode invoking System.initializeSystemClass. robusta's version also
// constructs a sun.misc.Launcher and a ThreadGroup/Thread pair for
// java.lang.Thread's thread-group bookkeeping; govm has no bundled
// sun.misc.Launcher and models threads without a ThreadGroup (SPEC_FULL.md
// section 7), so the shim is scoped down to the one call every JDK
// class library actually needs before main(): initializing java.lang.System's
// static state (its SecurityManager/Properties setup is out of scope, but
// System.out/System.err are pre-bound by bindStandardStreams before this
// runs, so initializeSystemClass — if the class-path even declares one — sees
// them already set).
func buildShim() *classfile.ClassFile {
	pool := make([]classfile.ConstantPoolEntry, 8)
	// pool[0] is unused; the constant pool is 1-indexed (spec.md section 4.1).
	pool[1] = &classfile.ConstantUtf8{Value: shimClassName}
	pool[2] = &classfile.ConstantClass{NameIndex: 1}
	pool[3] = &classfile.ConstantUtf8{Value: "java/lang/System"}
	pool[4] = &classfile.ConstantUtf8{Value: "initializeSystemClass"}
	pool[5] = &classfile.ConstantUtf8{Value: "()V"}
	pool[6] = &classfile.ConstantNameAndType{NameIndex: 4, DescriptorIndex: 5}
	pool[7] = &classfile.ConstantClass{NameIndex: 3}

	// Methodref pool[8]: java/lang/System.initializeSystemClass()V, split
	// across two slices since Go can't grow the literal above in place.
	pool = append(pool, &classfile.ConstantMethodref{ClassIndex: 7, NameAndTypeIndex: 6})
	const initializeSystemClassRef = 8

	code := []byte{
		0xB8, 0x00, initializeSystemClassRef, // invokestatic #8  System.initializeSystemClass()V
		0xB1, // return
	}

	return &classfile.ClassFile{
		MinorVersion: 0,
		MajorVersion: 52,
		ConstantPool: pool,
		AccessFlags:  classfile.AccSuper,
		ThisClass:    2,
		SuperClass:   0,
		Methods: []classfile.MethodInfo{
			{
				AccessFlags: classfile.AccStatic,
				Name:        "<bootstrap>",
				Descriptor:  "()V",
				Code: &classfile.CodeAttribute{
					MaxStack:  1,
					MaxLocals: 0,
					Code:      code,
				},
			},
		},
	}
}

// bootstrap runs the synthetic shim class once (best-effort: a class-path
// with no java.lang.System, or whose System declares no
// initializeSystemClass()V, simply skips it, leaving mainClassName to run
// against whatever natives it actually calls), then loads, initializes, and
// invokes mainClassName's main(String[]) the same way vm.VM.Execute always
// has.
func (rt *Runtime) bootstrap(mainClassName string, args []string) error {
	systemClass, err := rt.Area.LoadClass("java/lang/System")
	if err == nil {
		if _, declared := systemClass.FindMethod("initializeSystemClass", "()V"); !declared {
			return rt.VM.Execute(mainClassName, args)
		}
		shimClass, err := rt.Area.LoadSynthetic(shimClassName, buildShim())
		if err != nil {
			return err
		}
		method, ok := shimClass.FindMethod("<bootstrap>", "()V")
		if ok {
			th := rt.VM.NewThread("bootstrap")
			_, err := rt.VM.InvokeMethod(th, method, nil)
			rt.VM.RetireThread(th)
			if err != nil {
				return err
			}
		}
	}

	return rt.VM.Execute(mainClassName, args)
}
