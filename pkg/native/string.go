package native

import "github.com/shunsuke-abe/govm/pkg/vm"

// registerString wires java.lang.String.intern, the one String native
// robusta's java_lang_plugins() bundles (string_intern): decode the
// receiver's backing char[], then hand it back through the same content
// interner the constant pool's ldc path uses, so two equal literals and an
// interned runtime string end up as the same reference.
func (r *Registry) registerString() {
	const class = "java/lang/String"

	r.register(class, "intern", "()Ljava/lang/String;", func(v *vm.VM, th *vm.Thread, args []vm.Value) (vm.Value, error) {
		stringClass, err := v.Area.StringClass()
		if err != nil {
			return vm.Value{}, err
		}
		s, err := v.Interner.GetString(args[0].Ref, stringClass)
		if err != nil {
			return vm.Value{}, err
		}
		ref, err := v.Interner.InsertStringConst(s, stringClass)
		if err != nil {
			return vm.Value{}, err
		}
		return vm.RefVal(ref), nil
	})
}
