package classarea

import (
	"fmt"
	"sync"

	"github.com/shunsuke-abe/govm/pkg/classfile"
	"github.com/shunsuke-abe/govm/pkg/heap"
)

// ConstPool wraps a class's raw constant pool with memoized symbolic
// resolution: spec.md section 4.2's "once-cell" per constant-pool entry,
// realized here as a mutex-guarded cache rather than one sync.Once per
// index, since resolving the same entry twice concurrently is merely
// redundant work (LoadClass/FindMethod are themselves idempotent), not a
// correctness hazard — unlike load_class/initialize, where running a
// class initializer twice would be observable.
type ConstPool struct {
	raw   []classfile.ConstantPoolEntry
	area  *MethodArea
	owner *Class

	mu          sync.Mutex
	classCache  map[uint16]*Class
	methodCache map[uint16]resolvedMethod
	fieldCache  map[uint16]resolvedField
	stringCache map[uint16]heap.Reference
}

type resolvedMethod struct {
	class  *Class
	method *Method
}

type resolvedField struct {
	class *Class
	field *Field
}

func newConstPool(raw []classfile.ConstantPoolEntry, area *MethodArea) *ConstPool {
	return &ConstPool{
		raw:         raw,
		area:        area,
		classCache:  make(map[uint16]*Class),
		methodCache: make(map[uint16]resolvedMethod),
		fieldCache:  make(map[uint16]resolvedField),
		stringCache: make(map[uint16]heap.Reference),
	}
}

// Raw returns the unresolved constant pool entry at index, for the
// handful of constant kinds (Integer/Float/Long/Double) ldc/ldc2_w can
// push directly without the class/method/string resolution machinery
// above.
func (p *ConstPool) Raw(index uint16) classfile.ConstantPoolEntry {
	if int(index) >= len(p.raw) {
		return nil
	}
	return p.raw[index]
}

// setOwner is called once the owning Class exists, since ConstPool is
// built before its Class (the pool doesn't need the owner to resolve
// anything it's asked to resolve — it's kept for diagnostics only).
func (p *ConstPool) setOwner(c *Class) { p.owner = c }

// ResolveClass resolves a CONSTANT_Class entry to a loaded Class,
// triggering load_class if necessary (spec.md's resolve_class).
func (p *ConstPool) ResolveClass(index uint16) (*Class, error) {
	p.mu.Lock()
	if c, ok := p.classCache[index]; ok {
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	name, err := classfile.GetClassName(p.raw, index)
	if err != nil {
		return nil, fmt.Errorf("classarea: resolving class at pool index %d: %w", index, err)
	}
	cls, err := p.area.LoadClass(name)
	if err != nil {
		return nil, fmt.Errorf("classarea: resolving class %s: %w", name, err)
	}

	p.mu.Lock()
	p.classCache[index] = cls
	p.mu.Unlock()
	return cls, nil
}

// ResolveString resolves a CONSTANT_String entry to an interned
// java.lang.String reference (spec.md's load_string).
func (p *ConstPool) ResolveString(index uint16) (heap.Reference, error) {
	p.mu.Lock()
	if r, ok := p.stringCache[index]; ok {
		p.mu.Unlock()
		return r, nil
	}
	p.mu.Unlock()

	s, err := classfile.GetString(p.raw, index)
	if err != nil {
		return 0, fmt.Errorf("classarea: resolving string at pool index %d: %w", index, err)
	}
	stringClass, err := p.area.StringClass()
	if err != nil {
		return 0, fmt.Errorf("classarea: loading java.lang.String: %w", err)
	}
	ref, err := p.area.interner.InsertStringConst(s, stringClass)
	if err != nil {
		return 0, fmt.Errorf("classarea: interning string constant: %w", err)
	}

	p.mu.Lock()
	p.stringCache[index] = ref
	p.mu.Unlock()
	return ref, nil
}

// ResolveMethod resolves a CONSTANT_Methodref or CONSTANT_InterfaceMethodref
// entry to the declaring class and the Method found by walking its
// hierarchy (spec.md's resolve_method).
func (p *ConstPool) ResolveMethod(index uint16) (*Class, *Method, error) {
	p.mu.Lock()
	if r, ok := p.methodCache[index]; ok {
		p.mu.Unlock()
		return r.class, r.method, nil
	}
	p.mu.Unlock()

	if int(index) >= len(p.raw) || p.raw[index] == nil {
		return nil, nil, fmt.Errorf("classarea: invalid constant pool index %d", index)
	}

	var ref *classfile.MethodRefInfo
	var err error
	switch p.raw[index].(type) {
	case *classfile.ConstantMethodref:
		ref, err = classfile.ResolveMethodref(p.raw, index)
	case *classfile.ConstantInterfaceMethodref:
		ref, err = classfile.ResolveInterfaceMethodref(p.raw, index)
	default:
		return nil, nil, fmt.Errorf("classarea: pool index %d is not a method reference", index)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("classarea: resolving methodref at index %d: %w", index, err)
	}

	cls, err := p.area.LoadClass(ref.ClassName)
	if err != nil {
		return nil, nil, fmt.Errorf("classarea: resolving method %s.%s: %w", ref.ClassName, ref.MethodName, err)
	}
	method, ok := cls.FindMethod(ref.MethodName, ref.Descriptor)
	if !ok {
		return nil, nil, fmt.Errorf("classarea: no such method %s.%s%s", ref.ClassName, ref.MethodName, ref.Descriptor)
	}

	p.mu.Lock()
	p.methodCache[index] = resolvedMethod{class: cls, method: method}
	p.mu.Unlock()
	return cls, method, nil
}

// ResolveField resolves a CONSTANT_Fieldref entry to the declaring class
// and the Field found by walking its hierarchy (spec.md's resolve_field).
func (p *ConstPool) ResolveField(index uint16) (*Class, *Field, error) {
	p.mu.Lock()
	if r, ok := p.fieldCache[index]; ok {
		p.mu.Unlock()
		return r.class, r.field, nil
	}
	p.mu.Unlock()

	ref, err := classfile.ResolveFieldref(p.raw, index)
	if err != nil {
		return nil, nil, fmt.Errorf("classarea: resolving fieldref at index %d: %w", index, err)
	}
	cls, err := p.area.LoadClass(ref.ClassName)
	if err != nil {
		return nil, nil, fmt.Errorf("classarea: resolving field %s.%s: %w", ref.ClassName, ref.FieldName, err)
	}

	declCls, field, ok := cls.FindField(ref.FieldName, false)
	if !ok {
		declCls, field, ok = cls.FindField(ref.FieldName, true)
	}
	if !ok {
		return nil, nil, fmt.Errorf("classarea: no such field %s.%s", ref.ClassName, ref.FieldName)
	}

	p.mu.Lock()
	p.fieldCache[index] = resolvedField{class: declCls, field: field}
	p.mu.Unlock()
	return declCls, field, nil
}
