// Package classarea implements the method area: parsed classes, their
// resolved field/method layout, and the once-cell symbolic resolution of
// constant-pool entries described in spec.md sections 3 and 4.2.
package classarea

import (
	"github.com/shunsuke-abe/govm/pkg/classfile"
	"github.com/shunsuke-abe/govm/pkg/descriptor"
)

// Field is a resolved instance or static field: a name, its descriptor,
// and the absolute byte offset layoutFields assigned it.
type Field struct {
	Name       string
	Descriptor *descriptor.Descriptor
	Offset     int
	Static     bool
}

// Method is a resolved method: its descriptor and owning class, plus the
// parsed Code attribute (nil for native/abstract methods).
type Method struct {
	Name        string
	Descriptor  *descriptor.MethodDescriptor
	AccessFlags uint16
	Code        *classfile.CodeAttribute
	Owner       *Class
}

func (m *Method) IsStatic() bool       { return m.AccessFlags&classfile.AccStatic != 0 }
func (m *Method) IsNative() bool       { return m.AccessFlags&classfile.AccNative != 0 }
func (m *Method) IsAbstract() bool     { return m.AccessFlags&classfile.AccAbstract != 0 }
func (m *Method) IsSynchronized() bool { return m.AccessFlags&classfile.AccSynchronized != 0 }

// signature is the method lookup key: name plus descriptor, since Java
// allows overloading by parameter types.
func signature(name, desc string) string { return name + "#" + desc }

// Class is a fully loaded, laid-out class: spec.md section 3's Class
// type. Satisfies heap.ClassInfo structurally so pkg/heap never imports
// pkg/classarea.
type Class struct {
	name        string
	accessFlags uint16
	super       *Class // nil only for java/lang/Object
	interfaces  []*Class
	cf          *classfile.ClassFile
	constPool   *ConstPool

	ownFields    map[string]*Field // this class's own fields (not ancestors'), by name
	ownStatics   map[string]*Field
	methods      map[string]*Method // own methods only; lookup walks the chain

	instanceWidth      int
	staticWidth        int
	instanceRefOffsets []int
	staticRefOffsets   []int
}

func (c *Class) Name() string            { return c.name }
func (c *Class) InstanceWidth() int      { return c.instanceWidth }
func (c *Class) StaticWidth() int        { return c.staticWidth }
func (c *Class) InstanceRefOffsets() []int { return c.instanceRefOffsets }
func (c *Class) StaticRefOffsets() []int   { return c.staticRefOffsets }
func (c *Class) Super() *Class           { return c.super }
func (c *Class) ConstPool() *ConstPool   { return c.constPool }
func (c *Class) IsInterface() bool       { return c.accessFlags&classfile.AccInterface != 0 }
func (c *Class) SourceFile() string      { return c.cf.SourceFile }

// FieldOffset locates a named instance field, searching this class then
// its ancestors — the method heap.ClassInfo needs to place String.value
// and Class.name without walking the hierarchy itself.
func (c *Class) FieldOffset(name string) (int, bool) {
	for cls := c; cls != nil; cls = cls.super {
		if f, ok := cls.ownFields[name]; ok {
			return f.Offset, true
		}
	}
	return 0, false
}

// FindField resolves an instance or static field by name, searching this
// class then its ancestors (spec.md's resolve_field).
func (c *Class) FindField(name string, static bool) (*Class, *Field, bool) {
	for cls := c; cls != nil; cls = cls.super {
		set := cls.ownFields
		if static {
			set = cls.ownStatics
		}
		if f, ok := set[name]; ok {
			return cls, f, true
		}
	}
	return nil, nil, false
}

// FindMethod resolves a method by name+descriptor, searching this class,
// its ancestors, and (if nothing concrete is found) its interfaces —
// spec.md's resolve_method, covering both invokevirtual/invokespecial
// (class chain) and invokeinterface (default methods) dispatch.
func (c *Class) FindMethod(name, desc string) (*Method, bool) {
	sig := signature(name, desc)
	for cls := c; cls != nil; cls = cls.super {
		if m, ok := cls.methods[sig]; ok {
			return m, true
		}
	}
	if m, ok := c.findInterfaceMethod(sig, make(map[*Class]bool)); ok {
		return m, true
	}
	return nil, false
}

func (c *Class) findInterfaceMethod(sig string, seen map[*Class]bool) (*Method, bool) {
	for cls := c; cls != nil; cls = cls.super {
		for _, iface := range cls.interfaces {
			if seen[iface] {
				continue
			}
			seen[iface] = true
			if m, ok := iface.methods[sig]; ok && !m.IsAbstract() {
				return m, true
			}
			if m, ok := iface.findInterfaceMethod(sig, seen); ok {
				return m, true
			}
		}
	}
	return nil, false
}

// IsSubclassOf reports whether c is the same class as, or a descendant
// of, other — used for instanceof/checkcast and catch-type matching.
func (c *Class) IsSubclassOf(other *Class) bool {
	for cls := c; cls != nil; cls = cls.super {
		if cls == other {
			return true
		}
		for _, iface := range cls.interfaces {
			if iface.IsSubclassOf(other) {
				return true
			}
		}
	}
	return false
}
