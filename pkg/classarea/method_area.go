package classarea

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/shunsuke-abe/govm/pkg/classfile"
	"github.com/shunsuke-abe/govm/pkg/classpath"
	"github.com/shunsuke-abe/govm/pkg/descriptor"
	"github.com/shunsuke-abe/govm/pkg/heap"
)

// Invoker runs a class's <clinit>, the one piece of method-area behavior
// that needs the bytecode interpreter. Defined here (not imported from
// pkg/vm) so pkg/classarea and pkg/vm don't form an import cycle — vm.VM
// satisfies this interface structurally.
type Invoker interface {
	InvokeClinit(class *Class) error
}

// loadCell and initCell are the once-cells spec.md section 4.2 asks for:
// a sync.Once paired with the slot its function fills in, so every caller
// — not just the one that wins the race to run Do — observes the result.
type loadCell struct {
	once  sync.Once
	class *Class
	err   error
}

type initCell struct {
	once sync.Once
	err  error
}

// MethodArea owns every loaded Class, keyed by binary name, plus the
// per-name once-cells guarding load_class and initialize (spec.md section
// 4.2: "Loading and initializing a class are each idempotent").
type MethodArea struct {
	source   classpath.Source
	heap     *heap.Heap
	interner *heap.StringInterner
	invoker  Invoker

	mu          sync.Mutex
	loadCells   map[string]*loadCell
	initCells   map[string]*initCell
	classesByName map[string]*Class // populated only after a cell resolves successfully
}

// NewMethodArea creates an empty method area backed by source for class
// bytes and h/interner for the string- and class-mirror-interning parts
// of load_string/load_class_object.
func NewMethodArea(source classpath.Source, h *heap.Heap, interner *heap.StringInterner) *MethodArea {
	return &MethodArea{
		source:        source,
		heap:          h,
		interner:      interner,
		loadCells:     make(map[string]*loadCell),
		initCells:     make(map[string]*initCell),
		classesByName: make(map[string]*Class),
	}
}

// SetInvoker wires the interpreter used to run <clinit>. Must be called
// before Initialize; Runtime wiring does this once at startup.
func (a *MethodArea) SetInvoker(inv Invoker) { a.invoker = inv }

func (a *MethodArea) loadCellFor(name string) *loadCell {
	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.loadCells[name]; ok {
		return c
	}
	c := &loadCell{}
	a.loadCells[name] = c
	return c
}

func (a *MethodArea) initCellFor(name string) *initCell {
	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.initCells[name]; ok {
		return c
	}
	c := &initCell{}
	a.initCells[name] = c
	return c
}

// LoadClass parses and lays out binaryName's class file exactly once,
// however many goroutines ask for it concurrently (spec.md's load_class).
// Loading a superclass/interfaces recurses through LoadClass too, so a
// class hierarchy is built bottom-up and each ancestor is itself loaded
// at most once.
func (a *MethodArea) LoadClass(binaryName string) (*Class, error) {
	cell := a.loadCellFor(binaryName)
	cell.once.Do(func() {
		cell.class, cell.err = a.doLoadClass(binaryName)
		if cell.err == nil {
			a.mu.Lock()
			a.classesByName[binaryName] = cell.class
			a.mu.Unlock()
		}
	})
	return cell.class, cell.err
}

// Lookup returns an already-loaded class without triggering a load, for
// callers that only ever touch classes the interpreter has already caused
// to load.
func (a *MethodArea) Lookup(binaryName string) (*Class, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.classesByName[binaryName]
	return c, ok
}

// LoadSynthetic installs a hand-built *classfile.ClassFile under binaryName
// through the same once-cell/layout/const-pool machinery as an ordinary
// class-path load, for classes assembled in memory rather than read from a
// Source — namely the runtime bootstrap shim (spec.md section 9).
func (a *MethodArea) LoadSynthetic(binaryName string, cf *classfile.ClassFile) (*Class, error) {
	cell := a.loadCellFor(binaryName)
	cell.once.Do(func() {
		cell.class, cell.err = a.buildClass(binaryName, cf)
		if cell.err == nil {
			a.mu.Lock()
			a.classesByName[binaryName] = cell.class
			a.mu.Unlock()
		}
	})
	return cell.class, cell.err
}

func (a *MethodArea) doLoadClass(binaryName string) (*Class, error) {
	data, err := a.source.Find(binaryName)
	if err != nil {
		return nil, fmt.Errorf("classarea: loading %s: %w", binaryName, err)
	}
	cf, err := classfile.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("classarea: parsing %s: %w", binaryName, err)
	}
	return a.buildClass(binaryName, cf)
}

func (a *MethodArea) buildClass(binaryName string, cf *classfile.ClassFile) (*Class, error) {
	var super *Class
	if cf.SuperClass != 0 {
		superName, err := classfile.GetClassName(cf.ConstantPool, cf.SuperClass)
		if err != nil {
			return nil, fmt.Errorf("classarea: resolving superclass of %s: %w", binaryName, err)
		}
		super, err = a.LoadClass(superName)
		if err != nil {
			return nil, fmt.Errorf("classarea: loading superclass %s of %s: %w", superName, binaryName, err)
		}
	}

	interfaces := make([]*Class, 0, len(cf.Interfaces))
	for _, idx := range cf.Interfaces {
		ifaceName, err := classfile.GetClassName(cf.ConstantPool, idx)
		if err != nil {
			return nil, fmt.Errorf("classarea: resolving interface of %s: %w", binaryName, err)
		}
		iface, err := a.LoadClass(ifaceName)
		if err != nil {
			return nil, fmt.Errorf("classarea: loading interface %s of %s: %w", ifaceName, binaryName, err)
		}
		interfaces = append(interfaces, iface)
	}

	instanceBase := 0
	var inheritedRefOffsets []int
	if super != nil {
		instanceBase = super.instanceWidth
		inheritedRefOffsets = append(inheritedRefOffsets, super.instanceRefOffsets...)
	}
	instLayout, err := layoutFields(cf.Fields, false, instanceBase)
	if err != nil {
		return nil, fmt.Errorf("classarea: laying out %s: %w", binaryName, err)
	}
	staticLayout, err := layoutFields(cf.Fields, true, 0)
	if err != nil {
		return nil, fmt.Errorf("classarea: laying out statics of %s: %w", binaryName, err)
	}

	ownFields := make(map[string]*Field, len(instLayout.offsets))
	for i := range cf.Fields {
		f := &cf.Fields[i]
		if f.IsStatic() {
			continue
		}
		d, err := descriptorOf(f)
		if err != nil {
			return nil, err
		}
		ownFields[f.Name] = &Field{Name: f.Name, Descriptor: d, Offset: instLayout.offsets[f.Name]}
	}
	ownStatics := make(map[string]*Field, len(staticLayout.offsets))
	for i := range cf.Fields {
		f := &cf.Fields[i]
		if !f.IsStatic() {
			continue
		}
		d, err := descriptorOf(f)
		if err != nil {
			return nil, err
		}
		ownStatics[f.Name] = &Field{Name: f.Name, Descriptor: d, Offset: staticLayout.offsets[f.Name], Static: true}
	}

	class := &Class{
		name:        binaryName,
		accessFlags: cf.AccessFlags,
		super:       super,
		interfaces:  interfaces,
		cf:          cf,
		ownFields:   ownFields,
		ownStatics:  ownStatics,
		methods:     make(map[string]*Method, len(cf.Methods)),

		instanceWidth:      instLayout.width,
		staticWidth:        staticLayout.width,
		instanceRefOffsets: append(inheritedRefOffsets, instLayout.refOffsets...),
		staticRefOffsets:   staticLayout.refOffsets,
	}

	pool := newConstPool(cf.ConstantPool, a)
	pool.setOwner(class)
	class.constPool = pool

	for i := range cf.Methods {
		m := &cf.Methods[i]
		md, err := methodDescriptorOf(m)
		if err != nil {
			return nil, err
		}
		class.methods[signature(m.Name, m.Descriptor)] = &Method{
			Name:        m.Name,
			Descriptor:  md,
			AccessFlags: m.AccessFlags,
			Code:        m.Code,
			Owner:       class,
		}
	}

	return class, nil
}

// Initialize runs class's <clinit>, if it declares one, exactly once
// (spec.md's initialize). A class with no <clinit> initializes trivially.
// Ancestors are initialized first, matching the JVM's top-down
// initialization order.
func (a *MethodArea) Initialize(class *Class) error {
	if class.super != nil {
		if err := a.Initialize(class.super); err != nil {
			return err
		}
	}
	cell := a.initCellFor(class.name)
	cell.once.Do(func() {
		if _, ok := class.methods[signature("<clinit>", "()V")]; !ok || a.invoker == nil {
			return
		}
		cell.err = a.invoker.InvokeClinit(class)
	})
	return cell.err
}

// StringClass loads (if needed) and returns java.lang.String, the class
// the interner uses to build interned String objects.
func (a *MethodArea) StringClass() (*Class, error) {
	return a.LoadClass("java/lang/String")
}

// ClassClass loads (if needed) and returns java.lang.Class, used for
// Class mirror objects.
func (a *MethodArea) ClassClass() (*Class, error) {
	return a.LoadClass("java/lang/Class")
}

func descriptorOf(f *classfile.FieldInfo) (*descriptor.Descriptor, error) {
	d, err := descriptor.Parse(f.Descriptor)
	if err != nil {
		return nil, fmt.Errorf("classarea: field %s: %w", f.Name, err)
	}
	return d, nil
}

func methodDescriptorOf(m *classfile.MethodInfo) (*descriptor.MethodDescriptor, error) {
	d, err := descriptor.ParseMethod(m.Descriptor)
	if err != nil {
		return nil, fmt.Errorf("classarea: method %s: %w", m.Name, err)
	}
	return d, nil
}
