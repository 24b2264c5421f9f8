package classarea

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/shunsuke-abe/govm/pkg/classfile"
	"github.com/shunsuke-abe/govm/pkg/heap"
)

// mapSource is an in-memory classpath.Source for tests.
type mapSource struct {
	classes map[string][]byte
}

func (m mapSource) Find(name string) ([]byte, error) {
	data, ok := m.classes[name]
	if !ok {
		return nil, errNotFound(name)
	}
	return data, nil
}

type errNotFound string

func (e errNotFound) Error() string { return "class not found: " + string(e) }

// builder assembles a minimal class file with one field and no methods,
// for method-area tests.
type builder struct {
	pool [][]byte
}

func (b *builder) addUtf8(s string) uint16 {
	var e bytes.Buffer
	e.WriteByte(classfile.TagUtf8)
	binary.Write(&e, binary.BigEndian, uint16(len(s)))
	e.WriteString(s)
	b.pool = append(b.pool, e.Bytes())
	return uint16(len(b.pool))
}

func (b *builder) addClass(nameIdx uint16) uint16 {
	var e bytes.Buffer
	e.WriteByte(classfile.TagClass)
	binary.Write(&e, binary.BigEndian, nameIdx)
	b.pool = append(b.pool, e.Bytes())
	return uint16(len(b.pool))
}

// build emits a class with the given super index (0 for none), one
// instance field, and no methods.
func (b *builder) build(thisClass, superClass uint16, fieldName, fieldDesc string) []byte {
	nameIdx := b.addUtf8(fieldName)
	descIdx := b.addUtf8(fieldDesc)

	var out bytes.Buffer
	binary.Write(&out, binary.BigEndian, uint32(0xCAFEBABE))
	binary.Write(&out, binary.BigEndian, uint16(0))
	binary.Write(&out, binary.BigEndian, uint16(52))
	binary.Write(&out, binary.BigEndian, uint16(len(b.pool)+1))
	for _, e := range b.pool {
		out.Write(e)
	}
	binary.Write(&out, binary.BigEndian, uint16(classfile.AccPublic|classfile.AccSuper))
	binary.Write(&out, binary.BigEndian, thisClass)
	binary.Write(&out, binary.BigEndian, superClass)
	binary.Write(&out, binary.BigEndian, uint16(0)) // interfaces
	binary.Write(&out, binary.BigEndian, uint16(1)) // fields_count
	binary.Write(&out, binary.BigEndian, uint16(0)) // field access flags
	binary.Write(&out, binary.BigEndian, nameIdx)
	binary.Write(&out, binary.BigEndian, descIdx)
	binary.Write(&out, binary.BigEndian, uint16(0)) // field attributes_count
	binary.Write(&out, binary.BigEndian, uint16(0)) // methods_count
	binary.Write(&out, binary.BigEndian, uint16(0)) // class attributes_count
	return out.Bytes()
}

func buildObjectClass() []byte {
	b := &builder{}
	objName := b.addUtf8("java/lang/Object")
	objClass := b.addClass(objName)
	// super_class = 0 (no superclass), one field "id" of type int.
	return b.build(objClass, 0, "id", "I")
}

func buildSubClass(superName string) []byte {
	b := &builder{}
	superNameIdx := b.addUtf8(superName)
	superClass := b.addClass(superNameIdx)
	thisNameIdx := b.addUtf8("Sub")
	thisClass := b.addClass(thisNameIdx)
	return b.build(thisClass, superClass, "name", "Ljava/lang/String;")
}

func newTestArea(t *testing.T) *MethodArea {
	t.Helper()
	source := mapSource{classes: map[string][]byte{
		"java/lang/Object": buildObjectClass(),
		"Sub":              buildSubClass("java/lang/Object"),
	}}
	h := heap.NewHeap(1 << 16)
	return NewMethodArea(source, h, heap.NewStringInterner(h))
}

func TestLoadClassResolvesSuperclass(t *testing.T) {
	area := newTestArea(t)
	sub, err := area.LoadClass("Sub")
	if err != nil {
		t.Fatalf("LoadClass: %v", err)
	}
	if sub.Super() == nil || sub.Super().Name() != "java/lang/Object" {
		t.Fatalf("Sub.Super() = %v, want java/lang/Object", sub.Super())
	}
	// Object has one int field (width 4, padded to 4); Sub's own field
	// (a reference, width 4) must be laid out starting after it.
	if sub.InstanceWidth() != 8 {
		t.Errorf("Sub.InstanceWidth() = %d, want 8 (4 inherited + 4 own)", sub.InstanceWidth())
	}
	off, ok := sub.FieldOffset("name")
	if !ok || off != 4 {
		t.Errorf("FieldOffset(name) = (%d, %v), want (4, true)", off, ok)
	}
	off, ok = sub.FieldOffset("id")
	if !ok || off != 0 {
		t.Errorf("FieldOffset(id) = (%d, %v), want (0, true), inherited from Object", off, ok)
	}
}

func TestLoadClassIsIdempotent(t *testing.T) {
	area := newTestArea(t)
	c1, err := area.LoadClass("Sub")
	if err != nil {
		t.Fatalf("LoadClass: %v", err)
	}
	c2, err := area.LoadClass("Sub")
	if err != nil {
		t.Fatalf("LoadClass (2nd): %v", err)
	}
	if c1 != c2 {
		t.Error("LoadClass returned distinct Class values for the same name")
	}
}

func TestInstanceRefOffsetsIncludeInherited(t *testing.T) {
	area := newTestArea(t)
	sub, err := area.LoadClass("Sub")
	if err != nil {
		t.Fatalf("LoadClass: %v", err)
	}
	offs := sub.InstanceRefOffsets()
	if len(offs) != 1 || offs[0] != 4 {
		t.Errorf("InstanceRefOffsets() = %v, want [4]", offs)
	}
}

func TestLoadClassMissingSource(t *testing.T) {
	area := newTestArea(t)
	if _, err := area.LoadClass("DoesNotExist"); err == nil {
		t.Error("expected an error loading a class absent from the class-path")
	}
}
