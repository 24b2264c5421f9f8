package heap

import (
	"fmt"
	"sync"
	"unicode/utf16"

	"github.com/shunsuke-abe/govm/pkg/descriptor"
)

// StringInterner owns the content-interned java.lang.String pool
// (spec.md's insert_string_const/get_string) and the per-class-name
// java.lang.Class mirror pool (insert_class_object), both "once-maps
// keyed by content/class-name" per spec.md section 4.2.
type StringInterner struct {
	heap *Heap

	mu      sync.Mutex
	strings map[string]Reference
	classes map[string]Reference
}

// NewStringInterner creates an empty interner backed by h.
func NewStringInterner(h *Heap) *StringInterner {
	return &StringInterner{
		heap:    h,
		strings: make(map[string]Reference),
		classes: make(map[string]Reference),
	}
}

// InsertStringConst interns a Go string as a java.lang.String object whose
// `value` field is a char[] holding its UTF-16 code units. Returns the
// existing reference if this content was already interned.
func (si *StringInterner) InsertStringConst(s string, stringClass ClassInfo) (Reference, error) {
	si.mu.Lock()
	defer si.mu.Unlock()
	if ref, ok := si.strings[s]; ok {
		return ref, nil
	}

	units := utf16.Encode([]rune(s))
	arrayRef, err := si.heap.NewArray(Component{Kind: descriptor.Char}, len(units))
	if err != nil {
		return 0, fmt.Errorf("heap: allocating char[] for string constant: %w", err)
	}
	arrVal, _ := si.heap.Get(arrayRef)
	for i, unit := range units {
		WriteInt(arrVal.Array.Data, i*2, descriptor.Char, int32(unit))
	}

	objRef, err := si.heap.NewObject(stringClass)
	if err != nil {
		return 0, fmt.Errorf("heap: allocating String object: %w", err)
	}
	objVal, _ := si.heap.Get(objRef)
	offset, ok := stringClass.FieldOffset("value")
	if !ok {
		return 0, fmt.Errorf("heap: java.lang.String has no 'value' field")
	}
	WriteRef(objVal.Object.Data, offset, arrayRef)

	si.strings[s] = objRef
	return objRef, nil
}

// GetString decodes the UTF-16 `value` field of a String object back into
// a Go string.
func (si *StringInterner) GetString(ref Reference, stringClass ClassInfo) (string, error) {
	v, ok := si.heap.Get(ref)
	if !ok || v.Kind != KindObject {
		return "", fmt.Errorf("heap: reference %d is not a String object", ref)
	}
	offset, ok := stringClass.FieldOffset("value")
	if !ok {
		return "", fmt.Errorf("heap: java.lang.String has no 'value' field")
	}
	arrayRef := ReadRef(v.Object.Data, offset)
	arrVal, ok := si.heap.Get(arrayRef)
	if !ok {
		return "", nil // empty/null backing array
	}
	units := make([]uint16, arrVal.Array.Length)
	for i := range units {
		units[i] = uint16(ReadInt(arrVal.Array.Data, i*2, descriptor.Char))
	}
	return string(utf16.Decode(units)), nil
}

// InsertClassObject produces or retrieves the java.lang.Class mirror for
// class, whose `name` field is set to its binary name.
func (si *StringInterner) InsertClassObject(class ClassInfo, classClass, stringClass ClassInfo) (Reference, error) {
	si.mu.Lock()
	if ref, ok := si.classes[class.Name()]; ok {
		si.mu.Unlock()
		return ref, nil
	}
	si.mu.Unlock()

	nameRef, err := si.InsertStringConst(class.Name(), stringClass)
	if err != nil {
		return 0, fmt.Errorf("heap: interning class name %q: %w", class.Name(), err)
	}

	si.mu.Lock()
	defer si.mu.Unlock()
	if ref, ok := si.classes[class.Name()]; ok {
		return ref, nil
	}
	objRef, err := si.heap.NewObject(classClass)
	if err != nil {
		return 0, fmt.Errorf("heap: allocating Class mirror for %q: %w", class.Name(), err)
	}
	objVal, _ := si.heap.Get(objRef)
	offset, ok := classClass.FieldOffset("name")
	if !ok {
		return 0, fmt.Errorf("heap: java.lang.Class has no 'name' field")
	}
	WriteRef(objVal.Object.Data, offset, nameRef)

	si.classes[class.Name()] = objRef
	return objRef, nil
}
