package classarea

import (
	"fmt"
	"sort"

	"github.com/shunsuke-abe/govm/pkg/classfile"
	"github.com/shunsuke-abe/govm/pkg/descriptor"
)

// layoutResult is the outcome of packing one class's own fields (not its
// ancestors') starting at a given base offset.
type layoutResult struct {
	offsets    map[string]int // field name -> byte offset
	refOffsets []int          // offsets of this class's own fields holding references
	width      int            // base + this class's own bytes, 4-byte padded
}

// layoutFields packs fields widest-first starting at baseOffset, per
// spec.md section 3's field layout algorithm: longs/doubles (8 bytes)
// first, then ints/floats/references (4), then chars/shorts (2), then
// bytes/booleans (1), padded at the end to a 4-byte boundary so the next
// class's fields (or the directory's own bookkeeping) stay word-aligned.
// Declaration order breaks ties, so layout is stable across runs for a
// fixed class file.
func layoutFields(fields []classfile.FieldInfo, static bool, baseOffset int) (layoutResult, error) {
	type fieldWidth struct {
		field *classfile.FieldInfo
		desc  *descriptor.Descriptor
		width int
	}

	var selected []fieldWidth
	for i := range fields {
		f := &fields[i]
		if f.IsStatic() != static {
			continue
		}
		d, err := descriptor.Parse(f.Descriptor)
		if err != nil {
			return layoutResult{}, fmt.Errorf("classarea: field %s has invalid descriptor %q: %w", f.Name, f.Descriptor, err)
		}
		selected = append(selected, fieldWidth{field: f, desc: d, width: d.Width()})
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].width > selected[j].width
	})

	offsets := make(map[string]int, len(selected))
	var refOffsets []int
	offset := baseOffset
	for _, sel := range selected {
		offsets[sel.field.Name] = offset
		if sel.desc.IsReference() {
			refOffsets = append(refOffsets, offset)
		}
		offset += sel.width
	}

	width := offset - baseOffset
	if pad := width % 4; pad != 0 {
		width += 4 - pad
	}

	return layoutResult{offsets: offsets, refOffsets: refOffsets, width: baseOffset + width}, nil
}
