package classarea

import (
	"testing"

	"github.com/shunsuke-abe/govm/pkg/classfile"
)

func field(name, desc string, static bool) classfile.FieldInfo {
	flags := uint16(0)
	if static {
		flags = classfile.AccStatic
	}
	return classfile.FieldInfo{AccessFlags: flags, Name: name, Descriptor: desc}
}

func TestLayoutFieldsWidestFirst(t *testing.T) {
	fields := []classfile.FieldInfo{
		field("flag", "Z", false),  // 1 byte
		field("total", "J", false), // 8 bytes
		field("name", "Ljava/lang/String;", false), // 4 bytes (ref)
		field("count", "I", false),                 // 4 bytes
	}

	result, err := layoutFields(fields, false, 0)
	if err != nil {
		t.Fatalf("layoutFields: %v", err)
	}

	if result.offsets["total"] != 0 {
		t.Errorf("total (widest) offset = %d, want 0", result.offsets["total"])
	}
	if result.offsets["flag"] < result.offsets["count"] {
		t.Errorf("flag (1 byte) packed before count (4 bytes): offsets %+v", result.offsets)
	}
	if len(result.refOffsets) != 1 || result.refOffsets[0] != result.offsets["name"] {
		t.Errorf("refOffsets = %v, want [%d]", result.refOffsets, result.offsets["name"])
	}
	if result.width%4 != 0 {
		t.Errorf("width %d not 4-byte padded", result.width)
	}
}

func TestLayoutFieldsBaseOffsetForInheritance(t *testing.T) {
	fields := []classfile.FieldInfo{field("x", "I", false)}
	result, err := layoutFields(fields, false, 12)
	if err != nil {
		t.Fatalf("layoutFields: %v", err)
	}
	if result.offsets["x"] != 12 {
		t.Errorf("x offset = %d, want 12 (base offset preserved)", result.offsets["x"])
	}
	if result.width != 16 {
		t.Errorf("width = %d, want 16", result.width)
	}
}

func TestLayoutFieldsSkipsWrongStaticness(t *testing.T) {
	fields := []classfile.FieldInfo{
		field("instanceField", "I", false),
		field("staticField", "I", true),
	}
	instLayout, err := layoutFields(fields, false, 0)
	if err != nil {
		t.Fatalf("layoutFields(instance): %v", err)
	}
	if _, ok := instLayout.offsets["staticField"]; ok {
		t.Error("instance layout should not include static fields")
	}
	staticLayout, err := layoutFields(fields, true, 0)
	if err != nil {
		t.Fatalf("layoutFields(static): %v", err)
	}
	if _, ok := staticLayout.offsets["instanceField"]; ok {
		t.Error("static layout should not include instance fields")
	}
}

func TestLayoutFieldsInvalidDescriptor(t *testing.T) {
	fields := []classfile.FieldInfo{field("bad", "Q", false)}
	if _, err := layoutFields(fields, false, 0); err == nil {
		t.Error("expected an error for an invalid field descriptor")
	}
}
