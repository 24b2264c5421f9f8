package classpath

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestDirSourceFind(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "pkg"), 0o755); err != nil {
		t.Fatal(err)
	}
	want := []byte{0xCA, 0xFE, 0xBA, 0xBE}
	if err := os.WriteFile(filepath.Join(dir, "pkg", "Thing.class"), want, 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := Parse(dir)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, err := p.Find("pkg/Thing")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Find = %v, want %v", got, want)
	}
}

func TestZipSourceFind(t *testing.T) {
	dir := t.TempDir()
	jarPath := filepath.Join(dir, "lib.jar")

	f, err := os.Create(jarPath)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("pkg/Thing.class")
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0xCA, 0xFE, 0xBA, 0xBE}
	if _, err := w.Write(want); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	p, err := Parse(jarPath)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, err := p.Find("pkg/Thing")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Find = %v, want %v", got, want)
	}
}

func TestPathTriesEntriesInOrder(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()
	want := []byte{1, 2, 3}
	if err := os.WriteFile(filepath.Join(dir2, "Foo.class"), want, 0o644); err != nil {
		t.Fatal(err)
	}

	spec := dir1 + string(os.PathListSeparator) + dir2
	p, err := Parse(spec)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, err := p.Find("Foo")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Find = %v, want %v", got, want)
	}
}

func TestFindMissingReturnsError(t *testing.T) {
	p, err := Parse(t.TempDir())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := p.Find("Nope"); err == nil {
		t.Error("expected an error for a missing class")
	}
}
