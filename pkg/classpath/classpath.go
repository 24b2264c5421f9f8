// Package classpath locates class-file bytes by binary name, the
// "class-path byte source" collaborator spec.md names as out-of-scope for
// the method area itself: entries are plain directories or .jar zip
// archives, with no JDK/jmod dependency.
package classpath

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Source resolves a binary class name (e.g. "java/lang/Object", no
// trailing ".class") to its raw class-file bytes.
type Source interface {
	Find(binaryName string) ([]byte, error)
}

// dirSource reads "<root>/<binaryName>.class" off disk.
type dirSource struct {
	root string
}

func (d dirSource) Find(binaryName string) ([]byte, error) {
	path := filepath.Join(d.root, filepath.FromSlash(binaryName)+".class")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("classpath: %s: %w", path, err)
	}
	return data, nil
}

// zipSource reads "<binaryName>.class" out of a .jar archive, loaded whole
// into memory once, when the source is created.
type zipSource struct {
	path   string
	reader *zip.Reader
	data   []byte
}

func newZipSource(path string) (*zipSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("classpath: opening %s: %w", path, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("classpath: stat %s: %w", path, err)
	}
	data := make([]byte, stat.Size())
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, fmt.Errorf("classpath: reading %s: %w", path, err)
	}
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("classpath: opening %s as zip: %w", path, err)
	}
	return &zipSource{path: path, reader: r, data: data}, nil
}

func (z *zipSource) Find(binaryName string) ([]byte, error) {
	target := binaryName + ".class"
	for _, file := range z.reader.File {
		if file.Name == target {
			rc, err := file.Open()
			if err != nil {
				return nil, fmt.Errorf("classpath: opening %s in %s: %w", target, z.path, err)
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("classpath: %s not found in %s", target, z.path)
}

// Path is a composite, colon-separated class-path (the Go realization of
// the JVM's `-cp`/`CLASSPATH`): each entry is either a directory or a .jar,
// tried in order.
type Path struct {
	sources []Source
}

// Parse builds a Path from a colon-separated class-path string, matching
// spec.md section 6's `-cp <classpath>` and falling back to the
// GOVM_CLASSPATH environment variable when spec is empty.
func Parse(spec string) (*Path, error) {
	if spec == "" {
		spec = os.Getenv("GOVM_CLASSPATH")
	}
	if spec == "" {
		spec = "."
	}
	p := &Path{}
	for _, entry := range strings.Split(spec, string(os.PathListSeparator)) {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.HasSuffix(strings.ToLower(entry), ".jar") {
			zs, err := newZipSource(entry)
			if err != nil {
				return nil, err
			}
			p.sources = append(p.sources, zs)
			continue
		}
		p.sources = append(p.sources, dirSource{root: entry})
	}
	return p, nil
}

// Find tries each class-path entry in order, returning the first hit.
func (p *Path) Find(binaryName string) ([]byte, error) {
	if len(p.sources) == 0 {
		return nil, fmt.Errorf("classpath: empty class-path, cannot find %s", binaryName)
	}
	var lastErr error
	for _, src := range p.sources {
		data, err := src.Find(binaryName)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("classpath: class %s not found: %w", binaryName, lastErr)
}
