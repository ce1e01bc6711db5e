package fstest

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/input-output-hk/catalyst-forge-libs/s3batch/fs"
)

// testWriteRead writes a payload in one call and reads it back.
func testWriteRead(t *testing.T, filesystem fs.Filesystem, root string) {
	p := filepath.Join(root, "artifact.json")
	want := []byte(`{"metadata":{},"data":{}}`)

	if err := filesystem.WriteFile(p, want, 0o644); err != nil {
		t.Fatalf("WriteFile(%q): got error %v, want nil", p, err)
	}

	got, err := filesystem.ReadFile(p)
	if err != nil {
		t.Fatalf("ReadFile(%q): got error %v, want nil", p, err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("ReadFile(%q): got %q, want %q", p, got, want)
	}

	info, err := filesystem.Stat(p)
	if err != nil {
		t.Fatalf("Stat(%q): got error %v, want nil", p, err)
	}
	if info.Size() != int64(len(want)) {
		t.Errorf("Stat(%q).Size(): got %d, want %d", p, info.Size(), len(want))
	}
}

// testOpenSeek verifies a handle can be rewound, which retried uploads rely on.
func testOpenSeek(t *testing.T, filesystem fs.Filesystem, root string) {
	p := filepath.Join(root, "seek.json")
	if err := filesystem.WriteFile(p, []byte("abcdef"), 0o644); err != nil {
		t.Fatalf("WriteFile(%q): got error %v, want nil", p, err)
	}

	f, err := filesystem.Open(p)
	if err != nil {
		t.Fatalf("Open(%q): got error %v, want nil", p, err)
	}
	defer func() { _ = f.Close() }()

	first, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll: got error %v, want nil", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek: got error %v, want nil", err)
	}
	second, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll after Seek: got error %v, want nil", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("read after Seek: got %q, want %q", second, first)
	}

	info, err := f.Stat()
	if err != nil {
		t.Fatalf("File.Stat: got error %v, want nil", err)
	}
	if info.Size() != 6 {
		t.Errorf("File.Stat().Size(): got %d, want 6", info.Size())
	}
}

func testMkdirAllStat(t *testing.T, filesystem fs.Filesystem, root string) {
	if err := filesystem.MkdirAll(filepath.Join(root, "a/b/c"), 0o755); err != nil {
		t.Fatalf("MkdirAll: got error %v, want nil", err)
	}
	info, err := filesystem.Stat(filepath.Join(root, "a/b"))
	if err != nil {
		t.Fatalf("Stat: got error %v, want nil", err)
	}
	if !info.IsDir() {
		t.Errorf("expected directory, got file: %v", info.Name())
	}
}

func testExists(t *testing.T, filesystem fs.Filesystem, root string) {
	p := filepath.Join(root, "exists.json")

	ok, err := filesystem.Exists(p)
	if err != nil || ok {
		t.Fatalf("Exists(%q) before write: got (%v, %v), want (false, nil)", p, ok, err)
	}
	if err := filesystem.WriteFile(p, []byte("{}"), 0o644); err != nil {
		t.Fatalf("WriteFile(%q): got error %v, want nil", p, err)
	}
	ok, err = filesystem.Exists(p)
	if err != nil || !ok {
		t.Errorf("Exists(%q) after write: got (%v, %v), want (true, nil)", p, ok, err)
	}
}

// testRemoveAll removes a populated working directory and tolerates a
// second removal of the same path.
func testRemoveAll(t *testing.T, filesystem fs.Filesystem, root string) {
	dir := filepath.Join(root, "work")
	for _, name := range []string{"one.json", "two.json", "nested/three.json"} {
		p := filepath.Join(dir, name)
		if err := filesystem.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("MkdirAll: got error %v, want nil", err)
		}
		if err := filesystem.WriteFile(p, []byte("{}"), 0o644); err != nil {
			t.Fatalf("WriteFile(%q): got error %v, want nil", p, err)
		}
	}

	if err := filesystem.RemoveAll(dir); err != nil {
		t.Fatalf("RemoveAll(%q): got error %v, want nil", dir, err)
	}
	if _, err := filesystem.Stat(dir); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Stat(%q) after RemoveAll: got %v, want not-exist", dir, err)
	}
	if err := filesystem.RemoveAll(dir); err != nil {
		t.Errorf("second RemoveAll(%q): got error %v, want nil", dir, err)
	}
}

func testTempDirWalk(t *testing.T, filesystem fs.Filesystem, root string) {
	td, err := filesystem.TempDir(root, "run-")
	if err != nil {
		t.Fatalf("TempDir: got error %v, want nil", err)
	}
	if td == "" {
		t.Fatalf("TempDir returned empty path")
	}
	if err := filesystem.WriteFile(filepath.Join(td, "x.json"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: got error %v, want nil", err)
	}

	var seen int
	err = filesystem.Walk(td, func(_ string, _ os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		seen++
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: got error %v, want nil", err)
	}
	if seen < 2 {
		t.Errorf("Walk saw %d entries, want >= 2", seen)
	}
}
