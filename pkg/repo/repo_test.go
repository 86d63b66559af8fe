package repo

import (
	"os"
	"path/filepath"
	"testing"
)

func setupRepo(t *testing.T, files map[string]string) *Dir {
	t.Helper()
	tmpDir := t.TempDir()
	for path, content := range files {
		full := filepath.Join(tmpDir, path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("failed to create dir: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write test file: %v", err)
		}
	}
	d, err := NewDir(tmpDir)
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	return d
}

func TestDir_ReadPresent(t *testing.T) {
	d := setupRepo(t, map[string]string{"main.go": "package main\n"})

	content, ok, err := d.Read("main.go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected file to be present")
	}
	if string(content) != "package main\n" {
		t.Errorf("content mismatch: %q", content)
	}
}

func TestDir_ReadAbsent(t *testing.T) {
	d := setupRepo(t, nil)

	_, ok, err := d.Read("missing.txt")
	if err != nil {
		t.Fatalf("absent file should not be an error: %v", err)
	}
	if ok {
		t.Error("expected ok=false for absent file")
	}
}

func TestDir_RejectsEscapes(t *testing.T) {
	d := setupRepo(t, nil)

	for _, path := range []string{"../outside.txt", "a/../../outside.txt", "/etc/passwd"} {
		if _, _, err := d.Read(path); err == nil {
			t.Errorf("expected error for path %q", path)
		}
		if err := d.Write(path, []byte("x")); err == nil {
			t.Errorf("expected write error for path %q", path)
		}
	}
}

func TestDir_WriteCreatesParents(t *testing.T) {
	d := setupRepo(t, nil)

	if err := d.Write("a/b/c.txt", []byte("deep")); err != nil {
		t.Fatalf("write: %v", err)
	}
	content, ok, err := d.Read("a/b/c.txt")
	if err != nil || !ok {
		t.Fatalf("read back: ok=%v err=%v", ok, err)
	}
	if string(content) != "deep" {
		t.Errorf("content mismatch: %q", content)
	}
}

func TestDir_List(t *testing.T) {
	d := setupRepo(t, map[string]string{
		"b.txt":     "b",
		"a.txt":     "a",
		"sub/c.txt": "c",
	})

	entries, err := d.List(".")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	// Sorted by name: a.txt, b.txt, sub
	if entries[0].Name != "a.txt" || entries[2].Name != "sub" {
		t.Errorf("unexpected order: %+v", entries)
	}
	if !entries[2].IsDir {
		t.Error("expected sub to be a directory")
	}
}

func TestDir_Walk(t *testing.T) {
	d := setupRepo(t, map[string]string{
		"a.go":          "a",
		".git/config":   "ignored",
		"pkg/util/b.go": "b",
	})

	var seen []string
	err := d.Walk(func(rel string) error {
		seen = append(seen, rel)
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(seen) != 2 {
		t.Errorf("expected 2 files (git dir skipped), got %v", seen)
	}
}

func TestDir_Remove(t *testing.T) {
	d := setupRepo(t, map[string]string{"gone.txt": "x"})

	if err := d.Remove("gone.txt"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if d.Exists("gone.txt") {
		t.Error("file should be gone")
	}
}
