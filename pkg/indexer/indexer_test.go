package indexer

import (
	"os"
	"path/filepath"
	"testing"

	"agentd/pkg/repo"
)

func setupIndexer(t *testing.T, files map[string]string) *Indexer {
	t.Helper()
	tmpDir := t.TempDir()
	for path, content := range files {
		full := filepath.Join(tmpDir, path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	d, err := repo.NewDir(tmpDir)
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	return New(d)
}

func TestIndexer_GoSymbols(t *testing.T) {
	in := setupIndexer(t, map[string]string{
		"server.go": "package main\n\ntype Server struct{}\n\nfunc NewServer() *Server {\n\treturn &Server{}\n}\n\nfunc (s *Server) Start() error {\n\treturn nil\n}\n",
	})

	ix, err := in.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if got := len(ix.FindByKind(KindType)); got != 1 {
		t.Errorf("expected 1 type, got %d", got)
	}
	funcs := ix.FindByKind(KindFunction)
	if len(funcs) != 1 || funcs[0].Name != "NewServer" {
		t.Errorf("unexpected functions: %+v", funcs)
	}
	methods := ix.FindByKind(KindMethod)
	if len(methods) != 1 || methods[0].Name != "Start" || methods[0].Parent != "Server" {
		t.Errorf("unexpected methods: %+v", methods)
	}
}

func TestIndexer_PythonSymbols(t *testing.T) {
	in := setupIndexer(t, map[string]string{
		"app.py": "class Handler:\n    def handle(self, req):\n        pass\n\ndef main():\n    pass\n",
	})

	ix, err := in.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	classes := ix.FindByKind(KindClass)
	if len(classes) != 1 || classes[0].Name != "Handler" {
		t.Errorf("unexpected classes: %+v", classes)
	}
	methods := ix.FindByKind(KindMethod)
	if len(methods) != 1 || methods[0].Parent != "Handler" {
		t.Errorf("unexpected methods: %+v", methods)
	}
	funcs := ix.FindByKind(KindFunction)
	if len(funcs) != 1 || funcs[0].Name != "main" {
		t.Errorf("unexpected functions: %+v", funcs)
	}
}

func TestIndexer_FindByName(t *testing.T) {
	in := setupIndexer(t, map[string]string{
		"a.go": "package a\n\nfunc RunTask() {}\n\nfunc runHelper() {}\n",
	})

	ix, err := in.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got := len(ix.FindByName("run")); got != 2 {
		t.Errorf("case-insensitive partial match should find 2, got %d", got)
	}
}

func TestIndexer_CacheInvalidate(t *testing.T) {
	in := setupIndexer(t, map[string]string{"a.go": "package a\n\nfunc A() {}\n"})

	first, err := in.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	again, err := in.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if first != again {
		t.Error("expected cached index to be reused")
	}

	in.Invalidate()
	rebuilt, err := in.Get()
	if err != nil {
		t.Fatalf("Get after invalidate: %v", err)
	}
	if rebuilt == first {
		t.Error("expected a rebuilt index after Invalidate")
	}
}

func TestIndexer_SkipsUnknownExtensions(t *testing.T) {
	in := setupIndexer(t, map[string]string{
		"notes.md": "# not code\n",
		"a.go":     "package a\n",
	})

	ix, err := in.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ix.FilesIndexed != 1 {
		t.Errorf("expected only the .go file indexed, got %d", ix.FilesIndexed)
	}
}
