package changes

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"agentd/pkg/repo"
)

func setupManager(t *testing.T, files map[string]string) (*Manager, *repo.Dir) {
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
	return NewManager(d), d
}

func TestStageWrite_Create(t *testing.T) {
	m, _ := setupManager(t, nil)

	if _, err := m.StageWrite("hello.txt", "hi"); err != nil {
		t.Fatalf("StageWrite: %v", err)
	}

	cs := m.ChangeSet()
	if len(cs) != 1 {
		t.Fatalf("expected 1 staged change, got %d", len(cs))
	}
	c := cs[0]
	if c.Type != ChangeCreate {
		t.Errorf("expected create, got %s", c.Type)
	}
	if c.OriginalContent != nil {
		t.Error("create must have nil original content")
	}
	if c.NewContent != "hi" {
		t.Errorf("unexpected new content %q", c.NewContent)
	}
}

func TestStageWrite_Modify(t *testing.T) {
	m, _ := setupManager(t, map[string]string{"main.go": "old"})

	if _, err := m.StageWrite("main.go", "new"); err != nil {
		t.Fatalf("StageWrite: %v", err)
	}

	c := m.ChangeSet()[0]
	if c.Type != ChangeModify {
		t.Errorf("expected modify, got %s", c.Type)
	}
	if c.OriginalContent == nil || *c.OriginalContent != "old" {
		t.Errorf("expected original 'old', got %v", c.OriginalContent)
	}
	if c.NewContent != "new" {
		t.Errorf("modify must have non-empty new content, got %q", c.NewContent)
	}
}

func TestStageWrite_RestagePreservesOriginal(t *testing.T) {
	m, d := setupManager(t, map[string]string{"f.txt": "v0"})

	if _, err := m.StageWrite("f.txt", "v1"); err != nil {
		t.Fatalf("first stage: %v", err)
	}
	// Mutate the underlying file to prove the original is not re-read.
	if err := d.Write("f.txt", []byte("changed-behind-our-back")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := m.StageWrite("f.txt", "v2"); err != nil {
		t.Fatalf("second stage: %v", err)
	}

	cs := m.ChangeSet()
	if len(cs) != 1 {
		t.Fatalf("re-staging must not duplicate: got %d changes", len(cs))
	}
	c := cs[0]
	if c.NewContent != "v2" {
		t.Errorf("expected final content v2, got %q", c.NewContent)
	}
	if c.OriginalContent == nil || *c.OriginalContent != "v0" {
		t.Errorf("original captured at first staging must be preserved, got %v", c.OriginalContent)
	}
}

func TestStageDelete(t *testing.T) {
	m, _ := setupManager(t, map[string]string{"doomed.txt": "bye"})

	if _, err := m.StageDelete("doomed.txt"); err != nil {
		t.Fatalf("StageDelete: %v", err)
	}

	c := m.ChangeSet()[0]
	if c.Type != ChangeDelete {
		t.Errorf("expected delete, got %s", c.Type)
	}
	if c.NewContent != "" {
		t.Errorf("delete must have empty new content, got %q", c.NewContent)
	}
	if c.OriginalContent == nil || *c.OriginalContent != "bye" {
		t.Errorf("delete must capture original content, got %v", c.OriginalContent)
	}
}

func TestStageDelete_Missing(t *testing.T) {
	m, _ := setupManager(t, nil)

	if _, err := m.StageDelete("nope.txt"); err == nil {
		t.Error("expected error deleting a non-existent file")
	}
}

func TestStageDelete_UnstagesPendingCreate(t *testing.T) {
	m, _ := setupManager(t, nil)

	if _, err := m.StageWrite("temp.txt", "x"); err != nil {
		t.Fatalf("StageWrite: %v", err)
	}
	if _, err := m.StageDelete("temp.txt"); err != nil {
		t.Fatalf("StageDelete: %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("create+delete should net to nothing, got %d staged", m.Len())
	}
}

func TestApply(t *testing.T) {
	m, d := setupManager(t, map[string]string{"old.txt": "x", "mod.txt": "before"})

	if _, err := m.StageWrite("new.txt", "created"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.StageWrite("mod.txt", "after"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.StageDelete("old.txt"); err != nil {
		t.Fatal(err)
	}

	report, err := m.Apply()
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(report.Applied) != 3 || len(report.Failed) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}

	content, ok, _ := d.Read("new.txt")
	if !ok || string(content) != "created" {
		t.Errorf("new.txt not written: ok=%v content=%q", ok, content)
	}
	content, _, _ = d.Read("mod.txt")
	if string(content) != "after" {
		t.Errorf("mod.txt not modified: %q", content)
	}
	if d.Exists("old.txt") {
		t.Error("old.txt should be deleted")
	}
	if m.Len() != 0 {
		t.Error("staging area should be empty after apply")
	}
}

func TestApply_PartialFailureSurfaced(t *testing.T) {
	m, _ := setupManager(t, map[string]string{"ok.txt": "x"})

	if _, err := m.StageWrite("ok.txt", "y"); err != nil {
		t.Fatal(err)
	}
	// Force a failure: stage a delete, then remove the file underneath so
	// the apply-time removal fails.
	if _, err := m.StageDelete("ok.txt"); err == nil {
		// ok.txt is staged as modify; re-stage as delete keeps the original.
		_ = err
	}
	m.staged["gone.txt"] = &StagedChange{Path: "gone.txt", Type: ChangeDelete}
	m.order = append(m.order, "gone.txt")

	report, err := m.Apply()
	if err == nil {
		t.Fatal("expected partial apply error")
	}
	if len(report.Failed) != 1 || report.Failed[0].Path != "gone.txt" {
		t.Errorf("expected gone.txt to fail, got %+v", report.Failed)
	}
	if len(report.Applied) != 1 {
		t.Errorf("expected ok.txt to be applied, got %+v", report.Applied)
	}
}

func TestDiscard_NoStorageWrites(t *testing.T) {
	m, d := setupManager(t, map[string]string{"keep.txt": "original"})

	if _, err := m.StageWrite("keep.txt", "replaced"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.StageWrite("new.txt", "never-written"); err != nil {
		t.Fatal(err)
	}

	if count := m.Discard(); count != 2 {
		t.Errorf("expected 2 discarded, got %d", count)
	}

	content, _, _ := d.Read("keep.txt")
	if string(content) != "original" {
		t.Errorf("discard must not touch real storage, got %q", content)
	}
	if d.Exists("new.txt") {
		t.Error("discarded create must not exist on disk")
	}

	// Apply after discard performs zero writes.
	report, err := m.Apply()
	if err != nil {
		t.Fatalf("Apply on empty changeset: %v", err)
	}
	if len(report.Applied) != 0 {
		t.Errorf("expected zero writes, got %v", report.Applied)
	}
}

func TestDiff(t *testing.T) {
	m, _ := setupManager(t, map[string]string{"mod.txt": "line one\nline two\n"})

	if _, err := m.StageWrite("mod.txt", "line one\nline 2\n"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.StageWrite("new.txt", "fresh\n"); err != nil {
		t.Fatal(err)
	}

	diff := m.Diff()
	for _, want := range []string{"--- a/mod.txt", "+++ b/mod.txt", "-line two", "+line 2", "--- /dev/null", "+++ new.txt", "+fresh"} {
		if !strings.Contains(diff, want) {
			t.Errorf("diff missing %q:\n%s", want, diff)
		}
	}
}

func TestSummary(t *testing.T) {
	m, _ := setupManager(t, map[string]string{"a.txt": "x"})

	if m.Summary() != "No staged changes." {
		t.Errorf("unexpected empty summary: %q", m.Summary())
	}

	if _, err := m.StageWrite("a.txt", "y"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.StageWrite("b.txt", "z"); err != nil {
		t.Fatal(err)
	}
	s := m.Summary()
	if !strings.Contains(s, "1 file(s) to create") || !strings.Contains(s, "1 file(s) to modify") {
		t.Errorf("unexpected summary: %q", s)
	}
}
