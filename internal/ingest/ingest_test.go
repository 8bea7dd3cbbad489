package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func setupDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	files := map[string]string{
		"vault.txt":  "The vault gate is sealed.",
		"keep.txt":   "The keep leans into the marsh.",
		"notes.md":   "not an adventure",
		"îgnore.bin": "binary",
	}
	for name, text := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(text), 0o644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.txt"), 0o755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	return dir
}

func TestCatalog_List(t *testing.T) {
	c := NewCatalog(setupDir(t))

	names, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	// Sorted, .txt only, directories skipped
	want := []string{"keep.txt", "vault.txt"}
	if len(names) != len(want) {
		t.Fatalf("Expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, names)
			break
		}
	}
}

func TestCatalog_Read(t *testing.T) {
	c := NewCatalog(setupDir(t))

	text, err := c.Read(context.Background(), "vault.txt")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if text != "The vault gate is sealed." {
		t.Errorf("Unexpected content: %q", text)
	}

	if _, err := c.Read(context.Background(), "missing.txt"); err == nil {
		t.Error("Expected error for missing file")
	}
	if _, err := c.Read(context.Background(), "../etc/passwd"); err == nil {
		t.Error("Expected error for path escape")
	}
}
