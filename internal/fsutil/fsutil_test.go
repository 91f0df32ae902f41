package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteJSON_OverwritesWithoutLeftovers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "state.json")

	if err := WriteJSON(path, map[string]int{"cursor": 1}); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := WriteJSON(path, map[string]int{"cursor": 2}); err != nil {
		t.Fatalf("second write: %v", err)
	}

	var got map[string]int
	if err := ReadJSON(path, &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got["cursor"] != 2 {
		t.Fatalf("expected cursor 2, got %d", got["cursor"])
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the target file, found %d entries", len(entries))
	}
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "out", "dst.txt")
	if err := os.WriteFile(src, []byte("once upon a time"), 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}

	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("copy: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read dst: %v", err)
	}
	if string(data) != "once upon a time" {
		t.Fatalf("unexpected copy contents %q", data)
	}
}
