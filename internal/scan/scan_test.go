package scan

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
}

func TestFolder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pkg-1.0.dev2.whl", "0123456789ab")
	writeFile(t, dir, "pkg-1.0.dev1.whl", "0123456789")
	writeFile(t, dir, ".hidden", "skipped")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "sub"), "nested.whl", "skipped")

	paths, meta, err := Folder(dir)
	if err != nil {
		t.Fatalf("Folder: %v", err)
	}

	wantPaths := []string{
		filepath.Join(dir, "pkg-1.0.dev1.whl"),
		filepath.Join(dir, "pkg-1.0.dev2.whl"),
	}
	if !reflect.DeepEqual(paths, wantPaths) {
		t.Errorf("paths = %v, want %v", paths, wantPaths)
	}

	if len(meta) != 2 {
		t.Fatalf("manifest has %d entries, want 2", len(meta))
	}

	info, ok := meta["pkg-1.0.dev1.whl"]
	if !ok {
		t.Fatal("manifest missing pkg-1.0.dev1.whl")
	}
	if info.Size != 10 {
		t.Errorf("size = %d, want 10", info.Size)
	}
	sum := sha256.Sum256([]byte("0123456789"))
	if want := hex.EncodeToString(sum[:]); info.SHA256 != want {
		t.Errorf("digest = %s, want %s", info.SHA256, want)
	}
}

func TestFolderEmpty(t *testing.T) {
	paths, meta, err := Folder(t.TempDir())
	if err != nil {
		t.Fatalf("Folder: %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("paths = %v, want none", paths)
	}
	if len(meta) != 0 {
		t.Errorf("manifest = %v, want empty", meta)
	}
}

func TestFolderMissing(t *testing.T) {
	_, _, err := Folder(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatal("expected an error for a missing folder")
	}
}
