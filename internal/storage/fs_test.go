package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var (
	pngBytes  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	jpegBytes = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00")
)

func tempStore(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempStore(t)
	if err := s.Write("dog.png", pngBytes); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("dog.png")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(pngBytes) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	s := tempStore(t)
	if err := s.Write("2024/06/a.jpg", jpegBytes); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := s.Read("2024/06/a.jpg"); err != nil {
		t.Fatalf("Read: %v", err)
	}
}

func TestDelete(t *testing.T) {
	s := tempStore(t)
	_ = s.Write("del.jpg", jpegBytes)
	if err := s.Delete("del.jpg"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read("del.jpg"); err == nil {
		t.Error("expected error reading deleted file")
	}
}

func TestListNewestFirst(t *testing.T) {
	s := tempStore(t)
	_ = s.Write("old.jpg", jpegBytes)
	_ = s.Write("sub/new.png", pngBytes)
	_ = s.Write("notes.txt", []byte("not an image"))

	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(filepath.Join(s.Root(), "old.jpg"), past, past); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	items, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2", len(items))
	}
	if items[0].Name != "sub/new.png" {
		t.Errorf("newest = %q, want sub/new.png", items[0].Name)
	}
	if items[1].Checksum != Digest(jpegBytes) || items[1].Size != int64(len(jpegBytes)) {
		t.Errorf("metadata = %+v", items[1])
	}
}

func TestPath(t *testing.T) {
	s := tempStore(t)
	p, err := s.Path("a.jpg")
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	if p != filepath.Join(s.Root(), "a.jpg") {
		t.Errorf("Path = %q", p)
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempStore(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.jpg",
		"/etc/shadow",
		"",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	s := tempStore(t)
	_ = s.Write("atomic.jpg", jpegBytes)
	if err := s.Write("atomic.jpg", append(jpegBytes, 'x')); err != nil {
		t.Fatalf("Write: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(s.root, tmpPrefix+"*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS("/tmp/lookout-does-not-exist-" + t.Name())
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestSanitizeName(t *testing.T) {
	if got := SanitizeName("../my dog!.jpg", ""); got != "my_dog_.jpg" {
		t.Errorf("SanitizeName = %q", got)
	}
	got := SanitizeName("", ".png")
	if !strings.HasSuffix(got, ".png") || len(got) != 36+4 {
		t.Errorf("fallback name = %q", got)
	}
}

func TestCheckImage(t *testing.T) {
	if err := CheckImage("a.jpeg", jpegBytes); err != nil {
		t.Errorf("jpeg: %v", err)
	}
	if err := CheckImage("a.png", pngBytes); err != nil {
		t.Errorf("png: %v", err)
	}
	if err := CheckImage("a.png", jpegBytes); err == nil {
		t.Error("expected mismatch error")
	}
	if err := CheckImage("a.pdf", []byte("%PDF-1.4")); err == nil {
		t.Error("expected unsupported extension error")
	}
}
