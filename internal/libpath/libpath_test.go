package libpath

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewTrackPath(t *testing.T) {
	if _, err := NewTrackPath(""); err == nil {
		t.Fatal("expected error for empty path")
	}
	if _, err := NewTrackPath("/abs/path.mp3"); err == nil {
		t.Fatal("expected error for absolute path")
	}
	if _, err := NewTrackPath(`win\path.mp3`); err == nil {
		t.Fatal("expected error for backslash path")
	}
	p, err := NewTrackPath("Artist/Album/01 Track.mp3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.String() != "Artist/Album/01 Track.mp3" {
		t.Fatalf("String() = %q", p.String())
	}
}

func TestTrackPathFileNameAndStem(t *testing.T) {
	p, _ := NewTrackPath("Artist/Album/01 Track.mp3")
	if got := p.FileName(); got != "01 Track.mp3" {
		t.Errorf("FileName() = %q, want %q", got, "01 Track.mp3")
	}
	if got := p.FileStem(); got != "01 Track" {
		t.Errorf("FileStem() = %q, want %q", got, "01 Track")
	}
}

func TestTrackPathWithExtension(t *testing.T) {
	p, _ := NewTrackPath("Artist/Album/01 Track.mp3")
	q := p.WithExtension("flac")
	if got := q.String(); got != "Artist/Album/01 Track.flac" {
		t.Errorf("WithExtension() = %q", got)
	}
}

func TestTrackPathParent(t *testing.T) {
	p, _ := NewTrackPath("Artist/Album/01 Track.mp3")
	parent, ok := p.Parent()
	if !ok {
		t.Fatal("expected a parent")
	}
	if got := parent.String(); got != "Artist/Album/" {
		t.Errorf("Parent() = %q, want %q", got, "Artist/Album/")
	}

	root, _ := NewTrackPath("Track.mp3")
	if _, ok := root.Parent(); ok {
		t.Error("expected no parent for a root-level track")
	}
}

func TestTrackPathAbs(t *testing.T) {
	p, _ := NewTrackPath("Artist/Album/01 Track.mp3")
	got := p.Abs("/lib")
	want := filepath.Join("/lib", "Artist", "Album", "01 Track.mp3")
	if got != want {
		t.Errorf("Abs() = %q, want %q", got, want)
	}
}

func TestTrackPathCompare(t *testing.T) {
	a, _ := NewTrackPath("a.mp3")
	b, _ := NewTrackPath("b.mp3")
	if a.Compare(b) >= 0 {
		t.Error("expected a < b")
	}
	if b.Compare(a) <= 0 {
		t.Error("expected b > a")
	}
	if a.Compare(a) != 0 {
		t.Error("expected a == a")
	}
}

func TestNewDirectoryPathNormalizes(t *testing.T) {
	d, err := NewDirectoryPath("Artist/Album")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.String() != "Artist/Album/" {
		t.Errorf("String() = %q, want trailing slash", d.String())
	}

	d2, _ := NewDirectoryPath("Artist/Album/")
	if d2.String() != "Artist/Album/" {
		t.Errorf("String() = %q", d2.String())
	}
}

func TestDirectoryPathDirNameAndParent(t *testing.T) {
	d, _ := NewDirectoryPath("Artist/Album")
	if got := d.DirName(); got != "Album" {
		t.Errorf("DirName() = %q, want %q", got, "Album")
	}

	parent, ok := d.Parent()
	if !ok {
		t.Fatal("expected a parent")
	}
	if got := parent.String(); got != "Artist/" {
		t.Errorf("Parent() = %q, want %q", got, "Artist/")
	}

	top, _ := NewDirectoryPath("Artist")
	if _, ok := top.Parent(); ok {
		t.Error("expected no parent for a top-level directory")
	}
}

func TestDirectoryPathAbs(t *testing.T) {
	d, _ := NewDirectoryPath("Artist/Album")
	got := d.Abs("/lib")
	want := filepath.Join("/lib", "Artist", "Album")
	if got != want {
		t.Errorf("Abs() = %q, want %q", got, want)
	}
}

func TestLibPathStrResolveFS(t *testing.T) {
	root := t.TempDir()

	missing, _ := NewLibPathStr("missing/entry")
	kind, err := missing.ResolveFS(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kind != ResolveUnknown {
		t.Errorf("ResolveFS() = %v, want ResolveUnknown", kind)
	}

	if err := os.MkdirAll(filepath.Join(root, "Artist", "Album"), 0o755); err != nil {
		t.Fatalf("setup mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "Artist", "Album", "01.mp3"), []byte("x"), 0o644); err != nil {
		t.Fatalf("setup write: %v", err)
	}

	dirPath, _ := NewLibPathStr("Artist/Album")
	kind, err = dirPath.ResolveFS(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kind != ResolveDirectory {
		t.Errorf("ResolveFS() = %v, want ResolveDirectory", kind)
	}

	filePath, _ := NewLibPathStr("Artist/Album/01.mp3")
	kind, err = filePath.ResolveFS(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kind != ResolveFile {
		t.Errorf("ResolveFS() = %v, want ResolveFile", kind)
	}
}
