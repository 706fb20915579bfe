package codec

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadLyricsMissingIsEmpty(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "track.mp3")
	lyrics, err := ReadLyrics(audio)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lyrics != "" {
		t.Fatalf("lyrics = %q, want empty", lyrics)
	}
}

func TestWriteThenReadLyrics(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "track.flac")

	if err := WriteLyrics(audio, "[00:01.00]hello\n"); err != nil {
		t.Fatalf("write lyrics: %v", err)
	}
	got, err := ReadLyrics(audio)
	if err != nil {
		t.Fatalf("read lyrics: %v", err)
	}
	if got != "[00:01.00]hello\n" {
		t.Fatalf("lyrics = %q", got)
	}
}

func TestWriteEmptyLyricsDeletesSidecar(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "track.m4a")
	sidecar := lyricsPath(audio)

	if err := WriteLyrics(audio, "some lyrics"); err != nil {
		t.Fatalf("write lyrics: %v", err)
	}
	if _, err := os.Stat(sidecar); err != nil {
		t.Fatalf("expected sidecar to exist: %v", err)
	}

	if err := WriteLyrics(audio, ""); err != nil {
		t.Fatalf("write empty lyrics: %v", err)
	}
	if _, err := os.Stat(sidecar); !os.IsNotExist(err) {
		t.Fatalf("expected sidecar to be deleted, stat err = %v", err)
	}
}

func TestWriteEmptyLyricsWithoutExistingSidecarIsNoop(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "track.mp3")
	if err := WriteLyrics(audio, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
