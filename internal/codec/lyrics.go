package codec

import (
	"os"
	"path/filepath"
	"strings"
)

// lyricsPath returns the .lrc sidecar path adjacent to an audio file.
func lyricsPath(audioPath string) string {
	ext := filepath.Ext(audioPath)
	return strings.TrimSuffix(audioPath, ext) + ".lrc"
}

// ReadLyrics reads the sidecar lyrics file for audioPath. A missing sidecar
// is not an error; it yields an empty string.
func ReadLyrics(audioPath string) (string, error) {
	data, err := os.ReadFile(lyricsPath(audioPath))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", &FileReadError{Path: lyricsPath(audioPath), Err: err}
	}
	return string(data), nil
}

// WriteLyrics writes lyrics to the sidecar for audioPath, deleting the
// sidecar if lyrics is empty and the file exists.
func WriteLyrics(audioPath, lyrics string) error {
	path := lyricsPath(audioPath)
	if lyrics == "" {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return &FileReadError{Path: path, Err: err}
		}
		return nil
	}
	if err := os.WriteFile(path, []byte(lyrics), 0o644); err != nil {
		return &FileReadError{Path: path, Err: err}
	}
	return nil
}
