// Package codec translates between the three on-disk audio formats
// (MP3/ID3v2, FLAC/Vorbis Comments, M4A/iTunes atoms) and the single
// in-memory AudioMetaData record the rest of trisync operates on, plus
// the adjacent .lrc sidecar lyrics file.
package codec

import (
	"path/filepath"
	"strings"
	"time"
)

// Picture is one embedded artwork image, in the shape shared by all three
// formats' write paths.
type Picture struct {
	MimeType    string
	PictureType uint8
	Description string
	Data        []byte
}

// AudioMetaData is the uniform record produced by reading any supported
// format and consumed by writing any supported format.
type AudioMetaData struct {
	DurationMs int64

	Title       string
	Artist      string
	Album       string
	Genre       string
	AlbumArtist string
	Composer    string
	Memo        string

	TrackNumber int32
	TrackMax    int32
	DiscNumber  int32
	DiscMax     int32

	ReleaseDate *time.Time

	Artworks []Picture
}

// Format identifies one of the three supported on-disk encodings.
type Format int

const (
	FormatUnknown Format = iota
	FormatMP3
	FormatFLAC
	FormatM4A
)

// FormatForPath dispatches on file extension, case-insensitive, per the
// fixed mapping: .mp3 -> MP3, .flac -> FLAC, .m4a -> M4A.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return FormatMP3, nil
	case ".flac":
		return FormatFLAC, nil
	case ".m4a":
		return FormatM4A, nil
	default:
		return FormatUnknown, &UnsupportedFormat{Path: path}
	}
}

// Read dispatches to the format-specific reader for path.
func Read(path string) (*AudioMetaData, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatMP3:
		return ReadMP3(path)
	case FormatFLAC:
		return ReadFLAC(path)
	case FormatM4A:
		return ReadM4A(path)
	default:
		return nil, &UnsupportedFormat{Path: path}
	}
}

// Write dispatches to the format-specific writer for path.
func Write(path string, m *AudioMetaData) error {
	format, err := FormatForPath(path)
	if err != nil {
		return err
	}
	switch format {
	case FormatMP3:
		return WriteMP3(path, m)
	case FormatFLAC:
		return WriteFLAC(path, m)
	case FormatM4A:
		return WriteM4A(path, m)
	default:
		return &UnsupportedFormat{Path: path}
	}
}

func dateOnly(t time.Time) string {
	return t.Format("2006-01-02")
}

func parseDateOnly(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}
