package codec

import "fmt"

// UnsupportedFormat is returned when a path's extension does not match one
// of the three supported audio formats.
type UnsupportedFormat struct {
	Path string
}

func (e *UnsupportedFormat) Error() string {
	return fmt.Sprintf("unsupported audio format: %s", e.Path)
}

// InvalidReleaseDate reports an MP3 TYER/TDAT pair that is partially
// present or does not parse as a calendar date.
type InvalidReleaseDate struct {
	Path string
	Year string
	Date string
}

func (e *InvalidReleaseDate) Error() string {
	return fmt.Sprintf("%s: invalid release date TYER=%q TDAT=%q", e.Path, e.Year, e.Date)
}

// Id3PictureTypeDuplicated is returned on MP3 write when two input
// pictures share the same picture_type.
type Id3PictureTypeDuplicated struct {
	PictureType uint8
}

func (e *Id3PictureTypeDuplicated) Error() string {
	return fmt.Sprintf("duplicate ID3 picture type: %d", e.PictureType)
}

// FailedToParseInteger reports a FLAC Vorbis Comment numeric field that
// does not parse as an integer.
type FailedToParseInteger struct {
	Key   string
	Value string
}

func (e *FailedToParseInteger) Error() string {
	return fmt.Sprintf("failed to parse integer for %s: %q", e.Key, e.Value)
}

// FailedToParseDate reports a release-date tag field that does not parse
// as YYYY-MM-DD.
type FailedToParseDate struct {
	Key   string
	Value string
}

func (e *FailedToParseDate) Error() string {
	return fmt.Sprintf("failed to parse date for %s: %q", e.Key, e.Value)
}

// StreamInfoBlockNotFound is returned when a FLAC file has no STREAMINFO
// metadata block.
type StreamInfoBlockNotFound struct {
	Path string
}

func (e *StreamInfoBlockNotFound) Error() string {
	return fmt.Sprintf("%s: no STREAMINFO block found", e.Path)
}

// VorbisCommentBlockNotFound is returned when a FLAC file has no
// VORBIS_COMMENT metadata block.
type VorbisCommentBlockNotFound struct {
	Path string
}

func (e *VorbisCommentBlockNotFound) Error() string {
	return fmt.Sprintf("%s: no VORBIS_COMMENT block found", e.Path)
}

// M4ANumberZero is returned on M4A write when a track/disc max is non-zero
// while its number is zero. A zero max, or a zero number with a zero max,
// is treated as absent and is not rejected.
type M4ANumberZero struct {
	Field string
}

func (e *M4ANumberZero) Error() string {
	return fmt.Sprintf("m4a: %s must not be zero", e.Field)
}

// UnsupportedArtworkFormat is returned on M4A write when an artwork's mime
// type is not one of the three iTunes-supported image formats.
type UnsupportedArtworkFormat struct {
	MimeType string
}

func (e *UnsupportedArtworkFormat) Error() string {
	return fmt.Sprintf("m4a: unsupported artwork format: %s", e.MimeType)
}
