package codec

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bogem/id3v2/v2"
)

// ReadMP3 reads ID3v2 tags and the MPEG frame-walk duration from path.
func ReadMP3(path string) (*AudioMetaData, error) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return nil, fmt.Errorf("mp3: open %s: %w", path, err)
	}
	defer tag.Close()

	m := &AudioMetaData{
		Title:       tag.Title(),
		Artist:      tag.Artist(),
		Album:       tag.Album(),
		Genre:       tag.Genre(),
		AlbumArtist: tag.GetTextFrame("TPE2").Text,
		Composer:    tag.GetTextFrame("TCOM").Text,
	}

	m.TrackNumber, m.TrackMax = splitSlashedNumber(tag.GetTextFrame("TRCK").Text)
	m.DiscNumber, m.DiscMax = splitSlashedNumber(tag.GetTextFrame("TPOS").Text)

	date, err := parseID3Date(path, tag.GetTextFrame("TYER").Text, tag.GetTextFrame("TDAT").Text)
	if err != nil {
		return nil, err
	}
	m.ReleaseDate = date

	m.Memo = joinComments(tag.GetFrames("COMM"))

	for _, f := range tag.GetFrames("APIC") {
		pic, ok := f.(id3v2.PictureFrame)
		if !ok {
			continue
		}
		m.Artworks = append(m.Artworks, Picture{
			MimeType:    pic.MimeType,
			PictureType: uint8(pic.PictureType),
			Description: pic.Description,
			Data:        pic.Picture,
		})
	}

	durMs, err := mp3FrameWalkDuration(path, tag.Size())
	if err != nil {
		return nil, err
	}
	m.DurationMs = durMs

	return m, nil
}

// WriteMP3 overwrites the ID3v2.3 tag of path with m's fields.
func WriteMP3(path string, m *AudioMetaData) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("mp3: open %s: %w", path, err)
	}
	defer tag.Close()

	tag.SetVersion(3)
	tag.SetTitle(m.Title)
	tag.SetArtist(m.Artist)
	tag.SetAlbum(m.Album)
	tag.SetGenre(m.Genre)
	tag.DeleteFrames("TPE2")
	if m.AlbumArtist != "" {
		tag.AddTextFrame("TPE2", id3v2.EncodingUTF8, m.AlbumArtist)
	}
	tag.DeleteFrames("TCOM")
	if m.Composer != "" {
		tag.AddTextFrame("TCOM", id3v2.EncodingUTF8, m.Composer)
	}

	tag.DeleteFrames("TRCK")
	if m.TrackNumber != 0 {
		tag.AddTextFrame("TRCK", id3v2.EncodingUTF8, joinSlashedNumber(m.TrackNumber, m.TrackMax))
	}
	tag.DeleteFrames("TPOS")
	if m.DiscNumber != 0 {
		tag.AddTextFrame("TPOS", id3v2.EncodingUTF8, joinSlashedNumber(m.DiscNumber, m.DiscMax))
	}

	tag.DeleteFrames("TYER")
	tag.DeleteFrames("TDAT")
	if m.ReleaseDate != nil {
		tag.AddTextFrame("TYER", id3v2.EncodingUTF8, fmt.Sprintf("%04d", m.ReleaseDate.Year()))
		tag.AddTextFrame("TDAT", id3v2.EncodingUTF8, fmt.Sprintf("%02d%02d", m.ReleaseDate.Day(), int(m.ReleaseDate.Month())))
	}

	tag.DeleteFrames("COMM")
	if m.Memo != "" {
		tag.AddCommentFrame(id3v2.CommentFrame{
			Encoding:    id3v2.EncodingUTF8,
			Language:    "eng",
			Description: "",
			Text:        m.Memo,
		})
	}

	tag.DeleteFrames("APIC")
	seenTypes := make(map[uint8]bool, len(m.Artworks))
	for _, pic := range m.Artworks {
		if seenTypes[pic.PictureType] {
			return &Id3PictureTypeDuplicated{PictureType: pic.PictureType}
		}
		seenTypes[pic.PictureType] = true
		tag.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    pic.MimeType,
			PictureType: byte(pic.PictureType),
			Description: pic.Description,
			Picture:     pic.Data,
		})
	}

	if err := tag.Save(); err != nil {
		return fmt.Errorf("mp3: save %s: %w", path, err)
	}
	return nil
}

func splitSlashedNumber(s string) (n, max int32) {
	if s == "" {
		return 0, 0
	}
	parts := strings.SplitN(s, "/", 2)
	if v, err := strconv.Atoi(strings.TrimSpace(parts[0])); err == nil {
		n = int32(v)
	}
	if len(parts) == 2 {
		if v, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil {
			max = int32(v)
		}
	}
	return n, max
}

func joinSlashedNumber(n, max int32) string {
	if max > 0 {
		return fmt.Sprintf("%d/%d", n, max)
	}
	return strconv.Itoa(int(n))
}

// parseID3Date reconstructs a release date from the ID3v2.3 TYER (year)
// and TDAT (DDMM) text frames. Both present and parseable yields a date;
// both absent yields nil; any other combination is an error.
func parseID3Date(path, year, date string) (*time.Time, error) {
	if year == "" && date == "" {
		return nil, nil
	}
	if year == "" || date == "" || len(date) != 4 {
		return nil, &InvalidReleaseDate{Path: path, Year: year, Date: date}
	}
	y, err := strconv.Atoi(strings.TrimSpace(year))
	if err != nil {
		return nil, &InvalidReleaseDate{Path: path, Year: year, Date: date}
	}
	day, err := strconv.Atoi(date[0:2])
	if err != nil {
		return nil, &InvalidReleaseDate{Path: path, Year: year, Date: date}
	}
	month, err := strconv.Atoi(date[2:4])
	if err != nil {
		return nil, &InvalidReleaseDate{Path: path, Year: year, Date: date}
	}
	t := time.Date(y, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || int(t.Month()) != month || t.Day() != day {
		return nil, &InvalidReleaseDate{Path: path, Year: year, Date: date}
	}
	return &t, nil
}

func joinComments(frames []id3v2.Framer) string {
	var parts []string
	for _, f := range frames {
		cf, ok := f.(id3v2.CommentFrame)
		if !ok {
			continue
		}
		parts = append(parts, strings.TrimRight(cf.Text, "\x00"))
	}
	return strings.Join(parts, "\n")
}

// mp3FrameWalkDuration walks MPEG audio frames starting after the ID3v2
// header (tagSize bytes) and sums each frame's playback duration from its
// header-derived bitrate and sample rate.
func mp3FrameWalkDuration(path string, tagSize int) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, &FileReadError{Path: path, Err: err}
	}

	pos := tagSize
	var totalMs float64
	for pos+4 <= len(data) {
		hdr := data[pos : pos+4]
		if hdr[0] != 0xFF || hdr[1]&0xE0 != 0xE0 {
			pos++
			continue
		}
		frame, ok := parseMP3FrameHeader(hdr)
		if !ok || frame.frameSize <= 0 {
			pos++
			continue
		}
		totalMs += float64(frame.samplesPerFrame) * 1000.0 / float64(frame.sampleRate)
		pos += frame.frameSize
	}
	return int64(totalMs + 0.5), nil
}

type mp3FrameInfo struct {
	sampleRate      int
	samplesPerFrame int
	frameSize       int
}

var mp3BitrateTableV1L3 = [16]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}
var mp3BitrateTableV2L3 = [16]int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0}
var mp3SampleRateTableV1 = [4]int{44100, 48000, 32000, 0}
var mp3SampleRateTableV2 = [4]int{22050, 24000, 16000, 0}

// parseMP3FrameHeader decodes the subset of the MPEG audio frame header
// needed to advance past one frame: version, layer, bitrate, sample rate,
// and padding. Only Layer III (the overwhelmingly common case for .mp3
// files) is handled; other layers are reported as non-frames by the
// caller's resync loop.
func parseMP3FrameHeader(hdr []byte) (mp3FrameInfo, bool) {
	versionBits := (hdr[1] >> 3) & 0x03
	layerBits := (hdr[1] >> 1) & 0x03
	if layerBits != 0x01 { // Layer III
		return mp3FrameInfo{}, false
	}
	bitrateIdx := (hdr[2] >> 4) & 0x0F
	sampleRateIdx := (hdr[2] >> 2) & 0x03
	padding := int((hdr[2] >> 1) & 0x01)

	var sampleRate, bitrate, samplesPerFrame int
	switch versionBits {
	case 0x03: // MPEG 1
		sampleRate = mp3SampleRateTableV1[sampleRateIdx]
		bitrate = mp3BitrateTableV1L3[bitrateIdx]
		samplesPerFrame = 1152
	case 0x02, 0x00: // MPEG 2 / 2.5
		sampleRate = mp3SampleRateTableV2[sampleRateIdx]
		bitrate = mp3BitrateTableV2L3[bitrateIdx]
		samplesPerFrame = 576
	default:
		return mp3FrameInfo{}, false
	}
	if sampleRate == 0 || bitrate == 0 {
		return mp3FrameInfo{}, false
	}
	frameSize := (samplesPerFrame/8)*bitrate*1000/sampleRate + padding
	return mp3FrameInfo{sampleRate: sampleRate, samplesPerFrame: samplesPerFrame, frameSize: frameSize}, true
}

// FileReadError wraps a file I/O failure raised anywhere in the codec
// package (MP3 frame walk, M4A open/tag/duration reads, .lrc sidecar
// read/write/remove) together with the path involved.
type FileReadError struct {
	Path string
	Err  error
}

func (e *FileReadError) Error() string {
	return fmt.Sprintf("codec: %s: %v", e.Path, e.Err)
}

func (e *FileReadError) Unwrap() error { return e.Err }
