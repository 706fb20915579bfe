package codec

import (
	"fmt"
	"os"
	"strings"

	mp4tag "github.com/Sorrow446/go-mp4tag"
	"github.com/dhowden/tag"

	mp4 "github.com/abema/go-mp4"
)

// ReadM4A reads iTunes-style atoms via dhowden/tag for the common text and
// picture fields, and walks the movie header box via abema/go-mp4 for the
// millisecond duration dhowden/tag does not expose.
func ReadM4A(path string) (*AudioMetaData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &FileReadError{Path: path, Err: err}
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmtWrap("m4a: read tags", path, err)
	}

	m := &AudioMetaData{
		Title:       meta.Title(),
		Artist:      meta.Artist(),
		Album:       meta.Album(),
		Genre:       meta.Genre(),
		AlbumArtist: meta.AlbumArtist(),
		Composer:    meta.Composer(),
		Memo:        meta.Comment(),
	}
	trackNum, trackMax := meta.Track()
	m.TrackNumber, m.TrackMax = int32(trackNum), int32(trackMax)
	discNum, discMax := meta.Disc()
	m.DiscNumber, m.DiscMax = int32(discNum), int32(discMax)

	// meta.Year() truncates the ©day atom to its first four digits; Raw()
	// exposes the full string dhowden/tag decoded it from, so a write of a
	// complete YYYY-MM-DD round-trips instead of collapsing to YYYY-01-01.
	if raw, ok := meta.Raw()["year"].(string); ok && raw != "" {
		d, err := parseDateOnly(raw)
		if err != nil {
			return nil, &FailedToParseDate{Key: "©day", Value: raw}
		}
		m.ReleaseDate = &d
	}

	if pic := meta.Picture(); pic != nil {
		m.Artworks = append(m.Artworks, Picture{
			MimeType:    pic.MIMEType,
			PictureType: 3, // CoverFront; M4A atoms carry no picture_type.
			Description: "",
			Data:        pic.Data,
		})
	}

	durationMs, err := m4aAtomDuration(path)
	if err != nil {
		return nil, err
	}
	m.DurationMs = durationMs

	return m, nil
}

// WriteM4A writes m's fields back into path's MP4 atoms via go-mp4tag.
func WriteM4A(path string, m *AudioMetaData) error {
	if m.TrackNumber == 0 && m.TrackMax != 0 {
		return &M4ANumberZero{Field: "track_number"}
	}
	if m.DiscNumber == 0 && m.DiscMax != 0 {
		return &M4ANumberZero{Field: "disc_number"}
	}

	mp4File, err := mp4tag.Open(path)
	if err != nil {
		return fmtWrap("m4a: open", path, err)
	}
	defer mp4File.Close()

	tags := &mp4tag.MP4Tags{
		Title:       m.Title,
		Artist:      m.Artist,
		Album:       m.Album,
		Genre:       m.Genre,
		AlbumArtist: m.AlbumArtist,
		Composer:    m.Composer,
		Comment:     m.Memo,
	}
	if m.TrackNumber != 0 {
		tags.TrackNumber = int(m.TrackNumber)
		tags.TrackTotal = int(m.TrackMax)
	}
	if m.DiscNumber != 0 {
		tags.DiscNumber = int(m.DiscNumber)
		tags.DiscTotal = int(m.DiscMax)
	}
	if m.ReleaseDate != nil {
		tags.Date = dateOnly(*m.ReleaseDate)
	}

	if len(m.Artworks) > 0 {
		art := m.Artworks[0]
		coverType, err := m4aCoverType(art.MimeType)
		if err != nil {
			return err
		}
		tags.Cover = art.Data
		tags.CoverType = coverType
	}

	if err := mp4File.Write(tags, []string{}); err != nil {
		return fmtWrap("m4a: write", path, err)
	}
	return nil
}

func m4aCoverType(mimeType string) (mp4tag.ImgType, error) {
	switch strings.ToLower(mimeType) {
	case "image/png":
		return mp4tag.ImagePNG, nil
	case "image/jpeg", "image/jpg":
		return mp4tag.ImageJPEG, nil
	case "image/bmp":
		return mp4tag.ImageBMP, nil
	default:
		return 0, &UnsupportedArtworkFormat{MimeType: mimeType}
	}
}

// m4aAtomDuration walks the moov/mvhd box to compute the movie duration in
// milliseconds. dhowden/tag exposes no duration accessor, so this is the
// one piece of M4A reading that goes directly through abema/go-mp4's box
// walker instead.
func m4aAtomDuration(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, &FileReadError{Path: path, Err: err}
	}
	defer f.Close()

	var durationMs int64
	_, err = mp4.ReadBoxStructure(f, func(h *mp4.ReadHandle) (interface{}, error) {
		if h.BoxInfo.Type.String() == "mvhd" {
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			mvhd, ok := box.(*mp4.Mvhd)
			if !ok {
				return nil, nil
			}
			timescale := uint64(mvhd.Timescale)
			var duration uint64
			if mvhd.GetVersion() == 1 {
				duration = mvhd.DurationV1
			} else {
				duration = uint64(mvhd.DurationV0)
			}
			if timescale > 0 {
				durationMs = int64(duration * 1000 / timescale)
			}
			return nil, nil
		}
		return h.Expand()
	})
	if err != nil {
		return 0, fmtWrap("m4a: read mvhd", path, err)
	}
	return durationMs, nil
}

func fmtWrap(op, path string, err error) error {
	return &FileReadError{Path: path, Err: fmt.Errorf("%s: %w", op, err)}
}
