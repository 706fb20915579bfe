// Package track is the track-sync repository: CRUD against the tracks
// table, folder/artwork wiring for each row, and the six precomputed
// case/script-folded "*_order" columns used for stable sorting.
package track

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/trisync/trisync/internal/artwork"
	"github.com/trisync/trisync/internal/liberr"
	"github.com/trisync/trisync/internal/libpath"
)

// Track is one row of the tracks table; the precomputed *_order sort
// columns are written by Insert/UpdateEditable but not loaded here.
type Track struct {
	ID       int64
	Path     libpath.LibraryTrackPath
	FolderID sql.NullInt64
	Duration int64

	Title       string
	Artist      string
	Album       string
	Genre       string
	AlbumArtist string
	Composer    string

	TrackNumber int32
	TrackMax    int32
	DiscNumber  int32
	DiscMax     int32
	ReleaseDate *time.Time
	Memo        string
	Lyrics      string

	Rating        int
	OriginalTrack string
	SuggestTarget bool
	MemoManage    string

	CreatedAt time.Time
}

// Artwork is one entry of a track's ordered artwork list, joined from
// track_artworks/artworks.
type Artwork struct {
	OrderIndex  int
	Data        []byte
	MimeType    string
	PictureType uint8
	Description string
}

// Sync is the subset of Track fields exchanged with audio files: the
// editable fields plus the ordered artwork list and lyrics, in the shape
// the codec layer produces and consumes.
type Sync struct {
	Title       string
	Artist      string
	Album       string
	Genre       string
	AlbumArtist string
	Composer    string
	TrackNumber int32
	TrackMax    int32
	DiscNumber  int32
	DiscMax     int32
	ReleaseDate *time.Time
	Memo        string
	Duration    int64

	Artworks []artwork.Image
	Lyrics   string
}

var foldCaser = cases.Fold()

// FoldForSort case- and script-folds s for use as a sort key, using Unicode
// NFKD normalization followed by full Unicode case folding so that case
// differences and precomposed vs. decomposed accents do not affect
// ordering. Combining marks stay in the key, so an accented letter still
// sorts apart from its unaccented form.
func FoldForSort(s string) string {
	return foldCaser.String(norm.NFKD.String(s))
}

// maxInt32 bounds the 32-bit signed column that stores duration in B.
const maxInt32 = math.MaxInt32

// Insert creates a new track row for path, computing its sort columns, and
// returns the new id. folderID is supplied by the caller and is the NULL
// (invalid) value for root-level tracks.
func Insert(ctx context.Context, tx *sql.Tx, path libpath.LibraryTrackPath, folderID sql.NullInt64, sync Sync, now time.Time) (int64, error) {
	if sync.Duration > maxInt32 || sync.Duration < 0 {
		return 0, &liberr.DurationOverflow{Path: path.String(), DurationMs: sync.Duration}
	}

	var releaseDate sql.NullString
	if sync.ReleaseDate != nil {
		releaseDate = sql.NullString{String: sync.ReleaseDate.Format("2006-01-02"), Valid: true}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO tracks (
			path, folder_id, duration,
			title, artist, album, genre, album_artist, composer,
			track_number, track_max, disc_number, disc_max,
			release_date, memo, lyrics,
			title_order, artist_order, album_order, album_artist_order, composer_order, genre_order,
			created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		path.String(), folderID, sync.Duration,
		sync.Title, sync.Artist, sync.Album, sync.Genre, sync.AlbumArtist, sync.Composer,
		sync.TrackNumber, sync.TrackMax, sync.DiscNumber, sync.DiscMax,
		releaseDate, sync.Memo, sync.Lyrics,
		FoldForSort(sync.Title), FoldForSort(sync.Artist), FoldForSort(sync.Album),
		FoldForSort(sync.AlbumArtist), FoldForSort(sync.Composer), FoldForSort(sync.Genre),
		now.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("track: insert %s: %w", path.String(), err)
	}
	return res.LastInsertId()
}

// UpdateEditable overwrites the editable fields and lyrics (everything sync
// carries except duration and artwork, which have their own write paths) of
// the track at id.
func UpdateEditable(ctx context.Context, tx *sql.Tx, id int64, sync Sync) error {
	var releaseDate sql.NullString
	if sync.ReleaseDate != nil {
		releaseDate = sql.NullString{String: sync.ReleaseDate.Format("2006-01-02"), Valid: true}
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE tracks SET
			title = ?, artist = ?, album = ?, genre = ?, album_artist = ?, composer = ?,
			track_number = ?, track_max = ?, disc_number = ?, disc_max = ?,
			release_date = ?, memo = ?, lyrics = ?,
			title_order = ?, artist_order = ?, album_order = ?, album_artist_order = ?, composer_order = ?, genre_order = ?
		WHERE id = ?`,
		sync.Title, sync.Artist, sync.Album, sync.Genre, sync.AlbumArtist, sync.Composer,
		sync.TrackNumber, sync.TrackMax, sync.DiscNumber, sync.DiscMax,
		releaseDate, sync.Memo, sync.Lyrics,
		FoldForSort(sync.Title), FoldForSort(sync.Artist), FoldForSort(sync.Album),
		FoldForSort(sync.AlbumArtist), FoldForSort(sync.Composer), FoldForSort(sync.Genre),
		id,
	)
	if err != nil {
		return fmt.Errorf("track: update editable %d: %w", id, err)
	}
	return nil
}

// UpdateDuration overwrites a track's duration only, used when P and B
// disagree and P (the codec-derived value) wins.
func UpdateDuration(ctx context.Context, tx *sql.Tx, id int64, path string, durationMs int64) error {
	if durationMs > maxInt32 || durationMs < 0 {
		return &liberr.DurationOverflow{Path: path, DurationMs: durationMs}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE tracks SET duration = ? WHERE id = ?`, durationMs, id); err != nil {
		return fmt.Errorf("track: update duration %d: %w", id, err)
	}
	return nil
}

// UpdatePathAndFolder moves a track row to a new path and folder, used by
// the move operation.
func UpdatePathAndFolder(ctx context.Context, tx *sql.Tx, id int64, path libpath.LibraryTrackPath, folderID sql.NullInt64) error {
	if _, err := tx.ExecContext(ctx, `UPDATE tracks SET path = ?, folder_id = ? WHERE id = ?`,
		path.String(), folderID, id); err != nil {
		return fmt.Errorf("track: update path %d: %w", id, err)
	}
	return nil
}

// Delete removes the track row at id.
func Delete(ctx context.Context, tx *sql.Tx, id int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM tracks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("track: delete %d: %w", id, err)
	}
	return nil
}

// ByPath loads a track row by its unique path, or nil if absent.
func ByPath(ctx context.Context, tx *sql.Tx, path string) (*Track, error) {
	row := tx.QueryRowContext(ctx, trackSelectColumns+` WHERE path = ?`, path)
	return scanTrack(row)
}

// ByID loads a track row by id.
func ByID(ctx context.Context, tx *sql.Tx, id int64) (*Track, error) {
	row := tx.QueryRowContext(ctx, trackSelectColumns+` WHERE id = ?`, id)
	t, err := scanTrack(row)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, &liberr.DbTrackNotFound{Path: fmt.Sprintf("id=%d", id)}
	}
	return t, nil
}

const trackSelectColumns = `
	SELECT id, path, folder_id, duration,
		title, artist, album, genre, album_artist, composer,
		track_number, track_max, disc_number, disc_max,
		release_date, memo, lyrics,
		rating, original_track, suggest_target, memo_manage, created_at
	FROM tracks`

func scanTrack(row *sql.Row) (*Track, error) {
	var t Track
	var pathStr string
	var releaseDate sql.NullString
	var suggestTarget int
	var createdAt string

	err := row.Scan(
		&t.ID, &pathStr, &t.FolderID, &t.Duration,
		&t.Title, &t.Artist, &t.Album, &t.Genre, &t.AlbumArtist, &t.Composer,
		&t.TrackNumber, &t.TrackMax, &t.DiscNumber, &t.DiscMax,
		&releaseDate, &t.Memo, &t.Lyrics,
		&t.Rating, &t.OriginalTrack, &suggestTarget, &t.MemoManage, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("track: scan: %w", err)
	}

	p, err := libpath.NewTrackPath(pathStr)
	if err != nil {
		return nil, err
	}
	t.Path = p
	t.SuggestTarget = suggestTarget != 0
	if releaseDate.Valid {
		d, err := time.Parse("2006-01-02", releaseDate.String)
		if err != nil {
			return nil, fmt.Errorf("track: parse release_date %q: %w", releaseDate.String, err)
		}
		t.ReleaseDate = &d
	}
	if createdAt != "" {
		ts, err := time.Parse(time.RFC3339, createdAt)
		if err == nil {
			t.CreatedAt = ts
		}
	}
	return &t, nil
}

// LoadArtworks returns trackID's ordered artwork list joined with its
// content-addressed bytes.
func LoadArtworks(ctx context.Context, tx *sql.Tx, trackID int64) ([]Artwork, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT ta.order_index, a.image, a.mime_type, ta.picture_type, ta.description
		FROM track_artworks ta JOIN artworks a ON a.id = ta.artwork_id
		WHERE ta.track_id = ? ORDER BY ta.order_index`, trackID)
	if err != nil {
		return nil, fmt.Errorf("track: load artworks %d: %w", trackID, err)
	}
	defer rows.Close()

	var out []Artwork
	for rows.Next() {
		var a Artwork
		if err := rows.Scan(&a.OrderIndex, &a.Data, &a.MimeType, &a.PictureType, &a.Description); err != nil {
			return nil, fmt.Errorf("track: scan artwork: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
