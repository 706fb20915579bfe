// Package reconcile implements the three-way check/resolve engine: it
// enumerates tracks across the primary filesystem tree (P), a portable
// device tree (D), and the metadata database (B), classifies each path
// against an existence/data-equality lattice, and drives interactive
// resolution to a single consistent state.
package reconcile

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/trisync/trisync/internal/codec"
	"github.com/trisync/trisync/internal/libpath"
	"github.com/trisync/trisync/internal/track"
)

var audioExtensions = map[string]bool{
	".flac": true, ".mp3": true, ".m4a": true,
	".aac": true, ".ogg": true, ".wma": true, ".wav": true,
}

func hasAudioExtension(name string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(name))]
}

// Enumerate unions every audio track path reachable from specifier across
// P, D, and B, ordered by LibraryTrackPath.Compare.
func Enumerate(ctx context.Context, tx *sql.Tx, pcRoot, dapRoot string, specifier libpath.LibPathStr) ([]libpath.LibraryTrackPath, error) {
	isFile, err := specifierIsFile(ctx, tx, pcRoot, dapRoot, specifier)
	if err != nil {
		return nil, err
	}

	seen := map[string]libpath.LibraryTrackPath{}
	add := func(rel string) error {
		if !hasAudioExtension(rel) {
			return nil
		}
		if _, ok := seen[rel]; ok {
			return nil
		}
		p, err := libpath.NewTrackPath(rel)
		if err != nil {
			return err
		}
		seen[rel] = p
		return nil
	}

	if isFile {
		if err := add(specifier.String()); err != nil {
			return nil, err
		}
	} else {
		for _, root := range []string{pcRoot, dapRoot} {
			rels, err := walkAudioFiles(root, specifier.String())
			if err != nil {
				return nil, err
			}
			for _, rel := range rels {
				if err := add(rel); err != nil {
					return nil, err
				}
			}
		}
		dbPaths, err := queryDirectoryPaths(ctx, tx, specifier.String())
		if err != nil {
			return nil, err
		}
		for _, rel := range dbPaths {
			if err := add(rel); err != nil {
				return nil, err
			}
		}
	}

	out := make([]libpath.LibraryTrackPath, 0, len(seen))
	for _, p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out, nil
}

// specifierIsFile decides whether specifier names a single track (true)
// or a directory scope (false), consulting P and D first and falling
// back to an exact-path lookup in B.
func specifierIsFile(ctx context.Context, tx *sql.Tx, pcRoot, dapRoot string, specifier libpath.LibPathStr) (bool, error) {
	for _, root := range []string{pcRoot, dapRoot} {
		kind, err := specifier.ResolveFS(root)
		if err != nil {
			return false, err
		}
		switch kind {
		case libpath.ResolveFile:
			return true, nil
		case libpath.ResolveDirectory:
			return false, nil
		}
	}
	var exists int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM tracks WHERE path = ?`, specifier.String()).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reconcile: probe specifier in db: %w", err)
	}
	return true, nil
}

func walkAudioFiles(root, relDir string) ([]string, error) {
	absDir := filepath.Join(root, filepath.FromSlash(relDir))
	info, err := os.Stat(absDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reconcile: stat %s: %w", absDir, err)
	}
	if !info.IsDir() {
		return nil, nil
	}

	var out []string
	err = filepath.WalkDir(absDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !hasAudioExtension(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile: walk %s: %w", absDir, err)
	}
	return out, nil
}

// queryDirectoryPaths returns every track path in B under relDir, using a
// LIKE prefix with $ escaping %, _, and $ in the prefix itself.
func queryDirectoryPaths(ctx context.Context, tx *sql.Tx, relDir string) ([]string, error) {
	prefix := relDir
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	escaped, needsEscape := likeEscapePrefix(prefix)
	query := `SELECT path FROM tracks WHERE path LIKE ?`
	if needsEscape {
		query += ` ESCAPE '$'`
	}
	rows, err := tx.QueryContext(ctx, query, escaped+"%")
	if err != nil {
		return nil, fmt.Errorf("reconcile: query directory %s: %w", relDir, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("reconcile: scan directory row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func likeEscapePrefix(v string) (string, bool) {
	if !strings.ContainsAny(v, "%_$") {
		return v, false
	}
	var b strings.Builder
	for _, r := range v {
		switch r {
		case '%', '_', '$':
			b.WriteByte('$')
		}
		b.WriteRune(r)
	}
	return b.String(), true
}

// IssueKind names one element of a per-track IssueSummary.
type IssueKind string

const (
	PcNotExists           IssueKind = "pc_not_exists"
	PcReadFailed          IssueKind = "pc_read_failed"
	DbNotExists           IssueKind = "db_not_exists"
	DapNotExists          IssueKind = "dap_not_exists"
	PcDbNotEqualsEditable IssueKind = "pc_db_not_equals_editable"
	PcDbNotEqualsDuration IssueKind = "pc_db_not_equals_duration"
	PcDbNotEqualsArtwork  IssueKind = "pc_db_not_equals_artwork"
	PcDapNotEquals        IssueKind = "pc_dap_not_equals"
)

// Issue is one entry of an IssueSummary; Err is populated only for
// PcReadFailed.
type Issue struct {
	Kind IssueKind
	Err  error
}

// Summary is the per-track classification result, plus the context the
// resolve phases need to act without re-reading everything.
type Summary struct {
	Path       libpath.LibraryTrackPath
	Issues     []Issue
	PcExists   bool
	DbExists   bool
	DapExists  bool
	PcMeta     *codec.AudioMetaData
	PcLyrics   string
	DbTrack    *track.Track
	DbArtworks []track.Artwork
}

// HasIssues reports whether any issue was recorded.
func (s Summary) HasIssues() bool { return len(s.Issues) > 0 }

// Classify produces path's IssueSummary per the decision table: missing
// or unreadable P, missing B, missing D are surfaced first (with D's
// absence short-circuiting further comparison); when all three are
// present, editable fields, duration, artwork, and (unless
// ignoreDapContent) full file bytes are compared.
func Classify(ctx context.Context, tx *sql.Tx, pcRoot, dapRoot string, path libpath.LibraryTrackPath, ignoreDapContent bool) (Summary, error) {
	s := Summary{Path: path}

	pcAbs := path.Abs(pcRoot)
	pcInfo, statErr := os.Stat(pcAbs)
	switch {
	case statErr == nil && !pcInfo.IsDir():
		s.PcExists = true
	case statErr != nil && os.IsNotExist(statErr):
		s.Issues = append(s.Issues, Issue{Kind: PcNotExists})
	case statErr != nil:
		s.Issues = append(s.Issues, Issue{Kind: PcReadFailed, Err: statErr})
		return s, nil
	}

	if s.PcExists {
		meta, err := codec.Read(pcAbs)
		if err != nil {
			s.Issues = append(s.Issues, Issue{Kind: PcReadFailed, Err: err})
			return s, nil
		}
		lyrics, err := codec.ReadLyrics(pcAbs)
		if err != nil {
			s.Issues = append(s.Issues, Issue{Kind: PcReadFailed, Err: err})
			return s, nil
		}
		s.PcMeta = meta
		s.PcLyrics = lyrics
	}

	dbTrack, err := track.ByPath(ctx, tx, path.String())
	if err != nil {
		return Summary{}, err
	}
	if dbTrack == nil {
		s.Issues = append(s.Issues, Issue{Kind: DbNotExists})
	} else {
		s.DbExists = true
		s.DbTrack = dbTrack
		artworks, err := track.LoadArtworks(ctx, tx, dbTrack.ID)
		if err != nil {
			return Summary{}, err
		}
		s.DbArtworks = artworks
	}

	dapAbs := path.Abs(dapRoot)
	if info, err := os.Stat(dapAbs); err == nil && !info.IsDir() {
		s.DapExists = true
	}
	if !s.DapExists {
		s.Issues = append(s.Issues, Issue{Kind: DapNotExists})
		return s, nil
	}

	if s.PcExists && s.DbExists {
		if !editableFieldsEqual(s.PcMeta, s.PcLyrics, dbTrack) {
			s.Issues = append(s.Issues, Issue{Kind: PcDbNotEqualsEditable})
		}
		if s.PcMeta.DurationMs != dbTrack.Duration {
			s.Issues = append(s.Issues, Issue{Kind: PcDbNotEqualsDuration})
		}
		if !artworksEqual(s.PcMeta.Artworks, s.DbArtworks) {
			s.Issues = append(s.Issues, Issue{Kind: PcDbNotEqualsArtwork})
		}
		if !ignoreDapContent {
			equal, err := filesEqual(pcAbs, dapAbs)
			if err != nil {
				s.Issues = append(s.Issues, Issue{Kind: PcReadFailed, Err: err})
				return s, nil
			}
			if !equal {
				s.Issues = append(s.Issues, Issue{Kind: PcDapNotEquals})
			}
		}
	}

	return s, nil
}

// editableFieldsEqual compares the thirteen editable fields: the twelve
// tag fields plus lyrics.
func editableFieldsEqual(m *codec.AudioMetaData, lyrics string, t *track.Track) bool {
	if m.Title != t.Title || m.Artist != t.Artist || m.Album != t.Album || m.Genre != t.Genre ||
		m.AlbumArtist != t.AlbumArtist || m.Composer != t.Composer || m.Memo != t.Memo {
		return false
	}
	if m.TrackNumber != t.TrackNumber || m.TrackMax != t.TrackMax ||
		m.DiscNumber != t.DiscNumber || m.DiscMax != t.DiscMax {
		return false
	}
	if lyrics != t.Lyrics {
		return false
	}
	return datesEqual(m.ReleaseDate, t.ReleaseDate)
}

func datesEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Format("2006-01-02") == b.Format("2006-01-02")
}

func artworksEqual(pc []codec.Picture, db []track.Artwork) bool {
	if len(pc) != len(db) {
		return false
	}
	for i := range pc {
		if pc[i].MimeType != db[i].MimeType ||
			pc[i].PictureType != db[i].PictureType ||
			pc[i].Description != db[i].Description ||
			!bytes.Equal(pc[i].Data, db[i].Data) {
			return false
		}
	}
	return true
}

func filesEqual(a, b string) (bool, error) {
	ba, err := os.ReadFile(a)
	if err != nil {
		return false, fmt.Errorf("reconcile: read %s: %w", a, err)
	}
	bb, err := os.ReadFile(b)
	if err != nil {
		return false, fmt.Errorf("reconcile: read %s: %w", b, err)
	}
	return bytes.Equal(ba, bb), nil
}
