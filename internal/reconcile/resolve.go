package reconcile

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/trisync/trisync/internal/artwork"
	"github.com/trisync/trisync/internal/codec"
	"github.com/trisync/trisync/internal/folder"
	"github.com/trisync/trisync/internal/prompt"
	"github.com/trisync/trisync/internal/track"
)

// Outcome is what one resolve phase decided to do with the current track.
type Outcome int

const (
	Continue Outcome = iota
	Skip
	Terminate
)

// Resolver holds the dependencies the resolve phases need to read and
// write both filesystem trees and B.
type Resolver struct {
	PCRoot  string
	DapRoot string
	Artwork *artwork.Store
	Prompt  prompt.Prompter
	Now     func() time.Time
}

// Resolve runs all three phases for one summary inside tx, returning the
// phase outcome. Continue means the track ended the run in a consistent
// state (or the user accepted that divergence); Skip/Terminate propagate
// the user's choice to the caller's loop.
func (r *Resolver) Resolve(ctx context.Context, tx *sql.Tx, s Summary) (Outcome, error) {
	out, err := r.resolveExistence(ctx, tx, &s)
	if out != Continue || err != nil {
		return out, err
	}
	if !s.PcExists || !s.DbExists || !s.DapExists {
		return Continue, nil
	}

	out, err = r.resolveDataEquality(ctx, tx, &s)
	if out != Continue || err != nil {
		return out, err
	}

	return r.resolveContent(ctx, tx, &s)
}

func existsKey(pc, db, dap bool) string {
	b := func(v bool) string {
		if v {
			return "1"
		}
		return "0"
	}
	return b(pc) + b(db) + b(dap)
}

// resolveExistence implements Phase 1 of the state machine: the six
// incomplete-existence combinations, each offering its own operations
// plus Skip/Terminate.
func (r *Resolver) resolveExistence(ctx context.Context, tx *sql.Tx, s *Summary) (Outcome, error) {
	if s.PcExists && s.DbExists && s.DapExists {
		return Continue, nil
	}

	switch existsKey(s.PcExists, s.DbExists, s.DapExists) {
	case "110": // P, B; not D
		return r.ask1(ctx, tx, s, "track exists in library and database but not on device",
			map[rune]func() error{'c': func() error { return r.copyPToD(s) }})

	case "101": // P, D; not B
		return r.ask1(ctx, tx, s, "track exists in library and device but not database",
			map[rune]func() error{
				'r': func() error { return r.registerBFromP(ctx, tx, s) },
				'd': func() error { return r.deleteFromPAndD(s) },
			})

	case "100": // P only
		return r.ask1(ctx, tx, s, "track exists only in library",
			map[rune]func() error{
				'r': func() error {
					if err := r.registerBFromP(ctx, tx, s); err != nil {
						return err
					}
					return r.copyPToD(s)
				},
				'd': func() error { return os.Remove(s.Path.Abs(r.PCRoot)) },
			})

	case "011": // B, D; not P
		return r.ask1(ctx, tx, s, "track exists in database and device but not library",
			map[rune]func() error{
				'c': func() error { return r.copyDToP(ctx, tx, s) },
				'd': func() error { return r.deleteFromBAndD(ctx, tx, s) },
			})

	case "010": // B only
		return r.ask1(ctx, tx, s, "track exists only in database",
			map[rune]func() error{'d': func() error { return r.deleteFromB(ctx, tx, s) }})

	case "001": // D only
		return r.ask1(ctx, tx, s, "track exists only on device",
			map[rune]func() error{
				'c': func() error {
					if err := r.copyDToP(ctx, tx, s); err != nil {
						return err
					}
					return r.registerBFromP(ctx, tx, s)
				},
				'd': func() error { return os.Remove(s.Path.Abs(r.DapRoot)) },
			})

	default: // 000: path was enumerated from a source that has since vanished
		return Continue, nil
	}
}

// ask1 prompts with the given action letters plus 's' (skip) and '-'
// (terminate), runs the chosen action, and maps the result to an Outcome.
func (r *Resolver) ask1(ctx context.Context, tx *sql.Tx, s *Summary, desc string, actions map[rune]func() error) (Outcome, error) {
	allowed := make([]rune, 0, len(actions)+2)
	for k := range actions {
		allowed = append(allowed, k)
	}
	allowed = append(allowed, 's', '-')

	resp, err := r.Prompt.Ask(fmt.Sprintf("%s: %s", s.Path.String(), desc), allowed)
	if err == prompt.ErrTerminate {
		return Terminate, nil
	}
	if err != nil {
		return Continue, err
	}
	if resp == 's' {
		return Skip, nil
	}
	action, ok := actions[resp]
	if !ok {
		return Continue, fmt.Errorf("reconcile: unhandled response %q", resp)
	}
	if err := action(); err != nil {
		return Continue, err
	}
	return r.refreshExistence(ctx, tx, s)
}

func (r *Resolver) refreshExistence(ctx context.Context, tx *sql.Tx, s *Summary) (Outcome, error) {
	refreshed, err := Classify(ctx, tx, r.PCRoot, r.DapRoot, s.Path, true)
	if err != nil {
		return Continue, err
	}
	*s = refreshed
	return r.resolveExistence(ctx, tx, s)
}

func (r *Resolver) copyPToD(s *Summary) error {
	return copyFile(s.Path.Abs(r.PCRoot), s.Path.Abs(r.DapRoot))
}

func (r *Resolver) copyDToP(ctx context.Context, tx *sql.Tx, s *Summary) error {
	return copyFile(s.Path.Abs(r.DapRoot), s.Path.Abs(r.PCRoot))
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("reconcile: read %s: %w", src, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("reconcile: mkdir for %s: %w", dst, err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("reconcile: write %s: %w", dst, err)
	}
	return nil
}

// registerBFromP reads P's metadata and inserts a fresh track row, wiring
// its folder and artwork.
func (r *Resolver) registerBFromP(ctx context.Context, tx *sql.Tx, s *Summary) error {
	abs := s.Path.Abs(r.PCRoot)
	meta, err := codec.Read(abs)
	if err != nil {
		return err
	}
	lyrics, err := codec.ReadLyrics(abs)
	if err != nil {
		return err
	}

	var folderID sql.NullInt64
	if dir, ok := s.Path.Parent(); ok {
		id, err := folder.RegisterNotExists(ctx, tx, dir)
		if err != nil {
			return err
		}
		folderID = sql.NullInt64{Int64: id, Valid: true}
	}

	sync := syncFromMeta(meta, lyrics)
	id, err := track.Insert(ctx, tx, s.Path, folderID, sync, r.now())
	if err != nil {
		return err
	}
	return r.Artwork.RegisterTrackArtworks(ctx, tx, id, artworkImages(meta.Artworks))
}

func (r *Resolver) deleteFromPAndD(s *Summary) error {
	if err := os.Remove(s.Path.Abs(r.PCRoot)); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(s.Path.Abs(r.DapRoot)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (r *Resolver) deleteFromBAndD(ctx context.Context, tx *sql.Tx, s *Summary) error {
	if err := r.deleteFromB(ctx, tx, s); err != nil {
		return err
	}
	if err := os.Remove(s.Path.Abs(r.DapRoot)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (r *Resolver) deleteFromB(ctx context.Context, tx *sql.Tx, s *Summary) error {
	if s.DbTrack == nil {
		return nil
	}
	if err := r.Artwork.UnregisterTrackArtworks(ctx, tx, s.DbTrack.ID); err != nil {
		return err
	}
	if err := track.Delete(ctx, tx, s.DbTrack.ID); err != nil {
		return err
	}
	if dir, ok := s.Path.Parent(); ok {
		if err := folder.DeleteIfEmpty(ctx, tx, dir); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

func syncFromMeta(m *codec.AudioMetaData, lyrics string) track.Sync {
	return track.Sync{
		Title:       m.Title,
		Artist:      m.Artist,
		Album:       m.Album,
		Genre:       m.Genre,
		AlbumArtist: m.AlbumArtist,
		Composer:    m.Composer,
		TrackNumber: m.TrackNumber,
		TrackMax:    m.TrackMax,
		DiscNumber:  m.DiscNumber,
		DiscMax:     m.DiscMax,
		ReleaseDate: m.ReleaseDate,
		Memo:        m.Memo,
		Duration:    m.DurationMs,
		Lyrics:      lyrics,
	}
}

func artworkImages(pics []codec.Picture) []artwork.Image {
	out := make([]artwork.Image, len(pics))
	for i, p := range pics {
		out[i] = artwork.Image{Data: p.Data, MimeType: p.MimeType, PictureType: p.PictureType, Description: p.Description}
	}
	return out
}

// resolveDataEquality implements Phase 2: editable-field, artwork, and
// duration divergence between P and B, each offered in turn.
func (r *Resolver) resolveDataEquality(ctx context.Context, tx *sql.Tx, s *Summary) (Outcome, error) {
	if hasIssue(s.Issues, PcDbNotEqualsEditable) {
		out, err := r.resolveEditable(ctx, tx, s)
		if out != Continue || err != nil {
			return out, err
		}
	}
	if hasIssue(s.Issues, PcDbNotEqualsArtwork) {
		out, err := r.resolveArtworkDivergence(ctx, tx, s)
		if out != Continue || err != nil {
			return out, err
		}
	}
	if hasIssue(s.Issues, PcDbNotEqualsDuration) {
		out, err := r.resolveDurationDivergence(ctx, tx, s)
		if out != Continue || err != nil {
			return out, err
		}
	}
	return Continue, nil
}

func hasIssue(issues []Issue, kind IssueKind) bool {
	for _, i := range issues {
		if i.Kind == kind {
			return true
		}
	}
	return false
}

func (r *Resolver) resolveEditable(ctx context.Context, tx *sql.Tx, s *Summary) (Outcome, error) {
	resp, err := r.Prompt.Ask(
		fmt.Sprintf("%s: editable fields differ between library and database", s.Path.String()),
		[]rune{'p', 'b', 'f', 's', '-'})
	if err == prompt.ErrTerminate {
		return Terminate, nil
	}
	if err != nil {
		return Continue, err
	}
	switch resp {
	case 's':
		return Skip, nil
	case 'p':
		sync := syncFromMeta(s.PcMeta, s.PcLyrics)
		if err := track.UpdateEditable(ctx, tx, s.DbTrack.ID, sync); err != nil {
			return Continue, err
		}
		return Continue, nil
	case 'b':
		meta := metaFromTrack(s.DbTrack)
		if err := codec.Write(s.Path.Abs(r.PCRoot), meta); err != nil {
			return Continue, err
		}
		if err := codec.WriteLyrics(s.Path.Abs(r.PCRoot), s.DbTrack.Lyrics); err != nil {
			return Continue, err
		}
		return Continue, r.copyPToD(s)
	case 'f':
		return r.resolveEditableByField(ctx, tx, s)
	default:
		return Continue, fmt.Errorf("reconcile: unhandled response %q", resp)
	}
}

// editableFieldDiff is one diverging editable field between P and B: applyP
// pulls P's value into a Sync bound for the database, applyB pushes B's
// value into a file-side AudioMetaData (and lyrics string) bound for P.
type editableFieldDiff struct {
	name   string
	applyP func(sync *track.Sync)
	applyB func(meta *codec.AudioMetaData, lyrics *string)
}

// diffEditableFields reports which of the thirteen editable fields
// (editableFieldsEqual's fields, broken out individually) currently
// diverge between P's metadata and B's track row.
func diffEditableFields(m *codec.AudioMetaData, pcLyrics string, t *track.Track) []editableFieldDiff {
	var diffs []editableFieldDiff
	add := func(name string, applyP func(sync *track.Sync), applyB func(meta *codec.AudioMetaData, lyrics *string)) {
		diffs = append(diffs, editableFieldDiff{name: name, applyP: applyP, applyB: applyB})
	}

	if m.Title != t.Title {
		add("title",
			func(sync *track.Sync) { sync.Title = m.Title },
			func(meta *codec.AudioMetaData, lyrics *string) { meta.Title = t.Title })
	}
	if m.Artist != t.Artist {
		add("artist",
			func(sync *track.Sync) { sync.Artist = m.Artist },
			func(meta *codec.AudioMetaData, lyrics *string) { meta.Artist = t.Artist })
	}
	if m.Album != t.Album {
		add("album",
			func(sync *track.Sync) { sync.Album = m.Album },
			func(meta *codec.AudioMetaData, lyrics *string) { meta.Album = t.Album })
	}
	if m.Genre != t.Genre {
		add("genre",
			func(sync *track.Sync) { sync.Genre = m.Genre },
			func(meta *codec.AudioMetaData, lyrics *string) { meta.Genre = t.Genre })
	}
	if m.AlbumArtist != t.AlbumArtist {
		add("album artist",
			func(sync *track.Sync) { sync.AlbumArtist = m.AlbumArtist },
			func(meta *codec.AudioMetaData, lyrics *string) { meta.AlbumArtist = t.AlbumArtist })
	}
	if m.Composer != t.Composer {
		add("composer",
			func(sync *track.Sync) { sync.Composer = m.Composer },
			func(meta *codec.AudioMetaData, lyrics *string) { meta.Composer = t.Composer })
	}
	if m.Memo != t.Memo {
		add("memo",
			func(sync *track.Sync) { sync.Memo = m.Memo },
			func(meta *codec.AudioMetaData, lyrics *string) { meta.Memo = t.Memo })
	}
	if m.TrackNumber != t.TrackNumber {
		add("track number",
			func(sync *track.Sync) { sync.TrackNumber = m.TrackNumber },
			func(meta *codec.AudioMetaData, lyrics *string) { meta.TrackNumber = t.TrackNumber })
	}
	if m.TrackMax != t.TrackMax {
		add("track max",
			func(sync *track.Sync) { sync.TrackMax = m.TrackMax },
			func(meta *codec.AudioMetaData, lyrics *string) { meta.TrackMax = t.TrackMax })
	}
	if m.DiscNumber != t.DiscNumber {
		add("disc number",
			func(sync *track.Sync) { sync.DiscNumber = m.DiscNumber },
			func(meta *codec.AudioMetaData, lyrics *string) { meta.DiscNumber = t.DiscNumber })
	}
	if m.DiscMax != t.DiscMax {
		add("disc max",
			func(sync *track.Sync) { sync.DiscMax = m.DiscMax },
			func(meta *codec.AudioMetaData, lyrics *string) { meta.DiscMax = t.DiscMax })
	}
	if !datesEqual(m.ReleaseDate, t.ReleaseDate) {
		add("release date",
			func(sync *track.Sync) { sync.ReleaseDate = m.ReleaseDate },
			func(meta *codec.AudioMetaData, lyrics *string) { meta.ReleaseDate = t.ReleaseDate })
	}
	if pcLyrics != t.Lyrics {
		add("lyrics",
			func(sync *track.Sync) { sync.Lyrics = pcLyrics },
			func(meta *codec.AudioMetaData, lyrics *string) { *lyrics = t.Lyrics })
	}
	return diffs
}

// resolveEditableByField walks each diverging field in turn, offering a
// per-field P/B/Skip/Terminate choice. sync starts as B's current row and
// meta/lyrics start as P's current file so that any field left at 's'
// (skip) stays genuinely divergent rather than being silently pulled
// toward whichever side happened to seed the baseline.
func (r *Resolver) resolveEditableByField(ctx context.Context, tx *sql.Tx, s *Summary) (Outcome, error) {
	diffs := diffEditableFields(s.PcMeta, s.PcLyrics, s.DbTrack)

	sync := syncFromMeta(metaFromTrack(s.DbTrack), s.DbTrack.Lyrics)
	meta := *s.PcMeta
	lyrics := s.PcLyrics
	fileChanged := false

	for _, d := range diffs {
		resp, err := r.Prompt.Ask(
			fmt.Sprintf("%s: field %q differs between library and database", s.Path.String(), d.name),
			[]rune{'p', 'b', 's', '-'})
		if err == prompt.ErrTerminate {
			return Terminate, nil
		}
		if err != nil {
			return Continue, err
		}
		switch resp {
		case 's':
			// leave this field untouched on both sides; it stays divergent.
		case 'p':
			d.applyP(&sync)
		case 'b':
			d.applyB(&meta, &lyrics)
			fileChanged = true
		default:
			return Continue, fmt.Errorf("reconcile: unhandled response %q", resp)
		}
	}

	if err := track.UpdateEditable(ctx, tx, s.DbTrack.ID, sync); err != nil {
		return Continue, err
	}
	if !fileChanged {
		return Continue, nil
	}
	if err := codec.Write(s.Path.Abs(r.PCRoot), &meta); err != nil {
		return Continue, err
	}
	if err := codec.WriteLyrics(s.Path.Abs(r.PCRoot), lyrics); err != nil {
		return Continue, err
	}
	return Continue, r.copyPToD(s)
}

func metaFromTrack(t *track.Track) *codec.AudioMetaData {
	return &codec.AudioMetaData{
		DurationMs:  t.Duration,
		Title:       t.Title,
		Artist:      t.Artist,
		Album:       t.Album,
		Genre:       t.Genre,
		AlbumArtist: t.AlbumArtist,
		Composer:    t.Composer,
		Memo:        t.Memo,
		TrackNumber: t.TrackNumber,
		TrackMax:    t.TrackMax,
		DiscNumber:  t.DiscNumber,
		DiscMax:     t.DiscMax,
		ReleaseDate: t.ReleaseDate,
	}
}

func (r *Resolver) resolveArtworkDivergence(ctx context.Context, tx *sql.Tx, s *Summary) (Outcome, error) {
	resp, err := r.Prompt.Ask(
		fmt.Sprintf("%s: artwork differs between library and database", s.Path.String()),
		[]rune{'p', 'b', 's', '-'})
	if err == prompt.ErrTerminate {
		return Terminate, nil
	}
	if err != nil {
		return Continue, err
	}
	switch resp {
	case 's':
		return Skip, nil
	case 'p':
		return Continue, r.Artwork.RegisterTrackArtworks(ctx, tx, s.DbTrack.ID, artworkImages(s.PcMeta.Artworks))
	case 'b':
		meta := metaFromTrack(s.DbTrack)
		meta.Artworks = picturesFromDB(s.DbArtworks)
		if err := codec.Write(s.Path.Abs(r.PCRoot), meta); err != nil {
			return Continue, err
		}
		return Continue, r.copyPToD(s)
	default:
		return Continue, fmt.Errorf("reconcile: unhandled response %q", resp)
	}
}

func picturesFromDB(artworks []track.Artwork) []codec.Picture {
	out := make([]codec.Picture, len(artworks))
	for i, a := range artworks {
		out[i] = codec.Picture{MimeType: a.MimeType, PictureType: a.PictureType, Description: a.Description, Data: a.Data}
	}
	return out
}

func (r *Resolver) resolveDurationDivergence(ctx context.Context, tx *sql.Tx, s *Summary) (Outcome, error) {
	resp, err := r.Prompt.Ask(
		fmt.Sprintf("%s: duration differs between library and database (library is authoritative)", s.Path.String()),
		[]rune{'p', 's', '-'})
	if err == prompt.ErrTerminate {
		return Terminate, nil
	}
	if err != nil {
		return Continue, err
	}
	switch resp {
	case 's':
		return Skip, nil
	case 'p':
		return Continue, track.UpdateDuration(ctx, tx, s.DbTrack.ID, s.Path.String(), s.PcMeta.DurationMs)
	default:
		return Continue, fmt.Errorf("reconcile: unhandled response %q", resp)
	}
}

// resolveContent implements Phase 3: P vs D raw byte divergence, offering
// only a destructive P→D overwrite.
func (r *Resolver) resolveContent(ctx context.Context, tx *sql.Tx, s *Summary) (Outcome, error) {
	if !hasIssue(s.Issues, PcDapNotEquals) {
		return Continue, nil
	}
	resp, err := r.Prompt.Ask(
		fmt.Sprintf("%s: library and device copies differ byte-for-byte", s.Path.String()),
		[]rune{'p', 's', '-'})
	if err == prompt.ErrTerminate {
		return Terminate, nil
	}
	if err != nil {
		return Continue, err
	}
	switch resp {
	case 's':
		return Skip, nil
	case 'p':
		return Continue, r.copyPToD(s)
	default:
		return Continue, fmt.Errorf("reconcile: unhandled response %q", resp)
	}
}
