// Package ops implements the CLI-level operations (add/remove/move/replace/
// check/aw-get/playlist) in terms of the track, folder, artwork, codec,
// reconcile, and playlist packages. Each operation opens its own
// transaction(s), committing or rolling back per unit of work rather than
// wrapping an entire multi-track run in one transaction, matching the
// per-track isolation the command loop is meant to provide.
package ops

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/trisync/trisync/internal/artwork"
	"github.com/trisync/trisync/internal/codec"
	"github.com/trisync/trisync/internal/config"
	"github.com/trisync/trisync/internal/folder"
	"github.com/trisync/trisync/internal/liberr"
	"github.com/trisync/trisync/internal/libpath"
	"github.com/trisync/trisync/internal/playlist"
	"github.com/trisync/trisync/internal/prompt"
	"github.com/trisync/trisync/internal/reconcile"
	"github.com/trisync/trisync/internal/store"
	"github.com/trisync/trisync/internal/track"
)

// Env bundles the dependencies every operation needs.
type Env struct {
	Cfg     *config.Config
	DB      *store.DB
	Artwork *artwork.Store
	Prompt  prompt.Prompter
	Logger  *slog.Logger
}

func (e *Env) pcRoot() string  { return e.Cfg.PCLib }
func (e *Env) dapRoot() string { return e.Cfg.DapLib }

func now() time.Time { return time.Now().UTC() }

func (e *Env) enumerate(ctx context.Context, specifier libpath.LibPathStr) ([]libpath.LibraryTrackPath, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ops: begin enumerate tx: %w", err)
	}
	defer tx.Rollback()
	return reconcile.Enumerate(ctx, tx, e.pcRoot(), e.dapRoot(), specifier)
}

// Add registers every track under specifier that exists in P but not yet in
// B, then ensures a copy exists on D.
func Add(ctx context.Context, e *Env, specifierStr string) error {
	specifier, err := libpath.NewLibPathStr(specifierStr)
	if err != nil {
		return &liberr.InvalidCommandArgument{Msg: err.Error()}
	}
	paths, err := e.enumerate(ctx, specifier)
	if err != nil {
		return err
	}

	for _, p := range paths {
		if err := addOne(ctx, e, p); err != nil {
			e.Logger.Error("add failed", slog.String("path", p.String()), slog.Any("err", err))
		}
	}
	return nil
}

func addOne(ctx context.Context, e *Env, p libpath.LibraryTrackPath) error {
	pcAbs := p.Abs(e.pcRoot())
	if _, err := os.Stat(pcAbs); err != nil {
		if os.IsNotExist(err) {
			e.Logger.Info("add: skipping, not present in library", slog.String("path", p.String()))
			return nil
		}
		return &liberr.FileIoError{Path: pcAbs, Err: err}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ops: begin add tx: %w", err)
	}
	defer tx.Rollback()

	existing, err := track.ByPath(ctx, tx, p.String())
	if err != nil {
		return err
	}
	if existing == nil {
		meta, err := codec.Read(pcAbs)
		if err != nil {
			return err
		}
		lyrics, err := codec.ReadLyrics(pcAbs)
		if err != nil {
			return err
		}

		var folderID sql.NullInt64
		if dir, ok := p.Parent(); ok {
			id, err := folder.RegisterNotExists(ctx, tx, dir)
			if err != nil {
				return err
			}
			folderID = sql.NullInt64{Int64: id, Valid: true}
		}

		id, err := track.Insert(ctx, tx, p, folderID, syncFromMeta(meta, lyrics), now())
		if err != nil {
			return err
		}
		if err := e.Artwork.RegisterTrackArtworks(ctx, tx, id, artworkImages(meta.Artworks)); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ops: commit add %s: %w", p.String(), err)
	}

	return copyFile(pcAbs, p.Abs(e.dapRoot()))
}

// Remove deletes every track under specifier from B, then trashes it on D,
// then trashes it on P. A track missing from any one location is not an
// error.
func Remove(ctx context.Context, e *Env, specifierStr string) error {
	specifier, err := libpath.NewLibPathStr(specifierStr)
	if err != nil {
		return &liberr.InvalidCommandArgument{Msg: err.Error()}
	}
	paths, err := e.enumerate(ctx, specifier)
	if err != nil {
		return err
	}

	for _, p := range paths {
		if err := removeOne(ctx, e, p); err != nil {
			e.Logger.Error("remove failed", slog.String("path", p.String()), slog.Any("err", err))
		}
	}
	return nil
}

func removeOne(ctx context.Context, e *Env, p libpath.LibraryTrackPath) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ops: begin remove tx: %w", err)
	}
	defer tx.Rollback()

	if t, err := track.ByPath(ctx, tx, p.String()); err != nil {
		return err
	} else if t != nil {
		if err := e.Artwork.UnregisterTrackArtworks(ctx, tx, t.ID); err != nil {
			return err
		}
		if err := track.Delete(ctx, tx, t.ID); err != nil {
			return err
		}
		if dir, ok := p.Parent(); ok {
			if err := folder.DeleteIfEmpty(ctx, tx, dir); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ops: commit remove %s: %w", p.String(), err)
	}

	if err := trashFile(e.dapRoot(), p.String()); err != nil {
		return err
	}
	return trashFile(e.pcRoot(), p.String())
}

// Move relocates src to dest across P, D, and B. dest must not already
// exist in any of the three. src may name either a single track or a
// directory of tracks.
func Move(ctx context.Context, e *Env, srcStr, destStr string) error {
	src, err := libpath.NewLibPathStr(srcStr)
	if err != nil {
		return &liberr.InvalidCommandArgument{Msg: err.Error()}
	}
	dest, err := libpath.NewLibPathStr(destStr)
	if err != nil {
		return &liberr.InvalidCommandArgument{Msg: err.Error()}
	}

	paths, err := e.enumerate(ctx, src)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return &liberr.FileTrackNotFound{LibRoot: e.pcRoot(), Path: src.String()}
	}

	isFile := len(paths) == 1 && paths[0].String() == src.String()

	for _, p := range paths {
		var destRel string
		if isFile {
			destRel = dest.String()
		} else {
			suffix := strings.TrimPrefix(p.String(), strings.TrimSuffix(src.String(), "/")+"/")
			destRel = strings.TrimSuffix(dest.String(), "/") + "/" + suffix
		}
		destPath, err := libpath.NewTrackPath(destRel)
		if err != nil {
			return err
		}
		if err := moveOne(ctx, e, p, destPath); err != nil {
			return fmt.Errorf("ops: move %s to %s: %w", p.String(), destRel, err)
		}
	}
	return nil
}

func moveOne(ctx context.Context, e *Env, src, dest libpath.LibraryTrackPath) error {
	if err := checkDestFree(e, dest); err != nil {
		return err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ops: begin move tx: %w", err)
	}
	defer tx.Rollback()

	if existing, err := track.ByPath(ctx, tx, dest.String()); err != nil {
		return err
	} else if existing != nil {
		return &liberr.DbTrackAlreadyExists{Path: dest.String()}
	}

	t, err := track.ByPath(ctx, tx, src.String())
	if err != nil {
		return err
	}

	if err := copyFile(src.Abs(e.pcRoot()), dest.Abs(e.pcRoot())); err != nil {
		return err
	}
	if err := os.Remove(src.Abs(e.pcRoot())); err != nil && !os.IsNotExist(err) {
		return &liberr.FileIoError{Path: src.Abs(e.pcRoot()), Err: err}
	}
	if _, err := os.Stat(src.Abs(e.dapRoot())); err == nil {
		if err := copyFile(src.Abs(e.dapRoot()), dest.Abs(e.dapRoot())); err != nil {
			return err
		}
		if err := os.Remove(src.Abs(e.dapRoot())); err != nil && !os.IsNotExist(err) {
			return &liberr.FileIoError{Path: src.Abs(e.dapRoot()), Err: err}
		}
	}

	if t != nil {
		var folderID sql.NullInt64
		if dir, ok := dest.Parent(); ok {
			id, err := folder.RegisterNotExists(ctx, tx, dir)
			if err != nil {
				return err
			}
			folderID = sql.NullInt64{Int64: id, Valid: true}
		}
		if err := track.UpdatePathAndFolder(ctx, tx, t.ID, dest, folderID); err != nil {
			return err
		}
		if srcDir, ok := src.Parent(); ok {
			if err := folder.DeleteIfEmpty(ctx, tx, srcDir); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ops: commit move: %w", err)
	}
	return nil
}

func checkDestFree(e *Env, dest libpath.LibraryTrackPath) error {
	if _, err := os.Stat(dest.Abs(e.pcRoot())); err == nil {
		return &liberr.FileTrackAlreadyExists{LibRoot: e.pcRoot(), Path: dest.String()}
	}
	if _, err := os.Stat(dest.Abs(e.dapRoot())); err == nil {
		return &liberr.FileTrackAlreadyExists{LibRoot: e.dapRoot(), Path: dest.String()}
	}
	return nil
}

// Replace substitutes tracks under destLibPath whose file stem matches a
// file under newFilesAbsPath, rewriting P's content, B's metadata, and D's
// copy from the new file.
func Replace(ctx context.Context, e *Env, newFilesAbsPath, destLibPathStr string) error {
	destDir, err := libpath.NewDirectoryPath(destLibPathStr)
	if err != nil {
		return &liberr.InvalidCommandArgument{Msg: err.Error()}
	}

	entries, err := os.ReadDir(newFilesAbsPath)
	if err != nil {
		return &liberr.FileIoError{Path: newFilesAbsPath, Err: err}
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		newPath := filepath.Join(newFilesAbsPath, entry.Name())
		stem := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if err := replaceOne(ctx, e, newPath, destDir, stem); err != nil {
			e.Logger.Error("replace failed", slog.String("new_file", newPath), slog.Any("err", err))
		}
	}
	return nil
}

func replaceOne(ctx context.Context, e *Env, newAbsPath string, destDir libpath.LibraryDirectoryPath, stem string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ops: begin replace tx: %w", err)
	}
	defer tx.Rollback()

	var oldPath string
	row := tx.QueryRowContext(ctx,
		`SELECT path FROM tracks WHERE path LIKE ?`, destDir.String()+stem+".%")
	if err := row.Scan(&oldPath); err != nil {
		if err == sql.ErrNoRows {
			return &liberr.DbTrackNotFound{Path: destDir.String() + stem}
		}
		return fmt.Errorf("ops: find replace target: %w", err)
	}

	oldTrackPath, err := libpath.NewTrackPath(oldPath)
	if err != nil {
		return err
	}
	t, err := track.ByPath(ctx, tx, oldPath)
	if err != nil {
		return err
	}

	newTrackPath := oldTrackPath.WithExtension(strings.TrimPrefix(filepath.Ext(newAbsPath), "."))

	if err := copyFile(newAbsPath, newTrackPath.Abs(e.pcRoot())); err != nil {
		return err
	}
	if newTrackPath.String() != oldTrackPath.String() {
		if err := os.Remove(oldTrackPath.Abs(e.pcRoot())); err != nil && !os.IsNotExist(err) {
			return &liberr.FileIoError{Path: oldTrackPath.Abs(e.pcRoot()), Err: err}
		}
	}

	meta, err := codec.Read(newTrackPath.Abs(e.pcRoot()))
	if err != nil {
		return err
	}
	lyrics, err := codec.ReadLyrics(newTrackPath.Abs(e.pcRoot()))
	if err != nil {
		return err
	}

	if err := track.UpdatePathAndFolder(ctx, tx, t.ID, newTrackPath, t.FolderID); err != nil {
		return err
	}
	if err := track.UpdateEditable(ctx, tx, t.ID, syncFromMeta(meta, lyrics)); err != nil {
		return err
	}
	if err := track.UpdateDuration(ctx, tx, t.ID, newTrackPath.String(), meta.DurationMs); err != nil {
		return err
	}
	if err := e.Artwork.RegisterTrackArtworks(ctx, tx, t.ID, artworkImages(meta.Artworks)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ops: commit replace: %w", err)
	}

	if newTrackPath.String() != oldTrackPath.String() {
		if err := os.Remove(oldTrackPath.Abs(e.dapRoot())); err != nil && !os.IsNotExist(err) {
			return &liberr.FileIoError{Path: oldTrackPath.Abs(e.dapRoot()), Err: err}
		}
	}
	return copyFile(newTrackPath.Abs(e.pcRoot()), newTrackPath.Abs(e.dapRoot()))
}

// Check runs the three-way reconcile engine against every track under
// specifier, prompting interactively through e.Prompt for any divergence.
func Check(ctx context.Context, e *Env, specifierStr string, ignoreDapContent bool) error {
	specifier, err := libpath.NewLibPathStr(specifierStr)
	if err != nil {
		return &liberr.InvalidCommandArgument{Msg: err.Error()}
	}
	paths, err := e.enumerate(ctx, specifier)
	if err != nil {
		return err
	}

	resolver := &reconcile.Resolver{
		PCRoot:  e.pcRoot(),
		DapRoot: e.dapRoot(),
		Artwork: e.Artwork,
		Prompt:  e.Prompt,
	}

	for _, p := range paths {
		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("ops: begin check tx: %w", err)
		}

		summary, err := reconcile.Classify(ctx, tx, e.pcRoot(), e.dapRoot(), p, ignoreDapContent)
		if err != nil {
			tx.Rollback()
			e.Logger.Error("classify failed", slog.String("path", p.String()), slog.Any("err", err))
			continue
		}
		if !summary.HasIssues() {
			tx.Rollback()
			continue
		}

		outcome, err := resolver.Resolve(ctx, tx, summary)
		if err != nil {
			tx.Rollback()
			e.Logger.Error("resolve failed", slog.String("path", p.String()), slog.Any("err", err))
			continue
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("ops: commit check %s: %w", p.String(), err)
		}
		if outcome == reconcile.Terminate {
			return nil
		}
	}
	return nil
}

// AWGet extracts trackLibPath's embedded artworks into files adjacent to
// outputBasePath (or trackLibPath's own stem if outputBasePath is empty),
// numbering them "_N" from the second artwork onward.
func AWGet(ctx context.Context, e *Env, trackLibPathStr, outputBasePath string) error {
	p, err := libpath.NewTrackPath(trackLibPathStr)
	if err != nil {
		return &liberr.InvalidCommandArgument{Msg: err.Error()}
	}

	meta, err := codec.Read(p.Abs(e.pcRoot()))
	if err != nil {
		return err
	}

	base := outputBasePath
	if base == "" {
		base = p.Abs(e.pcRoot())
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}

	for i, pic := range meta.Artworks {
		suffix := ""
		if i > 0 {
			suffix = fmt.Sprintf("_%d", i+1)
		}
		outPath := base + suffix + extensionForMime(pic.MimeType)
		if err := os.WriteFile(outPath, pic.Data, 0o644); err != nil {
			return &liberr.FileIoError{Path: outPath, Err: err}
		}
	}
	return nil
}

func extensionForMime(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}

// Playlist runs the export pipeline against the configured D playlist
// directory. When all is true, every save_dap playlist is rewritten
// regardless of dap_changed.
func Playlist(ctx context.Context, e *Env, all bool) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ops: begin playlist tx: %w", err)
	}
	defer tx.Rollback()

	if err := playlist.ValidateForest(ctx, tx); err != nil {
		return err
	}
	if err := playlist.ExportAll(ctx, tx, e.Cfg.DapPlaylists, all); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ops: commit playlist export: %w", err)
	}
	return nil
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

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return &liberr.FileIoError{Path: src, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return &liberr.FileIoError{Path: dst, Err: err}
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return &liberr.FileIoError{Path: dst, Err: err}
	}
	return nil
}

// trashFile moves relPath under root into a root/.trash mirror, leaving it
// recoverable rather than deleting outright. A missing source is not an
// error.
func trashFile(root, relPath string) error {
	src := filepath.Join(root, filepath.FromSlash(relPath))
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &liberr.FileIoError{Path: src, Err: err}
	}
	dst := filepath.Join(root, ".trash", filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return &liberr.FileIoError{Path: dst, Err: err}
	}
	if err := os.Rename(src, dst); err != nil {
		return &liberr.FileIoError{Path: src, Err: err}
	}
	return nil
}
