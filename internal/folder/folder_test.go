package folder

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/trisync/trisync/internal/config"
	"github.com/trisync/trisync/internal/libpath"
	"github.com/trisync/trisync/internal/store"
)

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "trisync.db")
	db, err := store.Open(context.Background(), config.DatabaseConfig{Driver: "sqlite", DSN: dbPath})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRegisterNotExistsCreatesAncestorChain(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()

	dir, _ := libpath.NewDirectoryPath("Artist/Album")
	id, err := RegisterNotExists(ctx, tx, dir)
	if err != nil {
		t.Fatalf("RegisterNotExists: %v", err)
	}

	album, err := ByID(ctx, tx, id)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if album.Name != "Album" {
		t.Errorf("Name = %q, want Album", album.Name)
	}
	if !album.ParentID.Valid {
		t.Fatal("expected a parent id")
	}

	parent, err := ByID(ctx, tx, album.ParentID.Int64)
	if err != nil {
		t.Fatalf("ByID parent: %v", err)
	}
	if parent.Name != "Artist" {
		t.Errorf("parent Name = %q, want Artist", parent.Name)
	}
	if parent.ParentID.Valid {
		t.Error("expected top-level folder to have no parent")
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestRegisterNotExistsIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tx, _ := db.BeginTx(ctx, nil)
	defer tx.Rollback()

	dir, _ := libpath.NewDirectoryPath("Artist/Album")
	id1, err := RegisterNotExists(ctx, tx, dir)
	if err != nil {
		t.Fatalf("first register: %v", err)
	}
	id2, err := RegisterNotExists(ctx, tx, dir)
	if err != nil {
		t.Fatalf("second register: %v", err)
	}
	if id1 != id2 {
		t.Errorf("ids differ: %d vs %d", id1, id2)
	}
}

func TestDeleteIfEmptyRecursesUpward(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tx, _ := db.BeginTx(ctx, nil)
	defer tx.Rollback()

	dir, _ := libpath.NewDirectoryPath("a/b")
	if _, err := RegisterNotExists(ctx, tx, dir); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := DeleteIfEmpty(ctx, tx, dir); err != nil {
		t.Fatalf("DeleteIfEmpty: %v", err)
	}

	bRow, err := findByPath(ctx, tx, "a/b/")
	if err != nil {
		t.Fatalf("findByPath b: %v", err)
	}
	if bRow != nil {
		t.Error("expected a/b/ to be deleted")
	}
	topRow, err := findByPath(ctx, tx, "a/")
	if err != nil {
		t.Fatalf("findByPath a: %v", err)
	}
	if topRow != nil {
		t.Error("expected a/ to be deleted too, since it has no remaining children")
	}
}

func TestDeleteIfEmptyKeepsNonEmptyFolder(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tx, _ := db.BeginTx(ctx, nil)
	defer tx.Rollback()

	dir, _ := libpath.NewDirectoryPath("a/b")
	id, err := RegisterNotExists(ctx, tx, dir)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO tracks (path, folder_id, duration, created_at) VALUES (?, ?, 0, datetime('now'))`,
		"a/b/track.flac", id); err != nil {
		t.Fatalf("insert track: %v", err)
	}

	if err := DeleteIfEmpty(ctx, tx, dir); err != nil {
		t.Fatalf("DeleteIfEmpty: %v", err)
	}

	row, err := findByPath(ctx, tx, "a/b/")
	if err != nil {
		t.Fatalf("findByPath: %v", err)
	}
	if row == nil {
		t.Error("expected a/b/ to survive while it has a track")
	}
}
