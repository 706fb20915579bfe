package track

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

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

func TestFoldForSortIgnoresCaseAndAccentComposition(t *testing.T) {
	if got, want := FoldForSort("Café"), FoldForSort("CAFÉ"); got != want {
		t.Errorf("FoldForSort(%q) = %q, want %q", "Café", got, want)
	}
	if got := FoldForSort("The Beatles"); got != FoldForSort("the beatles") {
		t.Errorf("case folding failed: %q", got)
	}
}

func TestInsertAndByPath(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()

	path, _ := libpath.NewTrackPath("Artist/Album/01 Song.flac")
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	sync := Sync{
		Title:       "Song",
		Artist:      "Artist",
		Album:       "Album",
		TrackNumber: 1,
		TrackMax:    10,
		Duration:    180000,
	}

	id, err := Insert(ctx, tx, path, sql.NullInt64{}, sync, now)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := ByPath(ctx, tx, path.String())
	if err != nil {
		t.Fatalf("ByPath: %v", err)
	}
	if got == nil {
		t.Fatal("expected a row")
	}
	if got.ID != id {
		t.Errorf("ID = %d, want %d", got.ID, id)
	}
	if got.Title != "Song" || got.Artist != "Artist" {
		t.Errorf("unexpected fields: %+v", got)
	}
	if got.Duration != 180000 {
		t.Errorf("Duration = %d, want 180000", got.Duration)
	}
}

func TestInsertRejectsDurationOverflow(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	tx, _ := db.BeginTx(ctx, nil)
	defer tx.Rollback()

	path, _ := libpath.NewTrackPath("a.flac")
	sync := Sync{Duration: int64(maxInt32) + 1}
	if _, err := Insert(ctx, tx, path, sql.NullInt64{}, sync, time.Now().UTC()); err == nil {
		t.Fatal("expected DurationOverflow error")
	}
}

func TestUpdateEditableRefreshesOrderColumns(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	tx, _ := db.BeginTx(ctx, nil)
	defer tx.Rollback()

	path, _ := libpath.NewTrackPath("a.flac")
	id, err := Insert(ctx, tx, path, sql.NullInt64{}, Sync{Title: "Old"}, time.Now().UTC())
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := UpdateEditable(ctx, tx, id, Sync{Title: "New"}); err != nil {
		t.Fatalf("UpdateEditable: %v", err)
	}

	var titleOrder string
	if err := tx.QueryRowContext(ctx, `SELECT title_order FROM tracks WHERE id = ?`, id).Scan(&titleOrder); err != nil {
		t.Fatalf("query title_order: %v", err)
	}
	if titleOrder != FoldForSort("New") {
		t.Errorf("title_order = %q, want %q", titleOrder, FoldForSort("New"))
	}
}

func TestDeleteRemovesRow(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	tx, _ := db.BeginTx(ctx, nil)
	defer tx.Rollback()

	path, _ := libpath.NewTrackPath("a.flac")
	id, err := Insert(ctx, tx, path, sql.NullInt64{}, Sync{}, time.Now().UTC())
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := Delete(ctx, tx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, err := ByPath(ctx, tx, path.String())
	if err != nil {
		t.Fatalf("ByPath: %v", err)
	}
	if got != nil {
		t.Error("expected row to be gone")
	}
}

func TestByIDNotFound(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	tx, _ := db.BeginTx(ctx, nil)
	defer tx.Rollback()

	if _, err := ByID(ctx, tx, 9999); err == nil {
		t.Fatal("expected DbTrackNotFound error")
	}
}
