package playlist

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/trisync/trisync/internal/config"
	"github.com/trisync/trisync/internal/filter"
	"github.com/trisync/trisync/internal/libpath"
	"github.com/trisync/trisync/internal/store"
	"github.com/trisync/trisync/internal/track"
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

func insertTrack(t *testing.T, ctx context.Context, tx *sql.Tx, path, artist string, rating int) int64 {
	t.Helper()
	p, err := libpath.NewTrackPath(path)
	if err != nil {
		t.Fatalf("NewTrackPath: %v", err)
	}
	id, err := track.Insert(ctx, tx, p, sql.NullInt64{}, track.Sync{Artist: artist}, time.Now().UTC())
	if err != nil {
		t.Fatalf("track.Insert: %v", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE tracks SET rating = ? WHERE id = ?`, rating, id); err != nil {
		t.Fatalf("set rating: %v", err)
	}
	return id
}

func insertPlaylist(t *testing.T, ctx context.Context, tx *sql.Tx, typ Type, name string, parent sql.NullInt64, filterJSON sql.NullString, saveDap bool) int64 {
	t.Helper()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO playlists (playlist_type, name, parent_id, in_folder_order, filter_json, sort_type, sort_desc, save_dap, listuped_flag, dap_changed)
		 VALUES (?, ?, ?, 0, ?, 'path', 0, ?, 0, 0)`,
		string(typ), name, parent, filterJSON, saveDap)
	if err != nil {
		t.Fatalf("insert playlist: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

func TestMaterializeNormalPlaylistJustFlagsListuped(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	tx, _ := db.BeginTx(ctx, nil)
	defer tx.Rollback()

	tid := insertTrack(t, ctx, tx, "a.flac", "Artist", 0)
	plID := insertPlaylist(t, ctx, tx, Normal, "My Mix", sql.NullInt64{}, sql.NullString{}, false)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO playlist_tracks (playlist_id, order_index, track_id) VALUES (?, 0, ?)`, plID, tid); err != nil {
		t.Fatalf("seed join row: %v", err)
	}

	ids, err := Materialize(ctx, tx, plID)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if len(ids) != 1 || ids[0] != tid {
		t.Errorf("ids = %v, want [%d]", ids, tid)
	}
}

func TestMaterializeFilterPlaylistSetsDapChanged(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	tx, _ := db.BeginTx(ctx, nil)
	defer tx.Rollback()

	insertTrack(t, ctx, tx, "a.flac", "Taro", 0)
	insertTrack(t, ctx, tx, "b.flac", "Jiro", 0)

	root := &filter.Group{Op: filter.And, Children: []filter.Node{
		&filter.StringCond{Target: filter.TargetArtist, Op: filter.StringContain, Value: "Taro"},
	}}
	data, err := filter.MarshalFilterJSON(root)
	if err != nil {
		t.Fatalf("MarshalFilterJSON: %v", err)
	}
	plID := insertPlaylist(t, ctx, tx, Filter, "Taro Tracks", sql.NullInt64{}, sql.NullString{String: string(data), Valid: true}, true)

	ids, err := Materialize(ctx, tx, plID)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("ids = %v, want one match", ids)
	}

	p, err := Load(ctx, tx, plID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !p.DapChanged {
		t.Error("expected dap_changed to be set on first materialization")
	}
	if !p.ListupedFlag {
		t.Error("expected listuped_flag to be set")
	}
}

func TestMaterializeFilterPlaylistMissingFilterErrors(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	tx, _ := db.BeginTx(ctx, nil)
	defer tx.Rollback()

	plID := insertPlaylist(t, ctx, tx, Filter, "No Filter", sql.NullInt64{}, sql.NullString{}, false)
	if _, err := Materialize(ctx, tx, plID); err == nil {
		t.Fatal("expected FilterPlaylistHasNoFilter error")
	}
}

func TestMaterializeFolderUnionsChildren(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	tx, _ := db.BeginTx(ctx, nil)
	defer tx.Rollback()

	t1 := insertTrack(t, ctx, tx, "a.flac", "A", 0)
	t2 := insertTrack(t, ctx, tx, "b.flac", "B", 0)

	child1 := insertPlaylist(t, ctx, tx, Normal, "C1", sql.NullInt64{}, sql.NullString{}, false)
	tx.ExecContext(ctx, `INSERT INTO playlist_tracks (playlist_id, order_index, track_id) VALUES (?, 0, ?)`, child1, t1)
	child2 := insertPlaylist(t, ctx, tx, Normal, "C2", sql.NullInt64{}, sql.NullString{}, false)
	tx.ExecContext(ctx, `INSERT INTO playlist_tracks (playlist_id, order_index, track_id) VALUES (?, 0, ?)`, child2, t2)

	folderID := insertPlaylist(t, ctx, tx, Folder, "Root", sql.NullInt64{}, sql.NullString{}, false)
	tx.ExecContext(ctx, `UPDATE playlists SET parent_id = ? WHERE id IN (?, ?)`, folderID, child1, child2)

	ids, err := Materialize(ctx, tx, folderID)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("ids = %v, want 2 unioned tracks", ids)
	}
}

func TestM3UFileNameMatchesWorkedExample(t *testing.T) {
	cases := []struct {
		offset, digits int
		chain          []string
		name           string
		want           string
	}{
		{1, 1, nil, "R", "1-R.m3u"},
		{2, 1, []string{"R"}, "C1", "2-R-C1.m3u"},
		{3, 1, nil, "R2", "3-R2.m3u"},
	}
	for _, c := range cases {
		if got := m3uFileName(c.offset, c.digits, c.chain, c.name); got != c.want {
			t.Errorf("m3uFileName(%d,%d,%v,%q) = %q, want %q", c.offset, c.digits, c.chain, c.name, got, c.want)
		}
	}
}

func TestDecimalDigits(t *testing.T) {
	cases := map[int]int{0: 1, 1: 1, 9: 1, 10: 2, 99: 2, 100: 3}
	for n, want := range cases {
		if got := decimalDigits(n); got != want {
			t.Errorf("decimalDigits(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestExportAllWritesAndCleansUp(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	tx, _ := db.BeginTx(ctx, nil)
	defer tx.Rollback()

	tid := insertTrack(t, ctx, tx, "a.flac", "A", 0)
	plID := insertPlaylist(t, ctx, tx, Normal, "Saved", sql.NullInt64{}, sql.NullString{}, true)
	tx.ExecContext(ctx, `INSERT INTO playlist_tracks (playlist_id, order_index, track_id) VALUES (?, 0, ?)`, plID, tid)

	dir := t.TempDir()
	stalePath := filepath.Join(dir, "stale.m3u")
	if err := writeM3U(stalePath, nil); err != nil {
		t.Fatalf("seed stale file: %v", err)
	}

	if err := ExportAll(ctx, tx, dir, false); err != nil {
		t.Fatalf("ExportAll: %v", err)
	}

	if _, err := os.Stat(stalePath); err == nil {
		t.Error("expected stale.m3u to be removed")
	}
	want := filepath.Join(dir, "1-Saved.m3u")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("expected %s to exist: %v", want, err)
	}
}
