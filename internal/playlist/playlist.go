// Package playlist materializes Normal, Filter, and Folder playlists into
// the playlist_tracks cache, lists a materialized playlist's tracks under
// a fixed sort expression, and exports the save_dap subset to M3U files.
package playlist

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/trisync/trisync/internal/filter"
	"github.com/trisync/trisync/internal/liberr"
)

// Type is a playlist's membership kind.
type Type string

const (
	Normal Type = "normal"
	Filter Type = "filter"
	Folder Type = "folder"
)

// SortType names one of the fixed sort expressions track listing accepts.
type SortType string

const (
	SortPath        SortType = "path"
	SortTitle       SortType = "title"
	SortArtist      SortType = "artist"
	SortAlbum       SortType = "album"
	SortTrackNumber SortType = "track_number"
	SortPlaylist    SortType = "playlist"
)

// Playlist mirrors one row of the playlists table.
type Playlist struct {
	ID            int64
	PlaylistType  Type
	Name          string
	ParentID      sql.NullInt64
	InFolderOrder int
	FilterJSON    sql.NullString
	SortType      SortType
	SortDesc      bool
	SaveDap       bool
	ListupedFlag  bool
	DapChanged    bool
}

// Load reads one playlist row by id.
func Load(ctx context.Context, tx *sql.Tx, id int64) (*Playlist, error) {
	row := tx.QueryRowContext(ctx, playlistSelectColumns+` WHERE id = ?`, id)
	return scanPlaylist(row)
}

// ChildrenOf returns id's direct child playlists ordered by in_folder_order.
func ChildrenOf(ctx context.Context, tx *sql.Tx, id sql.NullInt64) ([]Playlist, error) {
	var rows *sql.Rows
	var err error
	if id.Valid {
		rows, err = tx.QueryContext(ctx, playlistSelectColumns+` WHERE parent_id = ? ORDER BY in_folder_order`, id.Int64)
	} else {
		rows, err = tx.QueryContext(ctx, playlistSelectColumns+` WHERE parent_id IS NULL ORDER BY in_folder_order`)
	}
	if err != nil {
		return nil, fmt.Errorf("playlist: query children: %w", err)
	}
	defer rows.Close()

	var out []Playlist
	for rows.Next() {
		p, err := scanPlaylistRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

const playlistSelectColumns = `
	SELECT id, playlist_type, name, parent_id, in_folder_order, filter_json,
		sort_type, sort_desc, save_dap, listuped_flag, dap_changed
	FROM playlists`

func scanPlaylist(row *sql.Row) (*Playlist, error) {
	var p Playlist
	var playlistType, sortType string
	var sortDesc, saveDap, listuped, dapChanged int
	err := row.Scan(&p.ID, &playlistType, &p.Name, &p.ParentID, &p.InFolderOrder, &p.FilterJSON,
		&sortType, &sortDesc, &saveDap, &listuped, &dapChanged)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("playlist: not found")
	}
	if err != nil {
		return nil, fmt.Errorf("playlist: scan: %w", err)
	}
	p.PlaylistType = Type(playlistType)
	p.SortType = SortType(sortType)
	p.SortDesc = sortDesc != 0
	p.SaveDap = saveDap != 0
	p.ListupedFlag = listuped != 0
	p.DapChanged = dapChanged != 0
	return &p, nil
}

func scanPlaylistRows(rows *sql.Rows) (*Playlist, error) {
	var p Playlist
	var playlistType, sortType string
	var sortDesc, saveDap, listuped, dapChanged int
	err := rows.Scan(&p.ID, &playlistType, &p.Name, &p.ParentID, &p.InFolderOrder, &p.FilterJSON,
		&sortType, &sortDesc, &saveDap, &listuped, &dapChanged)
	if err != nil {
		return nil, fmt.Errorf("playlist: scan: %w", err)
	}
	p.PlaylistType = Type(playlistType)
	p.SortType = SortType(sortType)
	p.SortDesc = sortDesc != 0
	p.SaveDap = saveDap != 0
	p.ListupedFlag = listuped != 0
	p.DapChanged = dapChanged != 0
	return &p, nil
}

// Materialize rebuilds playlistID's playlist_tracks rows if listuped_flag
// is false, returning the resulting (possibly unioned for Folder) track id
// set in the order playlist_tracks now holds them. Already-materialized
// playlists are returned from playlist_tracks as-is.
func Materialize(ctx context.Context, tx *sql.Tx, playlistID int64) ([]int64, error) {
	p, err := Load(ctx, tx, playlistID)
	if err != nil {
		return nil, err
	}
	if p.ListupedFlag {
		return existingTrackIDs(ctx, tx, playlistID)
	}

	switch p.PlaylistType {
	case Normal:
		if _, err := tx.ExecContext(ctx, `UPDATE playlists SET listuped_flag = 1 WHERE id = ?`, playlistID); err != nil {
			return nil, fmt.Errorf("playlist: mark listuped %d: %w", playlistID, err)
		}
		return existingTrackIDs(ctx, tx, playlistID)

	case Filter:
		if !p.FilterJSON.Valid {
			return nil, &liberr.FilterPlaylistHasNoFilter{PlaylistID: playlistID}
		}
		root, err := filter.UnmarshalFilterJSON(playlistID, []byte(p.FilterJSON.String))
		if err != nil {
			return nil, err
		}
		where := filter.WhereExpression(root)
		query := `SELECT tracks.id FROM tracks`
		if where != "" {
			query += ` WHERE ` + where
		}
		rows, err := tx.QueryContext(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("playlist: filter query %d: %w", playlistID, err)
		}
		var newIDs []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("playlist: scan filter match: %w", err)
			}
			newIDs = append(newIDs, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
		return replaceMaterialization(ctx, tx, playlistID, newIDs)

	case Folder:
		children, err := ChildrenOf(ctx, tx, sql.NullInt64{Int64: playlistID, Valid: true})
		if err != nil {
			return nil, err
		}
		union := map[int64]struct{}{}
		for _, c := range children {
			ids, err := Materialize(ctx, tx, c.ID)
			if err != nil {
				return nil, err
			}
			for _, id := range ids {
				union[id] = struct{}{}
			}
		}
		newIDs := make([]int64, 0, len(union))
		for id := range union {
			newIDs = append(newIDs, id)
		}
		sort.Slice(newIDs, func(i, j int) bool { return newIDs[i] < newIDs[j] })
		return replaceMaterialization(ctx, tx, playlistID, newIDs)

	default:
		return nil, fmt.Errorf("playlist: unknown playlist_type %q", p.PlaylistType)
	}
}

func existingTrackIDs(ctx context.Context, tx *sql.Tx, playlistID int64) ([]int64, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT track_id FROM playlist_tracks WHERE playlist_id = ? ORDER BY order_index`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("playlist: query existing ids %d: %w", playlistID, err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("playlist: scan existing id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// replaceMaterialization replaces playlistID's join rows with newIDs in
// order, sets dap_changed when the resulting set differs from the prior
// one, and marks listuped_flag true.
func replaceMaterialization(ctx context.Context, tx *sql.Tx, playlistID int64, newIDs []int64) ([]int64, error) {
	oldIDs, err := existingTrackIDs(ctx, tx, playlistID)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM playlist_tracks WHERE playlist_id = ?`, playlistID); err != nil {
		return nil, fmt.Errorf("playlist: clear join rows %d: %w", playlistID, err)
	}
	for i, id := range newIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO playlist_tracks (playlist_id, order_index, track_id) VALUES (?, ?, ?)`,
			playlistID, i, id); err != nil {
			return nil, fmt.Errorf("playlist: insert join row %d: %w", playlistID, err)
		}
	}

	changed := setChanged(oldIDs, newIDs)
	dapChanged := 0
	if changed {
		dapChanged = 1
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE playlists SET listuped_flag = 1, dap_changed = CASE WHEN ? = 1 THEN 1 ELSE dap_changed END WHERE id = ?`,
		dapChanged, playlistID); err != nil {
		return nil, fmt.Errorf("playlist: update bookkeeping %d: %w", playlistID, err)
	}
	return newIDs, nil
}

func setChanged(oldIDs, newIDs []int64) bool {
	if len(oldIDs) != len(newIDs) {
		return true
	}
	old := make(map[int64]struct{}, len(oldIDs))
	for _, id := range oldIDs {
		old[id] = struct{}{}
	}
	for _, id := range newIDs {
		if _, ok := old[id]; !ok {
			return true
		}
	}
	return false
}

// ListTracks returns playlistID's materialized track paths, ordered per
// its sort_type/sort_desc, always ending in a stable tracks.id tiebreak.
func ListTracks(ctx context.Context, tx *sql.Tx, playlistID int64) ([]string, error) {
	p, err := Load(ctx, tx, playlistID)
	if err != nil {
		return nil, err
	}
	orderExpr := sortExpr(p.SortType, p.SortDesc)
	query := `SELECT tracks.path FROM playlist_tracks
		JOIN tracks ON tracks.id = playlist_tracks.track_id
		WHERE playlist_tracks.playlist_id = ?
		ORDER BY ` + orderExpr
	rows, err := tx.QueryContext(ctx, query, playlistID)
	if err != nil {
		return nil, fmt.Errorf("playlist: list tracks %d: %w", playlistID, err)
	}
	defer rows.Close()
	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("playlist: scan path: %w", err)
		}
		paths = append(paths, path)
	}
	return paths, rows.Err()
}

func sortExpr(st SortType, desc bool) string {
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	var keys []string
	switch st {
	case SortTitle:
		keys = []string{"tracks.title_order"}
	case SortArtist:
		keys = []string{"tracks.artist_order", "tracks.album_order", "tracks.track_number"}
	case SortAlbum:
		keys = []string{"tracks.album_order", "tracks.track_number"}
	case SortTrackNumber:
		keys = []string{"tracks.disc_number", "tracks.track_number"}
	case SortPlaylist:
		keys = []string{"playlist_tracks.order_index"}
	default: // SortPath
		keys = []string{"tracks.path"}
	}

	terms := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		terms = append(terms, k+" "+dir)
	}
	terms = append(terms, "tracks.id "+dir)
	return strings.Join(terms, ", ")
}

// ValidateForest reports PlaylistNoParentsDetected when any playlist's
// parent_id does not resolve to a live playlist row.
func ValidateForest(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, `SELECT id, name, parent_id FROM playlists`)
	if err != nil {
		return fmt.Errorf("playlist: validate forest query: %w", err)
	}
	defer rows.Close()

	ids := map[int64]bool{}
	var all []struct {
		ID       int64
		Name     string
		ParentID sql.NullInt64
	}
	for rows.Next() {
		var id int64
		var name string
		var parentID sql.NullInt64
		if err := rows.Scan(&id, &name, &parentID); err != nil {
			return fmt.Errorf("playlist: scan forest row: %w", err)
		}
		ids[id] = true
		all = append(all, struct {
			ID       int64
			Name     string
			ParentID sql.NullInt64
		}{id, name, parentID})
	}
	if err := rows.Err(); err != nil {
		return err
	}

	var dangling []liberr.DanglingPlaylistRef
	for _, r := range all {
		if r.ParentID.Valid && !ids[r.ParentID.Int64] {
			dangling = append(dangling, liberr.DanglingPlaylistRef{ID: r.ID, Name: r.Name, ParentID: r.ParentID.Int64})
		}
	}
	if len(dangling) > 0 {
		return &liberr.PlaylistNoParentsDetected{Dangling: dangling}
	}
	return nil
}
