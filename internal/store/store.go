// Package store opens and migrates the metadata database (B): the single
// relational store of track rows, folder rows, content-addressed artwork,
// playlist definitions, and their materialized join tables.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/trisync/trisync/internal/config"
)

// DB wraps a *sql.DB opened against B, with its PRAGMAs tuned and schema
// already ensured.
type DB struct {
	*sql.DB
}

// Open connects to the database described by cfg and ensures its schema.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	sqlDB, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-64000",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA mmap_size=268435456",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sqlDB.ExecContext(ctx, pragma); err != nil {
			slog.Warn("failed to apply pragma", "pragma", pragma, "err", err)
		}
	}

	db := &DB{DB: sqlDB}
	if err := db.ensureSchema(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) ensureSchema(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS folder_paths (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			parent_id INTEGER NULL REFERENCES folder_paths(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_folder_paths_parent ON folder_paths(parent_id);`,

		`CREATE TABLE IF NOT EXISTS artworks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			hash BLOB NOT NULL,
			image BLOB NOT NULL,
			mime_type TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_artworks_hash ON artworks(hash);`,

		`CREATE TABLE IF NOT EXISTS tracks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT NOT NULL UNIQUE,
			folder_id INTEGER NULL REFERENCES folder_paths(id),
			duration INTEGER NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			artist TEXT NOT NULL DEFAULT '',
			album TEXT NOT NULL DEFAULT '',
			genre TEXT NOT NULL DEFAULT '',
			album_artist TEXT NOT NULL DEFAULT '',
			composer TEXT NOT NULL DEFAULT '',
			track_number INTEGER NOT NULL DEFAULT 0,
			track_max INTEGER NOT NULL DEFAULT 0,
			disc_number INTEGER NOT NULL DEFAULT 0,
			disc_max INTEGER NOT NULL DEFAULT 0,
			release_date TEXT NULL,
			memo TEXT NOT NULL DEFAULT '',
			lyrics TEXT NOT NULL DEFAULT '',
			rating INTEGER NOT NULL DEFAULT 0,
			original_track TEXT NOT NULL DEFAULT '',
			suggest_target INTEGER NOT NULL DEFAULT 0,
			memo_manage TEXT NOT NULL DEFAULT '',
			title_order TEXT NOT NULL DEFAULT '',
			artist_order TEXT NOT NULL DEFAULT '',
			album_order TEXT NOT NULL DEFAULT '',
			album_artist_order TEXT NOT NULL DEFAULT '',
			composer_order TEXT NOT NULL DEFAULT '',
			genre_order TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tracks_folder ON tracks(folder_id);`,
		`CREATE INDEX IF NOT EXISTS idx_tracks_title_order ON tracks(title_order);`,
		`CREATE INDEX IF NOT EXISTS idx_tracks_artist_order ON tracks(artist_order);`,
		`CREATE INDEX IF NOT EXISTS idx_tracks_album_order ON tracks(album_order);`,

		`CREATE TABLE IF NOT EXISTS track_artworks (
			track_id INTEGER NOT NULL REFERENCES tracks(id),
			order_index INTEGER NOT NULL,
			artwork_id INTEGER NOT NULL REFERENCES artworks(id),
			picture_type INTEGER NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (track_id, order_index)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_track_artworks_artwork ON track_artworks(artwork_id);`,

		`CREATE TABLE IF NOT EXISTS track_tags (
			track_id INTEGER NOT NULL REFERENCES tracks(id),
			tag_id INTEGER NOT NULL,
			PRIMARY KEY (track_id, tag_id)
		);`,

		`CREATE TABLE IF NOT EXISTS playlists (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			playlist_type TEXT NOT NULL,
			name TEXT NOT NULL,
			parent_id INTEGER NULL REFERENCES playlists(id),
			in_folder_order INTEGER NOT NULL DEFAULT 0,
			filter_json TEXT NULL,
			sort_type TEXT NOT NULL DEFAULT 'path',
			sort_desc INTEGER NOT NULL DEFAULT 0,
			save_dap INTEGER NOT NULL DEFAULT 0,
			listuped_flag INTEGER NOT NULL DEFAULT 0,
			dap_changed INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_playlists_parent ON playlists(parent_id, in_folder_order);`,

		`CREATE TABLE IF NOT EXISTS playlist_tracks (
			playlist_id INTEGER NOT NULL REFERENCES playlists(id),
			order_index INTEGER NOT NULL,
			track_id INTEGER NOT NULL REFERENCES tracks(id),
			PRIMARY KEY (playlist_id, order_index)
		);`,
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
