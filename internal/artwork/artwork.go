// Package artwork implements the content-addressed artwork store: images
// are deduplicated by MD5 of their bytes, reference-counted via the
// track_artworks join table, and a single process-wide slot caches the
// most recently inserted image to accelerate bulk album imports.
package artwork

import (
	"bytes"
	"context"
	"crypto/md5"
	"database/sql"
	"fmt"
	"sync"
)

// Image is one artwork to register against a track, in input order.
type Image struct {
	Data        []byte
	MimeType    string
	PictureType uint8
	Description string
}

type cacheSlot struct {
	mu    sync.Mutex
	valid bool
	id    int64
	bytes []byte
}

// Store guards the single process-wide insertion cache slot. One Store
// should be shared for the lifetime of a DB connection.
type Store struct {
	cache cacheSlot
}

// NewStore builds an empty artwork store.
func NewStore() *Store {
	return &Store{}
}

// RegisterArtwork inserts or dedups image_bytes/mime inside tx, returning
// the artwork row id. The cache slot is consulted first, then a full-bytes
// comparison against existing rows sharing the MD5 hash, then falls back
// to inserting a new row.
func (s *Store) RegisterArtwork(ctx context.Context, tx *sql.Tx, image []byte, mime string) (int64, error) {
	s.cache.mu.Lock()
	defer s.cache.mu.Unlock()

	if s.cache.valid && bytes.Equal(s.cache.bytes, image) {
		return s.cache.id, nil
	}

	hash := md5.Sum(image)

	rows, err := tx.QueryContext(ctx, `SELECT id, image FROM artworks WHERE hash = ?`, hash[:])
	if err != nil {
		return 0, fmt.Errorf("artwork: query by hash: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var existing []byte
		if err := rows.Scan(&id, &existing); err != nil {
			return 0, fmt.Errorf("artwork: scan existing row: %w", err)
		}
		if bytes.Equal(existing, image) {
			rows.Close()
			s.cache.valid = true
			s.cache.id = id
			s.cache.bytes = image
			return id, nil
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("artwork: iterate existing rows: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO artworks (hash, image, mime_type) VALUES (?, ?, ?)`, hash[:], image, mime)
	if err != nil {
		return 0, fmt.Errorf("artwork: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("artwork: last insert id: %w", err)
	}

	s.cache.valid = true
	s.cache.id = id
	s.cache.bytes = image
	return id, nil
}

// RegisterTrackArtworks replaces trackID's artwork join rows with
// artworks, in input order, garbage collecting artwork rows the track no
// longer references.
func (s *Store) RegisterTrackArtworks(ctx context.Context, tx *sql.Tx, trackID int64, artworks []Image) error {
	if err := s.UnregisterTrackArtworks(ctx, tx, trackID); err != nil {
		return err
	}
	for i, img := range artworks {
		artworkID, err := s.RegisterArtwork(ctx, tx, img.Data, img.MimeType)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO track_artworks (track_id, order_index, artwork_id, picture_type, description)
			 VALUES (?, ?, ?, ?, ?)`,
			trackID, i, artworkID, img.PictureType, img.Description); err != nil {
			return fmt.Errorf("artwork: insert join row: %w", err)
		}
	}
	return nil
}

// UnregisterTrackArtworks drops trackID's join rows and deletes any
// artwork row whose reference count has reached zero as a result.
func (s *Store) UnregisterTrackArtworks(ctx context.Context, tx *sql.Tx, trackID int64) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT artwork_id FROM track_artworks WHERE track_id = ? ORDER BY order_index`, trackID)
	if err != nil {
		return fmt.Errorf("artwork: query joins: %w", err)
	}
	var artworkIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("artwork: scan join: %w", err)
		}
		artworkIDs = append(artworkIDs, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("artwork: iterate joins: %w", err)
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, `DELETE FROM track_artworks WHERE track_id = ?`, trackID); err != nil {
		return fmt.Errorf("artwork: delete joins: %w", err)
	}

	s.cache.mu.Lock()
	defer s.cache.mu.Unlock()

	for _, id := range artworkIDs {
		var refCount int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM track_artworks WHERE artwork_id = ?`, id).Scan(&refCount); err != nil {
			return fmt.Errorf("artwork: count refs for %d: %w", id, err)
		}
		if refCount > 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM artworks WHERE id = ?`, id); err != nil {
			return fmt.Errorf("artwork: delete orphan %d: %w", id, err)
		}
		if s.cache.valid && s.cache.id == id {
			s.cache.valid = false
			s.cache.bytes = nil
		}
	}
	return nil
}
