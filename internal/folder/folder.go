// Package folder maintains the closed set of directory rows referenced by
// existing tracks: ancestors are materialized on demand as tracks are
// registered, and childless chains are garbage collected bottom-up as
// tracks move away.
package folder

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/trisync/trisync/internal/liberr"
	"github.com/trisync/trisync/internal/libpath"
)

// Folder mirrors one row of folder_paths.
type Folder struct {
	ID       int64
	Path     string
	Name     string
	ParentID sql.NullInt64
}

// RegisterNotExists resolves dirPath to a folder_paths id, recursively
// creating any missing ancestor rows first. A dirPath of "" (library root)
// is not itself a folder row and must not be passed here.
func RegisterNotExists(ctx context.Context, tx *sql.Tx, dirPath libpath.LibraryDirectoryPath) (int64, error) {
	existing, err := findByPath(ctx, tx, dirPath.String())
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return existing.ID, nil
	}

	var parentID sql.NullInt64
	if parent, ok := dirPath.Parent(); ok {
		pid, err := RegisterNotExists(ctx, tx, parent)
		if err != nil {
			return 0, err
		}
		parentID = sql.NullInt64{Int64: pid, Valid: true}
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO folder_paths (path, name, parent_id) VALUES (?, ?, ?)`,
		dirPath.String(), dirPath.DirName(), parentID)
	if err != nil {
		return 0, fmt.Errorf("folder: insert %s: %w", dirPath.String(), err)
	}
	return res.LastInsertId()
}

// DeleteIfEmpty removes the folder row at dirPath if it references no
// track and no child folder, then recurses upward on its parent.
func DeleteIfEmpty(ctx context.Context, tx *sql.Tx, dirPath libpath.LibraryDirectoryPath) error {
	f, err := findByPath(ctx, tx, dirPath.String())
	if err != nil {
		return err
	}
	if f == nil {
		return &liberr.DbFolderPathNotFound{Path: dirPath.String()}
	}

	var trackCount int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tracks WHERE folder_id = ?`, f.ID).Scan(&trackCount); err != nil {
		return fmt.Errorf("folder: count tracks for %s: %w", dirPath.String(), err)
	}
	if trackCount > 0 {
		return nil
	}

	var childCount int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM folder_paths WHERE parent_id = ?`, f.ID).Scan(&childCount); err != nil {
		return fmt.Errorf("folder: count children for %s: %w", dirPath.String(), err)
	}
	if childCount > 0 {
		return nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM folder_paths WHERE id = ?`, f.ID); err != nil {
		return fmt.Errorf("folder: delete %s: %w", dirPath.String(), err)
	}

	if !f.ParentID.Valid {
		return nil
	}
	parentPath, err := findPathByID(ctx, tx, f.ParentID.Int64)
	if err != nil {
		return err
	}
	parentDir, err := libpath.NewDirectoryPath(parentPath)
	if err != nil {
		return err
	}
	return DeleteIfEmpty(ctx, tx, parentDir)
}

// ByID looks up a folder row by id.
func ByID(ctx context.Context, tx *sql.Tx, id int64) (*Folder, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT id, path, name, parent_id FROM folder_paths WHERE id = ?`, id)
	f := &Folder{}
	if err := row.Scan(&f.ID, &f.Path, &f.Name, &f.ParentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, &liberr.DbFolderIdNotFound{ID: id}
		}
		return nil, fmt.Errorf("folder: lookup id %d: %w", id, err)
	}
	return f, nil
}

func findByPath(ctx context.Context, tx *sql.Tx, path string) (*Folder, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT id, path, name, parent_id FROM folder_paths WHERE path = ?`, path)
	f := &Folder{}
	if err := row.Scan(&f.ID, &f.Path, &f.Name, &f.ParentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("folder: lookup path %s: %w", path, err)
	}
	return f, nil
}

func findPathByID(ctx context.Context, tx *sql.Tx, id int64) (string, error) {
	var path string
	err := tx.QueryRowContext(ctx, `SELECT path FROM folder_paths WHERE id = ?`, id).Scan(&path)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", &liberr.DbFolderIdNotFound{ID: id}
		}
		return "", fmt.Errorf("folder: lookup path by id %d: %w", id, err)
	}
	return path, nil
}
