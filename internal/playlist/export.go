package playlist

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
)

// ExportAll writes every save_dap playlist in B as an M3U file under dir,
// skipping files whose materialization did not change since the last
// export and removing any *.m3u file under dir that no longer corresponds
// to a saved playlist. When force is true, every save_dap playlist is
// rewritten regardless of dap_changed.
func ExportAll(ctx context.Context, tx *sql.Tx, dir string, force bool) error {
	existing, err := listM3UNames(dir)
	if err != nil {
		return err
	}

	roots, err := ChildrenOf(ctx, tx, sql.NullInt64{})
	if err != nil {
		return err
	}

	saveDapCount, err := countSaveDap(roots, func(id sql.NullInt64) ([]Playlist, error) {
		return ChildrenOf(ctx, tx, id)
	})
	if err != nil {
		return err
	}
	digits := decimalDigits(saveDapCount)

	offset := 0
	if err := exportForest(ctx, tx, dir, roots, nil, &offset, digits, existing, force); err != nil {
		return err
	}

	for name := range existing {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("playlist: remove stale %s: %w", name, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE playlists SET dap_changed = 0`); err != nil {
		return fmt.Errorf("playlist: clear dap_changed: %w", err)
	}
	return nil
}

func listM3UNames(dir string) (map[string]struct{}, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("playlist: read export dir %s: %w", dir, err)
	}
	out := map[string]struct{}{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if filepath.Ext(e.Name()) == ".m3u" {
			out[e.Name()] = struct{}{}
		}
	}
	return out, nil
}

func countSaveDap(playlists []Playlist, children func(sql.NullInt64) ([]Playlist, error)) (int, error) {
	n := 0
	for _, p := range playlists {
		if p.SaveDap {
			n++
		}
		kids, err := children(sql.NullInt64{Int64: p.ID, Valid: true})
		if err != nil {
			return 0, err
		}
		sub, err := countSaveDap(kids, children)
		if err != nil {
			return 0, err
		}
		n += sub
	}
	return n, nil
}

func decimalDigits(n int) int {
	if n <= 0 {
		return 1
	}
	d := 0
	for n > 0 {
		d++
		n /= 10
	}
	return d
}

func exportForest(ctx context.Context, tx *sql.Tx, dir string, playlists []Playlist, parentChain []string, offset *int, digits int, existing map[string]struct{}, force bool) error {
	for _, p := range playlists {
		if p.SaveDap {
			*offset++
			if err := exportOne(ctx, tx, dir, p, parentChain, *offset, digits, existing, force); err != nil {
				return err
			}
		}
		kids, err := ChildrenOf(ctx, tx, sql.NullInt64{Int64: p.ID, Valid: true})
		if err != nil {
			return err
		}
		if err := exportForest(ctx, tx, dir, kids, append(parentChain, p.Name), offset, digits, existing, force); err != nil {
			return err
		}
	}
	return nil
}

func exportOne(ctx context.Context, tx *sql.Tx, dir string, p Playlist, parentChain []string, offset, digits int, existing map[string]struct{}, force bool) error {
	name := m3uFileName(offset, digits, parentChain, p.Name)
	path := filepath.Join(dir, name)

	if _, err := Materialize(ctx, tx, p.ID); err != nil {
		return err
	}

	fresh, err := Load(ctx, tx, p.ID)
	if err != nil {
		return err
	}

	if fresh.DapChanged || force {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("playlist: remove stale before rewrite %s: %w", path, err)
		}
		paths, err := ListTracks(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		if err := writeM3U(path, paths); err != nil {
			return err
		}
		delete(existing, name)
		return nil
	}

	if _, ok := existing[name]; ok {
		delete(existing, name)
		return nil
	}

	paths, err := ListTracks(ctx, tx, p.ID)
	if err != nil {
		return err
	}
	return writeM3U(path, paths)
}

func m3uFileName(offset, digits int, parentChain []string, name string) string {
	prefix := fmt.Sprintf("%0*d", digits, offset)
	for _, parent := range parentChain {
		prefix += "-" + parent
	}
	return prefix + "-" + name + ".m3u"
}

// writeM3U writes one #EXTM3U playlist file listing relTrackPaths as
// "lib/{path}" lines, each preceded by a bare "#EXTINF:," marker.
func writeM3U(path string, relTrackPaths []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("playlist: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := w.WriteString("#EXTM3U\n"); err != nil {
		return fmt.Errorf("playlist: write header %s: %w", path, err)
	}
	for _, p := range relTrackPaths {
		if _, err := w.WriteString("#EXTINF:,\n"); err != nil {
			return fmt.Errorf("playlist: write extinf %s: %w", path, err)
		}
		if _, err := w.WriteString("lib/" + p + "\n"); err != nil {
			return fmt.Errorf("playlist: write track line %s: %w", path, err)
		}
	}
	return w.Flush()
}
