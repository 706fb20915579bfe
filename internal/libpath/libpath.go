// Package libpath implements typed relative-path wrappers over library
// track and directory paths: LibraryTrackPath, LibraryDirectoryPath, and
// LibPathStr. All three are non-empty UTF-8 strings that are always
// relative to a library root and always use "/" as the separator,
// independent of the host OS.
package libpath

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LibraryTrackPath is a non-empty relative path identifying a single track
// file under a library root. Equality and ordering are byte-wise on the
// underlying string.
type LibraryTrackPath struct {
	s string
}

// NewTrackPath validates and wraps s as a LibraryTrackPath.
func NewTrackPath(s string) (LibraryTrackPath, error) {
	if err := validateRelative(s); err != nil {
		return LibraryTrackPath{}, err
	}
	return LibraryTrackPath{s: s}, nil
}

// String returns the underlying path string.
func (p LibraryTrackPath) String() string { return p.s }

// FileName returns the last path component, including its extension.
func (p LibraryTrackPath) FileName() string {
	return pathBase(p.s)
}

// FileStem returns the last path component without its extension.
func (p LibraryTrackPath) FileStem() string {
	name := p.FileName()
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext)
}

// WithExtension returns a copy of p with its extension replaced by ext (no
// leading dot expected in ext).
func (p LibraryTrackPath) WithExtension(ext string) LibraryTrackPath {
	dir, name := pathSplit(p.s)
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	return LibraryTrackPath{s: dir + stem + "." + ext}
}

// Parent returns the directory containing the track, or (zero, false) when
// the track is at the library root.
func (p LibraryTrackPath) Parent() (LibraryDirectoryPath, bool) {
	dir, _ := pathSplit(p.s)
	if dir == "" {
		return LibraryDirectoryPath{}, false
	}
	return LibraryDirectoryPath{s: dir}, true
}

// Abs resolves p to an absolute filesystem path under root.
func (p LibraryTrackPath) Abs(root string) string {
	return filepath.Join(root, filepath.FromSlash(p.s))
}

// Compare implements byte-wise ordering, used to union paths discovered
// across P, D, and B into one stably ordered set.
func (p LibraryTrackPath) Compare(other LibraryTrackPath) int {
	return strings.Compare(p.s, other.s)
}

// LibraryDirectoryPath is a non-empty relative path for a directory, always
// stored normalized with a trailing "/".
type LibraryDirectoryPath struct {
	s string
}

// NewDirectoryPath validates and normalizes s as a LibraryDirectoryPath.
func NewDirectoryPath(s string) (LibraryDirectoryPath, error) {
	if err := validateRelative(s); err != nil {
		return LibraryDirectoryPath{}, err
	}
	if !strings.HasSuffix(s, "/") {
		s += "/"
	}
	return LibraryDirectoryPath{s: s}, nil
}

// String returns the normalized path string, including its trailing "/".
func (p LibraryDirectoryPath) String() string { return p.s }

// DirName returns the last path component, without the trailing slash.
func (p LibraryDirectoryPath) DirName() string {
	trimmed := strings.TrimSuffix(p.s, "/")
	return pathBase(trimmed)
}

// Parent returns the parent directory, or (zero, false) when p is a
// top-level directory.
func (p LibraryDirectoryPath) Parent() (LibraryDirectoryPath, bool) {
	trimmed := strings.TrimSuffix(p.s, "/")
	dir, _ := pathSplit(trimmed)
	if dir == "" {
		return LibraryDirectoryPath{}, false
	}
	return LibraryDirectoryPath{s: dir}, true
}

// Abs resolves p to an absolute filesystem path under root.
func (p LibraryDirectoryPath) Abs(root string) string {
	return filepath.Join(root, filepath.FromSlash(strings.TrimSuffix(p.s, "/")))
}

// Compare implements byte-wise ordering.
func (p LibraryDirectoryPath) Compare(other LibraryDirectoryPath) int {
	return strings.Compare(p.s, other.s)
}

// LibPathStr is an unnormalized, non-empty path string that may denote
// either a file or a directory, before it has been resolved against a
// table or filesystem to find out which.
type LibPathStr struct {
	s string
}

// NewLibPathStr validates s as a non-empty relative path string.
func NewLibPathStr(s string) (LibPathStr, error) {
	if err := validateRelative(s); err != nil {
		return LibPathStr{}, err
	}
	return LibPathStr{s: s}, nil
}

// String returns the unnormalized path string.
func (p LibPathStr) String() string { return p.s }

// ResolveKind describes what a LibPathStr turned out to denote.
type ResolveKind int

const (
	// ResolveUnknown means neither file nor directory membership could be
	// confirmed.
	ResolveUnknown ResolveKind = iota
	ResolveFile
	ResolveDirectory
)

// ResolveFS decides whether p denotes a file or a directory by statting it
// under root. Used to resolve a specifier against P or D directly.
func (p LibPathStr) ResolveFS(root string) (ResolveKind, error) {
	abs := filepath.Join(root, filepath.FromSlash(p.s))
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return ResolveUnknown, nil
		}
		return ResolveUnknown, err
	}
	if info.IsDir() {
		return ResolveDirectory, nil
	}
	return ResolveFile, nil
}

// AsTrackPath reinterprets p as a LibraryTrackPath once resolved as a file.
func (p LibPathStr) AsTrackPath() (LibraryTrackPath, error) {
	return NewTrackPath(p.s)
}

// AsDirectoryPath reinterprets p as a LibraryDirectoryPath once resolved as
// a directory.
func (p LibPathStr) AsDirectoryPath() (LibraryDirectoryPath, error) {
	return NewDirectoryPath(p.s)
}

func validateRelative(s string) error {
	if s == "" {
		return fmt.Errorf("libpath: empty path")
	}
	if strings.HasPrefix(s, "/") {
		return fmt.Errorf("libpath: path must be relative: %s", s)
	}
	if strings.Contains(s, "\\") {
		return fmt.Errorf("libpath: %q must use / as separator", s)
	}
	return nil
}

// pathBase and pathSplit operate on "/"-separated strings regardless of
// host OS, unlike path/filepath which is OS-separator-aware. Library paths
// are always "/"-separated, so these mirror the "path" package's semantics
// rather than filepath's.
func pathBase(s string) string {
	s = strings.TrimSuffix(s, "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[i+1:]
	}
	return s
}

func pathSplit(s string) (dir, file string) {
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[:i+1], s[i+1:]
	}
	return "", s
}
