// Package liberr holds the not-found and already-exists error families
// shared across the reconcile engine, the repositories, and the CLI.
//
// Each kind is a struct implementing error so callers can carry identifying
// context (a path, an id) and downstream code can recover it with
// errors.As instead of string matching.
package liberr

import "fmt"

// FileTrackNotFound is returned when a track file is expected under a
// library root but is missing.
type FileTrackNotFound struct {
	LibRoot string
	Path    string
}

func (e *FileTrackNotFound) Error() string {
	return fmt.Sprintf("track not found under %s: %s", e.LibRoot, e.Path)
}

// DbTrackNotFound is returned when a track row is expected in B but absent.
type DbTrackNotFound struct {
	Path string
}

func (e *DbTrackNotFound) Error() string {
	return fmt.Sprintf("db: track not found: %s", e.Path)
}

// DbFolderPathNotFound is returned when a folder row is expected by path.
type DbFolderPathNotFound struct {
	Path string
}

func (e *DbFolderPathNotFound) Error() string {
	return fmt.Sprintf("db: folder not found: %s", e.Path)
}

// DbFolderIdNotFound is returned when a folder row is expected by id.
type DbFolderIdNotFound struct {
	ID int64
}

func (e *DbFolderIdNotFound) Error() string {
	return fmt.Sprintf("db: folder id not found: %d", e.ID)
}

// FileTrackAlreadyExists is returned when a write would overwrite a file
// the operation is forbidden from overwriting.
type FileTrackAlreadyExists struct {
	LibRoot string
	Path    string
}

func (e *FileTrackAlreadyExists) Error() string {
	return fmt.Sprintf("track already exists under %s: %s", e.LibRoot, e.Path)
}

// DbTrackAlreadyExists is returned on a unique-path conflict in B.
type DbTrackAlreadyExists struct {
	Path string
}

func (e *DbTrackAlreadyExists) Error() string {
	return fmt.Sprintf("db: track already exists: %s", e.Path)
}

// DbFolderAlreadyExists is returned on a unique-path conflict in folder_paths.
type DbFolderAlreadyExists struct {
	Path string
}

func (e *DbFolderAlreadyExists) Error() string {
	return fmt.Sprintf("db: folder already exists: %s", e.Path)
}

// FilePathStrAlreadyExists is returned when an unresolved LibPathStr
// collides with an existing file or directory.
type FilePathStrAlreadyExists struct {
	Path string
}

func (e *FilePathStrAlreadyExists) Error() string {
	return fmt.Sprintf("path already exists: %s", e.Path)
}

// FileIoError wraps a generic filesystem failure with path context.
type FileIoError struct {
	Path string
	Err  error
}

func (e *FileIoError) Error() string {
	return fmt.Sprintf("io error at %s: %v", e.Path, e.Err)
}

func (e *FileIoError) Unwrap() error { return e.Err }

// InvalidCommandArgument reports malformed CLI input.
type InvalidCommandArgument struct {
	Msg string
}

func (e *InvalidCommandArgument) Error() string {
	return fmt.Sprintf("invalid command argument: %s", e.Msg)
}

// DurationOverflow reports a codec-produced duration that cannot be stored
// in the database's 32-bit signed duration column.
type DurationOverflow struct {
	Path       string
	DurationMs int64
}

func (e *DurationOverflow) Error() string {
	return fmt.Sprintf("duration %dms for %s overflows a 32-bit column", e.DurationMs, e.Path)
}

// FilterPlaylistHasNoFilter is returned when a Filter-type playlist is
// materialized but carries no filter JSON.
type FilterPlaylistHasNoFilter struct {
	PlaylistID int64
}

func (e *FilterPlaylistHasNoFilter) Error() string {
	return fmt.Sprintf("playlist %d is type Filter but has no filter", e.PlaylistID)
}

// DanglingPlaylistRef describes one playlist row whose parent_id does not
// resolve to a live playlist.
type DanglingPlaylistRef struct {
	ID       int64
	Name     string
	ParentID int64
}

// PlaylistNoParentsDetected is returned when the playlist forest contains
// one or more dangling parent_id references.
type PlaylistNoParentsDetected struct {
	Dangling []DanglingPlaylistRef
}

func (e *PlaylistNoParentsDetected) Error() string {
	return fmt.Sprintf("playlist forest has %d dangling parent reference(s)", len(e.Dangling))
}

// InvalidFilterRangeForTarget is returned when a Filter JSON node's range
// shape does not match what its target/op combination requires.
type InvalidFilterRangeForTarget struct {
	FilterID int64
	Target   string
	Range    string
}

func (e *InvalidFilterRangeForTarget) Error() string {
	return fmt.Sprintf("filter %d: invalid range for target %s: %s", e.FilterID, e.Target, e.Range)
}
