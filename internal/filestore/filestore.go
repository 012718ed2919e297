// Package filestore provides crash-safe reads and writes of the small text
// files the controller shares with other processes (status, setpoint and
// start/stop command files).
//
// Writers go through a temporary file in the destination directory followed by
// an atomic rename, so a reader always sees either the previous complete
// content or the new complete content.
package filestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

var (
	// ErrStat is returned by ReadIfNewer when the modification time of the
	// file cannot be queried (typically: the file does not exist).
	ErrStat = errors.New("stat failed")
	// ErrRead is returned by ReadIfNewer when the file exists but cannot be
	// opened or read.
	ErrRead = errors.New("read failed")
	// ErrWrite is returned by Write when the temporary file cannot be
	// created, written, chowned or renamed into place.
	ErrWrite = errors.New("write failed")
)

// Owner is the optional uid/gid applied to written files. A value of -1
// leaves that id unchanged, matching os.Chown.
type Owner struct {
	UID int
	GID int
}

// Store reads and writes files. The zero value is not usable; use New.
type Store struct {
	now    func() time.Time
	rename func(oldpath, newpath string) error
	chown  func(name string, uid, gid int) error
}

// New returns a Store backed by the real filesystem and clock.
func New() *Store {
	return &Store{
		now:    time.Now,
		rename: os.Rename,
		chown:  os.Chown,
	}
}

// WithClock returns a copy of s that timestamps reads with now.
func (s *Store) WithClock(now func() time.Time) *Store {
	c := *s
	c.now = now
	return &c
}

// Write atomically replaces path with data. A nil data slice produces an
// empty file, which is how command flags are raised. If owner is non-nil the
// temporary file is chowned before the rename.
func (s *Store) Write(path string, data []byte, owner *Owner) error {
	dest, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWrite, path, err)
	}
	dir, base := filepath.Split(dest)

	tmp, err := os.CreateTemp(dir, base+".tmp*")
	if err != nil {
		return fmt.Errorf("%w: create temp for %s: %w", ErrWrite, dest, err)
	}
	tmpName := tmp.Name()

	if len(data) > 0 {
		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("%w: write %s: %w", ErrWrite, tmpName, err)
		}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: sync %s: %w", ErrWrite, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close %s: %w", ErrWrite, tmpName, err)
	}
	// CreateTemp uses 0600; shared files must be readable by the UI processes.
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: chmod %s: %w", ErrWrite, tmpName, err)
	}

	if owner != nil && (owner.UID >= 0 || owner.GID >= 0) {
		if err := s.chown(tmpName, owner.UID, owner.GID); err != nil {
			os.Remove(tmpName)
			return fmt.Errorf("%w: chown %s: %w", ErrWrite, tmpName, err)
		}
	}

	if err := s.rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: rename onto %s: %w", ErrWrite, dest, err)
	}
	return nil
}

// ReadIfNewer reads path only if its modification time is after last.
//
// If the file has not changed it returns (last, nil, nil). Otherwise it
// returns the read time and the full contents. Stat failures wrap ErrStat and
// read failures wrap ErrRead so callers can tell "absent" from "unreadable".
func (s *Store) ReadIfNewer(path string, last time.Time) (time.Time, []byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return last, nil, fmt.Errorf("%w: %s: %w", ErrStat, path, err)
	}
	if !info.ModTime().After(last) {
		return last, nil, nil
	}

	readAt := s.now()
	data, err := os.ReadFile(path)
	if err != nil {
		return last, nil, fmt.Errorf("%w: %s: %w", ErrRead, path, err)
	}
	return readAt, data, nil
}

// Exists reports whether path is present. Command flags are signalled by
// existence alone.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
