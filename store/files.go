// server/store/files.go
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ViniZap4/tasks-server/domain"
)

const tempSuffix = ".tmp"

// writeSynced writes data to path and fsyncs it before closing.
func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// syncDir makes a completed rename durable. Errors are not fatal: some
// filesystems refuse to fsync directories.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// replaceFile swaps dst for data via a sibling temp file and rename.
func (s *Store) replaceFile(dst string, data []byte) error {
	tmp := dst + tempSuffix
	if err := writeSynced(tmp, data); err != nil {
		_ = removeIfExists(tmp)
		return fmt.Errorf("write %s: %w", filepath.Base(tmp), err)
	}
	if err := s.rename(tmp, dst); err != nil {
		_ = removeIfExists(tmp)
		return fmt.Errorf("rename to %s: %w", filepath.Base(dst), err)
	}
	_ = syncDir(filepath.Dir(dst))
	return nil
}

func (s *Store) readCollection(path string) ([]domain.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeCollection(data)
}

// backupPrimary copies the primary file to the backup path. A missing,
// empty or invalid primary is skipped so the backup only ever holds a
// last-known-good collection.
func (s *Store) backupPrimary() error {
	data, err := os.ReadFile(s.primaryPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if _, err := decodeCollection(data); err != nil {
		s.log.Debug().Err(err).Msg("primary not backed up")
		return nil
	}
	return s.replaceFile(s.backupPath, data)
}

// restoreBackup copies a valid backup over the primary file.
func (s *Store) restoreBackup() bool {
	data, err := os.ReadFile(s.backupPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn().Err(err).Str("path", s.backupPath).Msg("backup unreadable")
		}
		return false
	}
	if _, err := decodeCollection(data); err != nil {
		s.log.Warn().Err(err).Str("path", s.backupPath).Msg("backup invalid")
		return false
	}
	if err := s.replaceFile(s.primaryPath, data); err != nil {
		s.log.Warn().Err(err).Msg("backup restore failed")
		return false
	}
	loadRecoveries.WithLabelValues("backup").Inc()
	s.log.Info().Str("path", s.backupPath).Msg("restored tasks from backup")
	return true
}
