// server/store/writer.go
package store

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ViniZap4/tasks-server/domain"
)

// PersistenceError means every save attempt failed. The mutation that
// triggered the save must be treated as not applied.
type PersistenceError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *PersistenceError) Error() string {
	op := e.Op
	if op == "" {
		op = "save"
	}
	return fmt.Sprintf("%s tasks: failed after %d attempts: %v", op, e.Attempts, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// save persists tasks through backup, temp write and rename, retrying on
// failure. Callers must hold the gate.
func (s *Store) save(tasks []domain.Task) error {
	var err error
	for attempt := 1; attempt <= s.opts.WriteAttempts; attempt++ {
		if err = s.trySave(tasks); err == nil {
			saveAttempts.WithLabelValues("ok").Inc()
			taskCount.Set(float64(len(tasks)))
			return nil
		}

		saveAttempts.WithLabelValues("error").Inc()
		s.log.Error().Err(err).Int("attempt", attempt).Msg("save failed")

		if rmErr := removeIfExists(s.tempPath()); rmErr != nil {
			s.log.Warn().Err(rmErr).Msg("could not remove temp file")
		}
		if attempt < s.opts.WriteAttempts {
			time.Sleep(s.opts.WriteRetryDelay * time.Duration(attempt))
		}
	}
	return &PersistenceError{Attempts: s.opts.WriteAttempts, Err: err}
}

func (s *Store) trySave(tasks []domain.Task) error {
	if err := s.backupPrimary(); err != nil {
		return fmt.Errorf("backup: %w", err)
	}

	data, err := encodeCollection(tasks)
	if err != nil {
		return err
	}
	decoded, err := decodeCollection(data)
	if err != nil {
		return fmt.Errorf("verify encoding: %w", err)
	}
	if !slices.Equal(decoded, tasks) {
		return errors.New("verify encoding: round trip mismatch")
	}

	tmp := s.tempPath()
	if err := writeSynced(tmp, data); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	if _, err := s.readCollection(tmp); err != nil {
		return fmt.Errorf("verify temp: %w", err)
	}

	// the primary changes here and nowhere else
	if err := s.rename(tmp, s.primaryPath); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	if err := syncDir(s.dir); err != nil {
		s.log.Debug().Err(err).Msg("directory sync skipped")
	}

	if _, err := s.readCollection(s.primaryPath); err != nil {
		return fmt.Errorf("verify primary: %w", err)
	}
	s.log.Debug().Int("tasks", len(tasks)).Msg("tasks saved")
	return nil
}

func (s *Store) tempPath() string {
	return s.primaryPath + tempSuffix
}
