// server/store/reader.go
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/ViniZap4/tasks-server/domain"
)

type readState int

const (
	readClean readState = iota
	readRecovering
	readReset
)

func (r readState) String() string {
	switch r {
	case readClean:
		return "clean"
	case readRecovering:
		return "recovering"
	case readReset:
		return "reset"
	}
	return fmt.Sprintf("readState(%d)", int(r))
}

// load returns the current collection. It never fails: a corrupt primary is
// restored from the backup or, once attempts run out, reset to empty.
// Callers must hold the gate.
func (s *Store) load() []domain.Task {
	if err := s.ensurePrimary(); err != nil {
		s.log.Warn().Err(err).Str("path", s.primaryPath).Msg("could not create tasks file")
	}

	state := readClean
	for attempt := 1; ; attempt++ {
		if state == readReset {
			return s.reset()
		}

		tasks, err := s.readCollection(s.primaryPath)
		if err == nil {
			if state == readRecovering {
				s.log.Info().Int("attempt", attempt).Msg("tasks file readable again")
			}
			taskCount.Set(float64(len(tasks)))
			return tasks
		}

		s.log.Warn().Err(err).
			Int("attempt", attempt).
			Stringer("state", state).
			Msg("invalid tasks file")

		if attempt >= s.opts.ReadAttempts {
			state = readReset
			continue
		}
		state = readRecovering
		if s.restoreBackup() {
			continue
		}
		time.Sleep(s.opts.ReadRetryDelay)
	}
}

// ensurePrimary creates an empty collection file when none exists.
func (s *Store) ensurePrimary() error {
	_, err := os.Stat(s.primaryPath)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	data, err := encodeCollection(nil)
	if err != nil {
		return err
	}
	s.log.Info().Str("path", s.primaryPath).Msg("creating tasks file")
	return s.replaceFile(s.primaryPath, data)
}

func (s *Store) reset() []domain.Task {
	loadRecoveries.WithLabelValues("reset").Inc()
	s.log.Error().Str("path", s.primaryPath).Msg("tasks file unrecoverable, resetting to empty")

	data, err := encodeCollection(nil)
	if err == nil {
		err = s.replaceFile(s.primaryPath, data)
	}
	if err != nil {
		s.log.Error().Err(err).Msg("reset failed")
	}
	taskCount.Set(0)
	return []domain.Task{}
}
