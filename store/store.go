// server/store/store.go
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/ViniZap4/tasks-server/domain"
)

const (
	DefaultFileName        = "tasks.json"
	DefaultBackupFileName  = "tasks.backup.json"
	DefaultAttempts        = 3
	DefaultReadRetryDelay  = 50 * time.Millisecond
	DefaultWriteRetryDelay = 100 * time.Millisecond
)

type Options struct {
	Dir            string
	FileName       string
	BackupFileName string

	ReadAttempts    int
	WriteAttempts   int
	ReadRetryDelay  time.Duration
	WriteRetryDelay time.Duration

	// Logger defaults to a disabled logger.
	Logger *zerolog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Store persists tasks to a single JSON file. Every operation runs under one
// gate acquisition, so operations apply one at a time in arrival order.
type Store struct {
	dir         string
	primaryPath string
	backupPath  string
	opts        Options
	log         zerolog.Logger
	now         func() time.Time
	rename      func(oldpath, newpath string) error
	gate        gate
}

func New(opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, fmt.Errorf("store: data dir is required")
	}
	if opts.FileName == "" {
		opts.FileName = DefaultFileName
	}
	if opts.BackupFileName == "" {
		opts.BackupFileName = DefaultBackupFileName
	}
	if opts.FileName == opts.BackupFileName {
		return nil, fmt.Errorf("store: primary and backup file must differ")
	}
	if opts.ReadAttempts <= 0 {
		opts.ReadAttempts = DefaultAttempts
	}
	if opts.WriteAttempts <= 0 {
		opts.WriteAttempts = DefaultAttempts
	}
	if opts.ReadRetryDelay <= 0 {
		opts.ReadRetryDelay = DefaultReadRetryDelay
	}
	if opts.WriteRetryDelay <= 0 {
		opts.WriteRetryDelay = DefaultWriteRetryDelay
	}

	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Store{
		dir:         dir,
		primaryPath: filepath.Join(dir, opts.FileName),
		backupPath:  filepath.Join(dir, opts.BackupFileName),
		opts:        opts,
		log:         logger.With().Str("component", "store").Logger(),
		now:         now,
		rename:      os.Rename,
	}

	// a temp file left by a crash never became the primary
	if err := removeIfExists(s.tempPath()); err != nil {
		s.log.Warn().Err(err).Msg("could not remove stale temp file")
	}
	return s, nil
}

// Path returns the primary file location.
func (s *Store) Path() string { return s.primaryPath }

// BackupPath returns the last-known-good copy location.
func (s *Store) BackupPath() string { return s.backupPath }

func (s *Store) locked(op string, fn func() error) error {
	start := time.Now()
	s.gate.acquire()
	defer func() {
		s.gate.release()
		opDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()
	err := fn()
	var perr *PersistenceError
	if errors.As(err, &perr) && perr.Op == "" {
		perr.Op = op
	}
	return err
}

// List returns every task in file order. It never fails.
func (s *Store) List() []domain.Task {
	var tasks []domain.Task
	_ = s.locked("list", func() error {
		tasks = s.load()
		return nil
	})
	return tasks
}

var errInvalidTitle = fmt.Errorf("%w: title is not valid UTF-8", domain.ErrValidation)

// Create appends a task with the next free id. A blank title is rejected
// with domain.ErrValidation before the file is touched.
func (s *Store) Create(title string) (domain.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Task{}, fmt.Errorf("%w: title is required", domain.ErrValidation)
	}
	if !utf8.ValidString(title) {
		return domain.Task{}, errInvalidTitle
	}

	var created domain.Task
	err := s.locked("create", func() error {
		tasks := s.load()
		now := domain.Timestamp(s.now())
		created = domain.Task{
			ID:        domain.NextID(tasks),
			Title:     title,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return s.save(append(tasks, created))
	})
	if err != nil {
		return domain.Task{}, err
	}
	s.log.Info().Int("id", created.ID).Msg("task created")
	return created, nil
}

// Update applies the fields present in patch. found is false when no task
// has the id; the file is left untouched in that case.
func (s *Store) Update(id int, patch domain.TaskPatch) (task domain.Task, found bool, err error) {
	if patch.Title != nil && !utf8.ValidString(*patch.Title) {
		return domain.Task{}, false, errInvalidTitle
	}
	err = s.locked("update", func() error {
		tasks := s.load()
		idx := indexOf(tasks, id)
		if idx < 0 {
			return nil
		}
		found = true

		t := tasks[idx]
		if patch.Title != nil {
			if title := strings.TrimSpace(*patch.Title); title != "" {
				t.Title = title
			}
		}
		if patch.Completed != nil {
			t.Completed = *patch.Completed
		}
		t.UpdatedAt = domain.Timestamp(s.now())
		tasks[idx] = t

		if err := s.save(tasks); err != nil {
			return err
		}
		task = t
		return nil
	})
	if err != nil {
		return domain.Task{}, found, err
	}
	return task, found, nil
}

// Remove deletes the task with id. It reports false when no such task exists.
func (s *Store) Remove(id int) (bool, error) {
	removed := false
	err := s.locked("remove", func() error {
		tasks := s.load()
		idx := indexOf(tasks, id)
		if idx < 0 {
			return nil
		}
		tasks = append(tasks[:idx], tasks[idx+1:]...)
		if err := s.save(tasks); err != nil {
			return err
		}
		removed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if removed {
		s.log.Info().Int("id", id).Msg("task removed")
	}
	return removed, nil
}

// CompleteAll marks every pending task completed and returns the tasks it
// changed.
func (s *Store) CompleteAll() ([]domain.Task, error) {
	return s.setCompleted("complete_all", false, true)
}

// UncheckCompleted sets completed=false on every completed task and returns
// the tasks it changed.
func (s *Store) UncheckCompleted() ([]domain.Task, error) {
	return s.setCompleted("uncheck_completed", true, false)
}

func (s *Store) setCompleted(op string, from, to bool) ([]domain.Task, error) {
	changed := []domain.Task{}
	err := s.locked(op, func() error {
		tasks := s.load()
		now := domain.Timestamp(s.now())
		for i := range tasks {
			if tasks[i].Completed != from {
				continue
			}
			tasks[i].Completed = to
			tasks[i].UpdatedAt = now
			changed = append(changed, tasks[i])
		}
		if len(changed) == 0 {
			return nil
		}
		return s.save(tasks)
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}

func indexOf(tasks []domain.Task, id int) int {
	for i, t := range tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}
