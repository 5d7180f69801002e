package store

import (
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alecthomas/assert"

	"github.com/ViniZap4/tasks-server/domain"
)

// stepClock returns a clock that advances one millisecond per call.
func stepClock() func() time.Time {
	base := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	var n atomic.Int64
	return func() time.Time {
		return base.Add(time.Duration(n.Add(1)) * time.Millisecond)
	}
}

func newTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	s, err := New(Options{
		Dir:             dir,
		ReadRetryDelay:  time.Microsecond,
		WriteRetryDelay: time.Microsecond,
		Now:             stepClock(),
	})
	assert.NoError(t, err)
	return s
}

func mustCreate(t *testing.T, s *Store, title string) domain.Task {
	t.Helper()
	task, err := s.Create(title)
	assert.NoError(t, err)
	return task
}

func TestNewRequiresDir(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	_, err = New(Options{Dir: t.TempDir(), FileName: "a.json", BackupFileName: "a.json"})
	assert.Error(t, err)
}

func TestCreateThenList(t *testing.T) {
	s := newTestStore(t, "")

	created := mustCreate(t, s, "  Buy milk \n")
	assert.Equal(t, 1, created.ID)
	assert.Equal(t, "Buy milk", created.Title)

	tasks := s.List()
	assert.Len(t, tasks, 1)
	got := tasks[0]
	assert.Equal(t, "Buy milk", got.Title)
	assert.False(t, got.Completed)
	assert.Equal(t, got.CreatedAt, got.UpdatedAt)
	assert.Equal(t, created, got)
}

func TestListEmptyStore(t *testing.T) {
	s := newTestStore(t, "")
	tasks := s.List()
	assert.NotNil(t, tasks)
	assert.Len(t, tasks, 0)

	_, err := os.Stat(s.Path())
	assert.NoError(t, err)
}

func TestCreateRejectsBlankTitle(t *testing.T) {
	s := newTestStore(t, "")
	mustCreate(t, s, "keep")

	for _, title := range []string{"", "   ", "\t\n"} {
		_, err := s.Create(title)
		assert.True(t, errors.Is(err, domain.ErrValidation), "title %q: %v", title, err)
	}
	assert.Len(t, s.List(), 1)
}

func TestInvalidUTF8TitleIsValidationError(t *testing.T) {
	s := newTestStore(t, "")
	kept := mustCreate(t, s, "keep")
	before, err := os.ReadFile(s.Path())
	assert.NoError(t, err)

	_, err = s.Create("a\xffb")
	assert.True(t, errors.Is(err, domain.ErrValidation), "got %v", err)
	var perr *PersistenceError
	assert.False(t, errors.As(err, &perr))

	bad := "x\xc3"
	_, found, err := s.Update(kept.ID, domain.TaskPatch{Title: &bad})
	assert.True(t, errors.Is(err, domain.ErrValidation), "got %v", err)
	assert.False(t, found)

	after, err := os.ReadFile(s.Path())
	assert.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestIDsUniqueAndMonotonic(t *testing.T) {
	s := newTestStore(t, "")

	seen := map[int]bool{}
	for _, title := range []string{"a", "b", "c", "d", "e"} {
		task := mustCreate(t, s, title)
		assert.False(t, seen[task.ID], "duplicate id %d", task.ID)
		seen[task.ID] = true
	}

	// a gap does not get filled
	ok, err := s.Remove(2)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 6, mustCreate(t, s, "f").ID)

	// removing the highest id frees it again: next is always max+1
	ok, err = s.Remove(6)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 6, mustCreate(t, s, "g").ID)
}

func TestListKeepsInsertionOrder(t *testing.T) {
	s := newTestStore(t, "")
	for _, title := range []string{"one", "two", "three"} {
		mustCreate(t, s, title)
	}
	_, err := s.Remove(2)
	assert.NoError(t, err)
	mustCreate(t, s, "four")

	var titles []string
	for _, task := range s.List() {
		titles = append(titles, task.Title)
	}
	assert.Equal(t, []string{"one", "three", "four"}, titles)
}

func TestUpdatePartialPatch(t *testing.T) {
	s := newTestStore(t, "")
	created := mustCreate(t, s, "Write report")

	done := true
	updated, found, err := s.Update(created.ID, domain.TaskPatch{Completed: &done})
	assert.NoError(t, err)
	assert.True(t, found)
	assert.True(t, updated.Completed)
	assert.Equal(t, created.Title, updated.Title)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt > created.UpdatedAt)

	assert.Equal(t, []domain.Task{updated}, s.List())
}

func TestUpdateTitle(t *testing.T) {
	s := newTestStore(t, "")
	created := mustCreate(t, s, "draft")

	title := "  final  "
	updated, found, err := s.Update(created.ID, domain.TaskPatch{Title: &title})
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "final", updated.Title)
	assert.False(t, updated.Completed)

	blank := "   "
	updated, found, err = s.Update(created.ID, domain.TaskPatch{Title: &blank})
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "final", updated.Title)
}

func TestUpdateRefreshesTimestampWithoutChanges(t *testing.T) {
	s := newTestStore(t, "")
	created := mustCreate(t, s, "idle")

	updated, found, err := s.Update(created.ID, domain.TaskPatch{})
	assert.NoError(t, err)
	assert.True(t, found)
	assert.NotEqual(t, created.UpdatedAt, updated.UpdatedAt)
}

func TestNotFoundLeavesCollectionUntouched(t *testing.T) {
	s := newTestStore(t, "")
	mustCreate(t, s, "only")

	before, err := os.ReadFile(s.Path())
	assert.NoError(t, err)

	done := true
	_, found, err := s.Update(42, domain.TaskPatch{Completed: &done})
	assert.NoError(t, err)
	assert.False(t, found)

	removed, err := s.Remove(42)
	assert.NoError(t, err)
	assert.False(t, removed)

	after, err := os.ReadFile(s.Path())
	assert.NoError(t, err)
	assert.Equal(t, string(before), string(after))
	assert.Len(t, s.List(), 1)
}

func TestConcurrentTogglesApplyInSomeTotalOrder(t *testing.T) {
	s := newTestStore(t, "")
	created := mustCreate(t, s, "Rapid Click Test")

	const n = 25
	results := make([]domain.Task, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			completed := i%2 == 0
			task, found, err := s.Update(created.ID, domain.TaskPatch{Completed: &completed})
			assert.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, completed, task.Completed)
			results[i] = task
		}(i)
	}
	wg.Wait()

	// every update got its own slot in the order
	last := results[0]
	stamps := map[string]bool{}
	for _, r := range results {
		assert.False(t, stamps[r.UpdatedAt], "two updates share %s", r.UpdatedAt)
		stamps[r.UpdatedAt] = true
		if r.UpdatedAt > last.UpdatedAt {
			last = r
		}
	}

	final := s.List()
	assert.Len(t, final, 1)
	assert.Equal(t, last, final[0])
}

func TestConcurrentCreatesGetDistinctIDs(t *testing.T) {
	s := newTestStore(t, "")

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Create("task")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	tasks := s.List()
	assert.Len(t, tasks, n)
	seen := map[int]bool{}
	for _, task := range tasks {
		assert.False(t, seen[task.ID])
		seen[task.ID] = true
	}
}

func TestBulkCompletion(t *testing.T) {
	s := newTestStore(t, "")
	a := mustCreate(t, s, "a")
	mustCreate(t, s, "b")
	mustCreate(t, s, "c")

	done := true
	_, _, err := s.Update(a.ID, domain.TaskPatch{Completed: &done})
	assert.NoError(t, err)

	changed, err := s.CompleteAll()
	assert.NoError(t, err)
	assert.Len(t, changed, 2)
	assert.Equal(t, domain.Stats{Total: 3, Completed: 3}, domain.Summarize(s.List()))

	changed, err = s.CompleteAll()
	assert.NoError(t, err)
	assert.Len(t, changed, 0)

	changed, err = s.UncheckCompleted()
	assert.NoError(t, err)
	assert.Len(t, changed, 3)
	for _, task := range s.List() {
		assert.False(t, task.Completed)
	}
}
