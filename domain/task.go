// server/domain/task.go
package domain

import (
	"errors"
	"time"
)

// TimeLayout is fixed-width so timestamps sort lexically.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// ErrValidation is wrapped by every caller-input rejection.
var ErrValidation = errors.New("validation failed")

type Task struct {
	ID        int    `json:"id" yaml:"id"`
	Title     string `json:"title" yaml:"title"`
	Completed bool   `json:"completed" yaml:"completed"`
	CreatedAt string `json:"createdAt" yaml:"created_at"`
	UpdatedAt string `json:"updatedAt" yaml:"updated_at"`
}

// Collection is the persisted unit, one per primary file.
type Collection struct {
	Tasks []Task `json:"tasks"`
}

// TaskPatch carries a partial update. A nil field is left untouched.
type TaskPatch struct {
	Title     *string
	Completed *bool
}

// Stats mirrors the dashboard counters.
type Stats struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Pending   int `json:"pending"`
}

func Timestamp(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// NextID returns 1 + the largest id, or 1 for an empty list.
func NextID(tasks []Task) int {
	highest := 0
	for _, t := range tasks {
		if t.ID > highest {
			highest = t.ID
		}
	}
	return highest + 1
}

func Summarize(tasks []Task) Stats {
	s := Stats{Total: len(tasks)}
	for _, t := range tasks {
		if t.Completed {
			s.Completed++
		}
	}
	s.Pending = s.Total - s.Completed
	return s
}
