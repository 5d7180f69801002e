// server/store/codec.go
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/pretty"

	"github.com/ViniZap4/tasks-server/domain"
)

var (
	errEmptyFile = errors.New("file is empty")
	errNoTasks   = errors.New("missing tasks array")
	errBadRecord = errors.New("malformed task record")
)

// encodeCollection renders tasks as a pretty-printed {"tasks": [...]} document.
func encodeCollection(tasks []domain.Task) ([]byte, error) {
	if tasks == nil {
		tasks = []domain.Task{}
	}
	raw, err := json.Marshal(domain.Collection{Tasks: tasks})
	if err != nil {
		return nil, fmt.Errorf("failed to encode collection: %w", err)
	}
	return pretty.Pretty(raw), nil
}

// decodeCollection accepts only an object whose "tasks" member is an array of
// well-typed tasks with positive, distinct ids and non-blank titles. Anything
// else counts as corruption.
func decodeCollection(data []byte) ([]domain.Task, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errEmptyFile
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse collection: %w", err)
	}

	raw := bytes.TrimSpace(doc["tasks"])
	if len(raw) == 0 || raw[0] != '[' {
		return nil, errNoTasks
	}

	var tasks []domain.Task
	if err := json.Unmarshal(raw, &tasks); err != nil {
		return nil, fmt.Errorf("failed to parse tasks: %w", err)
	}

	seen := make(map[int]struct{}, len(tasks))
	for i, t := range tasks {
		switch {
		case t.ID <= 0:
			return nil, fmt.Errorf("%w: index %d has id %d", errBadRecord, i, t.ID)
		case strings.TrimSpace(t.Title) == "":
			return nil, fmt.Errorf("%w: id %d has a blank title", errBadRecord, t.ID)
		}
		if _, dup := seen[t.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %d", errBadRecord, t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	return tasks, nil
}
