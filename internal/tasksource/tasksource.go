// Package tasksource defines the Task Source contract (spec §6). Concrete
// sources (YAML backlog, Markdown checklist) are external collaborators
// per spec §1 — the scheduler relies only on this abstract contract. An
// in-memory reference implementation is provided for tests.
package tasksource

import (
	"sync"

	"github.com/steveyegge/orchestra/internal/types"
)

// Source is the Task Source contract.
type Source interface {
	// GetNextTask returns the next task, or nil if none remain.
	GetNextTask() *types.Task
	// GetAllTasks returns all remaining tasks.
	GetAllTasks() []types.Task
	// GetParallelGroup returns the group number for a task title, or 0
	// if the task belongs to no group.
	GetParallelGroup(title string) int
	// GetTasksInGroup returns every remaining task sharing group.
	GetTasksInGroup(group int) []types.Task
	// MarkComplete marks the task identified by id as done.
	MarkComplete(id string)
	// CountRemaining returns the number of remaining tasks.
	CountRemaining() int
}

// InMemory is a reference Source backed by a plain slice, useful for
// tests and for embedding a backlog that was already loaded by an
// external collaborator. It supports optional parallel grouping via
// Groups, keyed by task title.
type InMemory struct {
	mu     sync.Mutex
	tasks  []types.Task
	Groups map[string]int
}

// NewInMemory returns an InMemory source seeded with tasks.
func NewInMemory(tasks []types.Task) *InMemory {
	cp := make([]types.Task, len(tasks))
	copy(cp, tasks)
	return &InMemory{tasks: cp, Groups: make(map[string]int)}
}

func (s *InMemory) GetNextTask() *types.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tasks) == 0 {
		return nil
	}
	t := s.tasks[0]
	return &t
}

func (s *InMemory) GetAllTasks() []types.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

func (s *InMemory) GetParallelGroup(title string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Groups[title]
}

func (s *InMemory) GetTasksInGroup(group int) []types.Task {
	if group == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Task
	for _, t := range s.tasks {
		if s.Groups[t.Title] == group {
			out = append(out, t)
		}
	}
	return out
}

func (s *InMemory) MarkComplete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.tasks {
		if t.ID == id {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return
		}
	}
}

func (s *InMemory) CountRemaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// AdvertisesGrouping reports whether this source has any parallel
// grouping configured. The Scheduler type-asserts for this optional
// capability (spec §4.6's "if source advertises parallel grouping"): a
// source that never sets Groups gets the all-remaining-tasks batch
// selection path instead of the next-task-plus-group path.
func (s *InMemory) AdvertisesGrouping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Groups) > 0
}
