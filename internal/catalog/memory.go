package catalog

import (
	"context"
	"sync"

	"github.com/adred-codev/taskflow/internal/task"
)

// Memory is an in-memory Catalog implementation used by tests, favoring
// a swappable interface-based fake over integration-only testing
// against a real Postgres instance.
type Memory struct {
	mu    sync.Mutex
	tasks map[string]*task.Task
}

func NewMemory() *Memory {
	return &Memory{tasks: make(map[string]*task.Task)}
}

func (m *Memory) Create(_ context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *Memory) Update(_ context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[t.ID]; !ok {
		return errNotFound(t.ID)
	}
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *Memory) UpdateStatus(_ context.Context, id string, status task.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return errNotFound(id)
	}
	t.Status = status
	return nil
}

func (m *Memory) UpdateHeartbeat(_ context.Context, id string, unixSeconds int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return errNotFound(id)
	}
	t.LastHeartbeat = unixSeconds
	return nil
}

func (m *Memory) Fetch(_ context.Context, id string) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *Memory) FetchList(_ context.Context, status task.Status, pageSize, page int) ([]*task.Task, error) {
	pageSize, page = clampPaging(pageSize, page)
	m.mu.Lock()
	defer m.mu.Unlock()
	var matches []*task.Task
	for _, t := range m.tasks {
		if t.Status == status {
			cp := *t
			matches = append(matches, &cp)
		}
	}
	start := page * pageSize
	if start >= len(matches) {
		return nil, nil
	}
	end := start + pageSize
	if end > len(matches) {
		end = len(matches)
	}
	return matches[start:end], nil
}

func (m *Memory) Count(_ context.Context, status task.Status) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if t.Status == status {
			n++
		}
	}
	return n, nil
}

func (m *Memory) GetRunning(ctx context.Context) ([]*task.Task, error) {
	return m.FetchList(ctx, task.StatusRunning, 100, 0)
}

type notFoundErr string

func (e notFoundErr) Error() string { return "catalog: task " + string(e) + " not found" }

func errNotFound(id string) error { return notFoundErr(id) }
