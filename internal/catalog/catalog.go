// Package catalog implements the narrow task-persistence interface the
// supervisor and HTTP admission layer depend on, backed by Postgres via
// database/sql and the pgx stdlib driver (SQL statements kept as named
// constants, context-first methods, zerolog on every failure path).
package catalog

import (
	"context"

	"github.com/adred-codev/taskflow/internal/task"
)

// Catalog is the persistence contract the supervisor and HTTP admission
// layer depend on. Implemented by *Postgres.
type Catalog interface {
	Create(ctx context.Context, t *task.Task) error
	Update(ctx context.Context, t *task.Task) error
	UpdateStatus(ctx context.Context, id string, status task.Status) error
	UpdateHeartbeat(ctx context.Context, id string, unixSeconds int64) error
	Fetch(ctx context.Context, id string) (*task.Task, error)
	FetchList(ctx context.Context, status task.Status, pageSize, page int) ([]*task.Task, error)
	Count(ctx context.Context, status task.Status) (int, error)
	GetRunning(ctx context.Context) ([]*task.Task, error)
}

// clampPaging clamps page_size to (0, 100] and page to [0, inf).
func clampPaging(pageSize, page int) (int, int) {
	if pageSize <= 0 {
		pageSize = 1
	}
	if pageSize > 100 {
		pageSize = 100
	}
	if page < 0 {
		page = 0
	}
	return pageSize, page
}
