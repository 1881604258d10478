package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	"github.com/adred-codev/taskflow/internal/metrics"
	"github.com/adred-codev/taskflow/internal/task"
)

// SQL statements kept as constants for clarity and reuse, following the
// pack's outbox-worker convention.
const (
	schemaSQL = `
CREATE TABLE IF NOT EXISTS task (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	src_type        TEXT NOT NULL,
	dst_type        TEXT NOT NULL,
	src_cfg         JSONB NOT NULL DEFAULT '{}',
	dst_cfg         JSONB NOT NULL DEFAULT '{}',
	tasking_cfg     JSONB NOT NULL DEFAULT '{}',
	status          SMALLINT NOT NULL,
	last_heartbeat  BIGINT NOT NULL DEFAULT 0,
	created_at      BIGINT NOT NULL,
	updated_at      BIGINT NOT NULL,
	deleted_at      BIGINT NOT NULL DEFAULT 0,
	debug_text      TEXT NOT NULL DEFAULT '',
	properties      JSONB NOT NULL DEFAULT '{}'
)`

	insertTaskSQL = `
INSERT INTO task (id, name, src_type, dst_type, src_cfg, dst_cfg, tasking_cfg,
	status, last_heartbeat, created_at, updated_at, deleted_at, debug_text, properties)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`

	updateTaskSQL = `
UPDATE task SET name=$2, src_type=$3, dst_type=$4, src_cfg=$5, dst_cfg=$6,
	tasking_cfg=$7, status=$8, updated_at=$9, debug_text=$10, properties=$11
WHERE id=$1`

	updateStatusSQL = `UPDATE task SET status=$2, updated_at=$3 WHERE id=$1`

	updateHeartbeatSQL = `UPDATE task SET last_heartbeat=$2 WHERE id=$1`

	fetchTaskSQL = `
SELECT id, name, src_type, dst_type, src_cfg, dst_cfg, tasking_cfg, status,
	last_heartbeat, created_at, updated_at, deleted_at, debug_text, properties
FROM task WHERE id=$1 AND deleted_at=0`

	fetchListSQL = `
SELECT id, name, src_type, dst_type, src_cfg, dst_cfg, tasking_cfg, status,
	last_heartbeat, created_at, updated_at, deleted_at, debug_text, properties
FROM task WHERE status=$1 AND deleted_at=0 ORDER BY created_at ASC LIMIT $2 OFFSET $3`

	countSQL = `SELECT count(*) FROM task WHERE status=$1 AND deleted_at=0`
)

// Postgres implements Catalog against a database/sql pool using the pgx
// stdlib driver. Open builds its own pool; NewPostgres wraps an
// injected *sql.DB.
type Postgres struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open registers the pgx stdlib driver (imported for side effect above)
// and opens a pool against dsn, then ensures the task table exists.
func Open(ctx context.Context, dsn string, log zerolog.Logger) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("catalog: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("catalog: create schema: %w", err)
	}
	return &Postgres{db: db, log: log}, nil
}

func NewPostgres(db *sql.DB, log zerolog.Logger) *Postgres {
	return &Postgres{db: db, log: log}
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Create(ctx context.Context, t *task.Task) error {
	_, err := p.db.ExecContext(ctx, insertTaskSQL,
		t.ID, t.Name, t.SrcType, t.DstType, rawOrEmpty(t.SrcCfg), rawOrEmpty(t.DstCfg),
		rawOrEmpty(t.TaskingCfg), t.Status, t.LastHeartbeat, t.CreatedAt, t.UpdatedAt,
		t.DeletedAt, t.DebugText, rawOrEmpty(t.Properties))
	if err != nil {
		p.log.Error().Err(err).Str("task_id", t.ID).Msg("catalog: create failed")
		metrics.CatalogOperationsTotal.WithLabelValues("create", "error").Inc()
		return fmt.Errorf("catalog: create %s: %w", t.ID, err)
	}
	metrics.CatalogOperationsTotal.WithLabelValues("create", "ok").Inc()
	return nil
}

func (p *Postgres) Update(ctx context.Context, t *task.Task) error {
	res, err := p.db.ExecContext(ctx, updateTaskSQL,
		t.ID, t.Name, t.SrcType, t.DstType, rawOrEmpty(t.SrcCfg), rawOrEmpty(t.DstCfg),
		rawOrEmpty(t.TaskingCfg), t.Status, t.UpdatedAt, t.DebugText, rawOrEmpty(t.Properties))
	if err != nil {
		p.log.Error().Err(err).Str("task_id", t.ID).Msg("catalog: update failed")
		return fmt.Errorf("catalog: update %s: %w", t.ID, err)
	}
	return checkRowsAffected(res, t.ID)
}

func (p *Postgres) UpdateStatus(ctx context.Context, id string, status task.Status) error {
	res, err := p.db.ExecContext(ctx, updateStatusSQL, id, status, nowUnix())
	if err != nil {
		p.log.Error().Err(err).Str("task_id", id).Msg("catalog: update_status failed")
		metrics.CatalogOperationsTotal.WithLabelValues("update_status", "error").Inc()
		return fmt.Errorf("catalog: update_status %s: %w", id, err)
	}
	if err := checkRowsAffected(res, id); err != nil {
		metrics.CatalogOperationsTotal.WithLabelValues("update_status", "error").Inc()
		return err
	}
	metrics.CatalogOperationsTotal.WithLabelValues("update_status", "ok").Inc()
	return nil
}

func (p *Postgres) UpdateHeartbeat(ctx context.Context, id string, unixSeconds int64) error {
	res, err := p.db.ExecContext(ctx, updateHeartbeatSQL, id, unixSeconds)
	if err != nil {
		p.log.Error().Err(err).Str("task_id", id).Msg("catalog: update_heartbeat failed")
		return fmt.Errorf("catalog: update_heartbeat %s: %w", id, err)
	}
	return checkRowsAffected(res, id)
}

func (p *Postgres) Fetch(ctx context.Context, id string) (*task.Task, error) {
	row := p.db.QueryRowContext(ctx, fetchTaskSQL, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		p.log.Error().Err(err).Str("task_id", id).Msg("catalog: fetch failed")
		return nil, fmt.Errorf("catalog: fetch %s: %w", id, err)
	}
	return t, nil
}

func (p *Postgres) FetchList(ctx context.Context, status task.Status, pageSize, page int) ([]*task.Task, error) {
	pageSize, page = clampPaging(pageSize, page)
	rows, err := p.db.QueryContext(ctx, fetchListSQL, status, pageSize, page*pageSize)
	if err != nil {
		p.log.Error().Err(err).Msg("catalog: fetch_list failed")
		return nil, fmt.Errorf("catalog: fetch_list: %w", err)
	}
	defer rows.Close()

	var out []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: fetch_list scan: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) Count(ctx context.Context, status task.Status) (int, error) {
	var n int
	if err := p.db.QueryRowContext(ctx, countSQL, status).Scan(&n); err != nil {
		p.log.Error().Err(err).Msg("catalog: count failed")
		return 0, fmt.Errorf("catalog: count: %w", err)
	}
	return n, nil
}

// GetRunning walks pages of 100 until a short page is returned.
func (p *Postgres) GetRunning(ctx context.Context) ([]*task.Task, error) {
	const pageSize = 100
	var out []*task.Task
	for page := 0; ; page++ {
		tasks, err := p.FetchList(ctx, task.StatusRunning, pageSize, page)
		if err != nil {
			return nil, err
		}
		out = append(out, tasks...)
		if len(tasks) < pageSize {
			return out, nil
		}
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*task.Task, error) {
	var t task.Task
	if err := row.Scan(&t.ID, &t.Name, &t.SrcType, &t.DstType, &t.SrcCfg, &t.DstCfg,
		&t.TaskingCfg, &t.Status, &t.LastHeartbeat, &t.CreatedAt, &t.UpdatedAt,
		&t.DeletedAt, &t.DebugText, &t.Properties); err != nil {
		return nil, err
	}
	return &t, nil
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("catalog: rows affected for %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("catalog: task %s not found", id)
	}
	return nil
}

func nowUnix() int64 { return time.Now().Unix() }

func rawOrEmpty(b []byte) []byte {
	if len(b) == 0 {
		return []byte("{}")
	}
	return b
}
