// Package supervisor wires a source, a sink, and a bounded queue for one
// task, watches for worker exit, and coordinates cancellation. It never
// retries; retry behavior is entirely delegated to the plugins'
// underlying clients.
package supervisor

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/taskflow/internal/catalog"
	"github.com/adred-codev/taskflow/internal/metrics"
	"github.com/adred-codev/taskflow/internal/plugin"
	"github.com/adred-codev/taskflow/internal/registry"
	"github.com/adred-codev/taskflow/internal/sysinfo"
	"github.com/adred-codev/taskflow/internal/task"
)

// DefaultQueueCapacity bounds per-task memory to O(20) in-flight
// messages: large enough to absorb bursts, small enough to cap backlog.
const DefaultQueueCapacity = 20

// Supervisor dispatches per-task source/sink worker pairs and tracks
// them in a Registry.
type Supervisor struct {
	Registry *registry.Registry
	Sources  plugin.SourceRegistry
	Sinks    plugin.SinkRegistry
	Catalog  catalog.Catalog
	Log      zerolog.Logger

	QueueCapacity     int
	HeartbeatInterval time.Duration

	// MaxConcurrentTasks caps how many tasks may be dispatched at once,
	// sized from the container memory limit via sysinfo. Zero means
	// unbounded (the zero value of Supervisor built by hand rather than
	// New, e.g. in tests, doesn't reject dispatch on task count).
	MaxConcurrentTasks int

	runningCount int64
}

func New(reg *registry.Registry, sources plugin.SourceRegistry, sinks plugin.SinkRegistry, cat catalog.Catalog, log zerolog.Logger) *Supervisor {
	limitBytes, err := sysinfo.MemoryLimitBytes()
	if err != nil {
		log.Warn().Err(err).Msg("supervisor: failed to detect container memory limit, using default task concurrency cap")
		limitBytes = 0
	}

	maxTasks := sysinfo.MaxConcurrentTasks(limitBytes)
	log.Info().Int64("memory_limit_bytes", limitBytes).Int("max_concurrent_tasks", maxTasks).Msg("supervisor: sized concurrency cap from container memory")

	return &Supervisor{
		Registry:           reg,
		Sources:            sources,
		Sinks:              sinks,
		Catalog:            cat,
		Log:                log,
		QueueCapacity:      DefaultQueueCapacity,
		HeartbeatInterval:  time.Second,
		MaxConcurrentTasks: maxTasks,
	}
}

// CloseHook is invoked exactly once when a dispatched task's workers are
// gone, whether due to explicit cancellation or a worker exiting on its
// own (crash or orderly drain). The supervisor itself never calls the
// catalog directly for this; callers typically close over
// catalog.UpdateStatus(ctx, taskID, task.StatusCancel).
type CloseHook func(taskID string)

// Dispatch installs and launches a task's source/sink worker pair. It
// returns false if src_type/dst_type is unknown, or true (idempotently,
// without starting a second pair) if the task is already registered: a
// start request against an already-running task is silently successful.
func (s *Supervisor) Dispatch(taskID, srcType string, srcCfg json.RawMessage, dstType string, dstCfg json.RawMessage, taskingCfg json.RawMessage, hook CloseHook) bool {
	src, ok := s.Sources.Lookup(srcType)
	if !ok {
		s.Log.Error().Str("task_id", taskID).Str("src_type", srcType).Msg("dispatch: unsupported source plugin")
		metrics.TasksDispatchFailedTotal.WithLabelValues("unsupported_source").Inc()
		return false
	}
	sink, ok := s.Sinks.Lookup(dstType)
	if !ok {
		s.Log.Error().Str("task_id", taskID).Str("dst_type", dstType).Msg("dispatch: unsupported sink plugin")
		metrics.TasksDispatchFailedTotal.WithLabelValues("unsupported_sink").Inc()
		return false
	}

	if !s.Registry.Contains(taskID) && s.MaxConcurrentTasks > 0 && atomic.LoadInt64(&s.runningCount) >= int64(s.MaxConcurrentTasks) {
		s.Log.Error().Str("task_id", taskID).Int("max_concurrent_tasks", s.MaxConcurrentTasks).Msg("dispatch: rejected, at concurrent task capacity")
		metrics.TasksDispatchFailedTotal.WithLabelValues("at_capacity").Inc()
		return false
	}

	workerCtx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(2)

	var once sync.Once
	finalize := func() {
		once.Do(func() {
			s.Registry.Remove(taskID)
			cancel()
			metrics.TasksRunning.Dec()
			metrics.QueueDepth.DeleteLabelValues(taskID)
			atomic.AddInt64(&s.runningCount, -1)
			if hook != nil {
				hook(taskID)
			}
		})
	}

	handle := &registry.Handle{TaskID: taskID, Cancel: finalize}
	if !s.Registry.Insert(taskID, handle) {
		cancel()
		s.Log.Info().Str("task_id", taskID).Msg("dispatch: task already running, treated as idempotent success")
		return true
	}

	metrics.TasksDispatchedTotal.WithLabelValues(srcType, dstType).Inc()
	metrics.TasksRunning.Inc()
	atomic.AddInt64(&s.runningCount, 1)

	queue := make(chan plugin.Message, s.queueCapacity())

	go func() {
		defer wg.Done()
		defer close(queue)
		defer s.recoverWorker(taskID, "source")
		if err := src.Start(workerCtx, taskID, srcCfg, queue); err != nil {
			s.Log.Error().Err(err).Str("task_id", taskID).Msg("source worker exited with error")
		}
	}()

	go func() {
		defer wg.Done()
		// A sink that exits on its own (error, panic, or drain) stops the
		// source too, so the watcher below can finalize the task.
		defer cancel()
		defer s.recoverWorker(taskID, "sink")
		if err := sink.Start(workerCtx, taskID, dstCfg, taskingCfg, queue); err != nil {
			s.Log.Error().Err(err).Str("task_id", taskID).Msg("sink worker exited with error")
		}
	}()

	go func() {
		wg.Wait()
		finalize()
	}()

	if s.HeartbeatInterval > 0 && s.Catalog != nil {
		go s.heartbeatLoop(workerCtx, taskID)
	}

	return true
}

func (s *Supervisor) queueCapacity() int {
	if s.QueueCapacity <= 0 {
		return DefaultQueueCapacity
	}
	return s.QueueCapacity
}

// recoverWorker treats a panicking worker the same as one that exited
// with an error: logged, not crashing the process, and the task is
// still cancelled/removed by the caller's deferred wg.Done feeding the
// watcher. Generalizes the worker pool's panic-recovery idiom, previously
// used for websocket broadcast tasks.
func (s *Supervisor) recoverWorker(taskID, role string) {
	if r := recover(); r != nil {
		s.Log.Error().
			Str("task_id", taskID).
			Str("role", role).
			Interface("panic_value", r).
			Str("stack", string(debug.Stack())).
			Msg("worker panic recovered")
	}
}

func (s *Supervisor) heartbeatLoop(ctx context.Context, taskID string) {
	ticker := time.NewTicker(s.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Catalog.UpdateHeartbeat(ctx, taskID, time.Now().Unix()); err != nil {
				s.Log.Warn().Err(err).Str("task_id", taskID).Msg("heartbeat write failed")
			} else {
				metrics.HeartbeatsWrittenTotal.Inc()
			}
		}
	}
}

// Replay dispatches every task persisted as Running, for restart
// recovery after a process crash. Individual failures are logged and
// do not block other replays.
func (s *Supervisor) Replay(ctx context.Context, hook CloseHook) {
	running, err := s.Catalog.GetRunning(ctx)
	if err != nil {
		s.Log.Error().Err(err).Msg("replay: failed to list running tasks")
		return
	}
	for _, t := range running {
		if !s.Dispatch(t.ID, t.SrcType, t.SrcCfg, t.DstType, t.DstCfg, t.TaskingCfg, hook) {
			s.Log.Error().Str("task_id", t.ID).Msg("replay: dispatch failed")
		}
	}
}

// UpdateStatusHook builds a CloseHook that writes task.StatusCancel to
// the catalog, the common case for a close hook.
func UpdateStatusHook(cat catalog.Catalog, log zerolog.Logger) CloseHook {
	return func(taskID string) {
		if err := cat.UpdateStatus(context.Background(), taskID, task.StatusCancel); err != nil {
			log.Error().Err(err).Str("task_id", taskID).Msg("close hook: failed to persist Cancel status")
		}
	}
}
