// Package plugin defines the source/sink capability contract supervisor
// workers are built against, and the Message type that flows between
// them over the bounded queue.
package plugin

import (
	"context"
	"encoding/json"
)

// Message pairs a group id with the decoded JSON value produced by a
// source record. g_id links every row the sink later flattens out of
// this message back to its originating source record.
type Message struct {
	GID   string
	Value json.RawMessage
}

// ConnectStatus is the outcome of a source's connect test.
type ConnectStatus string

const (
	ConnectOK            ConnectStatus = "ok"
	ConnectFailed        ConnectStatus = "connect failed"
	ConnectTopicNotFound ConnectStatus = "topic not found"
)

// ConnectResult is returned by Source.ConnectTest.
type ConnectResult struct {
	Status ConnectStatus
	Err    error
}

// Source adapts the supervisor to an external system it reads from.
// Start must block, pushing messages onto out until ctx is cancelled or
// an unrecoverable error occurs; it must never spin without blocking at
// a suspension point (fetch, queue send, or ctx.Done()).
type Source interface {
	Name() string
	DefaultConfig() json.RawMessage
	Validate(cfg json.RawMessage) error
	Start(ctx context.Context, taskID string, cfg json.RawMessage, out chan<- Message) error
	ConnectTest(ctx context.Context, cfg json.RawMessage) ConnectResult
}

// Sink adapts the supervisor to an external system it publishes to.
// Start must block, draining in until the channel is closed and empty,
// then return.
type Sink interface {
	Name() string
	DefaultConfig() json.RawMessage
	Validate(cfg json.RawMessage) error
	Start(ctx context.Context, taskID string, cfg json.RawMessage, taskingCfg json.RawMessage, in <-chan Message) error
}

// SourceRegistry and SinkRegistry are process-wide, read-only-after-init
// maps of plugin name to implementation, initialized once at process
// startup.
type SourceRegistry map[string]Source
type SinkRegistry map[string]Sink

func (r SourceRegistry) Lookup(name string) (Source, bool) {
	s, ok := r[name]
	return s, ok
}

func (r SinkRegistry) Lookup(name string) (Sink, bool) {
	s, ok := r[name]
	return s, ok
}
