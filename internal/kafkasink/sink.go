// Package kafkasink implements the Kafka variant of the sink plugin
// contract: a producer that flattens each drained message via chryx
// and republishes one record per output row, using an async
// produce-with-promise idiom and no transactional semantics.
package kafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/adred-codev/taskflow/internal/chryx"
	"github.com/adred-codev/taskflow/internal/metrics"
	"github.com/adred-codev/taskflow/internal/plugin"
)

// Config is the sink-side Kafka wiring: broker and destination topic.
type Config struct {
	Broker string `json:"broker"`
	Topic  string `json:"topic"`
}

// TaskingConfig is the shape tasking_cfg decodes into for Flattener
// construction. Sep/Ignore fall back to the hard-coded defaults
// (sep="_", ignore={"ts"}) when left as their Go zero value, since
// both are meaningless empty. MaxDepth is a pointer so an explicit
// max_depth:0 (truncate at the root) is distinguishable from the field
// being absent from tasking_cfg altogether; only the latter falls back
// to the default of 32.
type TaskingConfig struct {
	Sep      string   `json:"sep"`
	MaxDepth *int     `json:"max_depth"`
	Ignore   []string `json:"ignore"`
	Fold     []string `json:"fold"`
}

const (
	defaultSep      = "_"
	defaultMaxDepth = 32
)

var defaultIgnore = []string{"ts"}

// Sink is the kafka Sink plugin.
type Sink struct {
	Log zerolog.Logger
}

func New(log zerolog.Logger) *Sink { return &Sink{Log: log} }

func (s *Sink) Name() string { return "kafka" }

func (s *Sink) DefaultConfig() json.RawMessage {
	return json.RawMessage(`{"broker":"","topic":""}`)
}

func (s *Sink) Validate(cfg json.RawMessage) error {
	var c Config
	if err := json.Unmarshal(cfg, &c); err != nil {
		return fmt.Errorf("kafkasink: invalid config: %w", err)
	}
	if c.Broker == "" {
		return errors.New("kafkasink: broker is required")
	}
	if c.Topic == "" {
		return errors.New("kafkasink: topic is required")
	}
	return nil
}

// Start builds a producer and drains in until it is closed, flattening
// and republishing each message.
func (s *Sink) Start(ctx context.Context, taskID string, cfg json.RawMessage, taskingCfg json.RawMessage, in <-chan plugin.Message) error {
	var c Config
	if err := json.Unmarshal(cfg, &c); err != nil {
		return fmt.Errorf("kafkasink: decode config: %w", err)
	}

	log := s.Log.With().Str("task_id", taskID).Str("topic", c.Topic).Logger()

	client, err := kgo.NewClient(
		kgo.SeedBrokers(c.Broker),
		kgo.ProducerBatchMaxBytes(1000000),
		kgo.RecordDeliveryTimeout(5*time.Second),
	)
	if err != nil {
		return fmt.Errorf("kafkasink: new client: %w", err)
	}
	defer client.Close()

	flatCfg := buildFlattenerConfig(taskingCfg)
	log.Info().Msg("kafkasink: producer started")

	for msg := range in {
		s.publishMessage(ctx, log, client, c.Topic, flatCfg, msg)
	}

	log.Info().Msg("kafkasink: input drained, stopping")
	return nil
}

func (s *Sink) publishMessage(ctx context.Context, log zerolog.Logger, client *kgo.Client, topic string, flatCfg chryx.Config, msg plugin.Message) {
	root, err := chryx.Parse(msg.Value)
	if err != nil {
		log.Error().Err(err).Str("g_id", msg.GID).Msg("kafkasink: failed to parse message for flattening")
		return
	}

	start := time.Now()
	rows := chryx.Flatten(flatCfg, msg.GID, root)
	metrics.FlattenDuration.WithLabelValues().Observe(time.Since(start).Seconds())

	for _, row := range rows {
		b, err := json.Marshal(row)
		if err != nil {
			log.Error().Err(err).Str("g_id", msg.GID).Msg("kafkasink: failed to marshal flattened row")
			continue
		}
		record := &kgo.Record{Topic: topic, Value: b}
		client.Produce(ctx, record, func(_ *kgo.Record, err error) {
			if err != nil {
				log.Error().Err(err).Str("g_id", msg.GID).Msg("kafkasink: publish failed")
				metrics.SinkRowsPublishedTotal.WithLabelValues("failed").Inc()
				return
			}
			metrics.SinkRowsPublishedTotal.WithLabelValues("ok").Inc()
		})
	}
}

// buildFlattenerConfig resolves each field of tasking_cfg independently
// against the hard-coded default when absent, rather than the whole
// config being all-or-nothing.
func buildFlattenerConfig(taskingCfg json.RawMessage) chryx.Config {
	var tc TaskingConfig
	if len(taskingCfg) > 0 {
		_ = json.Unmarshal(taskingCfg, &tc)
	}

	sep := tc.Sep
	if sep == "" {
		sep = defaultSep
	}
	maxDepth := defaultMaxDepth
	if tc.MaxDepth != nil {
		maxDepth = *tc.MaxDepth
	}
	ignore := tc.Ignore
	if len(ignore) == 0 {
		ignore = defaultIgnore
	}

	return chryx.NewConfig(sep, maxDepth, ignore, tc.Fold)
}
