// Package kafkasrc implements the Kafka variant of the source plugin
// contract on top of franz-go: a long-running poll loop that logs and
// continues past fetch errors rather than exiting, with offsets
// committed asynchronously via the client's autocommit.
package kafkasrc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/adred-codev/taskflow/internal/metrics"
	"github.com/adred-codev/taskflow/internal/plugin"
)

// Config is the Kafka source's wiring: broker, topic, and a decoder
// name (only "json" is supported today). The consumer group.id is not
// configurable here: every task consumes under its own group,
// "verb-"+task_id, derived in Start.
type Config struct {
	Broker  string          `json:"broker"`
	Topic   string          `json:"topic"`
	Decoder string          `json:"decoder"`
	Meta    json.RawMessage `json:"meta,omitempty"`
}

// Source is the kafka Source plugin. Log is the base logger; per-task
// fields are attached when Start is called.
type Source struct {
	Log zerolog.Logger
}

func New(log zerolog.Logger) *Source { return &Source{Log: log} }

func (s *Source) Name() string { return "kafka" }

func (s *Source) DefaultConfig() json.RawMessage {
	return json.RawMessage(`{"broker":"","topic":"","decoder":"json"}`)
}

func (s *Source) Validate(cfg json.RawMessage) error {
	var c Config
	if err := json.Unmarshal(cfg, &c); err != nil {
		return fmt.Errorf("kafkasrc: invalid config: %w", err)
	}
	if c.Broker == "" {
		return errors.New("kafkasrc: broker is required")
	}
	if c.Topic == "" {
		return errors.New("kafkasrc: topic is required")
	}
	return nil
}

// Start builds a consumer and polls until ctx is cancelled. It never
// returns on a transient fetch error; only ctx cancellation (or an
// unrecoverable client construction failure) ends the loop.
func (s *Source) Start(ctx context.Context, taskID string, cfg json.RawMessage, out chan<- plugin.Message) error {
	var c Config
	if err := json.Unmarshal(cfg, &c); err != nil {
		return fmt.Errorf("kafkasrc: decode config: %w", err)
	}
	if c.Decoder == "" {
		c.Decoder = "json"
	}

	groupID := "verb-" + taskID
	log := s.Log.With().Str("task_id", taskID).Str("topic", c.Topic).Logger()

	client, err := kgo.NewClient(
		kgo.SeedBrokers(c.Broker),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(c.Topic),
		kgo.SessionTimeout(6*time.Second),
		kgo.OnPartitionsAssigned(func(_ context.Context, _ *kgo.Client, assigned map[string][]int32) {
			log.Info().Interface("partitions", assigned).Msg("kafkasrc: partitions assigned")
		}),
		kgo.OnPartitionsRevoked(func(_ context.Context, _ *kgo.Client, revoked map[string][]int32) {
			log.Info().Interface("partitions", revoked).Msg("kafkasrc: partitions revoked")
		}),
	)
	if err != nil {
		return fmt.Errorf("kafkasrc: new client: %w", err)
	}
	defer client.Close()

	log.Info().Str("group_id", groupID).Msg("kafkasrc: consumer started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("kafkasrc: cancel signal observed, stopping")
			return nil
		default:
		}

		fetches := client.PollFetches(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, fe := range errs {
				log.Error().Err(fe.Err).Str("topic", fe.Topic).Int32("partition", fe.Partition).Msg("kafkasrc: fetch error")
			}
			continue
		}

		fetches.EachRecord(func(record *kgo.Record) {
			s.processRecord(ctx, log, taskID, &c, record, out)
		})
	}
}

func (s *Source) processRecord(ctx context.Context, log zerolog.Logger, taskID string, c *Config, record *kgo.Record, out chan<- plugin.Message) {
	if len(record.Value) == 0 {
		log.Warn().Msg("kafkasrc: empty payload, skipping record")
		metrics.SourceMessagesTotal.WithLabelValues("skipped_empty").Inc()
		return
	}

	gid := string(record.Key)
	if gid == "" {
		gid = uuid.NewString()
	}

	if c.Decoder != "json" {
		log.Warn().Str("decoder", c.Decoder).Msg("kafkasrc: unsupported decoder, skipping record")
		metrics.SourceMessagesTotal.WithLabelValues("skipped_decode_error").Inc()
		return
	}

	var probe any
	if err := json.Unmarshal(record.Value, &probe); err != nil {
		log.Warn().Err(err).Msg("kafkasrc: decode failure, skipping record")
		metrics.SourceMessagesTotal.WithLabelValues("skipped_decode_error").Inc()
		return
	}
	if probe == nil {
		metrics.SourceMessagesTotal.WithLabelValues("skipped_null").Inc()
		return
	}

	select {
	case out <- plugin.Message{GID: gid, Value: json.RawMessage(record.Value)}:
		metrics.SourceMessagesTotal.WithLabelValues("pushed").Inc()
		metrics.QueueDepth.WithLabelValues(taskID).Set(float64(len(out)))
	case <-ctx.Done():
	}
}

// ConnectTest opens a transient client, fetches topic metadata with a
// 10-second timeout, and reports ok/connect failed/topic not found.
func (s *Source) ConnectTest(ctx context.Context, cfg json.RawMessage) plugin.ConnectResult {
	var c Config
	if err := json.Unmarshal(cfg, &c); err != nil {
		return plugin.ConnectResult{Status: plugin.ConnectFailed, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := kgo.NewClient(kgo.SeedBrokers(c.Broker))
	if err != nil {
		return plugin.ConnectResult{Status: plugin.ConnectFailed, Err: err}
	}
	defer client.Close()

	admin := kadm.NewClient(client)
	topics, err := admin.ListTopics(ctx, c.Topic)
	if err != nil {
		return plugin.ConnectResult{Status: plugin.ConnectFailed, Err: err}
	}
	detail, ok := topics[c.Topic]
	if !ok || detail.Err != nil {
		return plugin.ConnectResult{Status: plugin.ConnectTopicNotFound}
	}
	return plugin.ConnectResult{Status: plugin.ConnectOK}
}
