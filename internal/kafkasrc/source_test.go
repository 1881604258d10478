package kafkasrc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/adred-codev/taskflow/internal/plugin"
)

func TestValidateRequiresBrokerAndTopic(t *testing.T) {
	s := New(zerolog.Nop())

	cases := []struct {
		name string
		cfg  string
		ok   bool
	}{
		{"missing both", `{}`, false},
		{"missing topic", `{"broker":"localhost:9092"}`, false},
		{"missing broker", `{"topic":"events"}`, false},
		{"complete", `{"broker":"localhost:9092","topic":"events"}`, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := s.Validate(json.RawMessage(tc.cfg))
			if tc.ok && err != nil {
				t.Fatalf("expected valid config, got error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected validation error, got nil")
			}
		})
	}
}

func TestValidateRejectsMalformedJSON(t *testing.T) {
	s := New(zerolog.Nop())
	if err := s.Validate(json.RawMessage(`not json`)); err == nil {
		t.Fatal("expected error for malformed config")
	}
}

func TestDefaultConfigIsValidJSON(t *testing.T) {
	s := New(zerolog.Nop())
	var c Config
	if err := json.Unmarshal(s.DefaultConfig(), &c); err != nil {
		t.Fatalf("default config must unmarshal: %v", err)
	}
}

func TestNameIsKafka(t *testing.T) {
	s := New(zerolog.Nop())
	if s.Name() != "kafka" {
		t.Fatalf("expected plugin name 'kafka', got %q", s.Name())
	}
}

func TestProcessRecordSkipsEmptyPayload(t *testing.T) {
	s := New(zerolog.Nop())
	out := make(chan plugin.Message, 1)
	s.processRecord(context.Background(), s.Log, "t1", &Config{Decoder: "json"}, &kgo.Record{Key: []byte("k1")}, out)
	select {
	case msg := <-out:
		t.Fatalf("expected no message for empty payload, got %+v", msg)
	default:
	}
}

func TestProcessRecordSkipsNullValue(t *testing.T) {
	s := New(zerolog.Nop())
	out := make(chan plugin.Message, 1)
	s.processRecord(context.Background(), s.Log, "t1", &Config{Decoder: "json"}, &kgo.Record{Key: []byte("k1"), Value: []byte("null")}, out)
	select {
	case msg := <-out:
		t.Fatalf("expected no message for JSON null, got %+v", msg)
	default:
	}
}

func TestProcessRecordSkipsDecodeFailure(t *testing.T) {
	s := New(zerolog.Nop())
	out := make(chan plugin.Message, 1)
	s.processRecord(context.Background(), s.Log, "t1", &Config{Decoder: "json"}, &kgo.Record{Value: []byte("{not json")}, out)
	select {
	case msg := <-out:
		t.Fatalf("expected no message for decode failure, got %+v", msg)
	default:
	}
}

func TestProcessRecordUsesKeyAsGID(t *testing.T) {
	s := New(zerolog.Nop())
	out := make(chan plugin.Message, 1)
	s.processRecord(context.Background(), s.Log, "t1", &Config{Decoder: "json"}, &kgo.Record{Key: []byte("order-1"), Value: []byte(`{"a":1}`)}, out)
	msg := <-out
	if msg.GID != "order-1" {
		t.Fatalf("expected g_id to echo record key, got %q", msg.GID)
	}
}

func TestProcessRecordGeneratesGIDWhenKeyAbsent(t *testing.T) {
	s := New(zerolog.Nop())
	out := make(chan plugin.Message, 1)
	s.processRecord(context.Background(), s.Log, "t1", &Config{Decoder: "json"}, &kgo.Record{Value: []byte(`{"a":1}`)}, out)
	msg := <-out
	if msg.GID == "" {
		t.Fatal("expected a generated g_id when record key is absent")
	}
}
