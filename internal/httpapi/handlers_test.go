package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/adred-codev/taskflow/internal/catalog"
	"github.com/adred-codev/taskflow/internal/plugin"
	"github.com/adred-codev/taskflow/internal/registry"
	"github.com/adred-codev/taskflow/internal/supervisor"
)

type stubSource struct{ valid error }

func (stubSource) Name() string                     { return "fake" }
func (stubSource) DefaultConfig() json.RawMessage    { return json.RawMessage(`{}`) }
func (s stubSource) Validate(json.RawMessage) error  { return s.valid }
func (stubSource) Start(context.Context, string, json.RawMessage, chan<- plugin.Message) error {
	return nil
}
func (stubSource) ConnectTest(context.Context, json.RawMessage) plugin.ConnectResult {
	return plugin.ConnectResult{Status: plugin.ConnectOK}
}

type stubSink struct{ valid error }

func (stubSink) Name() string                    { return "fake" }
func (stubSink) DefaultConfig() json.RawMessage   { return json.RawMessage(`{}`) }
func (s stubSink) Validate(json.RawMessage) error { return s.valid }
func (stubSink) Start(context.Context, string, json.RawMessage, json.RawMessage, <-chan plugin.Message) error {
	return nil
}

func newTestServer() *Server {
	cat := catalog.NewMemory()
	reg := registry.New()
	sources := plugin.SourceRegistry{"fake": stubSource{}}
	sinks := plugin.SinkRegistry{"fake": stubSink{}}
	sup := supervisor.New(reg, sources, sinks, cat, zerolog.Nop())
	sup.HeartbeatInterval = 0
	return New(cat, sup, sources, sinks, zerolog.Nop())
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var e envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
		t.Fatalf("failed to decode envelope: %v, body=%s", err, rec.Body.String())
	}
	return e
}

func TestHandleTaskNewSuccess(t *testing.T) {
	s := newTestServer()
	body := `{"name":"t1","src_type":"fake","src_cfg":{},"dst_type":"fake","dst_cfg":{}}`
	req := httptest.NewRequest(http.MethodPost, "/task/new", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	s.handleTaskNew(rec, req)

	e := decodeEnvelope(t, rec)
	if e.ErrNo != 10000 {
		t.Fatalf("expected success envelope, got err_no=%d err_msg=%s", e.ErrNo, e.ErrMsg)
	}
}

func TestHandleTaskNewUnsupportedSource(t *testing.T) {
	s := newTestServer()
	body := `{"name":"t1","src_type":"nope","dst_type":"fake"}`
	req := httptest.NewRequest(http.MethodPost, "/task/new", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	s.handleTaskNew(rec, req)

	e := decodeEnvelope(t, rec)
	if e.ErrNo == 10000 {
		t.Fatal("expected failure for unsupported source plugin")
	}
}

func TestHandleTaskStartNotFound(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/task/start?task_id=missing", nil)
	rec := httptest.NewRecorder()

	s.handleTaskStart(rec, req)

	e := decodeEnvelope(t, rec)
	if e.ErrNo != 10001 {
		t.Fatalf("expected not-found-on-start code 10001, got %d", e.ErrNo)
	}
}

func TestHandleTaskDebugFlattensSample(t *testing.T) {
	s := newTestServer()
	body := `{"sep":"_","max_depth":-1,"sample":{"foo":"baz","complex":[1,2,3]}}`
	req := httptest.NewRequest(http.MethodPost, "/task/debug", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	s.handleTaskDebug(rec, req)

	e := decodeEnvelope(t, rec)
	if e.ErrNo != 10000 {
		t.Fatalf("expected success, got err_no=%d err_msg=%s", e.ErrNo, e.ErrMsg)
	}
	rows, ok := e.Data.([]any)
	if !ok || len(rows) != 3 {
		t.Fatalf("expected 3 flattened rows, got %#v", e.Data)
	}
}

func TestHandleTaskNewThenStartThenCancel(t *testing.T) {
	s := newTestServer()

	createBody := `{"name":"t1","src_type":"fake","dst_type":"fake"}`
	createReq := httptest.NewRequest(http.MethodPost, "/task/new", bytes.NewBufferString(createBody))
	createRec := httptest.NewRecorder()
	s.handleTaskNew(createRec, createReq)
	createEnv := decodeEnvelope(t, createRec)
	if createEnv.ErrNo != 10000 {
		t.Fatalf("create failed: %+v", createEnv)
	}
	data := createEnv.Data.(map[string]any)
	taskID := data["id"].(string)

	startReq := httptest.NewRequest(http.MethodGet, "/task/start?task_id="+taskID, nil)
	startRec := httptest.NewRecorder()
	s.handleTaskStart(startRec, startReq)
	startEnv := decodeEnvelope(t, startRec)
	if startEnv.ErrNo != 10000 {
		t.Fatalf("start failed: %+v", startEnv)
	}

	cancelBody := `{"task_id":"` + taskID + `"}`
	cancelReq := httptest.NewRequest(http.MethodPost, "/task/cancel", bytes.NewBufferString(cancelBody))
	cancelRec := httptest.NewRecorder()
	s.handleTaskCancel(cancelRec, cancelReq)
	cancelEnv := decodeEnvelope(t, cancelRec)
	if cancelEnv.ErrNo != 10000 {
		t.Fatalf("cancel failed: %+v", cancelEnv)
	}
}
