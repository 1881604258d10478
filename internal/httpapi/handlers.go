package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/adred-codev/taskflow/internal/apperr"
	"github.com/adred-codev/taskflow/internal/chryx"
	"github.com/adred-codev/taskflow/internal/task"
)

type taskNewRequest struct {
	Name       string          `json:"name"`
	SrcType    string          `json:"src_type"`
	SrcCfg     json.RawMessage `json:"src_cfg"`
	DstType    string          `json:"dst_type"`
	DstCfg     json.RawMessage `json:"dst_cfg"`
	TaskingCfg json.RawMessage `json:"tasking_cfg"`
	DebugText  string          `json:"debug_text"`
	Properties json.RawMessage `json:"properties"`
}

func (s *Server) handleTaskNew(w http.ResponseWriter, r *http.Request) {
	if setCORS(w, r, http.MethodPost) {
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, apperr.InvalidConfig("method not allowed"))
		return
	}

	var req taskNewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.InvalidConfig("malformed request body: "+err.Error()))
		return
	}

	if err := s.validatePluginConfigs(req.SrcType, req.SrcCfg, req.DstType, req.DstCfg); err != nil {
		writeError(w, err)
		return
	}

	now := nowUnix()
	t := &task.Task{
		ID:         task.NewID(),
		Name:       req.Name,
		SrcType:    req.SrcType,
		DstType:    req.DstType,
		SrcCfg:     req.SrcCfg,
		DstCfg:     req.DstCfg,
		TaskingCfg: req.TaskingCfg,
		Status:     task.StatusCreated,
		CreatedAt:  now,
		UpdatedAt:  now,
		DebugText:  req.DebugText,
		Properties: req.Properties,
	}

	if err := s.Catalog.Create(r.Context(), t); err != nil {
		writeError(w, apperr.PersistenceWrite(err))
		return
	}
	writeOK(w, t)
}

func (s *Server) validatePluginConfigs(srcType string, srcCfg json.RawMessage, dstType string, dstCfg json.RawMessage) error {
	src, ok := s.Sources.Lookup(srcType)
	if !ok {
		return apperr.UnsupportedPlugin(srcType)
	}
	if err := src.Validate(srcCfg); err != nil {
		return apperr.InvalidConfig(err.Error())
	}
	sink, ok := s.Sinks.Lookup(dstType)
	if !ok {
		return apperr.UnsupportedPlugin(dstType)
	}
	if err := sink.Validate(dstCfg); err != nil {
		return apperr.InvalidConfig(err.Error())
	}
	return nil
}

func (s *Server) handleTaskList(w http.ResponseWriter, r *http.Request) {
	if setCORS(w, r, http.MethodGet) {
		return
	}
	status := parseStatus(r)
	pageSize := parseIntQuery(r, "page_size", 20)
	page := parseIntQuery(r, "page", 0)

	tasks, err := s.Catalog.FetchList(r.Context(), status, pageSize, page)
	if err != nil {
		writeError(w, apperr.PersistenceRead(err))
		return
	}
	writeOK(w, tasks)
}

func (s *Server) handleTaskCount(w http.ResponseWriter, r *http.Request) {
	if setCORS(w, r, http.MethodGet) {
		return
	}
	status := parseStatus(r)
	n, err := s.Catalog.Count(r.Context(), status)
	if err != nil {
		writeError(w, apperr.PersistenceRead(err))
		return
	}
	writeOK(w, map[string]int{"count": n})
}

func (s *Server) handleTaskUpdate(w http.ResponseWriter, r *http.Request) {
	if setCORS(w, r, http.MethodPut) {
		return
	}
	if r.Method != http.MethodPut {
		writeError(w, apperr.InvalidConfig("method not allowed"))
		return
	}

	var t task.Task
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, apperr.InvalidConfig("malformed request body: "+err.Error()))
		return
	}

	existing, err := s.Catalog.Fetch(r.Context(), t.ID)
	if err != nil {
		writeError(w, apperr.PersistenceRead(err))
		return
	}
	if existing == nil {
		writeError(w, apperr.NotFound("task not found", apperr.CodeNotFoundOnFetch))
		return
	}
	if existing.Status == task.StatusRunning {
		writeError(w, apperr.New(apperr.KindAlreadyRunning, apperr.CodeAlreadyRunningUpdate, "cannot update a running task"))
		return
	}

	if err := s.validatePluginConfigs(t.SrcType, t.SrcCfg, t.DstType, t.DstCfg); err != nil {
		writeError(w, err)
		return
	}

	t.UpdatedAt = nowUnix()
	if err := s.Catalog.Update(r.Context(), &t); err != nil {
		writeError(w, apperr.PersistenceWrite(err))
		return
	}
	writeOK(w, &t)
}

func (s *Server) handleTaskStart(w http.ResponseWriter, r *http.Request) {
	if setCORS(w, r, http.MethodGet) {
		return
	}
	taskID := r.URL.Query().Get("task_id")
	if taskID == "" {
		writeError(w, apperr.InvalidConfig("task_id is required"))
		return
	}

	t, err := s.Catalog.Fetch(r.Context(), taskID)
	if err != nil {
		writeError(w, apperr.PersistenceRead(err))
		return
	}
	if t == nil {
		writeError(w, apperr.NotFound("task not found", apperr.CodeNotFoundOnStart))
		return
	}

	ok := s.Supervisor.Dispatch(t.ID, t.SrcType, t.SrcCfg, t.DstType, t.DstCfg, t.TaskingCfg, s.closeHook())
	if !ok {
		writeError(w, apperr.UnsupportedPlugin(t.SrcType+"/"+t.DstType))
		return
	}

	if err := s.Catalog.UpdateStatus(r.Context(), t.ID, task.StatusRunning); err != nil {
		writeError(w, apperr.PersistenceAfterStart(err))
		return
	}
	writeOK(w, map[string]string{"task_id": t.ID, "status": task.StatusRunning.String()})
}

func (s *Server) handleTaskCancel(w http.ResponseWriter, r *http.Request) {
	if setCORS(w, r, http.MethodPost) {
		return
	}
	var req struct {
		TaskID string `json:"task_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.InvalidConfig("malformed request body: "+err.Error()))
		return
	}
	if req.TaskID == "" {
		writeError(w, apperr.InvalidConfig("task_id is required"))
		return
	}

	s.Supervisor.Registry.RemoveAndCancel(req.TaskID)
	writeOK(w, map[string]string{"task_id": req.TaskID})
}

type connectTestingRequest struct {
	DetectType string          `json:"detect_type"`
	Cfg        json.RawMessage `json:"cfg"`
}

func (s *Server) handleConnectTesting(w http.ResponseWriter, r *http.Request) {
	if setCORS(w, r, http.MethodPost) {
		return
	}
	var req connectTestingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.InvalidConfig("malformed request body: "+err.Error()))
		return
	}

	src, ok := s.Sources.Lookup(req.DetectType)
	if !ok {
		writeError(w, apperr.UnsupportedPlugin(req.DetectType))
		return
	}

	result := src.ConnectTest(r.Context(), req.Cfg)
	resp := map[string]any{"status": string(result.Status)}
	if result.Err != nil {
		resp["error"] = result.Err.Error()
	}
	writeOK(w, resp)
}

type debugRequest struct {
	Sep      string          `json:"sep"`
	MaxDepth int             `json:"max_depth"`
	Ignore   []string        `json:"ignore"`
	Fold     []string        `json:"fold"`
	GID      string          `json:"g_id"`
	Sample   json.RawMessage `json:"sample"`
}

// handleTaskDebug runs the flattening engine against a sample payload
// and returns the raw rows.
func (s *Server) handleTaskDebug(w http.ResponseWriter, r *http.Request) {
	if setCORS(w, r, http.MethodPost) {
		return
	}
	rows, err := s.flattenDebugRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, rows)
}

// handleTaskDebugPreview is the same operation, but returns the rows
// serialized with chryx.MarshalSorted (as the envelope's data) for
// stable, order-independent comparison in a preview UI.
func (s *Server) handleTaskDebugPreview(w http.ResponseWriter, r *http.Request) {
	if setCORS(w, r, http.MethodPost) {
		return
	}
	rows, err := s.flattenDebugRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	sorted, err := chryx.MarshalSorted(rows)
	if err != nil {
		writeError(w, apperr.InvalidConfig("failed to serialize preview: "+err.Error()))
		return
	}
	writeOK(w, json.RawMessage(sorted))
}

func (s *Server) flattenDebugRequest(r *http.Request) ([]chryx.Row, error) {
	var req debugRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, apperr.InvalidConfig("malformed request body: " + err.Error())
	}

	root, err := chryx.Parse(req.Sample)
	if err != nil {
		return nil, apperr.InvalidConfig("sample is not valid JSON: " + err.Error())
	}

	cfg := chryx.NewConfig(req.Sep, req.MaxDepth, req.Ignore, req.Fold)
	return chryx.Flatten(cfg, req.GID, root), nil
}
