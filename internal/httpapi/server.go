package httpapi

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/adred-codev/taskflow/internal/catalog"
	"github.com/adred-codev/taskflow/internal/plugin"
	"github.com/adred-codev/taskflow/internal/supervisor"
	"github.com/adred-codev/taskflow/internal/task"
)

// Server holds the collaborators the admission layer translates HTTP
// requests into calls against: the catalog, the supervisor (which owns
// the registry), and the plugin registries for validate/connect_test.
type Server struct {
	Catalog    catalog.Catalog
	Supervisor *supervisor.Supervisor
	Sources    plugin.SourceRegistry
	Sinks      plugin.SinkRegistry
	Log        zerolog.Logger
}

func New(cat catalog.Catalog, sup *supervisor.Supervisor, sources plugin.SourceRegistry, sinks plugin.SinkRegistry, log zerolog.Logger) *Server {
	return &Server{Catalog: cat, Supervisor: sup, Sources: sources, Sinks: sinks, Log: log}
}

// Routes builds the mux the admission endpoint table names.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/task/new", s.handleTaskNew)
	mux.HandleFunc("/task/list", s.handleTaskList)
	mux.HandleFunc("/task/count", s.handleTaskCount)
	mux.HandleFunc("/task/update", s.handleTaskUpdate)
	mux.HandleFunc("/task/start", s.handleTaskStart)
	mux.HandleFunc("/task/cancel", s.handleTaskCancel)
	mux.HandleFunc("/connect_testing", s.handleConnectTesting)
	mux.HandleFunc("/task/debug", s.handleTaskDebug)
	mux.HandleFunc("/task/debug/preview", s.handleTaskDebugPreview)
	return mux
}

func parseStatus(r *http.Request) task.Status {
	n, err := strconv.Atoi(r.URL.Query().Get("status"))
	if err != nil {
		return task.StatusCreated
	}
	return task.Status(n)
}

func parseIntQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// closeHook is the hook /task/start passes to Dispatch, built by the
// same supervisor.UpdateStatusHook that cmd/taskd passes to replay: it
// persists StatusCancel to the catalog once a dispatched task's
// workers are gone.
func (s *Server) closeHook() supervisor.CloseHook {
	return supervisor.UpdateStatusHook(s.Catalog, s.Log)
}
