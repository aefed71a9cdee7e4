package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/haeun-lim/herd/internal/registry"
	"github.com/haeun-lim/herd/internal/supervisor"
	"github.com/haeun-lim/herd/internal/task"
)

// Router provides embeddable HTTP handlers for inspecting the task registry.
// Endpoints:
//   GET  {basePath}/tasks            all entries in this namespace
//   GET  {basePath}/tasks/completed  completed-but-unread entries
//   POST {basePath}/tasks/:pid/kill  terminate a running task
//   POST {basePath}/sweep            reclaim stale entries now
// basePath may be empty or start with '/'; no trailing slash.

type Router struct {
	reg      *registry.Registry
	basePath string
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/api" results in /api/tasks, /api/sweep.
func NewRouter(reg *registry.Registry, basePath string) *Router {
	return &Router{reg: reg, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/tasks", r.handleTasks)
	group.GET("/tasks/completed", r.handleCompleted)
	group.POST("/tasks/:pid/kill", r.handleKill)
	group.POST("/sweep", r.handleSweep)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// Shut it down via http.Server's Close or Shutdown.
func NewServer(addr, basePath string, reg *registry.Registry) (*http.Server, error) {
	r := NewRouter(reg, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type taskView struct {
	PID int `json:"pid"`
	task.Record
}

type sweepResp struct {
	Reclaimed []cleanupView `json:"reclaimed"`
}

type cleanupView struct {
	PID    int    `json:"pid"`
	Reason string `json:"reason"`
	Agent  string `json:"agent"`
}

func viewsOf(entries []registry.Entry) []taskView {
	out := make([]taskView, len(entries))
	for i, e := range entries {
		out[i] = taskView{PID: e.PID, Record: e.Record}
	}
	return out
}

func (r *Router) handleTasks(c *gin.Context) {
	entries, err := r.reg.Entries()
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, viewsOf(entries))
}

func (r *Router) handleCompleted(c *gin.Context) {
	entries, err := r.reg.CompletedUnread()
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, viewsOf(entries))
}

func (r *Router) handleKill(c *gin.Context) {
	pid, err := strconv.Atoi(c.Param("pid"))
	if err != nil || pid <= 0 {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "pid must be a positive integer"})
		return
	}
	rec, err := r.reg.Get(pid)
	if err != nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error()})
		return
	}
	if !rec.Running() {
		writeJSON(c, http.StatusConflict, errorResp{Error: "task already completed"})
		return
	}
	if err := supervisor.Terminate(pid); err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleSweep(c *gin.Context) {
	events, err := r.reg.SweepStale(time.Now().UTC(), supervisor.Alive, supervisor.Terminate)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	resp := sweepResp{Reclaimed: make([]cleanupView, len(events))}
	for i, ev := range events {
		resp.Reclaimed[i] = cleanupView{PID: ev.PID, Reason: string(ev.Reason), Agent: ev.Record.Agent}
	}
	writeJSON(c, http.StatusOK, resp)
}
