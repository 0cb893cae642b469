package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/GoCodeAlone/dispatch/agent"
	"github.com/GoCodeAlone/dispatch/delegation"
	"github.com/GoCodeAlone/dispatch/report"
	"github.com/GoCodeAlone/dispatch/task"
)

// registerAPIRoutes registers the authenticated REST routes.
func (s *Server) registerAPIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/tasks", s.submitTask)
	mux.HandleFunc("GET /api/tasks", s.listTasks)
	mux.HandleFunc("GET /api/tasks/{id}", s.getTask)
	mux.HandleFunc("POST /api/tasks/{id}/delegate", s.delegateTask)
	mux.HandleFunc("POST /api/tasks/{id}/complete", s.completeTask)
	mux.HandleFunc("POST /api/tasks/{id}/progress", s.progressTask)

	mux.HandleFunc("GET /api/agents", s.listAgents)
	mux.HandleFunc("POST /api/agents", s.registerAgent)
	mux.HandleFunc("GET /api/agents/{id}", s.getAgent)
	mux.HandleFunc("POST /api/agents/{id}/status", s.setAgentStatus)

	mux.HandleFunc("GET /api/report", s.getReport)
	mux.HandleFunc("GET /api/events", s.listEvents)
	mux.HandleFunc("GET /api/skills", s.listSkills)
}

// httpStatus maps engine errors onto HTTP status codes.
func httpStatus(err error) int {
	var verr *delegation.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, delegation.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, delegation.ErrNoAgentAvailable),
		errors.Is(err, delegation.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeEngineError(w http.ResponseWriter, err error) {
	writeJSONError(w, httpStatus(err), err.Error())
}

// --- Task handlers ---

type submitRequest struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	RequiredSkills []string `json:"required_skills"`
	Priority       string   `json:"priority"`
	Complexity     int      `json:"complexity"`
}

func (s *Server) submitTask(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	res, err := s.engine.Submit(req.Title, req.Description, req.RequiredSkills, task.Priority(req.Priority), req.Complexity)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	var f delegation.TaskFilter
	if st := r.URL.Query().Get("status"); st != "" {
		status := task.Status(st)
		f.Status = &status
	}
	f.AssignedTo = r.URL.Query().Get("assigned_to")
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			f.Limit = n
		}
	}
	tasks, err := s.store.ListTasks(f)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, err := s.store.GetTask(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	assignments, err := s.store.AssignmentsForTask(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"task":        t,
		"assignments": assignments,
	})
}

func (s *Server) delegateTask(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.Delegate(r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type completeRequest struct {
	Success *bool `json:"success"`
}

func (s *Server) completeTask(w http.ResponseWriter, r *http.Request) {
	req := completeRequest{}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	success := true
	if req.Success != nil {
		success = *req.Success
	}
	res, err := s.engine.Complete(r.PathValue("id"), success)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) progressTask(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.MarkInProgress(r.PathValue("id")); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Agent handlers ---

func (s *Server) listAgents(w http.ResponseWriter, _ *http.Request) {
	agents, err := s.store.ActiveAgents()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if agents == nil {
		agents = []*agent.Agent{}
	}
	writeJSON(w, http.StatusOK, agents)
}

func (s *Server) registerAgent(w http.ResponseWriter, r *http.Request) {
	var a agent.Agent
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if a.ID == "" || a.Capacity <= 0 {
		writeJSONError(w, http.StatusBadRequest, "agent id and positive capacity required")
		return
	}
	if err := s.store.RegisterAgent(&a); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) getAgent(w http.ResponseWriter, r *http.Request) {
	a, err := s.store.GetAgent(r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type agentStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) setAgentStatus(w http.ResponseWriter, r *http.Request) {
	var req agentStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	switch agent.Status(req.Status) {
	case agent.StatusActive, agent.StatusIdle, agent.StatusOffline:
	default:
		writeJSONError(w, http.StatusBadRequest, "unknown status "+req.Status)
		return
	}
	if err := s.store.SetAgentStatus(r.PathValue("id"), agent.Status(req.Status)); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Dashboard handlers ---

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	topN := 5
	if l := r.URL.Query().Get("top"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			topN = n
		}
	}
	sum, err := report.Build(s.store, topN)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeJSONError(w, http.StatusNotFound, "event log not configured")
		return
	}
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			limit = n
		}
	}
	evs, err := s.events.History(limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, evs)
}

func (s *Server) listSkills(w http.ResponseWriter, _ *http.Request) {
	if s.skills == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	list, err := s.skills.List()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
