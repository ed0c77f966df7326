// Package controlapi is an optional HTTP control surface in front of a
// DownloadFacade: enqueue, inspect, and control downloads from another
// local process. Route layout, loopback enforcement, and token auth are
// adapted from the teacher's internal/api.ControlServer; unlike that
// server there is no feature flag gating it (this module has no AI
// toggle to check) and the token header is renamed to this project's
// own.
package controlapi

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"burncloud-aria2/internal/audit"
	"burncloud-aria2/internal/facade"
)

// Server fronts a DownloadFacade with an authenticated, loopback-only
// HTTP API.
type Server struct {
	facade *facade.Facade
	audit  *audit.Logger
	token  string
	router *chi.Mux
}

// New builds a Server. token is compared against the
// X-BurnCloud-Token request header on every call.
func New(f *facade.Facade, auditLogger *audit.Logger, token string) *Server {
	s := &Server{
		facade: f,
		audit:  auditLogger,
		token:  token,
		router: chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// Start binds a loopback-only listener on port and serves until the
// listener or server fails.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	conn, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("control server failed to bind: %w", err)
	}
	return http.Serve(conn, s.router)
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.securityMiddleware)

	s.router.Post("/v1/downloads", s.handleAddDownload)
	s.router.Get("/v1/downloads", s.handleListDownloads)
	s.router.Get("/v1/downloads/{id}", s.handleGetDownload)
	s.router.Post("/v1/downloads/{id}/control", s.handleControl)
	s.router.Get("/v1/status", s.handleStatus)
}

func (s *Server) securityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sourceIP, _, _ := net.SplitHostPort(r.RemoteAddr)
		action := fmt.Sprintf("%s %s", r.Method, r.URL.Path)

		if sourceIP != "127.0.0.1" && sourceIP != "::1" {
			s.audit.Log(sourceIP, action, http.StatusForbidden, "external access denied")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		if r.Header.Get("X-BurnCloud-Token") != s.token {
			s.audit.Log(sourceIP, action, http.StatusUnauthorized, "invalid token")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		s.audit.Log(sourceIP, action, http.StatusOK, "authorized")
		next.ServeHTTP(w, r)
	})
}

type addDownloadRequest struct {
	URL        string `json:"url"`
	TargetPath string `json:"target_path"`
}

type addDownloadResponse struct {
	TaskID string `json:"task_id"`
}

func (s *Server) handleAddDownload(w http.ResponseWriter, r *http.Request) {
	var req addDownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	taskID, err := s.facade.AddDownload(r.Context(), req.URL, req.TargetPath)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(addDownloadResponse{TaskID: taskID})
}

func (s *Server) handleGetDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := s.facade.GetTask(r.Context(), id)
	if err != nil {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(task)
}

func (s *Server) handleListDownloads(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.facade.ListTasks(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(tasks)
}

type controlRequest struct {
	Action string `json:"action"`
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var err error
	switch req.Action {
	case "pause":
		err = s.facade.PauseDownload(r.Context(), id)
	case "resume":
		err = s.facade.ResumeDownload(r.Context(), id)
	case "cancel":
		err = s.facade.CancelDownload(r.Context(), id)
	default:
		http.Error(w, "invalid action", http.StatusBadRequest)
		return
	}

	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	count, err := s.facade.ActiveDownloadCount(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]int{"active_downloads": count})
}

