package server

import (
	"net/http"

	"github.com/alfredjeanlab/envtree/internal/model"
)

type createProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// handleCreateProject handles POST /v1/projects.
func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := s.svc.CreateProject(r.Context(), userID(r.Context()), req.Name, req.Description)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// handleListProjects handles GET /v1/projects.
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.svc.ListProjects(r.Context(), userID(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if projects == nil {
		projects = []*model.Project{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

// handleGetProject handles GET /v1/projects/{projectId}.
func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.GetProject(r.Context(), userID(r.Context()), r.PathValue("projectId"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleDeleteProject handles DELETE /v1/projects/{projectId}.
func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteProject(r.Context(), userID(r.Context()), r.PathValue("projectId")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addMemberRequest struct {
	Email string `json:"email"`
}

// handleAddMember handles POST /v1/projects/{projectId}/members.
func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	var req addMemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	member, err := s.svc.AddMember(r.Context(), userID(r.Context()), r.PathValue("projectId"), req.Email)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

// handleProjectEvents handles GET /v1/projects/{projectId}/events.
func (s *Server) handleProjectEvents(w http.ResponseWriter, r *http.Request) {
	evs, err := s.svc.Events(r.Context(), userID(r.Context()), r.PathValue("projectId"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if evs == nil {
		evs = []*model.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evs})
}
