package server

import (
	"fmt"
	"net/http"

	"github.com/alfredjeanlab/envtree/internal/configs"
	"github.com/alfredjeanlab/envtree/internal/export"
	"github.com/alfredjeanlab/envtree/internal/model"
)

// nameRequest is the body of create, duplicate and link.
type nameRequest struct {
	Name string `json:"name"`
}

type renameRequest struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type versionRequest struct {
	Version string `json:"version"`
}

type updateValuesRequest struct {
	Version string         `json:"version"`
	Values  model.ValueMap `json:"values"`
}

type setValueRequest struct {
	Version string  `json:"version"`
	Value   *string `json:"value"`
	Hidden  bool    `json:"hidden"`
	Group   *string `json:"group"`
	// Create rejects the write when the property already exists.
	Create bool `json:"create"`
}

// handleListConfigs handles GET /v1/projects/{projectId}/configs.
func (s *Server) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.List(r.Context(), userID(r.Context()), r.PathValue("projectId"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []*configs.ResolvedConfig{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"configs": list})
}

// handleCreateConfig handles POST /v1/projects/{projectId}/configs.
func (s *Server) handleCreateConfig(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := s.svc.Create(r.Context(), userID(r.Context()), r.PathValue("projectId"), req.Name)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// handleGetConfig handles GET /v1/projects/{projectId}/configs/{configId}.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	rc, err := s.svc.Get(r.Context(), userID(r.Context()), r.PathValue("projectId"), r.PathValue("configId"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rc)
}

// handleRenameConfig handles PATCH /v1/projects/{projectId}/configs/{configId}.
func (s *Server) handleRenameConfig(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := s.svc.Rename(r.Context(), userID(r.Context()), r.PathValue("projectId"), r.PathValue("configId"), req.Version, req.Name)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleDeleteConfig handles DELETE /v1/projects/{projectId}/configs/{configId}.
func (s *Server) handleDeleteConfig(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(r.Context(), userID(r.Context()), r.PathValue("projectId"), r.PathValue("configId")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDuplicateConfig handles POST .../configs/{configId}/duplicate.
func (s *Server) handleDuplicateConfig(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := s.svc.Duplicate(r.Context(), userID(r.Context()), r.PathValue("projectId"), r.PathValue("configId"), req.Name)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// handleLinkConfig handles POST .../configs/{configId}/link. It creates a
// new config inheriting from configId.
func (s *Server) handleLinkConfig(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := s.svc.Link(r.Context(), userID(r.Context()), r.PathValue("projectId"), r.PathValue("configId"), req.Name)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// handleUnlinkConfig handles POST .../configs/{configId}/unlink.
func (s *Server) handleUnlinkConfig(w http.ResponseWriter, r *http.Request) {
	var req versionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := s.svc.Unlink(r.Context(), userID(r.Context()), r.PathValue("projectId"), r.PathValue("configId"), req.Version)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleUpdateValues handles PUT .../configs/{configId}/values.
func (s *Server) handleUpdateValues(w http.ResponseWriter, r *http.Request) {
	var req updateValuesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := s.svc.Update(r.Context(), userID(r.Context()), r.PathValue("projectId"), r.PathValue("configId"), req.Version, req.Values)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleSetValue handles PUT .../configs/{configId}/values/{key}.
func (s *Server) handleSetValue(w http.ResponseWriter, r *http.Request) {
	var req setValueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	value := model.ConfigValue{Value: req.Value, Hidden: req.Hidden, Group: req.Group}
	c, err := s.svc.SetValue(r.Context(), userID(r.Context()), r.PathValue("projectId"), r.PathValue("configId"),
		req.Version, r.PathValue("key"), value, req.Create)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleUnsetValue handles DELETE .../configs/{configId}/values/{key}?version=.
func (s *Server) handleUnsetValue(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.UnsetValue(r.Context(), userID(r.Context()), r.PathValue("projectId"), r.PathValue("configId"),
		r.URL.Query().Get("version"), r.PathValue("key"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleExportConfig handles GET .../configs/{configId}/export?format=.
func (s *Server) handleExportConfig(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	body, err := s.svc.Export(r.Context(), userID(r.Context()), r.PathValue("projectId"), r.PathValue("configId"), format)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.DefaultFilename()))
	writeBody(w, format, body)
}

func writeBody(w http.ResponseWriter, format export.Format, body []byte) {
	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
