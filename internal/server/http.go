package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// NewHTTPHandler returns an http.Handler with all routes registered.
// Requests other than GET /v1/health, POST /v1/users and POST /api/config must
// carry a user's auth token as Authorization: Bearer <token>. When adminToken
// is non-empty, POST /v1/users requires it instead.
func (s *Server) NewHTTPHandler(adminToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("POST /api/config", s.handleLegacyDownload)

	mux.HandleFunc("POST /v1/users", s.handleRegisterUser)
	mux.HandleFunc("GET /v1/users/me", s.handleCurrentUser)
	mux.HandleFunc("PATCH /v1/users/me", s.handleUpdateUser)
	mux.HandleFunc("DELETE /v1/users/me", s.handleDeleteUser)
	mux.HandleFunc("POST /v1/users/me/token", s.handleRegenerateToken)

	mux.HandleFunc("POST /v1/projects", s.handleCreateProject)
	mux.HandleFunc("GET /v1/projects", s.handleListProjects)
	mux.HandleFunc("GET /v1/projects/{projectId}", s.handleGetProject)
	mux.HandleFunc("DELETE /v1/projects/{projectId}", s.handleDeleteProject)
	mux.HandleFunc("POST /v1/projects/{projectId}/members", s.handleAddMember)
	mux.HandleFunc("GET /v1/projects/{projectId}/events", s.handleProjectEvents)

	mux.HandleFunc("GET /v1/projects/{projectId}/configs", s.handleListConfigs)
	mux.HandleFunc("POST /v1/projects/{projectId}/configs", s.handleCreateConfig)
	mux.HandleFunc("GET /v1/projects/{projectId}/configs/{configId}", s.handleGetConfig)
	mux.HandleFunc("PATCH /v1/projects/{projectId}/configs/{configId}", s.handleRenameConfig)
	mux.HandleFunc("DELETE /v1/projects/{projectId}/configs/{configId}", s.handleDeleteConfig)
	mux.HandleFunc("POST /v1/projects/{projectId}/configs/{configId}/duplicate", s.handleDuplicateConfig)
	mux.HandleFunc("POST /v1/projects/{projectId}/configs/{configId}/link", s.handleLinkConfig)
	mux.HandleFunc("POST /v1/projects/{projectId}/configs/{configId}/unlink", s.handleUnlinkConfig)
	mux.HandleFunc("PUT /v1/projects/{projectId}/configs/{configId}/values", s.handleUpdateValues)
	mux.HandleFunc("PUT /v1/projects/{projectId}/configs/{configId}/values/{key}", s.handleSetValue)
	mux.HandleFunc("DELETE /v1/projects/{projectId}/configs/{configId}/values/{key}", s.handleUnsetValue)
	mux.HandleFunc("GET /v1/projects/{projectId}/configs/{configId}/export", s.handleExportConfig)

	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	return AuthMiddleware(s.svc, adminToken, mux, s.logger)
}

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// httpStatus maps a service error onto an HTTP status code.
func httpStatus(err error) int {
	switch classify(err) {
	case kindNotFound:
		return http.StatusNotFound
	case kindConflict:
		return http.StatusConflict
	case kindInvalid:
		return http.StatusBadRequest
	case kindCycle:
		return http.StatusUnprocessableEntity
	case kindUnauthenticated:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// writeServiceError maps err onto a status and writes it. Internal failures
// are logged with the request path.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, publicMessage(err))
}

// decodeJSON reads a JSON request body into v. An empty body leaves v as is.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeError(w, http.StatusBadRequest, "invalid JSON body")
	return false
}
