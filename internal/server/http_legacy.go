package server

import (
	"net/http"

	"github.com/alfredjeanlab/envtree/internal/export"
)

// legacyDownloadRequest is the body sent by the original download CLI.
type legacyDownloadRequest struct {
	ProjectID string `json:"projectId"`
	ConfigID  string `json:"configId"`
	Type      string `json:"type"`
	UserEmail string `json:"userEmail"`
	UserToken string `json:"userToken"`
}

// handleLegacyDownload handles POST /api/config. Credentials travel in the
// body and the response is the rendered file.
func (s *Server) handleLegacyDownload(w http.ResponseWriter, r *http.Request) {
	var req legacyDownloadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProjectID == "" || req.ConfigID == "" {
		writeError(w, http.StatusBadRequest, "projectId and configId are required")
		return
	}
	format, err := export.ParseFormat(req.Type)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	ctx := r.Context()
	u, err := s.svc.AuthenticateEmailToken(ctx, req.UserEmail, req.UserToken)
	if err != nil {
		// Bad credentials read the same as a missing config.
		s.writeServiceError(w, r, err)
		return
	}
	body, err := s.svc.Export(ctx, u.ID, req.ProjectID, req.ConfigID, format)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.logger.Info("config downloaded", "project_id", req.ProjectID, "config_id", req.ConfigID, "format", string(format))
	writeBody(w, format, body)
}
