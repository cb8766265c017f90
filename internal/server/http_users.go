package server

import (
	"net/http"
)

type registerUserRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// handleRegisterUser handles POST /v1/users. The response is the only time
// the auth token is returned outside of a token regeneration.
func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := s.svc.RegisterUser(r.Context(), req.Email, req.Name)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// handleCurrentUser handles GET /v1/users/me.
func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.svc.CurrentUser(r.Context(), userID(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	u.AuthToken = ""
	writeJSON(w, http.StatusOK, u)
}

type updateUserRequest struct {
	Name     *string `json:"name"`
	Username *string `json:"username"`
}

// handleUpdateUser handles PATCH /v1/users/me.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == nil && req.Username == nil {
		writeError(w, http.StatusBadRequest, "name or username is required")
		return
	}

	ctx := r.Context()
	id := userID(ctx)
	u := userFrom(ctx)
	var err error
	if req.Name != nil {
		if u, err = s.svc.RenameUser(ctx, id, *req.Name); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
	}
	if req.Username != nil {
		if u, err = s.svc.SetUsername(ctx, id, *req.Username); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
	}
	u.AuthToken = ""
	writeJSON(w, http.StatusOK, u)
}

// handleDeleteUser handles DELETE /v1/users/me.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteUser(r.Context(), userID(r.Context())); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRegenerateToken handles POST /v1/users/me/token.
func (s *Server) handleRegenerateToken(w http.ResponseWriter, r *http.Request) {
	u, err := s.svc.RegenerateAuthToken(r.Context(), userID(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
