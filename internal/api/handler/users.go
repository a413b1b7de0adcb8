package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openrag/opsconsole/internal/api/models"
	"github.com/openrag/opsconsole/internal/api/response"
	"github.com/openrag/opsconsole/internal/backend"
	"github.com/openrag/opsconsole/internal/session"
)

// UsersHandler serves the users directory. Every route requires the admin role.
type UsersHandler struct {
	shell WorkspaceProvider
}

// NewUsersHandler creates a new UsersHandler.
func NewUsersHandler(shell WorkspaceProvider) *UsersHandler {
	return &UsersHandler{shell: shell}
}

// List handles GET /v1/users. The list is re-fetched on every call; a fetch
// failure keeps the previous list and is reported in the state.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspace(w, r, h.shell)
	if !ok {
		return
	}
	state, err := ws.Users.Load(r.Context())
	if err != nil {
		response.Error(w, r, err, "failed to load users")
		return
	}
	response.JSON(w, r, http.StatusOK, state)
}

// Create handles POST /v1/users.
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspace(w, r, h.shell)
	if !ok {
		return
	}

	var req models.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	state, err := ws.Users.Create(r.Context(), backend.NewUser{
		Username: req.Username,
		Password: req.Password,
		Role:     session.Role(req.Role),
	})
	if err != nil {
		response.Error(w, r, err, "failed to create user")
		return
	}
	response.JSON(w, r, http.StatusCreated, state)
}

// Delete handles DELETE /v1/users/{id}?confirm=true.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspace(w, r, h.shell)
	if !ok {
		return
	}

	state, err := ws.Users.Delete(r.Context(), chi.URLParam(r, "id"), confirmed(r))
	if err != nil {
		response.Error(w, r, err, "failed to delete user")
		return
	}
	response.JSON(w, r, http.StatusOK, state)
}

// BeginPasswordEdit handles POST /v1/users/{id}/password/edit.
func (h *UsersHandler) BeginPasswordEdit(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspace(w, r, h.shell)
	if !ok {
		return
	}

	state, err := ws.Users.BeginPasswordEdit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, r, err, "failed to open password edit")
		return
	}
	response.JSON(w, r, http.StatusOK, state)
}

// CancelPasswordEdit handles DELETE /v1/users/{id}/password/edit.
func (h *UsersHandler) CancelPasswordEdit(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspace(w, r, h.shell)
	if !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, ws.Users.CancelPasswordEdit())
}

// ChangePassword handles PATCH /v1/users/{id}/password.
func (h *UsersHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspace(w, r, h.shell)
	if !ok {
		return
	}

	var req models.ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	state, err := ws.Users.ChangePassword(r.Context(), chi.URLParam(r, "id"), req.Password)
	if err != nil {
		response.Error(w, r, err, "failed to change password")
		return
	}
	response.JSON(w, r, http.StatusOK, state)
}
