package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/skener/internal/model"
	"github.com/erazemk/skener/internal/store"
)

// UsersHandler manages operator accounts (admin only). Removing an account
// also tears down its scanning workspace.
type UsersHandler struct {
	DB       *sql.DB
	Sessions *Sessions
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (req createUserRequest) validate() error {
	if req.Username == "" || req.Password == "" || req.Role == "" {
		return errors.New("username, password, and role required")
	}
	switch req.Role {
	case model.RoleAdmin, model.RoleManager, model.RoleOperator:
	default:
		return errors.New("invalid role")
	}
	return model.ValidatePassword(req.Password)
}

// account is a user as listed to admins, with whether they are scanning.
type account struct {
	model.User
	Scanning bool `json:"scanning"`
}

// List handles GET /api/users.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := store.ListUsers(r.Context(), h.DB)
	if err != nil {
		slog.Error("failed to list users", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	accounts := make([]account, 0, len(users))
	for _, u := range users {
		accounts = append(accounts, account{User: u, Scanning: h.Sessions.Active(u.Username)})
	}
	jsonResponse(w, http.StatusOK, accounts)
}

// Create handles POST /api/users.
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	user, err := store.CreateUser(r.Context(), h.DB, req.Username, string(hash), req.Role)
	if err != nil {
		jsonError(w, http.StatusConflict, "username already exists")
		return
	}

	slog.Info("operator account created", "by", GetClaims(r.Context()).Username, "account", user.Username, "role", user.Role)
	jsonResponse(w, http.StatusCreated, user)
}

// Delete handles DELETE /api/users/{id}.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	claims := GetClaims(r.Context())
	if claims.UserID == id {
		jsonError(w, http.StatusBadRequest, "cannot delete yourself")
		return
	}

	target, err := store.GetUser(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get user", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to delete user")
		return
	}
	if target == nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}

	if err := store.DeleteUser(r.Context(), h.DB, id); err != nil {
		slog.Error("failed to delete user", "error", err)
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}
	dropped := h.Sessions.Drop(target.Username)

	slog.Info("operator account deleted", "by", claims.Username, "account", target.Username, "workspace_closed", dropped)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "user deleted"})
}
