package users

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pulsehq/pulse/internal/features"
	"github.com/pulsehq/pulse/internal/permissions"
	"github.com/pulsehq/pulse/internal/platform/httpx"
)

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	perms     permissions.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, perms permissions.Middleware) *Handler {
	return &Handler{logger: logger, service: service, perms: perms, validator: validator.New()}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.perms.Require(features.KeyUsersView))
		r.Get("/", h.listUsers)
		r.Get("/{userID}", h.getUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.perms.Require(features.KeyUsersCreate))
		r.Post("/", h.createUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.perms.Require(features.KeyUsersEdit))
		r.Put("/{userID}", h.updateUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.perms.Require(features.KeyUsersDelete))
		r.Delete("/{userID}", h.deleteUser)
	})
}

type userPayload struct {
	ID         int64     `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Role       string    `json:"role"`
	Department string    `json:"department,omitempty"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toPayload(u User) userPayload {
	return userPayload{
		ID:         u.ID,
		Email:      u.Email,
		Name:       u.Name,
		Role:       u.Role,
		Department: u.Department,
		IsActive:   u.IsActive,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	payload := make([]userPayload, len(users))
	for i, u := range users {
		payload[i] = toPayload(u)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": payload})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "user not found")
		return
	}
	httpx.JSON(w, http.StatusOK, toPayload(user))
}

type createUserRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=8"`
	Name       string `json:"name" validate:"required"`
	Role       string `json:"role" validate:"required"`
	Department string `json:"department"`
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	user, err := h.service.CreateUser(r.Context(), User{
		Email:      req.Email,
		Name:       req.Name,
		Role:       req.Role,
		Department: req.Department,
		IsActive:   true,
	}, req.Password)
	if err != nil {
		h.logger.Error("create user", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPayload(user))
}

type updateUserRequest struct {
	Name       string `json:"name" validate:"required"`
	Role       string `json:"role" validate:"required"`
	Department string `json:"department"`
	IsActive   *bool  `json:"is_active" validate:"required"`
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	var req updateUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	user, err := h.service.UpdateUser(r.Context(), User{
		ID:         id,
		Name:       req.Name,
		Role:       req.Role,
		Department: req.Department,
		IsActive:   *req.IsActive,
	})
	if err != nil {
		h.logger.Error("update user", slog.Int64("user_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPayload(user))
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	actor := permissions.IdentityFromContext(r.Context())
	if actor.ID == id {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "cannot delete own account")
		return
	}
	if err := h.service.DeleteUser(r.Context(), id); err != nil {
		h.logger.Error("delete user", slog.Int64("user_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}
