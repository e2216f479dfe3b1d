package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pulsehq/pulse/internal/platform/httpx"
	"github.com/pulsehq/pulse/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager) *Handler {
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/me", h.handleMe)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type userPayload struct {
	ID         int64  `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	Department string `json:"department,omitempty"`
}

func toPayload(user *User) userPayload {
	return userPayload{
		ID:         user.ID,
		Email:      user.Email,
		Name:       user.Name,
		Role:       user.Role,
		Department: user.Department,
	}
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid email or password")
			return
		}
		httpx.RespondError(w, err)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	sess.SetUser(strconv.FormatInt(user.ID, 10))

	expiresAt := time.Now().Add(h.sessionManager.TTL())
	if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}

	httpx.JSON(w, http.StatusOK, toPayload(user))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	httpx.NoContent(w)
}

// HandleLoginForTest exposes the login handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}

// HandleLogoutForTest exposes the logout handler for tests.
func (h *Handler) HandleLogoutForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogout(w, r)
}

// HandleMeForTest exposes the current-user handler for tests.
func (h *Handler) HandleMeForTest(w http.ResponseWriter, r *http.Request) {
	h.handleMe(w, r)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	user, err := h.service.CurrentUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPayload(user))
}
