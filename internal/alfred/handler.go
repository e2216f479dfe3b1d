package alfred

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pulsehq/pulse/internal/permissions"
	"github.com/pulsehq/pulse/internal/platform/httpx"
	"github.com/pulsehq/pulse/internal/users"
)

// ChatService is the assistant surface the handler depends on.
type ChatService interface {
	Chat(ctx context.Context, id permissions.Identity, userName, conversationID, message string) (Reply, error)
}

// Directory resolves the caller's display name for the assistant prompt.
type Directory interface {
	GetUser(ctx context.Context, id int64) (users.User, error)
}

// AuditSink records sheet mutations performed through assistant tools.
type AuditSink interface {
	Record(r *http.Request, actorID int64, action, detail string)
}

// Handler exposes the assistant chat endpoint.
type Handler struct {
	logger    *slog.Logger
	service   ChatService
	directory Directory
	audit     AuditSink
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service ChatService, directory Directory, audit AuditSink) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		directory: directory,
		audit:     audit,
		validator: validator.New(),
	}
}

// MountRoutes registers assistant routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
}

type chatRequest struct {
	Message        string `json:"message" validate:"required,max=4000"`
	ConversationID string `json:"conversation_id" validate:"omitempty,uuid4"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	id := permissions.IdentityFromContext(r.Context())
	userName := "there"
	if user, err := h.directory.GetUser(r.Context(), id.ID); err == nil {
		userName = user.Name
	}

	reply, err := h.service.Chat(r.Context(), id, userName, req.ConversationID, req.Message)
	if err != nil {
		h.logger.Error("assistant chat", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	for _, call := range reply.ToolCalls {
		if call.Name == ToolUpdateRow || call.Name == ToolAppendRow {
			h.audit.Record(r, id.ID, "alfred."+call.Name,
				fmt.Sprintf("assistant tool call with arguments %s", call.Arguments))
		}
	}

	httpx.JSON(w, http.StatusOK, reply)
}

// HandleChatForTest exposes the chat handler for package tests.
func (h *Handler) HandleChatForTest(w http.ResponseWriter, r *http.Request) {
	h.handleChat(w, r)
}
