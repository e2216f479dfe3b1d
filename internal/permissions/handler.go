package permissions

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pulsehq/pulse/internal/features"
	"github.com/pulsehq/pulse/internal/platform/httpx"
)

// Handler exposes the permission admin surface as JSON endpoints. Read
// endpoints require admin.permissions.view; every mutation requires the
// super role, enforced here because the resolver performs no authorization
// of its own.
type Handler struct {
	logger    *slog.Logger
	resolver  *Resolver
	registry  *features.Service
	mw        Middleware
	validator *validator.Validate
	audit     AuditSink
}

// AuditSink records permission mutations for the admin log.
type AuditSink interface {
	Record(r *http.Request, actorID int64, action, detail string)
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, resolver *Resolver, registry *features.Service, mw Middleware, audit AuditSink) *Handler {
	return &Handler{
		logger:    logger,
		resolver:  resolver,
		registry:  registry,
		mw:        mw,
		validator: validator.New(),
		audit:     audit,
	}
}

// MountRoutes registers permission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/me", h.myPermissions)

	r.Group(func(r chi.Router) {
		r.Use(h.mw.Require(features.KeyPermissionsView))
		r.Get("/features", h.listFeatures)
		r.Get("/users/{userID}", h.userPermissions)
		r.Get("/templates", h.listTemplates)
		r.Get("/templates/{role}/{department}", h.getTemplate)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireSuper())
		r.Put("/users/{userID}", h.setUserOverrides)
		r.Post("/users/{userID}/reset", h.resetUser)
		r.Post("/users/{userID}/promote", h.promoteUser)
		r.Post("/bulk", h.bulkGrant)
		r.Put("/templates/{role}/{department}", h.applyTemplate)
		r.Post("/templates/reset-defaults", h.resetTemplates)
	})
}

type featurePayload struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

func (h *Handler) myPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.mw.identity(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	perms, err := h.resolver.EffectivePermissions(r.Context(), id)
	if err != nil {
		h.logger.Error("effective permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user_id":     id.ID,
		"role":        id.Role,
		"department":  id.Department,
		"permissions": perms,
	})
}

func (h *Handler) listFeatures(w http.ResponseWriter, r *http.Request) {
	feats, err := h.registry.List(r.Context())
	if err != nil {
		h.logger.Error("list features", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	payload := make([]featurePayload, len(feats))
	for i, f := range feats {
		payload[i] = featurePayload{Key: f.Key, Name: f.Name, Category: f.Category, Description: f.Description}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"features": payload})
}

func (h *Handler) userPermissions(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	id, err := h.mw.Directory.IdentityByUserID(r.Context(), userID)
	if err != nil {
		// Unknown users resolve to an empty map rather than an error.
		httpx.JSON(w, http.StatusOK, map[string]any{"user_id": userID, "permissions": map[string]bool{}})
		return
	}
	perms, err := h.resolver.EffectivePermissions(r.Context(), id)
	if err != nil {
		h.logger.Error("effective permissions", slog.Int64("user_id", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user_id":     userID,
		"role":        id.Role,
		"department":  id.Department,
		"permissions": perms,
	})
}

type setOverridesRequest struct {
	Overrides map[string]bool `json:"overrides" validate:"required,min=1"`
}

func (h *Handler) setUserOverrides(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	var req setOverridesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	granter := IdentityFromContext(r.Context())
	for key, granted := range req.Overrides {
		if _, err := h.resolver.SetUserOverride(r.Context(), userID, key, granted, granter.ID); err != nil {
			h.logger.Error("set user override", slog.Int64("user_id", userID), slog.String("feature", key), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
	}
	h.recordAudit(r, granter.ID, "permissions.override.set", fmt.Sprintf("user=%d keys=%d", userID, len(req.Overrides)))
	httpx.JSON(w, http.StatusOK, map[string]any{"user_id": userID, "updated": len(req.Overrides)})
}

func (h *Handler) resetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	removed, err := h.resolver.ResetUserOverrides(r.Context(), userID)
	if err != nil {
		h.logger.Error("reset user overrides", slog.Int64("user_id", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	actor := IdentityFromContext(r.Context())
	h.recordAudit(r, actor.ID, "permissions.override.reset", fmt.Sprintf("user=%d removed=%d", userID, removed))
	httpx.JSON(w, http.StatusOK, map[string]any{"user_id": userID, "removed": removed})
}

type promoteRequest struct {
	TargetRole string `json:"target_role" validate:"required"`
}

func (h *Handler) promoteUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	var req promoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	id, err := h.mw.Directory.IdentityByUserID(r.Context(), userID)
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "user not found")
		return
	}
	if err := h.resolver.PromoteToRoleDefault(r.Context(), id, req.TargetRole); err != nil {
		h.logger.Error("promote to role default", slog.Int64("user_id", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	actor := IdentityFromContext(r.Context())
	h.recordAudit(r, actor.ID, "permissions.role.promote", fmt.Sprintf("user=%d role=%s", userID, req.TargetRole))
	httpx.JSON(w, http.StatusOK, map[string]any{"user_id": userID, "target_role": req.TargetRole})
}

type bulkGrantRequest struct {
	UserIDs     []int64  `json:"user_ids" validate:"required,min=1"`
	FeatureKeys []string `json:"feature_keys" validate:"required,min=1"`
	IsGranted   bool     `json:"is_granted"`
}

func (h *Handler) bulkGrant(w http.ResponseWriter, r *http.Request) {
	var req bulkGrantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	granter := IdentityFromContext(r.Context())
	applied, err := h.resolver.BulkSetUserOverrides(r.Context(), req.UserIDs, req.FeatureKeys, req.IsGranted, granter.ID)
	if err != nil {
		h.logger.Error("bulk grant", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.recordAudit(r, granter.ID, "permissions.override.bulk", fmt.Sprintf("users=%d keys=%d granted=%t", len(req.UserIDs), len(req.FeatureKeys), req.IsGranted))
	httpx.JSON(w, http.StatusOK, map[string]any{"applied": applied})
}

func (h *Handler) listTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.resolver.ListRoleDepartmentTemplates(r.Context())
	if err != nil {
		h.logger.Error("list templates", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	payload := make([]map[string]any, len(templates))
	for i, t := range templates {
		payload[i] = map[string]any{"role": t.Role, "department": t.Department, "permissions": t.Permissions}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"templates": payload})
}

func (h *Handler) getTemplate(w http.ResponseWriter, r *http.Request) {
	role := chi.URLParam(r, "role")
	department := chi.URLParam(r, "department")
	perms, err := h.resolver.RoleDepartmentTemplate(r.Context(), role, department)
	if err != nil {
		h.logger.Error("get template", slog.String("role", role), slog.String("department", department), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"role": role, "department": department, "permissions": perms})
}

type applyTemplateRequest struct {
	Permissions map[string]bool `json:"permissions" validate:"required,min=1"`
}

func (h *Handler) applyTemplate(w http.ResponseWriter, r *http.Request) {
	role := chi.URLParam(r, "role")
	department := chi.URLParam(r, "department")
	var req applyTemplateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.resolver.ApplyRoleDepartmentTemplate(r.Context(), role, department, req.Permissions); err != nil {
		h.logger.Error("apply template", slog.String("role", role), slog.String("department", department), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	actor := IdentityFromContext(r.Context())
	h.recordAudit(r, actor.ID, "permissions.template.apply", fmt.Sprintf("role=%s department=%s keys=%d", role, department, len(req.Permissions)))
	httpx.JSON(w, http.StatusOK, map[string]any{"role": role, "department": department, "updated": len(req.Permissions)})
}

func (h *Handler) resetTemplates(w http.ResponseWriter, r *http.Request) {
	if err := h.resolver.SeedDefaults(r.Context()); err != nil {
		h.logger.Error("reset templates", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	actor := IdentityFromContext(r.Context())
	h.recordAudit(r, actor.ID, "permissions.template.reset", "seeded built-in templates")
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) recordAudit(r *http.Request, actorID int64, action, detail string) {
	if h.audit != nil {
		h.audit.Record(r, actorID, action, detail)
	}
}
