package authz

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/novahr/nova-authz/internal/platform/httpx"
	"github.com/novahr/nova-authz/internal/shared"
)

// Handler exposes manifest and decision endpoints.
type Handler struct {
	logger *slog.Logger
	engine *Engine
	gate   Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, engine *Engine, gate Middleware) *Handler {
	return &Handler{logger: logger, engine: engine, gate: gate}
}

// MountRoutes registers authorization routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/me/permissions", h.myManifest)
	r.Group(func(r chi.Router) {
		r.Use(h.gate.Require(shared.PermPermissionsView))
		r.Get("/users/{id}/permissions", h.userManifest)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.gate.Require(shared.PermPermissionsCheck))
		r.Post("/check", h.check)
	})
}

func (h *Handler) myManifest(w http.ResponseWriter, r *http.Request) {
	sub := shared.SubjectFromContext(r.Context())
	if sub == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	h.writeManifest(w, r, sub.UserID)
}

func (h *Handler) userManifest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be a positive integer")
		return
	}
	h.writeManifest(w, r, id)
}

func (h *Handler) writeManifest(w http.ResponseWriter, r *http.Request, userID int64) {
	manifest, err := h.engine.Manifest(r.Context(), userID)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("build manifest", slog.Int64("user_id", userID), slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, manifest)
}

type checkRequest struct {
	UserID     int64  `json:"user_id"`
	Permission string `json:"permission"`
}

// check is the service-to-service decision endpoint: other backends submit a
// (user, permission) pair and receive the full CheckResult.
func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if req.UserID <= 0 || req.Permission == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "user_id and permission are required")
		return
	}
	result, err := h.engine.HasPermission(r.Context(), req.UserID, req.Permission)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("permission check", slog.Int64("user_id", req.UserID), slog.String("permission", req.Permission), slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
