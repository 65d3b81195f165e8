package grants

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/novahr/nova-authz/internal/authz"
	"github.com/novahr/nova-authz/internal/platform/httpx"
	"github.com/novahr/nova-authz/internal/shared"
)

// Handler exposes grant administration endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	gate    authz.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, gate authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, gate: gate}
}

// MountRoutes registers grant administration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.gate.Require(shared.PermGrantsView))
		r.Get("/users/{id}/overrides", h.listUserOverrides)
		r.Get("/roles/{id}/grants", h.listRoleGrants)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.gate.Require(shared.PermGrantsEdit))
		r.Put("/users/{id}/overrides/{permission}", h.setUserOverride)
		r.Delete("/users/{id}/overrides/{permission}", h.removeUserOverride)
		r.Put("/roles/{id}/grants/{permission}", h.setRoleGrant)
		r.Delete("/roles/{id}/grants/{permission}", h.removeRoleGrant)
	})
}

type setGrantRequest struct {
	Decision authz.Decision `json:"decision"`
}

func (h *Handler) listUserOverrides(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	overrides, err := h.service.ListUserOverrides(r.Context(), id)
	if err != nil {
		h.respondError(w, r, "list user overrides", err)
		return
	}
	httpx.JSON(w, http.StatusOK, grantList(overrides))
}

func (h *Handler) listRoleGrants(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	grants, err := h.service.ListRoleGrants(r.Context(), id)
	if err != nil {
		h.respondError(w, r, "list role grants", err)
		return
	}
	httpx.JSON(w, http.StatusOK, grantList(grants))
}

func (h *Handler) setUserOverride(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req setGrantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	input := SetOverrideInput{
		UserID:     id,
		Permission: chi.URLParam(r, "permission"),
		Decision:   req.Decision,
	}
	if err := h.service.SetUserOverride(r.Context(), input); err != nil {
		h.respondError(w, r, "set user override", err)
		return
	}
	httpx.JSON(w, http.StatusOK, authz.Grant{Permission: input.Permission, Decision: input.Decision})
}

func (h *Handler) removeUserOverride(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.RemoveUserOverride(r.Context(), id, chi.URLParam(r, "permission")); err != nil {
		h.respondError(w, r, "remove user override", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setRoleGrant(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req setGrantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	input := SetRoleGrantInput{
		RoleID:     id,
		Permission: chi.URLParam(r, "permission"),
		Decision:   req.Decision,
	}
	if err := h.service.SetRoleGrant(r.Context(), input); err != nil {
		h.respondError(w, r, "set role grant", err)
		return
	}
	httpx.JSON(w, http.StatusOK, authz.Grant{Permission: input.Permission, Decision: input.Decision})
}

func (h *Handler) removeRoleGrant(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.RemoveRoleGrant(r.Context(), id, chi.URLParam(r, "permission")); err != nil {
		h.respondError(w, r, "remove role grant", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrSubjectNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		if h.logger != nil {
			h.logger.Error(op, slog.String("path", r.URL.Path), slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func grantList(grants []authz.Grant) []authz.Grant {
	if grants == nil {
		return []authz.Grant{}
	}
	return grants
}
